/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"testing"

	"cardcanvas/internal/storage"
)

type memTokens map[string]string

func (m memTokens) Get(service, key string) (string, error) { return m[service+"/"+key], nil }

func (m memTokens) Set(service, key, value string) error {
	m[service+"/"+key] = value
	return nil
}

func (m memTokens) Delete(service, key string) error {
	delete(m, service+"/"+key)
	return nil
}

// isolate points the config file into a temp dir and stubs the keyring.
func isolate(t *testing.T) (string, memTokens) {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	t.Setenv(EnvConfigPath, p)
	toks := memTokens{}
	old := tokenStore
	tokenStore = toks
	t.Cleanup(func() { tokenStore = old })
	return p, toks
}

func TestEnvOverridesBackendURL(t *testing.T) {
	isolate(t)
	old := os.Getenv(EnvBackendURL)
	_ = os.Setenv(EnvBackendURL, "https://example.test:8443")
	t.Cleanup(func() { _ = os.Setenv(EnvBackendURL, old) })
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Backend.BaseURL, "https://example.test:8443"; got != want {
		t.Fatalf("Backend.BaseURL = %q, want %q", got, want)
	}
	if env, ok := EnvOverrideFor("backend.base_url"); !ok || env != EnvBackendURL {
		t.Fatalf("EnvOverrideFor = %q, %v", env, ok)
	}
	if _, ok := EnvOverrideFor("canvas.width"); ok {
		t.Fatalf("canvas.width has no env override")
	}
}

func TestEnvOverridesTelemetry(t *testing.T) {
	isolate(t)
	t.Setenv(EnvTelemetryOptIn, "true")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if !cfg.General.TelemetryOptIn {
		t.Fatalf("General.TelemetryOptIn expected true from env override")
	}
}

func TestMergeIncludesEnableServer(t *testing.T) {
	// Given a file config that sets enable_server, mergeInto should carry it through
	dst := Defaults()
	src := Defaults()
	src.General.EnableServer = true
	mergeInto(&dst, &src)
	if !dst.General.EnableServer {
		t.Fatalf("EnableServer was not merged from file config")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := Defaults()
	src.Logging.Level = "debug"
	src.Logging.Format = "json"
	src.Logging.Source = true
	src.Logging.File = "C:/tmp/ccv.log"
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "C:/tmp/ccv.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "X:/ccv.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "X:/ccv.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestPartialCanvasFileKeepsDefaults(t *testing.T) {
	p, _ := isolate(t)
	yml := "canvas:\n  width: 2100\n  height: 1200\nstorage:\n  kind: SQLite\n"
	if err := os.WriteFile(p, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Canvas.Width != 2100 || cfg.Canvas.Height != 1200 {
		t.Fatalf("canvas size not merged: %#v", cfg.Canvas)
	}
	if cfg.Canvas.SizeFloor != 10 || cfg.Canvas.ResizeDivisor != 10 || cfg.Canvas.MaxScale != 10 {
		t.Fatalf("unset canvas fields lost their defaults: %#v", cfg.Canvas)
	}
	if cfg.Storage.Kind != storage.KindSQLite || cfg.Storage.KeepRevisions != storage.DefaultKeepRevisions {
		t.Fatalf("storage not merged: %#v", cfg.Storage)
	}
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	p, _ := isolate(t)
	if err := os.WriteFile(p, []byte("canvas:\n  min_scale: 5\n  max_scale: 2\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected validation error for inverted scale range")
	}
	t.Setenv(EnvStorageKind, "floppy")
	if err := os.WriteFile(p, nil, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected error for unknown storage kind")
	}
}

func TestSaveRoundTripAndToken(t *testing.T) {
	_, toks := isolate(t)
	cfg := Defaults()
	cfg.Canvas.TapSlop = 6
	cfg.Storage.Kind = storage.KindMemory
	if err := Save(cfg, "secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != "secret" || got.Canvas.TapSlop != 6 || got.Storage.Kind != storage.KindMemory {
		t.Fatalf("round trip mismatch: tok=%q cfg=%#v", tok, got)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if len(toks) != 0 {
		t.Fatalf("token not cleared")
	}
}

func TestStorageOptionsDefaultsDir(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	cfg := Defaults()
	o, err := cfg.StorageOptions()
	if err != nil {
		t.Fatal(err)
	}
	if o.Kind != storage.KindFile || o.Dir == "" {
		t.Fatalf("unexpected options %#v", o)
	}
	if cfg.Backend.Timeout().Milliseconds() != 15000 {
		t.Fatalf("unexpected timeout %v", cfg.Backend.Timeout())
	}
}
