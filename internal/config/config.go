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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/zalando/go-keyring"
	"gopkg.in/yaml.v3"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/storage"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.
// Unknown fields are ignored on unmarshal.

type BackendConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	// Token is not stored on disk; it lives in the OS keychain.
}

type GeneralConfig struct {
	TelemetryOptIn bool   `yaml:"telemetry_opt_in"`
	Theme          string `yaml:"theme"` // "system" | "light" | "dark"
	EnableServer   bool   `yaml:"enable_server"`
	ServerAddr     string `yaml:"server_addr"`
}

// CanvasConfig holds the editing surface tunables. Sizes are canvas pixels
// except HandleSize and TapSlop, which are screen pixels.
type CanvasConfig struct {
	Width         float64 `yaml:"width"`
	Height        float64 `yaml:"height"`
	SizeFloor     float64 `yaml:"size_floor"`
	ResizeDivisor float64 `yaml:"resize_divisor"`
	MinScale      float64 `yaml:"min_scale"`
	MaxScale      float64 `yaml:"max_scale"`
	HandleSize    float64 `yaml:"handle_size"`
	TapSlop       float64 `yaml:"tap_slop"`
	FontFile      string  `yaml:"font_file"`
}

type StorageConfig struct {
	Kind          string `yaml:"kind"` // file | sqlite | postgres | redis | memory
	Dir           string `yaml:"dir"`
	DSN           string `yaml:"dsn"`
	RedisAddr     string `yaml:"redis_addr"`
	KeepRevisions int    `yaml:"keep_revisions"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int           `yaml:"config_version"`
	General       GeneralConfig `yaml:"general"`
	Canvas        CanvasConfig  `yaml:"canvas"`
	Storage       StorageConfig `yaml:"storage"`
	Backend       BackendConfig `yaml:"backend"`
	Logging       LoggingConfig `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		General:       GeneralConfig{TelemetryOptIn: false, Theme: "system", EnableServer: false, ServerAddr: "127.0.0.1:7777"},
		Canvas: CanvasConfig{
			Width:         1050,
			Height:        600,
			SizeFloor:     domain.DefaultSizeFloor,
			ResizeDivisor: 10,
			MinScale:      0.1,
			MaxScale:      10,
			HandleSize:    24,
			TapSlop:       4,
		},
		Storage: StorageConfig{Kind: storage.KindFile, KeepRevisions: storage.DefaultKeepRevisions},
		Backend: BackendConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Logging: LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvConfigPath       = "CCV_CONFIG"
	EnvBackendURL       = "CCV_BACKEND_URL"
	EnvBackendTimeoutMs = "CCV_BACKEND_TIMEOUT_MS"
	EnvTelemetryOptIn   = "CCV_TELEMETRY_OPT_IN"
	EnvEnableServer     = "CCV_ENABLE_SERVER"
	EnvServerAddr       = "CCV_SERVER_ADDR"
	EnvStorageKind      = "CCV_STORAGE"
	EnvStorageDir       = "CCV_STORAGE_DIR"
	EnvStorageDSN       = "CCV_PG_DSN"
	EnvRedisAddr        = "CCV_REDIS_ADDR"
	EnvFontFile         = "CCV_FONT_FILE"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "CCV_LOG_LEVEL"
	EnvLogFormat = "CCV_LOG_FORMAT"
	EnvLogSource = "CCV_LOG_SOURCE"
	EnvLogFile   = "CCV_LOG_FILE"
)

// Service/keys for OS keyring.
const (
	keyringService = "CardCanvas"
	keyringToken   = "backend_token"
)

// tokenStore abstracts keyring, so we can stub in tests.
var tokenStore TokenStore = osKeyring{}

type TokenStore interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// osKeyring implements TokenStore using the OS keyring via github.com/zalando/go-keyring.
type osKeyring struct{}

func (osKeyring) Get(service, key string) (string, error) { return keyring.Get(service, key) }
func (osKeyring) Set(service, key, value string) error    { return keyring.Set(service, key, value) }
func (osKeyring) Delete(service, key string) error        { return keyring.Delete(service, key) }

// ConfigDir returns the per-user application directory.
func ConfigDir() (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" { // fallback
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "CardCanvas")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "CardCanvas")
	default: // linux and others
		base = filepath.Join(os.Getenv("HOME"), ".config", "cardcanvas")
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path. CCV_CONFIG overrides it.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigPath)); p != "" {
		return p, nil
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the backend token from keyring (not kept inside the struct; returned separately).
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, "", err
	}
	// token from keyring; a missing keychain is not an error
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

// ClearToken removes the backend token from the keyring.
func ClearToken() error {
	err := tokenStore.Delete(keyringService, keyringToken)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil
	}
	return err
}

// Validate reports configuration values the editor cannot work with.
func (c AppConfig) Validate() error {
	var errs []error
	if c.Canvas.Width <= 0 || c.Canvas.Height <= 0 {
		errs = append(errs, fmt.Errorf("canvas size must be positive, got %gx%g", c.Canvas.Width, c.Canvas.Height))
	}
	if c.Canvas.SizeFloor <= 0 {
		errs = append(errs, fmt.Errorf("canvas.size_floor must be positive"))
	}
	if c.Canvas.MinScale <= 0 || c.Canvas.MaxScale < c.Canvas.MinScale {
		errs = append(errs, fmt.Errorf("canvas scale range [%g, %g] is invalid", c.Canvas.MinScale, c.Canvas.MaxScale))
	}
	switch c.Storage.Kind {
	case storage.KindFile, storage.KindSQLite, storage.KindPostgres, storage.KindRedis, storage.KindMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage kind %q", c.Storage.Kind))
	}
	return errors.Join(errs...)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	if src.General.Theme != "" {
		dst.General.Theme = src.General.Theme
	}
	// booleans: copy directly from src (file) so user preferences persist
	dst.General.TelemetryOptIn = src.General.TelemetryOptIn
	dst.General.EnableServer = src.General.EnableServer
	if s := strings.TrimSpace(src.General.ServerAddr); s != "" {
		dst.General.ServerAddr = s
	}
	// canvas: zero means "keep default"
	mergeFloat(&dst.Canvas.Width, src.Canvas.Width)
	mergeFloat(&dst.Canvas.Height, src.Canvas.Height)
	mergeFloat(&dst.Canvas.SizeFloor, src.Canvas.SizeFloor)
	mergeFloat(&dst.Canvas.ResizeDivisor, src.Canvas.ResizeDivisor)
	mergeFloat(&dst.Canvas.MinScale, src.Canvas.MinScale)
	mergeFloat(&dst.Canvas.MaxScale, src.Canvas.MaxScale)
	mergeFloat(&dst.Canvas.HandleSize, src.Canvas.HandleSize)
	mergeFloat(&dst.Canvas.TapSlop, src.Canvas.TapSlop)
	if s := strings.TrimSpace(src.Canvas.FontFile); s != "" {
		dst.Canvas.FontFile = s
	}
	// storage
	if s := strings.TrimSpace(src.Storage.Kind); s != "" {
		dst.Storage.Kind = strings.ToLower(s)
	}
	if s := strings.TrimSpace(src.Storage.Dir); s != "" {
		dst.Storage.Dir = s
	}
	if s := strings.TrimSpace(src.Storage.DSN); s != "" {
		dst.Storage.DSN = s
	}
	if s := strings.TrimSpace(src.Storage.RedisAddr); s != "" {
		dst.Storage.RedisAddr = s
	}
	if src.Storage.KeepRevisions != 0 {
		dst.Storage.KeepRevisions = src.Storage.KeepRevisions
	}
	if src.Backend.BaseURL != "" {
		dst.Backend.BaseURL = src.Backend.BaseURL
	}
	if src.Backend.TimeoutMs != 0 {
		dst.Backend.TimeoutMs = src.Backend.TimeoutMs
	}
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	if strings.TrimSpace(src.Logging.File) != "" {
		dst.Logging.File = strings.TrimSpace(src.Logging.File)
	}
}

func mergeFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	if v := strings.TrimSpace(os.Getenv(EnvBackendURL)); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBackendTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Backend.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvTelemetryOptIn)); v != "" {
		cfg.General.TelemetryOptIn = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvEnableServer)); v != "" {
		cfg.General.EnableServer = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvServerAddr)); v != "" {
		cfg.General.ServerAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageKind)); v != "" {
		cfg.Storage.Kind = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDir)); v != "" {
		cfg.Storage.Dir = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStorageDSN)); v != "" {
		cfg.Storage.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.Storage.RedisAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvFontFile)); v != "" {
		cfg.Canvas.FontFile = v
	}
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFile)); v != "" {
		cfg.Logging.File = v
	}
}

var overrideEnv = map[string]string{
	"backend.base_url":         EnvBackendURL,
	"backend.timeout_ms":       EnvBackendTimeoutMs,
	"general.telemetry_opt_in": EnvTelemetryOptIn,
	"general.enable_server":    EnvEnableServer,
	"general.server_addr":      EnvServerAddr,
	"storage.kind":             EnvStorageKind,
	"storage.dir":              EnvStorageDir,
	"storage.dsn":              EnvStorageDSN,
	"storage.redis_addr":       EnvRedisAddr,
	"canvas.font_file":         EnvFontFile,
	"logging.level":            EnvLogLevel,
	"logging.format":           EnvLogFormat,
	"logging.source":           EnvLogSource,
	"logging.file":             EnvLogFile,
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	env, ok := overrideEnv[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// Timeout returns the backend timeout, falling back to the default.
func (b BackendConfig) Timeout() time.Duration {
	if b.TimeoutMs <= 0 {
		return time.Duration(Defaults().Backend.TimeoutMs) * time.Millisecond
	}
	return time.Duration(b.TimeoutMs) * time.Millisecond
}

// Size returns the canvas size.
func (c CanvasConfig) Size() domain.CanvasSize { return domain.CanvasSize{W: c.Width, H: c.Height} }

// StorageOptions resolves the storage section; an empty dir means <ConfigDir>/data.
func (c AppConfig) StorageOptions() (storage.Options, error) {
	dir := c.Storage.Dir
	if dir == "" && (c.Storage.Kind == storage.KindFile || c.Storage.Kind == storage.KindSQLite) {
		base, err := ConfigDir()
		if err != nil {
			return storage.Options{}, err
		}
		dir = filepath.Join(base, "data")
	}
	return storage.Options{
		Kind:          c.Storage.Kind,
		Dir:           dir,
		DSN:           c.Storage.DSN,
		RedisAddr:     c.Storage.RedisAddr,
		KeepRevisions: c.Storage.KeepRevisions,
	}, nil
}
