/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"runtime"
	"testing"
	"time"

	"cardcanvas/internal/version"
)

type crashUpload struct {
	session string
	body    string
}

// collector is an events/crash endpoint pair that hands every request to the test.
func collector(t *testing.T) (*httptest.Server, <-chan map[string]any, <-chan crashUpload) {
	t.Helper()
	events := make(chan map[string]any, 16)
	crashes := make(chan crashUpload, 4)
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		events <- m
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		crashes <- crashUpload{session: r.Header.Get("X-Session"), body: string(b)}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, events, crashes
}

func next[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		var zero T
		t.Fatalf("timed out waiting for upload")
		return zero
	}
}

func TestEditingSessionEventsArriveInOrder(t *testing.T) {
	srv, events, _ := collector(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: 2 * time.Second, Session: "s-1"})
	defer c.Close()

	c.Event(EvSessionStart, nil)
	c.Event(EvGesture, map[string]any{"mode": "element_drag", "committed": true})
	c.Event(EvStyleSave, map[string]any{"face": "front", "bold": true, "color": "#C0392B"})
	c.Event(EvAdvance, nil)
	c.Flush(context.Background())

	var names []string
	for i := 0; i < 4; i++ {
		names = append(names, next(t, events)["name"].(string))
	}
	want := []string{EvSessionStart, EvGesture, EvStyleSave, EvAdvance}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}
}

func TestEventPropsCannotOverrideEnvelope(t *testing.T) {
	srv, events, _ := collector(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", Timeout: 2 * time.Second, Session: "s-1"})
	defer c.Close()

	c.Event(EvExport, map[string]any{"face": "back", "ms": 12, "session": "spoofed", "name": "other"})
	m := next(t, events)

	if m["name"] != EvExport || m["session"] != "s-1" {
		t.Fatalf("envelope overridden: %v", m)
	}
	if m["face"] != "back" || m["ms"] != float64(12) {
		t.Fatalf("props lost: %v", m)
	}
	if m["version"] != version.String() || m["os"] != runtime.GOOS || m["arch"] != runtime.GOARCH {
		t.Fatalf("build info missing: %v", m)
	}
	if ts, _ := m["ts"].(string); ts == "" {
		t.Fatalf("missing ts")
	} else if _, err := time.Parse(time.RFC3339Nano, ts); err != nil {
		t.Fatalf("ts %q: %v", ts, err)
	}
}

func TestUploadCrashCarriesSession(t *testing.T) {
	srv, _, crashes := collector(t)
	c := New(Config{OptIn: true, CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second, Session: "s-9"})
	defer c.Close()
	if c.Enabled() {
		t.Fatalf("events need an events URL")
	}

	report := []byte("panic: nil element\ngoroutine 1")
	c.UploadCrash(report)
	report[0] = 'X'
	got := next(t, crashes)
	if got.session != "s-9" || got.body != "panic: nil element\ngoroutine 1" {
		t.Fatalf("crash upload = %+v", got)
	}
}

func TestFromEnvAndDefaultClient(t *testing.T) {
	t.Setenv("CCV_TELEMETRY_OPT_IN", "on")
	t.Setenv("CCV_TELEMETRY_URL", " http://127.0.0.1:0 ")
	t.Setenv("CCV_CRASH_UPLOAD_URL", "")
	t.Setenv("CCV_TELEMETRY_TIMEOUT_MS", "100")
	t.Setenv("CCV_TELEMETRY_SESSION", "kiosk-3")

	cfg := FromEnv()
	if !cfg.OptIn || cfg.EventsURL != "http://127.0.0.1:0" || cfg.Timeout != 100*time.Millisecond || cfg.Session != "kiosk-3" {
		t.Fatalf("FromEnv = %+v", cfg)
	}
	t.Setenv("CCV_TELEMETRY_TIMEOUT_MS", "soon")
	if got := FromEnv().Timeout; got != 1500*time.Millisecond {
		t.Fatalf("bad timeout should keep the default, got %v", got)
	}

	NewDefault(cfg)
	if !Enabled() || Default().Session() != "kiosk-3" {
		t.Fatalf("default client not installed from cfg")
	}
	for in, want := range map[string]bool{"1": true, "YES": true, " true ": true, "0": false, "": false, "maybe": false} {
		if parseBool(in) != want {
			t.Fatalf("parseBool(%q) != %v", in, want)
		}
	}
}
