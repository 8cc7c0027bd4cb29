/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/export"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/metrics"
	"cardcanvas/internal/persist"
	"cardcanvas/internal/storage"
	"cardcanvas/internal/telemetry"
)

// Deps are the collaborators of a workflow. Exporter and Navigator are
// required by Advance; the rest may be nil.
type Deps struct {
	Picker    Picker
	Exporter  Exporter
	Navigator Navigator
	Notifier  Notifier
	Metrics   *metrics.Collector
	Telemetry telemetry.Sink
}

// NavContext is the payload handed to the Navigator after the back face.
// The artifact references are opaque to the editor.
type NavContext struct {
	Session string `json:"session"`
	Front   string `json:"front"`
	Back    string `json:"back"`
}

// Workflow edits the front face first and the back face second.
type Workflow struct {
	id   string
	kv   storage.KV
	w    *persist.Writer
	cfg  Config
	deps Deps

	mu        sync.Mutex
	sessions  map[domain.Face]*Session
	cur       domain.Face
	artifacts map[domain.Face]export.Artifact
	finished  bool
}

// NewWorkflow starts a workflow on the front face.
func NewWorkflow(ctx context.Context, kv storage.KV, cfg Config, deps Deps) *Workflow {
	if deps.Notifier == nil {
		deps.Notifier = LogNotifier{}
	}
	if deps.Telemetry == nil {
		deps.Telemetry = telemetry.Nop{}
	}
	hooks := persist.Hooks{}
	if m := deps.Metrics; m != nil {
		hooks.OnWrite = m.RecordWrite
		hooks.OnCoalesce = m.RecordCoalesce
	}
	id := uuid.NewString()
	wf := &Workflow{
		id:        id,
		kv:        kv,
		w:         persist.NewWriter(kv, hooks),
		cfg:       cfg.withDefaults(),
		deps:      deps,
		sessions:  make(map[domain.Face]*Session, 2),
		artifacts: make(map[domain.Face]export.Artifact, 2),
	}
	wf.open(ctx, domain.FaceFront)
	deps.Telemetry.Event(telemetry.EvSessionStart, nil)
	return wf
}

// ID returns the random id of this editing session.
func (wf *Workflow) ID() string { return wf.id }

func (wf *Workflow) open(ctx context.Context, face domain.Face) *Session {
	s, ok := wf.sessions[face]
	if !ok {
		ctx = applog.WithFace(applog.WithSession(ctx, wf.id), string(face))
		s = OpenSession(ctx, face, wf.kv, wf.w, wf.cfg, SessionOptions{Metrics: wf.deps.Metrics, Telemetry: wf.deps.Telemetry})
		wf.sessions[face] = s
	}
	wf.cur = face
	return s
}

// Current returns the session of the face being edited.
func (wf *Workflow) Current() *Session {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.sessions[wf.cur]
}

// Session returns the session of face if it has been opened.
func (wf *Workflow) Session(face domain.Face) (*Session, bool) {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	s, ok := wf.sessions[face]
	return s, ok
}

// Finished reports whether navigation has completed.
func (wf *Workflow) Finished() bool {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	return wf.finished
}

// AddImage adds an image to the current face through the configured picker.
func (wf *Workflow) AddImage(ctx context.Context) (int, error) {
	if wf.deps.Picker == nil {
		return 0, fmt.Errorf("no image picker configured")
	}
	return wf.Current().AddImage(ctx, wf.deps.Picker, wf.deps.Notifier)
}

// Advance saves and exports the current face. On the front face it then
// opens the back face; on the back face it hands both artifacts to the
// Navigator. Any failure is shown through the Notifier and leaves the
// workflow on the current face with its state intact.
func (wf *Workflow) Advance(ctx context.Context) error {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	if wf.finished {
		return ErrFinished
	}
	if wf.deps.Exporter == nil {
		return fmt.Errorf("no exporter configured")
	}
	face := wf.cur
	s := wf.sessions[face]
	ctx = applog.WithFace(applog.WithSession(ctx, wf.id), string(face))
	l := applog.WithOperation(applog.WithComponent("workflow"), "advance")
	s.Router().Cancel()

	if err := s.Flush(ctx); err != nil {
		l.ErrorContext(ctx, "save failed", slog.Any("err", err))
		wf.deps.Notifier.Notify("Your design could not be saved. Please try again.")
		return fmt.Errorf("save %s: %w", face, err)
	}

	t0 := time.Now()
	art, err := wf.deps.Exporter.Export(ctx, face, s.Store().Elements())
	if m := wf.deps.Metrics; m != nil {
		m.RecordExport(string(face), err)
	}
	if err != nil {
		l.ErrorContext(ctx, "export failed", slog.Any("err", err))
		wf.deps.Telemetry.Event(telemetry.EvExportFailed, map[string]any{"face": string(face)})
		wf.deps.Notifier.Notify("The card could not be exported. Please try again.")
		return fmt.Errorf("export %s: %w", face, err)
	}
	wf.artifacts[face] = art
	wf.deps.Telemetry.Event(telemetry.EvExport, map[string]any{"face": string(face), "ms": time.Since(t0).Milliseconds()})
	l.InfoContext(ctx, "face exported", slog.Int("bytes", len(art.PNG)))

	if face == domain.FaceFront {
		wf.open(ctx, domain.FaceBack)
		return nil
	}

	if wf.deps.Navigator == nil {
		return fmt.Errorf("no navigator configured")
	}
	payload, err := json.Marshal(NavContext{
		Session: wf.id,
		Front:   wf.artifacts[domain.FaceFront].Ref,
		Back:    wf.artifacts[domain.FaceBack].Ref,
	})
	if err != nil {
		return fmt.Errorf("encode navigation context: %w", err)
	}
	if err := wf.deps.Navigator.Advance(ctx, payload); err != nil {
		l.ErrorContext(ctx, "navigation failed", slog.Any("err", err))
		wf.deps.Notifier.Notify("Could not continue to the next step. Please try again.")
		return fmt.Errorf("advance: %w", err)
	}
	wf.finished = true
	wf.deps.Telemetry.Event(telemetry.EvAdvance, nil)
	l.InfoContext(ctx, "workflow finished")
	return nil
}

// Back returns from the back face to the front face. The back face keeps
// its state.
func (wf *Workflow) Back(ctx context.Context) bool {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	if wf.finished || wf.cur != domain.FaceBack {
		return false
	}
	wf.sessions[wf.cur].Router().Cancel()
	wf.open(ctx, domain.FaceFront)
	return true
}

// Artifact returns the last exported artifact of face.
func (wf *Workflow) Artifact(face domain.Face) (export.Artifact, bool) {
	wf.mu.Lock()
	defer wf.mu.Unlock()
	a, ok := wf.artifacts[face]
	return a, ok
}

// Autosave writes the committed state of every open face and waits for it.
func (wf *Workflow) Autosave(ctx context.Context) error {
	wf.mu.Lock()
	sessions := make([]*Session, 0, len(wf.sessions))
	for _, s := range wf.sessions {
		sessions = append(sessions, s)
	}
	wf.mu.Unlock()
	var errs []error
	for _, s := range sessions {
		if err := s.Autosave(ctx); err != nil {
			errs = append(errs, fmt.Errorf("autosave %s: %w", s.Face(), err))
		}
	}
	return errors.Join(errs...)
}

// Dirty reports whether some committed change has not reached storage yet.
func (wf *Workflow) Dirty() bool { return wf.w.Pending() }

// Close flushes pending writes.
func (wf *Workflow) Close(ctx context.Context) error { return wf.w.Flush(ctx) }
