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
	"errors"
	"fmt"
	"log/slog"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/gesture"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/metrics"
	"cardcanvas/internal/persist"
	"cardcanvas/internal/scene"
	"cardcanvas/internal/storage"
	"cardcanvas/internal/style"
	"cardcanvas/internal/telemetry"
	"cardcanvas/internal/viewport"
)

// Session is the editing state of one card face.
type Session struct {
	face    domain.Face
	store   *scene.Store
	view    *viewport.Viewport
	router  *gesture.Router
	adapter *persist.Adapter
	tel     telemetry.Sink
	log     *slog.Logger
}

// SessionOptions carries the optional collaborators of a session.
type SessionOptions struct {
	Metrics   *metrics.Collector
	Telemetry telemetry.Sink
}

// OpenSession loads face from kv and returns a ready session. Writes go
// through w, which is shared between faces.
func OpenSession(ctx context.Context, face domain.Face, kv storage.KV, w *persist.Writer, cfg Config, opt SessionOptions) *Session {
	cfg = cfg.withDefaults()
	tel := opt.Telemetry
	if tel == nil {
		tel = telemetry.Nop{}
	}
	s := &Session{
		face:    face,
		store:   scene.New(scene.WithSizeFloor(cfg.SizeFloor)),
		view:    viewport.New(cfg.MinScale, cfg.MaxScale),
		adapter: persist.NewAdapter(kv, w, face, cfg.Canvas),
		tel:     tel,
		log:     applog.WithComponent("editor").With(slog.String("face", string(face))),
	}
	var hooks []scene.CommitHook
	if m := opt.Metrics; m != nil {
		hooks = append(hooks, func(elems []domain.Element) { m.RecordCommit(string(face), len(elems)) })
	}
	s.adapter.Mount(ctx, s.store, hooks...)
	s.router = gesture.NewRouter(s.store, s.view,
		gesture.WithConfig(cfg.Gesture),
		gesture.WithFonts(cfg.Fonts),
		gesture.WithEndFunc(func(mode gesture.State, committed bool) {
			if m := opt.Metrics; m != nil {
				m.RecordGesture(mode.String(), committed)
			}
			tel.Event(telemetry.EvGesture, map[string]any{"mode": mode.String(), "committed": committed})
		}),
	)
	s.log.Info("session opened", slog.Int("elements", s.store.Len()))
	return s
}

func (s *Session) Face() domain.Face            { return s.face }
func (s *Session) Store() *scene.Store          { return s.store }
func (s *Session) Viewport() *viewport.Viewport { return s.view }
func (s *Session) Router() *gesture.Router      { return s.router }

// AddText adds a default text element and selects it.
func (s *Session) AddText() int {
	id := s.store.AddText()
	s.tel.Event(telemetry.EvElementAdd, map[string]any{"kind": string(domain.KindText), "face": string(s.face)})
	return id
}

// AddImage asks picker for an image and adds it. A denied permission is
// reported through n and leaves the scene untouched; a cancelled pick is
// silently ignored. The returned id is 0 when nothing was added.
func (s *Session) AddImage(ctx context.Context, picker Picker, n Notifier) (int, error) {
	l := applog.WithOperation(s.log, "add_image")
	uri, err := picker.PickImage(ctx)
	switch {
	case errors.Is(err, ErrPermissionDenied):
		l.Warn("image picker permission denied")
		s.tel.Event(telemetry.EvPickDenied, nil)
		if n != nil {
			n.Notify("Photo library access was denied. Allow access in the system settings to add images.")
		}
		return 0, err
	case errors.Is(err, ErrPickCancelled):
		l.Debug("pick cancelled")
		return 0, nil
	case err != nil:
		l.Error("image picker failed", slog.Any("err", err))
		if n != nil {
			n.Notify("Could not open the image picker.")
		}
		return 0, fmt.Errorf("pick image: %w", err)
	case uri == "":
		return 0, nil
	}
	id := s.store.AddImage(uri)
	s.tel.Event(telemetry.EvElementAdd, map[string]any{"kind": string(domain.KindImage), "face": string(s.face)})
	return id, nil
}

// DeleteSelected removes the selected element, if any. An element held by a
// live drag or resize is kept.
func (s *Session) DeleteSelected() bool {
	e, ok := s.store.Selected()
	if !ok {
		return false
	}
	if s.router.Target() == e.ID {
		s.log.Debug("delete ignored: element is being moved", slog.Int("id", e.ID))
		return false
	}
	return s.store.DeleteElement(e.ID)
}

// EditSelected opens the style editor on the selected text element.
func (s *Session) EditSelected() (*style.Editor, error) {
	if s.router.State() != gesture.Idle {
		return nil, fmt.Errorf("gesture in progress")
	}
	return style.OpenSelected(s.store)
}

// SaveStyle saves the drafts of ed and records the style change.
func (s *Session) SaveStyle(ed *style.Editor) error {
	if err := ed.Save(); err != nil {
		return err
	}
	st := ed.Style()
	s.tel.Event(telemetry.EvStyleSave, map[string]any{
		"face":      string(s.face),
		"bold":      st.Bold,
		"italic":    st.Italic,
		"underline": st.Underline,
		"color":     st.Color,
	})
	return nil
}

// Flush waits for the queued writes of this face.
func (s *Session) Flush(ctx context.Context) error { return s.adapter.Flush(ctx) }

// Autosave queues the current committed state and waits for it.
func (s *Session) Autosave(ctx context.Context) error {
	s.adapter.Enqueue(s.store.Elements())
	return s.adapter.Flush(ctx)
}

// Reset deletes the saved layout and clears the scene.
func (s *Session) Reset(ctx context.Context) error {
	s.router.Cancel()
	if err := s.adapter.Reset(ctx); err != nil {
		return fmt.Errorf("reset %s: %w", s.face, err)
	}
	s.store.Hydrate(nil)
	s.view.Reset()
	return nil
}
