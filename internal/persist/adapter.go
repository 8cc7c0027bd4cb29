/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package persist stores card face layouts in a key-value store. Positions are
// written as fractions of the canvas size and re-expanded on load, so a layout
// survives a change of device resolution. Writes are serialized per face key
// and coalesced to the newest state.
package persist

import (
	"context"
	"log/slog"

	"cardcanvas/internal/domain"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/scene"
	"cardcanvas/internal/storage"
)

// Adapter binds one face to its storage key.
type Adapter struct {
	kv     storage.KV
	w      *Writer
	face   domain.Face
	canvas domain.CanvasSize
	log    *slog.Logger
}

// NewAdapter returns an adapter for face. Writes go through w, which may be
// shared between faces.
func NewAdapter(kv storage.KV, w *Writer, face domain.Face, canvas domain.CanvasSize) *Adapter {
	return &Adapter{
		kv:     kv,
		w:      w,
		face:   face,
		canvas: canvas,
		log:    applog.WithComponent("persist"),
	}
}

// Face returns the face this adapter serves.
func (a *Adapter) Face() domain.Face { return a.face }

// Key returns the storage key of the face.
func (a *Adapter) Key() string { return a.face.StorageKey() }

// Load reads the face layout. A missing, unreadable or malformed value yields
// an empty layout; the cause is logged, never returned.
func (a *Adapter) Load(ctx context.Context) []domain.Element {
	ctx = applog.WithFace(ctx, string(a.face))
	l := applog.WithOperation(a.log, "load")
	raw, ok, err := a.kv.Get(ctx, a.Key())
	if err != nil {
		l.ErrorContext(ctx, "read failed; starting empty", slog.Any("err", err))
		return nil
	}
	if !ok {
		l.DebugContext(ctx, "no saved layout")
		return nil
	}
	elems, err := Decode([]byte(raw), a.canvas)
	if err != nil {
		l.WarnContext(ctx, "saved layout unusable; starting empty", slog.Any("err", err))
		return nil
	}
	l.DebugContext(ctx, "layout loaded", slog.Int("elements", len(elems)))
	return elems
}

// Mount hydrates store from storage and installs the commit hook so every
// subsequent commit is queued for writing. Hooks in also run after the
// state has been queued.
func (a *Adapter) Mount(ctx context.Context, store *scene.Store, also ...scene.CommitHook) {
	store.Hydrate(a.Load(ctx))
	if len(also) == 0 {
		store.SetCommitHook(a.Enqueue)
		return
	}
	store.SetCommitHook(func(elems []domain.Element) {
		a.Enqueue(elems)
		for _, h := range also {
			h(elems)
		}
	})
}

// Enqueue encodes elems and hands them to the writer.
func (a *Adapter) Enqueue(elems []domain.Element) {
	data, err := Encode(elems, a.canvas)
	if err != nil {
		applog.WithOperation(a.log, "enqueue").Error("encode failed", slog.String("face", string(a.face)), slog.Any("err", err))
		return
	}
	a.w.Submit(a.Key(), string(data))
}

// Flush waits for queued writes.
func (a *Adapter) Flush(ctx context.Context) error { return a.w.Flush(ctx) }

// Reset deletes the saved layout of the face.
func (a *Adapter) Reset(ctx context.Context) error {
	if err := a.w.Flush(ctx); err != nil {
		a.log.WarnContext(applog.WithFace(ctx, string(a.face)), "flush before reset", slog.Any("err", err))
	}
	return a.kv.Delete(ctx, a.Key())
}
