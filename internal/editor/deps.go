/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor wires the card canvas together: one Session per card face
// (scene store, viewport, gesture router and persistence) and a Workflow that
// walks the user from the front face to the back face and hands the exported
// rasters to the next step.
package editor

import (
	"context"
	"errors"
	"log/slog"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/export"
	"cardcanvas/internal/gesture"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/textlayout"
)

var (
	// ErrPermissionDenied is returned by pickers when the user refused access.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrPickCancelled is returned by pickers when the user closed the picker.
	ErrPickCancelled = errors.New("pick cancelled")
	// ErrFinished is returned by Advance once navigation has happened.
	ErrFinished = errors.New("workflow already finished")
)

// Picker lets the user choose an image. The returned reference is stored
// verbatim as the element content.
type Picker interface {
	PickImage(ctx context.Context) (string, error)
}

// PickerFunc adapts a function to Picker.
type PickerFunc func(ctx context.Context) (string, error)

func (f PickerFunc) PickImage(ctx context.Context) (string, error) { return f(ctx) }

// Exporter turns the committed elements of a face into a raster artifact.
type Exporter interface {
	Export(ctx context.Context, face domain.Face, elems []domain.Element) (export.Artifact, error)
}

// Navigator performs the step after the back face. payload is opaque JSON.
type Navigator interface {
	Advance(ctx context.Context, payload []byte) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, payload []byte) error

func (f NavigatorFunc) Advance(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// Notifier shows short user-visible notices.
type Notifier interface {
	Notify(msg string)
}

// LogNotifier writes notices to the log. Used when no UI is attached.
type LogNotifier struct{}

func (LogNotifier) Notify(msg string) {
	applog.WithComponent("editor").Warn("notice", slog.String("msg", msg))
}

// Config holds the canvas tunables shared by both faces.
type Config struct {
	Canvas    domain.CanvasSize
	SizeFloor float64
	MinScale  float64
	MaxScale  float64
	Gesture   gesture.Config
	Fonts     textlayout.Provider
}

// DefaultConfig returns a 1050×600 canvas with the stock floor, scale range
// and gesture tunables.
func DefaultConfig() Config {
	return Config{
		Canvas:    domain.CanvasSize{W: 1050, H: 600},
		SizeFloor: domain.DefaultSizeFloor,
		MinScale:  0.1,
		MaxScale:  10,
		Gesture:   gesture.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if !c.Canvas.Valid() {
		c.Canvas = d.Canvas
	}
	if c.SizeFloor <= 0 {
		c.SizeFloor = d.SizeFloor
	}
	if c.MinScale <= 0 {
		c.MinScale = d.MinScale
	}
	if c.MaxScale < c.MinScale {
		c.MaxScale = d.MaxScale
	}
	if c.Fonts == nil {
		c.Fonts = textlayout.DefaultProvider()
	}
	return c
}
