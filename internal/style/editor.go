/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package style implements the modal editor for one text element. Edits are
// drafts until Save, which writes text and style back in a single commit.
package style

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"cardcanvas/internal/domain"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/scene"
)

var (
	ErrNotText           = errors.New("style editor needs a text element")
	ErrClosed            = errors.New("style editor is closed")
	ErrColorNotInPalette = errors.New("color is not in the palette")
	ErrElementGone       = errors.New("element no longer exists")
)

// Editor holds the drafts of one editing session.
type Editor struct {
	store  *scene.Store
	id     int
	text   string
	style  domain.TextStyle
	closed bool
	log    *slog.Logger
}

// Open starts editing element id, which must be a text element.
func Open(store *scene.Store, id int) (*Editor, error) {
	e, ok := store.Get(id)
	if !ok {
		return nil, fmt.Errorf("open editor for %d: %w", id, ErrElementGone)
	}
	if !e.IsText() {
		return nil, ErrNotText
	}
	st := domain.DefaultStyle()
	if e.Style != nil {
		st = *e.Style
	}
	return &Editor{
		store: store,
		id:    id,
		text:  e.Content,
		style: st,
		log:   applog.WithComponent("style").With(slog.Int("id", id)),
	}, nil
}

// OpenSelected starts editing the selected element.
func OpenSelected(store *scene.Store) (*Editor, error) {
	e, ok := store.Selected()
	if !ok {
		return nil, ErrNotText
	}
	return Open(store, e.ID)
}

func (ed *Editor) ID() int                 { return ed.id }
func (ed *Editor) Text() string            { return ed.text }
func (ed *Editor) Style() domain.TextStyle { return ed.style }
func (ed *Editor) Closed() bool            { return ed.closed }

func (ed *Editor) ToggleBold() error {
	return ed.edit(func() { ed.style.Bold = !ed.style.Bold })
}

func (ed *Editor) ToggleItalic() error {
	return ed.edit(func() { ed.style.Italic = !ed.style.Italic })
}

func (ed *Editor) ToggleUnderline() error {
	return ed.edit(func() { ed.style.Underline = !ed.style.Underline })
}

// SetColor picks a palette color. Colors are stored upper case.
func (ed *Editor) SetColor(hex string) error {
	if ed.closed {
		return ErrClosed
	}
	if !domain.InPalette(hex) {
		return fmt.Errorf("%q: %w", hex, ErrColorNotInPalette)
	}
	ed.style.Color = strings.ToUpper(strings.TrimSpace(hex))
	return nil
}

func (ed *Editor) SetText(s string) error {
	return ed.edit(func() { ed.text = s })
}

func (ed *Editor) edit(fn func()) error {
	if ed.closed {
		return ErrClosed
	}
	fn()
	return nil
}

// Save writes the drafts back as one commit and closes the editor.
func (ed *Editor) Save() error {
	if ed.closed {
		return ErrClosed
	}
	ed.closed = true
	if !ed.store.ApplyTextEdit(ed.id, ed.text, ed.style) {
		ed.log.Warn("save dropped: element gone")
		return ErrElementGone
	}
	ed.log.Debug("saved", slog.Bool("bold", ed.style.Bold), slog.Bool("italic", ed.style.Italic),
		slog.Bool("underline", ed.style.Underline), slog.String("color", ed.style.Color))
	return nil
}

// Cancel discards the drafts and closes the editor without touching the store.
func (ed *Editor) Cancel() {
	ed.closed = true
}
