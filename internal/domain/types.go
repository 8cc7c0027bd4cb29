/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the core data model of the card canvas: faces, elements
// and their text styles, plus the JSON records used to persist a face layout.

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// Face is one side of the card. Each face owns an independent element collection.
type Face string

const (
	FaceFront Face = "front"
	FaceBack  Face = "back"
)

// StorageKey returns the key-value store key holding the face layout.
func (f Face) StorageKey() string { return string(f) + " design state" }

// Valid reports whether f names a known face.
func (f Face) Valid() bool { return f == FaceFront || f == FaceBack }

// ParseFace accepts "front"/"back" in any case.
func ParseFace(s string) (Face, error) {
	f := Face(strings.ToLower(strings.TrimSpace(s)))
	if !f.Valid() {
		return "", fmt.Errorf("unknown face %q (want front or back)", s)
	}
	return f, nil
}

// Kind discriminates element variants.
type Kind string

const (
	KindText  Kind = "text"
	KindImage Kind = "image"
)

// Defaults for newly created elements. Sizes are absolute canvas pixels.
const (
	DefaultSizeFloor = 10.0
	DefaultTextSize  = 24.0
	DefaultImageSize = 100.0
	DefaultColor     = "#000000"
	DefaultText      = "Text"
)

// DefaultPosition is where add actions place new elements.
var DefaultPosition = Transform{X: 50, Y: 50}

// Transform is an element's absolute position on the canvas, in canvas pixels.
type Transform struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns t translated by dx, dy.
func (t Transform) Add(dx, dy float64) Transform { return Transform{X: t.X + dx, Y: t.Y + dy} }

// TextStyle is the style record of a text element.
type TextStyle struct {
	Bold      bool   `json:"bold"`
	Italic    bool   `json:"italic"`
	Underline bool   `json:"underline"`
	Color     string `json:"color"` // #RRGGBB
}

// DefaultStyle returns the style given to new text elements.
func DefaultStyle() TextStyle { return TextStyle{Color: DefaultColor} }

// Element is a single placed text or image item on one card face.
// Content is the text body for KindText and an opaque content reference for KindImage.
type Element struct {
	ID        int
	Kind      Kind
	Content   string
	Transform Transform
	Size      float64
	Style     *TextStyle // only for KindText
	Selected  bool
}

// IsText reports whether the element is a text element.
func (e Element) IsText() bool { return e.Kind == KindText }

// Clone returns a deep copy (the style pointer is not shared).
func (e Element) Clone() Element {
	c := e
	if e.Style != nil {
		s := *e.Style
		c.Style = &s
	}
	return c
}

// CanvasSize is the pixel size of the canvas a layout is edited on.
type CanvasSize struct {
	W float64
	H float64
}

// Valid reports whether both dimensions are positive.
func (c CanvasSize) Valid() bool { return c.W > 0 && c.H > 0 }

// Palette is the fixed set of text colors offered by the style editor.
var Palette = []string{
	"#000000",
	"#FFFFFF",
	"#FF0000",
	"#00A651",
	"#0057FF",
	"#FFD400",
	"#FF7A00",
	"#8E44AD",
}

// InPalette reports whether hex (any case) is one of the palette colors.
func InPalette(hex string) bool {
	n := strings.ToUpper(strings.TrimSpace(hex))
	for _, p := range Palette {
		if p == n {
			return true
		}
	}
	return false
}

var errBadColor = errors.New("color must be #RRGGBB")

// ParseHexColor converts "#RRGGBB" into an opaque RGBA color.
func ParseHexColor(hex string) (color.RGBA, error) {
	s := strings.TrimSpace(hex)
	if len(s) != 7 || s[0] != '#' {
		return color.RGBA{}, errBadColor
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return color.RGBA{}, errBadColor
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

// Persisted layout records. Positions are canvas-relative fractions; size is absolute.

// Position is a canvas-relative position (fractions of canvas width/height).
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// ElementRecord is one entry of a persisted face layout.
// Exactly one of Text or URI is set; it determines the element kind.
type ElementRecord struct {
	ID        int        `json:"id"`
	Text      *string    `json:"text,omitempty"`
	URI       *string    `json:"uri,omitempty"`
	Position  Position   `json:"position"`
	Size      float64    `json:"size"`
	TextStyle *TextStyle `json:"textStyle,omitempty"`
}
