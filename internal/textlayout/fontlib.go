/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// GoFamily is the family name under which the bundled Go fonts are registered.
const GoFamily = "Go"

// FontLibrary stores loaded OpenType fonts mapped by family/bold/italic.
// It is safe for concurrent use once loading is done.
type FontLibrary struct {
	fonts map[fontKey]*opentype.Font
}

type fontKey struct {
	family string
	bold   bool
	italic bool
}

func NewFontLibrary() *FontLibrary { return &FontLibrary{fonts: make(map[fontKey]*opentype.Font)} }

// LoadTTF loads a font file into the library under the given family/style.
func (fl *FontLibrary) LoadTTF(family string, bold, italic bool, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	if err := fl.LoadBytes(family, bold, italic, data); err != nil {
		return fmt.Errorf("parse font %s: %w", path, err)
	}
	return nil
}

// LoadBytes parses an in-memory font.
func (fl *FontLibrary) LoadBytes(family string, bold, italic bool, data []byte) error {
	if fl.fonts == nil {
		fl.fonts = make(map[fontKey]*opentype.Font)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return err
	}
	fl.fonts[fontKey{family: family, bold: bold, italic: italic}] = f
	return nil
}

func (fl *FontLibrary) find(spec FontSpec) *opentype.Font {
	if fl == nil || fl.fonts == nil {
		return nil
	}
	if f, ok := fl.fonts[fontKey{family: spec.Family, bold: spec.Bold, italic: spec.Italic}]; ok {
		return f
	}
	// Same family, drop italic then bold.
	for _, k := range []fontKey{
		{family: spec.Family, bold: spec.Bold},
		{family: spec.Family, italic: spec.Italic},
		{family: spec.Family},
	} {
		if f, ok := fl.fonts[k]; ok {
			return f
		}
	}
	return nil
}

// GoFonts returns a library holding the four Go font faces under GoFamily.
func GoFonts() *FontLibrary {
	fl := NewFontLibrary()
	for _, v := range []struct {
		bold, italic bool
		data         []byte
	}{
		{false, false, goregular.TTF},
		{true, false, gobold.TTF},
		{false, true, goitalic.TTF},
		{true, true, gobolditalic.TTF},
	} {
		// The bundled fonts always parse.
		_ = fl.LoadBytes(GoFamily, v.bold, v.italic, v.data)
	}
	return fl
}

// OTProvider resolves FontSpec using a FontLibrary and falls back to another Provider.
// An empty family resolves to Family. Every call returns a fresh face because
// opentype faces must not be shared between goroutines.
type OTProvider struct {
	Lib      *FontLibrary
	Family   string
	DPI      float64 // default 72 if zero, making Size equal to pixels
	Fallback Provider
}

func (p *OTProvider) Resolve(spec FontSpec) (font.Face, Metrics) {
	if spec.Size <= 0 {
		spec.Size = 12
	}
	if spec.Family == "" {
		spec.Family = p.Family
	}
	dpi := p.DPI
	if dpi <= 0 {
		dpi = 72
	}
	if f := p.Lib.find(spec); f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: spec.Size, DPI: dpi, Hinting: font.HintingNone})
		if err == nil {
			return face, metricsOf(face)
		}
	}
	fb := p.Fallback
	if fb == nil {
		fb = BasicProvider{}
	}
	return fb.Resolve(spec)
}

var (
	defaultOnce     sync.Once
	defaultProvider *OTProvider
)

// DefaultProvider resolves every request against the bundled Go fonts.
func DefaultProvider() Provider {
	defaultOnce.Do(func() {
		defaultProvider = &OTProvider{Lib: GoFonts(), Family: GoFamily}
	})
	return defaultProvider
}

// NewProvider returns a provider that draws every style with the font at
// path and falls back to the Go fonts. An empty path yields DefaultProvider.
func NewProvider(path string) (Provider, error) {
	if path == "" {
		return DefaultProvider(), nil
	}
	lib := NewFontLibrary()
	if err := lib.LoadTTF("custom", false, false, path); err != nil {
		return nil, err
	}
	return &OTProvider{Lib: lib, Family: "custom", Fallback: DefaultProvider()}, nil
}
