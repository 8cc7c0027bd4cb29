/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"cardcanvas/internal/domain"
)

// FontSpec describes a requested font. Size is in canvas pixels.
type FontSpec struct {
	Family string // logical family name; empty means the default family
	Size   float64
	Bold   bool
	Italic bool
}

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float64
}

// LineHeight is the distance between consecutive baselines.
func (m Metrics) LineHeight() float64 { return m.Ascent + m.Descent + m.LineGap }

// Provider maps FontSpec to a concrete font.Face.
type Provider interface {
	Resolve(FontSpec) (font.Face, Metrics)
}

// BasicProvider uses x/image/basicfont Face7x13 for deterministic tests.
// It ignores size and style.
type BasicProvider struct{}

func (BasicProvider) Resolve(FontSpec) (font.Face, Metrics) {
	f := basicfont.Face7x13
	return f, metricsOf(f)
}

func metricsOf(f font.Face) Metrics {
	m := f.Metrics()
	return Metrics{
		Ascent:  float64(m.Ascent.Round()),
		Descent: float64(m.Descent.Round()),
		LineGap: float64(m.Height.Round() - m.Ascent.Round() - m.Descent.Round()),
	}
}

// Line is one laid out line. Baseline is measured from the block top.
type Line struct {
	Text     string
	Width    float64
	Baseline float64
}

// Block is a measured multi-line text body. Lines break only on '\n'.
type Block struct {
	Lines   []Line
	Width   float64
	Height  float64
	Metrics Metrics
	Face    font.Face
}

// SpecFor returns the font request for a text element of the given size.
func SpecFor(st *domain.TextStyle, size float64) FontSpec {
	spec := FontSpec{Size: size}
	if st != nil {
		spec.Bold = st.Bold
		spec.Italic = st.Italic
	}
	return spec
}

// Layout measures text with the face resolved for spec.
func Layout(p Provider, text string, spec FontSpec) Block {
	if p == nil {
		p = DefaultProvider()
	}
	face, met := p.Resolve(spec)
	d := &font.Drawer{Face: face}
	b := Block{Metrics: met, Face: face}
	y := met.Ascent
	for i, s := range strings.Split(text, "\n") {
		if i > 0 {
			y += met.LineHeight()
		}
		w := advance(d, s)
		b.Lines = append(b.Lines, Line{Text: s, Width: w, Baseline: y})
		if w > b.Width {
			b.Width = w
		}
	}
	b.Height = y + met.Descent
	return b
}

func advance(d *font.Drawer, s string) float64 {
	return float64(d.MeasureString(s)) / 64 // fixed.Int26_6 to px
}

// Measure returns the width and height of text without building lines.
func Measure(p Provider, text string, spec FontSpec) (w, h float64) {
	b := Layout(p, text, spec)
	return b.Width, b.Height
}
