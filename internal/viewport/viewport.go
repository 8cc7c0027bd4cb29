/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package viewport holds the session-only canvas pan/zoom. Values change only
// when a gesture ends; while a gesture is live the pending pan/scale is kept
// aside so rendering can preview it without touching the committed baseline.
package viewport

import (
	"math"
	"sync"

	"cardcanvas/internal/vector"
)

const (
	DefaultMinScale = 0.1
	DefaultMaxScale = 10.0
)

// Viewport is the canvas transform: screen = pan + scale*canvas.
type Viewport struct {
	mu       sync.Mutex
	pan      vector.Pt
	scale    float64
	minScale float64
	maxScale float64

	active bool
	dPan   vector.Pt
	factor float64
}

// New returns a viewport at pan=0, scale=1 with scale clamped to [min,max].
// Non-positive or inverted bounds fall back to the defaults.
func New(minScale, maxScale float64) *Viewport {
	if minScale <= 0 {
		minScale = DefaultMinScale
	}
	if maxScale < minScale {
		maxScale = math.Max(DefaultMaxScale, minScale)
	}
	return &Viewport{scale: 1, minScale: minScale, maxScale: maxScale, factor: 1}
}

func (v *Viewport) clamp(s float64) float64 {
	if math.IsNaN(s) || math.IsInf(s, 0) {
		return v.scale
	}
	return math.Min(v.maxScale, math.Max(v.minScale, s))
}

// Clamp returns s limited to the scale bounds.
func (v *Viewport) Clamp(s float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.clamp(s)
}

// Committed returns the pan and scale as of the last gesture release.
func (v *Viewport) Committed() (vector.Pt, float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.pan, v.scale
}

// Effective returns the pan and scale including a live gesture, if any.
func (v *Viewport) Effective() (vector.Pt, float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return v.pan, v.scale
	}
	return v.pan.Add(v.dPan), v.clamp(v.scale * v.factor)
}

// Begin starts a gesture using the committed values as baseline.
func (v *Viewport) Begin() {
	v.mu.Lock()
	v.active = true
	v.dPan = vector.Pt{}
	v.factor = 1
	v.mu.Unlock()
}

// Update sets the in-gesture pan delta (screen px) and scale factor, both
// relative to the baseline captured by Begin. A non-positive factor is ignored.
func (v *Viewport) Update(dPan vector.Pt, factor float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return
	}
	v.dPan = dPan
	if factor > 0 && !math.IsInf(factor, 0) {
		v.factor = factor
	}
}

// End folds the live delta into the committed values.
func (v *Viewport) End() {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.active {
		return
	}
	v.pan = v.pan.Add(v.dPan)
	v.scale = v.clamp(v.scale * v.factor)
	v.active = false
	v.dPan = vector.Pt{}
	v.factor = 1
}

// Abort drops the live delta.
func (v *Viewport) Abort() {
	v.mu.Lock()
	v.active = false
	v.dPan = vector.Pt{}
	v.factor = 1
	v.mu.Unlock()
}

// Active reports whether a gesture is in progress.
func (v *Viewport) Active() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.active
}

// Reset returns to pan=0, scale=1.
func (v *Viewport) Reset() {
	v.mu.Lock()
	v.pan = vector.Pt{}
	v.scale = 1
	v.active = false
	v.dPan = vector.Pt{}
	v.factor = 1
	v.mu.Unlock()
}

// Matrix maps canvas coordinates to screen coordinates using the effective values.
func (v *Viewport) Matrix() vector.Affine2D {
	p, s := v.Effective()
	return vector.Translate(p.X, p.Y).Mul(vector.Scale(s, s))
}

// ScreenToCanvas maps a screen point through the committed transform.
func (v *Viewport) ScreenToCanvas(p vector.Pt) vector.Pt {
	pan, s := v.Committed()
	return vector.Translate(pan.X, pan.Y).Mul(vector.Scale(s, s)).Invert().Apply(p)
}

// ZoomAt scales by factor around the screen point p, keeping the canvas
// point under p fixed. It is a complete gesture (Begin, Update, End) and is
// ignored while another gesture is active.
func (v *Viewport) ZoomAt(p vector.Pt, factor float64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.active || factor <= 0 || math.IsInf(factor, 0) || math.IsNaN(factor) {
		return false
	}
	s := v.clamp(v.scale * factor)
	k := s / v.scale
	v.pan = vector.Pt{X: p.X - (p.X-v.pan.X)*k, Y: p.Y - (p.Y-v.pan.Y)*k}
	v.scale = s
	return true
}
