/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package gesture arbitrates pointer input for the canvas. A Router is a small
// state machine: the first pointer-down while idle decides the mode (canvas
// pan/zoom, element drag or element resize) and takes an exclusive claim that
// holds until every claimed pointer is released. Competing pointers are
// rejected for the lifetime of the claim.
package gesture

import (
	"log/slog"
	"math"
	"sync"

	"cardcanvas/internal/domain"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/scene"
	"cardcanvas/internal/textlayout"
	"cardcanvas/internal/vector"
	"cardcanvas/internal/viewport"
)

// State is the router mode.
type State int

const (
	Idle State = iota
	CanvasPanZoom
	ElementDrag
	ElementResize
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case CanvasPanZoom:
		return "canvas_pan_zoom"
	case ElementDrag:
		return "element_drag"
	case ElementResize:
		return "element_resize"
	}
	return "unknown"
}

// Pointer is one contact (mouse button or finger) in screen pixels.
type Pointer struct {
	ID  int
	Pos vector.Pt
}

// Config holds the tunables of the router.
type Config struct {
	ResizeDivisor float64 // canvas px of horizontal drag per unit of size
	HandleSize    float64 // resize handle side, screen px
	TapSlop       float64 // max movement (screen px) for a tap
}

// DefaultConfig returns divisor 10, a 24px handle and a 4px tap slop.
func DefaultConfig() Config {
	return Config{ResizeDivisor: 10, HandleSize: 24, TapSlop: 4}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ResizeDivisor <= 0 {
		c.ResizeDivisor = d.ResizeDivisor
	}
	if c.HandleSize <= 0 {
		c.HandleSize = d.HandleSize
	}
	if c.TapSlop < 0 {
		c.TapSlop = d.TapSlop
	}
	return c
}

// EndFunc observes every finished gesture; committed is false for taps,
// zero-length gestures and cancels.
type EndFunc func(mode State, committed bool)

// claim is the exclusive token held by the active gesture.
type claim struct {
	mode   State
	target int // element id; 0 for the canvas

	order []int             // claimed pointer ids, in arrival order
	start map[int]vector.Pt // segment start per pointer
	last  map[int]vector.Pt // latest position per pointer
	base  domain.Element    // element baseline for drag/resize
	scale float64           // committed canvas scale at gesture start
	moved bool              // exceeded the tap slop at least once
	multi bool              // more than one pointer joined at some point

	// canvas pan/zoom accumulation across pointer-set changes
	panAcc    vector.Pt
	factorAcc float64
	startDist float64
}

// Router is the gesture arbiter for one face.
type Router struct {
	mu    sync.Mutex
	store *scene.Store
	view  *viewport.Viewport
	fonts textlayout.Provider
	cfg   Config
	onEnd EndFunc
	c     *claim
	log   *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

func WithConfig(c Config) Option             { return func(r *Router) { r.cfg = c.withDefaults() } }
func WithFonts(p textlayout.Provider) Option { return func(r *Router) { r.fonts = p } }
func WithEndFunc(fn EndFunc) Option          { return func(r *Router) { r.onEnd = fn } }

// NewRouter returns an idle router driving store and view.
func NewRouter(store *scene.Store, view *viewport.Viewport, opts ...Option) *Router {
	r := &Router{
		store: store,
		view:  view,
		fonts: textlayout.DefaultProvider(),
		cfg:   DefaultConfig(),
		log:   applog.WithComponent("gesture"),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// State returns the current mode.
func (r *Router) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		return Idle
	}
	return r.c.mode
}

// Target returns the element id held by the active claim, or 0.
func (r *Router) Target() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		return 0
	}
	return r.c.target
}

// Bounds returns the hit region of e in canvas coordinates: a size×size square
// for images, the measured text block for text. Neither side is smaller than floor.
func Bounds(fonts textlayout.Provider, e domain.Element, floor float64) vector.Rect {
	w, h := e.Size, e.Size
	if e.IsText() {
		w, h = textlayout.Measure(fonts, e.Content, textlayout.SpecFor(e.Style, e.Size))
	}
	return vector.R(e.Transform.X, e.Transform.Y, math.Max(w, floor), math.Max(h, floor))
}

// HandleRect returns the resize handle of e in screen coordinates. Only the
// selected element has one.
func (r *Router) HandleRect(e domain.Element) (vector.Rect, bool) {
	if !e.Selected {
		return vector.Rect{}, false
	}
	b := r.view.Matrix().ApplyRect(Bounds(r.fonts, e, r.store.SizeFloor()))
	return vector.Centered(b.Max(), r.cfg.HandleSize), true
}

// hitTest returns the topmost element whose body contains the canvas point.
func (r *Router) hitTest(c vector.Pt) (domain.Element, bool) {
	views := r.store.Views()
	for i := len(views) - 1; i >= 0; i-- {
		if Bounds(r.fonts, views[i], r.store.SizeFloor()).Contains(c) {
			return views[i], true
		}
	}
	return domain.Element{}, false
}

// Down handles a pointer-down. It reports whether the pointer was accepted;
// a false return means another gesture holds the claim.
func (r *Router) Down(p Pointer) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return r.joinLocked(p)
	}
	c := &claim{
		order:     []int{p.ID},
		start:     map[int]vector.Pt{p.ID: p.Pos},
		last:      map[int]vector.Pt{p.ID: p.Pos},
		factorAcc: 1,
	}
	_, c.scale = r.view.Committed()

	if sel, ok := r.store.Selected(); ok {
		if h, ok := r.HandleRect(sel); ok && h.Contains(p.Pos) {
			c.mode, c.target, c.base = ElementResize, sel.ID, sel
			r.c = c
			r.log.Debug("claim", slog.String("mode", c.mode.String()), slog.Int("id", sel.ID))
			return true
		}
	}
	if e, ok := r.hitTest(r.view.ScreenToCanvas(p.Pos)); ok {
		r.store.SelectElement(e.ID)
		e.Selected = true
		c.mode, c.target, c.base = ElementDrag, e.ID, e
		r.c = c
		r.log.Debug("claim", slog.String("mode", c.mode.String()), slog.Int("id", e.ID))
		return true
	}
	c.mode = CanvasPanZoom
	r.view.Begin()
	r.c = c
	r.log.Debug("claim", slog.String("mode", c.mode.String()))
	return true
}

// joinLocked lets a second pointer join a canvas gesture as a pinch. Any
// other competing pointer is rejected.
func (r *Router) joinLocked(p Pointer) bool {
	c := r.c
	if _, dup := c.last[p.ID]; dup {
		return true
	}
	if c.mode != CanvasPanZoom || len(c.order) >= 2 {
		r.log.Debug("claim rejected", slog.String("held_by", c.mode.String()), slog.Int("pointer", p.ID))
		return false
	}
	r.foldSegmentLocked()
	c.order = append(c.order, p.ID)
	c.last[p.ID] = p.Pos
	c.multi = true
	r.startSegmentLocked()
	return true
}

// segment returns the pan delta and scale factor of the current pointer
// set relative to its start.
func (r *Router) segmentLocked() (vector.Pt, float64) {
	c := r.c
	switch len(c.order) {
	case 1:
		id := c.order[0]
		return c.last[id].Sub(c.start[id]), 1
	case 2:
		a, b := c.order[0], c.order[1]
		mid0 := c.start[a].Mid(c.start[b])
		mid1 := c.last[a].Mid(c.last[b])
		f := 1.0
		if c.startDist > 0 {
			f = c.last[a].Dist(c.last[b]) / c.startDist
		}
		// The canvas point under mid0 stays under mid1. k is the scale
		// change the viewport will actually apply after clamping.
		pan0, s0 := r.view.Committed()
		from := pan0.Add(c.panAcc)
		k := f
		if s1 := r.view.Clamp(s0 * c.factorAcc); s1 > 0 {
			k = r.view.Clamp(s0*c.factorAcc*f) / s1
		}
		d := mid1.Sub(mid0)
		return vector.Pt{
			X: d.X - (k-1)*(mid0.X-from.X),
			Y: d.Y - (k-1)*(mid0.Y-from.Y),
		}, f
	}
	return vector.Pt{}, 1
}

// foldSegmentLocked accumulates the current segment before the pointer set changes.
func (r *Router) foldSegmentLocked() {
	c := r.c
	d, f := r.segmentLocked()
	c.panAcc = c.panAcc.Add(d)
	if f > 0 {
		c.factorAcc *= f
	}
}

func (r *Router) startSegmentLocked() {
	c := r.c
	for _, id := range c.order {
		c.start[id] = c.last[id]
	}
	c.startDist = 0
	if len(c.order) == 2 {
		c.startDist = c.last[c.order[0]].Dist(c.last[c.order[1]])
	}
}

// Move handles pointer motion. Moves of pointers outside the claim are ignored.
func (r *Router) Move(p Pointer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.c
	if c == nil {
		return
	}
	if _, ok := c.last[p.ID]; !ok {
		return
	}
	c.last[p.ID] = p.Pos
	r.trackSlopLocked(p.ID)
	switch c.mode {
	case ElementDrag:
		dx, dy := r.dragDeltaLocked()
		r.store.SetPreview(c.target, dx, dy)
	case ElementResize:
		r.store.SetPreviewSize(c.target, r.resizeLocked())
	case CanvasPanZoom:
		d, f := r.segmentLocked()
		r.view.Update(c.panAcc.Add(d), c.factorAcc*f)
	}
}

func (r *Router) trackSlopLocked(id int) {
	c := r.c
	if !c.moved && c.last[id].Dist(c.start[id]) > r.cfg.TapSlop {
		c.moved = true
	}
}

// dragDeltaLocked converts the owner's screen delta into canvas space.
func (r *Router) dragDeltaLocked() (float64, float64) {
	c := r.c
	id := c.order[0]
	d := c.last[id].Sub(c.start[id])
	return d.X / c.scale, d.Y / c.scale
}

func (r *Router) resizeLocked() float64 {
	dx, _ := r.dragDeltaLocked()
	return math.Max(r.store.SizeFloor(), r.c.base.Size+dx/r.cfg.ResizeDivisor)
}

// Up handles a pointer release. When the last claimed pointer lifts, the
// gesture is flattened into the store (or the viewport) and the router
// returns to Idle.
func (r *Router) Up(p Pointer) {
	r.mu.Lock()
	c := r.c
	if c == nil {
		r.mu.Unlock()
		return
	}
	if _, ok := c.last[p.ID]; !ok {
		r.mu.Unlock()
		return
	}
	c.last[p.ID] = p.Pos
	r.trackSlopLocked(p.ID)

	if c.mode == CanvasPanZoom && len(c.order) > 1 {
		r.foldSegmentLocked()
		c.order = removeID(c.order, p.ID)
		delete(c.last, p.ID)
		delete(c.start, p.ID)
		r.startSegmentLocked()
		r.mu.Unlock()
		return
	}

	mode := c.mode
	committed := false
	switch mode {
	case ElementDrag:
		dx, dy := r.dragDeltaLocked()
		if dx != 0 || dy != 0 {
			committed = r.store.CommitTransform(c.target, dx, dy)
		} else {
			r.store.ClearPreview(c.target)
		}
	case ElementResize:
		size := r.resizeLocked()
		if size != c.base.Size {
			committed = r.store.CommitSize(c.target, size)
		} else {
			r.store.ClearPreview(c.target)
		}
	case CanvasPanZoom:
		if !c.moved && !c.multi {
			r.view.Abort()
			r.store.DeselectAll()
		} else {
			d, f := r.segmentLocked()
			r.view.Update(c.panAcc.Add(d), c.factorAcc*f)
			r.view.End()
			committed = true
		}
	}
	r.c = nil
	onEnd := r.onEnd
	r.log.Debug("release", slog.String("mode", mode.String()), slog.Bool("committed", committed))
	r.mu.Unlock()
	if onEnd != nil {
		onEnd(mode, committed)
	}
}

// Cancel aborts the active gesture without committing anything.
func (r *Router) Cancel() {
	r.mu.Lock()
	c := r.c
	if c == nil {
		r.mu.Unlock()
		return
	}
	switch c.mode {
	case ElementDrag, ElementResize:
		r.store.ClearPreview(c.target)
	case CanvasPanZoom:
		r.view.Abort()
	}
	r.c = nil
	onEnd := r.onEnd
	r.log.Debug("cancel", slog.String("mode", c.mode.String()))
	r.mu.Unlock()
	if onEnd != nil {
		onEnd(c.mode, false)
	}
}

func removeID(ids []int, id int) []int {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
