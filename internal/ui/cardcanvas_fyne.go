//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"image/color"
	"math"
	"net/url"
	"strings"
	"sync"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/editor"
	"cardcanvas/internal/gesture"
	"cardcanvas/internal/scene"
	"cardcanvas/internal/textlayout"
	"cardcanvas/internal/vector"
)

// mousePointer is the router pointer id used for the (single) mouse.
const mousePointer = 1

// CardCanvas shows one card face and feeds mouse input into the face's
// gesture router. The wheel zooms around the cursor.
type CardCanvas struct {
	widget.BaseWidget

	mu     sync.Mutex
	sess   *editor.Session
	unsub  func()
	fonts  textlayout.Provider
	canvas domain.CanvasSize
	floor  float64

	// Interaction
	down bool
	last fyne.Position

	// OnDoubleTap is called when the user double-clicks the canvas.
	OnDoubleTap func()
}

// NewCardCanvas returns a canvas showing s.
func NewCardCanvas(s *editor.Session, cfg editor.Config) *CardCanvas {
	fonts := cfg.Fonts
	if fonts == nil {
		fonts = textlayout.DefaultProvider()
	}
	size := cfg.Canvas
	if !size.Valid() {
		size = editor.DefaultConfig().Canvas
	}
	c := &CardCanvas{fonts: fonts, canvas: size, floor: s.Store().SizeFloor()}
	c.ExtendBaseWidget(c)
	c.SetSession(s)
	return c
}

// SetSession switches the face shown by the canvas.
func (c *CardCanvas) SetSession(s *editor.Session) {
	c.mu.Lock()
	if c.unsub != nil {
		c.unsub()
	}
	if c.sess != nil && c.sess != s {
		c.sess.Router().Cancel()
	}
	c.sess = s
	c.down = false
	c.unsub = s.Store().Subscribe(func(scene.Event) { fyne.Do(c.Refresh) })
	c.mu.Unlock()
	c.Refresh()
}

// Session returns the face being shown.
func (c *CardCanvas) Session() *editor.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func pointerAt(pos fyne.Position) gesture.Pointer {
	return gesture.Pointer{ID: mousePointer, Pos: vector.Pt{X: float64(pos.X), Y: float64(pos.Y)}}
}

// MouseDown starts a gesture for the primary button.
func (c *CardCanvas) MouseDown(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary {
		return
	}
	s := c.Session()
	if s.Router().Down(pointerAt(e.Position)) {
		c.mu.Lock()
		c.down = true
		c.last = e.Position
		c.mu.Unlock()
	}
	c.Refresh()
}

// MouseUp ends the gesture when no drag happened (a click).
func (c *CardCanvas) MouseUp(e *desktop.MouseEvent) {
	c.release(e.Position)
}

// Dragged moves the claimed pointer.
func (c *CardCanvas) Dragged(e *fyne.DragEvent) {
	c.mu.Lock()
	if !c.down {
		c.mu.Unlock()
		return
	}
	c.last = e.Position
	s := c.sess
	c.mu.Unlock()
	s.Router().Move(pointerAt(e.Position))
	c.Refresh()
}

// DragEnd releases the pointer at its last position.
func (c *CardCanvas) DragEnd() {
	c.mu.Lock()
	pos := c.last
	c.mu.Unlock()
	c.release(pos)
}

func (c *CardCanvas) release(pos fyne.Position) {
	c.mu.Lock()
	if !c.down {
		c.mu.Unlock()
		return
	}
	c.down = false
	s := c.sess
	c.mu.Unlock()
	s.Router().Up(pointerAt(pos))
	c.Refresh()
}

// Scrolled zooms around the cursor while no gesture is active.
func (c *CardCanvas) Scrolled(e *fyne.ScrollEvent) {
	s := c.Session()
	if s.Router().State() != gesture.Idle {
		return
	}
	factor := math.Pow(1.0015, float64(e.Scrolled.DY))
	if s.Viewport().ZoomAt(vector.Pt{X: float64(e.Position.X), Y: float64(e.Position.Y)}, factor) {
		c.Refresh()
	}
}

// DoubleTapped forwards to OnDoubleTap.
func (c *CardCanvas) DoubleTapped(_ *fyne.PointEvent) {
	if c.OnDoubleTap != nil {
		c.OnDoubleTap()
	}
}

// MinSize keeps the whole card visible at scale 0.5.
func (c *CardCanvas) MinSize() fyne.Size {
	return fyne.NewSize(f32(c.canvas.W/2), f32(c.canvas.H/2))
}

// CreateRenderer builds the renderer; element visuals are rebuilt on every layout.
func (c *CardCanvas) CreateRenderer() fyne.WidgetRenderer {
	bg := canvas.NewRectangle(color.RGBA{R: 30, G: 30, B: 34, A: 255})
	card := canvas.NewRectangle(color.White)
	card.StrokeColor = color.RGBA{R: 20, G: 20, B: 20, A: 255}
	card.StrokeWidth = 1
	bbox := canvas.NewRectangle(color.Transparent)
	bbox.StrokeColor = color.RGBA{R: 0, G: 170, B: 255, A: 255}
	bbox.StrokeWidth = 1
	handle := canvas.NewRectangle(color.RGBA{R: 0, G: 170, B: 255, A: 255})
	handle.CornerRadius = 4
	return &cardCanvasRenderer{c: c, bg: bg, card: card, bbox: bbox, handle: handle, images: map[string]*canvas.Image{}}
}

// cardCanvasRenderer positions the card, its elements and the selection overlay.
type cardCanvasRenderer struct {
	c       *CardCanvas
	objects []fyne.CanvasObject
	bg      *canvas.Rectangle
	card    *canvas.Rectangle
	bbox    *canvas.Rectangle
	handle  *canvas.Rectangle
	images  map[string]*canvas.Image
}

func (r *cardCanvasRenderer) Destroy()                     {}
func (r *cardCanvasRenderer) Objects() []fyne.CanvasObject { return r.objects }
func (r *cardCanvasRenderer) MinSize() fyne.Size           { return r.c.MinSize() }
func (r *cardCanvasRenderer) Refresh()                     { r.Layout(r.c.Size()); canvas.Refresh(r.c) }

func (r *cardCanvasRenderer) Layout(size fyne.Size) {
	s := r.c.Session()
	m := s.Viewport().Matrix()
	_, scale := s.Viewport().Effective()

	r.bg.Resize(size)
	r.bg.Move(fyne.NewPos(0, 0))
	place(r.card, m.ApplyRect(vector.R(0, 0, r.c.canvas.W, r.c.canvas.H)))

	objs := []fyne.CanvasObject{r.bg, r.card}
	views := s.Store().Views()
	var selected *domain.Element
	for i := range views {
		e := views[i]
		if e.Selected {
			selected = &views[i]
		}
		switch e.Kind {
		case domain.KindImage:
			objs = append(objs, r.imageFor(e, m.ApplyRect(vector.R(e.Transform.X, e.Transform.Y, e.Size, e.Size))))
		case domain.KindText:
			objs = append(objs, r.textFor(e, m, scale)...)
		}
	}

	r.bbox.Hide()
	r.handle.Hide()
	if selected != nil {
		place(r.bbox, m.ApplyRect(gesture.Bounds(r.c.fonts, *selected, r.c.floor)))
		r.bbox.Show()
		if h, ok := s.Router().HandleRect(*selected); ok {
			place(r.handle, h)
			r.handle.Show()
		}
	}
	objs = append(objs, r.bbox, r.handle)
	r.objects = objs
}

func (r *cardCanvasRenderer) textFor(e domain.Element, m vector.Affine2D, scale float64) []fyne.CanvasObject {
	st := domain.DefaultStyle()
	if e.Style != nil {
		st = *e.Style
	}
	col, err := domain.ParseHexColor(st.Color)
	if err != nil {
		col = color.RGBA{A: 255}
	}
	block := textlayout.Layout(r.c.fonts, e.Content, textlayout.SpecFor(&st, e.Size))
	out := make([]fyne.CanvasObject, 0, len(block.Lines))
	for _, ln := range block.Lines {
		t := canvas.NewText(ln.Text, col)
		t.TextSize = f32(e.Size * scale)
		t.TextStyle = fyne.TextStyle{Bold: st.Bold, Italic: st.Italic, Underline: st.Underline}
		top := ln.Baseline - block.Metrics.Ascent
		p := m.Apply(vector.Pt{X: e.Transform.X, Y: e.Transform.Y + top})
		t.Move(fyne.NewPos(f32(p.X), f32(p.Y)))
		t.Resize(t.MinSize())
		out = append(out, t)
	}
	return out
}

func (r *cardCanvasRenderer) imageFor(e domain.Element, rect vector.Rect) fyne.CanvasObject {
	img, ok := r.images[e.Content]
	if !ok {
		if p, isFile := localPath(e.Content); isFile {
			img = canvas.NewImageFromFile(p)
			img.FillMode = canvas.ImageFillContain
		}
		r.images[e.Content] = img
	}
	if img == nil {
		ph := canvas.NewRectangle(color.RGBA{R: 0xDD, G: 0xDD, B: 0xDD, A: 0xFF})
		ph.StrokeColor = color.Black
		ph.StrokeWidth = 1
		place(ph, rect)
		return ph
	}
	place(img, rect)
	return img
}

// localPath resolves file:// URIs and plain paths.
func localPath(ref string) (string, bool) {
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return "", false
		}
		return u.Path, true
	}
	if strings.Contains(ref, "://") {
		return "", false
	}
	return ref, ref != ""
}

func place(o fyne.CanvasObject, r vector.Rect) {
	o.Move(fyne.NewPos(f32(r.X), f32(r.Y)))
	o.Resize(fyne.NewSize(f32(r.W), f32(r.H)))
}

func f32(v float64) float32 { return float32(v) }
