/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package gesture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/scene"
	"cardcanvas/internal/vector"
	"cardcanvas/internal/viewport"
)

type fixture struct {
	store   *scene.Store
	view    *viewport.Viewport
	router  *Router
	commits int
	ends    []State
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{}
	f.store = scene.New(scene.WithCommitHook(func([]domain.Element) { f.commits++ }))
	f.view = viewport.New(0.1, 10)
	f.router = NewRouter(f.store, f.view, WithEndFunc(func(s State, _ bool) { f.ends = append(f.ends, s) }))
	return f
}

func pt(x, y float64) vector.Pt { return vector.Pt{X: x, Y: y} }

func (f *fixture) get(t *testing.T, id int) domain.Element {
	t.Helper()
	e, ok := f.store.Get(id)
	require.True(t, ok)
	return e
}

func TestExclusiveClaimBlocksSecondElement(t *testing.T) {
	f := newFixture(t)
	a := f.store.AddImage("a")
	b := f.store.AddImage("b")
	require.True(t, f.store.CommitTransform(b, 150, 0)) // B at (200,50)

	require.True(t, f.router.Down(Pointer{ID: 1, Pos: pt(100, 100)}))
	require.Equal(t, ElementDrag, f.router.State())
	require.Equal(t, a, f.router.Target())

	assert.False(t, f.router.Down(Pointer{ID: 2, Pos: pt(250, 100)}), "second element must not take the claim")
	assert.True(t, f.get(t, a).Selected)
	assert.False(t, f.get(t, b).Selected)

	f.router.Move(Pointer{ID: 1, Pos: pt(120, 110)})
	f.router.Move(Pointer{ID: 2, Pos: pt(280, 100)})
	f.router.Up(Pointer{ID: 2, Pos: pt(280, 100)})

	va, _ := f.store.View(a)
	assert.Equal(t, domain.Transform{X: 70, Y: 60}, va.Transform)
	vb, _ := f.store.View(b)
	assert.Equal(t, domain.Transform{X: 200, Y: 50}, vb.Transform)
	assert.False(t, vb.Selected)
	assert.Equal(t, ElementDrag, f.router.State())

	f.router.Up(Pointer{ID: 1, Pos: pt(120, 110)})
	assert.Equal(t, Idle, f.router.State())
	assert.Equal(t, domain.Transform{X: 70, Y: 60}, f.get(t, a).Transform)
	assert.Equal(t, domain.Transform{X: 200, Y: 50}, f.get(t, b).Transform)
	assert.False(t, f.get(t, b).Selected)

	// After release B can be claimed.
	require.True(t, f.router.Down(Pointer{ID: 3, Pos: pt(250, 100)}))
	assert.Equal(t, b, f.router.Target())
	assert.True(t, f.get(t, b).Selected)
	assert.False(t, f.get(t, a).Selected)
}

func TestDragCommitsOnceAtRelease(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddImage("x")
	base := f.commits

	f.router.Down(Pointer{ID: 1, Pos: pt(60, 60)})
	for i := 1; i <= 10; i++ {
		f.router.Move(Pointer{ID: 1, Pos: pt(60+float64(i)*3, 60)})
	}
	assert.Equal(t, base, f.commits, "no commits for in-gesture frames")
	assert.Equal(t, domain.DefaultPosition, f.get(t, id).Transform)

	f.router.Up(Pointer{ID: 1, Pos: pt(90, 60)})
	assert.Equal(t, base+1, f.commits)
	assert.Equal(t, domain.Transform{X: 80, Y: 50}, f.get(t, id).Transform)
	assert.Equal(t, []State{ElementDrag}, f.ends)
}

func TestZeroLengthDragSelectsWithoutCommit(t *testing.T) {
	f := newFixture(t)
	a := f.store.AddImage("a")
	f.store.AddImage("b") // selected, stacked on top of a at the same spot
	base := f.commits

	f.router.Down(Pointer{ID: 1, Pos: pt(60, 60)})
	f.router.Up(Pointer{ID: 1, Pos: pt(60, 60)})
	assert.Equal(t, base, f.commits)
	sel, ok := f.store.Selected()
	require.True(t, ok)
	assert.NotEqual(t, a, sel.ID, "topmost element wins the hit test")
}

func TestResizeViaHandle(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddImage("x") // selected, bounds 50..150
	h, ok := f.router.HandleRect(f.get(t, id))
	require.True(t, ok)
	assert.Equal(t, vector.R(138, 138, 24, 24), h)

	require.True(t, f.router.Down(Pointer{ID: 1, Pos: pt(158, 158)}))
	require.Equal(t, ElementResize, f.router.State())
	f.router.Move(Pointer{ID: 1, Pos: pt(258, 300)})
	v, _ := f.store.View(id)
	assert.Equal(t, 110.0, v.Size)
	assert.Equal(t, domain.DefaultImageSize, f.get(t, id).Size)

	f.router.Up(Pointer{ID: 1, Pos: pt(258, 300)})
	assert.Equal(t, 110.0, f.get(t, id).Size)
	assert.Equal(t, domain.DefaultPosition, f.get(t, id).Transform)
}

func TestResizeNeverBelowFloor(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddImage("x")
	f.router.Down(Pointer{ID: 1, Pos: pt(150, 150)})
	require.Equal(t, ElementResize, f.router.State())
	f.router.Move(Pointer{ID: 1, Pos: pt(-1e6, 150)})
	v, _ := f.store.View(id)
	assert.Equal(t, f.store.SizeFloor(), v.Size)
	f.router.Up(Pointer{ID: 1, Pos: pt(-1e6, 150)})
	assert.Equal(t, f.store.SizeFloor(), f.get(t, id).Size)
}

func TestHandleOnlyForSelected(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddImage("x")
	f.store.DeselectAll()
	_, ok := f.router.HandleRect(f.get(t, id))
	assert.False(t, ok)

	// (160,160) is outside the body and would be on the handle if selected.
	f.router.Down(Pointer{ID: 1, Pos: pt(160, 160)})
	assert.Equal(t, CanvasPanZoom, f.router.State())
	f.router.Cancel()
}

func TestTapOnEmptyCanvasDeselects(t *testing.T) {
	f := newFixture(t)
	f.store.AddText()
	base := f.commits

	f.router.Down(Pointer{ID: 1, Pos: pt(600, 400)})
	f.router.Move(Pointer{ID: 1, Pos: pt(602, 401)})
	f.router.Up(Pointer{ID: 1, Pos: pt(602, 401)})

	_, ok := f.store.Selected()
	assert.False(t, ok)
	pan, scale := f.view.Committed()
	assert.Equal(t, vector.Pt{}, pan)
	assert.Equal(t, 1.0, scale)
	assert.Equal(t, base, f.commits)
}

func TestPanDoesNotDeselectOrMoveElements(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddText()
	f.router.Down(Pointer{ID: 1, Pos: pt(600, 400)})
	f.router.Move(Pointer{ID: 1, Pos: pt(630, 420)})

	pan, _ := f.view.Committed()
	assert.Equal(t, vector.Pt{}, pan, "pan applies only at release")
	live, _ := f.view.Effective()
	assert.Equal(t, pt(30, 20), live)

	f.router.Up(Pointer{ID: 1, Pos: pt(630, 420)})
	pan, _ = f.view.Committed()
	assert.Equal(t, pt(30, 20), pan)
	assert.True(t, f.get(t, id).Selected)
	assert.Equal(t, domain.DefaultPosition, f.get(t, id).Transform)
}

func TestPinchScalesAndRejectsThirdPointer(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.router.Down(Pointer{ID: 1, Pos: pt(400, 300)}))
	require.True(t, f.router.Down(Pointer{ID: 2, Pos: pt(600, 300)}))
	assert.False(t, f.router.Down(Pointer{ID: 3, Pos: pt(700, 500)}))

	// midpoint 500 -> 600 at twice the spread: canvas x=500 lands on 600
	f.router.Move(Pointer{ID: 2, Pos: pt(800, 300)})
	pan, scale := f.view.Effective()
	assert.InDelta(t, 2.0, scale, 1e-9)
	assert.InDelta(t, -400.0, pan.X, 1e-9)

	f.router.Up(Pointer{ID: 2, Pos: pt(800, 300)})
	assert.Equal(t, CanvasPanZoom, f.router.State())
	f.router.Up(Pointer{ID: 1, Pos: pt(400, 300)})
	assert.Equal(t, Idle, f.router.State())

	pan, scale = f.view.Committed()
	assert.InDelta(t, 2.0, scale, 1e-9)
	assert.InDelta(t, -400.0, pan.X, 1e-9)
	assert.InDelta(t, -300.0, pan.Y, 1e-9)
}

func TestPinchKeepsCanvasPointUnderMidpoint(t *testing.T) {
	f := newFixture(t)
	f.view.Begin()
	f.view.Update(pt(50, -20), 1.5)
	f.view.End()

	a0, b0 := pt(300, 200), pt(500, 400)
	anchor := f.view.ScreenToCanvas(a0.Mid(b0))
	require.True(t, f.router.Down(Pointer{ID: 1, Pos: a0}))
	require.True(t, f.router.Down(Pointer{ID: 2, Pos: b0}))

	// spread and shift both pointers
	a1, b1 := pt(250, 180), pt(650, 580)
	f.router.Move(Pointer{ID: 1, Pos: a1})
	f.router.Move(Pointer{ID: 2, Pos: b1})
	live := f.view.Matrix().Apply(anchor)
	assert.InDelta(t, a1.Mid(b1).X, live.X, 1e-6)
	assert.InDelta(t, a1.Mid(b1).Y, live.Y, 1e-6)

	// lift one finger, keep panning with the other, then a second pinch
	f.router.Up(Pointer{ID: 1, Pos: a1})
	f.router.Move(Pointer{ID: 2, Pos: pt(700, 600)})
	require.True(t, f.router.Down(Pointer{ID: 3, Pos: pt(500, 600)}))
	anchor = screenToCanvas(f.view, pt(600, 600))
	f.router.Move(Pointer{ID: 3, Pos: pt(400, 600)})
	live = f.view.Matrix().Apply(anchor)
	assert.InDelta(t, 550.0, live.X, 1e-6)
	assert.InDelta(t, 600.0, live.Y, 1e-6)

	f.router.Up(Pointer{ID: 3, Pos: pt(400, 600)})
	f.router.Up(Pointer{ID: 2, Pos: pt(700, 600)})
	got := f.view.Matrix().Apply(anchor)
	assert.InDelta(t, 550.0, got.X, 1e-6)
	assert.InDelta(t, 600.0, got.Y, 1e-6)
	_, scale := f.view.Committed()
	assert.InDelta(t, 1.5*2*1.5, scale, 1e-9)
}

func TestPinchFocusHoldsAtScaleLimit(t *testing.T) {
	f := newFixture(t)
	require.True(t, f.router.Down(Pointer{ID: 1, Pos: pt(100, 100)}))
	require.True(t, f.router.Down(Pointer{ID: 2, Pos: pt(110, 100)}))
	anchor := f.view.ScreenToCanvas(pt(105, 100))

	// 50x the spread is clamped to the 10x limit
	f.router.Move(Pointer{ID: 2, Pos: pt(600, 100)})
	mid := pt(100, 100).Mid(pt(600, 100))
	_, scale := f.view.Effective()
	assert.InDelta(t, 10.0, scale, 1e-9)
	live := f.view.Matrix().Apply(anchor)
	assert.InDelta(t, mid.X, live.X, 1e-6)
	assert.InDelta(t, mid.Y, live.Y, 1e-6)
}

// screenToCanvas maps p through the live transform of v.
func screenToCanvas(v *viewport.Viewport, p vector.Pt) vector.Pt {
	return v.Matrix().Invert().Apply(p)
}

func TestDragDeltaIsCanvasSpace(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddImage("x")
	f.view.Begin()
	f.view.Update(vector.Pt{}, 2)
	f.view.End()

	// Element covers screen 100..300 at scale 2.
	require.True(t, f.router.Down(Pointer{ID: 1, Pos: pt(200, 200)}))
	require.Equal(t, ElementDrag, f.router.State())
	f.router.Move(Pointer{ID: 1, Pos: pt(300, 200)})
	f.router.Up(Pointer{ID: 1, Pos: pt(300, 200)})
	assert.Equal(t, domain.Transform{X: 100, Y: 50}, f.get(t, id).Transform)
}

func TestCancelAbortsWithoutCommit(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddImage("x")
	base := f.commits
	f.router.Down(Pointer{ID: 1, Pos: pt(60, 60)})
	f.router.Move(Pointer{ID: 1, Pos: pt(160, 60)})
	f.router.Cancel()

	assert.Equal(t, Idle, f.router.State())
	assert.Equal(t, base, f.commits)
	v, _ := f.store.View(id)
	assert.Equal(t, domain.DefaultPosition, v.Transform)
}

func TestTextHitRegionIsMeasured(t *testing.T) {
	f := newFixture(t)
	id := f.store.AddText()
	b := Bounds(f.router.fonts, f.get(t, id), f.store.SizeFloor())
	assert.Greater(t, b.W, f.store.SizeFloor())
	assert.Greater(t, b.H, f.store.SizeFloor())

	f.store.DeselectAll()
	require.True(t, f.router.Down(Pointer{ID: 1, Pos: pt(55, 60)}))
	assert.Equal(t, ElementDrag, f.router.State())
	assert.Equal(t, id, f.router.Target())
	f.router.Up(Pointer{ID: 1, Pos: pt(55, 60)})
}
