/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package scene owns the element collection of one card face: ids, z-order,
// selection and the live in-gesture preview overlay. Mutations that change
// persisted state ("commits") invoke the commit hook exactly once each;
// observers are notified through Subscribe.
package scene

import (
	"log/slog"
	"math"
	"strings"
	"sync"

	"cardcanvas/internal/domain"
	applog "cardcanvas/internal/log"
)

// EventKind describes what changed in the store.
type EventKind int

const (
	EventAdded EventKind = iota
	EventDeleted
	EventChanged
	EventSelection
	EventPreview
	EventHydrated
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventDeleted:
		return "deleted"
	case EventChanged:
		return "changed"
	case EventSelection:
		return "selection"
	case EventPreview:
		return "preview"
	case EventHydrated:
		return "hydrated"
	}
	return "unknown"
}

// Event is delivered to subscribers after the store lock is released.
// ID is zero for store-wide events (selection cleared, hydration).
type Event struct {
	Kind EventKind
	ID   int
}

// CommitHook receives a snapshot of the committed element list. It runs while
// the store is locked so snapshots arrive in commit order; it must not block
// or call back into the store.
type CommitHook func(elems []domain.Element)

// Preview is the in-gesture delta layered over an element's committed state.
type Preview struct {
	DX, DY  float64
	Size    float64
	HasSize bool
}

// Store is the scene store of one face. It is safe for concurrent use; the
// editor drives it from a single logical sequence and readers (renderer,
// preview server) take snapshots.
type Store struct {
	mu      sync.Mutex
	elems   []domain.Element // z-order: last is topmost
	nextID  int
	floor   float64
	preview map[int]Preview
	hook    CommitHook

	subMu  sync.Mutex
	subs   map[int]func(Event)
	subSeq int

	log *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithSizeFloor overrides the minimum element size.
func WithSizeFloor(f float64) Option {
	return func(s *Store) {
		if f > 0 {
			s.floor = f
		}
	}
}

// WithCommitHook installs the hook invoked on every commit.
func WithCommitHook(h CommitHook) Option { return func(s *Store) { s.hook = h } }

// New returns an empty store whose first id is 1.
func New(opts ...Option) *Store {
	s := &Store{
		nextID:  1,
		floor:   domain.DefaultSizeFloor,
		preview: make(map[int]Preview),
		subs:    make(map[int]func(Event)),
		log:     applog.WithComponent("scene"),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// SetCommitHook replaces the commit hook. Passing nil disables it.
func (s *Store) SetCommitHook(h CommitHook) {
	s.mu.Lock()
	s.hook = h
	s.mu.Unlock()
}

// SizeFloor returns the minimum size enforced on commits.
func (s *Store) SizeFloor() float64 { return s.floor }

// Subscribe registers fn for change events and returns a function that removes it.
func (s *Store) Subscribe(fn func(Event)) (cancel func()) {
	s.subMu.Lock()
	s.subSeq++
	id := s.subSeq
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) emit(evs ...Event) {
	if len(evs) == 0 {
		return
	}
	s.subMu.Lock()
	fns := make([]func(Event), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, ev := range evs {
		for _, fn := range fns {
			fn(ev)
		}
	}
}

// commitLocked hands a snapshot to the hook. Caller holds s.mu.
func (s *Store) commitLocked(op string, id int) {
	applog.WithOperation(s.log, op).Debug("commit", slog.Int("id", id), slog.Int("elements", len(s.elems)))
	if s.hook != nil {
		s.hook(s.snapshotLocked())
	}
}

func (s *Store) snapshotLocked() []domain.Element {
	out := make([]domain.Element, len(s.elems))
	for i, e := range s.elems {
		out[i] = e.Clone()
	}
	return out
}

func (s *Store) indexLocked(id int) int {
	for i := range s.elems {
		if s.elems[i].ID == id {
			return i
		}
	}
	return -1
}

// selectOnlyLocked marks idx selected and clears every other flag.
func (s *Store) selectOnlyLocked(idx int) {
	for i := range s.elems {
		s.elems[i].Selected = i == idx
	}
}

func (s *Store) clampSize(v float64) float64 {
	if math.IsNaN(v) || v < s.floor {
		return s.floor
	}
	return v
}

// AddText appends a text element with default content and style, selects it
// and commits. It returns the new id.
func (s *Store) AddText() int {
	st := domain.DefaultStyle()
	return s.add(domain.Element{
		Kind:      domain.KindText,
		Content:   domain.DefaultText,
		Transform: domain.DefaultPosition,
		Size:      domain.DefaultTextSize,
		Style:     &st,
	}, "add_text")
}

// AddImage appends an image element holding the opaque content reference uri.
func (s *Store) AddImage(uri string) int {
	return s.add(domain.Element{
		Kind:      domain.KindImage,
		Content:   uri,
		Transform: domain.DefaultPosition,
		Size:      domain.DefaultImageSize,
	}, "add_image")
}

func (s *Store) add(e domain.Element, op string) int {
	s.mu.Lock()
	e.ID = s.nextID
	s.nextID++
	e.Size = s.clampSize(e.Size)
	s.elems = append(s.elems, e)
	s.selectOnlyLocked(len(s.elems) - 1)
	s.commitLocked(op, e.ID)
	s.mu.Unlock()
	s.emit(Event{Kind: EventAdded, ID: e.ID}, Event{Kind: EventSelection, ID: e.ID})
	return e.ID
}

// DeleteElement removes id. Unknown ids are a no-op and report false.
func (s *Store) DeleteElement(id int) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.elems = append(s.elems[:i], s.elems[i+1:]...)
	delete(s.preview, id)
	s.commitLocked("delete", id)
	s.mu.Unlock()
	s.emit(Event{Kind: EventDeleted, ID: id})
	return true
}

// SelectElement makes id the only selected element. Selection is not
// persisted, so it does not commit. Unknown ids are a no-op.
func (s *Store) SelectElement(id int) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	changed := !s.elems[i].Selected
	for j := range s.elems {
		if j != i && s.elems[j].Selected {
			changed = true
		}
	}
	s.selectOnlyLocked(i)
	s.mu.Unlock()
	if changed {
		s.emit(Event{Kind: EventSelection, ID: id})
	}
	return true
}

// DeselectAll clears the selection flag on every element.
func (s *Store) DeselectAll() {
	s.mu.Lock()
	changed := false
	for i := range s.elems {
		if s.elems[i].Selected {
			s.elems[i].Selected = false
			changed = true
		}
	}
	s.mu.Unlock()
	if changed {
		s.emit(Event{Kind: EventSelection})
	}
}

// CommitTransform folds a translation into the element's absolute position.
// Any preview for id is cleared.
func (s *Store) CommitTransform(id int, dx, dy float64) bool {
	return s.mutate(id, "commit_transform", func(e *domain.Element) bool {
		e.Transform = e.Transform.Add(dx, dy)
		return true
	})
}

// CommitSize sets an absolute size, never below the floor.
func (s *Store) CommitSize(id int, size float64) bool {
	return s.mutate(id, "commit_size", func(e *domain.Element) bool {
		e.Size = s.clampSize(size)
		return true
	})
}

// UpdateStyle replaces the style of a text element. Image elements carry no
// style and report false. A missing or malformed color keeps the current one.
func (s *Store) UpdateStyle(id int, st domain.TextStyle) bool {
	return s.mutate(id, "update_style", func(e *domain.Element) bool {
		if !e.IsText() {
			return false
		}
		st = normalizeStyle(st, e.Style)
		e.Style = &st
		return true
	})
}

// normalizeStyle makes st.Color a canonical #RRGGBB, falling back to prev's
// color and then to the default, so every committed style stays loadable.
func normalizeStyle(st domain.TextStyle, prev *domain.TextStyle) domain.TextStyle {
	if _, err := domain.ParseHexColor(st.Color); err != nil {
		st.Color = domain.DefaultColor
		if prev != nil {
			if _, err := domain.ParseHexColor(prev.Color); err == nil {
				st.Color = prev.Color
			}
		}
	}
	st.Color = strings.ToUpper(strings.TrimSpace(st.Color))
	return st
}

// UpdateText replaces the body of a text element.
func (s *Store) UpdateText(id int, text string) bool {
	return s.mutate(id, "update_text", func(e *domain.Element) bool {
		if !e.IsText() {
			return false
		}
		e.Content = text
		return true
	})
}

// ApplyTextEdit writes text and style back as one commit.
func (s *Store) ApplyTextEdit(id int, text string, st domain.TextStyle) bool {
	return s.mutate(id, "apply_text_edit", func(e *domain.Element) bool {
		if !e.IsText() {
			return false
		}
		e.Content = text
		st = normalizeStyle(st, e.Style)
		e.Style = &st
		return true
	})
}

func (s *Store) mutate(id int, op string, fn func(e *domain.Element) bool) bool {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	e := s.elems[i].Clone()
	if !fn(&e) {
		s.mu.Unlock()
		return false
	}
	s.elems[i] = e
	delete(s.preview, id)
	s.commitLocked(op, id)
	s.mu.Unlock()
	s.emit(Event{Kind: EventChanged, ID: id})
	return true
}

// SetPreview records an in-gesture translation for id without committing.
func (s *Store) SetPreview(id int, dx, dy float64) bool {
	return s.setPreview(id, func(p *Preview) { p.DX, p.DY = dx, dy })
}

// SetPreviewSize records an in-gesture size for id, clamped to the floor.
func (s *Store) SetPreviewSize(id int, size float64) bool {
	return s.setPreview(id, func(p *Preview) { p.Size, p.HasSize = s.clampSize(size), true })
}

func (s *Store) setPreview(id int, fn func(p *Preview)) bool {
	s.mu.Lock()
	if s.indexLocked(id) < 0 {
		s.mu.Unlock()
		return false
	}
	p := s.preview[id]
	fn(&p)
	s.preview[id] = p
	s.mu.Unlock()
	s.emit(Event{Kind: EventPreview, ID: id})
	return true
}

// ClearPreview drops any in-gesture overlay for id.
func (s *Store) ClearPreview(id int) {
	s.mu.Lock()
	_, had := s.preview[id]
	delete(s.preview, id)
	s.mu.Unlock()
	if had {
		s.emit(Event{Kind: EventPreview, ID: id})
	}
}

func (s *Store) viewLocked(e domain.Element) domain.Element {
	v := e.Clone()
	if p, ok := s.preview[e.ID]; ok {
		v.Transform = v.Transform.Add(p.DX, p.DY)
		if p.HasSize {
			v.Size = p.Size
		}
	}
	return v
}

// Get returns the committed state of id.
func (s *Store) Get(id int) (domain.Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Element{}, false
	}
	return s.elems[i].Clone(), true
}

// View returns the committed state of id with any live preview applied.
func (s *Store) View(id int) (domain.Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(id)
	if i < 0 {
		return domain.Element{}, false
	}
	return s.viewLocked(s.elems[i]), true
}

// Views returns every element, bottom to top, with previews applied.
func (s *Store) Views() []domain.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Element, len(s.elems))
	for i, e := range s.elems {
		out[i] = s.viewLocked(e)
	}
	return out
}

// Elements returns a snapshot of committed elements, bottom to top.
func (s *Store) Elements() []domain.Element {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Selected returns the selected element, if any.
func (s *Store) Selected() (domain.Element, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.elems {
		if e.Selected {
			return s.viewLocked(e), true
		}
	}
	return domain.Element{}, false
}

// Len returns the number of elements.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.elems)
}

// NextID returns the id the next add will assign.
func (s *Store) NextID() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextID
}

// Hydrate replaces the collection with loaded elements without committing.
// The id counter is re-seeded to max(id)+1 and never moves backwards.
// Selection flags from the input are dropped; at most one survives otherwise.
func (s *Store) Hydrate(elems []domain.Element) {
	s.mu.Lock()
	s.elems = make([]domain.Element, 0, len(elems))
	maxID := 0
	seen := make(map[int]bool, len(elems))
	for _, e := range elems {
		if seen[e.ID] {
			s.log.Warn("dropping duplicate element id on hydrate", slog.Int("id", e.ID))
			continue
		}
		seen[e.ID] = true
		c := e.Clone()
		c.Selected = false
		c.Size = s.clampSize(c.Size)
		s.elems = append(s.elems, c)
		if e.ID > maxID {
			maxID = e.ID
		}
	}
	if maxID+1 > s.nextID {
		s.nextID = maxID + 1
	}
	s.preview = make(map[int]Preview)
	s.mu.Unlock()
	s.emit(Event{Kind: EventHydrated})
}
