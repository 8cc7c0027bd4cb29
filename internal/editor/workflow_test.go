/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/export"
	"cardcanvas/internal/gesture"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/metrics"
	"cardcanvas/internal/storage"
	"cardcanvas/internal/telemetry"
	"cardcanvas/internal/vector"
)

type fakeExporter struct {
	mu    sync.Mutex
	faces []domain.Face
	fail  map[domain.Face]error
}

func (f *fakeExporter) Export(_ context.Context, face domain.Face, elems []domain.Element) (export.Artifact, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[face]; err != nil {
		return export.Artifact{}, err
	}
	f.faces = append(f.faces, face)
	return export.Artifact{Face: face, Ref: "mem://" + string(face), PNG: []byte{byte(len(elems))}}, nil
}

type recNavigator struct {
	payloads [][]byte
	err      error
}

func (r *recNavigator) Advance(_ context.Context, payload []byte) error {
	if r.err != nil {
		return r.err
	}
	r.payloads = append(r.payloads, payload)
	return nil
}

type recNotifier struct{ msgs []string }

func (r *recNotifier) Notify(msg string) { r.msgs = append(r.msgs, msg) }

func newTestWorkflow(t *testing.T, kv storage.KV, deps Deps) *Workflow {
	t.Helper()
	if deps.Exporter == nil {
		deps.Exporter = &fakeExporter{}
	}
	wf := NewWorkflow(context.Background(), kv, DefaultConfig(), deps)
	t.Cleanup(func() { _ = wf.Close(context.Background()) })
	return wf
}

func TestWorkflowFrontThenBackThenNavigate(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	exp := &fakeExporter{}
	nav := &recNavigator{}
	wf := newTestWorkflow(t, kv, Deps{Exporter: exp, Navigator: nav})

	require.Equal(t, domain.FaceFront, wf.Current().Face())
	wf.Current().AddText()
	require.NoError(t, wf.Advance(ctx))
	require.Equal(t, domain.FaceBack, wf.Current().Face())
	assert.Equal(t, 0, wf.Current().Store().Len(), "back face starts empty")
	assert.Empty(t, nav.payloads, "no navigation after the front face")

	wf.Current().AddText()
	require.NoError(t, wf.Advance(ctx))
	require.True(t, wf.Finished())
	require.Len(t, nav.payloads, 1)

	var nc NavContext
	require.NoError(t, json.Unmarshal(nav.payloads[0], &nc))
	assert.Equal(t, wf.ID(), nc.Session)
	assert.Equal(t, "mem://front", nc.Front)
	assert.Equal(t, "mem://back", nc.Back)
	assert.Equal(t, []domain.Face{domain.FaceFront, domain.FaceBack}, exp.faces)

	assert.ErrorIs(t, wf.Advance(ctx), ErrFinished)

	raw, ok, err := kv.Get(ctx, domain.FaceFront.StorageKey())
	require.NoError(t, err)
	require.True(t, ok, "front saved before advancing")
	assert.Contains(t, raw, `"text":"Text"`)
}

func TestExportFailureKeepsStateAndNotifies(t *testing.T) {
	ctx := context.Background()
	n := &recNotifier{}
	nav := &recNavigator{}
	exp := &fakeExporter{fail: map[domain.Face]error{domain.FaceFront: errors.New("gpu lost")}}
	wf := newTestWorkflow(t, storage.NewMemStore(), Deps{Exporter: exp, Navigator: nav, Notifier: n})

	id := wf.Current().AddText()
	err := wf.Advance(ctx)
	require.Error(t, err)
	assert.Equal(t, domain.FaceFront, wf.Current().Face())
	_, ok := wf.Current().Store().Get(id)
	assert.True(t, ok, "editor state preserved")
	assert.Len(t, n.msgs, 1)
	assert.Empty(t, nav.payloads)
	_, ok = wf.Session(domain.FaceBack)
	assert.False(t, ok, "back face not opened")
}

func TestNavigationFailureStaysOnBack(t *testing.T) {
	ctx := context.Background()
	n := &recNotifier{}
	nav := &recNavigator{err: errors.New("offline")}
	wf := newTestWorkflow(t, storage.NewMemStore(), Deps{Navigator: nav, Notifier: n})

	require.NoError(t, wf.Advance(ctx))
	require.Error(t, wf.Advance(ctx))
	assert.False(t, wf.Finished())
	assert.Equal(t, domain.FaceBack, wf.Current().Face())
	assert.Len(t, n.msgs, 1)

	nav.err = nil
	require.NoError(t, wf.Advance(ctx), "retry succeeds")
	assert.True(t, wf.Finished())
}

func TestBackReturnsToFront(t *testing.T) {
	ctx := context.Background()
	wf := newTestWorkflow(t, storage.NewMemStore(), Deps{})
	assert.False(t, wf.Back(ctx), "already on front")

	frontID := wf.Current().AddText()
	require.NoError(t, wf.Advance(ctx))
	backID := wf.Current().AddText()
	require.True(t, wf.Back(ctx))
	require.Equal(t, domain.FaceFront, wf.Current().Face())
	_, ok := wf.Current().Store().Get(frontID)
	assert.True(t, ok)

	require.NoError(t, wf.Advance(ctx))
	_, ok = wf.Current().Store().Get(backID)
	assert.True(t, ok, "back face kept its state")
}

func TestAddImagePermissionDenied(t *testing.T) {
	ctx := context.Background()
	n := &recNotifier{}
	picker := PickerFunc(func(context.Context) (string, error) { return "", ErrPermissionDenied })
	wf := newTestWorkflow(t, storage.NewMemStore(), Deps{Picker: picker, Notifier: n})

	before := wf.Current().Store().Elements()
	id, err := wf.AddImage(ctx)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, id)
	assert.Len(t, n.msgs, 1)
	assert.Equal(t, before, wf.Current().Store().Elements(), "no state change")
	assert.Equal(t, 1, wf.Current().Store().NextID(), "id counter untouched")
}

func TestAddImageCancelledAndPicked(t *testing.T) {
	ctx := context.Background()
	n := &recNotifier{}
	s := newTestWorkflow(t, storage.NewMemStore(), Deps{}).Current()

	id, err := s.AddImage(ctx, PickerFunc(func(context.Context) (string, error) { return "", ErrPickCancelled }), n)
	require.NoError(t, err)
	assert.Zero(t, id)
	assert.Empty(t, n.msgs)

	id, err = s.AddImage(ctx, PickerFunc(func(context.Context) (string, error) { return "content://media/42", nil }), n)
	require.NoError(t, err)
	e, ok := s.Store().Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.KindImage, e.Kind)
	assert.Equal(t, "content://media/42", e.Content)
	assert.True(t, e.Selected)
	assert.Equal(t, domain.DefaultImageSize, e.Size)
}

func TestReopenLoadsSavedFaces(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	wf := newTestWorkflow(t, kv, Deps{})
	s := wf.Current()
	id := s.AddText()
	ed, err := s.EditSelected()
	require.NoError(t, err)
	require.NoError(t, ed.ToggleBold())
	require.NoError(t, ed.SetColor("#ff0000"))
	require.NoError(t, ed.SetText("Jane Doe"))
	require.NoError(t, ed.Save())
	require.NoError(t, wf.Close(ctx))

	wf2 := newTestWorkflow(t, kv, Deps{})
	e, ok := wf2.Current().Store().Get(id)
	require.True(t, ok)
	assert.Equal(t, "Jane Doe", e.Content)
	require.NotNil(t, e.Style)
	assert.Equal(t, domain.TextStyle{Bold: true, Color: "#FF0000"}, *e.Style)
	assert.False(t, e.Selected, "selection is not persisted")
	assert.Equal(t, id+1, wf2.Current().AddText())
}

func TestGestureThroughSessionIsSaved(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	m := metrics.NewCollector("test")
	wf := newTestWorkflow(t, kv, Deps{Metrics: m})
	s := wf.Current()
	id := s.AddText()

	r := s.Router()
	require.True(t, r.Down(gesture.Pointer{ID: 1, Pos: vector.Pt{X: 55, Y: 55}}))
	require.Equal(t, gesture.ElementDrag, r.State())
	r.Move(gesture.Pointer{ID: 1, Pos: vector.Pt{X: 155, Y: 105}})
	r.Up(gesture.Pointer{ID: 1, Pos: vector.Pt{X: 155, Y: 105}})
	require.NoError(t, s.Flush(ctx))

	e, _ := s.Store().Get(id)
	assert.InDelta(t, 150, e.Transform.X, 1e-9)
	assert.InDelta(t, 100, e.Transform.Y, 1e-9)

	wf2 := newTestWorkflow(t, kv, Deps{})
	e2, ok := wf2.Current().Store().Get(id)
	require.True(t, ok)
	assert.InDelta(t, 150, e2.Transform.X, 1e-6)

	mfs, err := m.Registry().Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	assert.True(t, names["test_scene_commits_total"])
	assert.True(t, names["test_gesture_completed_total"])
	assert.True(t, names["test_persist_writes_total"])
}

func TestAutosaveAndReset(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	wf := newTestWorkflow(t, kv, Deps{})
	wf.Current().AddText()
	require.NoError(t, wf.Autosave(ctx))
	_, ok, _ := kv.Get(ctx, domain.FaceFront.StorageKey())
	require.True(t, ok)

	require.NoError(t, wf.Current().Reset(ctx))
	assert.Equal(t, 0, wf.Current().Store().Len())
	_, ok, _ = kv.Get(ctx, domain.FaceFront.StorageKey())
	assert.False(t, ok)
}

func TestDeleteSelected(t *testing.T) {
	s := newTestWorkflow(t, storage.NewMemStore(), Deps{}).Current()
	assert.False(t, s.DeleteSelected())
	id := s.AddText()
	assert.True(t, s.DeleteSelected())
	_, ok := s.Store().Get(id)
	assert.False(t, ok)
}

func TestDeleteSelectedSparesDraggedElement(t *testing.T) {
	s := newTestWorkflow(t, storage.NewMemStore(), Deps{}).Current()
	id := s.AddText()
	e, _ := s.Store().Get(id)
	grab := vector.Pt{X: e.Transform.X + 2, Y: e.Transform.Y + 2}

	require.True(t, s.Router().Down(gesture.Pointer{ID: 1, Pos: grab}))
	require.Equal(t, gesture.ElementDrag, s.Router().State())
	assert.False(t, s.DeleteSelected(), "element under the finger stays")
	_, ok := s.Store().Get(id)
	assert.True(t, ok)

	s.Router().Up(gesture.Pointer{ID: 1, Pos: grab})
	assert.True(t, s.DeleteSelected())
}

type recSink struct {
	mu     sync.Mutex
	names  []string
	events []map[string]any
}

func (r *recSink) Event(name string, props map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names = append(r.names, name)
	r.events = append(r.events, props)
}

func (r *recSink) last(name string) (map[string]any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.names) - 1; i >= 0; i-- {
		if r.names[i] == name {
			return r.events[i], true
		}
	}
	return nil, false
}

func TestSaveStyleRecordsEvent(t *testing.T) {
	sink := &recSink{}
	s := newTestWorkflow(t, storage.NewMemStore(), Deps{Telemetry: sink}).Current()
	id := s.AddText()

	ed, err := s.EditSelected()
	require.NoError(t, err)
	require.NoError(t, ed.ToggleBold())
	require.NoError(t, ed.SetColor("#ff0000"))
	require.NoError(t, s.SaveStyle(ed))

	ev, ok := sink.last(telemetry.EvStyleSave)
	require.True(t, ok, "style_save emitted")
	assert.Equal(t, "front", ev["face"])
	assert.Equal(t, true, ev["bold"])
	assert.Equal(t, "#FF0000", ev["color"])
	e, _ := s.Store().Get(id)
	assert.True(t, e.Style.Bold)

	// a second save on a closed editor is an error and records nothing more
	before := len(sink.names)
	assert.Error(t, s.SaveStyle(ed))
	assert.Len(t, sink.names, before)
}

// flakyKV fails the first n writes and then behaves.
type flakyKV struct {
	*storage.MemStore
	mu    sync.Mutex
	fails int
}

func (f *flakyKV) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	if f.fails > 0 {
		f.fails--
		f.mu.Unlock()
		return errors.New("storage offline")
	}
	f.mu.Unlock()
	return f.MemStore.Set(ctx, key, value)
}

func TestAdvanceRetriesAfterSaveFailure(t *testing.T) {
	ctx := context.Background()
	kv := &flakyKV{MemStore: storage.NewMemStore(), fails: 2}
	n := &recNotifier{}
	wf := newTestWorkflow(t, kv, Deps{Navigator: &recNavigator{}, Notifier: n})

	wf.Current().AddText()
	require.Error(t, wf.Advance(ctx))
	assert.Equal(t, domain.FaceFront, wf.Current().Face())
	assert.True(t, wf.Dirty())
	assert.Len(t, n.msgs, 1)

	require.NoError(t, wf.Advance(ctx), "storage is back; the same front layout is written")
	assert.Equal(t, domain.FaceBack, wf.Current().Face())
	assert.False(t, wf.Dirty())
	raw, ok, err := kv.Get(ctx, domain.FaceFront.StorageKey())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, raw, `"text":"Text"`)
}

func TestAdvanceFailureLogsSessionAndFace(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "editor.json")
	applog.Init(applog.Options{Level: "info", Format: "json", File: logPath})
	t.Cleanup(func() { applog.Init(applog.Options{}) })

	exp := &fakeExporter{fail: map[domain.Face]error{domain.FaceFront: errors.New("gpu lost")}}
	wf := newTestWorkflow(t, storage.NewMemStore(), Deps{Exporter: exp, Navigator: &recNavigator{}, Notifier: &recNotifier{}})
	require.Error(t, wf.Advance(context.Background()))

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	var found map[string]any
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var m map[string]any
		if json.Unmarshal([]byte(line), &m) == nil && m["msg"] == "export failed" {
			found = m
		}
	}
	require.NotNil(t, found, "export failure logged")
	assert.Equal(t, wf.ID(), found["session"])
	assert.Equal(t, "front", found["face"])
	assert.Equal(t, "workflow", found["component"])
}
