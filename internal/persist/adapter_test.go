/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package persist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/scene"
	"cardcanvas/internal/storage"
)

type countingKV struct {
	*storage.MemStore
	sets int
}

func (c *countingKV) Set(ctx context.Context, key, value string) error {
	c.sets++
	return c.MemStore.Set(ctx, key, value)
}

func mount(t *testing.T, kv storage.KV, face domain.Face) (*scene.Store, *Adapter) {
	t.Helper()
	a := NewAdapter(kv, NewWriter(kv, Hooks{}), face, card)
	s := scene.New()
	a.Mount(context.Background(), s)
	return s, a
}

func TestStyleAndTextSurviveReload(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	s, a := mount(t, kv, domain.FaceFront)

	id := s.AddText()
	require.True(t, s.ApplyTextEdit(id, "Hello", domain.TextStyle{Bold: true, Color: "#FF0000"}))
	require.NoError(t, a.Flush(ctx))

	s2, _ := mount(t, kv, domain.FaceFront)
	e, ok := s2.Get(id)
	require.True(t, ok)
	assert.Equal(t, "Hello", e.Content)
	assert.Equal(t, domain.TextStyle{Bold: true, Color: "#FF0000"}, *e.Style)
	assert.Equal(t, domain.DefaultPosition, e.Transform)
}

func TestPartialStyleUpdateSurvivesReload(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	s, a := mount(t, kv, domain.FaceFront)

	s.AddImage("file:///logo.png")
	id := s.AddText()
	require.True(t, s.UpdateStyle(id, domain.TextStyle{Bold: true}))
	require.NoError(t, a.Flush(ctx))

	s2, _ := mount(t, kv, domain.FaceFront)
	require.Equal(t, 2, s2.Len(), "no element lost on reload")
	e, ok := s2.Get(id)
	require.True(t, ok)
	assert.Equal(t, domain.TextStyle{Bold: true, Color: domain.DefaultColor}, *e.Style)
}

func TestMountReseedsIDCounter(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	s, a := mount(t, kv, domain.FaceBack)
	s.AddText()
	second := s.AddImage("img")
	s.AddText()
	require.True(t, s.DeleteElement(second+1))
	require.NoError(t, a.Flush(ctx))

	s2, _ := mount(t, kv, domain.FaceBack)
	assert.Equal(t, second+1, s2.NextID(), "counter restarts after the highest persisted id")
	assert.Len(t, s2.Elements(), 2)
}

func TestFacesAreIndependent(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	front, fa := mount(t, kv, domain.FaceFront)
	front.AddText()
	require.NoError(t, fa.Flush(ctx))

	back, _ := mount(t, kv, domain.FaceBack)
	assert.Empty(t, back.Elements())
	_, ok, _ := kv.Get(ctx, "front design state")
	assert.True(t, ok)
	_, ok, _ = kv.Get(ctx, "back design state")
	assert.False(t, ok)
}

func TestMalformedOrMissingLoadsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	s, _ := mount(t, kv, domain.FaceFront)
	assert.Empty(t, s.Elements())

	require.NoError(t, kv.Set(ctx, "front design state", `[{"id":1,"text":`))
	s, _ = mount(t, kv, domain.FaceFront)
	assert.Empty(t, s.Elements())
	assert.Equal(t, 1, s.NextID())

	// The editor stays usable and the next commit overwrites the bad value.
	s3, a := mount(t, kv, domain.FaceFront)
	s3.AddText()
	require.NoError(t, a.Flush(ctx))
	raw, _, _ := kv.Get(ctx, "front design state")
	assert.NoError(t, Validate([]byte(raw)))
}

func TestSelectionAndPreviewDoNotWrite(t *testing.T) {
	ctx := context.Background()
	kv := &countingKV{MemStore: storage.NewMemStore()}
	s, a := mount(t, kv, domain.FaceFront)
	id := s.AddText()
	require.NoError(t, a.Flush(ctx))
	base := kv.sets

	s.DeselectAll()
	s.SelectElement(id)
	s.SetPreview(id, 10, 10)
	s.ClearPreview(id)
	require.NoError(t, a.Flush(ctx))
	assert.Equal(t, base, kv.sets)

	s.CommitTransform(id, 10, 10)
	require.NoError(t, a.Flush(ctx))
	assert.Equal(t, base+1, kv.sets)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemStore()
	s, a := mount(t, kv, domain.FaceFront)
	s.AddText()
	require.NoError(t, a.Reset(ctx))
	_, ok, _ := kv.Get(ctx, a.Key())
	assert.False(t, ok)
}
