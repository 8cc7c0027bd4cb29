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
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cardcanvas/internal/storage"
)

// gatedKV blocks every Set until released and records write order and
// per-key concurrency.
type gatedKV struct {
	*storage.MemStore
	gate chan struct{}

	mu       sync.Mutex
	writes   []string
	inflight map[string]int
	maxSeen  int
	fail     error
}

func newGatedKV() *gatedKV {
	return &gatedKV{MemStore: storage.NewMemStore(), gate: make(chan struct{}), inflight: map[string]int{}}
}

func (g *gatedKV) Set(ctx context.Context, key, value string) error {
	g.mu.Lock()
	g.inflight[key]++
	if g.inflight[key] > g.maxSeen {
		g.maxSeen = g.inflight[key]
	}
	g.mu.Unlock()
	<-g.gate
	g.mu.Lock()
	g.inflight[key]--
	g.writes = append(g.writes, key+"="+value)
	fail := g.fail
	g.mu.Unlock()
	if fail != nil {
		return fail
	}
	return g.MemStore.Set(ctx, key, value)
}

func (g *gatedKV) waitInflight(t *testing.T, key string) {
	t.Helper()
	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return g.inflight[key] == 1
	}, time.Second, time.Millisecond)
}

func TestWriterCoalescesToLatest(t *testing.T) {
	kv := newGatedKV()
	var coalesced int
	var mu sync.Mutex
	w := NewWriter(kv, Hooks{OnCoalesce: func(string) { mu.Lock(); coalesced++; mu.Unlock() }})

	w.Submit("k", "v1")
	kv.waitInflight(t, "k")
	w.Submit("k", "v2")
	w.Submit("k", "v3")
	assert.True(t, w.Pending())

	close(kv.gate)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, w.Flush(ctx))

	assert.Equal(t, []string{"k=v1", "k=v3"}, kv.writes)
	assert.Equal(t, 1, kv.maxSeen, "one write in flight per key")
	assert.Equal(t, 1, coalesced)
	v, _, _ := kv.Get(ctx, "k")
	assert.Equal(t, "v3", v)
	assert.False(t, w.Pending())
}

func TestWriterLastSubmittedWinsUnderLoad(t *testing.T) {
	kv := newGatedKV()
	close(kv.gate)
	w := NewWriter(kv, Hooks{})
	for i := 0; i < 200; i++ {
		w.Submit("front design state", string(rune('a'+i%26)))
		w.Submit("back design state", "b")
	}
	w.Submit("front design state", "final")
	require.NoError(t, w.Flush(context.Background()))
	v, _, _ := kv.Get(context.Background(), "front design state")
	assert.Equal(t, "final", v)
	assert.Equal(t, 1, kv.maxSeen)
}

func TestWriterReportsErrors(t *testing.T) {
	kv := newGatedKV()
	close(kv.gate)
	boom := errors.New("disk full")
	kv.fail = boom
	var got error
	w := NewWriter(kv, Hooks{OnWrite: func(_ string, _ time.Duration, err error) { got = err }})
	w.Submit("k", "v")
	err := w.Flush(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, got, boom)

	kv.mu.Lock()
	kv.fail = nil
	kv.mu.Unlock()
	w.Submit("k", "v")
	assert.NoError(t, w.Flush(context.Background()))
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
		return errors.New("transient")
	}
	f.mu.Unlock()
	return f.MemStore.Set(ctx, key, value)
}

func TestFlushRetriesFailedWriteAfterRecovery(t *testing.T) {
	kv := &flakyKV{MemStore: storage.NewMemStore(), fails: 2}
	w := NewWriter(kv, Hooks{})
	ctx := context.Background()

	w.Submit("front design state", "v1")
	// initial write and the retry inside this Flush both fail
	require.Error(t, w.Flush(ctx))
	assert.True(t, w.Pending(), "failed value stays queued")

	require.NoError(t, w.Flush(ctx), "storage recovered, value is written without a new Submit")
	v, ok, err := kv.Get(ctx, "front design state")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "v1", v)
	assert.False(t, w.Pending())
	assert.NoError(t, w.Flush(ctx), "error is not reported again")
}

func TestNewerValueSupersedesFailedWrite(t *testing.T) {
	kv := &flakyKV{MemStore: storage.NewMemStore(), fails: 2}
	w := NewWriter(kv, Hooks{})
	ctx := context.Background()

	w.Submit("k", "old")
	require.Error(t, w.Flush(ctx))
	w.Submit("k", "new")
	require.NoError(t, w.Flush(ctx))
	v, _, _ := kv.Get(ctx, "k")
	assert.Equal(t, "new", v)
}

func TestFlushHonoursContext(t *testing.T) {
	kv := newGatedKV()
	w := NewWriter(kv, Hooks{})
	w.Submit("k", "v")
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, w.Flush(ctx), context.DeadlineExceeded)
	close(kv.gate)
	assert.NoError(t, w.Flush(context.Background()))
}
