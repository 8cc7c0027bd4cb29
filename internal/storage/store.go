/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// KV is the key-value store consumed by the persistence layer.
// Get reports found=false for a missing key; that is not an error.
type KV interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Revision is one historical value of a key.
type Revision struct {
	TS    time.Time
	Value string
}

// Historian is implemented by backends that retain previous values.
// Revisions are returned newest first.
type Historian interface {
	History(ctx context.Context, key string, limit int) ([]Revision, error)
}

// Backend kinds accepted by Open.
const (
	KindFile     = "file"
	KindSQLite   = "sqlite"
	KindPostgres = "postgres"
	KindRedis    = "redis"
	KindMemory   = "memory"
)

// DefaultKeepRevisions bounds history/backups per key when Options leaves it unset.
const DefaultKeepRevisions = 20

// Options selects and configures a backend.
type Options struct {
	Kind          string
	Dir           string // file and sqlite
	DSN           string // postgres
	RedisAddr     string
	RedisPrefix   string
	KeepRevisions int
}

// Open creates the backend named by o.Kind (file when empty).
func Open(ctx context.Context, o Options) (KV, error) {
	if o.KeepRevisions <= 0 {
		o.KeepRevisions = DefaultKeepRevisions
	}
	switch strings.ToLower(strings.TrimSpace(o.Kind)) {
	case "", KindFile:
		return OpenFileStore(o.Dir, o.KeepRevisions)
	case KindSQLite:
		return OpenSQLiteStore(ctx, o.Dir, o.KeepRevisions)
	case KindPostgres:
		return OpenPGStore(ctx, o.DSN)
	case KindRedis:
		return OpenRedisStore(ctx, o.RedisAddr, o.RedisPrefix)
	case KindMemory:
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage kind %q", o.Kind)
	}
}

// MemStore is an in-memory KV. It keeps every revision.
type MemStore struct {
	mu   sync.Mutex
	data map[string]string
	hist map[string][]Revision
}

func NewMemStore() *MemStore {
	return &MemStore{data: make(map[string]string), hist: make(map[string][]Revision)}
}

func (m *MemStore) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemStore) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	m.hist[key] = append(m.hist[key], Revision{TS: time.Now().UTC(), Value: value})
	return nil
}

func (m *MemStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemStore) History(_ context.Context, key string, limit int) ([]Revision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	src := m.hist[key]
	out := make([]Revision, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TS.After(out[j].TS) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemStore) Close() error { return nil }
