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
	"log/slog"
	"sync"
	"time"

	applog "cardcanvas/internal/log"
	"cardcanvas/internal/storage"
)

// Hooks observe writer activity. Any field may be nil.
type Hooks struct {
	OnWrite    func(key string, d time.Duration, err error)
	OnCoalesce func(key string)
}

// Writer serializes writes per key: at most one write per key is in flight,
// and while it runs only the newest submitted value is kept. When the writer
// goes idle for a key, the last submitted value is the last one written.
type Writer struct {
	kv      storage.KV
	hooks   Hooks
	timeout time.Duration
	log     *slog.Logger

	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	pending *string
	failed  *string       // last value whose write failed and was not superseded
	idle    chan struct{} // closed when the drain loop exits; nil while idle
	lastErr error
}

// NewWriter returns a writer over kv. Each write gets its own timeout.
func NewWriter(kv storage.KV, hooks Hooks) *Writer {
	return &Writer{
		kv:      kv,
		hooks:   hooks,
		timeout: 10 * time.Second,
		log:     applog.WithComponent("persist"),
		slots:   make(map[string]*slot),
	}
}

// Submit queues value for key and returns immediately.
func (w *Writer) Submit(key, value string) {
	w.mu.Lock()
	s := w.slots[key]
	if s == nil {
		s = &slot{}
		w.slots[key] = s
	}
	if s.pending != nil && w.hooks.OnCoalesce != nil {
		w.hooks.OnCoalesce(key)
	}
	s.pending = &value
	s.failed = nil
	start := s.idle == nil
	if start {
		s.idle = make(chan struct{})
	}
	w.mu.Unlock()
	if start {
		go w.drain(key, s)
	}
}

func (w *Writer) drain(key string, s *slot) {
	for {
		w.mu.Lock()
		v := s.pending
		if v == nil {
			close(s.idle)
			s.idle = nil
			w.mu.Unlock()
			return
		}
		s.pending = nil
		w.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		t0 := time.Now()
		err := w.kv.Set(ctx, key, *v)
		cancel()
		if err != nil {
			applog.WithOperation(w.log, "flush").Error("write failed", slog.String("key", key), slog.Any("err", err))
		}
		if w.hooks.OnWrite != nil {
			w.hooks.OnWrite(key, time.Since(t0), err)
		}
		w.mu.Lock()
		s.lastErr = err
		switch {
		case err == nil:
			s.failed = nil
		case s.pending == nil:
			s.failed = v
		}
		w.mu.Unlock()
	}
}

// retryLocked restarts the drain loop for a value whose write failed.
func (w *Writer) retryLocked(key string, s *slot) {
	s.pending, s.failed = s.failed, nil
	s.idle = make(chan struct{})
	go w.drain(key, s)
}

// Flush waits until every key has drained and returns the last write error
// per key, joined. A value whose write failed earlier is written again once
// per Flush, so a recovered store catches up without a new Submit. It returns
// ctx.Err() if ctx ends first.
func (w *Writer) Flush(ctx context.Context) error {
	retried := make(map[*slot]bool)
	for {
		w.mu.Lock()
		var wait chan struct{}
		var errs []error
		for key, s := range w.slots {
			if s.idle == nil && s.failed != nil && !retried[s] {
				retried[s] = true
				w.retryLocked(key, s)
			}
			if s.idle != nil {
				wait = s.idle
				break
			}
			if s.lastErr != nil {
				errs = append(errs, s.lastErr)
			}
		}
		w.mu.Unlock()
		if wait == nil {
			return errors.Join(errs...)
		}
		select {
		case <-wait:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending reports whether any key has a write queued, in flight or failed
// and not yet written.
func (w *Writer) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, s := range w.slots {
		if s.idle != nil || s.failed != nil {
			return true
		}
	}
	return false
}
