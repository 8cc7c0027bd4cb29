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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	applog "cardcanvas/internal/log"
)

const (
	BackupsDirName = "backups"
	valueExt       = ".json"
	backupStamp    = "20060102-150405.000000000"
)

// FileStore keeps one JSON file per key under Root. Writes go to a temp file
// that is fsynced and renamed over the target; the previous value is copied to
// a timestamped backup first.
type FileStore struct {
	Root string
	keep int
	mu   sync.Mutex
	log  *slog.Logger
}

// OpenFileStore creates root and its backups folder if needed.
func OpenFileStore(root string, keepBackups int) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage dir is required")
	}
	if err := os.MkdirAll(filepath.Join(root, BackupsDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	if keepBackups <= 0 {
		keepBackups = DefaultKeepRevisions
	}
	return &FileStore{Root: root, keep: keepBackups, log: applog.WithComponent("storage").With(slog.String("backend", KindFile))}, nil
}

// fileName maps a key such as "front design state" to "front-design-state.json".
func fileName(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(key)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	return b.String() + valueExt
}

func (s *FileStore) path(key string) string { return filepath.Join(s.Root, fileName(key)) }

// Get returns the current value. A value that cannot be read or is not valid
// JSON is replaced by the newest backup, if any.
func (s *FileStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.path(key)
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err == nil && json.Valid(b) {
		return string(b), true, nil
	}
	l := applog.WithOperation(s.log, "get").With(slog.String("key", key))
	if err == nil {
		err = errors.New("invalid JSON")
	}
	v, berr := s.latestBackup(key)
	if berr != nil {
		l.Warn("current value unreadable and no usable backup", slog.Any("err", err), slog.Any("backup_err", berr))
		// Hand the unreadable value back; the caller decides how to recover.
		return string(b), true, nil
	}
	l.Warn("recovered value from backup", slog.Any("err", err))
	return v, true, nil
}

// Set writes value transactionally.
func (s *FileStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.path(key)
	bdir := filepath.Join(s.Root, BackupsDirName)
	if err := os.MkdirAll(bdir, 0o755); err != nil {
		return fmt.Errorf("ensure backups dir: %w", err)
	}
	if _, statErr := os.Stat(p); statErr == nil {
		bpath := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", fileName(key), time.Now().UTC().Format(backupStamp)))
		if cerr := copyFile(p, bpath); cerr != nil {
			return fmt.Errorf("backup current value: %w", cerr)
		}
		s.pruneBackups(key)
	}
	temp := filepath.Join(s.Root, fmt.Sprintf(".%s.tmp-%d-%d", fileName(key), os.Getpid(), rand.Int()))
	if werr := writeFileSync(temp, []byte(value)); werr != nil {
		return fmt.Errorf("write temp value: %w", werr)
	}
	// On Windows, replace by removing destination first if needed
	if _, err := os.Stat(p); err == nil {
		_ = os.Remove(p)
	}
	if rerr := os.Rename(temp, p); rerr != nil {
		_ = os.Remove(temp)
		return fmt.Errorf("replace value: %w", rerr)
	}
	return nil
}

// Delete removes the current value; backups are kept.
func (s *FileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete value: %w", err)
	}
	return nil
}

// History lists backups of key, newest first.
func (s *FileStore) History(_ context.Context, key string, limit int) ([]Revision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names, err := s.backups(key)
	if err != nil {
		return nil, err
	}
	var out []Revision
	for i := len(names) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		b, err := os.ReadFile(names[i])
		if err != nil {
			continue
		}
		out = append(out, Revision{TS: stampOf(names[i], key), Value: string(b)})
	}
	return out, nil
}

func (s *FileStore) Close() error { return nil }

// backups returns backup paths for key, oldest first.
func (s *FileStore) backups(key string) ([]string, error) {
	bdir := filepath.Join(s.Root, BackupsDirName)
	ents, err := os.ReadDir(bdir)
	if err != nil {
		return nil, fmt.Errorf("read backups dir: %w", err)
	}
	prefix := fileName(key) + "."
	var out []string
	for _, e := range ents {
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".bak") {
			out = append(out, filepath.Join(bdir, name))
		}
	}
	sort.Strings(out) // timestamp in name yields lexicographic order
	return out, nil
}

func stampOf(path, key string) time.Time {
	name := strings.TrimSuffix(strings.TrimPrefix(filepath.Base(path), fileName(key)+"."), ".bak")
	ts, _ := time.Parse(backupStamp, name)
	return ts
}

func (s *FileStore) pruneBackups(key string) {
	names, err := s.backups(key)
	if err != nil || len(names) <= s.keep {
		return
	}
	for _, n := range names[:len(names)-s.keep] {
		_ = os.Remove(n)
	}
}

// latestBackup returns the newest backup holding valid JSON.
func (s *FileStore) latestBackup(key string) (string, error) {
	names, err := s.backups(key)
	if err != nil {
		return "", err
	}
	for i := len(names) - 1; i >= 0; i-- {
		b, err := os.ReadFile(names[i])
		if err == nil && json.Valid(b) {
			return string(b), nil
		}
	}
	return "", errors.New("no backups found")
}

// writeFileSync writes data to a file, ensures it is flushed to disk.
func writeFileSync(path string, data []byte) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := f.Write(data); err != nil {
		return err
	}
	return f.Sync()
}

// copyFile copies a file from src to dst (overwrites dst if exists).
func copyFile(src, dst string) (err error) {
	sf, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := sf.Close(); err == nil {
			err = cerr
		}
	}()
	df, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := df.Close(); err == nil {
			err = cerr
		}
	}()
	if _, err := io.Copy(df, sf); err != nil {
		return err
	}
	return df.Sync()
}
