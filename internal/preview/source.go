/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package preview

import (
	"context"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/editor"
	"cardcanvas/internal/persist"
	"cardcanvas/internal/storage"
)

// Source yields the committed elements of a face.
type Source interface {
	Face(ctx context.Context, face domain.Face) ([]domain.Element, error)
}

// KVSource reads the persisted layout. Missing or malformed layouts read as
// an empty face.
type KVSource struct {
	KV     storage.KV
	Canvas domain.CanvasSize
}

func (s KVSource) Face(ctx context.Context, face domain.Face) ([]domain.Element, error) {
	return persist.NewAdapter(s.KV, nil, face, s.Canvas).Load(ctx), nil
}

// LiveSource reads open faces from a running workflow and falls back to
// Fallback for faces not opened yet.
type LiveSource struct {
	Workflow *editor.Workflow
	Fallback Source
}

func (s LiveSource) Face(ctx context.Context, face domain.Face) ([]domain.Element, error) {
	if sess, ok := s.Workflow.Session(face); ok {
		return sess.Store().Elements(), nil
	}
	if s.Fallback == nil {
		return nil, nil
	}
	return s.Fallback.Face(ctx, face)
}
