/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package persist

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"cardcanvas/internal/domain"
)

// ErrInvalidCanvas is returned when a layout is normalized against a
// non-positive canvas size.
var ErrInvalidCanvas = errors.New("canvas dimensions must be positive")

//go:embed face.schema.json
var faceSchemaJSON []byte

var (
	schemaOnce sync.Once
	faceSchema *gojsonschema.Schema
	schemaErr  error
)

func schema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		faceSchema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(faceSchemaJSON))
	})
	return faceSchema, schemaErr
}

// Validate checks data against the persisted face layout schema.
func Validate(data []byte) error {
	s, err := schema()
	if err != nil {
		return fmt.Errorf("load face schema: %w", err)
	}
	res, err := s.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("validate layout: %w", err)
	}
	if !res.Valid() {
		msgs := make([]string, 0, len(res.Errors()))
		for _, e := range res.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("layout does not match schema: %s", strings.Join(msgs, "; "))
	}
	return nil
}

// Normalize converts elements to persisted records: positions become
// fractions of the canvas size, size stays absolute. Selection is dropped.
func Normalize(elems []domain.Element, c domain.CanvasSize) ([]domain.ElementRecord, error) {
	if !c.Valid() {
		return nil, ErrInvalidCanvas
	}
	out := make([]domain.ElementRecord, 0, len(elems))
	for _, e := range elems {
		r := domain.ElementRecord{
			ID:       e.ID,
			Position: domain.Position{X: e.Transform.X / c.W, Y: e.Transform.Y / c.H},
			Size:     e.Size,
		}
		content := e.Content
		switch e.Kind {
		case domain.KindText:
			r.Text = &content
			st := domain.DefaultStyle()
			if e.Style != nil {
				st = *e.Style
			}
			r.TextStyle = &st
		case domain.KindImage:
			r.URI = &content
		default:
			return nil, fmt.Errorf("element %d: unknown kind %q", e.ID, e.Kind)
		}
		out = append(out, r)
	}
	return out, nil
}

// Expand converts records back to elements at canvas size c. Fractions outside
// [0,1] are kept as they are.
func Expand(recs []domain.ElementRecord, c domain.CanvasSize) ([]domain.Element, error) {
	if !c.Valid() {
		return nil, ErrInvalidCanvas
	}
	out := make([]domain.Element, 0, len(recs))
	for _, r := range recs {
		e := domain.Element{
			ID:        r.ID,
			Transform: domain.Transform{X: r.Position.X * c.W, Y: r.Position.Y * c.H},
			Size:      r.Size,
		}
		switch {
		case r.Text != nil:
			e.Kind = domain.KindText
			e.Content = *r.Text
			st := domain.DefaultStyle()
			if r.TextStyle != nil {
				st = *r.TextStyle
			}
			e.Style = &st
		case r.URI != nil:
			e.Kind = domain.KindImage
			e.Content = *r.URI
		default:
			return nil, fmt.Errorf("record %d: neither text nor uri", r.ID)
		}
		out = append(out, e)
	}
	return out, nil
}

// Encode serializes elements as the persisted JSON array.
func Encode(elems []domain.Element, c domain.CanvasSize) ([]byte, error) {
	recs, err := Normalize(elems, c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(recs)
}

// Decode validates and parses a persisted layout and expands it at canvas size c.
func Decode(data []byte, c domain.CanvasSize) ([]domain.Element, error) {
	if err := Validate(data); err != nil {
		return nil, err
	}
	var recs []domain.ElementRecord
	if err := json.Unmarshal(data, &recs); err != nil {
		return nil, fmt.Errorf("parse layout: %w", err)
	}
	return Expand(recs, c)
}
