/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"

	"cardcanvas/internal/domain"
)

// Artifact is the result of exporting one face. Ref is an opaque reference
// for downstream consumers: a file:// URL when the PNG was written to disk,
// otherwise a data: URL.
type Artifact struct {
	Face domain.Face
	Ref  string
	PNG  []byte
}

// Rasterizer exports a face as PNG. With OutDir set the PNG is also written
// to <OutDir>/<face>.png.
type Rasterizer struct {
	Options RasterOptions
	OutDir  string
}

// Export renders elems and returns the artifact.
func (r Rasterizer) Export(ctx context.Context, face domain.Face, elems []domain.Element) (Artifact, error) {
	img, err := RenderFace(ctx, elems, r.Options)
	if err != nil {
		return Artifact{}, fmt.Errorf("export %s: %w", face, err)
	}
	data, err := EncodePNG(img)
	if err != nil {
		return Artifact{}, fmt.Errorf("export %s: %w", face, err)
	}
	art := Artifact{Face: face, PNG: data}
	if r.OutDir == "" {
		art.Ref = "data:image/png;base64," + base64.StdEncoding.EncodeToString(data)
		return art, nil
	}
	p, err := filepath.Abs(filepath.Join(r.OutDir, string(face)+".png"))
	if err != nil {
		return Artifact{}, err
	}
	if err := writeFile(p, data); err != nil {
		return Artifact{}, fmt.Errorf("export %s: %w", face, err)
	}
	art.Ref = "file://" + filepath.ToSlash(p)
	return art, nil
}
