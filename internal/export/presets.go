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
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"cardcanvas/internal/domain"
)

// PresetName represents a named export preset.
type PresetName string

const (
	PresetWeb   PresetName = "web"
	PresetPrint PresetName = "print"
)

// ParsePreset accepts "web" or "print" (empty means web).
func ParsePreset(s string) (PresetName, error) {
	switch p := PresetName(strings.ToLower(strings.TrimSpace(s))); p {
	case "", PresetWeb:
		return PresetWeb, nil
	case PresetPrint:
		return PresetPrint, nil
	default:
		return "", fmt.Errorf("unknown preset %q (want web or print)", s)
	}
}

// Apply adjusts raster options for the preset: web keeps canvas pixels,
// print doubles the resolution and draws trim guides.
func (p PresetName) Apply(o RasterOptions) RasterOptions {
	switch p {
	case PresetPrint:
		if o.Scale <= 0 {
			o.Scale = 2
		}
		o.Guides = true
	default:
		if o.Scale <= 0 {
			o.Scale = 1
		}
	}
	return o
}

// BatchOptions controls a batch export of both faces.
//
// Output names are <OutDir>/<face>.png; with PDF set, <OutDir>/card.pdf is
// written from the same rasters.
type BatchOptions struct {
	Preset PresetName
	OutDir string
	PDF    bool
	Raster RasterOptions
	Sheet  PDFOptions
}

// BatchExport renders the given faces concurrently and writes the files.
// It returns the written paths.
func BatchExport(ctx context.Context, faces map[domain.Face][]domain.Element, opt BatchOptions) ([]string, error) {
	if opt.OutDir == "" {
		return nil, fmt.Errorf("output dir is required")
	}
	ro := opt.Preset.Apply(opt.Raster)
	imgs, err := RenderFaces(ctx, faces, ro)
	if err != nil {
		return nil, err
	}
	var written []string
	sheet := make(map[domain.Face]image.Image, len(imgs))
	for _, f := range []domain.Face{domain.FaceFront, domain.FaceBack} {
		img, ok := imgs[f]
		if !ok {
			continue
		}
		sheet[f] = img
		data, err := EncodePNG(img)
		if err != nil {
			return written, err
		}
		p := filepath.Join(opt.OutDir, string(f)+".png")
		if err := writeFile(p, data); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	if opt.PDF {
		s := opt.Sheet
		s.Guides = s.Guides || opt.Preset == PresetPrint
		p := filepath.Join(opt.OutDir, "card.pdf")
		if err := CardPDF(p, sheet, s); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	return written, nil
}
