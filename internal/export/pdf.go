/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/jung-kurt/gofpdf"

	"cardcanvas/internal/domain"
)

// PDFOptions controls the print sheet. Units are inches.
//
// Coordinates:
// - Page origin is top-left.
// - Each face fills one page of the card size; Bleed adds an outer margin.
// - Guides draws the trim box as a hairline.
type PDFOptions struct {
	WidthIn  float64 // default 3.5
	HeightIn float64 // default 2
	BleedIn  float64
	Guides   bool
	Title    string
}

// CardPDF writes a PDF with one page per face (front first) to outPath.
// Faces missing from the map are skipped.
func CardPDF(outPath string, faces map[domain.Face]image.Image, opt PDFOptions) error {
	if len(faces) == 0 {
		return fmt.Errorf("no faces to print")
	}
	if opt.WidthIn <= 0 {
		opt.WidthIn = 3.5
	}
	if opt.HeightIn <= 0 {
		opt.HeightIn = 2
	}
	bleed := opt.BleedIn
	mediaW := opt.WidthIn + 2*bleed
	mediaH := opt.HeightIn + 2*bleed

	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "in",
		Size:    gofpdf.SizeType{Wd: mediaW, Ht: mediaH},
	})
	title := opt.Title
	if title == "" {
		title = "Card"
	}
	pdf.SetTitle(title, false)
	pdf.SetAuthor("cardcanvas", false)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)

	for _, f := range []domain.Face{domain.FaceFront, domain.FaceBack} {
		img, ok := faces[f]
		if !ok || img == nil {
			continue
		}
		data, err := EncodePNG(img)
		if err != nil {
			return err
		}
		name := "face-" + string(f)
		pdf.RegisterImageOptionsReader(name, gofpdf.ImageOptions{ImageType: "PNG"}, bytes.NewReader(data))
		pdf.AddPageFormat("", gofpdf.SizeType{Wd: mediaW, Ht: mediaH})
		pdf.ImageOptions(name, bleed, bleed, opt.WidthIn, opt.HeightIn, false, gofpdf.ImageOptions{ImageType: "PNG"}, 0, "")
		if opt.Guides {
			pdf.SetDrawColor(255, 0, 0)
			pdf.SetLineWidth(0.003)
			pdf.Rect(bleed, bleed, opt.WidthIn, opt.HeightIn, "D")
		}
	}
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("build pdf: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}
