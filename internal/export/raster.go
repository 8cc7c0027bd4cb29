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
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG for image elements
	"image/png"
	"log/slog"
	"math"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/bmp" // register BMP for image elements
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp" // register WebP for image elements
	"golang.org/x/sync/errgroup"

	"cardcanvas/internal/domain"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/textlayout"
)

// ImageLoader resolves the opaque content reference of an image element.
type ImageLoader interface {
	Load(ctx context.Context, ref string) (image.Image, error)
}

// FileImageLoader reads file:// URIs and plain paths. Relative paths resolve
// against BaseDir.
type FileImageLoader struct{ BaseDir string }

func (l FileImageLoader) Load(_ context.Context, ref string) (image.Image, error) {
	p := ref
	if strings.HasPrefix(ref, "file://") {
		u, err := url.Parse(ref)
		if err != nil {
			return nil, fmt.Errorf("parse %q: %w", ref, err)
		}
		p = u.Path
	} else if strings.Contains(ref, "://") {
		return nil, fmt.Errorf("unsupported image reference %q", ref)
	}
	if !filepath.IsAbs(p) && l.BaseDir != "" {
		p = filepath.Join(l.BaseDir, p)
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", p, err)
	}
	return img, nil
}

// RasterOptions controls face rasterization.
// Scale multiplies the canvas size into output pixels (1 keeps canvas pixels).
// Zero values get defaults: 1050×600 canvas, scale 1, white background,
// Go fonts and file-based image loading.
type RasterOptions struct {
	Canvas     domain.CanvasSize
	Scale      float64
	Background color.Color
	Fonts      textlayout.Provider
	Images     ImageLoader
	Guides     bool
}

func (o RasterOptions) withDefaults() RasterOptions {
	if !o.Canvas.Valid() {
		o.Canvas = domain.CanvasSize{W: 1050, H: 600}
	}
	if o.Scale <= 0 {
		o.Scale = 1
	}
	if o.Background == nil {
		o.Background = color.White
	}
	if o.Fonts == nil {
		o.Fonts = textlayout.DefaultProvider()
	}
	if o.Images == nil {
		o.Images = FileImageLoader{}
	}
	return o
}

var placeholderFill = color.RGBA{R: 0xDD, G: 0xDD, B: 0xDD, A: 0xFF}
var guideColor = color.RGBA{R: 255, G: 0, B: 0, A: 255}

// RenderFace draws elems bottom to top onto a new image. Images that cannot be
// loaded are drawn as grey placeholders.
func RenderFace(ctx context.Context, elems []domain.Element, opt RasterOptions) (*image.RGBA, error) {
	opt = opt.withDefaults()
	l := applog.WithOperation(applog.WithComponent("export"), "render")
	s := opt.Scale
	pixW := int(math.Round(opt.Canvas.W * s))
	pixH := int(math.Round(opt.Canvas.H * s))
	img := image.NewRGBA(image.Rect(0, 0, pixW, pixH))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: opt.Background}, image.Point{}, draw.Src)

	for _, e := range elems {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch e.Kind {
		case domain.KindImage:
			x := int(math.Round(e.Transform.X * s))
			y := int(math.Round(e.Transform.Y * s))
			side := int(math.Round(e.Size * s))
			dst := image.Rect(x, y, x+side, y+side)
			src, err := opt.Images.Load(ctx, e.Content)
			if err != nil {
				l.Warn("image unavailable; drawing placeholder", slog.Int("id", e.ID), slog.Any("err", err))
				fillRect(img, dst.Min.X, dst.Min.Y, dst.Max.X-1, dst.Max.Y-1, placeholderFill)
				strokeRect(img, dst.Min.X, dst.Min.Y, dst.Max.X-1, dst.Max.Y-1, color.RGBA{A: 255})
				continue
			}
			draw.CatmullRom.Scale(img, fitInside(dst, src.Bounds()), src, src.Bounds(), draw.Over, nil)
		case domain.KindText:
			drawText(img, e, s, opt.Fonts)
		}
	}
	if opt.Guides {
		strokeRect(img, 0, 0, pixW-1, pixH-1, guideColor)
	}
	return img, nil
}

// fitInside returns the largest rect with src's aspect ratio centered in dst.
func fitInside(dst, src image.Rectangle) image.Rectangle {
	sw, sh := float64(src.Dx()), float64(src.Dy())
	if sw <= 0 || sh <= 0 {
		return dst
	}
	k := math.Min(float64(dst.Dx())/sw, float64(dst.Dy())/sh)
	w := int(math.Round(sw * k))
	h := int(math.Round(sh * k))
	x := dst.Min.X + (dst.Dx()-w)/2
	y := dst.Min.Y + (dst.Dy()-h)/2
	return image.Rect(x, y, x+w, y+h)
}

func drawText(img *image.RGBA, e domain.Element, s float64, fonts textlayout.Provider) {
	st := domain.DefaultStyle()
	if e.Style != nil {
		st = *e.Style
	}
	col, err := domain.ParseHexColor(st.Color)
	if err != nil {
		col = color.RGBA{A: 255}
	}
	block := textlayout.Layout(fonts, e.Content, textlayout.SpecFor(&st, e.Size*s))
	d := &font.Drawer{Dst: img, Src: image.NewUniform(col), Face: block.Face}
	ox := e.Transform.X * s
	oy := e.Transform.Y * s
	thick := int(math.Max(1, math.Round(e.Size*s/15)))
	for _, ln := range block.Lines {
		base := oy + ln.Baseline
		d.Dot = fixed.Point26_6{X: fixed.Int26_6(ox * 64), Y: fixed.Int26_6(base * 64)}
		d.DrawString(ln.Text)
		if st.Underline && ln.Width > 0 {
			uy := int(math.Round(base + block.Metrics.Descent/2))
			fillRect(img, int(math.Round(ox)), uy, int(math.Round(ox+ln.Width))-1, uy+thick-1, col)
		}
	}
}

// EncodePNG encodes img as PNG bytes.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// WritePNGFile renders elems and writes the result to path.
func WritePNGFile(ctx context.Context, path string, elems []domain.Element, opt RasterOptions) error {
	img, err := RenderFace(ctx, elems, opt)
	if err != nil {
		return err
	}
	data, err := EncodePNG(img)
	if err != nil {
		return err
	}
	return writeFile(path, data)
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// RenderFaces rasterizes several faces concurrently.
func RenderFaces(ctx context.Context, faces map[domain.Face][]domain.Element, opt RasterOptions) (map[domain.Face]*image.RGBA, error) {
	g, ctx := errgroup.WithContext(ctx)
	type result struct {
		face domain.Face
		img  *image.RGBA
	}
	results := make(chan result, len(faces))
	for f, elems := range faces {
		f, elems := f, elems
		g.Go(func() error {
			img, err := RenderFace(ctx, elems, opt)
			if err != nil {
				return fmt.Errorf("render %s: %w", f, err)
			}
			results <- result{face: f, img: img}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	close(results)
	out := make(map[domain.Face]*image.RGBA, len(faces))
	for r := range results {
		out[r.face] = r.img
	}
	return out, nil
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			img.SetRGBA(x, y, col)
		}
	}
}
