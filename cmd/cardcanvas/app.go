/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"cardcanvas/internal/backend"
	"cardcanvas/internal/config"
	"cardcanvas/internal/domain"
	"cardcanvas/internal/editor"
	"cardcanvas/internal/export"
	"cardcanvas/internal/gesture"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/metrics"
	"cardcanvas/internal/persist"
	"cardcanvas/internal/preview"
	"cardcanvas/internal/storage"
	"cardcanvas/internal/telemetry"
	"cardcanvas/internal/textlayout"
	"cardcanvas/internal/ui"
)

type usageError string

func (e usageError) Error() string { return string(e) }

// app holds what every command needs: the opened store and the resolved tunables.
type app struct {
	cfg     config.AppConfig
	kv      storage.KV
	editor  editor.Config
	metrics *metrics.Collector
	backend *backend.Client
	dataDir string
	log     *slog.Logger
}

func newApp(ctx context.Context, cfg config.AppConfig, token string) (*app, error) {
	so, err := cfg.StorageOptions()
	if err != nil {
		return nil, err
	}
	kv, err := storage.Open(ctx, so)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	fonts, err := textlayout.NewProvider(cfg.Canvas.FontFile)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("load font: %w", err)
	}
	dataDir := so.Dir
	if dataDir == "" {
		if base, derr := config.ConfigDir(); derr == nil {
			dataDir = base
		}
	}
	a := &app{
		cfg:     cfg,
		kv:      kv,
		editor:  editorConfig(cfg, fonts),
		metrics: metrics.NewCollector("cardcanvas"),
		dataDir: dataDir,
		log:     applog.WithComponent("cli"),
	}
	if cfg.Backend.BaseURL != "" {
		a.backend = backend.NewClient(cfg.Backend.BaseURL, token, cfg.Backend.Timeout())
	}
	return a, nil
}

func (a *app) Close() {
	if err := a.kv.Close(); err != nil {
		a.log.Warn("close storage", slog.Any("err", err))
	}
}

func editorConfig(cfg config.AppConfig, fonts textlayout.Provider) editor.Config {
	return editor.Config{
		Canvas:    cfg.Canvas.Size(),
		SizeFloor: cfg.Canvas.SizeFloor,
		MinScale:  cfg.Canvas.MinScale,
		MaxScale:  cfg.Canvas.MaxScale,
		Gesture: gesture.Config{
			ResizeDivisor: cfg.Canvas.ResizeDivisor,
			HandleSize:    cfg.Canvas.HandleSize,
			TapSlop:       cfg.Canvas.TapSlop,
		},
		Fonts: fonts,
	}
}

func (a *app) rasterOptions() export.RasterOptions {
	return export.RasterOptions{Canvas: a.editor.Canvas, Fonts: a.editor.Fonts}
}

func (a *app) source() preview.KVSource {
	return preview.KVSource{KV: a.kv, Canvas: a.editor.Canvas}
}

func (a *app) dispatch(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "show":
		return a.show(ctx, args)
	case "add-text":
		return a.addText(ctx, args)
	case "add-image":
		return a.addImage(ctx, args)
	case "export":
		return a.export(ctx, args)
	case "pdf":
		return a.pdf(ctx, args)
	case "reset":
		return a.reset(ctx, args)
	case "history":
		return a.history(ctx, args)
	case "serve":
		return a.serve(ctx, args)
	case "ping":
		return a.ping(ctx)
	case "ui":
		return a.ui()
	}
	return usageError(fmt.Sprintf("unknown command %q", cmd))
}

func faceArg(args []string, cmd string, n int) (domain.Face, error) {
	if len(args) < n {
		return "", usageError(fmt.Sprintf("%s requires %d argument(s)", cmd, n))
	}
	f, err := domain.ParseFace(args[0])
	if err != nil {
		return "", usageError(err.Error())
	}
	return f, nil
}

// session opens face on a private writer; callers flush before returning.
func (a *app) session(ctx context.Context, face domain.Face) *editor.Session {
	w := persist.NewWriter(a.kv, persist.Hooks{OnWrite: a.metrics.RecordWrite, OnCoalesce: a.metrics.RecordCoalesce})
	return editor.OpenSession(ctx, face, a.kv, w, a.editor, editor.SessionOptions{Metrics: a.metrics, Telemetry: telemetry.Default()})
}

func (a *app) show(ctx context.Context, args []string) error {
	face, err := faceArg(args, "show", 1)
	if err != nil {
		return err
	}
	elems, err := a.source().Face(ctx, face)
	if err != nil {
		return err
	}
	data, err := persist.Encode(elems, a.editor.Canvas)
	if err != nil {
		return err
	}
	var pretty any
	if err := json.Unmarshal(data, &pretty); err != nil {
		return err
	}
	out, err := json.MarshalIndent(pretty, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func (a *app) addText(ctx context.Context, args []string) error {
	face, err := faceArg(args, "add-text", 2)
	if err != nil {
		return err
	}
	s := a.session(ctx, face)
	id := s.AddText()
	s.Store().UpdateText(id, args[1])
	if err := s.Flush(ctx); err != nil {
		return err
	}
	fmt.Printf("Added text #%d to %s\n", id, face)
	return nil
}

func (a *app) addImage(ctx context.Context, args []string) error {
	face, err := faceArg(args, "add-image", 2)
	if err != nil {
		return err
	}
	ref := args[1]
	if _, statErr := os.Stat(ref); statErr == nil {
		if abs, absErr := filepath.Abs(ref); absErr == nil {
			ref = "file://" + filepath.ToSlash(abs)
		}
	}
	s := a.session(ctx, face)
	pick := editor.PickerFunc(func(context.Context) (string, error) { return ref, nil })
	id, err := s.AddImage(ctx, pick, editor.LogNotifier{})
	if err != nil {
		return err
	}
	if err := s.Flush(ctx); err != nil {
		return err
	}
	fmt.Printf("Added image #%d to %s\n", id, face)
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	face, err := faceArg(args, "export", 2)
	if err != nil {
		return err
	}
	preset := export.PresetWeb
	if len(args) > 2 {
		if preset, err = export.ParsePreset(args[2]); err != nil {
			return usageError(err.Error())
		}
	}
	elems, err := a.source().Face(ctx, face)
	if err != nil {
		return err
	}
	err = export.WritePNGFile(ctx, args[1], elems, preset.Apply(a.rasterOptions()))
	a.metrics.RecordExport(string(face), err)
	if err != nil {
		return err
	}
	fmt.Println("Wrote", args[1])
	return nil
}

func (a *app) pdf(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return usageError("pdf requires <out.pdf>")
	}
	faces := make(map[domain.Face][]domain.Element, 2)
	for _, f := range []domain.Face{domain.FaceFront, domain.FaceBack} {
		elems, err := a.source().Face(ctx, f)
		if err != nil {
			return err
		}
		faces[f] = elems
	}
	imgs, err := export.RenderFaces(ctx, faces, export.PresetPrint.Apply(a.rasterOptions()))
	if err != nil {
		return err
	}
	pages := make(map[domain.Face]image.Image, len(imgs))
	for f, img := range imgs {
		pages[f] = img
	}
	if err := export.CardPDF(args[0], pages, export.PDFOptions{Title: "Card", Guides: true}); err != nil {
		return err
	}
	fmt.Println("Wrote", args[0])
	return nil
}

func (a *app) reset(ctx context.Context, args []string) error {
	face, err := faceArg(args, "reset", 1)
	if err != nil {
		return err
	}
	s := a.session(ctx, face)
	if err := s.Reset(ctx); err != nil {
		return err
	}
	fmt.Printf("Cleared %s\n", face)
	return nil
}

func (a *app) history(ctx context.Context, args []string) error {
	face, err := faceArg(args, "history", 1)
	if err != nil {
		return err
	}
	limit := 10
	if len(args) > 1 {
		if limit, err = strconv.Atoi(args[1]); err != nil || limit <= 0 {
			return usageError("history limit must be a positive number")
		}
	}
	h, ok := a.kv.(storage.Historian)
	if !ok {
		return fmt.Errorf("storage %q keeps no history", a.cfg.Storage.Kind)
	}
	revs, err := h.History(ctx, face.StorageKey(), limit)
	if err != nil {
		return err
	}
	for _, r := range revs {
		fmt.Printf("%s  %d bytes\n", r.TS.Format(time.RFC3339), len(r.Value))
	}
	if len(revs) == 0 {
		fmt.Println("No revisions.")
	}
	return nil
}

func (a *app) serve(ctx context.Context, args []string) error {
	addr := a.cfg.General.ServerAddr
	if len(args) > 0 {
		addr = args[0]
	}
	srv := preview.New(a.source(), preview.Options{Canvas: a.editor.Canvas, Raster: a.rasterOptions(), Metrics: a.metrics})
	a.log.Info("serving previews", slog.String("addr", addr))
	return srv.ListenAndServe(ctx, addr)
}

func (a *app) ping(ctx context.Context) error {
	if a.backend == nil {
		return fmt.Errorf("no backend configured")
	}
	if err := a.backend.Health(ctx); err != nil {
		return err
	}
	fmt.Println("Backend OK:", a.cfg.Backend.BaseURL)
	return nil
}

func (a *app) ui() error {
	opts := ui.Options{
		KV:        a.kv,
		Editor:    a.editor,
		Exporter:  export.Rasterizer{Options: a.rasterOptions(), OutDir: filepath.Join(a.dataDir, "exports")},
		Metrics:   a.metrics,
		Telemetry: telemetry.Default(),
		DataDir:   a.dataDir,
	}
	if a.backend != nil {
		opts.Navigator = a.backend
	}
	if a.cfg.General.EnableServer {
		srv := preview.New(a.source(), preview.Options{Canvas: a.editor.Canvas, Raster: a.rasterOptions(), Metrics: a.metrics})
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := srv.ListenAndServe(ctx, a.cfg.General.ServerAddr); err != nil {
				a.log.Warn("preview server stopped", slog.Any("err", err))
			}
		}()
	}
	return ui.Run(opts)
}
