/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package preview serves a read-only HTTP view of the card faces: the
// persisted state as JSON, a PNG rendering and the Prometheus metrics.
package preview

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"cardcanvas/internal/domain"
	"cardcanvas/internal/export"
	applog "cardcanvas/internal/log"
	"cardcanvas/internal/metrics"
	"cardcanvas/internal/persist"
	"cardcanvas/internal/version"
)

// Options configures the server. Metrics may be nil.
type Options struct {
	Canvas  domain.CanvasSize
	Raster  export.RasterOptions
	Metrics *metrics.Collector
}

// Server is the preview HTTP handler.
type Server struct {
	src Source
	opt Options
	log *slog.Logger
	mux chi.Router
}

// New builds the router.
func New(src Source, opt Options) *Server {
	if !opt.Canvas.Valid() {
		opt.Canvas = domain.CanvasSize{W: 1050, H: 600}
	}
	opt.Raster.Canvas = opt.Canvas
	s := &Server{src: src, opt: opt, log: applog.WithComponent("preview")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", s.handleHealth)
	r.Route("/faces/{face}", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/preview.png", s.handlePNG)
	})
	if opt.Metrics != nil {
		r.Handle("/metrics", opt.Metrics.Handler())
	}
	s.mux = r
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.log.Info("preview server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.log.Info("preview server stopped")
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": version.String()})
}

func (s *Server) face(w http.ResponseWriter, r *http.Request) ([]domain.Element, domain.Face, bool) {
	face, err := domain.ParseFace(chi.URLParam(r, "face"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return nil, "", false
	}
	elems, err := s.src.Face(r.Context(), face)
	if err != nil {
		s.log.Error("read face", slog.String("face", string(face)), slog.Any("err", err))
		writeError(w, http.StatusInternalServerError, err)
		return nil, "", false
	}
	return elems, face, true
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	elems, _, ok := s.face(w, r)
	if !ok {
		return
	}
	data, err := persist.Encode(elems, s.opt.Canvas)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (s *Server) handlePNG(w http.ResponseWriter, r *http.Request) {
	elems, face, ok := s.face(w, r)
	if !ok {
		return
	}
	ro := s.opt.Raster
	if v := r.URL.Query().Get("scale"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 || f > 4 {
			writeError(w, http.StatusBadRequest, errors.New("scale must be in (0, 4]"))
			return
		}
		ro.Scale = f
	}
	img, err := export.RenderFace(r.Context(), elems, ro)
	if m := s.opt.Metrics; m != nil {
		m.RecordExport(string(face), err)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	data, err := export.EncodePNG(img)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(data)
}
