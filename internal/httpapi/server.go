// Package httpapi serves the control and diagnostics API of the scanner daemon:
// health, statistics, the latest preview, the viewport and a websocket feed of
// results.
//
//	GET  /health       liveness and scanner state
//	GET  /stats        scanner and capture counters
//	GET  /preview.png  latest enhanced crop
//	GET  /viewport     current viewport
//	PUT  /viewport     replace the viewport {"width": 393, "height": 852}
//	GET  /ws           result and error events (JSON text frames)
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"github.com/e7canasta/orion-codescan/internal/capture"
	"github.com/e7canasta/orion-codescan/internal/emitter"
	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/scheduler"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Scanner is the part of the scanner the API controls.
type Scanner interface {
	Stats() scheduler.Stats
	SetViewport(v geometry.Viewport)
	Viewport() geometry.Viewport
}

// Options configures the server.
type Options struct {
	Addr     string
	Instance string
	// Capture returns capture statistics (optional).
	Capture func() capture.Stats
	// PreviewScale and PreviewRotate shape /preview.png.
	PreviewScale  int
	PreviewRotate bool
}

// Server is the HTTP API. It also implements scheduler.Sink to collect the
// latest preview and to feed websocket clients.
type Server struct {
	scanner Scanner
	opts    Options
	started time.Time

	hub     *Hub
	latest  atomic.Pointer[scheduler.Preview]
	router  *mux.Router
	httpSrv *http.Server
}

// New creates the server.
func New(scanner Scanner, opts Options) *Server {
	if opts.PreviewScale <= 0 {
		opts.PreviewScale = 1
	}
	s := &Server{
		scanner: scanner,
		opts:    opts,
		started: time.Now(),
		hub:     newHub(),
	}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/preview.png", s.handlePreview).Methods(http.MethodGet)
	r.HandleFunc("/viewport", s.handleGetViewport).Methods(http.MethodGet)
	r.HandleFunc("/viewport", s.handlePutViewport).Methods(http.MethodPut)
	r.HandleFunc("/ws", s.hub.serveWS).Methods(http.MethodGet)
	return r
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("httpapi: listening", "addr", s.opts.Addr)
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.hub.Close()
	if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("httpapi: stopped")
	return nil
}

// Health is the /health response.
type Health struct {
	Status           string `json:"status"` // "healthy", "degraded", "stopped"
	Instance         string `json:"instance"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
	Running          bool   `json:"running"`
	State            string `json:"state"`
	ViewportSet      bool   `json:"viewport_set"`
	CaptureConnected *bool  `json:"capture_connected,omitempty"`
	WSClients        int    `json:"ws_clients"`
}

// Health computes the current health status.
func (s *Server) Health() Health {
	st := s.scanner.Stats()
	h := Health{
		Status:        "healthy",
		Instance:      s.opts.Instance,
		UptimeSeconds: int64(time.Since(s.started).Seconds()),
		Running:       st.Running,
		State:         st.State,
		ViewportSet:   st.Viewport.Valid(),
		WSClients:     s.hub.Clients(),
	}
	if s.opts.Capture != nil {
		connected := s.opts.Capture().Connected
		h.CaptureConnected = &connected
		if !connected {
			h.Status = "degraded"
		}
	}
	if !h.ViewportSet {
		h.Status = "degraded"
	}
	if !st.Running {
		h.Status = "stopped"
	}
	return h
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	h := s.Health()
	code := http.StatusOK
	if h.Status == "stopped" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, h)
}

// StatsResponse is the /stats response.
type StatsResponse struct {
	Instance  string          `json:"instance"`
	Scanner   scheduler.Stats `json:"scanner"`
	Capture   *capture.Stats  `json:"capture,omitempty"`
	WSDropped uint64          `json:"ws_dropped"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		Instance:  s.opts.Instance,
		Scanner:   s.scanner.Stats(),
		WSDropped: s.hub.Dropped(),
	}
	if s.opts.Capture != nil {
		cs := s.opts.Capture()
		resp.Capture = &cs
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	p := s.latest.Load()
	if p == nil || p.Image == nil {
		http.Error(w, "no preview yet", http.StatusNotFound)
		return
	}
	img := emitter.DisplayImage(p.Image, s.opts.PreviewScale, s.opts.PreviewRotate)

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Frame-Seq", fmt.Sprint(p.Seq))
	if err := imaging.Encode(w, img, imaging.PNG); err != nil {
		slog.Debug("httpapi: preview write failed", "error", err)
	}
}

// ViewportRequest is the PUT /viewport body and GET /viewport response.
type ViewportRequest struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (s *Server) handleGetViewport(w http.ResponseWriter, r *http.Request) {
	vp := s.scanner.Viewport()
	writeJSON(w, http.StatusOK, ViewportRequest{Width: vp.Width, Height: vp.Height})
}

func (s *Server) handlePutViewport(w http.ResponseWriter, r *http.Request) {
	var req ViewportRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, 4096))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	vp := geometry.NewViewport(req.Width, req.Height)
	if !vp.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("viewport %vx%v: width and height must be positive", req.Width, req.Height))
		return
	}

	s.scanner.SetViewport(vp)
	slog.Info("httpapi: viewport updated", "width", vp.Width, "height", vp.Height, "remote", r.RemoteAddr)
	writeJSON(w, http.StatusOK, req)
}

// OnPreview implements scheduler.Sink.
func (s *Server) OnPreview(p scheduler.Preview) {
	s.latest.Store(&p)
}

// OnResult implements scheduler.Sink.
func (s *Server) OnResult(r scheduler.Result) {
	s.broadcast(emitter.FromResult(s.opts.Instance, r))
}

// OnError implements scheduler.Sink.
func (s *Server) OnError(e scheduler.ErrorReport) {
	s.broadcast(emitter.FromError(s.opts.Instance, e))
}

func (s *Server) broadcast(ev emitter.Event) {
	msg, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("httpapi: failed to marshal event", "error", err)
		return
	}
	s.hub.Broadcast(msg)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("httpapi: response write failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
