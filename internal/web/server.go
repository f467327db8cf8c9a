// Package web serves the HTTP surface: the aircraft JSON feeds, the
// receiver descriptor, static files from the web root, the Prometheus
// metrics, and the WebSocket echo endpoint.
package web

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"adsb1090/internal/stats"
	"adsb1090/internal/track"
)

//go:embed assets/favicon.png assets/favicon.ico
var assets embed.FS

// Config holds the HTTP-side settings.
type Config struct {
	Port    int
	WebRoot string
	WebPage string

	HomeLat float64
	HomeLon float64
	HasHome bool

	RefreshMS int
	Version   string
}

// Server is the HTTP front end. It reads the registry only through
// snapshots and never touches the registry lock during encoding.
type Server struct {
	cfg      Config
	registry *track.Registry
	stats    *stats.Stats
	gatherer prometheus.Gatherer
	logger   *logrus.Logger
}

// NewServer wires the HTTP surface.
func NewServer(cfg Config, reg *track.Registry, st *stats.Stats, gatherer prometheus.Gatherer, logger *logrus.Logger) *Server {
	if cfg.WebPage == "" {
		cfg.WebPage = "/gmap.html"
	}
	if cfg.RefreshMS == 0 {
		cfg.RefreshMS = 1000
	}
	return &Server{cfg: cfg, registry: reg, stats: st, gatherer: gatherer, logger: logger}
}

// Router builds the handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Location", s.cfg.WebPage)
		w.WriteHeader(http.StatusMovedPermanently)
	})

	r.Get("/data.json", s.handleLegacyData)
	r.Get("/data/aircraft.json", s.handleAircraft)
	r.Get("/chunks/chunks.json", s.handleAircraft)
	r.Get("/data/receiver.json", s.handleReceiver)
	r.Get("/data/stats.json", s.handleStats)
	r.Get("/echo", s.handleEcho)

	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Get("/favicon.png", s.handleFavicon("assets/favicon.png", "image/png"))
	r.Get("/favicon.ico", s.handleFavicon("assets/favicon.ico", "image/x-icon"))

	if s.cfg.WebRoot != "" {
		r.NotFound(http.FileServer(http.Dir(s.cfg.WebRoot)).ServeHTTP)
	}

	return r
}

// Start runs the HTTP listener until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.Router(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutCtx)
	}()

	s.logger.WithField("port", s.cfg.Port).Info("HTTP service listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// CheckWebRoot verifies the configured web root exists; HTTP startup
// is refused without it.
func CheckWebRoot(webRoot string) error {
	if webRoot == "" {
		return nil
	}
	info, err := os.Stat(webRoot)
	if err != nil {
		return fmt.Errorf("web root %q: %w", webRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("web root %q is not a directory", webRoot)
	}
	return nil
}

func (s *Server) writeJSON(w http.ResponseWriter, req *http.Request, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	if req.Header.Get("Connection") == "keep-alive" {
		w.Header().Set("Connection", "keep-alive")
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Debug("JSON encode failed")
	}
	if s.stats != nil {
		s.stats.Inc("http", "json_responses")
	}
}

func (s *Server) handleLegacyData(w http.ResponseWriter, req *http.Request) {
	views := s.registry.Snapshot()
	out := make([]map[string]any, 0, len(views))
	for _, v := range views {
		out = append(out, legacyAircraftJSON(v))
	}
	s.writeJSON(w, req, out)
}

func (s *Server) handleAircraft(w http.ResponseWriter, req *http.Request) {
	now := time.Now()
	views := s.registry.Snapshot()
	aircraft := make([]map[string]any, 0, len(views))
	for _, v := range views {
		aircraft = append(aircraft, aircraftJSON(v, now))
	}
	s.writeJSON(w, req, map[string]any{
		"now":      float64(now.UnixMilli()) / 1000,
		"messages": s.registry.TotalMessages(),
		"aircraft": aircraft,
	})
}

func (s *Server) handleReceiver(w http.ResponseWriter, req *http.Request) {
	out := map[string]any{
		"version": s.cfg.Version,
		"refresh": s.cfg.RefreshMS,
		"history": 0,
	}
	if s.cfg.HasHome {
		out["lat"] = s.cfg.HomeLat
		out["lon"] = s.cfg.HomeLon
	}
	s.writeJSON(w, req, out)
}

func (s *Server) handleStats(w http.ResponseWriter, req *http.Request) {
	zone, dist, speed, cell := s.registry.GateStats()
	s.writeJSON(w, req, map[string]any{
		"services": s.stats.Snapshot(),
		"cpr": map[string]uint64{
			"zone_crossed":  zone,
			"distance_gate": dist,
			"speed_gate":    speed,
			"outside_cell":  cell,
		},
	})
}

func (s *Server) handleFavicon(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		b, err := assets.ReadFile(name)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write(b)
	}
}
