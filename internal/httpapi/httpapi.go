// Package httpapi is the engine's admin/control surface: a small chi
// router exposing stats, memory, state dumps, prefetch sweeps, and ring
// reconfiguration, gated by a bearer token. It carries control and
// introspection traffic only; asset bytes never leave the process
// through it.
package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrel-engine/streamforge"
	"github.com/kestrel-engine/streamforge/internal/logger"
	"github.com/kestrel-engine/streamforge/internal/prefetch"
	"github.com/kestrel-engine/streamforge/internal/queue"
	"github.com/kestrel-engine/streamforge/internal/spatial"
)

// Server wraps an Engine with the admin HTTP routes.
type Server struct {
	engine *streamforge.Engine
	secret []byte
	router chi.Router
}

// New builds the admin router. secret signs and verifies the HS256 bearer
// tokens; an empty secret disables authentication (development only).
func New(engine *streamforge.Engine, secret []byte) *Server {
	s := &Server{engine: engine, secret: secret}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.auth)

	r.Get("/v1/stats", s.handleStats)
	r.Get("/v1/memory", s.handleMemory)
	r.Post("/v1/dump", s.handleDump)
	r.Post("/v1/prefetch", s.handlePrefetch)
	r.Post("/v1/rings", s.handleRings)
	r.Handle("/metrics", promhttp.HandlerFor(engine.Stats().Registry(), promhttp.HandlerOpts{}))

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// IssueToken mints a bearer token valid for ttl, for operators wiring up
// dashboards or scrapers.
func (s *Server) IssueToken(subject string, ttl time.Duration) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"exp": time.Now().Add(ttl).Unix(),
		"iat": time.Now().Unix(),
	})
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("httpapi: sign token: %w", err)
	}
	return signed, nil
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(s.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}
		raw := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if raw == "" || raw == r.Header.Get("Authorization") {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}
		_, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		}, jwt.WithValidMethods([]string{"HS256"}))
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("httpapi: encode response: %v", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	snap := s.engine.GetStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_requests":       snap.TotalRequests,
		"completed":            snap.Completed,
		"failed":               snap.Failed,
		"cache_hits":           snap.CacheHits,
		"cache_misses":         snap.CacheMisses,
		"bytes_loaded":         snap.BytesLoaded,
		"bytes_evicted":        snap.BytesEvicted,
		"current_memory_usage": snap.CurrentMemoryUsage,
		"peak_memory_usage":    snap.PeakMemoryUsage,
		"fragmentation":        snap.Fragmentation,
		"avg_load_time":        snap.AverageLoadTime.String(),
		"peak_load_time":       snap.PeakLoadTime.String(),
		"resident_assets":      snap.ResidentAssets,
		"queue_depths":         snap.QueueDepths,
	})
}

func (s *Server) handleMemory(w http.ResponseWriter, _ *http.Request) {
	m := s.engine.GetMemoryStats()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"used":          m.Used,
		"available":     m.Available,
		"fragmentation": m.Fragmentation,
	})
}

func (s *Server) handleDump(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Path == "" {
		http.Error(w, "body must be {\"path\": \"...\"}", http.StatusBadRequest)
		return
	}
	if err := s.engine.DumpState(body.Path); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"written": body.Path})
}

func (s *Server) handlePrefetch(w http.ResponseWriter, r *http.Request) {
	var body struct {
		X      float64 `json:"x"`
		Y      float64 `json:"y"`
		Z      float64 `json:"z"`
		Radius float64 `json:"radius"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Radius <= 0 {
		http.Error(w, `body must be {"x","y","z","radius"}`, http.StatusBadRequest)
		return
	}
	n := s.engine.PrefetchRadius(spatial.Point{X: body.X, Y: body.Y, Z: body.Z}, body.Radius)
	writeJSON(w, http.StatusOK, map[string]int{"emitted": n})
}

type ringBody struct {
	InnerRadius float64 `json:"inner_radius"`
	OuterRadius float64 `json:"outer_radius"`
	Priority    string  `json:"priority"`
	MaxAssets   int     `json:"max_assets"`
}

func (s *Server) handleRings(w http.ResponseWriter, r *http.Request) {
	var body []ringBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) == 0 {
		http.Error(w, "body must be a non-empty ring list", http.StatusBadRequest)
		return
	}
	rings := make([]prefetch.Ring, 0, len(body))
	for _, rb := range body {
		p, ok := priorityByName(rb.Priority)
		if !ok {
			http.Error(w, fmt.Sprintf("unknown priority %q", rb.Priority), http.StatusBadRequest)
			return
		}
		rings = append(rings, prefetch.Ring{
			InnerRadius: rb.InnerRadius,
			OuterRadius: rb.OuterRadius,
			Priority:    p,
			MaxAssets:   rb.MaxAssets,
		})
	}
	s.engine.ConfigureRings(rings)
	writeJSON(w, http.StatusOK, map[string]int{"rings": len(rings)})
}

func priorityByName(name string) (queue.Priority, bool) {
	switch strings.ToLower(name) {
	case "critical":
		return queue.Critical, true
	case "high":
		return queue.High, true
	case "normal":
		return queue.Normal, true
	case "prefetch":
		return queue.Prefetch, true
	case "low":
		return queue.Low, true
	}
	return 0, false
}
