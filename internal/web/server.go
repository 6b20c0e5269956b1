// Package web serves the browser UI, its websockets and a JSON API over
// the registered systems.
package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/signalsfoundry/orrery/core"
	"github.com/signalsfoundry/orrery/internal/logging"
	"github.com/signalsfoundry/orrery/internal/observability"
	"github.com/signalsfoundry/orrery/internal/sim"
	"github.com/signalsfoundry/orrery/kb"
)

// Clock reports the current simulation time.
type Clock interface {
	Now() time.Time
}

// Config controls the HTTP surface.
type Config struct {
	StaticDir string
	EchoDelay time.Duration
	RateLimit float64 // requests per second per client, 0 disables
	RateBurst int
}

// Server holds the HTTP handlers.
type Server struct {
	cfg     Config
	kb      *kb.KnowledgeBase
	engine  *sim.Engine
	clock   Clock
	log     logging.Logger
	metrics *observability.Collector
}

// NewServer constructs the HTTP surface. metrics may be nil.
func NewServer(cfg Config, store *kb.KnowledgeBase, engine *sim.Engine, clock Clock, log logging.Logger, metrics *observability.Collector) *Server {
	if log == nil {
		log = logging.Noop()
	}
	return &Server{cfg: cfg, kb: store, engine: engine, clock: clock, log: log, metrics: metrics}
}

// Handler returns the routed and wrapped handler tree.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	if s.cfg.StaticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	mux.HandleFunc("GET /websocket", s.handleEcho)
	mux.HandleFunc("GET /ws/ephemeris", s.handleEphemerisStream)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	var api http.Handler = s.apiRoutes()
	if s.cfg.RateLimit > 0 {
		api = NewClientRateLimiter(rate.Limit(s.cfg.RateLimit), s.cfg.RateBurst).Middleware(api)
	}
	mux.Handle("/api/", api)

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}

	return RequestID(s.log)(CORS(mux))
}

func (s *Server) apiRoutes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/systems", s.handleListSystems)
	mux.HandleFunc("POST /api/systems", s.handleAddSystem)
	mux.HandleFunc("GET /api/systems/{name}", s.handleGetSystem)
	mux.HandleFunc("GET /api/systems/{name}/ephemeris", s.handleEphemeris)
	return mux
}

func (s *Server) handleListSystems(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"systems": s.kb.ListSystems()})
}

func (s *Server) handleGetSystem(w http.ResponseWriter, r *http.Request) {
	root, err := s.kb.GetSystem(r.PathValue("name"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, root)
}

func (s *Server) handleAddSystem(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, s.log)
	def, root, err := core.LoadDefinition(r.Context(), http.MaxBytesReader(w, r.Body, 1<<20), core.WithBuildLogger(log))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.engine.AddSystem(r.Context(), def.Name, root); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, root)
}

// handleEphemeris accepts t (or its alias jd) and mode query parameters.
// Without t the current simulation time is used.
func (s *Server) handleEphemeris(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	root, err := s.kb.GetSystem(name)
	if err != nil {
		writeErr(w, err)
		return
	}

	q := r.URL.Query()
	mode := s.engine.Mode()
	if raw := q.Get("mode"); raw != "" {
		if mode, err = core.ParsePropagationMode(raw); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	t := sim.TimeValue(mode, s.engine.Epoch(), s.clock.Now())
	raw := q.Get("t")
	if raw == "" {
		raw = q.Get("jd")
	}
	if raw != "" {
		if t, err = strconv.ParseFloat(raw, 64); err != nil || math.IsNaN(t) || math.IsInf(t, 0) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid time %q", raw))
			return
		}
	}

	writeJSON(w, http.StatusOK, core.ComputeEphemeris(name, root, t, mode))
}

// writeJSON encodes v before committing to code, so a value that cannot be
// encoded yields a 500 with an error body instead of an empty success.
func writeJSON(w http.ResponseWriter, code int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		code = http.StatusInternalServerError
		data, _ = json.Marshal(map[string]string{"error": fmt.Sprintf("encode response: %v", err)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func writeErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, kb.ErrSystemNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, kb.ErrSystemExists):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
