package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/incentives-backend/pkg/logger"
)

const readyTimeout = 3 * time.Second

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterParams struct {
	Logger   *logger.Logger
	Env      string
	Checks   map[string]Pinger
	Gatherer prometheus.Gatherer
}

// NewRouter serves the worker's liveness, readiness and metrics endpoints.
func NewRouter(params RouterParams) http.Handler {
	gatherer := params.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(recoverer(params.Logger), requestLogging(params.Logger))

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", healthLive(params.Env))
		r.Get("/ready", healthReady(params.Env, params.Logger, params.Checks))
	})
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

func healthLive(env string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, env, http.StatusOK, map[string]any{"status": "ok"})
	}
}

func healthReady(env string, logg *logger.Logger, checks map[string]Pinger) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		failing := map[string]string{}
		for _, name := range names {
			if err := checks[name].Ping(ctx); err != nil {
				failing[name] = err.Error()
				if logg != nil {
					logg.Error(logg.WithField(ctx, "dependency", name), "readiness check failed", err)
				}
			}
		}
		if len(failing) > 0 {
			writeJSON(w, env, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "failing": failing})
			return
		}
		writeJSON(w, env, http.StatusOK, map[string]any{"status": "ready"})
	}
}

func writeJSON(w http.ResponseWriter, env string, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	if env != "" {
		w.Header().Set("X-Incentives-Env", env)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if logg != nil {
						logg.Error(r.Context(), "panic.recovered", fmt.Errorf("panic: %v", rec))
					}
					writeJSON(w, "", http.StatusInternalServerError, map[string]any{"status": "error"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func requestLogging(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			if logg == nil || r.URL.Path == "/metrics" {
				return
			}
			logg.Debug(logg.WithFields(r.Context(), map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      rec.status,
				"duration_ms": time.Since(start).Milliseconds(),
			}), "request.complete")
		})
	}
}
