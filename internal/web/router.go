package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luffy-robotics/luffy/internal/logger"
	"github.com/luffy-robotics/luffy/internal/ota"
	"github.com/luffy-robotics/luffy/internal/registry"
	"github.com/luffy-robotics/luffy/internal/version"
)

const (
	// requestTimeout bounds one request through the middleware chain.
	requestTimeout = 15 * time.Second

	// triggerGate is how long the trigger endpoint waits before declaring
	// the cycle started and answering 202. Gating errors (disabled, busy)
	// surface well inside it.
	triggerGate = 250 * time.Millisecond
)

func (s *Server) router(
	reg *registry.Registry,
	trigger Triggerer,
	gatherer prometheus.Gatherer,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(requestTimeout))
	router.Use(accessLog)

	router.Get("/healthz", s.handleHealthz)
	router.Get("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}).ServeHTTP)

	router.Route("/api", func(api chi.Router) {
		api.Get("/services", handleServices(reg))
		api.Post("/ota/check", handleTrigger(trigger))
	})

	return router
}

type healthzResponse struct {
	Status        string  `json:"status"`
	Version       string  `json:"version"`
	Commit        string  `json:"commit"`
	GoVersion     string  `json:"go_version"`
	UptimeSeconds float64 `json:"uptime_seconds"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:        "ok",
		Version:       version.Short(),
		Commit:        version.Commit,
		GoVersion:     runtime.Version(),
		UptimeSeconds: time.Since(s.started).Seconds(),
	})
}

// handleServices renders the registry snapshot, effective statuses applied.
func handleServices(reg *registry.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, reg.Snapshot())
	}
}

// handleTrigger starts one update cycle. The cycle keeps running detached
// from the request; only its gating is awaited, so an operator gets an
// immediate busy/disabled answer but never holds the connection through a
// multi-minute transaction.
func handleTrigger(trigger Triggerer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		result := make(chan error, 1)

		go func() {
			result <- trigger.TriggerUpdate(context.WithoutCancel(r.Context()))
		}()

		select {
		case err := <-result:
			switch {
			case err == nil:
				writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
			case errors.Is(err, ota.ErrUpdateInProgress):
				writeError(w, http.StatusConflict, err)
			case errors.Is(err, ota.ErrUpdatesDisabled):
				writeError(w, http.StatusForbidden, err)
			default:
				writeError(w, http.StatusInternalServerError, err)
			}
		case <-time.After(triggerGate):
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
		}
	}
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(wrapped, r)

		logger.InfoKV(r.Context(), "HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.Status(),
			"bytes", wrapped.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
