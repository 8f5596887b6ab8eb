// Package httpapi serves the ambient observability surface every host
// process exposes alongside its RPC listener: /healthz, /metrics (via
// promhttp), and a read-only /status JSON endpoint whose payload each host
// supplies through a StatusProvider. Built with github.com/go-chi/chi/v5 rather than bare
// net/http muxing.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bwkimmel/jdcp-go/internal/metrics"
)

// StatusProvider supplies the payload for the /status endpoint. Each host
// (server, worker, hub) implements it; the three hosts' implementations
// report only the host's role.
type StatusProvider interface {
	Status() any
}

// New builds a chi router serving /healthz, /metrics, and /status.
func New(status StatusProvider) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Handle("/metrics", metrics.Handler())

	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(status.Status())
	})

	return r
}

// Serve starts listening on addr with the router from New, returning once
// the listener fails or the process is asked to stop via http.Server
// shutdown elsewhere. Callers that need graceful shutdown should build
// their own *http.Server around New instead.
func Serve(addr string, status StatusProvider) error {
	return http.ListenAndServe(addr, New(status))
}
