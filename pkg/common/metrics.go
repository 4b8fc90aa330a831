package common

import (
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/arl/statsviz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Mount attaches an extra handler to a server mux.
type Mount struct {
	Pattern string
	Handler http.Handler
}

// untracedPaths are probe and scrape endpoints that would flood traces.
var untracedPaths = map[string]struct{}{
	"/health":    {},
	"/readiness": {},
	"/metrics":   {},
}

// NewMetricsServer returns an HTTP server exposing the gatherer's metrics on
// /metrics plus liveness on /health and readiness on /readiness. Readiness
// reports 503 until ready is set. Requests other than probes and scrapes are
// traced.
func NewMetricsServer(addr string, gatherer prometheus.Gatherer, ready *atomic.Bool, mounts ...Mount) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mux.HandleFunc("/readiness", func(w http.ResponseWriter, r *http.Request) {
		if ready == nil || !ready.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprint(w, "Not Ready")
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "Ready")
	})
	for _, m := range mounts {
		mux.Handle(m.Pattern, m.Handler)
	}

	handler := otelhttp.NewHandler(mux, "taskfarm.http",
		otelhttp.WithFilter(func(r *http.Request) bool {
			_, skip := untracedPaths[r.URL.Path]
			return !skip
		}),
	)

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
}

// NewDebugServer returns an HTTP server with the statsviz runtime dashboard
// mounted at /debug/statsviz/.
func NewDebugServer(addr string) (*http.Server, error) {
	mux := http.NewServeMux()
	if err := statsviz.Register(mux); err != nil {
		return nil, fmt.Errorf("registering statsviz: %w", err)
	}
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}, nil
}
