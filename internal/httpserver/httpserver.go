// Package httpserver exposes the observability surface: a liveness probe and a Prometheus scrape
// endpoint. The Prometheus registry is held behind a swappable pointer rather than the process
// default registry, since a config reload tears down and rebuilds every endpoint's metrics; a
// scrape that lands in the gap between teardown and rebuild gets a 500 rather than a stale or
// empty body.
package httpserver

import (
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/concurrencytracker"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/connectiontracker"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/metrics"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/reporter"
)

const me = "httpserver"

// Server is the observability HTTP server. It is safe to call SetRegistry concurrently with
// requests being served.
type Server struct {
	addr string

	mu       sync.RWMutex
	registry *metrics.Registry

	requests concurrencytracker.Counter
	conns    *connectiontracker.Tracker
	http     *http.Server
}

// New builds a Server bound to addr. The registry starts nil; callers set one via SetRegistry
// once the rest of the program has finished constructing its metrics.
func New(addr string) *Server {
	s := &Server{
		addr:  addr,
		conns: connectiontracker.New("observability"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/metrics", s.handleMetrics)

	s.http = &http.Server{
		Addr:    addr,
		Handler: mux,
		ConnState: func(c net.Conn, state http.ConnState) {
			s.conns.ConnState(c.RemoteAddr().String(), time.Now(), state)
		},
	}

	return s
}

// SetRegistry swaps in a new metrics registry, or clears it entirely when passed nil - which is
// what a config reload does between tearing down the old selector and starting the new one.
func (s *Server) SetRegistry(r *metrics.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registry = r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.requests.Add()
	defer s.requests.Done()
	w.Write([]byte("OK"))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.requests.Add()
	defer s.requests.Done()

	s.mu.RLock()
	reg := s.registry
	s.mu.RUnlock()

	if reg == nil {
		http.Error(w, me+": no metrics registry available", http.StatusInternalServerError)
		return
	}
	promhttp.HandlerFor(reg.Gatherer(), promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

// ListenAndServe blocks serving until the process is shut down or an unrecoverable error occurs.
func (s *Server) ListenAndServe() error {
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("%s: %w", me, err)
	}
	return nil
}

// Close shuts the server down immediately.
func (s *Server) Close() error {
	return s.http.Close()
}

// Name implements reporter.Reporter.
func (s *Server) Name() string {
	return me + " (on " + s.addr + ")"
}

// Report implements reporter.Reporter, folding in peak request concurrency alongside the
// connection-tracker's own report line.
func (s *Server) Report(resetCounters bool) string {
	return fmt.Sprintf("peakConcurrency=%d", s.requests.Peak(resetCounters))
}

// Reporters returns the set of reporter.Reporter instances this server exposes, so the main
// program's periodic status log can include them alongside its own.
func (s *Server) Reporters() []reporter.Reporter {
	return []reporter.Reporter{s, s.conns}
}
