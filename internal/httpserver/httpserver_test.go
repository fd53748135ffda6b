package httpserver

import (
	"net/http/httptest"
	"testing"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/metrics"
)

func TestMetricsReturns500WithoutRegistry(t *testing.T) {
	s := New("127.0.0.1:0")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	s.handleMetrics(rec, req)

	if rec.Code != 500 {
		t.Fatalf("expected 500 with no registry set, got %d", rec.Code)
	}
}

func TestMetricsServesWhenRegistrySet(t *testing.T) {
	s := New("127.0.0.1:0")
	s.SetRegistry(metrics.New())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	s.handleMetrics(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200 with registry set, got %d", rec.Code)
	}
}

func TestHealthzAlwaysOK(t *testing.T) {
	s := New("127.0.0.1:0")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/healthz", nil)
	s.handleHealthz(rec, req)

	if rec.Code != 200 || rec.Body.String() != "OK" {
		t.Fatalf("expected 200 OK, got %d %q", rec.Code, rec.Body.String())
	}
}
