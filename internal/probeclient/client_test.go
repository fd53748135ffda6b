package probeclient

import (
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"
)

func TestPerformSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("hello there"))
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	body, err := Perform(u, time.Second, 0, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "hello there" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestPerformNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	_, err := Perform(u, time.Second, 0, nil)
	if err == nil {
		t.Fatal("expected error on non-200 status")
	}
	if _, ok := err.(*StatusError); ok {
		t.Fatal("expected wrapped error, not raw StatusError, from Perform after retries")
	}
}

func TestPerformAddressOverrideDialsOtherHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(r.Host))
	}))
	defer srv.Close()

	srvURL, _ := url.Parse(srv.URL)
	_, port, _ := net.SplitHostPort(srvURL.Host)

	// Point the URI at an address that would fail to connect, but override the dial target to
	// the real server's loopback+port. The Host header should still show the URI's own host.
	fake, _ := url.Parse("http://cfswitchd-probe.invalid:" + port)
	body, err := Perform(fake, time.Second, 0, net.ParseIP("127.0.0.1"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "cfswitchd-probe.invalid:"+port {
		t.Fatalf("expected Host header to reflect URI host, got %q", body)
	}
}
