package config

import (
	"errors"
	"testing"
)

const minimalYAML = `
record: app.example.com
endpoints:
  - dns:
      record: a.example.com
      resolver: 1.1.1.1
  - alias: backup
    dns:
      record: b.example.com
      resolver: 1.1.1.1
      ttl: 60
      retry: 2
    monitoring:
      uri: https://b.example.com/health
      interval: 30
      confidence: 3
    weight: 5
    sticky_duration: 120
cloudflare:
  zone_id: zone123
  token: secrettoken
telegram:
  token: bottoken
  chat_id: 42
`

func TestParseMinimalConfig(t *testing.T) {
	cfg, err := Parse([]byte(minimalYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Record != "app.example.com" {
		t.Fatalf("unexpected record: %s", cfg.Record)
	}
	if len(cfg.Endpoints) != 2 {
		t.Fatalf("expected 2 endpoints, got %d", len(cfg.Endpoints))
	}

	first := cfg.Endpoints[0]
	if first.Name != "a.example.com" {
		t.Fatalf("expected alias-less endpoint to default name to its DNS record, got %s", first.Name)
	}
	if first.DNS.Retry != 1 {
		t.Fatalf("expected default DNS retry of 1, got %d", first.DNS.Retry)
	}

	second := cfg.Endpoints[1]
	if second.Name != "backup" {
		t.Fatalf("expected alias to be used as name, got %s", second.Name)
	}
	if second.Monitoring == nil {
		t.Fatal("expected monitoring to be parsed")
	}
	if second.Monitoring.Timeout.Seconds() != 5 {
		t.Fatalf("expected default monitoring timeout of 5s, got %s", second.Monitoring.Timeout)
	}
	if !second.Sticky || second.StickyDuration.Seconds() != 120 {
		t.Fatalf("expected sticky_duration of 120s, got %s", second.StickyDuration)
	}

	if cfg.Telegram == nil || cfg.Telegram.ChatID != 42 {
		t.Fatal("expected telegram config to be parsed")
	}
}

func TestParseRejectsLegacyConfig(t *testing.T) {
	_, err := Parse([]byte("general:\n  timeout: 30\n"))
	if err == nil {
		t.Fatal("expected error for legacy configuration")
	}
	if !errors.Is(err, ErrLegacyConfig) {
		t.Fatalf("expected ErrLegacyConfig, got %v", err)
	}
}

func TestParseRejectsMissingRecord(t *testing.T) {
	_, err := Parse([]byte("endpoints: []\n"))
	if err == nil {
		t.Fatal("expected error for missing record")
	}
}

func TestParseRejectsOutOfBoundsConfidence(t *testing.T) {
	bad := `
record: app.example.com
endpoints:
  - dns:
      record: a.example.com
      resolver: 1.1.1.1
    monitoring:
      uri: https://a.example.com/health
      interval: 10
      confidence: 0
cloudflare:
  zone_id: z
  token: t
`
	_, err := Parse([]byte(bad))
	if err == nil {
		t.Fatal("expected error for confidence out of bounds")
	}
}
