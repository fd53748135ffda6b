// Package config loads and validates the YAML configuration document that describes the managed
// record, its candidate endpoints, the Cloudflare credentials, and the optional Telegram
// notification sink.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/endpoint"
)

const me = "config"

// legacyConfigBanner is printed verbatim (one log line per element) when a pre-rewrite
// configuration file is detected, so an operator upgrading in place gets an explanation instead of
// a confusing parse error.
var legacyConfigBanner = []string{
	"==================================================",
	"            INCOMPATIBLE CONFIGURATION",
	"This version of the program will not work with the",
	"given configuration file. Either switch to the old",
	"version of the program (see Docker tags) or update",
	"the configuration file to the new format.",
	"==================================================",
}

// LegacyConfigBanner returns the lines a caller should log before exiting when Load reports
// ErrLegacyConfig.
func LegacyConfigBanner() []string { return legacyConfigBanner }

// ErrLegacyConfig is returned by Load when the document matches the shape of a pre-rewrite
// configuration file (identified by the presence of general.timeout) rather than being merely
// invalid.
type legacyConfigError struct{}

func (legacyConfigError) Error() string { return me + ": legacy configuration file detected" }

// ErrLegacyConfig is the sentinel callers can match with errors.Is.
var ErrLegacyConfig error = legacyConfigError{}

// TelegramConfig holds the optional notification sink configuration.
type TelegramConfig struct {
	Token          string
	ChatID         int64
	InitialSilence time.Duration
}

// CloudflareConfig holds the DNS provider credentials.
type CloudflareConfig struct {
	ZoneID string
	Token  string
}

// Config is the fully validated, defaulted in-memory representation of the configuration
// document.
type Config struct {
	Record     string
	Endpoints  []*endpoint.Endpoint
	Cloudflare CloudflareConfig
	Telegram   *TelegramConfig // nil when no telegram section was present
}

type rawDocument struct {
	General *struct {
		Timeout *int `yaml:"timeout"`
	} `yaml:"general"`
	Record    string       `yaml:"record"`
	Endpoints []rawEndpoint `yaml:"endpoints"`
	Cloudflare struct {
		ZoneID string `yaml:"zone_id"`
		Token  string `yaml:"token"`
	} `yaml:"cloudflare"`
	Telegram *struct {
		Token          string `yaml:"token"`
		ChatID         int64  `yaml:"chat_id"`
		InitialSilence *int   `yaml:"initial_silence_s"`
	} `yaml:"telegram"`
}

type rawEndpoint struct {
	Alias string `yaml:"alias"`
	DNS   struct {
		Record   string `yaml:"record"`
		TTL      *int   `yaml:"ttl"`
		Resolver string `yaml:"resolver"`
		Retry    *int   `yaml:"retry"`
	} `yaml:"dns"`
	Monitoring *struct {
		URI        string `yaml:"uri"`
		Interval   int    `yaml:"interval"`
		Marker     string `yaml:"marker"`
		Confidence *int   `yaml:"confidence"`
		Timeout    *int   `yaml:"timeout"`
		Retry      *int   `yaml:"retry"`
	} `yaml:"monitoring"`
	Weight         *int `yaml:"weight"`
	StickyDuration *int `yaml:"sticky_duration"`
}

// Load reads and parses the configuration document at path. It returns ErrLegacyConfig (wrapped)
// when the document is recognizably a pre-rewrite configuration file rather than just invalid.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%s: read %s: %w", me, path, err)
	}
	return Parse(raw)
}

// Parse parses an already-read configuration document. Exposed separately from Load so tests can
// feed it bytes directly.
func Parse(raw []byte) (*Config, error) {
	var doc rawDocument
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%s: parse: %w", me, err)
	}

	if doc.General != nil && doc.General.Timeout != nil {
		return nil, fmt.Errorf("%s: %w", me, ErrLegacyConfig)
	}

	if doc.Record == "" {
		return nil, fmt.Errorf("%s: missing record", me)
	}
	if len(doc.Endpoints) == 0 {
		return nil, fmt.Errorf("%s: missing endpoints", me)
	}
	if doc.Cloudflare.ZoneID == "" || doc.Cloudflare.Token == "" {
		return nil, fmt.Errorf("%s: cloudflare.zone_id and cloudflare.token are required", me)
	}

	endpoints := make([]*endpoint.Endpoint, 0, len(doc.Endpoints))
	for i, re := range doc.Endpoints {
		ep, err := parseEndpoint(re)
		if err != nil {
			return nil, fmt.Errorf("%s: endpoint %d: %w", me, i, err)
		}
		endpoints = append(endpoints, ep)
	}

	cfg := &Config{
		Record:    doc.Record,
		Endpoints: endpoints,
		Cloudflare: CloudflareConfig{
			ZoneID: doc.Cloudflare.ZoneID,
			Token:  doc.Cloudflare.Token,
		},
	}

	if doc.Telegram != nil {
		if doc.Telegram.Token == "" {
			return nil, fmt.Errorf("%s: telegram.token is required when telegram section is present", me)
		}
		if doc.Telegram.ChatID == 0 {
			return nil, fmt.Errorf("%s: telegram.chat_id is required when telegram section is present", me)
		}
		silence := time.Duration(0)
		if doc.Telegram.InitialSilence != nil {
			silence = time.Duration(*doc.Telegram.InitialSilence) * time.Second
		}
		cfg.Telegram = &TelegramConfig{
			Token:          doc.Telegram.Token,
			ChatID:         doc.Telegram.ChatID,
			InitialSilence: silence,
		}
	}

	return cfg, nil
}

func parseEndpoint(re rawEndpoint) (*endpoint.Endpoint, error) {
	if re.DNS.Record == "" {
		return nil, fmt.Errorf("dns.record is not a string")
	}
	if re.DNS.Resolver == "" {
		return nil, fmt.Errorf("dns.resolver is not a string")
	}

	ttl := 0
	if re.DNS.TTL != nil {
		if *re.DNS.TTL < 0 || *re.DNS.TTL > 65535 {
			return nil, fmt.Errorf("dns.ttl is out of bounds")
		}
		ttl = *re.DNS.TTL
	}

	dnsRetry := 1
	if re.DNS.Retry != nil {
		if *re.DNS.Retry < 0 || *re.DNS.Retry > 255 {
			return nil, fmt.Errorf("dns.retry is out of bounds")
		}
		dnsRetry = *re.DNS.Retry
	}

	name := re.Alias
	if name == "" {
		name = re.DNS.Record
	}

	weight := 0
	if re.Weight != nil {
		if *re.Weight < 0 || *re.Weight > 255 {
			return nil, fmt.Errorf("weight must be between 0 and 255")
		}
		weight = *re.Weight
	}

	var stickyDuration time.Duration
	var sticky bool
	if re.StickyDuration != nil {
		stickyDuration = time.Duration(*re.StickyDuration) * time.Second
		sticky = true
	}

	ep := &endpoint.Endpoint{
		Name: name,
		DNS: endpoint.DNS{
			Record:   re.DNS.Record,
			TTL:      uint16(ttl),
			Resolver: re.DNS.Resolver,
			Retry:    uint8(dnsRetry),
		},
		Weight:         uint8(weight),
		StickyDuration: stickyDuration,
		Sticky:         sticky,
	}

	if re.Monitoring != nil {
		parsedURI, err := url.Parse(re.Monitoring.URI)
		if err != nil {
			return nil, fmt.Errorf("monitoring.uri: %w", err)
		}
		if re.Monitoring.Interval <= 0 {
			return nil, fmt.Errorf("monitoring.interval must be set and positive")
		}

		confidence := 0
		if re.Monitoring.Confidence == nil {
			return nil, fmt.Errorf("monitoring.confidence is required")
		}
		confidence = *re.Monitoring.Confidence
		if confidence < 1 || confidence > 255 {
			return nil, fmt.Errorf("monitoring.confidence is out of bounds")
		}

		timeout := 5 * time.Second
		if re.Monitoring.Timeout != nil {
			timeout = time.Duration(*re.Monitoring.Timeout) * time.Second
		}

		probeRetry := 0
		if re.Monitoring.Retry != nil {
			if *re.Monitoring.Retry < 0 || *re.Monitoring.Retry > 255 {
				return nil, fmt.Errorf("monitoring.retry is out of bounds")
			}
			probeRetry = *re.Monitoring.Retry
		}

		ep.Monitoring = &endpoint.Monitoring{
			URI:        parsedURI,
			Interval:   time.Duration(re.Monitoring.Interval) * time.Second,
			Marker:     re.Monitoring.Marker,
			Confidence: uint8(confidence),
			Timeout:    timeout,
			Retry:      uint8(probeRetry),
		}
	}

	return ep, nil
}
