// Package endpoint holds the configuration and runtime state shared by the monitor and selector
// packages. An Endpoint is immutable once constructed except for its healthy flag and the optional
// last-known-problem string recorded by its monitor.
package endpoint

import (
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/notify"
)

// DNS holds the DNS-record side of an endpoint: the name that is resolved to obtain its current
// addresses, the TTL to publish when this endpoint is part of the active set, the recursive
// resolver used to look it up, and how many extra attempts to make on resolution failure.
type DNS struct {
	Record   string
	TTL      uint16
	Resolver string
	Retry    uint8
}

// Monitoring holds the optional health-check configuration for an endpoint. An endpoint with no
// Monitoring is always considered healthy.
type Monitoring struct {
	URI        *url.URL
	Interval   time.Duration
	Marker     string // Empty means "no marker required"
	Confidence uint8
	Timeout    time.Duration
	Retry      uint8

	mu          sync.Mutex
	lastProblem string // Reason the endpoint was last marked unhealthy
}

// SetLastProblem records why the most recent probe failed, or why confidence was reset. Safe for
// concurrent use since it's only ever written by the endpoint's own monitor goroutine but read by
// reporter output.
func (m *Monitoring) SetLastProblem(reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastProblem = reason
}

// LastProblem returns the last recorded problem, or the empty string if none is set.
func (m *Monitoring) LastProblem() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastProblem
}

// Endpoint is a candidate backend: its own identity, DNS record, optional probe, and priority.
// Equality and hashing for the purposes of active-set membership are by Name alone - see Equal.
type Endpoint struct {
	Name string // Unique identifier; defaults to DNS.Record when no alias is configured

	DNS        DNS
	Monitoring *Monitoring // nil means "always healthy"

	Weight uint8 // Lower is higher priority

	StickyDuration time.Duration // Zero means "not sticky"
	Sticky         bool          // Whether StickyDuration was actually configured

	healthy atomic.Bool
}

// Equal reports whether two endpoints share the same identity. Endpoint identity is the name
// alone - two Endpoint values with the same Name are considered the same endpoint regardless of
// any other field.
func (e *Endpoint) Equal(other *Endpoint) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.Name == other.Name
}

// Healthy returns the current health state, as last set by this endpoint's monitor.
func (e *Endpoint) Healthy() bool {
	return e.healthy.Load()
}

// SetHealthy updates the health state and reports whether it actually changed.
func (e *Endpoint) SetHealthy(v bool) (changed bool) {
	old := e.healthy.Swap(v)
	return old != v
}

// String renders the endpoint for logging, matching the quoted-name style used throughout the
// rest of this codebase's log lines.
func (e *Endpoint) String() string {
	return "\"" + e.Name + "\""
}

// ToTelegramString renders a single status line for this endpoint, suitable for inclusion in a
// MarkdownV2 Telegram message: a health emoji, the escaped name in backticks, and - when
// monitoring is configured - the interval, confidence threshold (if above the trivial default),
// and the last failure reason while unhealthy.
func (e *Endpoint) ToTelegramString() string {
	healthy := e.Healthy()
	icon := "✅"
	if !healthy {
		icon = "❌"
	}
	res := fmt.Sprintf("%s `%s`", icon, notify.Escape(e.Name))

	if e.Monitoring == nil {
		return res
	}

	detail := fmt.Sprintf(" (every %ds", int(e.Monitoring.Interval.Seconds()))
	if e.Monitoring.Confidence > 1 {
		detail += fmt.Sprintf(", confidence of %d", e.Monitoring.Confidence)
	}
	if !healthy {
		if problem := e.Monitoring.LastProblem(); problem != "" {
			detail += ", " + problem
		}
	}
	detail += ")"
	res += notify.Escape(detail)
	return res
}

// Reason identifies why a ChangeEvent was emitted.
type Reason int

const (
	HealthChanged Reason = iota
	DnsValuesChanged
)

func (r Reason) String() string {
	switch r {
	case HealthChanged:
		return "HealthChanged"
	case DnsValuesChanged:
		return "DnsValuesChanged"
	default:
		return "Unknown"
	}
}

// ChangeEvent is emitted by a monitor onto the selector's change channel whenever an endpoint's
// health flips or its resolved DNS values differ from the previous cycle.
type ChangeEvent struct {
	Reason   Reason
	Endpoint *Endpoint
}
