// Package monitor runs the per-endpoint health-check loop: resolve DNS, probe the endpoint's HTTP
// URI, and turn a run of consecutive successes into a confidence-gated flip to healthy; any single
// failure resets confidence to zero and flips the endpoint back to unhealthy.
// Every endpoint gets its own monitor goroutine so one endpoint's slow probe never delays another's.
package monitor

import (
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/dnsclient"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/endpoint"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/probeclient"
)

const me = "monitor"

// Metrics is the subset of the metrics registry a monitor reports into.
type Metrics interface {
	SetHealth(name string, healthy bool)
	ObservePhase(name, phase string, seconds float64)
}

// Monitor runs a single endpoint's health-check loop and emits endpoint.ChangeEvent values onto
// Events whenever its health flips or its resolved DNS values change.
type Monitor struct {
	Endpoint *endpoint.Endpoint
	Events   chan<- endpoint.ChangeEvent
	Metrics  Metrics
	Log      io.Writer
}

func (m *Monitor) logf(format string, args ...interface{}) {
	if m.Log == nil {
		return
	}
	fmt.Fprintf(m.Log, "%s: %s: "+format+"\n", append([]interface{}{me, m.Endpoint}, args...)...)
}

// changeHealth applies a new health value, updates the gauge, and - unless suppressed, which is
// how the very first forced-unhealthy transition at startup stays silent - emits a ChangeEvent.
func (m *Monitor) changeHealth(healthy bool, emit bool) {
	if emit && m.Endpoint.Healthy() == healthy {
		return
	}
	m.Endpoint.SetHealthy(healthy)
	if m.Metrics != nil {
		m.Metrics.SetHealth(m.Endpoint.Name, healthy)
	}
	if emit {
		m.Events <- endpoint.ChangeEvent{Reason: endpoint.HealthChanged, Endpoint: m.Endpoint}
	}
}

func (m *Monitor) resolveDNS() (map[string]net.IP, error) {
	start := time.Now()
	ips, err := dnsclient.Resolve(m.Endpoint.DNS.Record, m.Endpoint.DNS.Resolver, m.Endpoint.DNS.Retry)
	if m.Metrics != nil {
		m.Metrics.ObservePhase(m.Endpoint.Name, "dns", time.Since(start).Seconds())
	}
	if err != nil {
		return nil, err
	}
	result := make(map[string]net.IP, len(ips))
	for _, ip := range ips {
		result[ip.String()] = ip
	}
	return result, nil
}

func sameIPSet(a, b map[string]net.IP) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

// Run blocks forever, performing the endpoint's health-check loop. Callers run it in its own
// goroutine. A fatal initial DNS resolution failure returns an error; everything after that is
// self-healing and Run does not return until its caller's context is done via closing stopCh.
func (m *Monitor) Run(stopCh <-chan struct{}) error {
	monitoring := m.Endpoint.Monitoring
	if monitoring == nil {
		// No monitoring configured: the endpoint is always healthy.
		m.changeHealth(true, false)
		<-stopCh
		return nil
	}

	m.changeHealth(false, false) // initial unhealthy state, not reported as a transition

	m.logf("resolving initial DNS values")
	lastDNS, err := m.resolveDNS()
	if err != nil {
		return fmt.Errorf("%s: %s: initial DNS resolution failed: %w", me, m.Endpoint, err)
	}

	var confidence uint8
	firstRun := true
	for {
		select {
		case <-stopCh:
			return nil
		default:
		}

		if confidence >= monitoring.Confidence {
			m.changeHealth(true, true)
			confidence = monitoring.Confidence // clamp, never overflow
		} else {
			m.changeHealth(false, true)
		}

		if !firstRun {
			select {
			case <-time.After(monitoring.Interval):
			case <-stopCh:
				return nil
			}
		}
		firstRun = false

		newDNS, err := m.resolveDNS()
		if err != nil {
			m.logf("DNS resolution failed, keeping previous values: %v", err)
			continue
		}
		if !sameIPSet(lastDNS, newDNS) {
			m.Events <- endpoint.ChangeEvent{Reason: endpoint.DnsValuesChanged, Endpoint: m.Endpoint}
		}
		lastDNS = newDNS

		if len(lastDNS) == 0 {
			monitoring.SetLastProblem("no DNS values")
			confidence = 0
			continue
		}

		var addressOverride net.IP
		if m.Endpoint.DNS.Record == monitoring.URI.Hostname() {
			for _, ip := range lastDNS {
				addressOverride = ip
				break
			}
		}

		start := time.Now()
		body, err := probeclient.Perform(monitoring.URI, monitoring.Timeout, monitoring.Retry, addressOverride)
		if m.Metrics != nil {
			m.Metrics.ObservePhase(m.Endpoint.Name, "request", time.Since(start).Seconds())
		}
		if err != nil {
			monitoring.SetLastProblem(fmt.Sprintf("HTTP error: %v", err))
			confidence = 0
			continue
		}

		if monitoring.Marker != "" {
			if strings.Contains(body, monitoring.Marker) {
				confidence++
			} else {
				confidence = 0
				m.logf("marker not found in response body")
			}
		} else {
			confidence++
		}
	}
}
