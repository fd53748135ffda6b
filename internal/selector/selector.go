// Package selector runs the central control loop: it watches every endpoint's monitor for health
// and DNS changes, picks the lowest-weight healthy endpoint as primary, carries forward any sticky
// runner-ups whose grace period hasn't lapsed, and pushes the result to the DNS provider.
package selector

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/endpoint"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/metrics"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/monitor"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/notify"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/reconciler"
)

const me = "selector"

const telegramDrainCadence = 30 * time.Second

// reconcileRetries is how many consecutive attempts the selector makes to push a new selection to
// the DNS provider before giving up on this cycle and trying again on the next event.
const reconcileRetries = 3

// activeEntry tracks one endpoint currently part of the published DNS record, when it became
// active, and whether it is the current primary.
type activeEntry struct {
	endpoint *endpoint.Endpoint
	since    time.Time
	primary  bool
}

// Selector owns the control loop for a single managed record.
type Selector struct {
	Record     string
	Endpoints  []*endpoint.Endpoint
	Reconciler *reconciler.Client
	Notify     *notify.Queue // nil when no notification sink is configured
	Metrics    *metrics.Registry
	Log        io.Writer
}

func (s *Selector) logf(format string, args ...interface{}) {
	if s.Log == nil {
		return
	}
	fmt.Fprintf(s.Log, "%s: "+format+"\n", append([]interface{}{me}, args...)...)
}

// Run starts one monitor goroutine per endpoint and then drives the selection loop until stopCh is
// closed or a monitor terminates unexpectedly, which is treated as fatal since a monitor that
// exits can never report this endpoint healthy again.
func (s *Selector) Run(stopCh <-chan struct{}) error {
	changeCh := make(chan endpoint.ChangeEvent)
	monitorErrCh := make(chan error, len(s.Endpoints))
	monitorStop := make(chan struct{})
	defer close(monitorStop)

	// Assigning a nil *metrics.Registry straight into the monitor.Metrics interface would leave a
	// non-nil interface wrapping a nil pointer, so only populate it when a registry is present.
	var monMetrics monitor.Metrics
	if s.Metrics != nil {
		monMetrics = s.Metrics
	}
	for _, e := range s.Endpoints {
		m := &monitor.Monitor{Endpoint: e, Events: changeCh, Metrics: monMetrics, Log: s.Log}
		go func() {
			if err := m.Run(monitorStop); err != nil {
				monitorErrCh <- err
			}
		}()
	}

	lastActive := map[string]activeEntry{}

	for {
		var stickyWakeup *time.Duration
		for _, e := range lastActive {
			if e.primary || e.endpoint.StickyDuration == 0 {
				continue
			}
			elapsed := time.Since(e.since)
			var remaining time.Duration
			if elapsed <= e.endpoint.StickyDuration {
				remaining = e.endpoint.StickyDuration - elapsed + time.Second
			}
			if stickyWakeup == nil || remaining < *stickyWakeup {
				stickyWakeup = &remaining
			}
		}

		var stickyTimerC <-chan time.Time
		if stickyWakeup != nil {
			stickyTimerC = time.After(*stickyWakeup)
		}
		var telegramTimerC <-chan time.Time
		if s.Notify != nil && s.Notify.HasPending() {
			telegramTimerC = time.After(telegramDrainCadence)
		}

		select {
		case <-stopCh:
			return nil

		case ev := <-changeCh:
			s.logf("change event: %s %s", ev.Reason, ev.Endpoint)
			if ev.Reason == endpoint.DnsValuesChanged {
				if _, ok := lastActive[ev.Endpoint.Name]; !ok {
					s.logf("ignoring DNS change for non-selected endpoint %s", ev.Endpoint)
					continue
				}
			}

		case <-stickyTimerC:
			s.logf("stickiness of a non-primary selected endpoint expired")

		case <-telegramTimerC:
			s.Notify.Send()
			continue

		case err := <-monitorErrCh:
			return fmt.Errorf("%s: an endpoint monitor terminated unexpectedly: %w", me, err)
		}

		primary, previousPrimaryName, newActive := selectActive(s.Endpoints, lastActive, time.Now())
		if primary == nil {
			s.logf("no healthy endpoints available, skipping update")
			continue
		}

		selected := make([]*endpoint.Endpoint, 0, len(newActive))
		ttl := uint16(0)
		for _, e := range newActive {
			selected = append(selected, e.endpoint)
			if ttl == 0 || e.endpoint.DNS.TTL < ttl {
				ttl = e.endpoint.DNS.TTL
			}
		}

		ok := false
		for attempt := 0; attempt < reconcileRetries; attempt++ {
			if err := s.Reconciler.Update(s.Record, selected, ttl); err != nil {
				s.logf("reconcile attempt %d/%d failed: %v", attempt+1, reconcileRetries, err)
				continue
			}
			ok = true
			break
		}
		if !ok {
			s.logf("failed to reconcile after %d attempts, skipping update", reconcileRetries)
			continue
		}
		s.logf("active endpoints now: %v", selected)

		if s.Metrics != nil {
			for _, e := range s.Endpoints {
				_, isSelected := newActive[e.Name]
				s.Metrics.SetSelected(e.Name, isSelected)
			}
		}

		if s.Notify != nil && previousPrimaryName != primary.Name {
			byWeight := append([]*endpoint.Endpoint(nil), s.Endpoints...)
			sort.SliceStable(byWeight, func(i, j int) bool { return byWeight[i].Weight < byWeight[j].Weight })
			msg := fmt.Sprintf("Primary endpoint changed to %s", notify.Escape(primary.DNS.Record))
			for _, e := range byWeight {
				msg += "\n" + e.ToTelegramString()
			}
			s.Notify.QueueAndSend(msg)
		}

		lastActive = newActive
	}
}

// selectActive picks the lowest-weight healthy endpoint as primary and carries forward any
// still-healthy, still-sticky entries from lastActive. It returns the chosen primary (nil if no
// endpoint is healthy), the name of whichever endpoint was primary in lastActive (empty if none),
// and the new active set. It has no side effects, so it's the piece of the loop worth testing in
// isolation from goroutines, channels, and the network.
func selectActive(endpoints []*endpoint.Endpoint, lastActive map[string]activeEntry, now time.Time) (*endpoint.Endpoint, string, map[string]activeEntry) {
	var primary *endpoint.Endpoint
	for _, e := range endpoints {
		if !e.Healthy() {
			continue
		}
		if primary == nil || e.Weight < primary.Weight {
			primary = e
		}
	}
	if primary == nil {
		return nil, "", nil
	}

	previousPrimaryName := ""
	for _, e := range lastActive {
		if e.primary {
			previousPrimaryName = e.endpoint.Name
		}
	}

	newActive := map[string]activeEntry{
		primary.Name: {endpoint: primary, since: now, primary: true},
	}

	for _, e := range lastActive {
		if !e.endpoint.Healthy() || e.endpoint.StickyDuration == 0 {
			continue
		}
		// The new primary already has its own entry above; visiting it again here would either
		// collide harmlessly or, if it used to be a sticky non-primary, wrongly demote it back
		// out of primary status.
		if e.endpoint.Equal(primary) {
			continue
		}
		if e.primary {
			// Refresh-on-demotion: the outgoing primary starts its sticky window now.
			newActive[e.endpoint.Name] = activeEntry{endpoint: e.endpoint, since: now, primary: false}
			continue
		}
		if now.Sub(e.since) <= e.endpoint.StickyDuration {
			newActive[e.endpoint.Name] = activeEntry{endpoint: e.endpoint, since: e.since, primary: false}
		}
	}

	return primary, previousPrimaryName, newActive
}
