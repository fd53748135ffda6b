package reconciler

import (
	"net"
	"sort"
	"sync"
)

// Kind distinguishes the two shapes a managed record set can take.
type Kind int

const (
	SingleCNAME Kind = iota
	MultiAddress
)

// DesiredState is the tagged union the reconciler computes from a selection and compares against
// its cache. Two states are equal iff both their Kind and payload are equal.
type DesiredState struct {
	Kind   Kind
	Target string            // Valid when Kind == SingleCNAME
	IPs    map[string]net.IP // Valid when Kind == MultiAddress, keyed by String() for comparison
}

// SameVariant reports whether two states share the same Kind, ignoring payload.
func (s DesiredState) SameVariant(other DesiredState) bool {
	return s.Kind == other.Kind
}

// Equal reports full equality: same variant and same payload.
func (s DesiredState) Equal(other DesiredState) bool {
	if !s.SameVariant(other) {
		return false
	}
	switch s.Kind {
	case SingleCNAME:
		return s.Target == other.Target
	case MultiAddress:
		if len(s.IPs) != len(other.IPs) {
			return false
		}
		for k := range s.IPs {
			if _, ok := other.IPs[k]; !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// SortedIPs returns the IP addresses of a MultiAddress state in a stable order, useful for
// deterministic record creation and for tests.
func (s DesiredState) SortedIPs() []net.IP {
	keys := make([]string, 0, len(s.IPs))
	for k := range s.IPs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ips := make([]net.IP, 0, len(keys))
	for _, k := range keys {
		ips = append(ips, s.IPs[k])
	}
	return ips
}

// Cache holds the last DesiredState the provider was successfully reconciled to, or nothing if
// unknown. It is invalidated on any reconciliation error so the next cycle re-derives truth from
// the provider rather than trusting a possibly-stale assumption.
type Cache struct {
	mu    sync.Mutex
	state *DesiredState
}

// Get returns the cached state and whether one is present.
func (c *Cache) Get() (DesiredState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == nil {
		return DesiredState{}, false
	}
	return *c.state, true
}

// Set overwrites the cache with a freshly-reconciled state.
func (c *Cache) Set(state DesiredState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = &state
}

// Invalidate clears the cache, forcing the next reconciliation to treat the provider state as
// unknown.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = nil
}
