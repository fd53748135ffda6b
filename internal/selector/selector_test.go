package selector

import (
	"sort"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/endpoint"
)

func activeNames(active map[string]activeEntry) []string {
	names := make([]string, 0, len(active))
	for name := range active {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func makeEndpoint(name string, weight uint8, healthy bool, sticky time.Duration) *endpoint.Endpoint {
	e := &endpoint.Endpoint{Name: name, Weight: weight, StickyDuration: sticky, DNS: endpoint.DNS{Record: name}}
	e.SetHealthy(healthy)
	return e
}

func TestSelectActivePicksLowestWeightHealthy(t *testing.T) {
	a := makeEndpoint("a", 10, true, 0)
	b := makeEndpoint("b", 5, true, 0)
	c := makeEndpoint("c", 1, false, 0)

	primary, _, active := selectActive([]*endpoint.Endpoint{a, b, c}, nil, time.Now())
	if primary != b {
		t.Fatalf("expected lowest-weight healthy endpoint b, got %v", primary)
	}
	if len(active) != 1 {
		t.Fatalf("expected only the primary active with no sticky history, got %d", len(active))
	}
}

func TestSelectActiveReturnsNilWhenNoneHealthy(t *testing.T) {
	a := makeEndpoint("a", 10, false, 0)
	primary, _, active := selectActive([]*endpoint.Endpoint{a}, nil, time.Now())
	if primary != nil || active != nil {
		t.Fatalf("expected nil primary and active set, got %v %v", primary, active)
	}
}

func TestSelectActiveCarriesStickyRunnerUp(t *testing.T) {
	primaryEp := makeEndpoint("primary", 1, true, 0)
	stickyEp := makeEndpoint("sticky", 5, true, time.Minute)
	now := time.Now()

	last := map[string]activeEntry{
		"sticky": {endpoint: stickyEp, since: now.Add(-10 * time.Second), primary: true},
	}

	primary, previousName, active := selectActive([]*endpoint.Endpoint{primaryEp, stickyEp}, last, now)
	if primary != primaryEp {
		t.Fatalf("expected new primary to win, got %v", primary)
	}
	if previousName != "sticky" {
		t.Fatalf("expected previous primary name to be reported, got %q", previousName)
	}
	entry, ok := active["sticky"]
	if !ok {
		t.Fatal("expected demoted sticky endpoint to be carried forward")
	}
	if entry.primary {
		t.Fatal("expected demoted endpoint to no longer be primary")
	}
	if !entry.since.Equal(now) {
		t.Fatal("expected refresh-on-demotion to reset the sticky window to now")
	}
}

func TestSelectActiveExpiresStaleStickyEntry(t *testing.T) {
	primaryEp := makeEndpoint("primary", 1, true, 0)
	staleEp := makeEndpoint("stale", 5, true, time.Minute)
	now := time.Now()

	last := map[string]activeEntry{
		"stale": {endpoint: staleEp, since: now.Add(-2 * time.Minute), primary: false},
	}

	_, _, active := selectActive([]*endpoint.Endpoint{primaryEp, staleEp}, last, now)
	if _, ok := active["stale"]; ok {
		t.Fatal("expected expired sticky entry to be dropped")
	}
}

func TestSelectActiveExcludesNewPrimaryFromStickyCarryForward(t *testing.T) {
	// The endpoint that is about to become primary again was, in the previous cycle, recorded as
	// a sticky non-primary entry. It must end up with exactly one entry - as primary - not two.
	ep := makeEndpoint("bouncer", 1, true, time.Minute)
	now := time.Now()
	last := map[string]activeEntry{
		"bouncer": {endpoint: ep, since: now.Add(-5 * time.Second), primary: false},
	}

	primary, _, active := selectActive([]*endpoint.Endpoint{ep}, last, now)
	if primary != ep {
		t.Fatalf("expected ep to be selected as primary, got %v", primary)
	}
	if len(active) != 1 {
		t.Fatalf("expected exactly one active entry, got %d: %+v", len(active), active)
	}
	if !active["bouncer"].primary {
		t.Fatal("expected the single entry to be marked primary")
	}
}

func TestSelectActiveSetMembershipWithMixedStickiness(t *testing.T) {
	primaryEp := makeEndpoint("primary", 1, true, 0)
	keptSticky := makeEndpoint("kept", 5, true, time.Minute)
	expiredSticky := makeEndpoint("expired", 6, true, time.Minute)
	unstickyRunnerUp := makeEndpoint("plain-runner-up", 7, true, 0)
	now := time.Now()

	last := map[string]activeEntry{
		"kept":    {endpoint: keptSticky, since: now.Add(-10 * time.Second), primary: false},
		"expired": {endpoint: expiredSticky, since: now.Add(-2 * time.Minute), primary: false},
	}

	_, _, active := selectActive([]*endpoint.Endpoint{primaryEp, keptSticky, expiredSticky, unstickyRunnerUp}, last, now)

	want := []string{"kept", "primary"}
	if diff := cmp.Diff(want, activeNames(active)); diff != "" {
		t.Fatalf("unexpected active set membership (-want +got):\n%s", diff)
	}
}
