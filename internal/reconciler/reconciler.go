// Package reconciler drives a DNS provider (modeled on Cloudflare's REST API) towards whatever
// record shape a selection of endpoints demands: a single CNAME when exactly one endpoint is
// selected, or a set of A/AAAA records pinned to that endpoint's resolved addresses when several
// endpoints share the record for sticky rollover. It tracks the last state it successfully pushed
// so a repeated call with the same selection costs nothing, and forgets that state the moment a
// call fails so the next attempt re-derives truth from the provider instead of trusting a stale
// assumption.
package reconciler

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/simonmicro/cloudflare-cname-switcher/internal/constants"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/dnsclient"
	"github.com/simonmicro/cloudflare-cname-switcher/internal/endpoint"
)

const me = "reconciler"

// ErrConflict is returned when an update-in-place was expected to find exactly one existing
// record and found some other number instead. The caller should treat this the same as any other
// update failure; it exists as a distinct sentinel so tests and operators can tell a provider-side
// inconsistency apart from a transport error.
var ErrConflict = errors.New(me + ": conflict: expected exactly one existing record for update-in-place")

func recordComment() string {
	return constants.Get().RecordComment
}

// Client reconciles a single managed record against the Cloudflare API.
type Client struct {
	zoneID     string
	token      string
	baseURL    string
	httpClient HTTPDoer
	cache      *Cache

	// OnUpdateDuration, when set, is invoked after every Update call (success or failure) with
	// how long the reconciliation took. cmd/cfswitchd wires this to the cloudflare_update_seconds
	// gauge.
	OnUpdateDuration func(time.Duration)
}

// NewClient builds a Client that talks to the real Cloudflare API.
func NewClient(zoneID, token string) *Client {
	return &Client{
		zoneID:     zoneID,
		token:      token,
		baseURL:    constants.Get().CloudflareAPIBase,
		httpClient: newHTTPDoer(),
		cache:      &Cache{},
	}
}

// NewClientWithDoer builds a Client against an injected HTTPDoer, used by tests to avoid touching
// the network.
func NewClientWithDoer(zoneID, token string, httpClient HTTPDoer) *Client {
	return &Client{
		zoneID:     zoneID,
		token:      token,
		baseURL:    constants.Get().CloudflareAPIBase,
		httpClient: httpClient,
		cache:      &Cache{},
	}
}

// computeDesiredState derives what the record set should look like for the given selection. A
// single endpoint wants a plain CNAME to its own DNS record; more than one wants the union of
// their resolved addresses, since a provider-side CNAME cannot point at multiple targets.
func computeDesiredState(endpoints []*endpoint.Endpoint) (DesiredState, error) {
	if len(endpoints) == 1 {
		return DesiredState{Kind: SingleCNAME, Target: endpoints[0].DNS.Record}, nil
	}

	ips := make(map[string]net.IP)
	for _, e := range endpoints {
		resolved, err := dnsclient.Resolve(e.DNS.Record, e.DNS.Resolver, e.DNS.Retry)
		if err != nil {
			return DesiredState{}, fmt.Errorf("%s: resolve %s for sticky set: %w", me, e.DNS.Record, err)
		}
		for _, ip := range resolved {
			ips[ip.String()] = ip
		}
	}
	if len(ips) == 0 {
		return DesiredState{}, fmt.Errorf("%s: sticky set resolved to no addresses", me)
	}
	return DesiredState{Kind: MultiAddress, IPs: ips}, nil
}

// Update reconciles record towards the state demanded by endpoints. It is the only exported entry
// point; callers never see the cache or the create/update/delete split directly.
func (c *Client) Update(record string, endpoints []*endpoint.Endpoint, ttl uint16) error {
	start := time.Now()
	err := c.innerUpdate(record, endpoints, ttl)
	if c.OnUpdateDuration != nil {
		c.OnUpdateDuration(time.Since(start))
	}
	if err != nil {
		// The provider's actual state after a failed call is unknown - it may have partially
		// applied. Forget what we thought we knew so the next call re-derives it.
		c.cache.Invalidate()
		return fmt.Errorf("%s: %w", me, err)
	}
	return nil
}

func (c *Client) innerUpdate(record string, endpoints []*endpoint.Endpoint, ttl uint16) error {
	if len(endpoints) == 0 {
		return errors.New(me + ": no endpoints selected")
	}

	state, err := computeDesiredState(endpoints)
	if err != nil {
		return err
	}

	cached, ok := c.cache.Get()
	if ok && cached.Equal(state) {
		return nil
	}

	// Minimal-churn strategy: an update-in-place is only safe when both the cached and desired
	// states are a plain CNAME, since that is the one case where a record can be rewritten rather
	// than replaced. Everything else - no cached state, or a variant change in either direction -
	// falls back to deleting whatever exists and creating fresh records.
	justUpdate := ok && cached.SameVariant(state) && state.Kind == SingleCNAME
	fullCleanup := !justUpdate

	if fullCleanup {
		ids, err := c.recordIDs(record)
		if err != nil {
			return err
		}
		var deleteErrs *multierror.Error
		for _, id := range ids {
			if err := c.deleteRecord(id); err != nil {
				deleteErrs = multierror.Append(deleteErrs, err)
			}
		}
		if err := deleteErrs.ErrorOrNil(); err != nil {
			return fmt.Errorf("%s: cleanup before recreate: %w", me, err)
		}
	}

	if justUpdate {
		ids, err := c.recordIDs(record)
		if err != nil {
			return err
		}
		if len(ids) != 1 {
			return ErrConflict
		}
		if err := c.updateCNAME(record, ids[0], state.Target, ttl); err != nil {
			return err
		}
	} else {
		switch state.Kind {
		case SingleCNAME:
			if _, err := c.createRecord(record, "CNAME", state.Target, ttl); err != nil {
				return err
			}
		case MultiAddress:
			for _, ip := range state.SortedIPs() {
				recordType := "A"
				if ip.To4() == nil {
					recordType = "AAAA"
				}
				if _, err := c.createRecord(record, recordType, ip.String(), ttl); err != nil {
					return err
				}
			}
		}
	}

	c.cache.Set(state)
	return nil
}
