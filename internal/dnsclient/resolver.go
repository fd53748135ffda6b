// Package dnsclient resolves a single FQDN to its A/AAAA addresses against a caller-supplied
// recursive resolver. It exists because the control loop needs to know an endpoint's current
// addresses independently of whatever split-horizon or search-domain logic the host's resolver
// library might apply - we always talk directly to the configured resolver IP.
package dnsclient

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const me = "dnsclient"

// receiveTimeout is the fixed per-query wait for a response. It is not configurable; only the
// retry count is.
const receiveTimeout = 10 * time.Second

const udpBufferSize = 4096

// Exchanger is the interface used to send a single DNS query and wait for its reply. It exists so
// tests can supply a mock resolver without standing up a UDP listener.
type Exchanger interface {
	Exchange(query *dns.Msg, resolver string) (*dns.Msg, error)
}

// udpExchanger is the default Exchanger, talking real UDP DNS to resolver:53.
type udpExchanger struct{}

func (udpExchanger) Exchange(query *dns.Msg, resolver string) (*dns.Msg, error) {
	conn, err := net.Dial("udp", net.JoinHostPort(resolver, "53"))
	if err != nil {
		return nil, fmt.Errorf("%s: dial: %w", me, err)
	}
	defer conn.Close()

	packed, err := query.Pack()
	if err != nil {
		return nil, fmt.Errorf("%s: pack: %w", me, err)
	}
	if _, err := conn.Write(packed); err != nil {
		return nil, fmt.Errorf("%s: send: %w", me, err)
	}

	if err := conn.SetReadDeadline(time.Now().Add(receiveTimeout)); err != nil {
		return nil, fmt.Errorf("%s: set deadline: %w", me, err)
	}
	buf := make([]byte, udpBufferSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("%s: receive: %w", me, err)
	}

	reply := new(dns.Msg)
	if err := reply.Unpack(buf[:n]); err != nil {
		return nil, fmt.Errorf("%s: unpack: %w", me, err)
	}

	return reply, nil
}

// DefaultExchanger is the production Exchanger used whenever a caller does not supply their own.
var DefaultExchanger Exchanger = udpExchanger{}

// one issues a single-question query for qtype and unions the resulting A/AAAA records (whichever
// is actually present in the answer section) into result.
func one(exchanger Exchanger, record, resolver string, qtype uint16, result map[string]net.IP) error {
	query := new(dns.Msg)
	query.SetQuestion(dns.Fqdn(record), qtype)
	query.RecursionDesired = true

	reply, err := exchanger.Exchange(query, resolver)
	if err != nil {
		return err
	}
	if reply.Rcode != dns.RcodeSuccess {
		return fmt.Errorf("%s: %s: rcode %s", me, record, dns.RcodeToString[reply.Rcode])
	}

	for _, rr := range reply.Answer {
		switch v := rr.(type) {
		case *dns.A:
			result[v.A.String()] = v.A
		case *dns.AAAA:
			result[v.AAAA.String()] = v.AAAA
		}
	}

	return nil
}

// resolveOnce issues one A query and one AAAA query for record (two independent single-question
// messages, since many recursive resolvers reject multi-question messages) and unions both result
// sets.
func resolveOnce(exchanger Exchanger, record, resolver string) (map[string]net.IP, error) {
	result := make(map[string]net.IP)
	if err := one(exchanger, record, resolver, dns.TypeA, result); err != nil {
		return nil, err
	}
	if err := one(exchanger, record, resolver, dns.TypeAAAA, result); err != nil {
		return nil, err
	}

	return result, nil
}

// Resolve resolves record's A and AAAA records via resolver, retrying the whole A+AAAA pair up to
// retry additional times on failure. Intermediate failures are swallowed; only the last one is
// returned to the caller.
func Resolve(record, resolver string, retry uint8) ([]net.IP, error) {
	return ResolveWith(DefaultExchanger, record, resolver, retry)
}

// ResolveWith is Resolve with an injectable Exchanger, used by tests.
func ResolveWith(exchanger Exchanger, record, resolver string, retry uint8) ([]net.IP, error) {
	if len(record) == 0 {
		return nil, errors.New(me + ": empty record")
	}
	if len(resolver) == 0 {
		return nil, errors.New(me + ": empty resolver")
	}

	var lastErr error
	attempts := int(retry) + 1
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := resolveOnce(exchanger, record, resolver)
		if err == nil {
			ips := make([]net.IP, 0, len(result))
			for _, ip := range result {
				ips = append(ips, ip)
			}
			return ips, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%s: all attempts exhausted: %w", me, lastErr)
}
