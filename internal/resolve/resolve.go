// Package resolve implements the address-family-agnostic bind-address
// resolver the engine's Listener uses in place of a legacy
// gethostbyname-style lookup, preferring an explicit DNS client over
// relying solely on the host's resolver configuration.
package resolve

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// Resolver looks up a bind hostname to a single IP address, trying
// IPv6 (AAAA) before falling back to IPv4 (A), then finally the
// system resolver if no DNS server is configured.
type Resolver struct {
	// Server is a "host:port" DNS server to query directly via
	// github.com/miekg/dns. If empty, LookupBindIP uses
	// net.DefaultResolver instead.
	Server  string
	Timeout time.Duration
}

// New returns a Resolver that queries server directly, or falls back
// to the system resolver when server is empty.
func New(server string) *Resolver {
	return &Resolver{Server: server, Timeout: 5 * time.Second}
}

// LookupBindIP resolves host to a single bind address.
func (r *Resolver) LookupBindIP(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	if r.Server == "" {
		return r.lookupSystem(host)
	}
	if ip, err := r.lookupDNS(host, dns.TypeAAAA); err == nil {
		return ip, nil
	}
	return r.lookupDNS(host, dns.TypeA)
}

func (r *Resolver) lookupSystem(host string) (net.IP, error) {
	ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
	defer cancel()
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve: no addresses found for %s", host)
	}
	return addrs[0].IP, nil
}

func (r *Resolver) lookupDNS(host string, qtype uint16) (net.IP, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(host), qtype)
	m.RecursionDesired = true

	c := new(dns.Client)
	c.Timeout = r.Timeout
	resp, _, err := c.Exchange(m, r.Server)
	if err != nil {
		return nil, err
	}
	for _, ans := range resp.Answer {
		switch rr := ans.(type) {
		case *dns.AAAA:
			return rr.AAAA, nil
		case *dns.A:
			return rr.A, nil
		}
	}
	return nil, fmt.Errorf("resolve: no %s records for %s", dns.TypeToString[qtype], host)
}
