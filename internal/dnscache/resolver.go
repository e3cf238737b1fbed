// Package dnscache implements the DNS Resolver with Cache component: a
// pluggable resolver backend (system or DNS-over-HTTPS) fronted by an
// immutable (host,port)-keyed cache with single-flight deduplication of
// concurrent lookups for the same (host,port).
package dnscache

import (
	"context"
	"net"

	"github.com/likexian/doh"
	"github.com/likexian/doh/dns"

	"go-wget/internal/errtax"
)

// Backend resolves a hostname to its set of addresses. SystemResolver and
// DoHResolver are the two concrete implementations; both are safe for
// concurrent use.
type Backend interface {
	LookupAddrs(ctx context.Context, host string) ([]net.IPAddr, error)
}

// SystemResolver defers to the platform's stub resolver via net.Resolver,
// the teacher's fallback path when DoH resolution comes up empty.
type SystemResolver struct {
	resolver *net.Resolver
}

func NewSystemResolver() *SystemResolver {
	return &SystemResolver{resolver: net.DefaultResolver}
}

func (r *SystemResolver) LookupAddrs(ctx context.Context, host string) ([]net.IPAddr, error) {
	addrs, err := r.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errtax.Wrap(errtax.KindDNSTransient, err)
	}
	if len(addrs) == 0 {
		return nil, errtax.New(errtax.KindDNSPermanent, "no addresses found for %s", host)
	}
	return addrs, nil
}

// DoHResolver resolves over DNS-over-HTTPS using likexian/doh, querying
// multiple public providers and letting the client race them.
type DoHResolver struct {
	client *doh.DoH
}

func NewDoHResolver() *DoHResolver {
	client := doh.Use(doh.CloudflareProvider, doh.GoogleProvider, doh.Quad9Provider)
	client.EnableCache(true)
	return &DoHResolver{client: client}
}

func (r *DoHResolver) LookupAddrs(ctx context.Context, host string) ([]net.IPAddr, error) {
	domain := dns.Domain(host)
	var addrs []net.IPAddr

	if resp, err := r.client.Query(ctx, domain, dns.TypeA); err == nil && resp != nil {
		for _, answer := range resp.Answer {
			if ip := net.ParseIP(answer.Data); ip != nil {
				addrs = append(addrs, net.IPAddr{IP: ip})
			}
		}
	}
	if resp, err := r.client.Query(ctx, domain, dns.TypeAAAA); err == nil && resp != nil {
		for _, answer := range resp.Answer {
			if ip := net.ParseIP(answer.Data); ip != nil {
				addrs = append(addrs, net.IPAddr{IP: ip})
			}
		}
	}

	if len(addrs) == 0 {
		return nil, errtax.New(errtax.KindDNSPermanent, "DoH resolution returned no addresses for %s", host)
	}
	return addrs, nil
}
