package dnscache

import (
	"context"
	"encoding/json"
	"net"
	"time"

	"github.com/VictoriaMetrics/fastcache"
	"golang.org/x/sync/singleflight"

	"go-wget/internal/errtax"
)

// Family selects an address-family preference for a Resolve call, per
// spec.md §4.1.
type Family int

const (
	// FamilyAny applies no family preference or filtering.
	FamilyAny Family = iota
	FamilyIPv4
	FamilyIPv6
)

// FamilyPreference controls how Resolve orders (or, if Strict, filters)
// the addresses it returns.
type FamilyPreference struct {
	Family Family
	// Strict demands every returned address belong to Family; a query
	// that resolves to no address of that family is a ResolveError
	// instead of falling back to the other family.
	Strict bool
}

// entry is the JSON-serialized cache record: the resolved addresses plus
// the instant they expire, since fastcache itself has no TTL notion.
type entry struct {
	Addrs     []string  `json:"addrs"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Resolver is the DNS Resolver with Cache component. It fronts a Backend
// with an immutable byte-cache (VictoriaMetrics/fastcache, grounded in
// the teacher's ReconCache) and deduplicates concurrent lookups for the
// same (host,port) via golang.org/x/sync/singleflight.
type Resolver struct {
	primary  Backend
	fallback Backend
	cache    *fastcache.Cache
	group    singleflight.Group
	ttl      time.Duration
}

const defaultCacheBytes = 32 * 1024 * 1024 // 32MB, matches the teacher's ReconCache sizing

// Transient-failure retry policy, per spec.md §4.1: up to 3 attempts
// with a 100ms backoff between attempts.
const (
	maxResolveAttempts = 3
	resolveBackoff     = 100 * time.Millisecond
)

// New builds a Resolver. primary is tried first; fallback is used only
// when primary returns an error (e.g. DoH resolution failing over to the
// system resolver).
func New(primary, fallback Backend, ttl time.Duration) *Resolver {
	return &Resolver{
		primary:  primary,
		fallback: fallback,
		cache:    fastcache.New(defaultCacheBytes),
		ttl:      ttl,
	}
}

// Resolve implements the DNS Resolver with Cache contract from spec.md
// §4.1: resolve(host, port, family-preference). Concurrent callers for
// the same (host,port) share one in-flight resolution; cache hits never
// touch the network; family preference is applied after the cache or
// backend answer is in hand, since it doesn't change what was looked up,
// only how it's filtered and ordered.
func (r *Resolver) Resolve(ctx context.Context, host, port string, pref FamilyPreference) ([]net.IPAddr, error) {
	key := host + ":" + port

	addrs, ok := r.lookup(key)
	if !ok {
		v, err, _ := r.group.Do(key, func() (interface{}, error) {
			if addrs, ok := r.lookup(key); ok {
				return addrs, nil
			}
			resolved, err := r.resolveUncached(ctx, host)
			if err != nil {
				return nil, err
			}
			r.store(key, resolved)
			return resolved, nil
		})
		if err != nil {
			return nil, err
		}
		addrs = v.([]net.IPAddr)
	}

	return applyFamilyPreference(host, addrs, pref)
}

// resolveUncached retries the primary backend up to maxResolveAttempts
// times with resolveBackoff between attempts, but only while the error
// is classified as transient; a permanent error returns immediately. The
// fallback backend, if any, is tried once the primary is exhausted.
func (r *Resolver) resolveUncached(ctx context.Context, host string) ([]net.IPAddr, error) {
	var lastErr error
	for attempt := 1; attempt <= maxResolveAttempts; attempt++ {
		addrs, err := r.primary.LookupAddrs(ctx, host)
		if err == nil {
			return addrs, nil
		}
		lastErr = err
		if !isTransient(err) {
			break
		}
		if attempt == maxResolveAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(resolveBackoff):
		}
	}

	if r.fallback == nil {
		return nil, lastErr
	}
	addrs, fbErr := r.fallback.LookupAddrs(ctx, host)
	if fbErr != nil {
		return nil, errtax.Wrap(errtax.KindDNSTransient, fbErr)
	}
	return addrs, nil
}

func isTransient(err error) bool {
	kind, ok := errtax.KindOf(err)
	return ok && kind == errtax.KindDNSTransient
}

// applyFamilyPreference reorders addrs so pref.Family comes first,
// preserving relative order within each family, or — when pref.Strict —
// filters to pref.Family alone and raises a ResolveError if nothing
// matches, per spec.md §4.1.
func applyFamilyPreference(host string, addrs []net.IPAddr, pref FamilyPreference) ([]net.IPAddr, error) {
	if pref.Family == FamilyAny {
		return addrs, nil
	}

	var preferred, other []net.IPAddr
	for _, a := range addrs {
		if familyOf(a) == pref.Family {
			preferred = append(preferred, a)
		} else {
			other = append(other, a)
		}
	}

	if pref.Strict {
		if len(preferred) == 0 {
			return nil, errtax.New(errtax.KindDNSPermanent, "%s: no addresses of the required family", host)
		}
		return preferred, nil
	}
	return append(preferred, other...), nil
}

func familyOf(a net.IPAddr) Family {
	if a.IP.To4() != nil {
		return FamilyIPv4
	}
	return FamilyIPv6
}

func (r *Resolver) lookup(key string) ([]net.IPAddr, bool) {
	data := r.cache.Get(nil, []byte(key))
	if data == nil {
		return nil, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, false
	}
	if time.Now().After(e.ExpiresAt) {
		return nil, false
	}
	addrs := make([]net.IPAddr, 0, len(e.Addrs))
	for _, s := range e.Addrs {
		if ip := net.ParseIP(s); ip != nil {
			addrs = append(addrs, net.IPAddr{IP: ip})
		}
	}
	return addrs, true
}

func (r *Resolver) store(key string, addrs []net.IPAddr) {
	strs := make([]string, len(addrs))
	for i, a := range addrs {
		strs[i] = a.IP.String()
	}
	e := entry{Addrs: strs, ExpiresAt: time.Now().Add(r.ttl)}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	r.cache.Set([]byte(key), data)
}

// Invalidate drops any cached entry for (host,port), forcing the next
// Resolve to hit the backend. Used when the Worker Pool reports a
// connect failure that may indicate a stale address.
func (r *Resolver) Invalidate(host, port string) {
	r.cache.Del([]byte(host + ":" + port))
}
