// Package hostregistry implements the Host Registry: per-host state the
// coordinator consults before dispatching a job — consecutive failure
// counts, exponential backoff, and whether the robots.txt prerequisite
// fetch for that host has completed.
package hostregistry

import (
	"sync"
	"time"

	"github.com/projectdiscovery/gcache"
)

// Status is a host's current eligibility for dispatch.
type Status int

const (
	// StatusReady means jobs for this host may be dispatched now.
	StatusReady Status = iota
	// StatusBackoff means the host is in its exponential backoff window.
	StatusBackoff
	// StatusBlacklisted means the host has reached the failure ceiling
	// or was marked final by MarkFinal, and no further jobs for it will
	// be dispatched this run.
	StatusBlacklisted
)

const (
	defaultMaxFailures  = 10
	defaultBaseBackoff  = 1 * time.Second
	defaultMaxBackoff   = 2 * time.Minute
	defaultCacheEntries = 1000
)

// Registry tracks per-host failure counts and robots-prerequisite state.
// Failure bookkeeping is grounded in the teacher's ErrorHandler: an ARC
// cache of consecutive-failure counts and a parallel cache of the last
// failure time, generalized from per-client error suppression to
// per-host dispatch backoff.
type Registry struct {
	mu sync.Mutex

	failures     gcache.Cache[string, int]
	lastFailure  gcache.Cache[string, time.Time]
	robotsDone   map[string]bool
	robotsResult map[string]*RobotsPolicy
	final        map[string]bool // hosts marked permanently blocked by MarkFinal; immune to RecordSuccess

	maxFailures int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// New builds a Registry with the given failure ceiling and backoff base.
// Passing zero values selects the defaults.
func New(maxFailures int, baseBackoff, maxBackoff time.Duration) *Registry {
	if maxFailures <= 0 {
		maxFailures = defaultMaxFailures
	}
	if baseBackoff <= 0 {
		baseBackoff = defaultBaseBackoff
	}
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	return &Registry{
		failures: gcache.New[string, int](defaultCacheEntries).
			ARC().
			Build(),
		lastFailure: gcache.New[string, time.Time](defaultCacheEntries).
			ARC().
			Build(),
		robotsDone:   make(map[string]bool),
		robotsResult: make(map[string]*RobotsPolicy),
		final:        make(map[string]bool),
		maxFailures:  maxFailures,
		baseBackoff:  baseBackoff,
		maxBackoff:   maxBackoff,
	}
}

// RecordSuccess clears the failure count for host, letting it return to
// StatusReady immediately.
func (r *Registry) RecordSuccess(host string) {
	_ = r.failures.Set(host, 0)
}

// RecordFailure increments host's consecutive-failure count and stamps
// the current time as its last failure, driving the exponential backoff
// computed by Status.
func (r *Registry) RecordFailure(host string) {
	count, _ := r.failures.GetIFPresent(host)
	count++
	_ = r.failures.Set(host, count)
	_ = r.lastFailure.Set(host, time.Now())
}

// MarkFinal permanently blocks host from dispatch for the rest of the
// run: no subsequent RecordSuccess can undo it, per spec.md §4.2's
// mark-final contract (e.g. a hard HTTPS-enforce TLS failure).
func (r *Registry) MarkFinal(host string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.final[host] = true
}

// Status reports host's current dispatch eligibility.
func (r *Registry) Status(host string) Status {
	r.mu.Lock()
	final := r.final[host]
	r.mu.Unlock()
	if final {
		return StatusBlacklisted
	}

	count, _ := r.failures.GetIFPresent(host)
	if count == 0 {
		return StatusReady
	}
	if count >= r.maxFailures {
		return StatusBlacklisted
	}

	last, present := r.lastFailure.GetIFPresent(host)
	if !present {
		return StatusReady
	}

	backoff := r.backoffFor(count)
	if time.Since(last) < backoff {
		return StatusBackoff
	}
	return StatusReady
}

// BackoffRemaining returns the duration until host leaves its backoff
// window, or zero if it isn't currently backing off.
func (r *Registry) BackoffRemaining(host string) time.Duration {
	if r.Status(host) != StatusBackoff {
		return 0
	}
	count, _ := r.failures.GetIFPresent(host)
	last, _ := r.lastFailure.GetIFPresent(host)
	remaining := r.backoffFor(count) - time.Since(last)
	if remaining < 0 {
		return 0
	}
	return remaining
}

func (r *Registry) backoffFor(consecutiveFailures int) time.Duration {
	backoff := r.baseBackoff
	for i := 1; i < consecutiveFailures && backoff < r.maxBackoff; i++ {
		backoff *= 2
	}
	if backoff > r.maxBackoff {
		backoff = r.maxBackoff
	}
	return backoff
}

// NeedsRobots reports whether host's robots.txt prerequisite fetch has
// not yet completed. The Job Queue calls this before admitting any job
// for host other than the robots.txt fetch itself.
func (r *Registry) NeedsRobots(host string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.robotsDone[host]
}

// SetRobotsPolicy records the outcome of host's robots.txt fetch,
// satisfying the prerequisite for every subsequent job against it.
func (r *Registry) SetRobotsPolicy(host string, policy *RobotsPolicy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.robotsDone[host] = true
	r.robotsResult[host] = policy
}

// RobotsPolicy returns the robots.txt policy recorded for host, or nil
// if none was recorded (no robots.txt, or the fetch failed permissively).
func (r *Registry) RobotsPolicy(host string) *RobotsPolicy {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.robotsResult[host]
}
