// Package jobqueue implements the Job Queue: a global queue of pending
// jobs segmented by host, supporting pop-by-availability (host not
// rate-limited, not blocked, robots prerequisite satisfied). Per
// spec.md §5, the queue, host registry, and blacklist share one coarse
// coordinator mutex paired with two condition variables.
package jobqueue

import (
	"container/list"
	"sync"
	"time"

	"go-wget/internal/hostregistry"
	"go-wget/internal/urlcanon"
)

type hostQueue struct {
	jobs *list.List // FIFO of *Job
}

// Queue is the Job Queue component. It consults a hostregistry.Registry
// for per-host readiness (backoff, blacklisting, robots prerequisite)
// when choosing which host to serve next.
type Queue struct {
	mu             sync.Mutex
	workAvailable  *sync.Cond
	workCompleted  *sync.Cond
	hosts          map[string]*hostQueue
	busy           map[string]bool // host currently has an in-flight dispatch, per spec.md §8 per-host-limit=1
	inFlight       int
	inputClosed    bool
	registry       *hostregistry.Registry
}

// New builds an empty Queue backed by registry for host-readiness
// decisions.
func New(registry *hostregistry.Registry) *Queue {
	q := &Queue{
		hosts:    make(map[string]*hostQueue),
		busy:     make(map[string]bool),
		registry: registry,
	}
	q.workAvailable = sync.NewCond(&q.mu)
	q.workCompleted = sync.NewCond(&q.mu)
	return q
}

// Enqueue adds job to its host's FIFO and wakes any worker waiting on
// work-available.
func (q *Queue) Enqueue(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()

	hq, firstJobForHost := q.hosts[job.HostKey]
	if !firstJobForHost {
		hq = &hostQueue{jobs: list.New()}
		q.hosts[job.HostKey] = hq
	}

	if !firstJobForHost && !job.IsRobots && q.registry != nil && q.registry.NeedsRobots(job.HostKey) {
		hq.jobs.PushBack(robotsJobFor(job.URL, job.HostKey))
	}

	hq.jobs.PushBack(job)
	q.workAvailable.Broadcast()
}

// robotsJobFor builds the synthetic /robots.txt fetch that must precede
// every other job dispatched for a host, per spec.md §4.2.
func robotsJobFor(seed urlcanon.URL, hostKey string) *Job {
	return &Job{
		URL: urlcanon.URL{
			Scheme: seed.Scheme,
			Host:   seed.Host,
			Port:   seed.Port,
			Path:   "/robots.txt",
		},
		HostKey:  hostKey,
		IsRobots: true,
	}
}

// CloseInput marks the input driver as closed, a precondition (together
// with an empty queue and no in-flight jobs) for worker shutdown.
func (q *Queue) CloseInput() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inputClosed = true
	q.workAvailable.Broadcast()
}

// Result is returned by Dequeue: exactly one of Job, WaitUntil, or Empty
// is meaningful.
type Result struct {
	Job       *Job
	WaitUntil time.Time // non-zero: no host ready now, but one will be at this time
	Empty     bool      // true: no pending jobs and no jobs in flight; caller should exit
}

// Dequeue blocks until a job is available, the queue is permanently
// empty, or a host becomes ready; it never busy-waits. Workers call it
// in a loop.
func (q *Queue) Dequeue(now func() time.Time) Result {
	q.mu.Lock()
	defer q.mu.Unlock()

	for {
		if job, _ := q.popReady(now()); job != nil {
			q.inFlight++
			return Result{Job: job}
		}

		if q.isEmptyLocked() {
			return Result{Empty: true}
		}

		if waitUntil, ok := q.earliestWaitLocked(now()); ok {
			return Result{WaitUntil: waitUntil}
		}

		q.workAvailable.Wait()
	}
}

// popReady scans hosts for the first whose FIFO is non-empty and whose
// registry status permits dispatch, removing and returning its head job.
func (q *Queue) popReady(now time.Time) (*Job, string) {
	for hostKey, hq := range q.hosts {
		if hq.jobs.Len() == 0 {
			continue
		}
		front := hq.jobs.Front()
		job := front.Value.(*Job)

		if !q.jobReady(hostKey, job) {
			continue
		}

		hq.jobs.Remove(front)
		q.busy[hostKey] = true
		job.dispatchHost = hostKey
		return job, hostKey
	}
	return nil, ""
}

// jobReady applies the host-readiness rules from spec.md §4.2/§4.4: a
// blacklisted host never dispatches again; a backing-off host is
// skipped until its window elapses; every job but the robots.txt fetch
// itself waits behind that host's robots prerequisite; a host already
// serving an in-flight job is skipped, enforcing the default
// per-host-limit of 1 concurrent connection (spec.md §8).
func (q *Queue) jobReady(hostKey string, job *Job) bool {
	if q.busy[hostKey] {
		return false
	}
	if q.registry == nil {
		return true
	}
	switch q.registry.Status(hostKey) {
	case hostregistry.StatusBlacklisted, hostregistry.StatusBackoff:
		return false
	}
	if !job.IsRobots && q.registry.NeedsRobots(hostKey) {
		return false
	}
	return true
}

// isEmptyLocked reports the shutdown condition from spec.md §4.4: no job
// pending in any host queue and no job currently in flight.
func (q *Queue) isEmptyLocked() bool {
	if q.inFlight > 0 {
		return false
	}
	if !q.inputClosed {
		return false
	}
	for _, hq := range q.hosts {
		if hq.jobs.Len() > 0 {
			return false
		}
	}
	return true
}

func (q *Queue) earliestWaitLocked(now time.Time) (time.Time, bool) {
	var earliest time.Time
	found := false
	for hostKey, hq := range q.hosts {
		if hq.jobs.Len() == 0 {
			continue
		}
		if q.registry == nil {
			continue
		}
		remaining := q.registry.BackoffRemaining(hostKey)
		if remaining <= 0 {
			continue
		}
		readyAt := now.Add(remaining)
		if !found || readyAt.Before(earliest) {
			earliest = readyAt
			found = true
		}
	}
	return earliest, found
}

// Complete marks job as finished, decrementing the in-flight count and
// waking the main controller's work-completed wait.
func (q *Queue) Complete(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	delete(q.busy, job.dispatchHost)
	q.workCompleted.Broadcast()
	q.workAvailable.Broadcast()
}

// Requeue returns an in-flight job to the front of its host's queue
// (used for retries), without incrementing in-flight count again.
func (q *Queue) Requeue(job *Job) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inFlight--
	delete(q.busy, job.dispatchHost)
	hq, ok := q.hosts[job.HostKey]
	if !ok {
		hq = &hostQueue{jobs: list.New()}
		q.hosts[job.HostKey] = hq
	}
	hq.jobs.PushFront(job)
	q.workAvailable.Broadcast()
}

// Size returns the total number of jobs pending across all hosts
// (not counting in-flight jobs).
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	total := 0
	for _, hq := range q.hosts {
		total += hq.jobs.Len()
	}
	return total
}

// Empty reports the shutdown condition without blocking.
func (q *Queue) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.isEmptyLocked()
}

// WaitForCompletion blocks until the work-completed condition is
// signalled, for the main controller's wakeup loop (spec.md §4.8).
func (q *Queue) WaitForCompletion() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.workCompleted.Wait()
}
