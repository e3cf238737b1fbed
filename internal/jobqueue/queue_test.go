package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-wget/internal/hostregistry"
	"go-wget/internal/urlcanon"
)

func mustParse(t *testing.T, raw string) urlcanon.URL {
	t.Helper()
	u, err := urlcanon.Parse(raw)
	require.NoError(t, err)
	return u
}

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestDequeue_ReturnsEmptyWhenNoWorkAndInputClosed(t *testing.T) {
	q := New(hostregistry.New(0, 0, 0))
	q.CloseInput()

	result := q.Dequeue(fixedNow(time.Now()))
	assert.True(t, result.Empty)
}

func TestEnqueueDequeue_RobotsFirst(t *testing.T) {
	registry := hostregistry.New(0, 0, 0)
	q := New(registry)

	u := mustParse(t, "http://example.com/page")
	q.Enqueue(&Job{URL: u, HostKey: "example.com:80"})

	result := q.Dequeue(fixedNow(time.Now()))
	require.NotNil(t, result.Job)
	assert.True(t, result.Job.IsRobots, "the host's first dispatched job must be the synthetic robots.txt fetch")
}

func TestEnqueueDequeue_OrdinaryJobWaitsForRobotsCompletion(t *testing.T) {
	registry := hostregistry.New(0, 0, 0)
	q := New(registry)

	u := mustParse(t, "http://example.com/page")
	q.Enqueue(&Job{URL: u, HostKey: "example.com:80"})

	robotsResult := q.Dequeue(fixedNow(time.Now()))
	require.NotNil(t, robotsResult.Job)
	assert.True(t, robotsResult.Job.IsRobots)

	registry.SetRobotsPolicy("example.com:80", nil)
	q.Complete(robotsResult.Job)

	result := q.Dequeue(fixedNow(time.Now()))
	require.NotNil(t, result.Job)
	assert.Equal(t, u, result.Job.URL)
}

func TestDequeue_SkipsBackoffHost(t *testing.T) {
	registry := hostregistry.New(5, time.Hour, time.Hour)
	registry.SetRobotsPolicy("slow.example.com:80", nil)
	registry.RecordFailure("slow.example.com:80")

	q := New(registry)
	q.Enqueue(&Job{URL: mustParse(t, "http://slow.example.com/x"), HostKey: "slow.example.com:80"})
	q.CloseInput()

	result := q.Dequeue(fixedNow(time.Now()))
	assert.True(t, result.WaitUntil.After(time.Now()) || result.Empty)
}

func TestFIFOOrderingWithinHost(t *testing.T) {
	registry := hostregistry.New(0, 0, 0)
	registry.SetRobotsPolicy("example.com:80", nil)
	q := New(registry)

	first := mustParse(t, "http://example.com/1")
	second := mustParse(t, "http://example.com/2")
	q.Enqueue(&Job{URL: first, HostKey: "example.com:80"})
	q.Enqueue(&Job{URL: second, HostKey: "example.com:80"})

	r1 := q.Dequeue(fixedNow(time.Now()))
	require.NotNil(t, r1.Job)
	assert.Equal(t, first, r1.Job.URL)

	q.Complete(r1.Job)

	r2 := q.Dequeue(fixedNow(time.Now()))
	require.NotNil(t, r2.Job)
	assert.Equal(t, second, r2.Job.URL)
}

func TestDequeue_SkipsHostAlreadyInFlight(t *testing.T) {
	registry := hostregistry.New(0, 0, 0)
	registry.SetRobotsPolicy("example.com:80", nil)
	q := New(registry)

	first := mustParse(t, "http://example.com/1")
	second := mustParse(t, "http://example.com/2")
	q.Enqueue(&Job{URL: first, HostKey: "example.com:80"})
	q.Enqueue(&Job{URL: second, HostKey: "example.com:80"})
	q.CloseInput()

	r1 := q.Dequeue(fixedNow(time.Now()))
	require.NotNil(t, r1.Job)
	assert.Equal(t, first, r1.Job.URL)

	// The host's second job is queued but the host already has an
	// in-flight dispatch, so the default per-host-limit of 1 must hold
	// it back until the first job completes.
	result := q.Dequeue(fixedNow(time.Now()))
	assert.Nil(t, result.Job)
	assert.False(t, result.Empty, "a job is still pending behind the busy host, so the queue isn't done")

	q.Complete(r1.Job)

	r2 := q.Dequeue(fixedNow(time.Now()))
	require.NotNil(t, r2.Job)
	assert.Equal(t, second, r2.Job.URL)
}

func TestDequeue_BusyClearedOnRequeueUsesDispatchHost(t *testing.T) {
	registry := hostregistry.New(0, 0, 0)
	registry.SetRobotsPolicy("example.com:80", nil)
	q := New(registry)

	u := mustParse(t, "http://example.com/1")
	q.Enqueue(&Job{URL: u, HostKey: "example.com:80"})

	r1 := q.Dequeue(fixedNow(time.Now()))
	require.NotNil(t, r1.Job)

	// Simulate a Part Scheduler mirror rotation mutating HostKey after
	// dispatch but before Requeue; the busy marker must still clear by
	// dispatchHost, not the mutated HostKey.
	r1.Job.HostKey = "mirror.example.com:80"
	q.Requeue(r1.Job)

	assert.False(t, q.busy["example.com:80"], "busy marker for the dispatch host should clear even after HostKey mutates")
}

func TestEmpty_FalseWhileJobInFlight(t *testing.T) {
	registry := hostregistry.New(0, 0, 0)
	registry.SetRobotsPolicy("example.com:80", nil)
	q := New(registry)
	q.Enqueue(&Job{URL: mustParse(t, "http://example.com/1"), HostKey: "example.com:80"})
	q.CloseInput()

	result := q.Dequeue(fixedNow(time.Now()))
	require.NotNil(t, result.Job)
	assert.False(t, q.Empty(), "in-flight job should keep the queue non-empty")

	q.Complete(result.Job)
	assert.True(t, q.Empty())
}
