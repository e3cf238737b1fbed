// Package worker implements the Worker Pool: a fixed-size set of
// download workers cooperating through the Job Queue, per spec.md §4.5
// and §5. Each worker loops popping jobs, running them through the
// Fetch Pipeline, and requeuing or completing them based on the
// pipeline's outcome.
package worker

import (
	"sync"
	"sync/atomic"
	"time"

	"go-wget/internal/errtax"
	"go-wget/internal/fetch"
	"go-wget/internal/hostregistry"
	"go-wget/internal/jobqueue"
	"go-wget/internal/logx"
)

// processor is satisfied by *fetch.Pipeline; narrowed to an interface
// here so the pool can be exercised with a fake in tests without
// standing up a real HTTP client.
type processor interface {
	Process(job *jobqueue.Job) fetch.Outcome
}

// Pool is the fixed-size Worker Pool.
type Pool struct {
	size       int
	queue      *jobqueue.Queue
	pipeline   processor
	registry   *hostregistry.Registry
	tries      int
	waitRetry  time.Duration
	randomWait bool
	terminate  atomic.Bool
	logger     *logx.Logger
	setStatus  func(int)

	wg sync.WaitGroup
}

// Options configures a Pool.
type Options struct {
	Size       int
	Queue      *jobqueue.Queue
	Pipeline   processor
	Registry   *hostregistry.Registry
	Tries      int
	WaitRetry  time.Duration
	RandomWait bool
	Logger     *logx.Logger
	// SetStatus feeds a job's terminal error into the process exit-status
	// computation (spec.md §8's "numeric minimum of all non-zero statuses
	// raised"). Left nil, job errors never affect the exit code.
	SetStatus func(int)
}

func New(opts Options) *Pool {
	if opts.Logger == nil {
		opts.Logger = logx.Default
	}
	if opts.Tries <= 0 {
		opts.Tries = 1
	}
	if opts.SetStatus == nil {
		opts.SetStatus = func(int) {}
	}
	return &Pool{
		size:       opts.Size,
		queue:      opts.Queue,
		pipeline:   opts.Pipeline,
		registry:   opts.Registry,
		tries:      opts.Tries,
		waitRetry:  opts.WaitRetry,
		randomWait: opts.RandomWait,
		logger:     opts.Logger,
		setStatus:  opts.SetStatus,
	}
}

// Start launches the worker goroutines. Callers wait for completion
// with Wait.
func (p *Pool) Start() {
	for i := 0; i < p.size; i++ {
		p.wg.Add(1)
		go p.run(i)
	}
}

// Wait blocks until every worker has exited (spec.md §4.5 step 1: "if
// none and the input driver is closed and no work is in flight, exit").
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Terminate sets the flag workers check between jobs, per spec.md §5's
// SIGTERM handling: workers finish their current job, then exit without
// picking up new work.
func (p *Pool) Terminate() {
	p.terminate.Store(true)
}

func (p *Pool) run(workerID int) {
	defer p.wg.Done()

	for {
		if p.terminate.Load() {
			return
		}

		result := p.queue.Dequeue(time.Now)
		if result.Empty {
			return
		}
		if result.Job == nil {
			if !result.WaitUntil.IsZero() {
				time.Sleep(time.Until(result.WaitUntil))
			}
			continue
		}

		job := result.Job
		job.Attempts++
		outcome := p.pipeline.Process(job)

		switch {
		case outcome.Requeue:
			if job.Attempts >= p.tries {
				p.queue.Complete(job)
				p.logger.Warn("giving up on %s after %d attempts: %v", job.URL, job.Attempts, outcome.Err)
				p.setStatus(errtax.ExitCodeFor(outcome.Err))
				continue
			}
			p.sleepBeforeRetry()
			p.queue.Requeue(job)
		default:
			if outcome.Err != nil {
				p.logger.Verbose("%s: %v", job.URL, outcome.Err)
				p.setStatus(errtax.ExitCodeFor(outcome.Err))
			}
			p.queue.Complete(job)
		}
	}
}

func (p *Pool) sleepBeforeRetry() {
	if p.waitRetry <= 0 {
		return
	}
	wait := p.waitRetry
	if p.randomWait {
		wait = time.Duration(float64(wait) * (0.5 + randFraction()))
	}
	time.Sleep(wait)
}
