// Package controller implements the Main Controller (spec.md §4.8): it
// wires every other component together, starts the worker pool and
// input driver, and owns the run's exit status and shutdown decision.
package controller

import (
	"context"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go-wget/internal/blacklist"
	"go-wget/internal/dnscache"
	"go-wget/internal/errtax"
	"go-wget/internal/fetch"
	"go-wget/internal/hostregistry"
	"go-wget/internal/inputdriver"
	"go-wget/internal/jobqueue"
	"go-wget/internal/logx"
	"go-wget/internal/partscheduler"
	"go-wget/internal/saver"
	"go-wget/internal/statssink"
	"go-wget/internal/wgetconfig"
	"go-wget/internal/worker"
)

// Controller owns every long-lived component for one run and the
// atomics spec.md §5 calls out: exit status and byte quota.
type Controller struct {
	cfg wgetconfig.Config

	blacklist *blacklist.Blacklist
	registry  *hostregistry.Registry
	queue     *jobqueue.Queue
	resolver  *dnscache.Resolver
	client    *fetch.Client
	saver     *saver.Saver
	parts     *partscheduler.Scheduler
	driver    *inputdriver.Driver
	logger    *logx.Logger

	pipeline *fetch.Pipeline
	pool     *worker.Pool

	initErr bool

	status      atomic.Int32
	bytesLoaded atomic.Int64
}

// New builds the components that don't depend on the seed-host set
// (everything but the Fetch Pipeline and Worker Pool, which need the
// recursion-relevant host set computed from the seeds at Run time).
func New(cfg wgetconfig.Config, logger *logx.Logger) *Controller {
	if logger == nil {
		logger = logx.Default
	}

	registry := hostregistry.New(0, 0, 0)
	bl := blacklist.New()
	queue := jobqueue.New(registry)

	var primary dnscache.Backend = dnscache.NewSystemResolver()
	var fallback dnscache.Backend
	if cfg.DoH {
		primary = dnscache.NewDoHResolver()
		fallback = dnscache.NewSystemResolver()
	}
	resolver := dnscache.New(primary, fallback, 5*time.Minute)

	c := &Controller{
		cfg:       cfg,
		blacklist: bl,
		registry:  registry,
		queue:     queue,
		resolver:  resolver,
		logger:    logger,
		parts:     partscheduler.New(),
		driver:    inputdriver.New(bl, queue),
	}

	client, err := fetch.NewClient(fetch.ClientOptions{
		ConnectTimeout:   cfg.ConnectTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		EnableHTTP2:      true,
		Resolver:         resolver,
		FamilyPreference: cfg.FamilyPreference(),
		Stats:            c.quotaTrackingSink(),
	})
	if err != nil {
		logger.Error("failed to build HTTP client: %v", err)
		c.setStatus(errtax.ExitNetwork)
		c.initErr = true
		return c
	}
	c.client = client
	c.saver = saver.New(cfg.Clobber, cfg.OutputDir)
	return c
}

// quotaTrackingSink wraps the controller's byte-quota counter around a
// no-op stats sink, so every response's size is attributed to the quota
// regardless of whether a real StatsSink is ever plugged in.
func (c *Controller) quotaTrackingSink() statssink.Sink {
	return &quotaSink{controller: c}
}

type quotaSink struct {
	controller *Controller
}

func (q *quotaSink) DNSResolved(string, time.Duration)  {}
func (q *quotaSink) TCPConnected(string, time.Duration) {}
func (q *quotaSink) TLSDone(string, time.Duration)      {}
func (q *quotaSink) ResponseReceived(url string, status int, bytes int64) {
	if bytes > 0 {
		q.controller.bytesLoaded.Add(bytes)
	}
}

// setStatus implements spec.md §5's atomic exit-status rule:
// set-status(new) = new iff new < current. A zero code is ignored: 0
// means success, so it never replaces an error already recorded.
func (c *Controller) setStatus(newCode int) {
	if newCode == errtax.ExitSuccess {
		return
	}
	for {
		current := c.status.Load()
		if current != 0 && int(current) <= newCode {
			return
		}
		if c.status.CompareAndSwap(current, int32(newCode)) {
			return
		}
	}
}

// ExitStatus returns the run's final exit code, per the taxonomy in
// spec.md §6.
func (c *Controller) ExitStatus() int {
	return int(c.status.Load())
}

// Run seeds the queue, builds the Fetch Pipeline and Worker Pool now
// that the seed-host set is known, starts them, and blocks until the
// shutdown condition from spec.md §4.8 is met: the queue and input are
// both exhausted, the byte quota is reached, or a signal arrives.
func (c *Controller) Run(ctx context.Context) int {
	if c.initErr {
		return c.ExitStatus()
	}

	seedHosts, err := c.driver.EnqueueSeeds(c.cfg.Seeds)
	if err != nil {
		c.logger.Error("seed enqueue failed: %v", err)
		c.setStatus(errtax.ExitParseInit)
	}

	c.pipeline = fetch.NewPipeline(fetch.PipelineOptions{
		Client:        c.client,
		Registry:      c.registry,
		Blacklist:     c.blacklist,
		Queue:         c.queue,
		Saver:         c.saver,
		PartScheduler: c.parts,
		Stats:         c.quotaTrackingSink(),
		Recursion:     c.cfg.RecursionOptions(seedHosts),
		UserAgent:     c.cfg.UserAgent,
		MaxRedirects:  c.cfg.MaxRedirect,
		Tries:         c.cfg.Tries,
		User:          c.cfg.User,
		Password:      c.cfg.Password,
		ChunkSize:     c.cfg.ChunkSize,
		ForceMetalink: c.cfg.Metalink,
		Spider:        c.cfg.Spider,
		HTTPSEnforce:  fetch.HTTPSEnforce(c.cfg.HTTPSEnforce),
	})

	c.pool = worker.New(worker.Options{
		Size:       c.cfg.Threads,
		Queue:      c.queue,
		Pipeline:   c.pipeline,
		Registry:   c.registry,
		Tries:      c.cfg.Tries,
		WaitRetry:  c.cfg.WaitRetry,
		RandomWait: c.cfg.RandomWait,
		Logger:     c.logger,
		SetStatus:  c.setStatus,
	})

	stdinDone := c.startInput(seedHosts)

	c.pool.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	poolDone := make(chan struct{})
	go func() {
		c.pool.Wait()
		close(poolDone)
	}()

	quotaTicker := time.NewTicker(200 * time.Millisecond)
	defer quotaTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.pool.Terminate()
			c.setStatus(errtax.ExitGeneric)
			<-poolDone
			return c.ExitStatus()

		case sig := <-sigCh:
			switch sig {
			case syscall.SIGTERM:
				c.logger.Info("SIGTERM received, draining in-flight work")
				c.queue.CloseInput()
				c.pool.Terminate()
				<-poolDone
				return c.ExitStatus()
			case syscall.SIGINT:
				c.logger.Info("SIGINT received, aborting")
				c.setStatus(errtax.ExitGeneric)
				return c.ExitStatus()
			}

		case <-quotaTicker.C:
			if c.cfg.Quota > 0 && c.bytesLoaded.Load() >= c.cfg.Quota {
				c.logger.Info("quota of %d bytes reached, draining", c.cfg.Quota)
				c.setStatus(errtax.KindQuotaExceeded.ExitCode())
				c.queue.CloseInput()
				c.pool.Terminate()
				<-poolDone
				return c.ExitStatus()
			}

		case err, ok := <-stdinDone:
			if !ok {
				stdinDone = nil
				continue
			}
			if err != nil {
				c.logger.Error("stdin input failed: %v", err)
				c.setStatus(errtax.ExitIO)
			}

		case <-poolDone:
			return c.ExitStatus()
		}
	}
}

// startInput dispatches to file/stdin input per cfg.InputFile, and
// closes the input driver immediately when there is nothing left to
// stream (spec.md §4.7).
func (c *Controller) startInput(seedHosts inputdriver.SeedHosts) <-chan error {
	switch c.cfg.InputFile {
	case "":
		c.queue.CloseInput()
		return nil
	case "-":
		return c.driver.EnqueueStdin(seedHosts)
	default:
		err := c.driver.EnqueueFile(c.cfg.InputFile, seedHosts)
		if err != nil {
			c.logger.Error("input file %s failed: %v", c.cfg.InputFile, err)
			c.setStatus(errtax.ExitParseInit)
		}
		c.queue.CloseInput()
		return nil
	}
}
