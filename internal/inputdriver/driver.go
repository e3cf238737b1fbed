// Package inputdriver implements the Input Driver: reads seed URLs from
// the -u/--url flag values, a file, or stdin, canonicalizing and enqueueing each
// one, per spec.md §4.7. Streaming stdin runs on its own goroutine;
// closing it signals the Main Controller via Queue.CloseInput.
package inputdriver

import (
	"bufio"
	"io"
	"os"
	"strings"

	"go-wget/internal/blacklist"
	"go-wget/internal/errtax"
	"go-wget/internal/jobqueue"
	"go-wget/internal/urlcanon"
)

// Driver reads seeds from any combination of -u/--url values, an input
// file, and stdin, pushing each through canonicalization, the
// blacklist, and the job queue.
type Driver struct {
	blacklist *blacklist.Blacklist
	queue     *jobqueue.Queue
}

func New(bl *blacklist.Blacklist, queue *jobqueue.Queue) *Driver {
	return &Driver{blacklist: bl, queue: queue}
}

// SeedHosts is populated as seeds are enqueued, for the recursion rule
// "host ∈ seed-hosts" (spec.md §4.5(c)).
type SeedHosts map[string]struct{}

// EnqueueSeeds canonicalizes and enqueues each seed URL given with
// -u/--url, returning the set of seed hosts discovered. Positional
// command-line arguments are not read as seeds.
func (d *Driver) EnqueueSeeds(raws []string) (SeedHosts, error) {
	hosts := make(SeedHosts)
	for _, raw := range raws {
		u, err := urlcanon.Parse(raw)
		if err != nil {
			return hosts, err
		}
		d.enqueueSeed(u, hosts)
	}
	return hosts, nil
}

// EnqueueFile reads seed URLs one per line from an input file, per
// `--input-file`.
func (d *Driver) EnqueueFile(path string, hosts SeedHosts) error {
	f, err := os.Open(path)
	if err != nil {
		return errtax.Wrap(errtax.KindInput, err)
	}
	defer f.Close()
	return d.enqueueLines(f, hosts)
}

// EnqueueStdin starts a producer goroutine reading newline-delimited
// seed URLs from stdin until EOF, then calls CloseInput on the queue.
// This is the "dedicated producer thread" spec.md §4.7 requires for
// piped input.
func (d *Driver) EnqueueStdin(hosts SeedHosts) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		defer d.queue.CloseInput()
		errCh <- d.enqueueLines(os.Stdin, hosts)
	}()
	return errCh
}

func (d *Driver) enqueueLines(r io.Reader, hosts SeedHosts) error {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := urlcanon.Parse(line)
		if err != nil {
			continue // malformed lines are skipped, not fatal to the whole run
		}
		d.enqueueSeed(u, hosts)
	}
	if err := scanner.Err(); err != nil {
		return errtax.Wrap(errtax.KindIO, err)
	}
	return nil
}

func (d *Driver) enqueueSeed(u urlcanon.URL, hosts SeedHosts) {
	hosts[u.Host] = struct{}{}
	if d.blacklist.TryInsert(u) {
		d.queue.Enqueue(&jobqueue.Job{URL: u, HostKey: u.HostPort()})
	}
}
