package jobqueue

import (
	"strings"

	"go-wget/internal/urlcanon"
)

// Job is a single unit of work referencing one URL plus the context the
// Fetch Pipeline and Part Scheduler need to process it, per spec.md §3.
type Job struct {
	URL           urlcanon.URL
	Referer       *urlcanon.URL
	RedirectDepth int
	Recursion     int
	LocalFilename string
	HostKey       string

	Parts         []Part
	Metalink      *Metalink
	MirrorAttempt int // incremented each time a PART job's mirror fails, for round-robin failover

	IsSitemap   bool
	IsRobots    bool
	IsRedirect  bool
	Deferred    bool
	DigestTried bool // set once a 401 has been retried with a Digest challenge, per spec.md §4.5 rule 5

	Attempts     int    // total dispatch attempts across every worker that has handled this job
	dispatchHost string // host key the queue marked busy for this dispatch; may differ from HostKey after a mirror rotation
}

// Done reports whether every part of a parted job is done. It always
// returns false for a job with no parts.
func (j *Job) Done() bool {
	if len(j.Parts) == 0 {
		return false
	}
	for _, p := range j.Parts {
		if !p.Done {
			return false
		}
	}
	return true
}

// Filename returns the on-disk name the saver should use, honoring an
// explicit override (e.g. from the Part Scheduler's Metalink filename)
// and otherwise deriving one from the URL path, per spec.md §4.5's
// "file policy" summary.
func (j *Job) Filename() string {
	if j.LocalFilename != "" {
		return j.LocalFilename
	}
	name := j.URL.Host + j.URL.Path
	if strings.HasSuffix(name, "/") {
		name += "index.html"
	}
	return name
}

// Part is a byte range of a larger file handled as its own job, per
// spec.md §3. A file's parts cover [0, size) without overlap.
type Part struct {
	ID         int
	BytePos    int64
	ByteLength int64
	Done       bool
	InUse      bool
}

// Mirror is one of several interchangeable origin URLs for the same
// file, with a priority; lower priority values are preferred.
type Mirror struct {
	Priority int
	URL      urlcanon.URL
	Location string
}

// Piece is one ordered segment of a Metalink's described file.
type Piece struct {
	Position int64
	Length   int64
	Hash     string // empty if no hash is known for this piece
}

// Metalink describes a multi-mirror, multi-piece file, per spec.md §3.
// Mirrors are sorted by ascending priority at parse time.
type Metalink struct {
	TotalSize int64
	Filename  string
	Pieces    []Piece
	Mirrors   []Mirror
}
