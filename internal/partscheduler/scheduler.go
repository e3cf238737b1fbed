// Package partscheduler implements the Part Scheduler: when a response
// is a Metalink or large enough to chunk, it splits the file into PART
// jobs assigned round-robin over mirrors, tracks completion, and
// verifies hashes once every part is done, per spec.md §4.6.
package partscheduler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/xml"
	"io"
	"strings"
	"sync"

	"go-wget/internal/errtax"
	"go-wget/internal/jobqueue"
	"go-wget/internal/saver"
	"go-wget/internal/urlcanon"
)

func parseMetalinkURL(raw string) (urlcanon.URL, error) {
	return urlcanon.Parse(strings.TrimSpace(raw))
}

// DefaultChunkSize is used when no --chunk-size was configured but
// chunking is otherwise triggered.
const DefaultChunkSize = 4 * 1024 * 1024

// Scheduler tracks in-progress Metalink/chunked downloads by
// destination path, so concurrent PART-job completions can tell when a
// file is whole.
type Scheduler struct {
	mu       sync.Mutex
	tracking map[string]*tracker
}

type tracker struct {
	metalink    *jobqueue.Metalink
	destPath    string
	remaining   int
	mirrorIndex map[int]int // part ID -> next mirror index to try
}

func New() *Scheduler {
	return &Scheduler{tracking: make(map[string]*tracker)}
}

// SyntheticMetalink builds a single-mirror, fixed-size-piece Metalink
// for a plain chunked download (spec.md §4.6 "a synthetic Metalink is
// built with the single origin URL as the sole mirror").
func SyntheticMetalink(job *jobqueue.Job, totalSize, chunkSize int64) *jobqueue.Metalink {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	var pieces []jobqueue.Piece
	for pos := int64(0); pos < totalSize; pos += chunkSize {
		length := chunkSize
		if pos+length > totalSize {
			length = totalSize - pos
		}
		pieces = append(pieces, jobqueue.Piece{Position: pos, Length: length})
	}
	return &jobqueue.Metalink{
		TotalSize: totalSize,
		Filename:  job.Filename(),
		Pieces:    pieces,
		Mirrors:   []jobqueue.Mirror{{Priority: 0, URL: job.URL}},
	}
}

// Dispatch enqueues one PART job per not-yet-done piece of ml, onto
// queue, as described by spec.md §4.6.
func (s *Scheduler) Dispatch(queue *jobqueue.Queue, job *jobqueue.Job, ml *jobqueue.Metalink, destPath string) {
	s.mu.Lock()
	s.tracking[destPath] = &tracker{
		metalink:    ml,
		destPath:    destPath,
		remaining:   len(ml.Pieces),
		mirrorIndex: make(map[int]int),
	}
	s.mu.Unlock()

	for i, piece := range ml.Pieces {
		mirror := ml.Mirrors[i%len(ml.Mirrors)]
		partJob := &jobqueue.Job{
			URL:     mirror.URL,
			HostKey: mirror.URL.HostPort(),
			Parts: []jobqueue.Part{{
				ID:         i,
				BytePos:    piece.Position,
				ByteLength: piece.Length,
				InUse:      true,
			}},
			Metalink:      ml,
			LocalFilename: destPath,
		}
		queue.Enqueue(partJob)
	}
}

// MirrorFor returns the mirror a worker should use for attempt number
// attempt of partID, cycling through mirrors round-robin starting at
// (worker-id + part-id) mod mirror-count, per spec.md §4.6. With
// worker-id 0, attempt 0 is the mirror Dispatch assigned the part and
// each later attempt moves to the next one.
func MirrorFor(ml *jobqueue.Metalink, workerID, partID, attempt int) jobqueue.Mirror {
	idx := (workerID + partID + attempt) % len(ml.Mirrors)
	return ml.Mirrors[idx]
}

// CompletePart records piece partID of destPath as done, writes its
// bytes at the correct offset, and runs hash verification once every
// piece is done. It returns whether the whole file is now complete and
// any verification error.
func (s *Scheduler) CompletePart(destPath string, partID int, data []byte, offset int64) (complete bool, err error) {
	if err := saver.WriteAt(destPath, offset, data); err != nil {
		return false, errtax.Wrap(errtax.KindIO, err)
	}

	s.mu.Lock()
	t, ok := s.tracking[destPath]
	if !ok {
		s.mu.Unlock()
		return false, nil
	}
	t.remaining--
	done := t.remaining <= 0
	s.mu.Unlock()

	if !done {
		return false, nil
	}

	if err := s.verify(t); err != nil {
		return true, err
	}
	s.mu.Lock()
	delete(s.tracking, destPath)
	s.mu.Unlock()
	return true, nil
}

// verify checks the complete file's hash against every piece with a
// known hash, per spec.md §4.6.
func (s *Scheduler) verify(t *tracker) error {
	hasHashes := false
	for _, p := range t.metalink.Pieces {
		if p.Hash != "" {
			hasHashes = true
			break
		}
	}
	if !hasHashes {
		return nil
	}

	f, err := saver.OpenForRead(t.destPath)
	if err != nil {
		return errtax.Wrap(errtax.KindIO, err)
	}
	defer f.Close()

	for _, p := range t.metalink.Pieces {
		if p.Hash == "" {
			continue
		}
		buf := make([]byte, p.Length)
		if _, err := io.ReadFull(io.NewSectionReader(f.(io.ReaderAt), p.Position, p.Length), buf); err != nil {
			return errtax.Wrap(errtax.KindIO, err)
		}
		sum := sha256.Sum256(buf)
		if hex.EncodeToString(sum[:]) != p.Hash {
			return errtax.New(errtax.KindIntegrity, "hash mismatch at piece offset %d", p.Position)
		}
	}
	return nil
}

// metalinkPieceHash is one <hash piece="N">digest</hash> child of a
// <pieces> element, per RFC 5854 §4.1.4.2.
type metalinkPieceHash struct {
	Piece int    `xml:"piece,attr"`
	Value string `xml:",chardata"`
}

// metalinkPieces is the <pieces length="..." type="..."> element
// describing the file's real split points, one hash per piece in
// ascending piece order.
type metalinkPieces struct {
	Length int64               `xml:"length,attr"`
	Type   string              `xml:"type,attr"`
	Hashes []metalinkPieceHash `xml:"hash"`
}

// metalinkXML is the subset of the Metalink 3/4 schema the coordinator
// parses: file size, a pieces element (preferred) or file-level hash,
// and mirror URLs with priority.
type metalinkXML struct {
	XMLName xml.Name `xml:"metalink"`
	Files   []struct {
		Name string `xml:"name,attr"`
		Size int64  `xml:"size"`
		URLs []struct {
			Priority int    `xml:"priority,attr"`
			Location string `xml:"location,attr"`
			Value    string `xml:",chardata"`
		} `xml:"url"`
		Hash []struct {
			Type  string `xml:"type,attr"`
			Value string `xml:",chardata"`
		} `xml:"hash"`
		Pieces *metalinkPieces `xml:"pieces"`
	} `xml:"file"`
}

// ParseMetalink parses a Metalink3/4 XML document into a jobqueue.Metalink,
// sorting mirrors by ascending priority per spec.md §3.
func ParseMetalink(r io.Reader) (*jobqueue.Metalink, error) {
	var doc metalinkXML
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errtax.Wrap(errtax.KindInput, err)
	}
	if len(doc.Files) == 0 {
		return nil, errtax.New(errtax.KindInput, "metalink document has no file entries")
	}

	file := doc.Files[0]
	ml := &jobqueue.Metalink{TotalSize: file.Size, Filename: file.Name}

	for _, u := range file.URLs {
		parsed, err := parseMetalinkURL(u.Value)
		if err != nil {
			continue
		}
		ml.Mirrors = append(ml.Mirrors, jobqueue.Mirror{Priority: u.Priority, URL: parsed, Location: u.Location})
	}
	sortMirrorsByPriority(ml.Mirrors)

	switch {
	case file.Pieces != nil && file.Pieces.Length > 0 && len(file.Pieces.Hashes) > 0:
		ml.Pieces = piecesFromElement(file.Pieces, file.Size)
	default:
		// No <pieces> element: fall back to a single whole-file piece
		// carrying the file-level hash, if any.
		for _, h := range file.Hash {
			if h.Type == "sha-256" {
				ml.Pieces = append(ml.Pieces, jobqueue.Piece{Position: 0, Length: file.Size, Hash: h.Value})
			}
		}
	}

	return ml, nil
}

// piecesFromElement turns a <pieces> element's ordered hash children into
// the ordered list of Pieces spec.md §3 describes, with each piece's
// Position computed as a running total rather than trusted from the
// document. A piece's own Hash is populated only when the pieces
// element's hash type is sha-256, matching the verifier's algorithm;
// other algorithms still split correctly but verify unauthenticated.
func piecesFromElement(mp *metalinkPieces, totalSize int64) []jobqueue.Piece {
	pieces := make([]jobqueue.Piece, len(mp.Hashes))
	pos := int64(0)
	for i, h := range mp.Hashes {
		length := mp.Length
		if pos+length > totalSize {
			length = totalSize - pos
		}
		piece := jobqueue.Piece{Position: pos, Length: length}
		if mp.Type == "sha-256" {
			piece.Hash = h.Value
		}
		pieces[i] = piece
		pos += mp.Length
	}
	return pieces
}

func sortMirrorsByPriority(mirrors []jobqueue.Mirror) {
	for i := 1; i < len(mirrors); i++ {
		for j := i; j > 0 && mirrors[j].Priority < mirrors[j-1].Priority; j-- {
			mirrors[j], mirrors[j-1] = mirrors[j-1], mirrors[j]
		}
	}
}
