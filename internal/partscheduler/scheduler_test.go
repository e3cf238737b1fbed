package partscheduler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-wget/internal/jobqueue"
	"go-wget/internal/urlcanon"
)

func mustParse(t *testing.T, raw string) urlcanon.URL {
	t.Helper()
	u, err := urlcanon.Parse(raw)
	require.NoError(t, err)
	return u
}

func TestSyntheticMetalink_CoversWholeFileWithoutOverlap(t *testing.T) {
	job := &jobqueue.Job{URL: mustParse(t, "http://example.com/file.bin")}
	ml := SyntheticMetalink(job, 10*1024*1024, 3*1024*1024)

	var covered int64
	for i, p := range ml.Pieces {
		assert.Equal(t, covered, p.Position, "piece %d should start where the previous one ended", i)
		covered += p.Length
	}
	assert.Equal(t, int64(10*1024*1024), covered)
	assert.Len(t, ml.Mirrors, 1)
}

func TestCompletePart_WritesDisjointOffsets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whole.bin")

	s := New()
	ml := &jobqueue.Metalink{TotalSize: 8, Pieces: []jobqueue.Piece{
		{Position: 0, Length: 4}, {Position: 4, Length: 4},
	}}
	s.mu.Lock()
	s.tracking[path] = &tracker{metalink: ml, destPath: path, remaining: 2}
	s.mu.Unlock()

	complete, err := s.CompletePart(path, 0, []byte("AAAA"), 0)
	require.NoError(t, err)
	assert.False(t, complete)

	complete, err = s.CompletePart(path, 1, []byte("BBBB"), 4)
	require.NoError(t, err)
	assert.True(t, complete)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "AAAABBBB", string(data))
}

func TestCompletePart_HashMismatchReportsIntegrityError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "whole.bin")

	s := New()
	ml := &jobqueue.Metalink{
		TotalSize: 4,
		Pieces:    []jobqueue.Piece{{Position: 0, Length: 4, Hash: "0000000000000000000000000000000000000000000000000000000000000000"}},
	}
	s.mu.Lock()
	s.tracking[path] = &tracker{metalink: ml, destPath: path, remaining: 1}
	s.mu.Unlock()

	complete, err := s.CompletePart(path, 0, []byte("data"), 0)
	assert.True(t, complete)
	assert.Error(t, err)
}

func TestMirrorFor_RoundRobinsByWorkerAndAttempt(t *testing.T) {
	ml := &jobqueue.Metalink{Mirrors: []jobqueue.Mirror{
		{Priority: 0, URL: mustParse(t, "http://m1.example.com/f")},
		{Priority: 1, URL: mustParse(t, "http://m2.example.com/f")},
	}}

	m0 := MirrorFor(ml, 0, 0, 0)
	m1 := MirrorFor(ml, 0, 0, 1)
	assert.NotEqual(t, m0.URL, m1.URL, "a retry should move to the next mirror")
}

func TestParseMetalink_SortsMirrorsByPriority(t *testing.T) {
	doc := `<?xml version="1.0"?>
<metalink>
  <file name="example.iso">
    <size>1024</size>
    <url priority="2" location="us">http://m2.example.com/example.iso</url>
    <url priority="1" location="eu">http://m1.example.com/example.iso</url>
  </file>
</metalink>`

	ml, err := ParseMetalink(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, ml.Mirrors, 2)
	assert.Equal(t, 1, ml.Mirrors[0].Priority)
	assert.Equal(t, 2, ml.Mirrors[1].Priority)
}

func TestParseMetalink_DecodesPiecesElementIntoMultipleParts(t *testing.T) {
	doc := `<?xml version="1.0"?>
<metalink>
  <file name="example.iso">
    <size>10</size>
    <url priority="1">http://m1.example.com/example.iso</url>
    <url priority="2">http://m2.example.com/example.iso</url>
    <pieces length="4" type="sha-256">
      <hash piece="0">aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa</hash>
      <hash piece="1">bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb</hash>
      <hash piece="2">cccccccccccccccccccccccccccccccccccccccccccccccccccccccccccccc</hash>
    </pieces>
  </file>
</metalink>`

	ml, err := ParseMetalink(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, ml.Pieces, 3, "a genuine <pieces> element should yield one piece per hash, not a single whole-file piece")

	assert.Equal(t, int64(0), ml.Pieces[0].Position)
	assert.Equal(t, int64(4), ml.Pieces[0].Length)
	assert.Equal(t, int64(4), ml.Pieces[1].Position)
	assert.Equal(t, int64(4), ml.Pieces[1].Length)
	assert.Equal(t, int64(8), ml.Pieces[2].Position)
	assert.Equal(t, int64(2), ml.Pieces[2].Length, "the last piece is truncated to the remaining file size")

	for _, p := range ml.Pieces {
		assert.NotEmpty(t, p.Hash)
	}
}

func TestParseMetalink_PiecesElementTakesPrecedenceOverFileHash(t *testing.T) {
	doc := `<?xml version="1.0"?>
<metalink>
  <file name="example.iso">
    <size>8</size>
    <url priority="1">http://m1.example.com/example.iso</url>
    <hash type="sha-256">ffffffffffffffffffffffffffffffffffffffffffffffffffffffffffffff</hash>
    <pieces length="4" type="sha-256">
      <hash piece="0">aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa</hash>
      <hash piece="1">bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb</hash>
    </pieces>
  </file>
</metalink>`

	ml, err := ParseMetalink(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, ml.Pieces, 2, "the pieces element should be used instead of manufacturing a single whole-file piece from the file-level hash")
}
