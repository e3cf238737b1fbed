// Package blacklist implements the URL Blacklist: a protected set of
// canonical URLs that enforces at-most-once dispatch for the lifetime of
// the process. There is no removal operation.
package blacklist

import (
	"sync"

	"go-wget/internal/urlcanon"
)

// Blacklist is safe for concurrent use.
type Blacklist struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func New() *Blacklist {
	return &Blacklist{seen: make(map[string]struct{})}
}

// TryInsert inserts u's canonical form and reports whether it was new.
// Callers enqueue a job only when TryInsert returns true.
func (b *Blacklist) TryInsert(u urlcanon.URL) bool {
	key := u.String()
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.seen[key]; exists {
		return false
	}
	b.seen[key] = struct{}{}
	return true
}

// Contains reports whether u has already been inserted, without
// inserting it.
func (b *Blacklist) Contains(u urlcanon.URL) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, exists := b.seen[u.String()]
	return exists
}

// Len returns the number of distinct URLs recorded so far.
func (b *Blacklist) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.seen)
}
