package batch

import (
	"sync"
	"time"

	"batchctl/internal/proc"
)

// Entry is one admitted job: the descriptor and its started process handle.
type Entry struct {
	JobID      string
	Handle     proc.Handle
	admittedAt time.Time
}

// Pool is the ordered set of in-flight entries. Insertion order is
// preserved so reap scans and draining are deterministic.
//
// The controller is the only mutator; the mutex keeps the pool safe for
// callers that inspect Len from another goroutine (tests, metrics).
type Pool struct {
	mu      sync.Mutex
	entries []*Entry
}

// NewPool creates an empty pool.
func NewPool() *Pool {
	return &Pool{}
}

// Len returns the number of in-flight entries.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Add appends an entry.
func (p *Pool) Add(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, e)
}

// Entries returns a snapshot of the entries in insertion order.
func (p *Pool) Entries() []*Entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	snapshot := make([]*Entry, len(p.entries))
	copy(snapshot, p.entries)
	return snapshot
}

// Remove evicts an entry by identity, preserving the order of the rest.
// Removing an entry that is not present is a no-op.
func (p *Pool) Remove(e *Entry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.entries {
		if cur == e {
			p.entries = append(p.entries[:i], p.entries[i+1:]...)
			return
		}
	}
}
