package store

import (
	"context"
	"sync"
	"time"
)

// MemoryJournal keeps the most recent records in a fixed-size ring.
// Append is O(1); a full ring overwrites its oldest record.
type MemoryJournal struct {
	ring       []AttemptRecord // allocated on first Append
	head       int             // index of the oldest record
	count      int
	mu         sync.RWMutex
	ttl        time.Duration
	maxEntries int
	stopChan   chan struct{}
	stopped    bool
	now        func() time.Time
}

// NewMemoryJournal creates a journal that drops records older than ttl and
// keeps at most maxEntries. Zero values select the defaults.
func NewMemoryJournal(ttl time.Duration, maxEntries int) *MemoryJournal {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	j := &MemoryJournal{
		ttl:        ttl,
		maxEntries: maxEntries,
		stopChan:   make(chan struct{}),
		now:        time.Now,
	}

	go j.cleanup(cleanupInterval)

	return j
}

// at returns the i-th record counting from the oldest.
func (j *MemoryJournal) at(i int) *AttemptRecord {
	return &j.ring[(j.head+i)%len(j.ring)]
}

// Append stores rec, overwriting the oldest record when full.
func (j *MemoryJournal) Append(_ context.Context, rec AttemptRecord) error {
	prepare(&rec, j.now())

	j.mu.Lock()
	defer j.mu.Unlock()

	if j.stopped {
		return nil
	}
	if j.ring == nil {
		j.ring = make([]AttemptRecord, j.maxEntries)
	}
	if j.count == len(j.ring) {
		j.ring[j.head] = rec
		j.head = (j.head + 1) % len(j.ring)
		return nil
	}
	*j.at(j.count) = rec
	j.count++
	return nil
}

// Recent returns unexpired matching records, newest first.
func (j *MemoryJournal) Recent(_ context.Context, q Query) ([]AttemptRecord, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	cutoff := j.now().Add(-j.ttl)
	limit := q.limit()
	out := make([]AttemptRecord, 0, min(limit, j.count))
	for i := j.count - 1; i >= 0 && len(out) < limit; i-- {
		r := j.at(i)
		if r.Timestamp.Before(cutoff) || !q.matches(r) {
			continue
		}
		out = append(out, *r)
	}
	return out, nil
}

// Len returns the number of stored records, expired ones included.
func (j *MemoryJournal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.count
}

// Prune drops expired records and compacts the ring so the oldest
// survivor sits at index 0. It runs from the cleanup loop, off the
// attempt path.
func (j *MemoryJournal) Prune() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.stopped || j.count == 0 {
		return
	}
	cutoff := j.now().Add(-j.ttl)
	keep := make([]AttemptRecord, len(j.ring))
	n := 0
	for i := 0; i < j.count; i++ {
		if r := j.at(i); !r.Timestamp.Before(cutoff) {
			keep[n] = *r
			n++
		}
	}
	j.ring, j.head, j.count = keep, 0, n
}

// Close stops the cleanup goroutine and clears data.
func (j *MemoryJournal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if !j.stopped {
		j.stopped = true
		close(j.stopChan)
		j.ring, j.head, j.count = nil, 0, 0
	}
	return nil
}

// cleanup periodically removes expired entries.
func (j *MemoryJournal) cleanup(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-j.stopChan:
			return
		case <-ticker.C:
			j.Prune()
		}
	}
}

// Ensure MemoryJournal implements Journal
var _ Journal = (*MemoryJournal)(nil)
