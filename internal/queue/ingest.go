// Package queue decouples asynchronous event capture from consumption
// behind a bounded FIFO buffer with an explicit drop-oldest overflow
// policy.
package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/user/gopherfeed/internal/types"
)

// DefaultCapacity bounds the buffer when no capacity is given.
const DefaultCapacity = 1000

// ErrClosed is returned by Take once the ingestor is closed and drained.
var ErrClosed = errors.New("queue closed")

// Ingestor is a bounded FIFO buffer between a push-delivery capture
// callback and a pull-based consumer. Offer never blocks the producer:
// when the buffer is full the oldest unread entry is dropped to make
// room. That bounds memory at the cost of delivery loss under
// sustained overload; drops are counted and logged, never silent.
type Ingestor struct {
	capacity int
	ch       chan *types.QueueEntry

	mu     sync.RWMutex
	closed bool

	accepted atomic.Int64
	dropped  atomic.Int64
}

// NewIngestor creates an Ingestor with the given capacity (<=0 uses
// DefaultCapacity).
func NewIngestor(capacity int) *Ingestor {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ingestor{
		capacity: capacity,
		ch:       make(chan *types.QueueEntry, capacity),
	}
}

// Offer enqueues an entry without blocking. Returns false if the
// ingestor is closed. On a full buffer the oldest unread entry is
// discarded and the new one accepted.
func (q *Ingestor) Offer(entry *types.QueueEntry) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}
	for {
		select {
		case q.ch <- entry:
			q.accepted.Add(1)
			return true
		default:
		}
		select {
		case old := <-q.ch:
			q.dropped.Add(1)
			slog.Warn("queue full, dropped oldest entry",
				"entry_id", string(old.ID), "dropped_total", q.dropped.Load())
		default:
		}
	}
}

// Take blocks until an entry is available, the context is cancelled,
// or the ingestor is closed and drained. Each entry is returned to
// exactly one caller; ownership transfers on return.
func (q *Ingestor) Take(ctx context.Context) (*types.QueueEntry, error) {
	select {
	case entry, ok := <-q.ch:
		if !ok {
			return nil, ErrClosed
		}
		return entry, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Next blocks until an entry passing the filter is available.
// Non-matching entries are consumed and discarded.
func (q *Ingestor) Next(ctx context.Context, f *Filter) (*types.QueueEntry, error) {
	for {
		entry, err := q.Take(ctx)
		if err != nil {
			return nil, err
		}
		if f == nil || f.Match(entry) {
			return entry, nil
		}
	}
}

// Collect takes up to max entries passing the filter, returning early
// on cancellation or close with whatever was gathered. The cap counts
// qualifying entries only; filtered-out entries do not consume it.
func (q *Ingestor) Collect(ctx context.Context, f *Filter, max int) ([]*types.QueueEntry, error) {
	var out []*types.QueueEntry
	for max <= 0 || len(out) < max {
		entry, err := q.Next(ctx, f)
		if err != nil {
			return out, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// Close stops accepting entries and, once the buffer drains, unblocks
// pending Take calls with ErrClosed.
func (q *Ingestor) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ch)
}

// Len returns the number of buffered entries.
func (q *Ingestor) Len() int { return len(q.ch) }

// Accepted returns the total number of entries accepted since creation.
func (q *Ingestor) Accepted() int64 { return q.accepted.Load() }

// Dropped returns the total number of entries discarded by the
// overflow policy.
func (q *Ingestor) Dropped() int64 { return q.dropped.Load() }
