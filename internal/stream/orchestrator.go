package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/user/gopherfeed/internal/jobs"
	"github.com/user/gopherfeed/internal/types"
)

const (
	defaultPageSize     = 100
	defaultPollInterval = 30 * time.Second
	defaultSaveEvery    = 50
)

// Phase markers persisted in the checkpoint.
const (
	PhaseBackfill = "backfill"
	PhaseGap      = "gap"
	PhaseLive     = "live"
)

// EmitFunc receives each item in stream order. Returning an error
// stops the orchestrator.
type EmitFunc func(*types.Item) error

// Orchestrator produces one continuous, resumable item stream for a
// single query by composing three phases: backfill (backward paging),
// gap detection (bounded catch-up on resume), and live (indefinite
// forward polling). It is the sole writer of its cursor; consumers
// observe snapshots via State.
type Orchestrator struct {
	poller        *jobs.Poller
	store         types.StateStore
	query         *types.Query
	saveEvery     int
	forceBackfill bool

	mu            sync.RWMutex
	state         *types.StreamState
	sinceLastSave int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithSaveEvery sets how many processed items may pass between
// checkpoint saves. The checkpoint is always saved once more when the
// orchestrator stops.
func WithSaveEvery(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.saveEvery = n
		}
	}
}

// WithForceBackfill re-runs the backfill phase even when a prior
// checkpoint exists.
func WithForceBackfill() Option {
	return func(o *Orchestrator) { o.forceBackfill = true }
}

// New validates the query and creates an Orchestrator. The store may
// be nil for one-shot searches that do not checkpoint.
func New(poller *jobs.Poller, store types.StateStore, query *types.Query, opts ...Option) (*Orchestrator, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	o := &Orchestrator{
		poller:    poller,
		store:     store,
		query:     query,
		saveEvery: defaultSaveEvery,
		state:     &types.StreamState{Key: query.StreamKey()},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// State returns a snapshot of the current checkpoint. Safe to call at
// any point after New, including while Run is loading or advancing it.
func (o *Orchestrator) State() types.StreamState {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return *o.state
}

// Run drives the stream until backfill exhausts (live disabled), the
// context is cancelled, or a permanent error occurs. Items are handed
// to emit in batch order with no reordering. The checkpoint is saved
// at a bounded cadence and once more on the way out.
func (o *Orchestrator) Run(ctx context.Context, emit EmitFunc) error {
	if err := o.loadState(ctx); err != nil {
		return err
	}
	defer o.saveState(context.WithoutCancel(ctx))

	resume := o.state.Cursor.MostRecentID != ""

	if !resume || o.forceBackfill {
		if err := o.runBackfill(ctx, emit); err != nil {
			return err
		}
	}

	if resume {
		if err := o.runGapDetection(ctx, emit); err != nil {
			return err
		}
	}

	if !o.query.EnableLive {
		return nil
	}
	return o.runLive(ctx, emit)
}

func (o *Orchestrator) loadState(ctx context.Context) error {
	key := o.query.StreamKey()
	fresh := &types.StreamState{Key: key}
	if o.query.SinceID != "" {
		fresh.Cursor.MostRecentID = o.query.SinceID
	}

	if o.store == nil {
		o.setState(fresh)
		return nil
	}
	st, err := o.store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("load stream state: %w", err)
	}
	if st == nil {
		st = fresh
	}
	o.setState(st)
	return nil
}

func (o *Orchestrator) setState(st *types.StreamState) {
	o.mu.Lock()
	o.state = st
	o.mu.Unlock()
}

func (o *Orchestrator) setPhase(phase string) {
	o.mu.Lock()
	o.state.Phase = phase
	o.mu.Unlock()
	slog.Debug("stream phase", "stream_key", string(o.state.Key), "phase", phase)
}

// observe applies the phase-agnostic cursor rule and hands the item to
// emit, checkpointing at the configured cadence.
func (o *Orchestrator) observe(ctx context.Context, item *types.Item, emit EmitFunc) error {
	o.mu.Lock()
	advanceCursor(&o.state.Cursor, item.ExternalID)
	o.state.TotalProcessed++
	o.state.UpdatedAt = time.Now()
	o.sinceLastSave++
	due := o.sinceLastSave >= o.saveEvery
	o.mu.Unlock()

	if err := emit(item); err != nil {
		return err
	}
	if due {
		o.saveState(ctx)
	}
	return nil
}

func (o *Orchestrator) saveState(ctx context.Context) {
	if o.store == nil {
		return
	}
	o.mu.Lock()
	snapshot := *o.state
	o.sinceLastSave = 0
	o.mu.Unlock()

	if err := o.store.Save(ctx, snapshot.Key, &snapshot); err != nil {
		slog.Error("save stream state failed", "stream_key", string(snapshot.Key), "error", err)
	}
}

// backfillAnchor computes the inclusive max-id bound for the next
// backward page. Once a boundary item has been seen, the anchor is its
// id minus one so the page does not return it again.
func (o *Orchestrator) backfillAnchor() (string, error) {
	o.mu.RLock()
	oldest := o.state.Cursor.OldestSeenID
	o.mu.RUnlock()

	if oldest != "" {
		return DecrementID(oldest)
	}
	return o.query.MaxID, nil
}

func (o *Orchestrator) pageSize() int {
	if o.query.PageSize > 0 {
		return o.query.PageSize
	}
	return defaultPageSize
}

func (o *Orchestrator) runBackfill(ctx context.Context, emit EmitFunc) error {
	o.setPhase(PhaseBackfill)

	pageSize := o.pageSize()
	remaining := o.query.MaxBackfillResults
	var cutoff time.Time
	if o.query.MaxBackfillAgeMs > 0 {
		cutoff = time.Now().Add(-time.Duration(o.query.MaxBackfillAgeMs) * time.Millisecond)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		anchor, err := o.backfillAnchor()
		if err != nil {
			return err
		}
		items, err := o.poller.Run(ctx, o.query, types.Page{MaxID: anchor, Limit: pageSize})
		if err != nil {
			return fmt.Errorf("backfill batch: %w", err)
		}

		for _, item := range items {
			if o.query.OldestAllowedID != "" {
				if cmp, err := CompareIDs(item.ExternalID, o.query.OldestAllowedID); err == nil && cmp < 0 {
					return nil
				}
			}
			if !cutoff.IsZero() && item.SourceTimestamp != nil && item.SourceTimestamp.Before(cutoff) {
				return nil
			}
			if err := o.observe(ctx, item, emit); err != nil {
				return err
			}
			if remaining > 0 {
				remaining--
				if remaining == 0 {
					return nil
				}
			}
		}

		// A short page means available history is exhausted.
		if len(items) < pageSize {
			return nil
		}
	}
}

// runGapDetection issues a single bounded query anchored just after
// the persisted frontier to catch content produced while the stream
// was down.
func (o *Orchestrator) runGapDetection(ctx context.Context, emit EmitFunc) error {
	o.setPhase(PhaseGap)

	o.mu.RLock()
	since := o.state.Cursor.MostRecentID
	o.mu.RUnlock()
	if since == "" {
		return nil
	}

	items, err := o.poller.Run(ctx, o.query, types.Page{SinceID: since, Limit: o.pageSize()})
	if err != nil {
		return fmt.Errorf("gap detection: %w", err)
	}
	for _, item := range items {
		if err := o.observe(ctx, item, emit); err != nil {
			return err
		}
	}
	return nil
}

// runLive polls forward indefinitely, sleeping the poll interval
// between batches. A batch-level timeout (retry budget exhausted) is
// logged and retried on the next cycle; it does not end the stream.
func (o *Orchestrator) runLive(ctx context.Context, emit EmitFunc) error {
	o.setPhase(PhaseLive)

	interval := defaultPollInterval
	if o.query.PollIntervalMs > 0 {
		interval = time.Duration(o.query.PollIntervalMs) * time.Millisecond
	}

	for {
		o.mu.RLock()
		since := o.state.Cursor.MostRecentID
		o.mu.RUnlock()

		items, err := o.poller.Run(ctx, o.query, types.Page{SinceID: since, Limit: o.pageSize()})
		switch {
		case err == nil:
			for _, item := range items {
				if err := o.observe(ctx, item, emit); err != nil {
					return err
				}
			}
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return err
		case errors.Is(err, types.ErrJobTimeout), types.IsTransient(err):
			slog.Warn("live poll failed, retrying next cycle",
				"stream_key", string(o.query.StreamKey()), "error", err)
		default:
			return fmt.Errorf("live batch: %w", err)
		}

		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
