// Package pipeline composes the capture task, the bounded queue, and
// any number of stream orchestrators into one owned, cancellable
// object. Dependencies come in through the constructor; there are no
// package-level singletons.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/user/gopherfeed/internal/jobs"
	"github.com/user/gopherfeed/internal/queue"
	"github.com/user/gopherfeed/internal/stream"
	"github.com/user/gopherfeed/internal/types"
)

// Pipeline owns the lifecycle of all ingestion tasks. Stopping it
// stops the capture/poll task, interrupts in-flight backoff sleeps,
// and releases the queue so pending takes unblock.
type Pipeline struct {
	client    types.JobClient
	store     types.StateStore
	transport types.Transport
	retry     *jobs.RetryPolicy
	Queue     *queue.Ingestor
	semaphore *semaphore.Weighted

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Pipeline wired to the provided collaborators with the
// given concurrency limit for simultaneous orchestrators. The
// transport may be nil when only job-poll streams are needed.
func New(client types.JobClient, store types.StateStore, transport types.Transport, maxConcurrent ...int64) *Pipeline {
	var concurrency int64 = 2
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Pipeline{
		client:    client,
		store:     store,
		transport: transport,
		retry:     jobs.DefaultRetryPolicy(),
		Queue:     queue.NewIngestor(queue.DefaultCapacity),
		semaphore: semaphore.NewWeighted(concurrency),
	}
}

// SetRetryPolicy replaces the backoff schedule used by new streams.
// Must be called before Start.
func (p *Pipeline) SetRetryPolicy(retry *jobs.RetryPolicy) {
	p.retry = retry
}

// SetQueueCapacity replaces the capture buffer with one of the given
// capacity. Must be called before Start.
func (p *Pipeline) SetQueueCapacity(n int) {
	p.Queue = queue.NewIngestor(n)
}

// Start initialises the pipeline's context and launches the capture
// task when a transport is configured.
func (p *Pipeline) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)
	if p.transport != nil {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.transport.Start(p.ctx, p.capture)
		}()
	}
}

// lifecycleCtx returns the pipeline context, creating one when streams
// are launched without a prior Start. Stop still cancels it.
func (p *Pipeline) lifecycleCtx() context.Context {
	if p.ctx == nil {
		p.ctx, p.cancel = context.WithCancel(context.Background())
	}
	return p.ctx
}

// Stop cancels the pipeline context, closes the queue, and waits for
// the capture task and all orchestrators to finish.
func (p *Pipeline) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.Queue.Close()
	p.wg.Wait()
}

// capture is the single entry point for push-delivered events, shared
// by the webhook receiver and the poll loop so filtering and stream
// composition are identical regardless of transport.
func (p *Pipeline) capture(entry *types.QueueEntry) {
	if !p.Queue.Offer(entry) {
		slog.Warn("capture after queue close, entry discarded", "entry_id", string(entry.ID))
	}
}

// Capture exposes the capture path for transports not owned by the
// pipeline (e.g. the webhook receiver).
func (p *Pipeline) Capture(entry *types.QueueEntry) {
	p.capture(entry)
}

// StartStream launches an orchestrator for the query in the background,
// bounded by the pipeline's concurrency limit. The returned
// orchestrator exposes State for checkpoint observation. Works with or
// without a prior Start; Stop ends the stream either way.
func (p *Pipeline) StartStream(q *types.Query, emit stream.EmitFunc, opts ...stream.Option) (*stream.Orchestrator, error) {
	orch, err := stream.New(jobs.NewPoller(p.client, p.retry), p.store, q, opts...)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}

	ctx := p.lifecycleCtx()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		if err := p.semaphore.Acquire(ctx, 1); err != nil {
			return
		}
		defer p.semaphore.Release(1)

		if err := orch.Run(ctx, emit); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("stream ended with error",
				"stream_key", string(q.StreamKey()), "error", err)
		}
	}()
	return orch, nil
}

// RunStream runs an orchestrator synchronously in the caller's
// goroutine, for one-shot searches.
func (p *Pipeline) RunStream(ctx context.Context, q *types.Query, emit stream.EmitFunc, opts ...stream.Option) (*stream.Orchestrator, error) {
	orch, err := stream.New(jobs.NewPoller(p.client, p.retry), p.store, q, opts...)
	if err != nil {
		return nil, fmt.Errorf("create stream: %w", err)
	}
	if err := orch.Run(ctx, emit); err != nil {
		return orch, err
	}
	return orch, nil
}

// SendAction forwards an outbound action to the transport. A failure
// is reported to the caller but must never be allowed to abort an
// ingestion stream; callers log and move on.
func (p *Pipeline) SendAction(target, payload string) error {
	if p.transport == nil {
		return fmt.Errorf("no transport configured: %w", types.ErrTransport)
	}
	if err := p.transport.SendAction(target, payload); err != nil {
		return fmt.Errorf("send action to %s: %w", target, err)
	}
	return nil
}
