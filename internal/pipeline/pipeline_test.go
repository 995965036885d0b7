package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/user/gopherfeed/internal/queue"
	"github.com/user/gopherfeed/internal/types"
)

// fakeTransport emits a fixed set of entries through the capture
// callback and then blocks until cancelled.
type fakeTransport struct {
	entries []*types.QueueEntry
	sends   atomic.Int32
	stopped atomic.Bool
}

func (f *fakeTransport) Start(ctx context.Context, capture func(*types.QueueEntry)) {
	for _, e := range f.entries {
		capture(e)
	}
	<-ctx.Done()
	f.stopped.Store(true)
}

func (f *fakeTransport) SendAction(target, payload string) error {
	f.sends.Add(1)
	return nil
}

// stubClient satisfies types.JobClient for pipelines that never run a
// job-poll stream.
type stubClient struct{}

func (stubClient) Submit(ctx context.Context, q *types.Query, p types.Page) (string, error) {
	return "", types.ErrProviderUnavailable
}
func (stubClient) Status(ctx context.Context, jobID string) (types.JobStatus, error) {
	return types.JobError, nil
}
func (stubClient) Results(ctx context.Context, jobID string) ([]*types.Item, error) {
	return nil, types.ErrProviderUnavailable
}

func entry(text string) *types.QueueEntry {
	return &types.QueueEntry{ID: types.NewEntryID(), ChatID: "1", MessageType: "text", Text: text}
}

func TestCapturedEntriesReachQueueInOrder(t *testing.T) {
	transport := &fakeTransport{entries: []*types.QueueEntry{entry("a"), entry("b"), entry("c")}}
	p := New(stubClient{}, nil, transport)
	p.Start(context.Background())
	defer p.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for _, want := range []string{"a", "b", "c"} {
		e, err := p.Queue.Take(ctx)
		if err != nil {
			t.Fatalf("Take failed: %v", err)
		}
		if e.Text != want {
			t.Errorf("got %q, want %q", e.Text, want)
		}
	}
}

func TestStopUnblocksPendingTake(t *testing.T) {
	transport := &fakeTransport{}
	p := New(stubClient{}, nil, transport)
	p.Start(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := p.Queue.Take(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	p.Stop()

	select {
	case err := <-done:
		if !errors.Is(err, queue.ErrClosed) {
			t.Errorf("Take returned %v, want ErrClosed", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Take still blocked after Stop")
	}
	if !transport.stopped.Load() {
		t.Error("transport not stopped")
	}
}

func TestWebhookCaptureSharesQueue(t *testing.T) {
	p := New(stubClient{}, nil, nil)
	p.Start(context.Background())
	defer p.Stop()

	p.Capture(entry("from webhook"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	e, err := p.Queue.Take(ctx)
	if err != nil {
		t.Fatalf("Take failed: %v", err)
	}
	if e.Text != "from webhook" {
		t.Errorf("got %q", e.Text)
	}
}

func TestSendActionWithoutTransportFails(t *testing.T) {
	p := New(stubClient{}, nil, nil)
	if err := p.SendAction("1", "hi"); !errors.Is(err, types.ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestSendActionForwardsToTransport(t *testing.T) {
	transport := &fakeTransport{}
	p := New(stubClient{}, nil, transport)
	if err := p.SendAction("1", "hi"); err != nil {
		t.Fatalf("SendAction failed: %v", err)
	}
	if transport.sends.Load() != 1 {
		t.Errorf("sends = %d, want 1", transport.sends.Load())
	}
}

func TestStateReadableRightAfterStartStream(t *testing.T) {
	p := New(stubClient{}, nil, nil)
	p.Start(context.Background())
	defer p.Stop()

	q := &types.Query{SourceType: "twitter", Method: "search", Text: "foo"}
	orch, err := p.StartStream(q, func(*types.Item) error { return nil })
	if err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}

	// The background Run may not have been scheduled yet; the checkpoint
	// must still be observable.
	if st := orch.State(); st.Key != q.StreamKey() {
		t.Errorf("Key = %q, want %q", st.Key, q.StreamKey())
	}
}

func TestStartStreamWithoutStart(t *testing.T) {
	p := New(stubClient{}, nil, nil)

	q := &types.Query{SourceType: "twitter", Method: "search", Text: "foo"}
	orch, err := p.StartStream(q, func(*types.Item) error { return nil })
	if err != nil {
		t.Fatalf("StartStream failed: %v", err)
	}
	if st := orch.State(); st.Key != q.StreamKey() {
		t.Errorf("Key = %q, want %q", st.Key, q.StreamKey())
	}
	p.Stop()
}

func TestSetQueueCapacity(t *testing.T) {
	p := New(stubClient{}, nil, nil)
	p.SetQueueCapacity(2)
	p.Start(context.Background())
	defer p.Stop()

	p.Capture(entry("1"))
	p.Capture(entry("2"))
	p.Capture(entry("3"))

	if p.Queue.Dropped() != 1 {
		t.Errorf("Dropped = %d, want 1", p.Queue.Dropped())
	}
}
