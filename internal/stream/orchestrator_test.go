package stream

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/user/gopherfeed/internal/jobs"
	"github.com/user/gopherfeed/internal/types"
)

// scriptedClient returns one pre-scripted batch per submitted job, in
// order, and records the page anchors of every submission.
type scriptedClient struct {
	mu      sync.Mutex
	batches [][]*types.Item
	pages   []types.Page
}

func (c *scriptedClient) Submit(ctx context.Context, q *types.Query, page types.Page) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	idx := len(c.pages)
	c.pages = append(c.pages, page)
	return "job-" + strconv.Itoa(idx), nil
}

func (c *scriptedClient) Status(ctx context.Context, jobID string) (types.JobStatus, error) {
	return types.JobDone, nil
}

func (c *scriptedClient) Results(ctx context.Context, jobID string) ([]*types.Item, error) {
	idx, err := strconv.Atoi(jobID[len("job-"):])
	if err != nil {
		return nil, fmt.Errorf("bad job id %q", jobID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if idx >= len(c.batches) {
		return []*types.Item{}, nil
	}
	return c.batches[idx], nil
}

func (c *scriptedClient) recordedPages() []types.Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Page(nil), c.pages...)
}

// memStore is an in-memory StateStore.
type memStore struct {
	mu sync.Mutex
	m  map[types.StreamKey]*types.StreamState
}

func newMemStore() *memStore {
	return &memStore{m: make(map[types.StreamKey]*types.StreamState)}
}

func (s *memStore) Load(_ context.Context, key types.StreamKey) (*types.StreamState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.m[key]
	if !ok {
		return nil, nil
	}
	cp := *st
	return &cp, nil
}

func (s *memStore) Save(_ context.Context, key types.StreamKey, st *types.StreamState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *st
	s.m[key] = &cp
	return nil
}

func items(ids ...string) []*types.Item {
	out := make([]*types.Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, &types.Item{ExternalID: id, Content: "item " + id})
	}
	return out
}

func fastPoller(client types.JobClient) *jobs.Poller {
	return jobs.NewPoller(client, &jobs.RetryPolicy{
		MaxAttempts:  5,
		InitialDelay: time.Millisecond,
		Multiplier:   2,
		MaxDelay:     5 * time.Millisecond,
	})
}

func collect(t *testing.T, orch *Orchestrator, ctx context.Context) []string {
	t.Helper()
	var got []string
	err := orch.Run(ctx, func(item *types.Item) error {
		got = append(got, item.ExternalID)
		return nil
	})
	if err != nil && ctx.Err() == nil {
		t.Fatalf("Run returned error: %v", err)
	}
	return got
}

func TestStateReadableBeforeRun(t *testing.T) {
	q := &types.Query{SourceType: "twitter", Method: "search", Text: "foo"}
	orch, err := New(fastPoller(&scriptedClient{}), newMemStore(), q)
	if err != nil {
		t.Fatal(err)
	}

	// Callers get the orchestrator back before Run is scheduled; reading
	// the checkpoint in that window must not crash.
	st := orch.State()
	if st.Key != q.StreamKey() {
		t.Errorf("Key = %q, want %q", st.Key, q.StreamKey())
	}
	if st.TotalProcessed != 0 || st.Cursor.MostRecentID != "" {
		t.Errorf("fresh checkpoint not zero-valued: %+v", st)
	}
}

func TestBackfillCapAndBoundaryExclusion(t *testing.T) {
	client := &scriptedClient{batches: [][]*types.Item{items("105", "104", "103")}}
	store := newMemStore()

	q := &types.Query{
		SourceType:         "twitter",
		Method:             "search",
		Text:               "foo",
		MaxBackfillResults: 2,
		PageSize:           2,
	}
	orch, err := New(fastPoller(client), store, q)
	if err != nil {
		t.Fatal(err)
	}

	got := collect(t, orch, context.Background())
	if len(got) != 2 || got[0] != "105" || got[1] != "104" {
		t.Fatalf("output = %v, want [105 104]", got)
	}

	st := orch.State()
	if st.Cursor.OldestSeenID != "104" {
		t.Errorf("OldestSeenID = %s, want 104", st.Cursor.OldestSeenID)
	}
	if st.Cursor.MostRecentID != "105" {
		t.Errorf("MostRecentID = %s, want 105", st.Cursor.MostRecentID)
	}
}

func TestBackfillAnchorsDecrementBoundary(t *testing.T) {
	client := &scriptedClient{batches: [][]*types.Item{
		items("105", "104"),
		items("103", "102"),
		items("101"),
	}}

	q := &types.Query{
		SourceType: "twitter",
		Method:     "search",
		Text:       "foo",
		PageSize:   2,
	}
	orch, err := New(fastPoller(client), newMemStore(), q)
	if err != nil {
		t.Fatal(err)
	}

	got := collect(t, orch, context.Background())
	want := []string{"105", "104", "103", "102", "101"}
	if len(got) != len(want) {
		t.Fatalf("output = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("output = %v, want %v", got, want)
		}
	}

	pages := client.recordedPages()
	if len(pages) != 3 {
		t.Fatalf("expected 3 pages, got %d", len(pages))
	}
	if pages[0].MaxID != "" {
		t.Errorf("first page MaxID = %q, want unset", pages[0].MaxID)
	}
	// The seen boundary id must be excluded from each following page.
	if pages[1].MaxID != "103" {
		t.Errorf("second page MaxID = %q, want 103", pages[1].MaxID)
	}
	if pages[2].MaxID != "101" {
		t.Errorf("third page MaxID = %q, want 101", pages[2].MaxID)
	}
}

func TestBackfillStopsAtOldestAllowedID(t *testing.T) {
	client := &scriptedClient{batches: [][]*types.Item{
		items("105", "104", "103", "102", "101"),
	}}

	q := &types.Query{
		SourceType:      "twitter",
		Method:          "search",
		Text:            "foo",
		PageSize:        5,
		OldestAllowedID: "103",
	}
	orch, err := New(fastPoller(client), newMemStore(), q)
	if err != nil {
		t.Fatal(err)
	}

	got := collect(t, orch, context.Background())
	for _, id := range got {
		if cmp, _ := CompareIDs(id, "103"); cmp < 0 {
			t.Fatalf("yielded id %s below the allowed floor", id)
		}
	}
	if len(got) != 3 {
		t.Errorf("output = %v, want [105 104 103]", got)
	}
}

func TestBackfillStopsAtAgeCutoff(t *testing.T) {
	old := time.Now().Add(-2 * time.Hour)
	fresh := time.Now().Add(-time.Minute)
	batch := []*types.Item{
		{ExternalID: "105", SourceTimestamp: &fresh},
		{ExternalID: "104", SourceTimestamp: &fresh},
		{ExternalID: "103", SourceTimestamp: &old},
		{ExternalID: "102", SourceTimestamp: &old},
	}
	client := &scriptedClient{batches: [][]*types.Item{batch}}

	q := &types.Query{
		SourceType:       "twitter",
		Method:           "search",
		Text:             "foo",
		PageSize:         4,
		MaxBackfillAgeMs: time.Hour.Milliseconds(),
	}
	orch, err := New(fastPoller(client), newMemStore(), q)
	if err != nil {
		t.Fatal(err)
	}

	got := collect(t, orch, context.Background())
	if len(got) != 2 || got[0] != "105" || got[1] != "104" {
		t.Fatalf("output = %v, want [105 104]", got)
	}
}

func TestResumeGapDetectionThenLive(t *testing.T) {
	client := &scriptedClient{batches: [][]*types.Item{
		items("201", "202"), // gap detection result
		{},                  // first live poll
	}}
	store := newMemStore()
	q := &types.Query{
		SourceType:     "twitter",
		Method:         "search",
		Text:           "foo",
		PageSize:       10,
		EnableLive:     true,
		PollIntervalMs: 5,
	}
	store.Save(context.Background(), q.StreamKey(), &types.StreamState{
		Key:    q.StreamKey(),
		Cursor: types.Cursor{MostRecentID: "200", OldestSeenID: "150"},
	})

	orch, err := New(fastPoller(client), store, q)
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan []string, 1)
	go func() {
		var got []string
		orch.Run(ctx, func(item *types.Item) error {
			got = append(got, item.ExternalID)
			return nil
		})
		done <- got
	}()

	// Wait until the live phase has issued at least one poll.
	deadline := time.After(2 * time.Second)
	for {
		if len(client.recordedPages()) >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("live phase never polled")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	got := <-done

	if len(got) != 2 || got[0] != "201" || got[1] != "202" {
		t.Fatalf("output = %v, want [201 202]", got)
	}

	pages := client.recordedPages()
	if pages[0].SinceID != "200" {
		t.Errorf("gap detection anchored at %q, want 200", pages[0].SinceID)
	}
	if pages[1].SinceID != "202" {
		t.Errorf("live phase anchored at %q, want 202", pages[1].SinceID)
	}

	st := orch.State()
	if st.Cursor.MostRecentID != "202" {
		t.Errorf("MostRecentID = %s, want 202", st.Cursor.MostRecentID)
	}
	if st.Cursor.OldestSeenID != "150" {
		t.Errorf("OldestSeenID = %s, want 150", st.Cursor.OldestSeenID)
	}
}

func TestCheckpointSavedOnExit(t *testing.T) {
	client := &scriptedClient{batches: [][]*types.Item{items("105", "104")}}
	store := newMemStore()
	q := &types.Query{
		SourceType: "twitter",
		Method:     "search",
		Text:       "foo",
		PageSize:   5,
	}

	orch, err := New(fastPoller(client), store, q, WithSaveEvery(1000))
	if err != nil {
		t.Fatal(err)
	}
	collect(t, orch, context.Background())

	st, err := store.Load(context.Background(), q.StreamKey())
	if err != nil {
		t.Fatal(err)
	}
	if st == nil {
		t.Fatal("no checkpoint persisted on exit")
	}
	if st.TotalProcessed != 2 {
		t.Errorf("TotalProcessed = %d, want 2", st.TotalProcessed)
	}
	if st.Cursor.MostRecentID != "105" || st.Cursor.OldestSeenID != "104" {
		t.Errorf("unexpected cursor: %+v", st.Cursor)
	}
}

func TestEmitErrorStopsStream(t *testing.T) {
	client := &scriptedClient{batches: [][]*types.Item{items("3", "2", "1")}}
	q := &types.Query{SourceType: "twitter", Method: "search", Text: "foo", PageSize: 5}

	orch, err := New(fastPoller(client), newMemStore(), q)
	if err != nil {
		t.Fatal(err)
	}

	wantErr := fmt.Errorf("consumer full")
	count := 0
	err = orch.Run(context.Background(), func(item *types.Item) error {
		count++
		if count == 2 {
			return wantErr
		}
		return nil
	})
	if err == nil || err.Error() != "consumer full" {
		t.Fatalf("expected consumer error, got %v", err)
	}
	if count != 2 {
		t.Errorf("emit called %d times, want 2", count)
	}
}

func TestValidateRejectsBadQuery(t *testing.T) {
	client := &scriptedClient{}
	_, err := New(fastPoller(client), newMemStore(), &types.Query{SourceType: "twitter"})
	if err == nil {
		t.Fatal("expected validation error for missing method and text")
	}
}
