package state

import (
	"context"
	"testing"
	"time"

	"github.com/user/gopherfeed/internal/types"
)

func TestStreamStateRoundTrip(t *testing.T) {
	store := NewStreamStateStore(t.TempDir())
	ctx := context.Background()

	key := types.NewStreamKey("twitter", "search", "foo bar/baz")
	st := &types.StreamState{
		Key:            key,
		Cursor:         types.Cursor{MostRecentID: "200", OldestSeenID: "100"},
		TotalProcessed: 42,
		Phase:          "live",
		UpdatedAt:      time.Now(),
	}
	if err := store.Save(ctx, key, st); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := store.Load(ctx, key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded == nil {
		t.Fatal("Load returned nil for saved state")
	}
	if loaded.Cursor.MostRecentID != "200" || loaded.Cursor.OldestSeenID != "100" {
		t.Errorf("cursor mismatch: %+v", loaded.Cursor)
	}
	if loaded.TotalProcessed != 42 {
		t.Errorf("TotalProcessed = %d, want 42", loaded.TotalProcessed)
	}
}

func TestLoadMissingReturnsNil(t *testing.T) {
	store := NewStreamStateStore(t.TempDir())
	st, err := store.Load(context.Background(), "no:such:stream")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if st != nil {
		t.Errorf("expected nil for missing state, got %+v", st)
	}
}

func TestDeleteForcesNilLoad(t *testing.T) {
	store := NewStreamStateStore(t.TempDir())
	ctx := context.Background()

	key := types.NewStreamKey("twitter", "search", "foo")
	store.Save(ctx, key, &types.StreamState{Key: key})

	if err := store.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	st, err := store.Load(ctx, key)
	if err != nil || st != nil {
		t.Errorf("expected nil after delete, got %+v, %v", st, err)
	}

	// Deleting a missing checkpoint is not an error.
	if err := store.Delete(ctx, key); err != nil {
		t.Errorf("double delete failed: %v", err)
	}
}

func TestListReturnsAllStates(t *testing.T) {
	store := NewStreamStateStore(t.TempDir())
	ctx := context.Background()

	keys := []types.StreamKey{
		types.NewStreamKey("twitter", "search", "a"),
		types.NewStreamKey("twitter", "search", "b"),
	}
	for _, key := range keys {
		store.Save(ctx, key, &types.StreamState{Key: key})
	}

	states, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(states) != 2 {
		t.Errorf("got %d states, want 2", len(states))
	}
}

func TestListEmptyDirReturnsEmpty(t *testing.T) {
	store := NewStreamStateStore(t.TempDir())
	states, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(states) != 0 {
		t.Errorf("got %d states, want 0", len(states))
	}
}
