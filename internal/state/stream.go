// internal/state/stream.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/user/gopherfeed/internal/types"
)

// StreamStateStore is a JSON-file-backed checkpoint store. Each stream
// key gets its own file at streams/<escaped-key>.json.
type StreamStateStore struct {
	root string
	mu   sync.RWMutex
}

// NewStreamStateStore creates a file-backed StreamStateStore rooted at
// the given directory.
func NewStreamStateStore(root string) *StreamStateStore {
	return &StreamStateStore{root: root}
}

func (s *StreamStateStore) streamsDir() string {
	return filepath.Join(s.root, "streams")
}

func (s *StreamStateStore) statePath(key types.StreamKey) string {
	return filepath.Join(s.streamsDir(), url.PathEscape(string(key))+".json")
}

// Load returns the checkpoint for the key, or nil if none exists.
func (s *StreamStateStore) Load(_ context.Context, key types.StreamKey) (*types.StreamState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := os.ReadFile(s.statePath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read stream state: %w", err)
	}

	var st types.StreamState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal stream state: %w", err)
	}
	return &st, nil
}

// Save persists the checkpoint using atomic write (temp file + rename).
func (s *StreamStateStore) Save(_ context.Context, key types.StreamKey, st *types.StreamState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stream state: %w", err)
	}

	if err := os.MkdirAll(s.streamsDir(), 0o755); err != nil {
		return fmt.Errorf("create streams dir: %w", err)
	}

	path := s.statePath(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp stream state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp stream state: %w", err)
	}
	return nil
}

// Delete removes the checkpoint for the key, forcing a fresh backfill
// on the next run. Missing checkpoints are not an error.
func (s *StreamStateStore) Delete(_ context.Context, key types.StreamKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.statePath(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete stream state: %w", err)
	}
	return nil
}

// List returns all persisted checkpoints.
func (s *StreamStateStore) List(_ context.Context) ([]*types.StreamState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.streamsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return []*types.StreamState{}, nil
		}
		return nil, fmt.Errorf("read streams dir: %w", err)
	}

	states := make([]*types.StreamState, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.streamsDir(), entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read stream state %s: %w", entry.Name(), err)
		}
		var st types.StreamState
		if err := json.Unmarshal(data, &st); err != nil {
			return nil, fmt.Errorf("unmarshal stream state %s: %w", entry.Name(), err)
		}
		states = append(states, &st)
	}
	return states, nil
}
