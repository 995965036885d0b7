// internal/state/monitor.go
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/user/gopherfeed/internal/types"
)

// Monitor is a named, persisted query fired on a cron schedule. New
// items found by the run are delivered to ChatID over the push
// transport.
type Monitor struct {
	Name     string      `json:"name"`
	Query    types.Query `json:"query"`
	Schedule string      `json:"schedule,omitempty"`
	ChatID   string      `json:"chat_id"`
	Enabled  bool        `json:"enabled"`
}

// MonitorStore is a JSON-file-backed store for monitors.
type MonitorStore struct {
	path string
	mu   sync.RWMutex
}

// NewMonitorStore creates a file-backed MonitorStore at the given path.
func NewMonitorStore(path string) *MonitorStore {
	return &MonitorStore{path: path}
}

// Path returns the file path used by this store.
func (s *MonitorStore) Path() string {
	return s.path
}

// List returns all monitors. Returns an empty slice if the file
// doesn't exist.
func (s *MonitorStore) List() ([]*Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	monitors, err := s.load()
	if err != nil {
		return nil, err
	}
	if monitors == nil {
		return []*Monitor{}, nil
	}
	return monitors, nil
}

// Get finds a monitor by name. Returns an error if not found.
func (s *MonitorStore) Get(name string) (*Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	monitors, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, m := range monitors {
		if m.Name == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("monitor not found: %s", name)
}

// Add appends a monitor. Returns an error if the name already exists.
func (s *MonitorStore) Add(m *Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	monitors, err := s.load()
	if err != nil {
		return err
	}
	for _, existing := range monitors {
		if existing.Name == m.Name {
			return fmt.Errorf("monitor already exists: %s", m.Name)
		}
	}
	monitors = append(monitors, m)
	return s.save(monitors)
}

// Remove deletes a monitor by name. Returns an error if not found.
func (s *MonitorStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	monitors, err := s.load()
	if err != nil {
		return err
	}
	for i, m := range monitors {
		if m.Name == name {
			monitors = append(monitors[:i], monitors[i+1:]...)
			return s.save(monitors)
		}
	}
	return fmt.Errorf("monitor not found: %s", name)
}

// SetEnabled toggles the enabled flag. Returns an error if not found.
func (s *MonitorStore) SetEnabled(name string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	monitors, err := s.load()
	if err != nil {
		return err
	}
	for _, m := range monitors {
		if m.Name == name {
			m.Enabled = enabled
			return s.save(monitors)
		}
	}
	return fmt.Errorf("monitor not found: %s", name)
}

// load reads the JSON file. Returns nil if the file doesn't exist.
func (s *MonitorStore) load() ([]*Monitor, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read monitors file: %w", err)
	}

	var monitors []*Monitor
	if err := json.Unmarshal(data, &monitors); err != nil {
		return nil, fmt.Errorf("unmarshal monitors: %w", err)
	}
	return monitors, nil
}

// save writes the monitor list using atomic write (temp file + rename).
func (s *MonitorStore) save(monitors []*Monitor) error {
	data, err := json.MarshalIndent(monitors, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal monitors: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create monitors dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp monitors file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename temp monitors file: %w", err)
	}
	return nil
}
