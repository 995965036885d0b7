package state

import (
	"path/filepath"
	"testing"

	"github.com/user/gopherfeed/internal/types"
)

func testMonitorStore(t *testing.T) *MonitorStore {
	t.Helper()
	return NewMonitorStore(filepath.Join(t.TempDir(), "monitors.json"))
}

func testMonitor(name string) *Monitor {
	return &Monitor{
		Name: name,
		Query: types.Query{
			SourceType: "twitter",
			Method:     "search",
			Text:       "golang",
		},
		Schedule: "*/5 * * * *",
		ChatID:   "12345",
		Enabled:  true,
	}
}

func TestMonitorAddGetList(t *testing.T) {
	store := testMonitorStore(t)

	if err := store.Add(testMonitor("go-news")); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	m, err := store.Get("go-news")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if m.Query.Text != "golang" || m.ChatID != "12345" {
		t.Errorf("unexpected monitor: %+v", m)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 {
		t.Errorf("got %d monitors, want 1", len(list))
	}
}

func TestMonitorDuplicateNameRejected(t *testing.T) {
	store := testMonitorStore(t)
	store.Add(testMonitor("dup"))
	if err := store.Add(testMonitor("dup")); err == nil {
		t.Error("expected error adding duplicate monitor")
	}
}

func TestMonitorRemove(t *testing.T) {
	store := testMonitorStore(t)
	store.Add(testMonitor("gone"))

	if err := store.Remove("gone"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if _, err := store.Get("gone"); err == nil {
		t.Error("expected error getting removed monitor")
	}
	if err := store.Remove("gone"); err == nil {
		t.Error("expected error removing missing monitor")
	}
}

func TestMonitorSetEnabled(t *testing.T) {
	store := testMonitorStore(t)
	store.Add(testMonitor("toggle"))

	if err := store.SetEnabled("toggle", false); err != nil {
		t.Fatalf("SetEnabled failed: %v", err)
	}
	m, err := store.Get("toggle")
	if err != nil {
		t.Fatal(err)
	}
	if m.Enabled {
		t.Error("monitor still enabled after disable")
	}
}

func TestMonitorListMissingFile(t *testing.T) {
	store := testMonitorStore(t)
	list, err := store.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("got %d monitors, want 0", len(list))
	}
}
