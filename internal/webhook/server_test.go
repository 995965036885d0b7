package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/user/gopherfeed/internal/state"
	"github.com/user/gopherfeed/internal/types"
)

func TestHealth(t *testing.T) {
	srv := NewServer(func(*types.QueueEntry) {}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestCaptureEnqueuesEntry(t *testing.T) {
	var captured *types.QueueEntry
	srv := NewServer(func(e *types.QueueEntry) { captured = e }, nil)

	body := `{"chat_id":"42","text":"hello","message_type":"text"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202: %s", rec.Code, rec.Body.String())
	}
	if captured == nil {
		t.Fatal("capture callback not invoked")
	}
	if captured.ChatID != "42" || captured.Text != "hello" {
		t.Errorf("unexpected entry: %+v", captured)
	}

	var resp map[string]string
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["entry_id"] != string(captured.ID) {
		t.Errorf("entry_id = %q, want %q", resp["entry_id"], captured.ID)
	}
}

func TestCaptureCommandForcesCommandType(t *testing.T) {
	var captured *types.QueueEntry
	srv := NewServer(func(e *types.QueueEntry) { captured = e }, nil)

	body := `{"chat_id":"42","text":"/streams","command":"streams","message_type":"text"}`
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader(body)))

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
	if captured.MessageType != "command" || !captured.IsCommand() {
		t.Errorf("command payload not classified as command: %+v", captured)
	}
}

func TestCaptureRejectsMalformedPayload(t *testing.T) {
	var calls int
	srv := NewServer(func(*types.QueueEntry) { calls++ }, nil)

	for _, body := range []string{
		"{not json",
		`{"text":"missing chat"}`,
		`{"chat_id":"42"}`,
	} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader(body)))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %q: status = %d, want 400", body, rec.Code)
		}
	}
	if calls != 0 {
		t.Errorf("capture invoked %d times for bad payloads", calls)
	}

	// A good payload after bad ones still goes through.
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/capture",
		strings.NewReader(`{"chat_id":"42","text":"still alive"}`)))
	if rec.Code != http.StatusAccepted || calls != 1 {
		t.Errorf("good payload after bad ones: status %d, calls %d", rec.Code, calls)
	}
}

func TestAPIStreamsListsCheckpoints(t *testing.T) {
	store := state.NewStreamStateStore(t.TempDir())
	key := types.NewStreamKey("twitter", "search", "foo")
	store.Save(context.Background(), key, &types.StreamState{
		Key:            key,
		Cursor:         types.Cursor{MostRecentID: "200", OldestSeenID: "100"},
		TotalProcessed: 7,
		Phase:          "live",
	})

	srv := NewServer(func(*types.QueueEntry) {}, store)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp []map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 {
		t.Fatalf("got %d streams, want 1", len(resp))
	}
	if resp[0]["most_recent_id"] != "200" || resp[0]["total_processed"] != float64(7) {
		t.Errorf("unexpected stream entry: %+v", resp[0])
	}
}

func TestAPIStreamsWithoutStoreUnavailable(t *testing.T) {
	srv := NewServer(func(*types.QueueEntry) {}, nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/streams", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
