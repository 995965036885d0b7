// internal/webhook/server.go
package webhook

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/user/gopherfeed/internal/state"
	"github.com/user/gopherfeed/internal/types"
)

// Capture feeds one push-delivered event into the pipeline.
type Capture func(*types.QueueEntry)

// Server is a lightweight HTTP handler for push delivery and debug
// endpoints. Captured payloads go through the same path as polled
// updates.
type Server struct {
	capture Capture
	streams *state.StreamStateStore
	mux     *http.ServeMux
}

// NewServer creates a webhook Server with the given capture callback
// and stream state store (nil disables the debug API).
func NewServer(capture Capture, streams *state.StreamStateStore) *Server {
	s := &Server{
		capture: capture,
		streams: streams,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /capture", s.handleCapture)
	s.mux.HandleFunc("GET /api/streams", s.handleAPIStreams)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// captureRequest is the JSON body for POST /capture.
type captureRequest struct {
	ChatID      string          `json:"chat_id"`
	MessageType string          `json:"message_type"`
	Command     string          `json:"command,omitempty"`
	Text        string          `json:"text"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// handleCapture accepts a push payload and enqueues it. Malformed
// payloads are rejected with 400 and logged; they never stop ingestion
// of subsequent good payloads.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("discarding malformed capture payload", "error", err)
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.ChatID == "" || (req.Text == "" && len(req.Payload) == 0) {
		http.Error(w, `{"error":"chat_id and text or payload are required"}`, http.StatusBadRequest)
		return
	}

	if req.MessageType == "" {
		req.MessageType = "text"
	}
	if req.Command != "" {
		req.MessageType = "command"
	}

	entry := &types.QueueEntry{
		ID:          types.NewEntryID(),
		ChatID:      req.ChatID,
		MessageType: req.MessageType,
		Command:     req.Command,
		Text:        req.Text,
		CapturedAt:  time.Now(),
		Payload:     req.Payload,
	}
	s.capture(entry)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(map[string]string{"entry_id": string(entry.ID)})
}

type streamResponse struct {
	Key            string `json:"key"`
	MostRecentID   string `json:"most_recent_id,omitempty"`
	OldestSeenID   string `json:"oldest_seen_id,omitempty"`
	TotalProcessed int64  `json:"total_processed"`
	Phase          string `json:"phase,omitempty"`
	UpdatedAt      string `json:"updated_at"`
}

func (s *Server) handleAPIStreams(w http.ResponseWriter, r *http.Request) {
	if s.streams == nil {
		http.Error(w, `{"error":"debug API not configured"}`, http.StatusServiceUnavailable)
		return
	}
	states, err := s.streams.List(r.Context())
	if err != nil {
		slog.Error("list streams failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	result := make([]streamResponse, 0, len(states))
	for _, st := range states {
		result = append(result, streamResponse{
			Key:            string(st.Key),
			MostRecentID:   st.Cursor.MostRecentID,
			OldestSeenID:   st.Cursor.OldestSeenID,
			TotalProcessed: st.TotalProcessed,
			Phase:          st.Phase,
			UpdatedAt:      st.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		})
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt > result[j].UpdatedAt
	})

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}
