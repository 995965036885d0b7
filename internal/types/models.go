// internal/types/models.go
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// Item is a single ingested record. ExternalID is unique per
// source+query combination; ids are numeric strings (snowflakes) kept
// as strings to avoid precision loss at 64-bit boundaries. The core
// never fabricates or reorders ids; deduplication is a downstream
// concern.
type Item struct {
	ExternalID      string            `json:"external_id"`
	Content         string            `json:"content"`
	SourceTimestamp *time.Time        `json:"source_timestamp,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Cursor tracks how far a stream has progressed in both directions.
// MostRecentID bounds the live/forward frontier; OldestSeenID bounds
// the backfill frontier. Empty string means "not yet set". Compared as
// big integers, never as strings.
type Cursor struct {
	MostRecentID string `json:"most_recent_id,omitempty"`
	OldestSeenID string `json:"oldest_seen_id,omitempty"`
}

// JobStatus is the normalized lifecycle state of a provider-side
// search job.
type JobStatus string

const (
	JobSubmitted  JobStatus = "submitted"
	JobInProgress JobStatus = "in-progress"
	JobDone       JobStatus = "done"
	JobEmpty      JobStatus = "empty"
	JobError      JobStatus = "error"
)

// Terminal reports whether the status ends the job's lifecycle.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobEmpty || s == JobError
}

// JobDescriptor identifies a provider-side asynchronous search job.
type JobDescriptor struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}

// StreamState is the persisted, resumable checkpoint for one stream.
type StreamState struct {
	Key            StreamKey `json:"key"`
	Cursor         Cursor    `json:"cursor"`
	TotalProcessed int64     `json:"total_processed"`
	Phase          string    `json:"phase,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// QueueEntry is a captured push event with denormalized filter fields.
// The ingestor owns an entry from capture until a consumer takes it;
// after a take the entry is gone from the buffer (at-most-once per
// consumer).
type QueueEntry struct {
	ID          EntryID         `json:"id"`
	ChatID      string          `json:"chat_id"`
	MessageType string          `json:"message_type"`
	Command     string          `json:"command,omitempty"`
	Text        string          `json:"text"`
	CapturedAt  time.Time       `json:"captured_at"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// IsCommand reports whether the entry was captured as a bot command.
func (e *QueueEntry) IsCommand() bool {
	return e.Command != ""
}

// Page anchors one job-poll batch. SinceID bounds results to ids
// strictly greater (forward paging); MaxID bounds results to ids less
// than or equal (backward paging, inclusive). Limit caps the page.
type Page struct {
	SinceID string `json:"since_id,omitempty"`
	MaxID   string `json:"max_id,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

// Query is the caller-supplied parameter surface for one stream.
type Query struct {
	SourceType string `json:"source_type"`
	Method     string `json:"method"`
	Text       string `json:"text"`

	// Result caps.
	MaxBackfillResults int `json:"max_backfill_results,omitempty"`
	PageSize           int `json:"page_size,omitempty"`

	// Cursor seeds for resume or manual anchoring.
	SinceID string `json:"since_id,omitempty"`
	MaxID   string `json:"max_id,omitempty"`

	// Backfill constraints.
	OldestAllowedID  string `json:"oldest_allowed_id,omitempty"`
	MaxBackfillAgeMs int64  `json:"max_backfill_age_ms,omitempty"`

	// Live toggles.
	EnableLive     bool  `json:"enable_live,omitempty"`
	PollIntervalMs int64 `json:"poll_interval_ms,omitempty"`
}

// StreamKey derives the checkpoint key for this query.
func (q *Query) StreamKey() StreamKey {
	return NewStreamKey(q.SourceType, q.Method, q.Text)
}

// Validate checks the caller-supplied surface at the boundary so that
// bad parameters surface as ErrInvalidRequest instead of a provider
// rejection minutes later.
func (q *Query) Validate() error {
	if q.SourceType == "" {
		return fmt.Errorf("%w: source type is required", ErrInvalidRequest)
	}
	if q.Method == "" {
		return fmt.Errorf("%w: search method is required", ErrInvalidRequest)
	}
	if q.Text == "" {
		return fmt.Errorf("%w: query text is required", ErrInvalidRequest)
	}
	if q.MaxBackfillResults < 0 || q.PageSize < 0 {
		return fmt.Errorf("%w: result caps must be non-negative", ErrInvalidRequest)
	}
	if q.MaxBackfillAgeMs < 0 {
		return fmt.Errorf("%w: max backfill age must be non-negative", ErrInvalidRequest)
	}
	if q.PollIntervalMs < 0 {
		return fmt.Errorf("%w: poll interval must be non-negative", ErrInvalidRequest)
	}
	return nil
}
