// internal/types/interfaces.go
package types

import "context"

// JobClient wraps the remote search API's three primitives. Provider
// status strings are normalized to JobStatus before they cross this
// boundary, including remapping "no new results" error shapes to
// JobEmpty.
type JobClient interface {
	Submit(ctx context.Context, q *Query, page Page) (string, error)
	Status(ctx context.Context, jobID string) (JobStatus, error)
	Results(ctx context.Context, jobID string) ([]*Item, error)
}

// StateStore persists stream checkpoints. Load returns nil (not an
// error) when no checkpoint exists for the key.
type StateStore interface {
	Load(ctx context.Context, key StreamKey) (*StreamState, error)
	Save(ctx context.Context, key StreamKey, state *StreamState) error
}

// Transport is the push-delivery collaborator: it feeds captured
// events into the pipeline and carries outbound actions. SendAction
// failures are reported but never abort ingestion.
type Transport interface {
	Start(ctx context.Context, capture func(*QueueEntry))
	SendAction(target string, payload string) error
}
