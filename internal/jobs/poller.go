package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/user/gopherfeed/internal/types"
)

// Poller drives a provider-side search job to completion under a
// RetryPolicy. Permanent faults abort immediately without consuming
// retry budget; everything else (including in-progress) consumes one
// attempt and sleeps the scheduled backoff.
type Poller struct {
	client types.JobClient
	retry  *RetryPolicy
}

// NewPoller creates a Poller over the given client. A nil policy gets
// the default schedule.
func NewPoller(client types.JobClient, retry *RetryPolicy) *Poller {
	if retry == nil {
		retry = DefaultRetryPolicy()
	}
	return &Poller{client: client, retry: retry}
}

// Run submits the query and polls the resulting job to completion,
// returning the fetched items. An empty terminal state returns an
// empty slice, not an error.
func (p *Poller) Run(ctx context.Context, q *types.Query, page types.Page) ([]*types.Item, error) {
	jobID, err := p.client.Submit(ctx, q, page)
	if err != nil {
		return nil, fmt.Errorf("submit job: %w", err)
	}
	return p.Poll(ctx, jobID)
}

// Poll checks job status under the backoff schedule until a terminal
// state or exhausted budget.
func (p *Poller) Poll(ctx context.Context, jobID string) ([]*types.Item, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, err := p.client.Status(ctx, jobID)
		if err != nil {
			if types.IsPermanent(err) {
				return nil, fmt.Errorf("job %s: %w", jobID, err)
			}
			slog.Debug("transient job status failure", "job_id", jobID, "attempt", attempt, "error", err)
		} else {
			switch status {
			case types.JobDone:
				items, err := p.client.Results(ctx, jobID)
				if err != nil {
					return nil, fmt.Errorf("fetch results for job %s: %w", jobID, err)
				}
				return items, nil
			case types.JobEmpty:
				return []*types.Item{}, nil
			case types.JobError:
				// Error-shaped status without a typed fault from the
				// client: treat as transient provider trouble.
				err = fmt.Errorf("job %s reported error: %w", jobID, types.ErrProviderUnavailable)
				slog.Debug("job reported error status", "job_id", jobID, "attempt", attempt)
			default:
				// submitted / in-progress: not done yet.
				err = fmt.Errorf("job %s still %s: %w", jobID, status, types.ErrProviderUnavailable)
			}
		}

		delay, retry := p.retry.Decide(attempt, err)
		if !retry {
			return nil, fmt.Errorf("job %s after %d attempts: %w", jobID, attempt, types.ErrJobTimeout)
		}
		if err := p.retry.Sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}
