package retry

import (
	"context"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/queue"
)

// Enqueuer re-enqueues a finished job for another attempt.
// Implemented by *queue.Service.
type Enqueuer interface {
	EnqueueRetry(ctx context.Context, prev queue.CallJob, scheduledFor time.Time) (queue.CallJob, error)
}

// Scheduler re-enqueues jobs whose calls ended in a retryable outcome,
// bounded by the owning campaign's retry policy.
//
// The new job is NOT validated against the campaign time window here —
// only at dispatch time, by the admission controller. A retry scheduled
// past a closed window simply waits in the queue until the next window
// opens; that trade removes the need for an expiry sweep.
type Scheduler struct {
	jobs  Enqueuer
	clock func() time.Time
}

func NewScheduler(jobs Enqueuer) *Scheduler {
	return &Scheduler{jobs: jobs, clock: time.Now}
}

// Retryable classifies outcomes worth another attempt. Failed and
// disconnected calls reached a definitive end; only no-answer and busy
// suggest the contact may pick up later.
func Retryable(s calls.Status) bool {
	return s == calls.StatusNoAnswer || s == calls.StatusBusy
}

// Reschedule enqueues a retry for job if its outcome is retryable and the
// campaign's retry budget allows another attempt. ok=false means no retry
// was scheduled — exhausted budget or a non-retryable outcome — which ends
// this contact's attempts as far as the queue is concerned.
func (s *Scheduler) Reschedule(ctx context.Context, job queue.CallJob, camp campaign.Campaign, outcome calls.Status) (queue.CallJob, bool, error) {
	if !Retryable(outcome) {
		return queue.CallJob{}, false, nil
	}
	if camp.MaxRetries <= 0 || job.RetryCount >= camp.MaxRetries {
		return queue.CallJob{}, false, nil
	}

	interval := time.Duration(camp.RetryIntervalMinutes) * time.Minute
	scheduledFor := s.clock().UTC().Add(interval)

	next, err := s.jobs.EnqueueRetry(ctx, job, scheduledFor)
	if err != nil {
		return queue.CallJob{}, false, err
	}
	return next, true, nil
}
