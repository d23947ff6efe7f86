package outcome

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/campaign"
	"dialer-platform/internal/queue"
)

var (
	ErrNotFound        = errors.New("outcome: job not found or not processing")
	ErrInvalidArgument = errors.New("outcome: invalid argument")
)

// JobStore is implemented by queue.Repository.
type JobStore interface {
	Finish(ctx context.Context, tenantID, jobID string) (queue.CallJob, bool, error)
	CountOpenByCampaign(ctx context.Context, tenantID, campaignID string) (int, error)
}

// CampaignStore is implemented by campaign.Repository.
type CampaignStore interface {
	Get(ctx context.Context, tenantID, id string) (campaign.Campaign, error)
	ApplyCounters(ctx context.Context, tenantID, id string, d campaign.CounterDelta) error
	UpdateStatus(ctx context.Context, tenantID, id string, from []campaign.Status, to campaign.Status, now time.Time) (campaign.Campaign, bool, error)
}

// Retrier is implemented by *retry.Scheduler.
type Retrier interface {
	Reschedule(ctx context.Context, job queue.CallJob, camp campaign.Campaign, outcome calls.Status) (queue.CallJob, bool, error)
}

// LeaseReleaser drops a job's claim lease once the row is gone.
type LeaseReleaser interface {
	ForceRelease(ctx context.Context, jobID string) error
}

// Result is what the telephony webhook reports for a finished call.
type Result struct {
	CallID        string       `json:"call_id"`
	Status        calls.Status `json:"status"`
	FailureReason string       `json:"failure_reason,omitempty"`
}

// Recorder applies a call's terminal outcome to the queue: it removes the
// job (terminal transitions never retain queue rows), bumps the owning
// campaign's counters, hands retryable outcomes to the retry scheduler and
// completes campaigns whose queues have drained.
//
// Per-job failures end here — they surface only through aggregate
// analytics, never as a blocking error to the campaign owner.
type Recorder struct {
	jobs      JobStore
	campaigns CampaignStore
	retries   Retrier
	leases    LeaseReleaser
	clock     func() time.Time
	log       *slog.Logger
}

func NewRecorder(jobs JobStore, campaigns CampaignStore, retries Retrier, leases LeaseReleaser, log *slog.Logger) *Recorder {
	if log == nil {
		log = slog.Default()
	}
	return &Recorder{
		jobs:      jobs,
		campaigns: campaigns,
		retries:   retries,
		leases:    leases,
		clock:     time.Now,
		log:       log,
	}
}

// Record finishes the job identified by (tenantID, jobID). The job must be
// in processing; anything else means the webhook raced a release or a
// duplicate delivery, reported as ErrNotFound.
func (r *Recorder) Record(ctx context.Context, tenantID, jobID string, res Result) (queue.CallJob, error) {
	if tenantID == "" || jobID == "" {
		return queue.CallJob{}, ErrInvalidArgument
	}
	if !res.Status.Handled() {
		return queue.CallJob{}, fmt.Errorf("%w: %q is not a terminal call status", ErrInvalidArgument, res.Status)
	}

	job, ok, err := r.jobs.Finish(ctx, tenantID, jobID)
	if err != nil {
		return queue.CallJob{}, err
	}
	if !ok {
		return queue.CallJob{}, ErrNotFound
	}

	if r.leases != nil {
		if err := r.leases.ForceRelease(ctx, job.ID); err != nil {
			r.log.Warn("lease cleanup failed", "job_id", job.ID, "err", err)
		}
	}

	now := r.clock().UTC()
	job.CompletedAt = &now
	if res.CallID != "" {
		job.CallID = res.CallID
	}
	job.FailureReason = res.FailureReason
	if res.Status == calls.StatusCompleted {
		job.Status = queue.JobStatusCompleted
	} else {
		job.Status = queue.JobStatusFailed
	}

	if job.Lane != queue.LaneCampaign {
		return job, nil
	}

	camp, err := r.campaigns.Get(ctx, tenantID, job.CampaignID)
	if errors.Is(err, campaign.ErrNotFound) {
		// Campaign was deleted out from under its jobs; the job itself is
		// already finished, so there is nothing left to account.
		return job, nil
	}
	if err != nil {
		return queue.CallJob{}, err
	}

	// Counters are per call attempt: every handled outcome increments
	// completed_calls, split into successful vs failed.
	delta := campaign.CounterDelta{CompletedCalls: 1}
	if res.Status == calls.StatusCompleted {
		delta.SuccessfulCalls = 1
	} else {
		delta.FailedCalls = 1
	}
	if err := r.campaigns.ApplyCounters(ctx, tenantID, camp.ID, delta); err != nil {
		return queue.CallJob{}, err
	}

	if _, scheduled, err := r.retries.Reschedule(ctx, job, camp, res.Status); err != nil {
		return queue.CallJob{}, err
	} else if scheduled {
		// A retry keeps the campaign's queue open; no completion check.
		return job, nil
	}

	open, err := r.jobs.CountOpenByCampaign(ctx, tenantID, camp.ID)
	if err != nil {
		return queue.CallJob{}, err
	}
	if open == 0 {
		if _, ok, err := r.campaigns.UpdateStatus(ctx, tenantID, camp.ID,
			[]campaign.Status{campaign.StatusActive, campaign.StatusPaused}, campaign.StatusCompleted, now); err != nil {
			return queue.CallJob{}, err
		} else if ok {
			r.log.Info("campaign completed", "campaign_id", camp.ID, "tenant_id", tenantID)
		}
	}

	return job, nil
}
