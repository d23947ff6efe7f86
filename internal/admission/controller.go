package admission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"dialer-platform/internal/campaign"
	"dialer-platform/internal/queue"

	"github.com/google/uuid"
)

var ErrInvalidArgument = errors.New("admission: invalid argument")

// JobStore is the slice of the queue surface the controller needs.
// Implemented by queue.Repository.
type JobStore interface {
	ListClaimable(ctx context.Context, tenantID string, now time.Time, limit int) ([]queue.CallJob, error)
	Claim(ctx context.Context, tenantID, jobID string, now time.Time) (queue.CallJob, bool, error)
	Release(ctx context.Context, tenantID, jobID string) (bool, error)
	AttachCall(ctx context.Context, tenantID, jobID, callID string) error
	CountProcessingByTenant(ctx context.Context, tenantID string) (int, error)
	CountProcessingByCampaign(ctx context.Context, tenantID, campaignID string) (int, error)
	CountProcessingTotal(ctx context.Context) (int, error)
	ListProcessing(ctx context.Context, limit int) ([]queue.CallJob, error)
}

// CampaignGate is the slice of the campaign surface the controller needs.
// Implemented by campaign.Repository.
type CampaignGate interface {
	Get(ctx context.Context, tenantID, id string) (campaign.Campaign, error)
	MarkDispatched(ctx context.Context, tenantID, id string, at time.Time) error
}

// Caps bound in-flight calls. Both are evaluated as live counts over
// processing rows at claim time — never as maintained counters.
type Caps struct {
	SystemMax int
	TenantMax int
}

// Claim is a successfully dispatched job plus the lease token the worker
// uses to heartbeat and release.
type Claim struct {
	Job        queue.CallJob `json:"job"`
	LeaseToken string        `json:"lease_token"`
}

// Controller atomically selects and claims the next dispatchable job for a
// tenant. Selection order is priority DESC, position ASC, created_at ASC —
// one shared ordering space across both lanes, so direct calls (priority
// 100) normally preempt campaign calls unless a campaign is deliberately
// configured above 100.
type Controller struct {
	jobs      JobStore
	campaigns CampaignGate
	leases    LeaseStore

	caps      Caps
	batchSize int
	leaseTTL  time.Duration

	clock func() time.Time
	log   *slog.Logger
}

func NewController(jobs JobStore, campaigns CampaignGate, leases LeaseStore, caps Caps, batchSize int, leaseTTL time.Duration, log *slog.Logger) *Controller {
	if batchSize <= 0 {
		batchSize = 25
	}
	if leaseTTL <= 0 {
		leaseTTL = 2 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		jobs:      jobs,
		campaigns: campaigns,
		leases:    leases,
		caps:      caps,
		batchSize: batchSize,
		leaseTTL:  leaseTTL,
		clock:     time.Now,
		log:       log,
	}
}

// ClaimNext returns the next dispatchable job for the tenant, or ok=false
// when nothing is eligible right now (empty queue, closed windows, or
// capacity). Losing a claim race to another caller is silent: the
// controller simply advances to the next candidate.
func (c *Controller) ClaimNext(ctx context.Context, tenantID string) (Claim, bool, error) {
	if tenantID == "" {
		return Claim{}, false, ErrInvalidArgument
	}
	now := c.clock().UTC()

	if ok, err := c.underCaps(ctx, tenantID); err != nil || !ok {
		return Claim{}, false, err
	}

	candidates, err := c.jobs.ListClaimable(ctx, tenantID, now, c.batchSize)
	if err != nil {
		return Claim{}, false, err
	}

	// Campaigns repeat across candidates; resolve each once per pass.
	camps := map[string]campaign.Campaign{}
	blocked := map[string]bool{}

	for _, cand := range candidates {
		if cand.Lane == queue.LaneCampaign {
			ok, err := c.campaignAdmits(ctx, cand, now, camps, blocked)
			if err != nil {
				return Claim{}, false, err
			}
			if !ok {
				continue
			}
		}

		job, won, err := c.jobs.Claim(ctx, tenantID, cand.ID, now)
		if err != nil {
			return Claim{}, false, err
		}
		if !won {
			// Another claimer or a canceller got there first.
			continue
		}

		token := uuid.NewString()
		acquired, err := c.leases.Acquire(ctx, job.ID, token, c.leaseTTL)
		if err != nil || !acquired {
			// Without a lease the job would be unreapable if the worker
			// dies, so put it back rather than hand out a claim.
			if _, relErr := c.jobs.Release(ctx, tenantID, job.ID); relErr != nil {
				c.log.Error("release after lease failure failed", "job_id", job.ID, "err", relErr)
			}
			if err != nil {
				return Claim{}, false, err
			}
			continue
		}

		if job.Lane == queue.LaneCampaign {
			// Round-robin bookkeeping; the consuming allocator is not
			// implemented, only the stamp.
			if err := c.campaigns.MarkDispatched(ctx, tenantID, job.CampaignID, now); err != nil {
				c.log.Warn("mark dispatched failed", "campaign_id", job.CampaignID, "err", err)
			}
		}

		return Claim{Job: job, LeaseToken: token}, true, nil
	}

	return Claim{}, false, nil
}

// Release returns a claimed job to the queue, e.g. when the external call
// could not even start. Leaving it in processing would leak the slot.
func (c *Controller) Release(ctx context.Context, tenantID, jobID, leaseToken string) (bool, error) {
	if tenantID == "" || jobID == "" {
		return false, ErrInvalidArgument
	}
	ok, err := c.jobs.Release(ctx, tenantID, jobID)
	if err != nil {
		return false, err
	}
	if leaseToken != "" {
		if lerr := c.leases.Release(ctx, jobID, leaseToken); lerr != nil {
			c.log.Warn("lease release failed", "job_id", jobID, "err", lerr)
		}
	}
	return ok, nil
}

// AttachCall records the external call id once the telephony collaborator
// accepted the dispatch.
func (c *Controller) AttachCall(ctx context.Context, tenantID, jobID, callID string) error {
	if tenantID == "" || jobID == "" || callID == "" {
		return ErrInvalidArgument
	}
	return c.jobs.AttachCall(ctx, tenantID, jobID, callID)
}

// Heartbeat extends the claim lease while the call is in flight. A false
// return means the lease was lost (expired or reaped); the worker should
// abandon the job.
func (c *Controller) Heartbeat(ctx context.Context, jobID, leaseToken string) (bool, error) {
	if jobID == "" || leaseToken == "" {
		return false, ErrInvalidArgument
	}
	return c.leases.Extend(ctx, jobID, leaseToken, c.leaseTTL)
}

func (c *Controller) underCaps(ctx context.Context, tenantID string) (bool, error) {
	if c.caps.TenantMax > 0 {
		n, err := c.jobs.CountProcessingByTenant(ctx, tenantID)
		if err != nil {
			return false, err
		}
		if n >= c.caps.TenantMax {
			return false, nil
		}
	}
	if c.caps.SystemMax > 0 {
		n, err := c.jobs.CountProcessingTotal(ctx)
		if err != nil {
			return false, err
		}
		if n >= c.caps.SystemMax {
			return false, nil
		}
	}
	return true, nil
}

// campaignAdmits applies the campaign-lane gates: parent campaign active,
// local time inside the dispatch window, campaign concurrency below its cap.
func (c *Controller) campaignAdmits(ctx context.Context, cand queue.CallJob, now time.Time, camps map[string]campaign.Campaign, blocked map[string]bool) (bool, error) {
	if blocked[cand.CampaignID] {
		return false, nil
	}

	camp, ok := camps[cand.CampaignID]
	if !ok {
		var err error
		camp, err = c.campaigns.Get(ctx, cand.TenantID, cand.CampaignID)
		if errors.Is(err, campaign.ErrNotFound) {
			// Orphaned job; nothing to dispatch against.
			blocked[cand.CampaignID] = true
			return false, nil
		}
		if err != nil {
			return false, err
		}
		camps[cand.CampaignID] = camp
	}

	if camp.Status != campaign.StatusActive {
		blocked[cand.CampaignID] = true
		return false, nil
	}

	open, err := camp.WindowOpen(now)
	if err != nil {
		c.log.Warn("campaign window check failed", "campaign_id", camp.ID, "err", err)
		blocked[cand.CampaignID] = true
		return false, nil
	}
	if !open {
		blocked[cand.CampaignID] = true
		return false, nil
	}

	if camp.MaxConcurrentCalls > 0 {
		n, err := c.jobs.CountProcessingByCampaign(ctx, cand.TenantID, camp.ID)
		if err != nil {
			return false, err
		}
		if n >= camp.MaxConcurrentCalls {
			blocked[cand.CampaignID] = true
			return false, nil
		}
	}
	return true, nil
}
