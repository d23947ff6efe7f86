package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("queue: not found")
	ErrInvalidArgument = errors.New("queue: invalid argument")
)

// Service owns job creation and tenant-facing queue mutations.
// Claiming belongs to the admission controller; terminal transitions
// belong to the outcome recorder.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

// DirectCallRequest enqueues a single ad hoc call.
type DirectCallRequest struct {
	AgentID     string `json:"agent_id"`
	ContactID   string `json:"contact_id"`
	PhoneNumber string `json:"phone_number"`
	ContactName string `json:"contact_name,omitempty"`
	UserData    string `json:"user_data,omitempty"`

	// ScheduledFor is optional; zero means dispatch as soon as possible.
	ScheduledFor time.Time `json:"scheduled_for,omitempty"`
}

// CampaignContact is one entry of a campaign's ingested contact list.
type CampaignContact struct {
	ContactID   string `json:"contact_id"`
	PhoneNumber string `json:"phone_number"`
	ContactName string `json:"contact_name,omitempty"`
	UserData    string `json:"user_data,omitempty"`
}

// EnqueueDirect creates a direct-lane job. Direct jobs always enter at
// DirectLanePriority and never reference a campaign.
func (s *Service) EnqueueDirect(ctx context.Context, tenantID string, req DirectCallRequest) (CallJob, error) {
	if tenantID == "" || req.AgentID == "" || req.ContactID == "" || req.PhoneNumber == "" {
		return CallJob{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	scheduled := req.ScheduledFor
	if scheduled.IsZero() {
		scheduled = now
	}

	job := CallJob{
		ID:           uuid.NewString(),
		TenantID:     tenantID,
		Lane:         LaneDirect,
		AgentID:      req.AgentID,
		ContactID:    req.ContactID,
		PhoneNumber:  req.PhoneNumber,
		ContactName:  req.ContactName,
		UserData:     req.UserData,
		Priority:     DirectLanePriority,
		ScheduledFor: scheduled,
		Status:       JobStatusQueued,
		CreatedAt:    now,
	}
	return s.repo.Insert(ctx, job)
}

// EnqueueCampaignBatch populates the queue for a campaign activation.
// All jobs carry the campaign's priority and become dispatchable
// immediately; the campaign time window is enforced at claim time.
func (s *Service) EnqueueCampaignBatch(ctx context.Context, tenantID, campaignID, agentID string, priority int, contacts []CampaignContact) ([]CallJob, error) {
	if tenantID == "" || campaignID == "" || agentID == "" {
		return nil, ErrInvalidArgument
	}
	if len(contacts) == 0 {
		return nil, ErrInvalidArgument
	}

	now := s.clock().UTC()
	jobs := make([]CallJob, 0, len(contacts))
	for _, c := range contacts {
		if c.ContactID == "" || c.PhoneNumber == "" {
			return nil, ErrInvalidArgument
		}
		jobs = append(jobs, CallJob{
			ID:           uuid.NewString(),
			TenantID:     tenantID,
			Lane:         LaneCampaign,
			CampaignID:   campaignID,
			AgentID:      agentID,
			ContactID:    c.ContactID,
			PhoneNumber:  c.PhoneNumber,
			ContactName:  c.ContactName,
			UserData:     c.UserData,
			Priority:     priority,
			ScheduledFor: now,
			Status:       JobStatusQueued,
			CreatedAt:    now,
		})
	}
	return s.repo.InsertBatch(ctx, jobs)
}

// EnqueueRetry re-enqueues a finished job for another attempt. Identity
// fields are copied verbatim; priority is inherited unchanged.
func (s *Service) EnqueueRetry(ctx context.Context, prev CallJob, scheduledFor time.Time) (CallJob, error) {
	if prev.TenantID == "" || prev.ContactID == "" {
		return CallJob{}, ErrInvalidArgument
	}
	job := CallJob{
		ID:           uuid.NewString(),
		TenantID:     prev.TenantID,
		Lane:         prev.Lane,
		CampaignID:   prev.CampaignID,
		AgentID:      prev.AgentID,
		ContactID:    prev.ContactID,
		PhoneNumber:  prev.PhoneNumber,
		ContactName:  prev.ContactName,
		UserData:     prev.UserData,
		Priority:     prev.Priority,
		ScheduledFor: scheduledFor,
		RetryCount:   prev.RetryCount + 1,
		Status:       JobStatusQueued,
		CreatedAt:    s.clock().UTC(),
	}
	return s.repo.Insert(ctx, job)
}

// Get returns a job scoped to its tenant.
func (s *Service) Get(ctx context.Context, tenantID, jobID string) (CallJob, error) {
	if tenantID == "" || jobID == "" {
		return CallJob{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, tenantID, jobID)
}

// Update applies a sparse patch to a still-queued job.
func (s *Service) Update(ctx context.Context, tenantID, jobID string, patch JobPatch) (CallJob, error) {
	if tenantID == "" || jobID == "" {
		return CallJob{}, ErrInvalidArgument
	}
	if patch.Empty() {
		return s.repo.Get(ctx, tenantID, jobID)
	}
	return s.repo.Update(ctx, tenantID, jobID, patch)
}

// Cancel removes a queued job. A job already claimed by the admission
// controller is left to finish; false is returned in that case.
func (s *Service) Cancel(ctx context.Context, tenantID, jobID string) (bool, error) {
	if tenantID == "" || jobID == "" {
		return false, ErrInvalidArgument
	}
	return s.repo.Cancel(ctx, tenantID, jobID)
}

// CancelCampaignJobs drops every still-queued job of a campaign. Jobs that
// are mid-claim stay untouched and finish normally.
func (s *Service) CancelCampaignJobs(ctx context.Context, tenantID, campaignID string) (int64, error) {
	if tenantID == "" || campaignID == "" {
		return 0, ErrInvalidArgument
	}
	return s.repo.CancelByCampaign(ctx, tenantID, campaignID)
}

func (s *Service) CountQueuedByCampaign(ctx context.Context, tenantID, campaignID string) (int, error) {
	if tenantID == "" || campaignID == "" {
		return 0, ErrInvalidArgument
	}
	return s.repo.CountQueuedByCampaign(ctx, tenantID, campaignID)
}

// CountOpenByCampaign counts jobs still queued or processing; a campaign
// completes only when this reaches zero.
func (s *Service) CountOpenByCampaign(ctx context.Context, tenantID, campaignID string) (int, error) {
	if tenantID == "" || campaignID == "" {
		return 0, ErrInvalidArgument
	}
	return s.repo.CountOpenByCampaign(ctx, tenantID, campaignID)
}
