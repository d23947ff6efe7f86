package campaign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dialer-platform/internal/queue"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("campaign: not found")
	ErrInvalidArgument = errors.New("campaign: invalid argument")

	// ErrValidation covers business-rule rejections that the API boundary
	// reports synchronously (e.g. starting with an empty queue).
	ErrValidation = errors.New("campaign: validation failed")

	// ErrConflict means the lifecycle guard did not match the current
	// status, typically because a concurrent transition won.
	ErrConflict = errors.New("campaign: illegal status transition")
)

// JobQueue is the slice of the queue surface the lifecycle manager needs.
// Implemented by *queue.Service.
type JobQueue interface {
	EnqueueCampaignBatch(ctx context.Context, tenantID, campaignID, agentID string, priority int, contacts []queue.CampaignContact) ([]queue.CallJob, error)
	CancelCampaignJobs(ctx context.Context, tenantID, campaignID string) (int64, error)
	CountQueuedByCampaign(ctx context.Context, tenantID, campaignID string) (int, error)
	CountOpenByCampaign(ctx context.Context, tenantID, campaignID string) (int, error)
}

// Service owns campaign state transitions. Every operation is scoped by
// (campaign id, tenant id) and reports ErrNotFound rather than touching
// another tenant's data.
type Service struct {
	repo  Repository
	jobs  JobQueue
	clock func() time.Time
}

func NewService(repo Repository, jobs JobQueue) *Service {
	return &Service{repo: repo, jobs: jobs, clock: time.Now}
}

type CreateRequest struct {
	Name    string `json:"name"`
	AgentID string `json:"agent_id"`

	FirstCallTime string `json:"first_call_time"`
	LastCallTime  string `json:"last_call_time"`
	Timezone      string `json:"timezone"`

	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	MaxRetries           int `json:"max_retries"`
	RetryIntervalMinutes int `json:"retry_interval_minutes"`
	Priority             int `json:"priority"`
	MaxConcurrentCalls   int `json:"max_concurrent_calls"`

	Contacts []queue.CampaignContact `json:"contacts"`
}

// Create builds a campaign and activates it immediately, populating the
// queue from the ingested contact list. Skipping draft is deliberate: a
// campaign with contacts is ready to dial the moment its window opens.
func (s *Service) Create(ctx context.Context, tenantID string, req CreateRequest) (Campaign, error) {
	if tenantID == "" {
		return Campaign{}, ErrInvalidArgument
	}
	if req.Name == "" || req.AgentID == "" {
		return Campaign{}, fmt.Errorf("%w: name and agent_id are required", ErrValidation)
	}
	if len(req.Contacts) == 0 {
		return Campaign{}, fmt.Errorf("%w: no contacts in queue", ErrValidation)
	}
	if err := validateWindow(req.FirstCallTime, req.LastCallTime, req.Timezone); err != nil {
		return Campaign{}, err
	}
	if err := validateRetryPolicy(req.MaxRetries, req.RetryIntervalMinutes); err != nil {
		return Campaign{}, err
	}
	if req.MaxConcurrentCalls <= 0 {
		req.MaxConcurrentCalls = 1
	}

	now := s.clock().UTC()
	c := Campaign{
		ID:                   uuid.NewString(),
		TenantID:             tenantID,
		Name:                 req.Name,
		AgentID:              req.AgentID,
		Status:               StatusActive,
		FirstCallTime:        req.FirstCallTime,
		LastCallTime:         req.LastCallTime,
		Timezone:             req.Timezone,
		StartDate:            req.StartDate,
		EndDate:              req.EndDate,
		MaxRetries:           req.MaxRetries,
		RetryIntervalMinutes: req.RetryIntervalMinutes,
		Priority:             req.Priority,
		MaxConcurrentCalls:   req.MaxConcurrentCalls,
		TotalContacts:        len(req.Contacts),
		StartedAt:            &now,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	if err := s.repo.Create(ctx, c); err != nil {
		return Campaign{}, err
	}

	if _, err := s.jobs.EnqueueCampaignBatch(ctx, tenantID, c.ID, c.AgentID, c.Priority, req.Contacts); err != nil {
		// Undo the half-created campaign so the invariant "active implies
		// non-empty queue" holds.
		_, _ = s.repo.Delete(ctx, tenantID, c.ID)
		return Campaign{}, err
	}
	return c, nil
}

// Start activates a draft or scheduled campaign. It refuses to activate a
// campaign whose queue is empty.
func (s *Service) Start(ctx context.Context, tenantID, id string) (Campaign, error) {
	if tenantID == "" || id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	c, err := s.repo.Get(ctx, tenantID, id)
	if err != nil {
		return Campaign{}, err
	}
	if c.Status != StatusDraft && c.Status != StatusScheduled {
		return Campaign{}, fmt.Errorf("%w: cannot start from %s", ErrConflict, c.Status)
	}
	queued, err := s.jobs.CountQueuedByCampaign(ctx, tenantID, id)
	if err != nil {
		return Campaign{}, err
	}
	if queued == 0 {
		return Campaign{}, fmt.Errorf("%w: no contacts in queue", ErrValidation)
	}

	out, ok, err := s.repo.UpdateStatus(ctx, tenantID, id, []Status{StatusDraft, StatusScheduled}, StatusActive, s.clock().UTC())
	if err != nil {
		return Campaign{}, err
	}
	if !ok {
		return Campaign{}, ErrConflict
	}
	return out, nil
}

// Pause stops dispatch without touching queued jobs.
func (s *Service) Pause(ctx context.Context, tenantID, id string) (Campaign, error) {
	return s.transition(ctx, tenantID, id, []Status{StatusActive}, StatusPaused)
}

// Resume re-enables dispatch for a paused campaign.
func (s *Service) Resume(ctx context.Context, tenantID, id string) (Campaign, error) {
	return s.transition(ctx, tenantID, id, []Status{StatusPaused}, StatusActive)
}

// Complete finishes a campaign once its queue has drained. Called by the
// outcome recorder after the last open job reaches a terminal state.
func (s *Service) Complete(ctx context.Context, tenantID, id string) (Campaign, error) {
	if tenantID == "" || id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	open, err := s.jobs.CountOpenByCampaign(ctx, tenantID, id)
	if err != nil {
		return Campaign{}, err
	}
	if open > 0 {
		return Campaign{}, fmt.Errorf("%w: %d jobs still open", ErrValidation, open)
	}
	return s.transition(ctx, tenantID, id, []Status{StatusActive, StatusPaused}, StatusCompleted)
}

// Cancel stops the campaign and drops its queued jobs. Jobs already being
// processed finish normally; cancellation and claiming compete for the
// same per-job status guard.
func (s *Service) Cancel(ctx context.Context, tenantID, id string) (Campaign, error) {
	c, err := s.transition(ctx, tenantID, id,
		[]Status{StatusDraft, StatusScheduled, StatusActive, StatusPaused}, StatusCancelled)
	if err != nil {
		return Campaign{}, err
	}
	if _, err := s.jobs.CancelCampaignJobs(ctx, tenantID, id); err != nil {
		return Campaign{}, err
	}
	return c, nil
}

// Update applies a sparse patch; status is never patched.
func (s *Service) Update(ctx context.Context, tenantID, id string, patch Patch) (Campaign, error) {
	if tenantID == "" || id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	if patch.Empty() {
		return s.repo.Get(ctx, tenantID, id)
	}
	if patch.FirstCallTime != nil || patch.LastCallTime != nil || patch.Timezone != nil {
		cur, err := s.repo.Get(ctx, tenantID, id)
		if err != nil {
			return Campaign{}, err
		}
		first, last, tz := cur.FirstCallTime, cur.LastCallTime, cur.Timezone
		if patch.FirstCallTime != nil {
			first = *patch.FirstCallTime
		}
		if patch.LastCallTime != nil {
			last = *patch.LastCallTime
		}
		if patch.Timezone != nil {
			tz = *patch.Timezone
		}
		if err := validateWindow(first, last, tz); err != nil {
			return Campaign{}, err
		}
	}
	if patch.MaxRetries != nil && *patch.MaxRetries < 0 {
		return Campaign{}, fmt.Errorf("%w: max_retries must be >= 0", ErrValidation)
	}
	if patch.RetryIntervalMinutes != nil && *patch.RetryIntervalMinutes < 1 {
		return Campaign{}, fmt.Errorf("%w: retry_interval_minutes must be >= 1", ErrValidation)
	}
	return s.repo.Update(ctx, tenantID, id, patch, s.clock().UTC())
}

func (s *Service) Get(ctx context.Context, tenantID, id string) (Campaign, error) {
	if tenantID == "" || id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	return s.repo.Get(ctx, tenantID, id)
}

func (s *Service) List(ctx context.Context, tenantID string) ([]Campaign, error) {
	if tenantID == "" {
		return nil, ErrInvalidArgument
	}
	return s.repo.List(ctx, tenantID)
}

func (s *Service) transition(ctx context.Context, tenantID, id string, from []Status, to Status) (Campaign, error) {
	if tenantID == "" || id == "" {
		return Campaign{}, ErrInvalidArgument
	}
	c, ok, err := s.repo.UpdateStatus(ctx, tenantID, id, from, to, s.clock().UTC())
	if err != nil {
		return Campaign{}, err
	}
	if ok {
		return c, nil
	}
	// Distinguish a missing campaign from a guard miss so the API can
	// report 404 vs 409.
	if _, err := s.repo.Get(ctx, tenantID, id); err != nil {
		return Campaign{}, err
	}
	return Campaign{}, ErrConflict
}

func validateWindow(first, last, tz string) error {
	f, err := parseClock(first)
	if err != nil {
		return fmt.Errorf("%w: first_call_time must be HH:MM", ErrValidation)
	}
	l, err := parseClock(last)
	if err != nil {
		return fmt.Errorf("%w: last_call_time must be HH:MM", ErrValidation)
	}
	if l < f {
		return fmt.Errorf("%w: last_call_time is before first_call_time", ErrValidation)
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrValidation, tz)
	}
	return nil
}

func validateRetryPolicy(maxRetries, intervalMinutes int) error {
	if maxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be >= 0", ErrValidation)
	}
	if intervalMinutes < 1 {
		return fmt.Errorf("%w: retry_interval_minutes must be >= 1", ErrValidation)
	}
	return nil
}
