package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service logs internal audit information.
//
// IMPORTANT:
// - Audit is internal-only. Do not expose these records to tenant users by default.
// - Callers should treat audit logging as best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.TenantID == "" {
		return ErrInvalidEvent
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogCampaignTransition records a campaign lifecycle change and who asked
// for it.
func (s *Service) LogCampaignTransition(ctx context.Context, tenantID, actorUserID, actorRole, campaignID, transition string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeCampaignLifecycle,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		CampaignID:  campaignID,
		Message:     transition,
	})
}

// LogJobCancelled records the removal of a queued job.
func (s *Service) LogJobCancelled(ctx context.Context, tenantID, actorUserID, actorRole, jobID string) error {
	return s.Append(ctx, Event{
		TenantID:    tenantID,
		Type:        EventTypeJobCancelled,
		ActorUserID: actorUserID,
		ActorRole:   actorRole,
		JobID:       jobID,
		Message:     "job cancelled",
	})
}
