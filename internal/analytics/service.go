package analytics

import (
	"context"
	"errors"

	"dialer-platform/internal/calls"
	"dialer-platform/internal/campaign"
)

var ErrInvalidRequest = errors.New("analytics: invalid request")

// CampaignSource is implemented by campaign.Repository.
type CampaignSource interface {
	Get(ctx context.Context, tenantID, id string) (campaign.Campaign, error)
}

// CallHistory is implemented by calls.Repository. Call rows are the
// authoritative terminal outcomes; the queue holds no history.
type CallHistory interface {
	ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]calls.Call, error)
}

// QueueCounts is implemented by queue.Repository.
type QueueCounts interface {
	CountQueuedByCampaign(ctx context.Context, tenantID, campaignID string) (int, error)
	CountProcessingByCampaign(ctx context.Context, tenantID, campaignID string) (int, error)
}

// Service derives progress, connection and success metrics from the queue
// and the external call history.
type Service struct {
	campaigns CampaignSource
	history   CallHistory
	jobs      QueueCounts
}

func NewService(campaigns CampaignSource, history CallHistory, jobs QueueCounts) *Service {
	return &Service{campaigns: campaigns, history: history, jobs: jobs}
}

func (s *Service) CampaignAnalytics(ctx context.Context, req CampaignAnalyticsRequest) (CampaignAnalytics, error) {
	if req.TenantID == "" || req.CampaignID == "" {
		return CampaignAnalytics{}, ErrInvalidRequest
	}

	camp, err := s.campaigns.Get(ctx, req.TenantID, req.CampaignID)
	if err != nil {
		return CampaignAnalytics{}, err
	}

	rows, err := s.history.ListByCampaign(ctx, req.TenantID, req.CampaignID)
	if err != nil {
		return CampaignAnalytics{}, err
	}

	out := CampaignAnalytics{
		TenantID:        req.TenantID,
		CampaignID:      req.CampaignID,
		TotalContacts:   camp.TotalContacts,
		CompletedCalls:  camp.CompletedCalls,
		SuccessfulCalls: camp.SuccessfulCalls,
		FailedCalls:     camp.FailedCalls,
	}

	completedCount := 0
	completedDuration := 0
	for _, c := range rows {
		if c.Status.Handled() {
			out.HandledCalls++
		}
		if c.Status.Attempted() {
			out.AttemptedCalls++
		}
		if c.Status.Contacted() {
			out.ContactedCalls++
		}
		if c.Status == calls.StatusCompleted {
			completedCount++
			completedDuration += c.DurationSeconds
		}
	}

	if s.jobs != nil {
		if n, err := s.jobs.CountQueuedByCampaign(ctx, req.TenantID, req.CampaignID); err == nil {
			out.QueuedJobs = n
		} else {
			return CampaignAnalytics{}, err
		}
		if n, err := s.jobs.CountProcessingByCampaign(ctx, req.TenantID, req.CampaignID); err == nil {
			out.ProcessingJobs = n
		} else {
			return CampaignAnalytics{}, err
		}
	}

	out.ProgressPercentage = ratio(out.HandledCalls, out.TotalContacts)
	out.CallConnectionRate = ratio(out.ContactedCalls, out.AttemptedCalls)
	out.SuccessRate = ratio(out.SuccessfulCalls, out.CompletedCalls)
	if completedCount > 0 {
		out.AverageDurationSeconds = float64(completedDuration) / float64(completedCount)
	}
	return out, nil
}

// ratio returns num/den as a percentage, 0 when den is 0.
func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den) * 100
}
