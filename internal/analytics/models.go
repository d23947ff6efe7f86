package analytics

// CampaignAnalyticsRequest asks for derived metrics of one campaign.
// Tenant isolation: TenantID is required.
type CampaignAnalyticsRequest struct {
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`
}

// CampaignAnalytics holds the derived campaign metrics. All rates are
// percentages in [0, 100] and are 0 when their denominator is 0 — never
// NaN or Inf.
type CampaignAnalytics struct {
	TenantID   string `json:"tenant_id"`
	CampaignID string `json:"campaign_id"`

	TotalContacts int `json:"total_contacts"`

	// HandledCalls counts calls with any terminal outcome — completed,
	// no-answer, busy, failed or disconnected — not only successes.
	HandledCalls   int `json:"handled_calls"`
	AttemptedCalls int `json:"attempted_calls"`
	ContactedCalls int `json:"contacted_calls"`

	CompletedCalls  int `json:"completed_calls"`
	SuccessfulCalls int `json:"successful_calls"`
	FailedCalls     int `json:"failed_calls"`

	QueuedJobs     int `json:"queued_jobs"`
	ProcessingJobs int `json:"processing_jobs"`

	ProgressPercentage float64 `json:"progress_percentage"`
	CallConnectionRate float64 `json:"call_connection_rate"`
	SuccessRate        float64 `json:"success_rate"`

	// AverageDurationSeconds is computed only over calls whose status is
	// exactly completed; unanswered calls are excluded, not zero-padded.
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}
