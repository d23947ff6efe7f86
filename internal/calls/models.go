package calls

import "time"

// Call is the durable record of one call attempt, owned by the telephony
// collaborator and written by its lifecycle webhook. This service reads
// call rows for analytics; it never mutates them.
//
// Multi-tenant invariant: TenantID is required on every row.
type Call struct {
	ID         string `json:"id" db:"id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`

	JobID     string `json:"job_id,omitempty" db:"job_id"`
	AgentID   string `json:"agent_id" db:"agent_id"`
	ContactID string `json:"contact_id" db:"contact_id"`

	PhoneNumber string `json:"phone_number" db:"phone_number"`

	Status Status `json:"status" db:"status"`

	// DurationSeconds is only meaningful for answered calls.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Status string

const (
	StatusInitiated    Status = "initiated"
	StatusRinging      Status = "ringing"
	StatusInProgress   Status = "in_progress"
	StatusCompleted    Status = "completed"
	StatusNoAnswer     Status = "no_answer"
	StatusBusy         Status = "busy"
	StatusFailed       Status = "failed"
	StatusDisconnected Status = "disconnected"
)

// Handled reports whether the call reached any terminal outcome — a
// superset of successful.
func (s Status) Handled() bool {
	switch s {
	case StatusCompleted, StatusNoAnswer, StatusBusy, StatusFailed, StatusDisconnected:
		return true
	default:
		return false
	}
}

// Attempted excludes calls still in the pre-dial initiated state.
func (s Status) Attempted() bool {
	return s != StatusInitiated
}

// Contacted reports whether the call was answered by anyone.
func (s Status) Contacted() bool {
	switch s {
	case StatusInProgress, StatusCompleted, StatusDisconnected:
		return true
	default:
		return false
	}
}
