package queue

import "time"

// CallJob is one pending or in-flight "call this contact" unit of work.
//
// Multi-tenant invariant: TenantID is required on every row.
//
// Lifecycle invariant: status only moves forward
// (queued -> processing -> completed|failed|cancelled), and any terminal
// transition deletes the row. The queue holds no history; durable call
// outcomes live in the calls table.
//
// Direct-lane and campaign-lane jobs share one table with a lane
// discriminant. The only behavioral differences are data: direct jobs are
// created at DirectLanePriority and carry no campaign linkage.
type CallJob struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`

	Lane       Lane   `json:"lane" db:"lane"`
	CampaignID string `json:"campaign_id,omitempty" db:"campaign_id"`

	AgentID     string `json:"agent_id" db:"agent_id"`
	ContactID   string `json:"contact_id" db:"contact_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`
	ContactName string `json:"contact_name,omitempty" db:"contact_name"`

	// UserData is an opaque payload handed verbatim to the external caller.
	UserData string `json:"user_data,omitempty" db:"user_data"`

	// Priority orders dispatch (higher first). Position breaks ties within
	// a priority band, then created_at.
	Priority int   `json:"priority" db:"priority"`
	Position int64 `json:"position" db:"position"`

	// ScheduledFor is the earliest eligible dispatch time.
	ScheduledFor time.Time `json:"scheduled_for" db:"scheduled_for"`

	// RetryCount is how many times this contact has already been retried
	// within its campaign's retry policy.
	RetryCount int `json:"retry_count" db:"retry_count"`

	Status JobStatus `json:"status" db:"status"`

	StartedAt     *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty" db:"completed_at"`
	CallID        string     `json:"call_id,omitempty" db:"call_id"`
	FailureReason string     `json:"failure_reason,omitempty" db:"failure_reason"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type Lane string

const (
	LaneDirect   Lane = "direct"
	LaneCampaign Lane = "campaign"
)

type JobStatus string

const (
	JobStatusQueued     JobStatus = "queued"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusSkipped    JobStatus = "skipped"
)

// DirectLanePriority outranks the campaign-lane default (0). Cross-lane
// ordering is a single shared numeric space by policy: a campaign
// configured above 100 deliberately outranks ad hoc direct calls.
const DirectLanePriority = 100

func (l Lane) Valid() bool {
	return l == LaneDirect || l == LaneCampaign
}

// Terminal reports whether the status ends a job's life in the queue.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusSkipped:
		return true
	default:
		return false
	}
}

// JobPatch is a sparse update: only non-nil fields are applied.
// Mutations of status, position and execution-trace fields go through
// dedicated guarded repository operations, never through a patch.
type JobPatch struct {
	AgentID      *string
	PhoneNumber  *string
	ContactName  *string
	UserData     *string
	Priority     *int
	ScheduledFor *time.Time
}

// Empty reports whether the patch would change nothing.
func (p JobPatch) Empty() bool {
	return p.AgentID == nil &&
		p.PhoneNumber == nil &&
		p.ContactName == nil &&
		p.UserData == nil &&
		p.Priority == nil &&
		p.ScheduledFor == nil
}
