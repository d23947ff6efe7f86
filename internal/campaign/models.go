package campaign

import (
	"fmt"
	"time"
)

// Campaign is a tenant-scoped batch outbound-calling job: a contact list,
// an agent, a daily dispatch window, a retry policy, and counters.
//
// Counter invariant: total_contacts, completed_calls, successful_calls and
// failed_calls only grow (atomic SQL increments), except when the campaign
// itself is deleted.
type Campaign struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Name     string `json:"name" db:"name"`
	AgentID  string `json:"agent_id" db:"agent_id"`

	Status Status `json:"status" db:"status"`

	// FirstCallTime/LastCallTime are local clock times ("HH:MM") in
	// Timezone; jobs are only claimable while the local time is inside
	// [FirstCallTime, LastCallTime].
	FirstCallTime string `json:"first_call_time" db:"first_call_time"`
	LastCallTime  string `json:"last_call_time" db:"last_call_time"`
	Timezone      string `json:"timezone" db:"timezone"`

	StartDate *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate   *time.Time `json:"end_date,omitempty" db:"end_date"`

	// Retry policy.
	MaxRetries           int `json:"max_retries" db:"max_retries"`
	RetryIntervalMinutes int `json:"retry_interval_minutes" db:"retry_interval_minutes"`

	// Admission policy.
	Priority           int `json:"priority" db:"priority"`
	MaxConcurrentCalls int `json:"max_concurrent_calls" db:"max_concurrent_calls"`

	// Counters.
	TotalContacts   int `json:"total_contacts" db:"total_contacts"`
	CompletedCalls  int `json:"completed_calls" db:"completed_calls"`
	SuccessfulCalls int `json:"successful_calls" db:"successful_calls"`
	FailedCalls     int `json:"failed_calls" db:"failed_calls"`

	StartedAt   *time.Time `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`

	// LastDispatchedAt is stamped on every claim. It exists to feed a
	// round-robin allocator whose selection policy is not defined yet;
	// only the bookkeeping is implemented.
	LastDispatchedAt *time.Time `json:"last_dispatched_at,omitempty" db:"last_dispatched_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type Status string

const (
	StatusDraft     Status = "draft"
	StatusScheduled Status = "scheduled"
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// CanTransition encodes the legal state machine:
// draft/scheduled -> active <-> paused -> completed|cancelled.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusDraft, StatusScheduled:
		return to == StatusActive || to == StatusCancelled
	case StatusActive:
		return to == StatusPaused || to == StatusCompleted || to == StatusCancelled
	case StatusPaused:
		return to == StatusActive || to == StatusCompleted || to == StatusCancelled
	default:
		// completed and cancelled are terminal
		return false
	}
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// WindowOpen reports whether at falls inside the campaign's daily dispatch
// window, evaluated in the campaign's own timezone. The date range, when
// set, bounds the window to [StartDate, EndDate] (whole local days).
func (c Campaign) WindowOpen(at time.Time) (bool, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return false, fmt.Errorf("campaign %s: bad timezone %q: %w", c.ID, c.Timezone, err)
	}
	local := at.In(loc)

	if c.StartDate != nil {
		start := time.Date(c.StartDate.Year(), c.StartDate.Month(), c.StartDate.Day(), 0, 0, 0, 0, loc)
		if local.Before(start) {
			return false, nil
		}
	}
	if c.EndDate != nil {
		end := time.Date(c.EndDate.Year(), c.EndDate.Month(), c.EndDate.Day(), 0, 0, 0, 0, loc).AddDate(0, 0, 1)
		if !local.Before(end) {
			return false, nil
		}
	}

	first, err := parseClock(c.FirstCallTime)
	if err != nil {
		return false, fmt.Errorf("campaign %s: bad first_call_time: %w", c.ID, err)
	}
	last, err := parseClock(c.LastCallTime)
	if err != nil {
		return false, fmt.Errorf("campaign %s: bad last_call_time: %w", c.ID, err)
	}

	minutes := local.Hour()*60 + local.Minute()
	return minutes >= first && minutes <= last, nil
}

// parseClock converts "HH:MM" into minutes since midnight.
func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Patch is a sparse campaign update: only non-nil fields are applied.
// Status changes go through the lifecycle operations, never through a patch.
type Patch struct {
	Name                 *string
	AgentID              *string
	FirstCallTime        *string
	LastCallTime         *string
	Timezone             *string
	StartDate            *time.Time
	EndDate              *time.Time
	MaxRetries           *int
	RetryIntervalMinutes *int
	Priority             *int
	MaxConcurrentCalls   *int
}

func (p Patch) Empty() bool {
	return p.Name == nil &&
		p.AgentID == nil &&
		p.FirstCallTime == nil &&
		p.LastCallTime == nil &&
		p.Timezone == nil &&
		p.StartDate == nil &&
		p.EndDate == nil &&
		p.MaxRetries == nil &&
		p.RetryIntervalMinutes == nil &&
		p.Priority == nil &&
		p.MaxConcurrentCalls == nil
}

// CounterDelta is applied as a single atomic increment; read-modify-write
// of counters in application code loses updates under concurrency.
type CounterDelta struct {
	TotalContacts   int
	CompletedCalls  int
	SuccessfulCalls int
	FailedCalls     int
}
