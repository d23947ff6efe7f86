package campaign

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Repository is the persistence contract for campaigns.
//
// IMPORTANT:
// - Every method must enforce tenant filtering.
// - UpdateStatus is a guarded conditional update: the allowed source
//   states travel in the WHERE clause, so concurrent lifecycle calls
//   cannot both win.
type Repository interface {
	Create(ctx context.Context, c Campaign) error
	Get(ctx context.Context, tenantID, id string) (Campaign, error)
	List(ctx context.Context, tenantID string) ([]Campaign, error)
	Update(ctx context.Context, tenantID, id string, patch Patch, now time.Time) (Campaign, error)

	// UpdateStatus transitions the campaign if its current status is one
	// of from. ok=false means the guard did not match.
	UpdateStatus(ctx context.Context, tenantID, id string, from []Status, to Status, now time.Time) (Campaign, bool, error)

	// ApplyCounters performs one atomic increment of the campaign counters.
	ApplyCounters(ctx context.Context, tenantID, id string, d CounterDelta) error

	// MarkDispatched stamps last_dispatched_at on a claim.
	MarkDispatched(ctx context.Context, tenantID, id string, at time.Time) error

	Delete(ctx context.Context, tenantID, id string) (bool, error)
}

// PostgresRepo implements Repository on database/sql.
//
// Assumed schema:
//
//	CREATE TABLE campaigns (
//	    id                     UUID PRIMARY KEY,
//	    tenant_id              UUID NOT NULL,
//	    name                   TEXT NOT NULL,
//	    agent_id               UUID NOT NULL,
//	    status                 TEXT NOT NULL,
//	    first_call_time        TEXT NOT NULL,
//	    last_call_time         TEXT NOT NULL,
//	    timezone               TEXT NOT NULL,
//	    start_date             DATE,
//	    end_date               DATE,
//	    max_retries            INT NOT NULL DEFAULT 0,
//	    retry_interval_minutes INT NOT NULL DEFAULT 30,
//	    priority               INT NOT NULL DEFAULT 0,
//	    max_concurrent_calls   INT NOT NULL DEFAULT 1,
//	    total_contacts         INT NOT NULL DEFAULT 0,
//	    completed_calls        INT NOT NULL DEFAULT 0,
//	    successful_calls       INT NOT NULL DEFAULT 0,
//	    failed_calls           INT NOT NULL DEFAULT 0,
//	    started_at             TIMESTAMPTZ,
//	    completed_at           TIMESTAMPTZ,
//	    last_dispatched_at     TIMESTAMPTZ,
//	    created_at             TIMESTAMPTZ NOT NULL,
//	    updated_at             TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_campaigns_tenant ON campaigns (tenant_id, status);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const campaignColumns = `
id, tenant_id, name, agent_id, status, first_call_time, last_call_time, timezone,
start_date, end_date, max_retries, retry_interval_minutes, priority,
max_concurrent_calls, total_contacts, completed_calls, successful_calls,
failed_calls, started_at, completed_at, last_dispatched_at, created_at, updated_at`

func scanCampaign(row interface {
	Scan(dest ...any) error
}) (Campaign, error) {
	var c Campaign
	var startDate, endDate, startedAt, completedAt, lastDispatchedAt sql.NullTime
	if err := row.Scan(
		&c.ID,
		&c.TenantID,
		&c.Name,
		&c.AgentID,
		&c.Status,
		&c.FirstCallTime,
		&c.LastCallTime,
		&c.Timezone,
		&startDate,
		&endDate,
		&c.MaxRetries,
		&c.RetryIntervalMinutes,
		&c.Priority,
		&c.MaxConcurrentCalls,
		&c.TotalContacts,
		&c.CompletedCalls,
		&c.SuccessfulCalls,
		&c.FailedCalls,
		&startedAt,
		&completedAt,
		&lastDispatchedAt,
		&c.CreatedAt,
		&c.UpdatedAt,
	); err != nil {
		return Campaign{}, err
	}
	c.StartDate = timePtr(startDate)
	c.EndDate = timePtr(endDate)
	c.StartedAt = timePtr(startedAt)
	c.CompletedAt = timePtr(completedAt)
	c.LastDispatchedAt = timePtr(lastDispatchedAt)
	return c, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func (r *PostgresRepo) Create(ctx context.Context, c Campaign) error {
	const q = `
INSERT INTO campaigns (
  id, tenant_id, name, agent_id, status, first_call_time, last_call_time, timezone,
  start_date, end_date, max_retries, retry_interval_minutes, priority,
  max_concurrent_calls, total_contacts, completed_calls, successful_calls,
  failed_calls, started_at, completed_at, last_dispatched_at, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23
)`
	_, err := r.db.ExecContext(ctx, q,
		c.ID, c.TenantID, c.Name, c.AgentID, c.Status,
		c.FirstCallTime, c.LastCallTime, c.Timezone,
		c.StartDate, c.EndDate,
		c.MaxRetries, c.RetryIntervalMinutes, c.Priority, c.MaxConcurrentCalls,
		c.TotalContacts, c.CompletedCalls, c.SuccessfulCalls, c.FailedCalls,
		c.StartedAt, c.CompletedAt, c.LastDispatchedAt,
		c.CreatedAt, c.UpdatedAt,
	)
	return err
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, id string) (Campaign, error) {
	const q = `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE tenant_id = $1 AND id = $2`
	c, err := scanCampaign(r.db.QueryRowContext(ctx, q, tenantID, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) List(ctx context.Context, tenantID string) ([]Campaign, error) {
	const q = `
SELECT ` + campaignColumns + `
FROM campaigns
WHERE tenant_id = $1
ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, q, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Update(ctx context.Context, tenantID, id string, patch Patch, now time.Time) (Campaign, error) {
	// Sparse update: NULL params keep the current value.
	const q = `
UPDATE campaigns SET
  name                   = COALESCE($3, name),
  agent_id               = COALESCE($4, agent_id),
  first_call_time        = COALESCE($5, first_call_time),
  last_call_time         = COALESCE($6, last_call_time),
  timezone               = COALESCE($7, timezone),
  start_date             = COALESCE($8, start_date),
  end_date               = COALESCE($9, end_date),
  max_retries            = COALESCE($10, max_retries),
  retry_interval_minutes = COALESCE($11, retry_interval_minutes),
  priority               = COALESCE($12, priority),
  max_concurrent_calls   = COALESCE($13, max_concurrent_calls),
  updated_at             = $14
WHERE tenant_id = $1 AND id = $2
RETURNING ` + campaignColumns
	c, err := scanCampaign(r.db.QueryRowContext(ctx, q, tenantID, id,
		patch.Name, patch.AgentID, patch.FirstCallTime, patch.LastCallTime,
		patch.Timezone, patch.StartDate, patch.EndDate, patch.MaxRetries,
		patch.RetryIntervalMinutes, patch.Priority, patch.MaxConcurrentCalls, now))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, ErrNotFound
	}
	return c, err
}

func (r *PostgresRepo) UpdateStatus(ctx context.Context, tenantID, id string, from []Status, to Status, now time.Time) (Campaign, bool, error) {
	const q = `
UPDATE campaigns
SET status = $3,
    updated_at = $4,
    started_at = CASE WHEN $3 = 'active' AND started_at IS NULL THEN $4 ELSE started_at END,
    completed_at = CASE WHEN $3 IN ('completed', 'cancelled') THEN $4 ELSE completed_at END
WHERE tenant_id = $1 AND id = $2 AND status = ANY($5)
RETURNING ` + campaignColumns
	states := make([]string, len(from))
	for i, s := range from {
		states[i] = string(s)
	}
	c, err := scanCampaign(r.db.QueryRowContext(ctx, q, tenantID, id, to, now, states))
	if errors.Is(err, sql.ErrNoRows) {
		return Campaign{}, false, nil
	}
	if err != nil {
		return Campaign{}, false, err
	}
	return c, true, nil
}

func (r *PostgresRepo) ApplyCounters(ctx context.Context, tenantID, id string, d CounterDelta) error {
	const q = `
UPDATE campaigns SET
  total_contacts   = total_contacts + $3,
  completed_calls  = completed_calls + $4,
  successful_calls = successful_calls + $5,
  failed_calls     = failed_calls + $6
WHERE tenant_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, tenantID, id,
		d.TotalContacts, d.CompletedCalls, d.SuccessfulCalls, d.FailedCalls)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) MarkDispatched(ctx context.Context, tenantID, id string, at time.Time) error {
	const q = `
UPDATE campaigns SET last_dispatched_at = $3
WHERE tenant_id = $1 AND id = $2`
	_, err := r.db.ExecContext(ctx, q, tenantID, id, at)
	return err
}

func (r *PostgresRepo) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	const q = `DELETE FROM campaigns WHERE tenant_id = $1 AND id = $2`
	res, err := r.db.ExecContext(ctx, q, tenantID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
