package queue

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dialer-platform/pkg/utils"
)

// Repository is the persistence contract for the call queue.
//
// IMPORTANT:
// - Every method must enforce tenant filtering.
// - Claim, Release, Cancel and Finish are guarded conditional updates:
//   the status check and the transition happen in one statement, so
//   concurrent claimers and cancellers compete for the same guard and
//   exactly one wins.
type Repository interface {
	Insert(ctx context.Context, job CallJob) (CallJob, error)
	InsertBatch(ctx context.Context, jobs []CallJob) ([]CallJob, error)
	Get(ctx context.Context, tenantID, jobID string) (CallJob, error)
	Update(ctx context.Context, tenantID, jobID string, patch JobPatch) (CallJob, error)

	// ListClaimable returns queued jobs whose scheduled_for has passed,
	// ordered priority DESC, position ASC, created_at ASC. Campaign-level
	// gating (active status, time window) is the admission controller's
	// job; the repository only knows about rows.
	ListClaimable(ctx context.Context, tenantID string, now time.Time, limit int) ([]CallJob, error)

	// Claim transitions queued -> processing. ok=false means the guard
	// lost a race (already claimed, cancelled, or gone) — a normal
	// outcome, not an error.
	Claim(ctx context.Context, tenantID, jobID string, now time.Time) (CallJob, bool, error)

	// Release returns a processing job to queued, clearing its trace.
	Release(ctx context.Context, tenantID, jobID string) (bool, error)

	// AttachCall records the external call id on a processing job.
	AttachCall(ctx context.Context, tenantID, jobID, callID string) error

	// Finish removes a processing job on its terminal transition and
	// returns the removed row.
	Finish(ctx context.Context, tenantID, jobID string) (CallJob, bool, error)

	// Cancel removes a job while it is still queued. A job that has
	// already been claimed is left to finish normally.
	Cancel(ctx context.Context, tenantID, jobID string) (bool, error)
	CancelByCampaign(ctx context.Context, tenantID, campaignID string) (int64, error)

	CountQueuedByCampaign(ctx context.Context, tenantID, campaignID string) (int, error)
	CountOpenByCampaign(ctx context.Context, tenantID, campaignID string) (int, error)
	CountProcessingByCampaign(ctx context.Context, tenantID, campaignID string) (int, error)
	CountProcessingByTenant(ctx context.Context, tenantID string) (int, error)
	CountProcessingTotal(ctx context.Context) (int, error)

	// ListProcessing feeds the lease reaper.
	ListProcessing(ctx context.Context, limit int) ([]CallJob, error)
}

// PostgresRepo implements Repository on database/sql.
//
// Assumed schema:
//
//	CREATE TABLE call_jobs (
//	    id             UUID PRIMARY KEY,
//	    tenant_id      UUID NOT NULL,
//	    lane           TEXT NOT NULL,
//	    campaign_id    UUID,
//	    agent_id       UUID NOT NULL,
//	    contact_id     UUID NOT NULL,
//	    phone_number   TEXT NOT NULL,
//	    contact_name   TEXT NOT NULL DEFAULT '',
//	    user_data      TEXT NOT NULL DEFAULT '',
//	    priority       INT NOT NULL DEFAULT 0,
//	    position       BIGINT NOT NULL DEFAULT nextval('call_jobs_position_seq'),
//	    scheduled_for  TIMESTAMPTZ NOT NULL,
//	    retry_count    INT NOT NULL DEFAULT 0,
//	    status         TEXT NOT NULL DEFAULT 'queued',
//	    started_at     TIMESTAMPTZ,
//	    call_id        UUID,
//	    failure_reason TEXT NOT NULL DEFAULT '',
//	    created_at     TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX idx_call_jobs_claim ON call_jobs (tenant_id, status, scheduled_for, priority DESC, position);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const jobColumns = `
id, tenant_id, lane, campaign_id, agent_id, contact_id, phone_number, contact_name,
user_data, priority, position, scheduled_for, retry_count, status, started_at,
call_id, failure_reason, created_at`

func scanJob(row interface {
	Scan(dest ...any) error
}) (CallJob, error) {
	var j CallJob
	var campaignID, callID sql.NullString
	var startedAt sql.NullTime
	if err := row.Scan(
		&j.ID,
		&j.TenantID,
		&j.Lane,
		&campaignID,
		&j.AgentID,
		&j.ContactID,
		&j.PhoneNumber,
		&j.ContactName,
		&j.UserData,
		&j.Priority,
		&j.Position,
		&j.ScheduledFor,
		&j.RetryCount,
		&j.Status,
		&startedAt,
		&callID,
		&j.FailureReason,
		&j.CreatedAt,
	); err != nil {
		return CallJob{}, err
	}
	if campaignID.Valid {
		j.CampaignID = campaignID.String
	}
	if callID.Valid {
		j.CallID = callID.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	return j, nil
}

func nullStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (r *PostgresRepo) Insert(ctx context.Context, job CallJob) (CallJob, error) {
	const q = `
INSERT INTO call_jobs (
  id, tenant_id, lane, campaign_id, agent_id, contact_id, phone_number, contact_name,
  user_data, priority, scheduled_for, retry_count, status, failure_reason, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
RETURNING ` + jobColumns
	row := r.db.QueryRowContext(ctx, q,
		job.ID,
		job.TenantID,
		job.Lane,
		nullStr(job.CampaignID),
		job.AgentID,
		job.ContactID,
		job.PhoneNumber,
		job.ContactName,
		job.UserData,
		job.Priority,
		job.ScheduledFor,
		job.RetryCount,
		JobStatusQueued,
		"",
		job.CreatedAt,
	)
	return scanJob(row)
}

func (r *PostgresRepo) InsertBatch(ctx context.Context, jobs []CallJob) ([]CallJob, error) {
	if len(jobs) == 0 {
		return nil, nil
	}
	out := make([]CallJob, 0, len(jobs))
	err := utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		const q = `
INSERT INTO call_jobs (
  id, tenant_id, lane, campaign_id, agent_id, contact_id, phone_number, contact_name,
  user_data, priority, scheduled_for, retry_count, status, failure_reason, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15
)
RETURNING ` + jobColumns
		for _, job := range jobs {
			row := tx.QueryRowContext(ctx, q,
				job.ID,
				job.TenantID,
				job.Lane,
				nullStr(job.CampaignID),
				job.AgentID,
				job.ContactID,
				job.PhoneNumber,
				job.ContactName,
				job.UserData,
				job.Priority,
				job.ScheduledFor,
				job.RetryCount,
				JobStatusQueued,
				"",
				job.CreatedAt,
			)
			inserted, err := scanJob(row)
			if err != nil {
				return err
			}
			out = append(out, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, jobID string) (CallJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM call_jobs
WHERE tenant_id = $1 AND id = $2`
	j, err := scanJob(r.db.QueryRowContext(ctx, q, tenantID, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return CallJob{}, ErrNotFound
	}
	return j, err
}

func (r *PostgresRepo) Update(ctx context.Context, tenantID, jobID string, patch JobPatch) (CallJob, error) {
	// Sparse update: NULL params keep the current value. The patch shape,
	// not ad hoc SQL assembly, is the update contract.
	const q = `
UPDATE call_jobs SET
  agent_id      = COALESCE($3, agent_id),
  phone_number  = COALESCE($4, phone_number),
  contact_name  = COALESCE($5, contact_name),
  user_data     = COALESCE($6, user_data),
  priority      = COALESCE($7, priority),
  scheduled_for = COALESCE($8, scheduled_for)
WHERE tenant_id = $1 AND id = $2 AND status = 'queued'
RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, q, tenantID, jobID,
		patch.AgentID, patch.PhoneNumber, patch.ContactName, patch.UserData,
		patch.Priority, patch.ScheduledFor))
	if errors.Is(err, sql.ErrNoRows) {
		return CallJob{}, ErrNotFound
	}
	return j, err
}

func (r *PostgresRepo) ListClaimable(ctx context.Context, tenantID string, now time.Time, limit int) ([]CallJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM call_jobs
WHERE tenant_id = $1 AND status = 'queued' AND scheduled_for <= $2
ORDER BY priority DESC, position ASC, created_at ASC
LIMIT $3`
	rows, err := r.db.QueryContext(ctx, q, tenantID, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Claim(ctx context.Context, tenantID, jobID string, now time.Time) (CallJob, bool, error) {
	// Guarded transition: the WHERE clause is the only thing standing
	// between two concurrent claimers, so it must carry the status check.
	const q = `
UPDATE call_jobs
SET status = 'processing', started_at = $3
WHERE tenant_id = $1 AND id = $2 AND status = 'queued' AND scheduled_for <= $3
RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, q, tenantID, jobID, now))
	if errors.Is(err, sql.ErrNoRows) {
		// Lost the race; the caller moves on to the next candidate.
		return CallJob{}, false, nil
	}
	if err != nil {
		return CallJob{}, false, err
	}
	return j, true, nil
}

func (r *PostgresRepo) Release(ctx context.Context, tenantID, jobID string) (bool, error) {
	const q = `
UPDATE call_jobs
SET status = 'queued', started_at = NULL, call_id = NULL
WHERE tenant_id = $1 AND id = $2 AND status = 'processing'`
	res, err := r.db.ExecContext(ctx, q, tenantID, jobID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepo) AttachCall(ctx context.Context, tenantID, jobID, callID string) error {
	const q = `
UPDATE call_jobs
SET call_id = $3
WHERE tenant_id = $1 AND id = $2 AND status = 'processing'`
	res, err := r.db.ExecContext(ctx, q, tenantID, jobID, callID)
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

func (r *PostgresRepo) Finish(ctx context.Context, tenantID, jobID string) (CallJob, bool, error) {
	// Terminal transition deletes the row; history lives in the calls table.
	const q = `
DELETE FROM call_jobs
WHERE tenant_id = $1 AND id = $2 AND status = 'processing'
RETURNING ` + jobColumns
	j, err := scanJob(r.db.QueryRowContext(ctx, q, tenantID, jobID))
	if errors.Is(err, sql.ErrNoRows) {
		return CallJob{}, false, nil
	}
	if err != nil {
		return CallJob{}, false, err
	}
	return j, true, nil
}

func (r *PostgresRepo) Cancel(ctx context.Context, tenantID, jobID string) (bool, error) {
	// Competes with Claim on the same status guard; exactly one wins.
	const q = `
DELETE FROM call_jobs
WHERE tenant_id = $1 AND id = $2 AND status = 'queued'`
	res, err := r.db.ExecContext(ctx, q, tenantID, jobID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *PostgresRepo) CancelByCampaign(ctx context.Context, tenantID, campaignID string) (int64, error) {
	const q = `
DELETE FROM call_jobs
WHERE tenant_id = $1 AND campaign_id = $2 AND status = 'queued'`
	res, err := r.db.ExecContext(ctx, q, tenantID, campaignID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *PostgresRepo) CountQueuedByCampaign(ctx context.Context, tenantID, campaignID string) (int, error) {
	const q = `
SELECT COUNT(*) FROM call_jobs
WHERE tenant_id = $1 AND campaign_id = $2 AND status = 'queued'`
	return r.count(ctx, q, tenantID, campaignID)
}

func (r *PostgresRepo) CountOpenByCampaign(ctx context.Context, tenantID, campaignID string) (int, error) {
	const q = `
SELECT COUNT(*) FROM call_jobs
WHERE tenant_id = $1 AND campaign_id = $2 AND status IN ('queued', 'processing')`
	return r.count(ctx, q, tenantID, campaignID)
}

func (r *PostgresRepo) CountProcessingByCampaign(ctx context.Context, tenantID, campaignID string) (int, error) {
	const q = `
SELECT COUNT(*) FROM call_jobs
WHERE tenant_id = $1 AND campaign_id = $2 AND status = 'processing'`
	return r.count(ctx, q, tenantID, campaignID)
}

func (r *PostgresRepo) CountProcessingByTenant(ctx context.Context, tenantID string) (int, error) {
	// In-flight counts are always live aggregates over processing rows;
	// a cached counter would drift.
	const q = `
SELECT COUNT(*) FROM call_jobs
WHERE tenant_id = $1 AND status = 'processing'`
	return r.count(ctx, q, tenantID)
}

func (r *PostgresRepo) CountProcessingTotal(ctx context.Context) (int, error) {
	const q = `SELECT COUNT(*) FROM call_jobs WHERE status = 'processing'`
	return r.count(ctx, q)
}

func (r *PostgresRepo) ListProcessing(ctx context.Context, limit int) ([]CallJob, error) {
	const q = `
SELECT ` + jobColumns + `
FROM call_jobs
WHERE status = 'processing'
ORDER BY started_at ASC
LIMIT $1`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CallJob
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) count(ctx context.Context, q string, args ...any) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, q, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
