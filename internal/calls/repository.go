package calls

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

var ErrNotFound = errors.New("calls: not found")

// Repository reads call history. The calls table is written by the
// telephony webhook pipeline; this side is read-only by design.
type Repository interface {
	ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]Call, error)
	Get(ctx context.Context, tenantID, callID string) (Call, error)
}

// PostgresRepo reads the calls table.
//
// Assumed schema (owned by the telephony collaborator):
//
//	CREATE TABLE calls (
//	    id               UUID PRIMARY KEY,
//	    tenant_id        UUID NOT NULL,
//	    campaign_id      UUID,
//	    job_id           UUID,
//	    agent_id         UUID NOT NULL,
//	    contact_id       UUID NOT NULL,
//	    phone_number     TEXT NOT NULL,
//	    status           TEXT NOT NULL,
//	    duration_seconds INT NOT NULL DEFAULT 0,
//	    created_at       TIMESTAMPTZ NOT NULL
//	);
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const callColumns = `
id, tenant_id, campaign_id, job_id, agent_id, contact_id, phone_number, status,
duration_seconds, created_at`

func scanCall(row interface {
	Scan(dest ...any) error
}) (Call, error) {
	var c Call
	var campaignID, jobID sql.NullString
	if err := row.Scan(
		&c.ID,
		&c.TenantID,
		&campaignID,
		&jobID,
		&c.AgentID,
		&c.ContactID,
		&c.PhoneNumber,
		&c.Status,
		&c.DurationSeconds,
		&c.CreatedAt,
	); err != nil {
		return Call{}, err
	}
	if campaignID.Valid {
		c.CampaignID = campaignID.String
	}
	if jobID.Valid {
		c.JobID = jobID.String
	}
	return c, nil
}

func (r *PostgresRepo) ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]Call, error) {
	const q = `
SELECT ` + callColumns + `
FROM calls
WHERE tenant_id = $1 AND campaign_id = $2
ORDER BY created_at ASC`
	rows, err := r.db.QueryContext(ctx, q, tenantID, campaignID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Get(ctx context.Context, tenantID, callID string) (Call, error) {
	const q = `
SELECT ` + callColumns + `
FROM calls
WHERE tenant_id = $1 AND id = $2`
	c, err := scanCall(r.db.QueryRowContext(ctx, q, tenantID, callID))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

// MemoryRepo is an in-memory Repository for tests.
type MemoryRepo struct {
	mu    sync.Mutex
	Calls []Call
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) ListByCampaign(ctx context.Context, tenantID, campaignID string) ([]Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Call
	for _, c := range r.Calls {
		if c.TenantID == tenantID && c.CampaignID == campaignID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, callID string) (Call, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.Calls {
		if c.TenantID == tenantID && c.ID == callID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}
