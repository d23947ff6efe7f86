package queue

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
// All guarded transitions take the same mutex, which gives the same
// exactly-one-winner semantics the SQL guards give in Postgres.
type MemoryRepo struct {
	mu      sync.Mutex
	jobs    map[string]CallJob
	nextPos int64
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{jobs: map[string]CallJob{}, nextPos: 1}
}

func (r *MemoryRepo) Insert(ctx context.Context, job CallJob) (CallJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.insertLocked(job), nil
}

func (r *MemoryRepo) InsertBatch(ctx context.Context, jobs []CallJob) ([]CallJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]CallJob, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, r.insertLocked(j))
	}
	return out, nil
}

func (r *MemoryRepo) insertLocked(job CallJob) CallJob {
	job.Status = JobStatusQueued
	job.Position = r.nextPos
	r.nextPos++
	r.jobs[job.ID] = job
	return job
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, jobID string) (CallJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.TenantID != tenantID {
		return CallJob{}, ErrNotFound
	}
	return j, nil
}

func (r *MemoryRepo) Update(ctx context.Context, tenantID, jobID string, patch JobPatch) (CallJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.TenantID != tenantID || j.Status != JobStatusQueued {
		return CallJob{}, ErrNotFound
	}
	if patch.AgentID != nil {
		j.AgentID = *patch.AgentID
	}
	if patch.PhoneNumber != nil {
		j.PhoneNumber = *patch.PhoneNumber
	}
	if patch.ContactName != nil {
		j.ContactName = *patch.ContactName
	}
	if patch.UserData != nil {
		j.UserData = *patch.UserData
	}
	if patch.Priority != nil {
		j.Priority = *patch.Priority
	}
	if patch.ScheduledFor != nil {
		j.ScheduledFor = *patch.ScheduledFor
	}
	r.jobs[jobID] = j
	return j, nil
}

func (r *MemoryRepo) ListClaimable(ctx context.Context, tenantID string, now time.Time, limit int) ([]CallJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallJob
	for _, j := range r.jobs {
		if j.TenantID != tenantID || j.Status != JobStatusQueued {
			continue
		}
		if j.ScheduledFor.After(now) {
			continue
		}
		out = append(out, j)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Priority != out[b].Priority {
			return out[a].Priority > out[b].Priority
		}
		if out[a].Position != out[b].Position {
			return out[a].Position < out[b].Position
		}
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) Claim(ctx context.Context, tenantID, jobID string, now time.Time) (CallJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.TenantID != tenantID || j.Status != JobStatusQueued || j.ScheduledFor.After(now) {
		return CallJob{}, false, nil
	}
	j.Status = JobStatusProcessing
	t := now
	j.StartedAt = &t
	r.jobs[jobID] = j
	return j, true, nil
}

func (r *MemoryRepo) Release(ctx context.Context, tenantID, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.TenantID != tenantID || j.Status != JobStatusProcessing {
		return false, nil
	}
	j.Status = JobStatusQueued
	j.StartedAt = nil
	j.CallID = ""
	r.jobs[jobID] = j
	return true, nil
}

func (r *MemoryRepo) AttachCall(ctx context.Context, tenantID, jobID, callID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.TenantID != tenantID || j.Status != JobStatusProcessing {
		return ErrNotFound
	}
	j.CallID = callID
	r.jobs[jobID] = j
	return nil
}

func (r *MemoryRepo) Finish(ctx context.Context, tenantID, jobID string) (CallJob, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.TenantID != tenantID || j.Status != JobStatusProcessing {
		return CallJob{}, false, nil
	}
	delete(r.jobs, jobID)
	return j, true, nil
}

func (r *MemoryRepo) Cancel(ctx context.Context, tenantID, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[jobID]
	if !ok || j.TenantID != tenantID || j.Status != JobStatusQueued {
		return false, nil
	}
	delete(r.jobs, jobID)
	return true, nil
}

func (r *MemoryRepo) CancelByCampaign(ctx context.Context, tenantID, campaignID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, j := range r.jobs {
		if j.TenantID == tenantID && j.CampaignID == campaignID && j.Status == JobStatusQueued {
			delete(r.jobs, id)
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) CountQueuedByCampaign(ctx context.Context, tenantID, campaignID string) (int, error) {
	return r.countWhere(func(j CallJob) bool {
		return j.TenantID == tenantID && j.CampaignID == campaignID && j.Status == JobStatusQueued
	}), nil
}

func (r *MemoryRepo) CountOpenByCampaign(ctx context.Context, tenantID, campaignID string) (int, error) {
	return r.countWhere(func(j CallJob) bool {
		return j.TenantID == tenantID && j.CampaignID == campaignID &&
			(j.Status == JobStatusQueued || j.Status == JobStatusProcessing)
	}), nil
}

func (r *MemoryRepo) CountProcessingByCampaign(ctx context.Context, tenantID, campaignID string) (int, error) {
	return r.countWhere(func(j CallJob) bool {
		return j.TenantID == tenantID && j.CampaignID == campaignID && j.Status == JobStatusProcessing
	}), nil
}

func (r *MemoryRepo) CountProcessingByTenant(ctx context.Context, tenantID string) (int, error) {
	return r.countWhere(func(j CallJob) bool {
		return j.TenantID == tenantID && j.Status == JobStatusProcessing
	}), nil
}

func (r *MemoryRepo) CountProcessingTotal(ctx context.Context) (int, error) {
	return r.countWhere(func(j CallJob) bool {
		return j.Status == JobStatusProcessing
	}), nil
}

func (r *MemoryRepo) ListProcessing(ctx context.Context, limit int) ([]CallJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []CallJob
	for _, j := range r.jobs {
		if j.Status == JobStatusProcessing {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		at, bt := out[a].StartedAt, out[b].StartedAt
		if at == nil || bt == nil {
			return bt == nil
		}
		return at.Before(*bt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) countWhere(match func(CallJob) bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, j := range r.jobs {
		if match(j) {
			n++
		}
	}
	return n
}
