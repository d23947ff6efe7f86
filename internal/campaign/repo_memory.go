package campaign

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and early development.
// Guarded transitions hold the mutex across check and write, matching the
// single-statement guarantees of the Postgres implementation.
type MemoryRepo struct {
	mu        sync.Mutex
	campaigns map[string]Campaign
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{campaigns: map[string]Campaign{}}
}

func (r *MemoryRepo) Create(ctx context.Context, c Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.campaigns[c.ID] = c
	return nil
}

func (r *MemoryRepo) Get(ctx context.Context, tenantID, id string) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return Campaign{}, ErrNotFound
	}
	return c, nil
}

func (r *MemoryRepo) List(ctx context.Context, tenantID string) ([]Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Campaign
	for _, c := range r.campaigns {
		if c.TenantID == tenantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].CreatedAt.After(out[b].CreatedAt) })
	return out, nil
}

func (r *MemoryRepo) Update(ctx context.Context, tenantID, id string, patch Patch, now time.Time) (Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return Campaign{}, ErrNotFound
	}
	if patch.Name != nil {
		c.Name = *patch.Name
	}
	if patch.AgentID != nil {
		c.AgentID = *patch.AgentID
	}
	if patch.FirstCallTime != nil {
		c.FirstCallTime = *patch.FirstCallTime
	}
	if patch.LastCallTime != nil {
		c.LastCallTime = *patch.LastCallTime
	}
	if patch.Timezone != nil {
		c.Timezone = *patch.Timezone
	}
	if patch.StartDate != nil {
		d := *patch.StartDate
		c.StartDate = &d
	}
	if patch.EndDate != nil {
		d := *patch.EndDate
		c.EndDate = &d
	}
	if patch.MaxRetries != nil {
		c.MaxRetries = *patch.MaxRetries
	}
	if patch.RetryIntervalMinutes != nil {
		c.RetryIntervalMinutes = *patch.RetryIntervalMinutes
	}
	if patch.Priority != nil {
		c.Priority = *patch.Priority
	}
	if patch.MaxConcurrentCalls != nil {
		c.MaxConcurrentCalls = *patch.MaxConcurrentCalls
	}
	c.UpdatedAt = now
	r.campaigns[id] = c
	return c, nil
}

func (r *MemoryRepo) UpdateStatus(ctx context.Context, tenantID, id string, from []Status, to Status, now time.Time) (Campaign, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return Campaign{}, false, nil
	}
	matched := false
	for _, s := range from {
		if c.Status == s {
			matched = true
			break
		}
	}
	if !matched {
		return Campaign{}, false, nil
	}
	c.Status = to
	c.UpdatedAt = now
	if to == StatusActive && c.StartedAt == nil {
		t := now
		c.StartedAt = &t
	}
	if to == StatusCompleted || to == StatusCancelled {
		t := now
		c.CompletedAt = &t
	}
	r.campaigns[id] = c
	return c, true, nil
}

func (r *MemoryRepo) ApplyCounters(ctx context.Context, tenantID, id string, d CounterDelta) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return ErrNotFound
	}
	c.TotalContacts += d.TotalContacts
	c.CompletedCalls += d.CompletedCalls
	c.SuccessfulCalls += d.SuccessfulCalls
	c.FailedCalls += d.FailedCalls
	r.campaigns[id] = c
	return nil
}

func (r *MemoryRepo) MarkDispatched(ctx context.Context, tenantID, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return ErrNotFound
	}
	t := at
	c.LastDispatchedAt = &t
	r.campaigns[id] = c
	return nil
}

func (r *MemoryRepo) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok || c.TenantID != tenantID {
		return false, nil
	}
	delete(r.campaigns, id)
	return true, nil
}
