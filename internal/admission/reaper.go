package admission

import (
	"context"
	"log/slog"
	"time"
)

// Reaper returns processing jobs whose claim lease has expired back to the
// queue. This is the bound on "claimed but never finished": a worker crash
// stops the heartbeat, the lease lapses, and the next sweep releases the
// row instead of leaking it forever.
type Reaper struct {
	jobs   JobStore
	leases LeaseStore
	batch  int
	log    *slog.Logger
}

func NewReaper(jobs JobStore, leases LeaseStore, batch int, log *slog.Logger) *Reaper {
	if batch <= 0 {
		batch = 100
	}
	if log == nil {
		log = slog.Default()
	}
	return &Reaper{jobs: jobs, leases: leases, batch: batch, log: log}
}

// Sweep releases every processing job with no live lease. Returns how many
// jobs were recovered.
func (r *Reaper) Sweep(ctx context.Context) (int, error) {
	jobs, err := r.jobs.ListProcessing(ctx, r.batch)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, j := range jobs {
		held, err := r.leases.Held(ctx, j.ID)
		if err != nil {
			return recovered, err
		}
		if held {
			continue
		}
		ok, err := r.jobs.Release(ctx, j.TenantID, j.ID)
		if err != nil {
			return recovered, err
		}
		if ok {
			recovered++
			r.log.Warn("reaped stuck job", "job_id", j.ID, "tenant_id", j.TenantID)
		}
	}
	return recovered, nil
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.Sweep(ctx); err != nil {
				r.log.Error("reaper sweep failed", "err", err)
			}
		}
	}
}
