package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fixedClock() time.Time { return time.Unix(1700000000, 0).UTC() }

func newTestService() (*Service, *MemoryRepo) {
	repo := NewMemoryRepo()
	svc := NewService(repo)
	svc.clock = fixedClock
	return svc, repo
}

func TestEnqueueDirectDefaults(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	job, err := svc.EnqueueDirect(ctx, "t1", DirectCallRequest{
		AgentID:     "agent-1",
		ContactID:   "c1",
		PhoneNumber: "+15550001",
	})
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if job.Lane != LaneDirect {
		t.Fatalf("expected direct lane, got %q", job.Lane)
	}
	if job.Priority != DirectLanePriority {
		t.Fatalf("expected priority %d, got %d", DirectLanePriority, job.Priority)
	}
	if job.CampaignID != "" {
		t.Fatalf("direct job must not reference a campaign")
	}
	if !job.ScheduledFor.Equal(fixedClock()) {
		t.Fatalf("expected scheduled_for defaulted to now, got %v", job.ScheduledFor)
	}
	if job.Status != JobStatusQueued {
		t.Fatalf("expected queued, got %q", job.Status)
	}
}

func TestEnqueueDirectValidation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	cases := []DirectCallRequest{
		{ContactID: "c1", PhoneNumber: "+1"},
		{AgentID: "a1", PhoneNumber: "+1"},
		{AgentID: "a1", ContactID: "c1"},
	}
	for i, req := range cases {
		if _, err := svc.EnqueueDirect(ctx, "t1", req); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
	if _, err := svc.EnqueueDirect(ctx, "", DirectCallRequest{AgentID: "a", ContactID: "c", PhoneNumber: "+1"}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing tenant, got %v", err)
	}
}

func TestEnqueueCampaignBatchPositions(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	contacts := []CampaignContact{
		{ContactID: "c1", PhoneNumber: "+1"},
		{ContactID: "c2", PhoneNumber: "+2"},
		{ContactID: "c3", PhoneNumber: "+3"},
	}
	jobs, err := svc.EnqueueCampaignBatch(ctx, "t1", "camp-1", "agent-1", 5, contacts)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if len(jobs) != 3 {
		t.Fatalf("expected 3 jobs, got %d", len(jobs))
	}
	for i := 1; i < len(jobs); i++ {
		if jobs[i].Position <= jobs[i-1].Position {
			t.Fatalf("positions must be strictly increasing: %d then %d", jobs[i-1].Position, jobs[i].Position)
		}
	}
	for _, j := range jobs {
		if j.Lane != LaneCampaign || j.CampaignID != "camp-1" || j.Priority != 5 {
			t.Fatalf("unexpected job shape: %+v", j)
		}
	}

	if _, err := svc.EnqueueCampaignBatch(ctx, "t1", "camp-1", "agent-1", 5, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty contacts, got %v", err)
	}
	if _, err := svc.EnqueueCampaignBatch(ctx, "t1", "camp-1", "agent-1", 5, []CampaignContact{{ContactID: "c1"}}); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for missing phone, got %v", err)
	}
}

func TestEnqueueRetryCopiesIdentity(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	prev := CallJob{
		TenantID:    "t1",
		Lane:        LaneCampaign,
		CampaignID:  "camp-1",
		AgentID:     "agent-1",
		ContactID:   "c1",
		PhoneNumber: "+1",
		UserData:    `{"crm_id":9}`,
		Priority:    7,
		RetryCount:  1,
	}
	when := fixedClock().Add(30 * time.Minute)
	job, err := svc.EnqueueRetry(ctx, prev, when)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if job.ID == "" || job.ID == prev.ID {
		t.Fatalf("retry must get a fresh id")
	}
	if job.RetryCount != 2 {
		t.Fatalf("expected retry count 2, got %d", job.RetryCount)
	}
	if job.Priority != 7 {
		t.Fatalf("retry must inherit priority, got %d", job.Priority)
	}
	if !job.ScheduledFor.Equal(when) {
		t.Fatalf("expected scheduled_for %v, got %v", when, job.ScheduledFor)
	}
	if job.ContactID != "c1" || job.UserData != prev.UserData || job.CampaignID != "camp-1" {
		t.Fatalf("identity fields must be copied: %+v", job)
	}
}

func TestUpdateOnlyWhileQueued(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	job, err := svc.EnqueueDirect(ctx, "t1", DirectCallRequest{AgentID: "a", ContactID: "c", PhoneNumber: "+1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	name := "Ada"
	updated, err := svc.Update(ctx, "t1", job.ID, JobPatch{ContactName: &name})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.ContactName != "Ada" {
		t.Fatalf("expected patched name, got %q", updated.ContactName)
	}
	if updated.PhoneNumber != "+1" {
		t.Fatalf("unpatched field must survive, got %q", updated.PhoneNumber)
	}

	// Empty patch is a read.
	same, err := svc.Update(ctx, "t1", job.ID, JobPatch{})
	if err != nil || same.ID != job.ID {
		t.Fatalf("empty patch: %v %+v", err, same)
	}

	if _, _, err := repo.Claim(ctx, "t1", job.ID, fixedClock()); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := svc.Update(ctx, "t1", job.ID, JobPatch{ContactName: &name}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for processing job, got %v", err)
	}
}

func TestCancelLosesToClaim(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	job, err := svc.EnqueueDirect(ctx, "t1", DirectCallRequest{AgentID: "a", ContactID: "c", PhoneNumber: "+1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, won, err := repo.Claim(ctx, "t1", job.ID, fixedClock()); err != nil || !won {
		t.Fatalf("claim: %v won=%v", err, won)
	}

	cancelled, err := svc.Cancel(ctx, "t1", job.ID)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled {
		t.Fatalf("cancel must lose once the job is processing")
	}
}

func TestCancelCampaignJobsSkipsProcessing(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	jobs, err := svc.EnqueueCampaignBatch(ctx, "t1", "camp-1", "a", 0, []CampaignContact{
		{ContactID: "c1", PhoneNumber: "+1"},
		{ContactID: "c2", PhoneNumber: "+2"},
		{ContactID: "c3", PhoneNumber: "+3"},
	})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, won, err := repo.Claim(ctx, "t1", jobs[0].ID, fixedClock()); err != nil || !won {
		t.Fatalf("claim: %v won=%v", err, won)
	}

	n, err := svc.CancelCampaignJobs(ctx, "t1", "camp-1")
	if err != nil {
		t.Fatalf("cancel campaign jobs: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 cancelled, got %d", n)
	}
	open, err := svc.CountOpenByCampaign(ctx, "t1", "camp-1")
	if err != nil || open != 1 {
		t.Fatalf("expected 1 open (the claimed one), got %d err=%v", open, err)
	}
}

func TestListClaimableOrdering(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	// Campaign lane at priority 0, then a direct job at 100, then a
	// high-priority campaign at 150.
	low, err := svc.EnqueueCampaignBatch(ctx, "t1", "camp-low", "a", 0, []CampaignContact{
		{ContactID: "c1", PhoneNumber: "+1"},
		{ContactID: "c2", PhoneNumber: "+2"},
	})
	if err != nil {
		t.Fatalf("enqueue low: %v", err)
	}
	direct, err := svc.EnqueueDirect(ctx, "t1", DirectCallRequest{AgentID: "a", ContactID: "d1", PhoneNumber: "+9"})
	if err != nil {
		t.Fatalf("enqueue direct: %v", err)
	}
	high, err := svc.EnqueueCampaignBatch(ctx, "t1", "camp-high", "a", 150, []CampaignContact{
		{ContactID: "h1", PhoneNumber: "+8"},
	})
	if err != nil {
		t.Fatalf("enqueue high: %v", err)
	}

	got, err := repo.ListClaimable(ctx, "t1", fixedClock(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	want := []string{high[0].ID, direct.ID, low[0].ID, low[1].ID}
	if len(got) != len(want) {
		t.Fatalf("expected %d jobs, got %d", len(want), len(got))
	}
	for i, id := range want {
		if got[i].ID != id {
			t.Fatalf("position %d: expected %s, got %s", i, id, got[i].ID)
		}
	}
}

func TestListClaimableHonorsScheduledFor(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	future := fixedClock().Add(time.Hour)
	if _, err := svc.EnqueueDirect(ctx, "t1", DirectCallRequest{
		AgentID: "a", ContactID: "c", PhoneNumber: "+1", ScheduledFor: future,
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	got, err := repo.ListClaimable(ctx, "t1", fixedClock(), 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("future job must not be claimable yet, got %d", len(got))
	}
	got, err = repo.ListClaimable(ctx, "t1", future, 10)
	if err != nil || len(got) != 1 {
		t.Fatalf("expected 1 claimable at scheduled time, got %d err=%v", len(got), err)
	}
}

func TestClaimExactlyOnce(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	job, err := svc.EnqueueDirect(ctx, "t1", DirectCallRequest{AgentID: "a", ContactID: "c", PhoneNumber: "+1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	_, won1, err := repo.Claim(ctx, "t1", job.ID, fixedClock())
	if err != nil || !won1 {
		t.Fatalf("first claim must win: %v won=%v", err, won1)
	}
	_, won2, err := repo.Claim(ctx, "t1", job.ID, fixedClock())
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if won2 {
		t.Fatalf("second claim must lose")
	}
}

func TestFinishDeletesRow(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	job, err := svc.EnqueueDirect(ctx, "t1", DirectCallRequest{AgentID: "a", ContactID: "c", PhoneNumber: "+1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, won, err := repo.Claim(ctx, "t1", job.ID, fixedClock()); err != nil || !won {
		t.Fatalf("claim: %v won=%v", err, won)
	}
	if _, done, err := repo.Finish(ctx, "t1", job.ID); err != nil || !done {
		t.Fatalf("finish: %v done=%v", err, done)
	}
	if _, err := svc.Get(ctx, "t1", job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("finished job must be gone, got %v", err)
	}
	// Finishing twice is a no-op loss, not an error.
	if _, done, err := repo.Finish(ctx, "t1", job.ID); err != nil || done {
		t.Fatalf("double finish: %v done=%v", err, done)
	}
}

func TestReleaseRequeues(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	job, err := svc.EnqueueDirect(ctx, "t1", DirectCallRequest{AgentID: "a", ContactID: "c", PhoneNumber: "+1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, won, err := repo.Claim(ctx, "t1", job.ID, fixedClock()); err != nil || !won {
		t.Fatalf("claim: %v won=%v", err, won)
	}
	if err := repo.AttachCall(ctx, "t1", job.ID, "call-1"); err != nil {
		t.Fatalf("attach: %v", err)
	}
	if ok, err := repo.Release(ctx, "t1", job.ID); err != nil || !ok {
		t.Fatalf("release: %v ok=%v", err, ok)
	}
	got, err := svc.Get(ctx, "t1", job.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != JobStatusQueued || got.StartedAt != nil || got.CallID != "" {
		t.Fatalf("release must reset claim state: %+v", got)
	}
}

func TestTenantScoping(t *testing.T) {
	svc, repo := newTestService()
	ctx := context.Background()

	job, err := svc.EnqueueDirect(ctx, "t1", DirectCallRequest{AgentID: "a", ContactID: "c", PhoneNumber: "+1"})
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := svc.Get(ctx, "t2", job.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("cross-tenant get must miss, got %v", err)
	}
	if _, won, _ := repo.Claim(ctx, "t2", job.ID, fixedClock()); won {
		t.Fatalf("cross-tenant claim must lose")
	}
	got, _ := repo.ListClaimable(ctx, "t2", fixedClock(), 10)
	if len(got) != 0 {
		t.Fatalf("cross-tenant list must be empty")
	}
}
