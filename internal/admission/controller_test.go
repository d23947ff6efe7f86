package admission

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"dialer-platform/internal/campaign"
	"dialer-platform/internal/queue"
)

func fixedClock() time.Time {
	// 2023-11-14 22:13:20 UTC
	return time.Unix(1700000000, 0).UTC()
}

type fixture struct {
	jobs      *queue.MemoryRepo
	campaigns *campaign.MemoryRepo
	leases    *MemoryLeases
	ctrl      *Controller
	seq       int
}

func newFixture(t *testing.T, caps Caps) *fixture {
	t.Helper()
	f := &fixture{
		jobs:      queue.NewMemoryRepo(),
		campaigns: campaign.NewMemoryRepo(),
		leases:    NewMemoryLeases(),
	}
	f.leases.Clock = fixedClock
	f.ctrl = NewController(f.jobs, f.campaigns, f.leases, caps, 25, 2*time.Minute, nil)
	f.ctrl.clock = fixedClock
	return f
}

func (f *fixture) seedJob(t *testing.T, tenantID, campaignID string, priority int) queue.CallJob {
	t.Helper()
	lane := queue.LaneCampaign
	if campaignID == "" {
		lane = queue.LaneDirect
	}
	f.seq++
	job, err := f.jobs.Insert(context.Background(), queue.CallJob{
		ID:           fmt.Sprintf("job-%s-%d", campaignID, f.seq),
		TenantID:     tenantID,
		Lane:         lane,
		CampaignID:   campaignID,
		AgentID:      "agent-1",
		ContactID:    "c1",
		PhoneNumber:  "+1",
		Priority:     priority,
		ScheduledFor: fixedClock(),
		CreatedAt:    fixedClock(),
	})
	if err != nil {
		t.Fatalf("seed job: %v", err)
	}
	return job
}

// openCampaign is always-active with an always-open window.
func (f *fixture) seedCampaign(t *testing.T, tenantID, id string, status campaign.Status, maxConcurrent int) {
	t.Helper()
	err := f.campaigns.Create(context.Background(), campaign.Campaign{
		ID:                 id,
		TenantID:           tenantID,
		Name:               id,
		AgentID:            "agent-1",
		Status:             status,
		FirstCallTime:      "00:00",
		LastCallTime:       "23:59",
		Timezone:           "UTC",
		MaxConcurrentCalls: maxConcurrent,
		CreatedAt:          fixedClock(),
	})
	if err != nil {
		t.Fatalf("seed campaign: %v", err)
	}
}

func TestClaimNextPriorityOrder(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	f.seedCampaign(t, "t1", "camp-a", campaign.StatusActive, 10)
	low := f.seedJob(t, "t1", "camp-a", 1)
	high := f.seedJob(t, "t1", "camp-a", 9)

	claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("claim: %v ok=%v", err, ok)
	}
	if claim.Job.ID != high.ID {
		t.Fatalf("expected high-priority job %s first, got %s", high.ID, claim.Job.ID)
	}
	if claim.LeaseToken == "" {
		t.Fatalf("claim must carry a lease token")
	}

	claim, ok, err = f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("second claim: %v ok=%v", err, ok)
	}
	if claim.Job.ID != low.ID {
		t.Fatalf("expected low-priority job next, got %s", claim.Job.ID)
	}
}

func TestClaimNextFIFOWithinPriority(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	f.seedCampaign(t, "t1", "camp-a", campaign.StatusActive, 10)
	first := f.seedJob(t, "t1", "camp-a", 5)
	_ = f.seedJob(t, "t1", "camp-a", 5)

	claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("claim: %v ok=%v", err, ok)
	}
	if claim.Job.ID != first.ID {
		t.Fatalf("same priority must be FIFO by position, got %s", claim.Job.ID)
	}
}

func TestDirectLanePreemptsCampaign(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	f.seedCampaign(t, "t1", "camp-a", campaign.StatusActive, 10)
	f.seedJob(t, "t1", "camp-a", 50)
	direct := f.seedJob(t, "t1", "", queue.DirectLanePriority)

	claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("claim: %v ok=%v", err, ok)
	}
	if claim.Job.ID != direct.ID {
		t.Fatalf("direct job must win at priority 100, got %s", claim.Job.ID)
	}
}

func TestCampaignAbovePriority100Wins(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	f.seedCampaign(t, "t1", "camp-vip", campaign.StatusActive, 10)
	vip := f.seedJob(t, "t1", "camp-vip", 150)
	f.seedJob(t, "t1", "", queue.DirectLanePriority)

	claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("claim: %v ok=%v", err, ok)
	}
	if claim.Job.ID != vip.ID {
		t.Fatalf("priority 150 campaign must preempt direct lane, got %s", claim.Job.ID)
	}
}

func TestClaimNextSkipsClosedWindow(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	// fixedClock is 22:13 UTC: outside a 09:00-17:00 UTC window.
	err := f.campaigns.Create(ctx, campaign.Campaign{
		ID: "camp-biz", TenantID: "t1", Status: campaign.StatusActive,
		FirstCallTime: "09:00", LastCallTime: "17:00", Timezone: "UTC",
		MaxConcurrentCalls: 10,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	f.seedCampaign(t, "t1", "camp-open", campaign.StatusActive, 10)

	f.seedJob(t, "t1", "camp-biz", 50)
	open := f.seedJob(t, "t1", "camp-open", 1)

	claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("claim: %v ok=%v", err, ok)
	}
	if claim.Job.ID != open.ID {
		t.Fatalf("closed-window campaign must be skipped, got %s", claim.Job.ID)
	}
}

func TestWindowGatesOnLocalTimeNotUTC(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	// 09:00-17:00 in New York. At 12:00 UTC in July, local time is 08:00:
	// scheduled_for has long passed in UTC, but the window is still shut.
	err := f.campaigns.Create(ctx, campaign.Campaign{
		ID: "camp-ny", TenantID: "t1", Status: campaign.StatusActive,
		FirstCallTime: "09:00", LastCallTime: "17:00", Timezone: "America/New_York",
		MaxConcurrentCalls: 10,
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	before := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	f.ctrl.clock = func() time.Time { return before }
	job, err := f.jobs.Insert(ctx, queue.CallJob{
		ID: "job-ny", TenantID: "t1", Lane: queue.LaneCampaign, CampaignID: "camp-ny",
		AgentID: "a", ContactID: "c1", PhoneNumber: "+1",
		ScheduledFor: before.Add(-time.Hour), CreatedAt: before.Add(-time.Hour),
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, ok, err := f.ctrl.ClaimNext(ctx, "t1"); err != nil || ok {
		t.Fatalf("08:00 local must not dispatch: %v ok=%v", err, ok)
	}

	// 13:00 UTC is 09:00 local: the window just opened.
	f.ctrl.clock = func() time.Time { return time.Date(2024, 7, 15, 13, 0, 0, 0, time.UTC) }
	claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("09:00 local must dispatch: %v ok=%v", err, ok)
	}
	if claim.Job.ID != job.ID {
		t.Fatalf("expected %s, got %s", job.ID, claim.Job.ID)
	}
}

func TestClaimNextSkipsPausedCampaign(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	f.seedCampaign(t, "t1", "camp-paused", campaign.StatusPaused, 10)
	f.seedJob(t, "t1", "camp-paused", 50)

	_, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok {
		t.Fatalf("paused campaign must not dispatch")
	}
}

func TestClaimNextSkipsOrphanedJob(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	f.seedJob(t, "t1", "camp-gone", 50)
	direct := f.seedJob(t, "t1", "", queue.DirectLanePriority)

	// Direct job is first by priority anyway; drain it, then the orphan
	// must not error the pass.
	claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok || claim.Job.ID != direct.ID {
		t.Fatalf("claim: %v ok=%v", err, ok)
	}
	_, ok, err = f.ctrl.ClaimNext(ctx, "t1")
	if err != nil {
		t.Fatalf("orphan pass: %v", err)
	}
	if ok {
		t.Fatalf("orphaned job must not be dispatched")
	}
}

func TestCampaignConcurrencyCap(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	f.seedCampaign(t, "t1", "camp-a", campaign.StatusActive, 1)
	f.seedJob(t, "t1", "camp-a", 5)
	f.seedJob(t, "t1", "camp-a", 5)

	_, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("first claim: %v ok=%v", err, ok)
	}
	_, ok, err = f.ctrl.ClaimNext(ctx, "t1")
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if ok {
		t.Fatalf("campaign at max_concurrent_calls must not dispatch more")
	}
}

func TestTenantCap(t *testing.T) {
	f := newFixture(t, Caps{TenantMax: 1})
	ctx := context.Background()

	f.seedJob(t, "t1", "", queue.DirectLanePriority)
	f.seedJob(t, "t1", "", queue.DirectLanePriority)

	if _, ok, err := f.ctrl.ClaimNext(ctx, "t1"); err != nil || !ok {
		t.Fatalf("first claim: %v ok=%v", err, ok)
	}
	if _, ok, err := f.ctrl.ClaimNext(ctx, "t1"); err != nil || ok {
		t.Fatalf("tenant cap of 1 must block the second claim: %v ok=%v", err, ok)
	}
}

func TestSystemCapCrossTenant(t *testing.T) {
	f := newFixture(t, Caps{SystemMax: 1})
	ctx := context.Background()

	f.seedJob(t, "t1", "", queue.DirectLanePriority)
	f.seedJob(t, "t2", "", queue.DirectLanePriority)

	if _, ok, err := f.ctrl.ClaimNext(ctx, "t1"); err != nil || !ok {
		t.Fatalf("first claim: %v ok=%v", err, ok)
	}
	if _, ok, err := f.ctrl.ClaimNext(ctx, "t2"); err != nil || ok {
		t.Fatalf("system cap must block the other tenant too: %v ok=%v", err, ok)
	}
}

func TestConcurrentClaimersEachWinOnce(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	const n = 8
	for i := 0; i < n; i++ {
		f.seedJob(t, "t1", "", queue.DirectLanePriority)
	}

	var wg sync.WaitGroup
	results := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
			if err != nil {
				t.Errorf("claim: %v", err)
				return
			}
			if ok {
				results <- claim.Job.ID
			}
		}()
	}
	wg.Wait()
	close(results)

	seen := map[string]bool{}
	for id := range results {
		if seen[id] {
			t.Fatalf("job %s claimed twice", id)
		}
		seen[id] = true
	}
	if len(seen) != n {
		t.Fatalf("expected %d distinct claims, got %d", n, len(seen))
	}
}

func TestReleasePutsJobBack(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	job := f.seedJob(t, "t1", "", queue.DirectLanePriority)
	claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("claim: %v ok=%v", err, ok)
	}

	released, err := f.ctrl.Release(ctx, "t1", claim.Job.ID, claim.LeaseToken)
	if err != nil || !released {
		t.Fatalf("release: %v ok=%v", err, released)
	}
	if held, _ := f.leases.Held(ctx, job.ID); held {
		t.Fatalf("lease must be gone after release")
	}

	claim2, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("reclaim: %v ok=%v", err, ok)
	}
	if claim2.Job.ID != job.ID {
		t.Fatalf("released job must be claimable again")
	}
}

func TestHeartbeatExtendsOnlyOwner(t *testing.T) {
	f := newFixture(t, Caps{})
	ctx := context.Background()

	f.seedJob(t, "t1", "", queue.DirectLanePriority)
	claim, ok, err := f.ctrl.ClaimNext(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("claim: %v ok=%v", err, ok)
	}

	alive, err := f.ctrl.Heartbeat(ctx, claim.Job.ID, claim.LeaseToken)
	if err != nil || !alive {
		t.Fatalf("heartbeat: %v alive=%v", err, alive)
	}
	alive, err = f.ctrl.Heartbeat(ctx, claim.Job.ID, "stolen-token")
	if err != nil {
		t.Fatalf("heartbeat: %v", err)
	}
	if alive {
		t.Fatalf("heartbeat with a foreign token must fail")
	}
}

func TestClaimNextEmptyQueue(t *testing.T) {
	f := newFixture(t, Caps{})
	_, ok, err := f.ctrl.ClaimNext(context.Background(), "t1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if ok {
		t.Fatalf("empty queue must report ok=false")
	}
	if _, _, err := f.ctrl.ClaimNext(context.Background(), ""); err == nil {
		t.Fatalf("missing tenant must be rejected")
	}
}
