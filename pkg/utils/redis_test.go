package utils

import (
	"context"
	"testing"
	"time"
)

// Lease behavior against a live Redis is covered by integration tests.
// Here we only verify argument validation, which must fail fast and never
// touch the network.

func TestAcquireLease_RejectsInvalidArgs(t *testing.T) {
	ctx := context.Background()

	if _, err := AcquireLease(ctx, nil, "k", "o", time.Second); err == nil {
		t.Fatalf("expected error for nil client")
	}
}

func TestLeaseArgsValidation(t *testing.T) {
	ctx := context.Background()

	rdb, err := OpenRedis(ctx, RedisConfig{})
	if err == nil {
		t.Fatalf("expected error for empty addr, got client %v", rdb)
	}

	if _, err := ExtendLease(ctx, nil, "", "", 0); err == nil {
		t.Fatalf("expected error")
	}
	if err := ReleaseLease(ctx, nil, "", ""); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := LeaseHeld(ctx, nil, ""); err == nil {
		t.Fatalf("expected error")
	}
}
