package campaign

import (
	"testing"
	"time"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		{StatusDraft, StatusActive, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusPaused, false},
		{StatusScheduled, StatusActive, true},
		{StatusActive, StatusPaused, true},
		{StatusActive, StatusCompleted, true},
		{StatusActive, StatusCancelled, true},
		{StatusPaused, StatusActive, true},
		{StatusPaused, StatusCompleted, true},
		{StatusCompleted, StatusActive, false},
		{StatusCancelled, StatusActive, false},
		{StatusCompleted, StatusCancelled, false},
	}
	for _, c := range cases {
		if got := c.from.CanTransition(c.to); got != c.want {
			t.Errorf("%s -> %s: expected %v, got %v", c.from, c.to, c.want, got)
		}
	}
}

func TestWindowOpenLocalTime(t *testing.T) {
	c := Campaign{
		FirstCallTime: "09:00",
		LastCallTime:  "17:00",
		Timezone:      "America/New_York",
	}

	// 18:00 UTC is 14:00 in New York (EDT, July): inside the window.
	at := time.Date(2024, 7, 15, 18, 0, 0, 0, time.UTC)
	open, err := c.WindowOpen(at)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if !open {
		t.Fatalf("14:00 local must be inside 09:00-17:00")
	}

	// 02:00 UTC is 22:00 in New York the previous day: outside.
	at = time.Date(2024, 7, 16, 2, 0, 0, 0, time.UTC)
	open, err = c.WindowOpen(at)
	if err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if open {
		t.Fatalf("22:00 local must be outside 09:00-17:00")
	}
}

func TestWindowOpenBoundariesInclusive(t *testing.T) {
	c := Campaign{FirstCallTime: "09:00", LastCallTime: "17:00", Timezone: "UTC"}

	for _, tc := range []struct {
		at   time.Time
		want bool
	}{
		{time.Date(2024, 7, 15, 9, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 7, 15, 17, 0, 0, 0, time.UTC), true},
		{time.Date(2024, 7, 15, 8, 59, 0, 0, time.UTC), false},
		{time.Date(2024, 7, 15, 17, 1, 0, 0, time.UTC), false},
	} {
		open, err := c.WindowOpen(tc.at)
		if err != nil {
			t.Fatalf("expected nil, got %v", err)
		}
		if open != tc.want {
			t.Errorf("at %v: expected %v, got %v", tc.at, tc.want, open)
		}
	}
}

func TestWindowOpenDateRange(t *testing.T) {
	start := time.Date(2024, 7, 10, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 7, 20, 0, 0, 0, 0, time.UTC)
	c := Campaign{
		FirstCallTime: "00:00",
		LastCallTime:  "23:59",
		Timezone:      "UTC",
		StartDate:     &start,
		EndDate:       &end,
	}

	if open, _ := c.WindowOpen(time.Date(2024, 7, 9, 12, 0, 0, 0, time.UTC)); open {
		t.Fatalf("before start_date must be closed")
	}
	if open, _ := c.WindowOpen(time.Date(2024, 7, 20, 23, 0, 0, 0, time.UTC)); !open {
		t.Fatalf("end_date is a whole inclusive day")
	}
	if open, _ := c.WindowOpen(time.Date(2024, 7, 21, 0, 30, 0, 0, time.UTC)); open {
		t.Fatalf("after end_date must be closed")
	}
}

func TestWindowOpenBadTimezone(t *testing.T) {
	c := Campaign{FirstCallTime: "09:00", LastCallTime: "17:00", Timezone: "Mars/Olympus"}
	if _, err := c.WindowOpen(time.Now()); err == nil {
		t.Fatalf("expected error for unknown timezone")
	}
}

func TestParseClock(t *testing.T) {
	got, err := parseClock("09:30")
	if err != nil || got != 9*60+30 {
		t.Fatalf("expected 570, got %d err=%v", got, err)
	}
	if _, err := parseClock("9am"); err == nil {
		t.Fatalf("expected error for non HH:MM input")
	}
}
