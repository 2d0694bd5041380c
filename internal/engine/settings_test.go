package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSaveUserTimezoneFromAbbreviation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 20, 15, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	e, _ := newTestEngine(Config{}, mem, now)

	g, err := e.SaveUserTimezone(ctx, "alice", "my time is CST")
	if err != nil {
		t.Fatalf("SaveUserTimezone: %v", err)
	}
	if g.Zone != "America/Chicago" {
		t.Fatalf("zone = %q, want America/Chicago", g.Zone)
	}

	profile, ok, err := e.GetUserTimezone(ctx, "alice")
	if err != nil || !ok {
		t.Fatalf("GetUserTimezone: ok=%v err=%v", ok, err)
	}
	if profile.Zone != "America/Chicago" || profile.Offset != -6 {
		t.Fatalf("profile = %+v", profile)
	}
}

func TestSaveUserTimezoneUndetectable(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 20, 15, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	e, _ := newTestEngine(Config{}, mem, now)

	if _, err := e.SaveUserTimezone(ctx, "alice", "no idea"); !errors.Is(err, ErrTimezoneUnknown) {
		t.Fatalf("err = %v, want ErrTimezoneUnknown", err)
	}
	if _, ok, err := e.GetUserTimezone(ctx, "alice"); err != nil || ok {
		t.Fatalf("profile unexpectedly present: ok=%v err=%v", ok, err)
	}
}
