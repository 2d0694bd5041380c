package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"taskping/internal/store"
)

func seedDigestUser(t *testing.T, zone string) *store.Memory {
	t.Helper()
	mem := seedOwner(t, "alice", 100)
	mem.PutSettings(store.UserSettings{OwnerID: "alice", Timezone: zone})
	return mem
}

func TestDigestFiresOncePerLocalDay(t *testing.T) {
	t.Parallel()
	mem := seedDigestUser(t, "America/New_York")
	e, ch := newTestEngine(Config{DigestHour: 17, DigestWindow: 5 * time.Minute}, mem, time.Time{})

	// June 1st, 17:00 New York is 21:00 UTC. Tick every minute across the
	// whole slot; only the first tick inside it may send.
	base := time.Date(2024, 6, 1, 20, 55, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		e.now = func() time.Time { return at }
		e.RunDailySummaryCheck(context.Background())
	}

	if n := len(ch.all()); n != 1 {
		t.Fatalf("sends = %d, want exactly 1 for the day", n)
	}

	// Next local day it fires again.
	ch.reset()
	e.now = func() time.Time { return base.Add(24*time.Hour + 6*time.Minute) }
	e.RunDailySummaryCheck(context.Background())
	if n := len(ch.all()); n != 1 {
		t.Fatalf("next-day sends = %d, want 1", n)
	}
}

func TestDigestOutsideSlotIsNoop(t *testing.T) {
	t.Parallel()
	mem := seedDigestUser(t, "UTC")
	now := time.Date(2024, 6, 1, 16, 30, 0, 0, time.UTC)
	e, ch := newTestEngine(Config{DigestHour: 17, DigestWindow: 5 * time.Minute}, mem, now)

	e.RunDailySummaryCheck(context.Background())
	if n := len(ch.all()); n != 0 {
		t.Fatalf("sends = %d, want 0", n)
	}
}

func TestDigestSkipsUserWithoutTimezone(t *testing.T) {
	t.Parallel()
	mem := seedOwner(t, "alice", 100)
	now := time.Date(2024, 6, 1, 17, 2, 0, 0, time.UTC)
	e, ch := newTestEngine(Config{DigestHour: 17, DigestWindow: 5 * time.Minute}, mem, now)

	e.RunDailySummaryCheck(context.Background())
	if n := len(ch.all()); n != 0 {
		t.Fatalf("sends = %d, want 0", n)
	}
}

func TestDigestPartitionsTasks(t *testing.T) {
	t.Parallel()
	mem := seedDigestUser(t, "UTC")
	now := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)

	mem.PutTask(completedTask("done-today", "alice", "done today", now.Add(-3*time.Hour)))
	mem.PutTask(completedTask("done-old", "alice", "done last week", now.Add(-6*24*time.Hour)))
	mem.PutTask(task("late", "alice", "late task", now.Add(-2*time.Hour), false))
	mem.PutTask(task("soon", "alice", "soon task", now.Add(48*time.Hour), false))
	mem.PutTask(task("far", "alice", "far task", now.Add(30*24*time.Hour), false))

	e, ch := newTestEngine(Config{DigestHour: 17, DigestWindow: 5 * time.Minute}, mem, now)
	e.RunDailySummaryCheck(context.Background())

	sends := ch.all()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	msg := sends[0].Msg
	if len(msg.Fields) != 4 {
		t.Fatalf("fields = %d, want 4", len(msg.Fields))
	}
	checks := []struct {
		name     string
		contains string
		absent   string
	}{
		{"✅ Completed Today (1)", "done today", "done last week"},
		{"⏰ Due This Week (1)", "soon task", "far task"},
		{"🚨 Overdue (1)", "late task", ""},
		{"📌 Open Tasks (3)", "far task", ""},
	}
	for i, c := range checks {
		f := msg.Fields[i]
		if f.Name != c.name {
			t.Fatalf("field %d name = %q, want %q", i, f.Name, c.name)
		}
		if !strings.Contains(f.Value, c.contains) {
			t.Fatalf("field %q = %q, want to contain %q", f.Name, f.Value, c.contains)
		}
		if c.absent != "" && strings.Contains(f.Value, c.absent) {
			t.Fatalf("field %q = %q, must not contain %q", f.Name, f.Value, c.absent)
		}
	}
}

func TestDigestListCapsAtFive(t *testing.T) {
	t.Parallel()
	mem := seedDigestUser(t, "UTC")
	now := time.Date(2024, 6, 1, 17, 0, 0, 0, time.UTC)
	for _, id := range []string{"a", "b", "c", "d", "e", "f", "g"} {
		mem.PutTask(task(id, "alice", "task "+id, now.Add(24*time.Hour), false))
	}

	e, ch := newTestEngine(Config{DigestHour: 17, DigestWindow: 5 * time.Minute}, mem, now)
	e.RunDailySummaryCheck(context.Background())

	sends := ch.all()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	open := sends[0].Msg.Fields[3]
	if !strings.Contains(open.Value, "+2 more") {
		t.Fatalf("open tasks = %q, want truncation marker", open.Value)
	}
}
