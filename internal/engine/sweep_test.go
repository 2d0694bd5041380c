package engine

import (
	"context"
	"testing"
	"time"
)

func TestDueSoonSweepHitsWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutTask(task("t1", "alice", "write report", now.Add(32*time.Minute), false))

	e, ch := newTestEngine(Config{DueSoonOffsets: []int{30}, Window: 5 * time.Minute}, mem, now)
	e.RunDueSoonCheck(context.Background())

	sends := ch.all()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	if sends[0].ChatID != 100 {
		t.Fatalf("chat = %d, want 100", sends[0].ChatID)
	}
	if sends[0].Msg.Body != "write report" {
		t.Fatalf("body = %q", sends[0].Msg.Body)
	}
}

func TestDueSoonSweepOutsideWindow(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutTask(task("t1", "alice", "write report", now.Add(32*time.Minute), false))

	e, ch := newTestEngine(Config{DueSoonOffsets: []int{5, 15}, Window: 5 * time.Minute}, mem, now)
	e.RunDueSoonCheck(context.Background())

	if n := len(ch.all()); n != 0 {
		t.Fatalf("sends = %d, want 0", n)
	}
}

func TestDueSoonFansOutToWatchers(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutLink("bob", 200)
	addWatcher(t, mem, "alice", "bob")
	mem.PutTask(task("t1", "alice", "write report", now.Add(30*time.Minute), false))

	e, ch := newTestEngine(Config{DueSoonOffsets: []int{30}, Window: 5 * time.Minute}, mem, now)
	e.RunDueSoonCheck(context.Background())

	chats := ch.chats()
	if len(chats) != 2 || chats[0] != 100 || chats[1] != 200 {
		t.Fatalf("chats = %v, want [100 200]", chats)
	}
}

func TestDueSoonSkipsCompletedTasks(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutTask(task("t1", "alice", "done already", now.Add(30*time.Minute), true))

	e, ch := newTestEngine(Config{DueSoonOffsets: []int{30}, Window: 5 * time.Minute}, mem, now)
	e.RunDueSoonCheck(context.Background())

	if n := len(ch.all()); n != 0 {
		t.Fatalf("sends = %d, want 0", n)
	}
}

func TestOverdueSweepClaimsOnce(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutTask(task("t1", "alice", "pay invoice", now.Add(-15*time.Minute), false))

	e, ch := newTestEngine(Config{OverdueOffsets: []int{15}, Window: 5 * time.Minute}, mem, now)
	e.RunOverdueCheck(context.Background())
	if n := len(ch.all()); n != 1 {
		t.Fatalf("first sweep sends = %d, want 1", n)
	}

	// A second sweep a moment later sees the same task in the window but
	// loses the dedup claim.
	ch.reset()
	e.now = func() time.Time { return now.Add(time.Second) }
	e.RunOverdueCheck(context.Background())
	if n := len(ch.all()); n != 0 {
		t.Fatalf("second sweep sends = %d, want 0", n)
	}
}

func TestOverdueRegrantsAfterMinInterval(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	// Overdue by 15m at the first sweep, by 30m at the second, so both
	// sweeps have a matching offset bucket.
	mem.PutTask(task("t1", "alice", "pay invoice", now.Add(-15*time.Minute), false))

	cfg := Config{OverdueOffsets: []int{15, 30}, Window: 5 * time.Minute, OverdueMinInterval: 10 * time.Minute}
	e, ch := newTestEngine(cfg, mem, now)
	e.RunOverdueCheck(context.Background())
	if n := len(ch.all()); n != 1 {
		t.Fatalf("first sweep sends = %d, want 1", n)
	}

	ch.reset()
	e.now = func() time.Time { return now.Add(15 * time.Minute) }
	e.RunOverdueCheck(context.Background())
	if n := len(ch.all()); n != 1 {
		t.Fatalf("post-interval sweep sends = %d, want 1", n)
	}
}

func TestSweepSkipsOwnerWithoutRecipients(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	// carol has a due task but no recipient link and no watchers.
	mem.PutTask(task("t1", "carol", "invisible", now.Add(30*time.Minute), false))
	mem.PutTask(task("t2", "alice", "visible", now.Add(30*time.Minute), false))

	e, ch := newTestEngine(Config{DueSoonOffsets: []int{30}, Window: 5 * time.Minute}, mem, now)
	e.RunDueSoonCheck(context.Background())

	chats := ch.chats()
	if len(chats) != 1 || chats[0] != 100 {
		t.Fatalf("chats = %v, want [100]", chats)
	}
}
