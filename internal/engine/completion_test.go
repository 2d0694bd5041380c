package engine

import (
	"context"
	"testing"
	"time"

	"taskping/internal/store"
)

func completedTask(id, owner, text string, completedAt time.Time) store.Task {
	return store.Task{ID: id, OwnerID: owner, Text: text, Completed: true, UpdatedAt: completedAt}
}

func TestCompletionTargetedNotifies(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutTask(completedTask("t1", "alice", "ship release", now.Add(-2*time.Hour)))

	e, ch := newTestEngine(Config{}, mem, now)
	e.RunCompletionCheck(context.Background(), "t1")

	sends := ch.all()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	if sends[0].Msg.Body != "ship release" {
		t.Fatalf("body = %q", sends[0].Msg.Body)
	}
}

func TestCompletionTargetedSkipsIncomplete(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutTask(store.Task{ID: "t1", OwnerID: "alice", Text: "not done", UpdatedAt: now})

	e, ch := newTestEngine(Config{}, mem, now)
	e.RunCompletionCheck(context.Background(), "t1")

	if n := len(ch.all()); n != 0 {
		t.Fatalf("sends = %d, want 0", n)
	}
}

func TestCompletionTargetedUnknownTask(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)

	e, ch := newTestEngine(Config{}, mem, now)
	e.RunCompletionCheck(context.Background(), "ghost")

	if n := len(ch.all()); n != 0 {
		t.Fatalf("sends = %d, want 0", n)
	}
}

func TestCompletionSweepRecencyFloor(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutTask(completedTask("fresh", "alice", "fresh one", now.Add(-30*time.Second)))
	mem.PutTask(completedTask("stale", "alice", "stale one", now.Add(-5*time.Minute)))

	e, ch := newTestEngine(Config{CompletionRecency: time.Minute}, mem, now)
	e.RunCompletionCheck(context.Background(), "")

	sends := ch.all()
	if len(sends) != 1 {
		t.Fatalf("sends = %d, want 1", len(sends))
	}
	if sends[0].Msg.Body != "fresh one" {
		t.Fatalf("body = %q, want fresh one", sends[0].Msg.Body)
	}
}

func TestCompletionTargetedAndSweepRace(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutTask(completedTask("t1", "alice", "ship release", now.Add(-10*time.Second)))

	e, ch := newTestEngine(Config{CompletionRecency: time.Minute, CompletionMinInterval: 10 * time.Second}, mem, now)
	e.RunCompletionCheck(context.Background(), "t1")
	e.RunCompletionCheck(context.Background(), "")

	if n := len(ch.all()); n != 1 {
		t.Fatalf("sends = %d, want exactly 1 across targeted+sweep", n)
	}
}

func TestCompletionFansOutToWatchers(t *testing.T) {
	t.Parallel()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutLink("bob", 200)
	addWatcher(t, mem, "alice", "bob")
	mem.PutTask(completedTask("t1", "alice", "ship release", now))

	e, ch := newTestEngine(Config{}, mem, now)
	e.RunCompletionCheck(context.Background(), "t1")

	chats := ch.chats()
	if len(chats) != 2 || chats[0] != 100 || chats[1] != 200 {
		t.Fatalf("chats = %v, want [100 200]", chats)
	}
}
