package engine

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWatcherConsentAcceptFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutLink("bob", 200)
	e, ch := newTestEngine(Config{}, mem, now)

	if err := e.IssueWatcherRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("IssueWatcherRequest: %v", err)
	}
	chats := ch.chats()
	if len(chats) != 1 || chats[0] != 200 {
		t.Fatalf("prompt chats = %v, want [200]", chats)
	}

	ch.reset()
	if err := e.ResolveWatcherRequest(ctx, "alice", "bob", true); err != nil {
		t.Fatalf("ResolveWatcherRequest: %v", err)
	}
	watchers, err := e.ListWatchers(ctx, "alice")
	if err != nil {
		t.Fatalf("ListWatchers: %v", err)
	}
	if len(watchers) != 1 || watchers[0] != "bob" {
		t.Fatalf("watchers = %v, want [bob]", watchers)
	}
	// Acceptance is announced to the requester.
	chats = ch.chats()
	if len(chats) != 1 || chats[0] != 100 {
		t.Fatalf("outcome chats = %v, want [100]", chats)
	}

	// Pending entry is consumed: resolving again fails.
	if err := e.ResolveWatcherRequest(ctx, "alice", "bob", true); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("second resolve err = %v, want ErrNoRequest", err)
	}
}

func TestWatcherConsentDeclineFlow(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutLink("bob", 200)
	e, ch := newTestEngine(Config{}, mem, now)

	if err := e.IssueWatcherRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("IssueWatcherRequest: %v", err)
	}
	ch.reset()
	if err := e.ResolveWatcherRequest(ctx, "alice", "bob", false); err != nil {
		t.Fatalf("ResolveWatcherRequest: %v", err)
	}
	watchers, err := e.ListWatchers(ctx, "alice")
	if err != nil {
		t.Fatalf("ListWatchers: %v", err)
	}
	if len(watchers) != 0 {
		t.Fatalf("watchers = %v, want empty", watchers)
	}
	// Both sides hear about the decline.
	chats := ch.chats()
	if len(chats) != 2 || chats[0] != 100 || chats[1] != 200 {
		t.Fatalf("chats = %v, want [100 200]", chats)
	}
}

func TestWatcherRequestRejectsDuplicatePending(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutLink("bob", 200)
	e, _ := newTestEngine(Config{}, mem, now)

	if err := e.IssueWatcherRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("first issue: %v", err)
	}
	if err := e.IssueWatcherRequest(ctx, "alice", "bob"); !errors.Is(err, ErrRequestPending) {
		t.Fatalf("second issue err = %v, want ErrRequestPending", err)
	}
}

func TestWatcherRequestExpiresAfterTTL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutLink("bob", 200)
	e, _ := newTestEngine(Config{WatcherRequestTTL: 72 * time.Hour}, mem, now)

	if err := e.IssueWatcherRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	// Past the TTL the pending request reads as absent: resolving fails
	// and a fresh request is accepted.
	e.now = func() time.Time { return now.Add(73 * time.Hour) }
	if err := e.ResolveWatcherRequest(ctx, "alice", "bob", true); !errors.Is(err, ErrNoRequest) {
		t.Fatalf("resolve after TTL err = %v, want ErrNoRequest", err)
	}
	if err := e.IssueWatcherRequest(ctx, "alice", "bob"); err != nil {
		t.Fatalf("re-issue after TTL: %v", err)
	}
}

func TestWatcherRequestPreconditions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutLink("bob", 200)
	addWatcher(t, mem, "alice", "bob")
	e, _ := newTestEngine(Config{}, mem, now)

	if err := e.IssueWatcherRequest(ctx, "alice", "alice"); !errors.Is(err, ErrSelfWatch) {
		t.Fatalf("self watch err = %v, want ErrSelfWatch", err)
	}
	if err := e.IssueWatcherRequest(ctx, "alice", "nolink"); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("unlinked target err = %v, want ErrNoRecipient", err)
	}
	if err := e.IssueWatcherRequest(ctx, "alice", "bob"); !errors.Is(err, ErrAlreadyWatcher) {
		t.Fatalf("already watcher err = %v, want ErrAlreadyWatcher", err)
	}
}

func TestRemoveWatcher(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	mem := seedOwner(t, "alice", 100)
	mem.PutLink("bob", 200)
	addWatcher(t, mem, "alice", "bob")
	e, _ := newTestEngine(Config{}, mem, now)

	if err := e.RemoveWatcher(ctx, "alice", "bob"); err != nil {
		t.Fatalf("RemoveWatcher: %v", err)
	}
	watchers, err := e.ListWatchers(ctx, "alice")
	if err != nil {
		t.Fatalf("ListWatchers: %v", err)
	}
	if len(watchers) != 0 {
		t.Fatalf("watchers = %v, want empty", watchers)
	}
	if err := e.RemoveWatcher(ctx, "alice", "bob"); !errors.Is(err, ErrNotWatcher) {
		t.Fatalf("second remove err = %v, want ErrNotWatcher", err)
	}
}
