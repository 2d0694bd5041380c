package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"taskping/internal/notify"
	"taskping/internal/store"
	"taskping/pkg/logx"
)

// captureChannel records deliveries instead of sending them anywhere.
type captureChannel struct {
	mu    sync.Mutex
	sends []capturedSend
}

type capturedSend struct {
	ChatID int64
	Msg    notify.Message
}

func (c *captureChannel) Deliver(_ context.Context, chatID int64, msg notify.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sends = append(c.sends, capturedSend{ChatID: chatID, Msg: msg})
	return nil
}

func (c *captureChannel) all() []capturedSend {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]capturedSend(nil), c.sends...)
}

func (c *captureChannel) chats() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, 0, len(c.sends))
	for _, s := range c.sends {
		out = append(out, s.ChatID)
	}
	return out
}

func (c *captureChannel) reset() {
	c.mu.Lock()
	c.sends = nil
	c.mu.Unlock()
}

func newTestEngine(cfg Config, mem *store.Memory, at time.Time) (*Engine, *captureChannel) {
	ch := &captureChannel{}
	out := notify.New(notify.Config{RatePerSec: 1000}, ch, logx.Nop())
	e := New(cfg, mem, out, logx.Nop())
	e.now = func() time.Time { return at }
	return e, ch
}

func seedOwner(t *testing.T, id string, chat int64) *store.Memory {
	t.Helper()
	mem := store.NewMemory()
	mem.PutLink(id, chat)
	return mem
}

func task(id, owner, text string, due time.Time, completed bool) store.Task {
	return store.Task{ID: id, OwnerID: owner, Text: text, DueDate: &due, Completed: completed}
}

func addWatcher(t *testing.T, mem *store.Memory, owner string, watchers ...string) {
	t.Helper()
	ctx := context.Background()
	s, err := mem.GetUserSettings(ctx, owner)
	if err != nil {
		t.Fatalf("GetUserSettings: %v", err)
	}
	s.TaskWatchers = append(s.TaskWatchers, watchers...)
	mem.PutSettings(s)
}
