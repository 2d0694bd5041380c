// Package engine implements the notification evaluators and the watcher
// consent protocol.
//
// Evaluators are stateless between invocations except for state persisted
// in the document store (dedup markers, watcher lists, pending requests,
// summary markers). They are safe to invoke concurrently with themselves
// and each other; the only strict ordering requirement is inside
// Store.ClaimNotification.
package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"taskping/internal/notify"
	"taskping/internal/store"
	"taskping/pkg/logx"
)

// Config carries the evaluator tunables. Zero values fall back to the
// contract defaults.
type Config struct {
	DueSoonOffsets []int // minutes before due
	OverdueOffsets []int // minutes past due
	Window         time.Duration

	OverdueMinInterval    time.Duration
	CompletionMinInterval time.Duration
	CompletionRecency     time.Duration

	DigestHour   int
	DigestWindow time.Duration

	WatcherRequestTTL time.Duration
}

func (c Config) withDefaults() Config {
	if len(c.DueSoonOffsets) == 0 {
		c.DueSoonOffsets = []int{105, 30, 15, 5}
	}
	if len(c.OverdueOffsets) == 0 {
		c.OverdueOffsets = []int{15, 30, 60}
	}
	if c.Window <= 0 {
		c.Window = 5 * time.Minute
	}
	if c.OverdueMinInterval <= 0 {
		c.OverdueMinInterval = 10 * time.Minute
	}
	if c.CompletionMinInterval <= 0 {
		c.CompletionMinInterval = 10 * time.Second
	}
	if c.CompletionRecency <= 0 {
		c.CompletionRecency = time.Minute
	}
	if c.DigestHour <= 0 {
		c.DigestHour = 17
	}
	if c.DigestWindow <= 0 {
		c.DigestWindow = 5 * time.Minute
	}
	if c.WatcherRequestTTL <= 0 {
		c.WatcherRequestTTL = 72 * time.Hour
	}
	return c
}

// Engine evaluates tasks against the current time and pushes notifications
// through the notify service.
type Engine struct {
	mu  sync.Mutex
	cfg Config

	st  store.Store
	out *notify.Service
	log logx.Logger

	now func() time.Time
}

func New(cfg Config, st store.Store, out *notify.Service, log logx.Logger) *Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg: cfg.withDefaults(),
		st:  st,
		out: out,
		log: log,
		now: time.Now,
	}
}

func (e *Engine) Apply(cfg Config) {
	e.mu.Lock()
	e.cfg = cfg.withDefaults()
	e.mu.Unlock()
}

func (e *Engine) snapshot() Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg
}

// recipients is a resolved fan-out set for one owner's notifications.
type recipients struct {
	ownerChat int64
	ownerOK   bool
	watchers  []int64 // chat ids; never contains the owner's chat
}

func (r recipients) empty() bool { return !r.ownerOK && len(r.watchers) == 0 }

// resolveRecipients maps an owner to the chat ids that should receive that
// owner's notifications: the owner plus every consented watcher with a
// linked channel. Watchers without a link are skipped, not fatal. The
// owner's settings come back too so callers don't re-fetch them.
func (e *Engine) resolveRecipients(ctx context.Context, ownerID string) (recipients, store.UserSettings, error) {
	var rec recipients

	chat, ok, err := e.st.ResolveRecipient(ctx, ownerID)
	if err != nil {
		return rec, store.UserSettings{}, err
	}
	rec.ownerChat = chat
	rec.ownerOK = ok

	settings, err := e.st.GetUserSettings(ctx, ownerID)
	if err != nil {
		return rec, store.UserSettings{}, err
	}
	for _, watcherID := range settings.TaskWatchers {
		wchat, ok, err := e.st.ResolveRecipient(ctx, watcherID)
		if err != nil {
			e.log.Warn("watcher recipient lookup failed",
				logx.String("owner", ownerID), logx.String("watcher", watcherID), logx.Err(err))
			continue
		}
		if !ok || (rec.ownerOK && wchat == rec.ownerChat) {
			continue
		}
		rec.watchers = append(rec.watchers, wchat)
	}
	return rec, settings, nil
}

// deliver fans msg out to every resolved recipient. Failures are isolated
// per recipient by the notify service. Returns the delivered count.
func (e *Engine) deliver(ctx context.Context, rec recipients, msg notify.Message) int {
	sent := 0
	if rec.ownerOK {
		if e.out.Send(ctx, rec.ownerChat, msg) {
			sent++
		}
	}
	for _, chat := range rec.watchers {
		if e.out.Send(ctx, chat, msg) {
			sent++
		}
	}
	return sent
}

// groupByOwner buckets tasks per owner and returns the owner ids sorted for
// deterministic iteration.
func groupByOwner(tasks []store.Task) (map[string][]store.Task, []string) {
	byOwner := map[string][]store.Task{}
	for _, t := range tasks {
		byOwner[t.OwnerID] = append(byOwner[t.OwnerID], t)
	}
	owners := make([]string, 0, len(byOwner))
	for id := range byOwner {
		owners = append(owners, id)
	}
	sort.Strings(owners)
	return byOwner, owners
}
