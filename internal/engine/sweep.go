package engine

import (
	"context"
	"time"

	"github.com/google/uuid"

	"taskping/internal/store"
	"taskping/pkg/logx"
)

// RunDueSoonCheck sweeps for incomplete tasks whose due date is entering one
// of the configured lead-time windows and notifies the owner and watchers.
//
// The windowed sweep (±Window around each target instant) is what makes
// polling correct: an exact due-date match would routinely miss the marked
// minute under cron jitter, and as long as the sweep cadence does not exceed
// the window width every task is caught by exactly one sweep per offset, so
// due-soon needs no persisted dedup marker.
func (e *Engine) RunDueSoonCheck(ctx context.Context) {
	cfg := e.snapshot()
	now := e.now()
	log := e.log.With(logx.String("check", "due_soon"), logx.String("sweep", shortID()))

	for _, minutes := range cfg.DueSoonOffsets {
		e.sweepOffset(ctx, log, cfg, now, minutes, false)
	}
}

// RunOverdueCheck sweeps for incomplete tasks that went past due by one of
// the configured offsets. Unlike due-soon, each task must win an "overdue"
// claim before it may appear in a notification, so adjacent offset buckets
// and overlapping sweeps cannot re-ping the same task within the minimum
// interval.
func (e *Engine) RunOverdueCheck(ctx context.Context) {
	cfg := e.snapshot()
	now := e.now()
	log := e.log.With(logx.String("check", "overdue"), logx.String("sweep", shortID()))

	for _, minutes := range cfg.OverdueOffsets {
		e.sweepOffset(ctx, log, cfg, now, minutes, true)
	}
}

func (e *Engine) sweepOffset(ctx context.Context, log logx.Logger, cfg Config, now time.Time, minutes int, overdue bool) {
	offset := time.Duration(minutes) * time.Minute
	target := now.Add(offset)
	if overdue {
		target = now.Add(-offset)
	}
	from := target.Add(-cfg.Window)
	to := target.Add(cfg.Window)

	incomplete := false
	tasks, err := e.st.QueryTasks(ctx, store.TaskFilter{Completed: &incomplete, DueFrom: &from, DueTo: &to})
	if err != nil {
		log.Error("task query failed", logx.Int("offset_min", minutes), logx.Err(err))
		return
	}
	if len(tasks) == 0 {
		return
	}

	byOwner, owners := groupByOwner(tasks)
	for _, ownerID := range owners {
		ownerTasks := byOwner[ownerID]

		if overdue {
			ownerTasks = e.claimOverdue(ctx, log, cfg, now, ownerTasks)
			if len(ownerTasks) == 0 {
				continue
			}
		}

		rec, settings, err := e.resolveRecipients(ctx, ownerID)
		if err != nil {
			log.Warn("recipient resolution failed", logx.String("owner", ownerID), logx.Err(err))
			continue
		}
		if rec.empty() {
			continue
		}

		zone := settings.Timezone
		var msg = e.dueSoonMessage(ownerTasks, minutes, zone)
		if overdue {
			msg = e.overdueMessage(ownerTasks, minutes, now, zone)
		}
		sent := e.deliver(ctx, rec, msg)
		log.Info("window notification delivered",
			logx.String("owner", ownerID),
			logx.Int("offset_min", minutes),
			logx.Int("tasks", len(ownerTasks)),
			logx.Int("recipients", sent))
	}
}

// claimOverdue keeps only the tasks that win their overdue dedup claim.
// Claim denial is normal control flow ("already notified"), not an error.
func (e *Engine) claimOverdue(ctx context.Context, log logx.Logger, cfg Config, now time.Time, tasks []store.Task) []store.Task {
	granted := tasks[:0]
	for _, t := range tasks {
		ok, err := e.st.ClaimNotification(ctx, t.ID, store.CategoryOverdue, now, cfg.OverdueMinInterval)
		if err != nil {
			log.Warn("overdue claim failed", logx.String("task", t.ID), logx.Err(err))
			continue
		}
		if !ok {
			log.Debug("overdue claim denied", logx.String("task", t.ID))
			continue
		}
		granted = append(granted, t)
	}
	return granted
}

func shortID() string {
	return uuid.NewString()[:8]
}
