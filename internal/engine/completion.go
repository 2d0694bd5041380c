package engine

import (
	"context"
	"errors"

	"taskping/internal/store"
	"taskping/pkg/logx"
)

// RunCompletionCheck notifies the owner and watchers of newly completed
// tasks. With a task id it checks that task alone (immediate-trigger mode);
// with an empty id it sweeps all completed tasks and keeps only those whose
// updatedAt clears the recency floor, since older completions were handled
// by a previous sweep.
//
// Every candidate, targeted or swept, must win a "completion" claim before
// sending: a targeted trigger and an overlapping sweep can race on the same
// task, and exactly one may deliver.
func (e *Engine) RunCompletionCheck(ctx context.Context, taskID string) {
	cfg := e.snapshot()
	now := e.now()
	log := e.log.With(logx.String("check", "completion"), logx.String("sweep", shortID()))

	var candidates []store.Task
	if taskID != "" {
		t, err := e.st.GetTask(ctx, taskID)
		if errors.Is(err, store.ErrNotFound) {
			log.Info("task not found for immediate notification", logx.String("task", taskID))
			return
		}
		if err != nil {
			log.Error("task fetch failed", logx.String("task", taskID), logx.Err(err))
			return
		}
		if !t.Completed {
			log.Debug("task not completed, skipping", logx.String("task", taskID))
			return
		}
		candidates = []store.Task{t}
	} else {
		completed := true
		tasks, err := e.st.QueryTasks(ctx, store.TaskFilter{Completed: &completed})
		if err != nil {
			log.Error("task query failed", logx.Err(err))
			return
		}
		floor := now.Add(-cfg.CompletionRecency)
		for _, t := range tasks {
			if t.UpdatedAt.IsZero() || t.UpdatedAt.Before(floor) {
				continue
			}
			candidates = append(candidates, t)
		}
	}

	notified := 0
	for _, t := range candidates {
		ok, err := e.st.ClaimNotification(ctx, t.ID, store.CategoryCompletion, now, cfg.CompletionMinInterval)
		if err != nil {
			log.Warn("completion claim failed", logx.String("task", t.ID), logx.Err(err))
			continue
		}
		if !ok {
			log.Debug("completion claim denied", logx.String("task", t.ID))
			continue
		}

		rec, settings, err := e.resolveRecipients(ctx, t.OwnerID)
		if err != nil {
			log.Warn("recipient resolution failed", logx.String("owner", t.OwnerID), logx.Err(err))
			continue
		}
		if rec.empty() {
			continue
		}

		completedAt := t.UpdatedAt
		if completedAt.IsZero() {
			completedAt = now
		}
		msg := e.completionMessage(t, completedAt, settings.Timezone)
		sent := e.deliver(ctx, rec, msg)
		notified++
		log.Info("completion notification delivered",
			logx.String("task", t.ID),
			logx.String("owner", t.OwnerID),
			logx.Int("recipients", sent))
	}
	if len(candidates) > 0 {
		log.Debug("completion check finished",
			logx.Int("candidates", len(candidates)),
			logx.Int("notified", notified))
	}
}
