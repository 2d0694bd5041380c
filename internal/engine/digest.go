package engine

import (
	"context"
	"time"

	"taskping/internal/store"
	"taskping/pkg/logx"
)

// RunDailySummaryCheck fires a per-user digest at the configured local hour.
// It is meant to run every minute and be a no-op for nearly every tick: a
// user only passes the gate when their local wall-clock is inside the
// [digestHour:00, digestHour:00+window] slot and their summary marker is not
// already stamped with today's local date.
func (e *Engine) RunDailySummaryCheck(ctx context.Context) {
	cfg := e.snapshot()
	now := e.now()
	log := e.log.With(logx.String("check", "daily_summary"))

	links, err := e.st.ListRecipients(ctx)
	if err != nil {
		log.Error("recipient listing failed", logx.Err(err))
		return
	}

	windowMin := int(cfg.DigestWindow.Minutes())
	for _, link := range links {
		settings, err := e.st.GetUserSettings(ctx, link.AccountID)
		if err != nil {
			log.Warn("settings fetch failed", logx.String("owner", link.AccountID), logx.Err(err))
			continue
		}
		if settings.Timezone == "" {
			continue
		}
		loc, err := time.LoadLocation(settings.Timezone)
		if err != nil {
			log.Warn("bad timezone in profile",
				logx.String("owner", link.AccountID),
				logx.String("zone", settings.Timezone))
			continue
		}

		localNow := now.In(loc)
		if localNow.Hour() != cfg.DigestHour || localNow.Minute() > windowMin {
			continue
		}
		today := localNow.Format("2006-01-02")
		if settings.LastSummaryDate == today {
			continue
		}

		tasks, err := e.st.QueryTasks(ctx, store.TaskFilter{OwnerID: link.AccountID})
		if err != nil {
			log.Warn("task query failed", logx.String("owner", link.AccountID), logx.Err(err))
			continue
		}

		parts := partitionForDigest(tasks, now, loc)
		msg := e.digestMessage(localNow, parts)

		// Digest goes to the owner only; watchers never receive it.
		e.out.Send(ctx, link.ChatID, msg)
		if err := e.st.SetUserSettings(ctx, link.AccountID, store.SettingsPatch{LastSummaryDate: &today}); err != nil {
			log.Error("summary marker write failed", logx.String("owner", link.AccountID), logx.Err(err))
			continue
		}
		log.Info("daily summary sent",
			logx.String("owner", link.AccountID),
			logx.Int("completed_today", len(parts.completedToday)),
			logx.Int("due_soon", len(parts.dueSoon)),
			logx.Int("overdue", len(parts.overdue)),
			logx.Int("incomplete", len(parts.incomplete)))
	}
}

type digestParts struct {
	completedToday []store.Task
	dueSoon        []store.Task // due within the next 7 days
	overdue        []store.Task
	incomplete     []store.Task
}

// partitionForDigest buckets a user's tasks for the daily summary.
// "Completed today" is judged against the user's local calendar day.
func partitionForDigest(tasks []store.Task, now time.Time, loc *time.Location) digestParts {
	var p digestParts
	horizon := now.Add(7 * 24 * time.Hour)
	localToday := now.In(loc).Format("2006-01-02")

	for _, t := range tasks {
		if t.Completed {
			if !t.UpdatedAt.IsZero() && t.UpdatedAt.In(loc).Format("2006-01-02") == localToday {
				p.completedToday = append(p.completedToday, t)
			}
			continue
		}
		p.incomplete = append(p.incomplete, t)
		if t.DueDate == nil {
			continue
		}
		switch {
		case t.DueDate.Before(now):
			p.overdue = append(p.overdue, t)
		case !t.DueDate.After(horizon):
			p.dueSoon = append(p.dueSoon, t)
		}
	}
	return p
}
