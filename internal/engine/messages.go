package engine

import (
	"fmt"
	"strings"
	"time"

	"taskping/internal/notify"
	"taskping/internal/store"
	"taskping/internal/timezone"
)

const digestListCap = 5

func (e *Engine) dueSoonMessage(tasks []store.Task, minutes int, zone string) notify.Message {
	msg := notify.Message{
		Title:     fmt.Sprintf("⏰ Task Due in %s", humanMinutes(minutes)),
		Footer:    "TaskPing Reminder",
		Timestamp: e.now(),
	}
	if len(tasks) == 1 {
		t := tasks[0]
		msg.Body = t.Text
		if t.Description != "" {
			msg.Fields = append(msg.Fields, notify.Field{Name: "Details", Value: t.Description})
		}
		if t.DueDate != nil {
			msg.Fields = append(msg.Fields, notify.Field{Name: "Due", Value: timezone.FormatLocal(*t.DueDate, zone)})
		}
		return msg
	}
	msg.Title = fmt.Sprintf("⏰ %d Tasks Due in %s", len(tasks), humanMinutes(minutes))
	msg.Body = taskList(tasks, zone)
	return msg
}

func (e *Engine) overdueMessage(tasks []store.Task, minutes int, now time.Time, zone string) notify.Message {
	msg := notify.Message{
		Title:     "🚨 Task Overdue",
		Footer:    "TaskPing Reminder",
		Timestamp: now,
	}
	if len(tasks) == 1 {
		t := tasks[0]
		msg.Body = t.Text
		if t.Description != "" {
			msg.Fields = append(msg.Fields, notify.Field{Name: "Details", Value: t.Description})
		}
		if t.DueDate != nil {
			msg.Fields = append(msg.Fields,
				notify.Field{Name: "Was Due", Value: timezone.FormatLocal(*t.DueDate, zone)},
				notify.Field{Name: "Overdue By", Value: humanOverdue(now.Sub(*t.DueDate))})
		}
		return msg
	}
	msg.Title = fmt.Sprintf("🚨 %d Tasks Overdue", len(tasks))
	msg.Body = taskList(tasks, zone)
	return msg
}

func (e *Engine) completionMessage(t store.Task, completedAt time.Time, zone string) notify.Message {
	msg := notify.Message{
		Title:     "✅ Task Completed",
		Body:      t.Text,
		Footer:    "TaskPing",
		Timestamp: completedAt,
	}
	if t.Description != "" {
		msg.Fields = append(msg.Fields, notify.Field{Name: "Details", Value: t.Description})
	}
	if t.DueDate != nil {
		msg.Fields = append(msg.Fields, notify.Field{Name: "Was Due", Value: timezone.FormatLocal(*t.DueDate, zone)})
	}
	msg.Fields = append(msg.Fields, notify.Field{Name: "Completed", Value: timezone.FormatLocal(completedAt, zone)})
	return msg
}

func (e *Engine) digestMessage(localNow time.Time, parts digestParts) notify.Message {
	msg := notify.Message{
		Title:     "📋 Daily Task Summary",
		Body:      localNow.Format("Monday, January 2, 2006"),
		Footer:    "TaskPing Daily Digest",
		Timestamp: localNow,
	}
	msg.Fields = append(msg.Fields,
		digestSection(fmt.Sprintf("✅ Completed Today (%d)", len(parts.completedToday)), parts.completedToday, nil),
		digestSection(fmt.Sprintf("⏰ Due This Week (%d)", len(parts.dueSoon)), parts.dueSoon, nil),
		digestSection(fmt.Sprintf("🚨 Overdue (%d)", len(parts.overdue)), parts.overdue, func(t store.Task) string {
			return overdueAgo(localNow, t)
		}),
		digestSection(fmt.Sprintf("📌 Open Tasks (%d)", len(parts.incomplete)), parts.incomplete, nil),
	)
	return msg
}

// overdueAgo renders the "3 days ago" suffix for overdue digest lines.
func overdueAgo(now time.Time, t store.Task) string {
	if t.DueDate == nil {
		return ""
	}
	days := int(now.Sub(*t.DueDate).Hours() / 24)
	switch {
	case days <= 0:
		return " (today)"
	case days == 1:
		return " (1 day ago)"
	default:
		return fmt.Sprintf(" (%d days ago)", days)
	}
}

func consentPromptMessage(ownerID string) notify.Message {
	return notify.Message{
		Title: "👀 Watcher Request",
		Body: fmt.Sprintf("%s wants you to receive notifications about their tasks. "+
			"Reply with /watch accept %s or /watch decline %s.", ownerID, ownerID, ownerID),
		Footer: "TaskPing",
	}
}

func consentOutcomeMessage(targetID string, accepted bool) notify.Message {
	if accepted {
		return notify.Message{
			Title:  "👀 Watcher Added",
			Body:   fmt.Sprintf("%s accepted your watcher request and will now receive your task notifications.", targetID),
			Footer: "TaskPing",
		}
	}
	return notify.Message{
		Title:  "👀 Watcher Request Declined",
		Body:   fmt.Sprintf("%s declined your watcher request.", targetID),
		Footer: "TaskPing",
	}
}

func declineConfirmMessage(ownerID string) notify.Message {
	return notify.Message{
		Title:  "👀 Request Declined",
		Body:   fmt.Sprintf("You declined the watcher request from %s. They will not be notified about your activity.", ownerID),
		Footer: "TaskPing",
	}
}

func digestSection(name string, tasks []store.Task, suffix func(store.Task) string) notify.Field {
	if len(tasks) == 0 {
		return notify.Field{Name: name, Value: "None"}
	}
	var b strings.Builder
	for i, t := range tasks {
		if i == digestListCap {
			fmt.Fprintf(&b, "+%d more", len(tasks)-digestListCap)
			break
		}
		b.WriteString("• ")
		b.WriteString(t.Text)
		if suffix != nil {
			b.WriteString(suffix(t))
		}
		b.WriteString("\n")
	}
	return notify.Field{Name: name, Value: strings.TrimRight(b.String(), "\n")}
}

func taskList(tasks []store.Task, zone string) string {
	var b strings.Builder
	for i, t := range tasks {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• ")
		b.WriteString(t.Text)
		if t.DueDate != nil {
			fmt.Fprintf(&b, " (due %s)", timezone.FormatLocal(*t.DueDate, zone))
		}
	}
	return b.String()
}

func humanMinutes(m int) string {
	if m >= 60 && m%60 == 0 {
		h := m / 60
		if h == 1 {
			return "1 Hour"
		}
		return fmt.Sprintf("%d Hours", h)
	}
	if m == 1 {
		return "1 Minute"
	}
	return fmt.Sprintf("%d Minutes", m)
}

func humanOverdue(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d >= 48*time.Hour:
		return fmt.Sprintf("%d days", int(d.Hours()/24))
	case d >= time.Hour:
		return fmt.Sprintf("%d hours", int(d.Hours()))
	default:
		return fmt.Sprintf("%d minutes", int(d.Minutes()))
	}
}
