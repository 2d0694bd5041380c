package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("store: not found")

// Category names a notification kind with a persisted dedup marker.
type Category string

const (
	CategoryOverdue    Category = "overdue"
	CategoryCompletion Category = "completion"
)

// Config selects and configures the store driver.
//
// Driver values:
//   - "mongo":  document database (primary deployment target)
//   - "sqlite": local database file
//   - "memory": in-process maps (tests, dev)
type Config struct {
	Driver      string
	URI         string // mongo connection string
	Database    string // mongo database name
	Path        string // sqlite file path
	BusyTimeout time.Duration
}

// Task is one schedulable unit of work. The CRUD surface owns every field
// except the notification markers, which only this engine writes.
type Task struct {
	ID          string     `bson:"_id,omitempty" json:"id"`
	OwnerID     string     `bson:"owner_id" json:"ownerId"`
	Text        string     `bson:"text" json:"text"`
	Description string     `bson:"description,omitempty" json:"description,omitempty"`
	Completed   bool       `bson:"completed" json:"completed"`
	DueDate     *time.Time `bson:"due_date,omitempty" json:"dueDate,omitempty"`
	CreatedAt   time.Time  `bson:"created_at" json:"createdAt"`
	UpdatedAt   time.Time  `bson:"updated_at" json:"updatedAt"`

	LastOverdueNotification    *time.Time `bson:"last_overdue_notification,omitempty" json:"lastOverdueNotification,omitempty"`
	LastCompletionNotification *time.Time `bson:"last_completion_notification,omitempty" json:"lastCompletionNotification,omitempty"`
}

// TaskFilter supports equality on Completed/OwnerID and a range on DueDate.
// Nil fields are ignored. DueFrom/DueTo are inclusive and imply the task has
// a due date at all.
type TaskFilter struct {
	Completed *bool
	OwnerID   string
	DueFrom   *time.Time
	DueTo     *time.Time
}

// PendingRequest is one in-flight watcher consent request, stored on the
// prospective watcher's settings keyed by the requesting owner's id.
type PendingRequest struct {
	ID          string    `bson:"id" json:"id"`
	RequestedAt time.Time `bson:"requested_at" json:"requestedAt"`
}

// UserSettings is the per-account settings document: timezone profile,
// watcher relation, pending consent requests and the daily summary marker.
type UserSettings struct {
	OwnerID                string                    `bson:"_id,omitempty" json:"ownerId"`
	Timezone               string                    `bson:"timezone,omitempty" json:"timezone,omitempty"`
	TimezoneOffset         int                       `bson:"timezone_offset,omitempty" json:"timezoneOffset,omitempty"`
	TimezoneDisplay        string                    `bson:"timezone_display,omitempty" json:"timezoneDisplay,omitempty"`
	TimezoneAbbreviation   string                    `bson:"timezone_abbreviation,omitempty" json:"timezoneAbbreviation,omitempty"`
	TaskWatchers           []string                  `bson:"task_watchers,omitempty" json:"taskWatchers,omitempty"`
	PendingWatcherRequests map[string]PendingRequest `bson:"pending_watcher_requests,omitempty" json:"pendingWatcherRequests,omitempty"`
	LastSummaryDate        string                    `bson:"last_summary_date,omitempty" json:"lastSummaryDate,omitempty"`
}

// TimezoneProfile is the timezone portion of UserSettings, written as a unit.
type TimezoneProfile struct {
	Zone         string // IANA name, "" when only the offset is known
	Offset       int    // whole hours from UTC
	Display      string
	Abbreviation string
}

// SettingsPatch is a merge-write against UserSettings. Nil fields are left
// untouched; to clear a collection field, point at an empty value.
type SettingsPatch struct {
	Timezone        *TimezoneProfile
	Watchers        *[]string
	Pending         *map[string]PendingRequest
	LastSummaryDate *string
}

// RecipientLink maps an account id to its messaging-platform chat id.
// Rows are created by the (external) account-linking flow; this engine only
// reads them.
type RecipientLink struct {
	AccountID string `bson:"_id" json:"accountId"`
	ChatID    int64  `bson:"chat_id" json:"chatId"`
}
