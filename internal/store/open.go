package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"taskping/pkg/logx"
)

// Store is the document-store API the notification engine runs against.
//
// ClaimNotification is the dedup primitive: it atomically reads the task's
// per-category marker and stamps it with now, but only when the marker is
// absent or older than minInterval. Exactly one of any set of racing claims
// wins. All notification paths must claim before sending.
type Store interface {
	QueryTasks(ctx context.Context, f TaskFilter) ([]Task, error)
	GetTask(ctx context.Context, id string) (Task, error)
	ClaimNotification(ctx context.Context, taskID string, cat Category, now time.Time, minInterval time.Duration) (bool, error)

	GetUserSettings(ctx context.Context, ownerID string) (UserSettings, error)
	SetUserSettings(ctx context.Context, ownerID string, patch SettingsPatch) error
	ListUserSettings(ctx context.Context) ([]UserSettings, error)

	ResolveRecipient(ctx context.Context, accountID string) (chatID int64, ok bool, err error)
	ListRecipients(ctx context.Context) ([]RecipientLink, error)

	Close() error
}

// Open initializes the configured driver.
func Open(ctx context.Context, cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "mongo", "mongodb":
		return openMongo(ctx, cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	case "":
		return nil, errors.New("store driver is required")
	default:
		return nil, errors.New("unknown store driver: " + cfg.Driver)
	}
}

// markerField maps a category to its task document field.
func markerField(cat Category) (string, bool) {
	switch cat {
	case CategoryOverdue:
		return "last_overdue_notification", true
	case CategoryCompletion:
		return "last_completion_notification", true
	default:
		return "", false
	}
}
