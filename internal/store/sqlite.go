package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"taskping/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

const taskColumns = `id, owner_id, text, description, completed, due_date, created_at, updated_at,
	last_overdue_notification, last_completion_notification`

func (s *sqliteStore) QueryTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	var (
		where []string
		args  []any
	)
	if f.Completed != nil {
		where = append(where, "completed = ?")
		args = append(args, boolInt(*f.Completed))
	}
	if f.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, f.OwnerID)
	}
	if f.DueFrom != nil {
		where = append(where, "due_date IS NOT NULL AND due_date >= ?")
		args = append(args, encodeTime(*f.DueFrom))
	}
	if f.DueTo != nil {
		where = append(where, "due_date IS NOT NULL AND due_date <= ?")
		args = append(args, encodeTime(*f.DueTo))
	}

	q := "SELECT " + taskColumns + " FROM tasks"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetTask(ctx context.Context, id string) (Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, ErrNotFound
	}
	if err != nil {
		return Task{}, err
	}
	return t, nil
}

// ClaimNotification reads and conditionally stamps the marker inside one
// write transaction, so concurrent claims serialize and only one wins.
func (s *sqliteStore) ClaimNotification(ctx context.Context, taskID string, cat Category, now time.Time, minInterval time.Duration) (bool, error) {
	field, ok := markerField(cat)
	if !ok {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	var raw sql.NullString
	err = tx.QueryRowContext(ctx, "SELECT "+field+" FROM tasks WHERE id = ?", taskID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if raw.Valid {
		last, err := time.Parse(time.RFC3339Nano, raw.String)
		if err == nil && now.Sub(last) < minInterval {
			return false, nil
		}
	}
	if _, err := tx.ExecContext(ctx, "UPDATE tasks SET "+field+" = ? WHERE id = ?", encodeTime(now), taskID); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

const settingsColumns = `owner_id, timezone, timezone_offset, timezone_display, timezone_abbreviation,
	task_watchers, pending_requests, last_summary_date`

func (s *sqliteStore) GetUserSettings(ctx context.Context, ownerID string) (UserSettings, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+settingsColumns+" FROM user_settings WHERE owner_id = ?", ownerID)
	us, err := scanSettings(row)
	if errors.Is(err, sql.ErrNoRows) {
		return UserSettings{OwnerID: ownerID}, nil
	}
	if err != nil {
		return UserSettings{}, err
	}
	return us, nil
}

func (s *sqliteStore) SetUserSettings(ctx context.Context, ownerID string, patch SettingsPatch) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO user_settings(owner_id) VALUES(?)", ownerID); err != nil {
		return err
	}

	var (
		sets []string
		args []any
	)
	if patch.Timezone != nil {
		sets = append(sets, "timezone = ?", "timezone_offset = ?", "timezone_display = ?", "timezone_abbreviation = ?")
		args = append(args, patch.Timezone.Zone, patch.Timezone.Offset, patch.Timezone.Display, patch.Timezone.Abbreviation)
	}
	if patch.Watchers != nil {
		b, err := json.Marshal(*patch.Watchers)
		if err != nil {
			return err
		}
		sets = append(sets, "task_watchers = ?")
		args = append(args, string(b))
	}
	if patch.Pending != nil {
		b, err := json.Marshal(*patch.Pending)
		if err != nil {
			return err
		}
		sets = append(sets, "pending_requests = ?")
		args = append(args, string(b))
	}
	if patch.LastSummaryDate != nil {
		sets = append(sets, "last_summary_date = ?")
		args = append(args, *patch.LastSummaryDate)
	}
	if len(sets) > 0 {
		args = append(args, ownerID)
		q := "UPDATE user_settings SET " + strings.Join(sets, ", ") + " WHERE owner_id = ?"
		if _, err := tx.ExecContext(ctx, q, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *sqliteStore) ListUserSettings(ctx context.Context) ([]UserSettings, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+settingsColumns+" FROM user_settings ORDER BY owner_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []UserSettings
	for rows.Next() {
		us, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, us)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ResolveRecipient(ctx context.Context, accountID string) (int64, bool, error) {
	var chatID int64
	err := s.db.QueryRowContext(ctx, "SELECT chat_id FROM recipient_links WHERE account_id = ?", accountID).Scan(&chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return chatID, true, nil
}

func (s *sqliteStore) ListRecipients(ctx context.Context) ([]RecipientLink, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT account_id, chat_id FROM recipient_links ORDER BY account_id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RecipientLink
	for rows.Next() {
		var l RecipientLink
		if err := rows.Scan(&l.AccountID, &l.ChatID); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (Task, error) {
	var (
		t                        Task
		completed                int
		due, created, updated    sql.NullString
		lastOverdue, lastDone    sql.NullString
	)
	if err := r.Scan(&t.ID, &t.OwnerID, &t.Text, &t.Description, &completed,
		&due, &created, &updated, &lastOverdue, &lastDone); err != nil {
		return Task{}, err
	}
	t.Completed = completed != 0
	t.DueDate = decodeTimePtr(due)
	if ts := decodeTimePtr(created); ts != nil {
		t.CreatedAt = *ts
	}
	if ts := decodeTimePtr(updated); ts != nil {
		t.UpdatedAt = *ts
	}
	t.LastOverdueNotification = decodeTimePtr(lastOverdue)
	t.LastCompletionNotification = decodeTimePtr(lastDone)
	return t, nil
}

func scanSettings(r rowScanner) (UserSettings, error) {
	var (
		us                UserSettings
		watchers, pending string
	)
	if err := r.Scan(&us.OwnerID, &us.Timezone, &us.TimezoneOffset, &us.TimezoneDisplay,
		&us.TimezoneAbbreviation, &watchers, &pending, &us.LastSummaryDate); err != nil {
		return UserSettings{}, err
	}
	if watchers != "" {
		if err := json.Unmarshal([]byte(watchers), &us.TaskWatchers); err != nil {
			return UserSettings{}, fmt.Errorf("decode task_watchers: %w", err)
		}
	}
	if pending != "" {
		if err := json.Unmarshal([]byte(pending), &us.PendingWatcherRequests); err != nil {
			return UserSettings{}, fmt.Errorf("decode pending_requests: %w", err)
		}
	}
	return us, nil
}

func encodeTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func decodeTimePtr(v sql.NullString) *time.Time {
	if !v.Valid || strings.TrimSpace(v.String) == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, v.String)
	if err != nil {
		return nil
	}
	return &t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
