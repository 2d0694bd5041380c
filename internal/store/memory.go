package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a map-backed Store for tests and local development. The single
// mutex makes ClaimNotification a true atomic read-modify-write, matching
// the transactional drivers.
type Memory struct {
	mu       sync.Mutex
	tasks    map[string]Task
	settings map[string]UserSettings
	links    map[string]int64
}

func NewMemory() *Memory {
	return &Memory{
		tasks:    map[string]Task{},
		settings: map[string]UserSettings{},
		links:    map[string]int64{},
	}
}

// PutTask inserts or replaces a task. Test/dev seeding only; the real CRUD
// surface lives outside this engine.
func (m *Memory) PutTask(t Task) {
	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()
}

// PutLink registers an account's chat id.
func (m *Memory) PutLink(accountID string, chatID int64) {
	m.mu.Lock()
	m.links[accountID] = chatID
	m.mu.Unlock()
}

// PutSettings inserts or replaces a settings document.
func (m *Memory) PutSettings(s UserSettings) {
	m.mu.Lock()
	m.settings[s.OwnerID] = s
	m.mu.Unlock()
}

func (m *Memory) QueryTasks(_ context.Context, f TaskFilter) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Task
	for _, t := range m.tasks {
		if !matchTask(t, f) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func matchTask(t Task, f TaskFilter) bool {
	if f.Completed != nil && t.Completed != *f.Completed {
		return false
	}
	if f.OwnerID != "" && t.OwnerID != f.OwnerID {
		return false
	}
	if f.DueFrom != nil || f.DueTo != nil {
		if t.DueDate == nil {
			return false
		}
		if f.DueFrom != nil && t.DueDate.Before(*f.DueFrom) {
			return false
		}
		if f.DueTo != nil && t.DueDate.After(*f.DueTo) {
			return false
		}
	}
	return true
}

func (m *Memory) GetTask(_ context.Context, id string) (Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Task{}, ErrNotFound
	}
	return t, nil
}

func (m *Memory) ClaimNotification(_ context.Context, taskID string, cat Category, now time.Time, minInterval time.Duration) (bool, error) {
	if _, ok := markerField(cat); !ok {
		return false, nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return false, nil
	}
	var marker **time.Time
	switch cat {
	case CategoryOverdue:
		marker = &t.LastOverdueNotification
	case CategoryCompletion:
		marker = &t.LastCompletionNotification
	}
	if *marker != nil && now.Sub(**marker) < minInterval {
		return false, nil
	}
	stamp := now
	*marker = &stamp
	m.tasks[taskID] = t
	return true, nil
}

func (m *Memory) GetUserSettings(_ context.Context, ownerID string) (UserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[ownerID]
	if !ok {
		return UserSettings{OwnerID: ownerID}, nil
	}
	return s, nil
}

func (m *Memory) SetUserSettings(_ context.Context, ownerID string, patch SettingsPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.settings[ownerID]
	if !ok {
		s = UserSettings{OwnerID: ownerID}
	}
	if patch.Timezone != nil {
		s.Timezone = patch.Timezone.Zone
		s.TimezoneOffset = patch.Timezone.Offset
		s.TimezoneDisplay = patch.Timezone.Display
		s.TimezoneAbbreviation = patch.Timezone.Abbreviation
	}
	if patch.Watchers != nil {
		s.TaskWatchers = append([]string(nil), (*patch.Watchers)...)
	}
	if patch.Pending != nil {
		cp := make(map[string]PendingRequest, len(*patch.Pending))
		for k, v := range *patch.Pending {
			cp[k] = v
		}
		s.PendingWatcherRequests = cp
	}
	if patch.LastSummaryDate != nil {
		s.LastSummaryDate = *patch.LastSummaryDate
	}
	m.settings[ownerID] = s
	return nil
}

func (m *Memory) ListUserSettings(_ context.Context) ([]UserSettings, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]UserSettings, 0, len(m.settings))
	for _, s := range m.settings {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OwnerID < out[j].OwnerID })
	return out, nil
}

func (m *Memory) ResolveRecipient(_ context.Context, accountID string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.links[accountID]
	return id, ok, nil
}

func (m *Memory) ListRecipients(_ context.Context) ([]RecipientLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]RecipientLink, 0, len(m.links))
	for acc, chat := range m.links {
		out = append(out, RecipientLink{AccountID: acc, ChatID: chat})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AccountID < out[j].AccountID })
	return out, nil
}

func (m *Memory) Close() error { return nil }
