package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config is the on-disk configuration. Duration fields are strings
// ("30s", "5m") parsed by Normalize; zero/empty means "use default".
type Config struct {
	Log      LogConfig      `json:"log"`
	Store    StoreConfig    `json:"store"`
	Telegram TelegramConfig `json:"telegram"`
	Notify   NotifyConfig   `json:"notify"`
	Engine   EngineConfig   `json:"engine"`
	Schedule ScheduleConfig `json:"schedule"`
}

type LogConfig struct {
	Level   string        `json:"level"`
	Console bool          `json:"console"`
	File    LogFileConfig `json:"file"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type StoreConfig struct {
	// Driver: "mongo", "sqlite" or "memory".
	Driver      string `json:"driver"`
	URI         string `json:"uri"`      // mongo connection string
	Database    string `json:"database"` // mongo database name
	Path        string `json:"path"`     // sqlite file path
	BusyTimeout string `json:"busy_timeout"`
}

type TelegramConfig struct {
	Token string `json:"token"`
}

type NotifyConfig struct {
	RatePerSec      int    `json:"rate_per_sec"`
	DeliveryTimeout string `json:"delivery_timeout"`
}

type EngineConfig struct {
	DueSoonOffsets        []int  `json:"due_soon_offsets"` // minutes before due
	OverdueOffsets        []int  `json:"overdue_offsets"`  // minutes past due
	WindowMinutes         int    `json:"window_minutes"`
	OverdueMinInterval    string `json:"overdue_min_interval"`
	CompletionMinInterval string `json:"completion_min_interval"`
	CompletionRecency     string `json:"completion_recency"`
	DigestHour            int    `json:"digest_hour"`
	DigestWindowMinutes   int    `json:"digest_window_minutes"`
	WatcherRequestTTL     string `json:"watcher_request_ttl"`
}

type ScheduleConfig struct {
	Completion   string `json:"completion"`
	Sweep        string `json:"sweep"` // due-soon + overdue cadence
	Digest       string `json:"digest"`
	InitialDelay string `json:"initial_delay"`
}

// Settings is the parsed, defaulted runtime view of Config.
type Settings struct {
	Log      LogConfig
	Store    StoreConfig
	Telegram TelegramConfig

	NotifyRatePerSec int
	DeliveryTimeout  time.Duration

	DueSoonOffsets        []int
	OverdueOffsets        []int
	Window                time.Duration
	OverdueMinInterval    time.Duration
	CompletionMinInterval time.Duration
	CompletionRecency     time.Duration
	DigestHour            int
	DigestWindow          time.Duration
	WatcherRequestTTL     time.Duration

	CompletionEvery time.Duration
	SweepEvery      time.Duration
	DigestEvery     time.Duration
	InitialDelay    time.Duration

	StoreBusyTimeout time.Duration
}

// Normalize validates cfg and fills defaults matching the notification
// contract (105/30/15/5 before, 15/30/60 after, ±5m windows, 17:00 digest).
func Normalize(cfg *Config) (Settings, error) {
	if cfg == nil {
		return Settings{}, errors.New("config is nil")
	}

	var (
		s   Settings
		err error
	)
	s.Log = cfg.Log
	s.Store = cfg.Store
	s.Telegram = cfg.Telegram
	if strings.TrimSpace(s.Log.Level) == "" {
		s.Log.Level = "info"
	}

	s.NotifyRatePerSec = cfg.Notify.RatePerSec
	if s.NotifyRatePerSec <= 0 {
		s.NotifyRatePerSec = 20
	}
	if s.DeliveryTimeout, err = ParseDurationOrDefault("notify.delivery_timeout", cfg.Notify.DeliveryTimeout, 10*time.Second); err != nil {
		return Settings{}, err
	}

	s.DueSoonOffsets = cfg.Engine.DueSoonOffsets
	if len(s.DueSoonOffsets) == 0 {
		s.DueSoonOffsets = []int{105, 30, 15, 5}
	}
	s.OverdueOffsets = cfg.Engine.OverdueOffsets
	if len(s.OverdueOffsets) == 0 {
		s.OverdueOffsets = []int{15, 30, 60}
	}
	for _, m := range s.DueSoonOffsets {
		if m <= 0 {
			return Settings{}, fmt.Errorf("engine.due_soon_offsets: offsets must be > 0, got %d", m)
		}
	}
	for _, m := range s.OverdueOffsets {
		if m <= 0 {
			return Settings{}, fmt.Errorf("engine.overdue_offsets: offsets must be > 0, got %d", m)
		}
	}

	win := cfg.Engine.WindowMinutes
	if win <= 0 {
		win = 5
	}
	s.Window = time.Duration(win) * time.Minute

	if s.OverdueMinInterval, err = ParseDurationOrDefault("engine.overdue_min_interval", cfg.Engine.OverdueMinInterval, 10*time.Minute); err != nil {
		return Settings{}, err
	}
	if s.CompletionMinInterval, err = ParseDurationOrDefault("engine.completion_min_interval", cfg.Engine.CompletionMinInterval, 10*time.Second); err != nil {
		return Settings{}, err
	}
	if s.CompletionRecency, err = ParseDurationOrDefault("engine.completion_recency", cfg.Engine.CompletionRecency, time.Minute); err != nil {
		return Settings{}, err
	}

	s.DigestHour = cfg.Engine.DigestHour
	if s.DigestHour == 0 {
		s.DigestHour = 17
	}
	if s.DigestHour < 0 || s.DigestHour > 23 {
		return Settings{}, fmt.Errorf("engine.digest_hour: must be 0..23, got %d", s.DigestHour)
	}
	dw := cfg.Engine.DigestWindowMinutes
	if dw <= 0 {
		dw = 5
	}
	s.DigestWindow = time.Duration(dw) * time.Minute

	if s.WatcherRequestTTL, err = ParseDurationOrDefault("engine.watcher_request_ttl", cfg.Engine.WatcherRequestTTL, 72*time.Hour); err != nil {
		return Settings{}, err
	}

	if s.CompletionEvery, err = ParseDurationOrDefault("schedule.completion", cfg.Schedule.Completion, 30*time.Second); err != nil {
		return Settings{}, err
	}
	if s.SweepEvery, err = ParseDurationOrDefault("schedule.sweep", cfg.Schedule.Sweep, 5*time.Minute); err != nil {
		return Settings{}, err
	}
	if s.DigestEvery, err = ParseDurationOrDefault("schedule.digest", cfg.Schedule.Digest, time.Minute); err != nil {
		return Settings{}, err
	}
	if s.InitialDelay, err = ParseDurationOrDefault("schedule.initial_delay", cfg.Schedule.InitialDelay, 30*time.Second); err != nil {
		return Settings{}, err
	}
	if s.StoreBusyTimeout, err = ParseDurationField("store.busy_timeout", cfg.Store.BusyTimeout); err != nil {
		return Settings{}, err
	}

	return s, nil
}
