// Package app assembles the notifier: config, store, delivery channel and
// the evaluator schedule.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"taskping/internal/adapters/telegram"
	"taskping/internal/config"
	"taskping/internal/engine"
	"taskping/internal/notify"
	"taskping/internal/store"
	"taskping/pkg/logx"
)

type App struct {
	cfgm *config.Manager
	log  logx.Logger

	st   store.Store
	out  *notify.Service
	eng  *engine.Engine
	cron *cron.Cron

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(ctx context.Context, cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	settings, err := config.Normalize(cfg)
	if err != nil {
		return nil, err
	}

	log := logx.New(logx.Config{
		Level:   settings.Log.Level,
		Console: settings.Log.Console,
		File: logx.FileConfig{
			Enabled: settings.Log.File.Enabled,
			Path:    settings.Log.File.Path,
		},
	})
	cfgm.SetLogger(log.With(logx.String("comp", "config")))

	st, err := store.Open(ctx, store.Config{
		Driver:      settings.Store.Driver,
		URI:         settings.Store.URI,
		Database:    settings.Store.Database,
		Path:        settings.Store.Path,
		BusyTimeout: settings.StoreBusyTimeout,
	}, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	ch, err := telegram.New(telegram.Config{Token: settings.Telegram.Token},
		log.With(logx.String("comp", "telegram")))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("telegram channel: %w", err)
	}

	out := notify.New(notify.Config{
		RatePerSec: settings.NotifyRatePerSec,
		Timeout:    settings.DeliveryTimeout,
	}, ch, log.With(logx.String("comp", "notify")))

	eng := engine.New(engineConfig(settings), st, out, log.With(logx.String("comp", "engine")))

	return &App{
		cfgm: cfgm,
		log:  log.With(logx.String("comp", "app")),
		st:   st,
		out:  out,
		eng:  eng,
	}, nil
}

// Start registers the evaluator schedule and begins watching the config
// file. Cadence changes take effect on restart; evaluator and delivery
// tunables re-apply live.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	settings, err := config.Normalize(cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	a.cron = cron.New()
	if _, err := a.cron.AddFunc(every(settings.CompletionEvery), func() {
		a.eng.RunCompletionCheck(runCtx, "")
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule completion: %w", err)
	}
	if _, err := a.cron.AddFunc(every(settings.SweepEvery), func() {
		a.eng.RunDueSoonCheck(runCtx)
		a.eng.RunOverdueCheck(runCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	if _, err := a.cron.AddFunc(every(settings.DigestEvery), func() {
		a.eng.RunDailySummaryCheck(runCtx)
	}); err != nil {
		cancel()
		return fmt.Errorf("schedule digest: %w", err)
	}
	a.cron.Start()

	// One full pass shortly after boot so a restart doesn't sit idle for a
	// whole sweep interval.
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		select {
		case <-runCtx.Done():
			return
		case <-time.After(settings.InitialDelay):
		}
		a.log.Info("running initial notification pass")
		a.eng.RunDueSoonCheck(runCtx)
		a.eng.RunOverdueCheck(runCtx)
		a.eng.RunCompletionCheck(runCtx, "")
		a.eng.RunDailySummaryCheck(runCtx)
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(runCtx); err != nil && runCtx.Err() == nil {
			a.log.Error("config watch stopped", logx.Err(err))
		}
	}()

	updates := a.cfgm.Subscribe(4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(updates)
		for {
			select {
			case <-runCtx.Done():
				return
			case next, ok := <-updates:
				if !ok {
					return
				}
				a.applyConfig(next)
			}
		}
	}()

	a.log.Info("notifier started",
		logx.Duration("completion_every", settings.CompletionEvery),
		logx.Duration("sweep_every", settings.SweepEvery),
		logx.Duration("digest_every", settings.DigestEvery))
	return nil
}

func (a *App) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}
	if a.cron != nil {
		stopped := a.cron.Stop()
		select {
		case <-stopped.Done():
		case <-ctx.Done():
		}
	}
	a.wg.Wait()
	err := a.st.Close()
	a.log.Info("notifier stopped")
	return err
}

func (a *App) applyConfig(cfg *config.Config) {
	settings, err := config.Normalize(cfg)
	if err != nil {
		a.log.Warn("rejecting config update", logx.Err(err))
		return
	}
	a.eng.Apply(engineConfig(settings))
	a.out.Apply(notify.Config{
		RatePerSec: settings.NotifyRatePerSec,
		Timeout:    settings.DeliveryTimeout,
	})
	a.log.Info("config update applied")
}

func engineConfig(s config.Settings) engine.Config {
	return engine.Config{
		DueSoonOffsets:        s.DueSoonOffsets,
		OverdueOffsets:        s.OverdueOffsets,
		Window:                s.Window,
		OverdueMinInterval:    s.OverdueMinInterval,
		CompletionMinInterval: s.CompletionMinInterval,
		CompletionRecency:     s.CompletionRecency,
		DigestHour:            s.DigestHour,
		DigestWindow:          s.DigestWindow,
		WatcherRequestTTL:     s.WatcherRequestTTL,
	}
}

func every(d time.Duration) string {
	return "@every " + d.String()
}
