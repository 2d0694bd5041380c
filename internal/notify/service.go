package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"taskping/pkg/logx"
)

// Config controls outbound delivery pacing.
type Config struct {
	RatePerSec int
	Timeout    time.Duration // per delivery attempt
}

// Service wraps a Channel with rate limiting and a bounded per-attempt
// timeout. Channel errors are reported, never propagated: one recipient's
// failure must not stall the caller's iteration over the rest.
type Service struct {
	mu      sync.Mutex
	cfg     Config
	limiter *rate.Limiter

	ch  Channel
	log logx.Logger
}

func New(cfg Config, ch Channel, log logx.Logger) *Service {
	s := &Service{ch: ch, log: log}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	s.cfg = cfg
	// Burst = rate per sec so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers msg to chatID and reports success. A hung channel is cut
// off by the configured timeout and treated as a failed delivery.
func (s *Service) Send(ctx context.Context, chatID int64, msg Message) bool {
	// Snapshot mutable dependencies to avoid races with Apply().
	s.mu.Lock()
	lim := s.limiter
	timeout := s.cfg.Timeout
	s.mu.Unlock()

	if s.ch == nil {
		return false
	}
	if err := lim.Wait(ctx); err != nil {
		return false
	}

	dctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := s.ch.Deliver(dctx, chatID, msg); err != nil {
		s.log.Warn("notification delivery failed",
			logx.Int64("chat_id", chatID),
			logx.String("title", msg.Title),
			logx.Err(err))
		return false
	}
	s.log.Debug("notification delivered",
		logx.Int64("chat_id", chatID),
		logx.String("title", msg.Title))
	return true
}
