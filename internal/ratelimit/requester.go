package ratelimit

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Config holds the admission budget and retry policy.
type Config struct {
	Limit          int
	Window         time.Duration
	Attempts       int
	BaseDelay      time.Duration
	AttemptTimeout time.Duration
}

// DefaultConfig allows 18 requests per trailing minute with two attempts per request.
func DefaultConfig() Config {
	return Config{
		Limit:          18,
		Window:         time.Minute,
		Attempts:       2,
		BaseDelay:      time.Second,
		AttemptTimeout: 15 * time.Second,
	}
}

// Outcome is the result of Execute as seen by metrics and logs.
type Outcome string

const (
	OutcomeOK       Outcome = "ok"
	OutcomeRefused  Outcome = "refused"
	OutcomeFailed   Outcome = "failed"
	OutcomeCanceled Outcome = "canceled"
)

// Requester enforces a sliding request window and retries failed calls.
type Requester struct {
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	mu     sync.Mutex
	stamps []time.Time
}

// NewRequester builds a Requester; zero config fields fall back to DefaultConfig.
func NewRequester(cfg Config, logger *zap.Logger) *Requester {
	def := DefaultConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = def.Limit
	}
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = def.Attempts
	}
	if cfg.BaseDelay < 0 {
		cfg.BaseDelay = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Requester{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		stamps: make([]time.Time, 0, cfg.Limit),
	}
}

// WithClock replaces the time source. Intended for tests.
func (r *Requester) WithClock(now func() time.Time) *Requester {
	r.now = now
	return r
}

// TryAdmit purges expired timestamps and records a new one if the budget allows.
func (r *Requester) TryAdmit() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	cutoff := now.Add(-r.cfg.Window)
	keep := 0
	for keep < len(r.stamps) && !r.stamps[keep].After(cutoff) {
		keep++
	}
	r.stamps = append(r.stamps[:0], r.stamps[keep:]...)

	if len(r.stamps) >= r.cfg.Limit {
		return false
	}
	r.stamps = append(r.stamps, now)
	return true
}

// InWindow returns the number of admissions in the current window.
func (r *Requester) InWindow() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stamps)
}

// Execute admits and runs call with linear backoff between attempts.
// A refused admission or a final failure is reported through the outcome only.
func (r *Requester) Execute(ctx context.Context, name string, call func(context.Context) error) Outcome {
	if !r.TryAdmit() {
		r.logger.Debug("request budget exhausted", zap.String("request", name), zap.Int("limit", r.cfg.Limit))
		return OutcomeRefused
	}

	var lastErr error
	for attempt := 1; attempt <= r.cfg.Attempts; attempt++ {
		lastErr = r.attempt(ctx, call)
		if lastErr == nil {
			return OutcomeOK
		}
		if ctx.Err() != nil {
			return OutcomeCanceled
		}

		r.logger.Warn("request attempt failed",
			zap.String("request", name),
			zap.Int("attempt", attempt),
			zap.Int("attempts", r.cfg.Attempts),
			zap.Error(lastErr),
		)
		if attempt == r.cfg.Attempts {
			break
		}

		timer := time.NewTimer(r.cfg.BaseDelay * time.Duration(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return OutcomeCanceled
		case <-timer.C:
		}
	}

	r.logger.Error("request failed",
		zap.String("request", name),
		zap.String("kind", string(Classify(lastErr))),
		zap.Error(lastErr),
	)
	return OutcomeFailed
}

func (r *Requester) attempt(ctx context.Context, call func(context.Context) error) error {
	if r.cfg.AttemptTimeout <= 0 {
		return call(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.AttemptTimeout)
	defer cancel()
	return call(attemptCtx)
}
