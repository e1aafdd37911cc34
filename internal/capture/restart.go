package capture

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// RestartConfig contains configuration for exponential backoff restarts
type RestartConfig struct {
	MaxRetries     int           // Maximum consecutive restart attempts (default: 5)
	InitialBackoff time.Duration // First retry delay (default: 1 second)
	MaxBackoff     time.Duration // Retry delay cap (default: 30 seconds)
	// StableAfter resets the retry count when a session lasted at least this
	// long before failing (default: MaxBackoff).
	StableAfter time.Duration
}

// DefaultRestartConfig returns default restart configuration
func DefaultRestartConfig() RestartConfig {
	return RestartConfig{
		MaxRetries:     5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		StableAfter:    30 * time.Second,
	}
}

func (c RestartConfig) withDefaults() RestartConfig {
	d := DefaultRestartConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = d.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = d.MaxBackoff
	}
	if c.MaxBackoff < c.InitialBackoff {
		c.MaxBackoff = c.InitialBackoff
	}
	if c.StableAfter <= 0 {
		c.StableAfter = c.MaxBackoff
	}
	return c
}

// Backoff calculates the delay before retry number attempt (1-based)
//
// Formula: delay = InitialBackoff * 2^(attempt-1), capped at MaxBackoff.
// With defaults: 1s, 2s, 4s, 8s, 16s.
func Backoff(attempt int, cfg RestartConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 32 {
		return cfg.MaxBackoff
	}
	delay := cfg.InitialBackoff * time.Duration(uint64(1)<<uint(attempt-1))
	if delay > cfg.MaxBackoff || delay <= 0 {
		delay = cfg.MaxBackoff
	}
	return delay
}

// Runner runs a Source under the restart policy.
type Runner struct {
	src    Source
	cfg    RestartConfig
	report ReportFunc
	sleep  func(ctx context.Context, d time.Duration) error

	restarts  atomic.Uint32
	connected atomic.Bool

	mu       sync.Mutex
	failures map[string]uint64
}

// NewRunner wraps src. report may be nil.
func NewRunner(src Source, cfg RestartConfig, report ReportFunc) *Runner {
	return &Runner{
		src:      src,
		cfg:      cfg.withDefaults(),
		report:   report,
		sleep:    sleepCtx,
		failures: make(map[string]uint64),
	}
}

// Run streams frames into submit until ctx is done, the source ends cleanly,
// a non-retryable failure occurs or retries are exhausted.
//
// Returns nil on cancellation or clean end.
func (r *Runner) Run(ctx context.Context, submit SubmitFunc) error {
	retries := 0
	for {
		if ctx.Err() != nil {
			slog.Info("capture: context cancelled, stopping", "source", r.src.Name())
			return nil
		}

		started := time.Now()
		r.connected.Store(true)
		err := r.src.Stream(ctx, submit)
		r.connected.Store(false)

		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			slog.Info("capture: source ended", "source", r.src.Name())
			return nil
		}

		category := Classify(err)
		r.mu.Lock()
		r.failures[category.String()]++
		r.mu.Unlock()

		slog.Error("capture: source failed",
			"source", r.src.Name(),
			"error", err,
			"category", category.String(),
			"uptime", time.Since(started),
		)
		r.surface(err)

		if !category.Retryable() {
			return fmt.Errorf("capture %s: %w", r.src.Name(), err)
		}

		if time.Since(started) >= r.cfg.StableAfter {
			retries = 0
		}
		retries++
		if retries > r.cfg.MaxRetries {
			return fmt.Errorf("capture %s: max retries exceeded (%d attempts): %w", r.src.Name(), r.cfg.MaxRetries, err)
		}
		r.restarts.Add(1)

		delay := Backoff(retries, r.cfg)
		slog.Warn("capture: restarting source",
			"source", r.src.Name(),
			"attempt", retries,
			"max_retries", r.cfg.MaxRetries,
			"delay", delay,
		)
		if err := r.sleep(ctx, delay); err != nil {
			slog.Info("capture: context cancelled during backoff", "source", r.src.Name())
			return nil
		}
	}
}

func (r *Runner) surface(err error) {
	if r.report != nil {
		r.report("Error", err.Error())
	}
}

// Stats merges the source's frame counters with restart and failure counters.
func (r *Runner) Stats() Stats {
	var st Stats
	if s, ok := r.src.(interface{ Stats() Stats }); ok {
		st = s.Stats()
	}

	r.mu.Lock()
	failures := make(map[string]uint64, len(r.failures))
	for k, v := range r.failures {
		failures[k] = v
	}
	r.mu.Unlock()

	st.Restarts = r.restarts.Load()
	st.Failures = failures
	st.Connected = r.connected.Load()
	return st
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
