// Package capture feeds frames into the scanner.
//
// A Source produces frames on its own goroutine and hands each one to a
// SubmitFunc synchronously; the scanner decides whether to keep it. Sources
// never queue: a frame the scanner rejects is gone.
//
// Run wraps a source with restart-on-failure and exponential backoff. Failures
// that a restart cannot fix (permissions, unsupported formats) end the run
// immediately.
package capture

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/e7canasta/orion-codescan/internal/frame"
)

// SubmitFunc receives one frame and reports whether it was admitted. The frame
// buffer may be reused by the source once SubmitFunc returns.
type SubmitFunc func(f *frame.Frame) bool

// ReportFunc surfaces a user-visible capture error as (title, message).
type ReportFunc func(title, message string)

// Source is a frame producer.
type Source interface {
	// Name identifies the source in logs.
	Name() string
	// Stream delivers frames to submit until ctx is done or the source fails.
	// A nil return means the source ended cleanly (e.g. a one-shot replay).
	Stream(ctx context.Context, submit SubmitFunc) error
}

// Counters are shared by sources.
type Counters struct {
	captured atomic.Uint64
	admitted atomic.Uint64
	rejected atomic.Uint64
	rate     RateMeter
}

// Count records one delivered frame.
func (c *Counters) Count(admitted bool) {
	c.captured.Add(1)
	c.rate.Observe(time.Now())
	if admitted {
		c.admitted.Add(1)
	} else {
		c.rejected.Add(1)
	}
}

// Stats contains source statistics.
type Stats struct {
	Captured  uint64            `json:"captured"`  // frames produced
	Admitted  uint64            `json:"admitted"`  // frames the scanner kept
	Rejected  uint64            `json:"rejected"`  // frames the scanner dropped (busy, stopped, invalid)
	Restarts  uint32            `json:"restarts"`  // restart attempts after failures
	Failures  map[string]uint64 `json:"failures"`  // by error category
	Connected bool              `json:"connected"` // source is streaming
	Rate      RateStats         `json:"rate"`
}

// Snapshot returns the frame counters.
func (c *Counters) Snapshot() Stats {
	return Stats{
		Captured: c.captured.Load(),
		Admitted: c.admitted.Load(),
		Rejected: c.rejected.Load(),
		Rate:     c.rate.Stats(),
	}
}
