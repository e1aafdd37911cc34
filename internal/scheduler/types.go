package scheduler

import (
	"image"
	"time"

	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/variant"
)

// State of the frame gate.
type State int32

const (
	// Idle accepts the next frame.
	Idle State = iota
	// Processing drops every arriving frame.
	Processing
)

// String returns "idle" or "processing".
func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "idle"
}

// Preview is the enhanced (monochrome, non-inverted) crop of an admitted frame.
// Image is owned by the receiver.
type Preview struct {
	Seq     uint64
	TraceID string
	Image   *image.NRGBA
	Region  geometry.CropRegion
	At      time.Time
}

// Result is a successful decode of an admitted frame.
type Result struct {
	Seq     uint64
	TraceID string
	Outcome variant.Outcome
	Region  geometry.CropRegion
	// Latency is measured from admission to the decode.
	Latency time.Duration
	At      time.Time
}

// ErrorReport is a user-visible error, {title, message}.
type ErrorReport struct {
	Title   string
	Message string
	Seq     uint64
	At      time.Time
}

// Sink receives deliveries on the scheduler's dispatcher goroutine, never on
// the producer goroutine. Calls are serialized. A slow sink only causes drops
// (counted in Stats), never producer backpressure.
//
// Sink methods may call Scheduler.Stop.
type Sink interface {
	OnPreview(p Preview)
	OnResult(r Result)
	OnError(e ErrorReport)
}

// SinkFuncs adapts optional functions to Sink. Nil fields are skipped.
type SinkFuncs struct {
	Preview func(Preview)
	Result  func(Result)
	Error   func(ErrorReport)
}

// OnPreview implements Sink.
func (s SinkFuncs) OnPreview(p Preview) {
	if s.Preview != nil {
		s.Preview(p)
	}
}

// OnResult implements Sink.
func (s SinkFuncs) OnResult(r Result) {
	if s.Result != nil {
		s.Result(r)
	}
}

// OnError implements Sink.
func (s SinkFuncs) OnError(e ErrorReport) {
	if s.Error != nil {
		s.Error(e)
	}
}

// Config tunes one scheduler.
type Config struct {
	// Layout places the target window in viewport units.
	Layout geometry.Layout

	// Enhance are the color controls for the monochrome variant.
	Enhance enhance.Params

	// Order is the variant probing order (empty = variant.DefaultOrder).
	Order []variant.Step

	// Viewport is the initial viewport. Frames are skipped until it is valid.
	Viewport geometry.Viewport

	// ProcessTimeout bounds one cycle's decode sequence. A cycle that exceeds
	// it is abandoned, reported as stalled and the gate returns to Idle.
	ProcessTimeout time.Duration

	// EventQueue is the capacity of the result/error mailbox. When full, new
	// events are dropped.
	EventQueue int

	// ErrorRate and ErrorBurst throttle error reports (per second).
	ErrorRate  float64
	ErrorBurst int

	// DisablePreview turns off preview delivery.
	DisablePreview bool
}

// DefaultConfig returns the shipped settings.
func DefaultConfig() Config {
	return Config{
		Layout:         geometry.DefaultLayout,
		Enhance:        enhance.DefaultParams(),
		Order:          variant.DefaultOrder,
		ProcessTimeout: 2 * time.Second,
		EventQueue:     16,
		ErrorRate:      2,
		ErrorBurst:     5,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Layout.Size <= 0 {
		c.Layout = d.Layout
	}
	if c.Enhance == (enhance.Params{}) {
		c.Enhance = d.Enhance
	}
	if len(c.Order) == 0 {
		c.Order = d.Order
	}
	if c.ProcessTimeout <= 0 {
		c.ProcessTimeout = d.ProcessTimeout
	}
	if c.EventQueue <= 0 {
		c.EventQueue = d.EventQueue
	}
	if c.ErrorRate <= 0 {
		c.ErrorRate = d.ErrorRate
	}
	if c.ErrorBurst <= 0 {
		c.ErrorBurst = d.ErrorBurst
	}
	return c
}

// Stats is a snapshot of scheduler counters. Counters are lifetime values and
// survive Stop/Start.
type Stats struct {
	// Running is true between Start and Stop.
	Running bool `json:"running"`
	// State is the gate state of the current session ("stopped" when not running).
	State string `json:"state"`

	// Submitted counts every Submit call.
	Submitted uint64 `json:"submitted"`
	// Admitted counts frames that passed the gate (Idle on arrival).
	Admitted uint64 `json:"admitted"`
	// DroppedBusy counts frames that arrived while Processing.
	DroppedBusy uint64 `json:"dropped_busy"`
	// NotRunning counts frames submitted while stopped.
	NotRunning uint64 `json:"not_running"`
	// InvalidFrames counts frames whose buffer did not match their geometry.
	InvalidFrames uint64 `json:"invalid_frames"`

	// SkippedViewport counts admitted frames skipped for a degenerate viewport.
	SkippedViewport uint64 `json:"skipped_viewport"`
	// SkippedRegion counts admitted frames whose crop missed the frame.
	SkippedRegion uint64 `json:"skipped_region"`

	// Decoded counts cycles that produced a payload.
	Decoded uint64 `json:"decoded"`
	// NoMatch counts cycles where every variant failed.
	NoMatch uint64 `json:"no_match"`
	// DecodeErrors counts decoder faults (one per failed variant).
	DecodeErrors uint64 `json:"decode_errors"`
	// Stalls counts cycles abandoned on ProcessTimeout.
	Stalls uint64 `json:"stalls"`
	// Abandoned counts cycles cut short by Stop.
	Abandoned uint64 `json:"abandoned"`

	// PreviewDrops counts previews overwritten before delivery.
	PreviewDrops uint64 `json:"preview_drops"`
	// EventDrops counts results/errors dropped on a full mailbox.
	EventDrops uint64 `json:"event_drops"`
	// ErrorsSuppressed counts error reports throttled by the rate limiter.
	ErrorsSuppressed uint64 `json:"errors_suppressed"`

	// LastDecodeAt is the time of the last successful decode.
	LastDecodeAt time.Time `json:"last_decode_at"`
	// LastCycle is the duration of the last completed cycle.
	LastCycle time.Duration `json:"last_cycle"`

	Viewport geometry.Viewport `json:"viewport"`
}
