package codescan

import (
	"context"
	"image"
	"time"

	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/frame"
	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/scheduler"
	"github.com/e7canasta/orion-codescan/internal/variant"
)

// Frame is re-exported from the internal package.
// See internal/frame/frame.go for the ownership contract.
type Frame = frame.Frame

// FrameFromImage builds an RGBA frame holding a copy of img.
func FrameFromImage(img image.Image, ts time.Time) *Frame {
	return frame.FromImage(img, ts)
}

// PixelFormat is re-exported from the internal package.
type PixelFormat = frame.PixelFormat

// Pixel formats accepted by Submit.
const (
	FormatBGRA = frame.FormatBGRA
	FormatRGBA = frame.FormatRGBA
	FormatRGB  = frame.FormatRGB
	FormatGray = frame.FormatGray
)

// Viewport is the on-screen area the preview is rendered into.
type Viewport = geometry.Viewport

// NewViewport builds a Viewport and derives its aspect ratio.
func NewViewport(width, height float64) Viewport {
	return geometry.NewViewport(width, height)
}

// Layout places the target window inside the viewport.
type Layout = geometry.Layout

// CropRegion is a rectangle in frame pixels.
type CropRegion = geometry.CropRegion

// Orientation is the top-down pixel orientation hint passed to decoders.
type Orientation = enhance.Orientation

// Orientations.
const (
	Up    = enhance.Up
	Right = enhance.Right
	Left  = enhance.Left
	Down  = enhance.Down
)

// EnhanceParams are the color controls of the monochrome variant.
type EnhanceParams = enhance.Params

// Decoder is the symbol-decoding capability. See package decoder for adapters.
type Decoder = variant.Decoder

// DecoderFunc adapts a function to Decoder.
type DecoderFunc = variant.DecoderFunc

// Step is one (orientation, polarity) probing step.
type Step = variant.Step

// Outcome is a successful decode.
type Outcome = variant.Outcome

// Sink receives previews, results and errors off the producer goroutine.
type Sink = scheduler.Sink

// SinkFuncs adapts optional functions to Sink.
type SinkFuncs = scheduler.SinkFuncs

// Preview, Result and ErrorReport are the deliveries made to a Sink.
type (
	Preview     = scheduler.Preview
	Result      = scheduler.Result
	ErrorReport = scheduler.ErrorReport
)

// Config tunes a Scanner. Zero-valued fields take defaults.
type Config = scheduler.Config

// Stats is a snapshot of scanner counters.
type Stats = scheduler.Stats

// Errors.
var (
	ErrAlreadyStarted = scheduler.ErrAlreadyStarted
	ErrStalled        = variant.ErrStalled
	ErrInvalidFrame   = frame.ErrInvalidFrame
)

// DefaultOrder is the documented variant probing order.
var DefaultOrder = variant.DefaultOrder

// Scanner is the public interface of the frame pipeline.
//
// Lifecycle: New() → Start() → Submit()/SetViewport() → Stop() → Start() ...
//
// Implementation is in internal/scheduler (hidden from clients).
type Scanner interface {
	// Start opens a scanning session: the gate is Idle, mailboxes are empty.
	// Returns ErrAlreadyStarted when a session is running.
	//
	// Spawns 1 goroutine (the delivery dispatcher). Non-blocking.
	Start(ctx context.Context) error

	// Stop tears the session down. Safe while a frame is in flight (it is
	// abandoned) and safe from inside Sink callbacks. Deliveries racing Stop
	// are discarded. Idempotent.
	Stop() error

	// Submit offers a frame. If no frame is in flight it is processed
	// synchronously in the caller's goroutine and Submit returns true;
	// otherwise it is dropped and Submit returns false immediately.
	//
	// Contract:
	//   - f.Data is only read during the call and never retained
	//   - f.Seq is overwritten with the admission sequence number
	Submit(f *Frame) bool

	// SetViewport replaces the viewport atomically (last writer wins). The
	// frame in flight keeps the snapshot taken when it was admitted.
	SetViewport(v Viewport)

	// Viewport returns the current viewport snapshot.
	Viewport() Viewport

	// Report delivers a collaborator error {title, message} to the Sink on
	// the dispatcher, throttled like decode errors. Returns false (and drops
	// the report) when no session is running.
	Report(title, message string) bool

	// Stats returns a non-blocking snapshot of the counters.
	Stats() Stats
}

// DefaultConfig returns the shipped settings: default layout, enhancement,
// probing order and a 2s stall timeout.
func DefaultConfig() Config {
	return scheduler.DefaultConfig()
}

// New creates a stopped Scanner.
//
// dec is required. sink may be nil when the caller only polls Stats.
func New(cfg Config, dec Decoder, sink Sink) (Scanner, error) {
	s, err := scheduler.New(cfg, dec, sink)
	if err != nil {
		return nil, err
	}
	return s, nil
}
