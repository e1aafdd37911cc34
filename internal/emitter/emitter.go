// Package emitter delivers scanner output to the outside world: structured
// logs, a length-prefixed msgpack stream for a host application, Redis pub/sub
// and a debug preview directory.
//
// Every emitter implements scheduler.Sink and runs on the scheduler's
// dispatcher goroutine. Emitters never return errors to the scanner; failures
// are logged and counted.
package emitter

import (
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/scheduler"
)

// Event types.
const (
	TypeResult = "result"
	TypeError  = "error"
)

// Event is the wire form of a result or error report, shared by the msgpack,
// Redis and websocket channels. Code and ImageType mirror the host event
// payload {"code", "imageType"}.
type Event struct {
	Type      string               `msgpack:"type" json:"type"`
	Instance  string               `msgpack:"instance" json:"instance"`
	Seq       uint64               `msgpack:"seq" json:"seq"`
	TraceID   string               `msgpack:"trace_id,omitempty" json:"trace_id,omitempty"`
	Code      string               `msgpack:"code,omitempty" json:"code,omitempty"`
	ImageType string               `msgpack:"imageType,omitempty" json:"imageType,omitempty"`
	Attempts  int                  `msgpack:"attempts,omitempty" json:"attempts,omitempty"`
	Region    *geometry.CropRegion `msgpack:"region,omitempty" json:"region,omitempty"`
	LatencyMS float64              `msgpack:"latency_ms,omitempty" json:"latency_ms,omitempty"`
	Title     string               `msgpack:"title,omitempty" json:"title,omitempty"`
	Message   string               `msgpack:"message,omitempty" json:"message,omitempty"`
	Timestamp int64                `msgpack:"ts" json:"ts"` // unix milliseconds
}

// FromResult converts a decode result.
func FromResult(instance string, r scheduler.Result) Event {
	region := r.Region
	return Event{
		Type:      TypeResult,
		Instance:  instance,
		Seq:       r.Seq,
		TraceID:   r.TraceID,
		Code:      r.Outcome.Payload,
		ImageType: r.Outcome.VariantLabel,
		Attempts:  r.Outcome.Attempts,
		Region:    &region,
		LatencyMS: float64(r.Latency.Microseconds()) / 1000,
		Timestamp: r.At.UnixMilli(),
	}
}

// FromError converts an error report.
func FromError(instance string, e scheduler.ErrorReport) Event {
	return Event{
		Type:      TypeError,
		Instance:  instance,
		Seq:       e.Seq,
		Title:     e.Title,
		Message:   e.Message,
		Timestamp: e.At.UnixMilli(),
	}
}

// Time returns the event timestamp.
func (e Event) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

// Fanout forwards every delivery to each sink in order. A panicking sink does
// not prevent later sinks from running.
type Fanout []scheduler.Sink

// OnPreview implements scheduler.Sink.
func (f Fanout) OnPreview(p scheduler.Preview) {
	for _, s := range f {
		safely("preview", func() { s.OnPreview(p) })
	}
}

// OnResult implements scheduler.Sink.
func (f Fanout) OnResult(r scheduler.Result) {
	for _, s := range f {
		safely("result", func() { s.OnResult(r) })
	}
}

// OnError implements scheduler.Sink.
func (f Fanout) OnError(e scheduler.ErrorReport) {
	for _, s := range f {
		safely("error", func() { s.OnError(e) })
	}
}

// Close closes every sink that implements io.Closer and joins their errors.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func safely(kind string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("emitter: sink panicked", "kind", kind, "panic", r)
		}
	}()
	fn()
}
