// Package camera captures live frames from a V4L2 device through GStreamer.
//
// Pipeline structure:
//
//	v4l2src → videoconvert → videoscale → videorate → capsfilter → appsink
//
// The appsink keeps at most one buffer and drops late ones (max-buffers=1,
// drop=true, sync=false): a frame that arrives while the scanner is busy is
// discarded, never queued.
package camera

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/e7canasta/orion-codescan/internal/capture"
	"github.com/e7canasta/orion-codescan/internal/frame"
)

// Options contains camera settings
type Options struct {
	Device string // e.g. /dev/video0
	Width  int
	Height int
	FPS    int
	Format frame.PixelFormat
}

// DefaultOptions returns the capture settings the scanner ships with:
// BGRA at 1920x1080.
func DefaultOptions() Options {
	return Options{Device: "/dev/video0", Width: 1920, Height: 1080, FPS: 30, Format: frame.FormatBGRA}
}

// Camera is a capture.Source backed by a GStreamer pipeline.
type Camera struct {
	opts Options

	capture.Counters
}

// New creates a camera source. Zero fields take DefaultOptions values.
func New(opts Options) *Camera {
	d := DefaultOptions()
	if opts.Device == "" {
		opts.Device = d.Device
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = d.Width, d.Height
	}
	if opts.FPS <= 0 {
		opts.FPS = d.FPS
	}
	return &Camera{opts: opts}
}

// Name implements capture.Source.
func (c *Camera) Name() string {
	return "camera:" + c.opts.Device
}

// Stats returns frame counters.
func (c *Camera) Stats() capture.Stats {
	return c.Snapshot()
}

// Caps returns the caps string the pipeline negotiates to.
func (o Options) Caps() string {
	return fmt.Sprintf("video/x-raw,format=%s,width=%d,height=%d,framerate=%d/1",
		o.Format, o.Width, o.Height, o.FPS)
}

type pipeline struct {
	pipeline *gst.Pipeline
	appsink  *app.Sink
}

func build(opts Options) (*pipeline, error) {
	// Initialize GStreamer (safe to call multiple times)
	gst.Init(nil)

	p, err := gst.NewPipeline("")
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}

	src, err := gst.NewElement("v4l2src")
	if err != nil {
		return nil, fmt.Errorf("failed to create v4l2src: %w", err)
	}
	src.SetProperty("device", opts.Device)

	converter, err := gst.NewElement("videoconvert")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoconvert: %w", err)
	}
	converter.SetProperty("n-threads", 0) // 0 = auto-detect cores

	scaler, err := gst.NewElement("videoscale")
	if err != nil {
		return nil, fmt.Errorf("failed to create videoscale: %w", err)
	}

	rate, err := gst.NewElement("videorate")
	if err != nil {
		return nil, fmt.Errorf("failed to create videorate: %w", err)
	}
	rate.SetProperty("drop-only", true) // Only drop frames, never duplicate

	capsfilter, err := gst.NewElement("capsfilter")
	if err != nil {
		return nil, fmt.Errorf("failed to create capsfilter: %w", err)
	}
	capsfilter.SetProperty("caps", gst.NewCapsFromString(opts.Caps()))

	appsink, err := app.NewAppSink()
	if err != nil {
		return nil, fmt.Errorf("failed to create appsink: %w", err)
	}
	appsink.SetProperty("sync", false)    // No sync with clock (real-time)
	appsink.SetProperty("max-buffers", 1) // Keep only latest frame
	appsink.SetProperty("drop", true)     // Drop late frames
	appsink.SetProperty("qos", true)      // Let upstream drop before conversion

	p.AddMany(src, converter, scaler, rate, capsfilter, appsink.Element)
	if err := gst.ElementLinkMany(src, converter, scaler, rate, capsfilter, appsink.Element); err != nil {
		return nil, fmt.Errorf("failed to link pipeline elements: %w", err)
	}

	return &pipeline{pipeline: p, appsink: appsink}, nil
}

// Stream implements capture.Source. It returns when ctx is done (nil) or the
// pipeline reports an error or end of stream.
func (c *Camera) Stream(ctx context.Context, submit capture.SubmitFunc) error {
	p, err := build(c.opts)
	if err != nil {
		return err
	}

	p.appsink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: func(sink *app.Sink) gst.FlowReturn {
			return c.onSample(sink, submit)
		},
	})

	if err := p.pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("failed to start pipeline: %w", err)
	}
	defer func() {
		if err := p.pipeline.SetState(gst.StateNull); err != nil {
			slog.Warn("camera: failed to stop pipeline", "error", err)
		}
	}()

	slog.Info("camera: pipeline started",
		"device", c.opts.Device,
		"caps", c.opts.Caps(),
	)
	return c.monitor(ctx, p.pipeline)
}

// monitor polls the pipeline bus until an error, end of stream or cancellation.
func (c *Camera) monitor(ctx context.Context, p *gst.Pipeline) error {
	bus := p.GetPipelineBus()
	started := time.Now()

	for {
		select {
		case <-ctx.Done():
			slog.Debug("camera: context cancelled, stopping pipeline monitor")
			return nil
		default:
		}

		// Poll with a short timeout for responsive shutdown
		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			return fmt.Errorf("end of stream after %s", time.Since(started).Round(time.Second))

		case gst.MessageError:
			gerr := msg.ParseError()
			slog.Error("camera: pipeline error",
				"error", gerr.Error(),
				"debug", gerr.DebugString(),
				"device", c.opts.Device,
				"uptime", time.Since(started),
			)
			return fmt.Errorf("pipeline error: %s (%s)", gerr.Error(), gerr.DebugString())

		case gst.MessageStateChanged:
			if msg.Source() == p.GetName() {
				old, cur := msg.ParseStateChanged()
				slog.Debug("camera: pipeline state changed", "from", old, "to", cur)
			}
		}
	}
}

// onSample hands the mapped buffer to submit without copying. The buffer stays
// mapped only for the duration of the call; the scanner copies what it keeps.
func (c *Camera) onSample(sink *app.Sink, submit capture.SubmitFunc) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		// A single bad sample must not end the stream
		slog.Warn("camera: failed to pull sample, skipping frame")
		return gst.FlowOK
	}

	buffer := sample.GetBuffer()
	if buffer == nil {
		slog.Warn("camera: sample without buffer, skipping frame")
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	defer buffer.Unmap()

	f, ok := c.newFrame(mapInfo.Bytes(), time.Now())
	if !ok {
		slog.Warn("camera: empty buffer received")
		return gst.FlowOK
	}
	c.Count(submit(f))
	return gst.FlowOK
}

// newFrame wraps data as a frame of the configured geometry. The stride is
// derived from the buffer, since GStreamer pads rows of packed RGB to 4 bytes.
func (c *Camera) newFrame(data []byte, ts time.Time) (*frame.Frame, bool) {
	if len(data) == 0 || c.opts.Height <= 0 {
		return nil, false
	}
	return &frame.Frame{
		Data:      data,
		Width:     c.opts.Width,
		Height:    c.opts.Height,
		Stride:    len(data) / c.opts.Height,
		Format:    c.opts.Format,
		Timestamp: ts,
		TraceID:   uuid.New().String(),
	}, true
}
