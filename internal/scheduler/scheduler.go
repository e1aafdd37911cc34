// Package scheduler implements the frame gate: at most one frame in flight,
// every frame arriving while busy is dropped, never queued.
//
// Philosophy: "Drop frames, never queue. Latency > Completeness."
//
// Goroutine topology (per session):
//   - producer: the capture goroutine calling Submit. Processing runs here,
//     synchronously, so no frame buffer is ever needed.
//   - 1 dispatcher: delivers previews, results and errors to the Sink.
//   - 0-1 transient: the decode call of the current variant (abandoned on
//     stall or Stop).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/frame"
	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/variant"
)

// ErrAlreadyStarted is returned by Start on a running scheduler.
var ErrAlreadyStarted = errors.New("scheduler: already started")

// session is the state owned by one Start..Stop span. Restarting builds a new
// one, so a restart always begins Idle with empty mailboxes.
type session struct {
	ctx    context.Context
	cancel context.CancelFunc

	state   atomic.Int32
	d       *dispatcher
	seq     *variant.Sequencer
	limiter *rate.Limiter
}

// Scheduler routes admitted frames through crop → enhance → variant probing.
//
// Thread-safety: all methods are safe for concurrent use. Submit is designed
// for a single producer but tolerates several (the gate still admits one).
type Scheduler struct {
	cfg  Config
	dec  variant.Decoder
	sink Sink

	viewport atomic.Pointer[geometry.Viewport]

	mu   sync.Mutex // serializes Start/Stop
	sess atomic.Pointer[session]

	frameSeq atomic.Uint64

	// --- counters (lifetime) ---
	submitted, admitted, droppedBusy, notRunning, invalidFrames atomic.Uint64
	skippedViewport, skippedRegion                              atomic.Uint64
	decoded, noMatch, decodeErrors, stalls, abandoned           atomic.Uint64
	previewDrops, eventDrops, errorsSuppressed                  atomic.Uint64
	lastDecodeAt, lastCycle                                     atomic.Int64
}

// New builds a stopped scheduler. Zero-valued Config fields take defaults.
func New(cfg Config, dec variant.Decoder, sink Sink) (*Scheduler, error) {
	if dec == nil {
		return nil, fmt.Errorf("scheduler: nil decoder")
	}
	if sink == nil {
		sink = SinkFuncs{}
	}
	cfg = cfg.withDefaults()

	s := &Scheduler{cfg: cfg, dec: dec, sink: sink}
	vp := geometry.NewViewport(cfg.Viewport.Width, cfg.Viewport.Height)
	s.viewport.Store(&vp)
	return s, nil
}

// Start opens a new session. Frames are admitted until Stop or until ctx is
// cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cur := s.sess.Load(); cur != nil && cur.ctx.Err() == nil {
		return ErrAlreadyStarted
	}

	sess := &session{
		d:       newDispatcher(s.sink, s.cfg.EventQueue, &s.previewDrops, &s.eventDrops),
		limiter: rate.NewLimiter(rate.Limit(s.cfg.ErrorRate), s.cfg.ErrorBurst),
	}
	sess.ctx, sess.cancel = context.WithCancel(ctx)
	sess.seq = variant.NewSequencer(s.dec, s.cfg.Order, func(title, message string) {
		s.decodeErrors.Add(1)
		s.reportError(sess, title, message, 0)
	})

	go sess.d.run()
	go func() {
		// Parent cancellation tears the session down like Stop.
		<-sess.ctx.Done()
		sess.d.close()
	}()

	s.sess.Store(sess)
	slog.Info("scheduler: started",
		"process_timeout", s.cfg.ProcessTimeout,
		"variants", len(sess.seq.Order()),
	)
	return nil
}

// Stop tears the current session down.
//
// Behavior:
//   - no frame is admitted after Stop returns
//   - an in-flight frame is abandoned at its next decode boundary
//   - queued deliveries are discarded
//
// Stop does not wait for the dispatcher, so it may be called from a Sink
// callback. A callback the dispatcher had already entered when Stop was
// called may still be running when Stop returns; nothing queued is delivered
// after that. Idempotent.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.sess.Swap(nil)
	if sess == nil {
		return nil
	}
	sess.cancel()
	sess.d.close()

	slog.Info("scheduler: stopped", "admitted", s.admitted.Load(), "dropped_busy", s.droppedBusy.Load())
	return nil
}

// SetViewport replaces the viewport. Last writer wins; the frame in flight
// keeps the snapshot it took at admission.
func (s *Scheduler) SetViewport(v geometry.Viewport) {
	v = geometry.NewViewport(v.Width, v.Height)
	s.viewport.Store(&v)
	slog.Debug("scheduler: viewport updated", "width", v.Width, "height", v.Height)
}

// Viewport returns the current viewport snapshot.
func (s *Scheduler) Viewport() geometry.Viewport {
	return *s.viewport.Load()
}

// Submit offers a frame to the gate.
//
// Returns true when the frame was admitted and processed (in this goroutine,
// before Submit returns). Returns false immediately when a frame is already
// in flight, when stopped, or when f is malformed. f.Data is not retained.
func (s *Scheduler) Submit(f *frame.Frame) bool {
	s.submitted.Add(1)

	sess := s.sess.Load()
	if sess == nil || sess.ctx.Err() != nil {
		s.notRunning.Add(1)
		return false
	}

	if !sess.state.CompareAndSwap(int32(Idle), int32(Processing)) {
		s.droppedBusy.Add(1)
		return false
	}
	defer sess.state.Store(int32(Idle))

	if err := f.Validate(); err != nil {
		s.invalidFrames.Add(1)
		s.reportError(sess, "Invalid frame", err.Error(), 0)
		return false
	}

	s.admitted.Add(1)
	f.Seq = s.frameSeq.Add(1)
	s.process(sess, f)
	return true
}

// process runs one cycle. Errors never leave the cycle.
func (s *Scheduler) process(sess *session, f *frame.Frame) {
	start := time.Now()
	defer func() { s.lastCycle.Store(int64(time.Since(start))) }()

	vp := s.Viewport()
	if !vp.Valid() {
		s.skippedViewport.Add(1)
		return
	}

	region := geometry.ComputeCropRegion(f.Width, f.Height, vp, s.cfg.Layout)
	clamped, ok := region.Clamp(f.Width, f.Height)
	if !ok {
		s.skippedRegion.Add(1)
		slog.Debug("scheduler: crop outside frame", "seq", f.Seq, "region", region)
		return
	}

	crop, err := f.Crop(clamped.Rect())
	if err != nil {
		s.invalidFrames.Add(1)
		s.reportError(sess, "Invalid frame", err.Error(), f.Seq)
		return
	}

	normal, inverted := enhance.Enhance(crop, s.cfg.Enhance)
	if !s.cfg.DisablePreview {
		sess.d.postPreview(Preview{
			Seq:     f.Seq,
			TraceID: f.TraceID,
			Image:   normal,
			Region:  clamped,
			At:      time.Now(),
		})
	}

	ctx, cancel := context.WithTimeout(sess.ctx, s.cfg.ProcessTimeout)
	defer cancel()

	out, ok, err := sess.seq.TryDecode(ctx, normal, inverted)
	switch {
	case err != nil && sess.ctx.Err() != nil:
		s.abandoned.Add(1)
		slog.Debug("scheduler: cycle abandoned on stop", "seq", f.Seq)
		return
	case err != nil:
		s.stalls.Add(1)
		slog.Warn("scheduler: cycle stalled", "seq", f.Seq, "trace_id", f.TraceID, "timeout", s.cfg.ProcessTimeout, "error", err)
		// Stall reports bypass the error limiter.
		s.postError(sess, "Scanner stalled", err.Error(), f.Seq)
		return
	case !ok:
		s.noMatch.Add(1)
		return
	}

	now := time.Now()
	s.decoded.Add(1)
	s.lastDecodeAt.Store(now.UnixNano())
	slog.Info("scheduler: code decoded",
		"seq", f.Seq,
		"trace_id", f.TraceID,
		"variant", out.VariantLabel,
		"attempts", out.Attempts,
	)

	sess.d.postEvent(event{result: &Result{
		Seq:     f.Seq,
		TraceID: f.TraceID,
		Outcome: out,
		Region:  clamped,
		Latency: now.Sub(start),
		At:      now,
	}})
}

// Report surfaces an error from a collaborator (e.g. capture) through the same
// throttled delivery path as decode errors. Returns false when not running.
func (s *Scheduler) Report(title, message string) bool {
	sess := s.sess.Load()
	if sess == nil || sess.ctx.Err() != nil {
		return false
	}
	s.reportError(sess, title, message, 0)
	return true
}

// reportError throttles and queues a user-visible error.
func (s *Scheduler) reportError(sess *session, title, message string, seq uint64) {
	if !sess.limiter.Allow() {
		s.errorsSuppressed.Add(1)
		return
	}
	s.postError(sess, title, message, seq)
}

func (s *Scheduler) postError(sess *session, title, message string, seq uint64) {
	sess.d.postEvent(event{err: &ErrorReport{
		Title:   title,
		Message: message,
		Seq:     seq,
		At:      time.Now(),
	}})
}

// Stats returns a snapshot of the counters.
func (s *Scheduler) Stats() Stats {
	st := Stats{
		State:            "stopped",
		Submitted:        s.submitted.Load(),
		Admitted:         s.admitted.Load(),
		DroppedBusy:      s.droppedBusy.Load(),
		NotRunning:       s.notRunning.Load(),
		InvalidFrames:    s.invalidFrames.Load(),
		SkippedViewport:  s.skippedViewport.Load(),
		SkippedRegion:    s.skippedRegion.Load(),
		Decoded:          s.decoded.Load(),
		NoMatch:          s.noMatch.Load(),
		DecodeErrors:     s.decodeErrors.Load(),
		Stalls:           s.stalls.Load(),
		Abandoned:        s.abandoned.Load(),
		PreviewDrops:     s.previewDrops.Load(),
		EventDrops:       s.eventDrops.Load(),
		ErrorsSuppressed: s.errorsSuppressed.Load(),
		LastCycle:        time.Duration(s.lastCycle.Load()),
		Viewport:         s.Viewport(),
	}
	if ns := s.lastDecodeAt.Load(); ns != 0 {
		st.LastDecodeAt = time.Unix(0, ns)
	}
	if sess := s.sess.Load(); sess != nil && sess.ctx.Err() == nil {
		st.Running = true
		st.State = State(sess.state.Load()).String()
	}
	return st
}
