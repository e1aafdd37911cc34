package variant

import (
	"context"
	"fmt"
	"image"
	"log/slog"
)

// Sequencer runs the probing order against a decoder.
//
// A Sequencer holds no per-frame state and may be shared, but the scanner only
// ever drives it from the single in-flight frame.
type Sequencer struct {
	dec    Decoder
	order  []Step
	report Reporter
}

// NewSequencer builds a sequencer. A nil or empty order means DefaultOrder;
// a nil reporter discards decoder faults (they are still logged).
func NewSequencer(dec Decoder, order []Step, report Reporter) *Sequencer {
	if len(order) == 0 {
		order = DefaultOrder
	}
	if report == nil {
		report = func(string, string) {}
	}
	o := make([]Step, len(order))
	copy(o, order)
	return &Sequencer{dec: dec, order: o, report: report}
}

// Order returns a copy of the probing order.
func (s *Sequencer) Order() []Step {
	o := make([]Step, len(s.order))
	copy(o, s.order)
	return o
}

// Variants expands the two polarity sources into the ordered candidate list.
func (s *Sequencer) Variants(normal, inverted image.Image) []Variant {
	vs := make([]Variant, len(s.order))
	for i, st := range s.order {
		img := normal
		if st.Polarity == Inverted {
			img = inverted
		}
		vs[i] = Variant{Image: img, Step: st}
	}
	return vs
}

// TryDecode probes each variant in order and stops at the first non-empty
// payload. Later variants are never invoked.
//
// Returns:
//   - (outcome, true, nil): a variant decoded
//   - (Outcome{}, false, nil): no variant decoded (normal "no code" result)
//   - (Outcome{}, false, ErrStalled): ctx ended first (deadline or teardown)
//
// Decoder faults are reported as ("Decode failed", err) and count as a failed
// variant; the sequence continues.
func (s *Sequencer) TryDecode(ctx context.Context, normal, inverted image.Image) (Outcome, bool, error) {
	for i, v := range s.Variants(normal, inverted) {
		if err := ctx.Err(); err != nil {
			return Outcome{}, false, fmt.Errorf("%w after %d attempts: %v", ErrStalled, i, err)
		}

		payload, err := s.call(ctx, v)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, false, fmt.Errorf("%w at %q: %v", ErrStalled, v.Label(), ctx.Err())
			}
			slog.Debug("variant: decoder fault", "variant", v.Label(), "error", err)
			s.report("Decode failed", err.Error())
			continue
		}

		if payload != "" {
			return Outcome{
				Payload:      payload,
				VariantLabel: v.Label(),
				Orientation:  v.Orientation,
				Polarity:     v.Polarity,
				Attempts:     i + 1,
			}, true, nil
		}
	}
	return Outcome{}, false, nil
}

type decodeResult struct {
	payload string
	err     error
}

// call runs one decode and abandons it if ctx ends first. The abandoned
// goroutine finishes on its own; its result is discarded.
func (s *Sequencer) call(ctx context.Context, v Variant) (string, error) {
	done := make(chan decodeResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- decodeResult{err: fmt.Errorf("decoder panic: %v", p)}
			}
		}()
		payload, err := s.dec.Decode(ctx, v.Image, v.Orientation)
		done <- decodeResult{payload, err}
	}()

	select {
	case r := <-done:
		return r.payload, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
