// Package variant probes a decoder with the photometric and orientation variants
// of one enhanced crop, in a fixed priority order, until one of them decodes.
//
// The ordering contract is data: DefaultOrder is a slice of steps iterated by a
// single loop, so the order can be read, tested and reconfigured without
// touching control flow.
package variant

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/e7canasta/orion-codescan/internal/enhance"
)

// ErrStalled is returned when the cycle context ends before the sequence does.
var ErrStalled = errors.New("variant: decode sequence stalled")

// Polarity selects the image source of a step.
type Polarity int

const (
	// Normal uses the enhanced monochrome crop as-is.
	Normal Polarity = iota
	// Inverted uses the photometric inverse of the enhanced crop.
	Inverted
)

// String returns "normal" or "inverted".
func (p Polarity) String() string {
	if p == Inverted {
		return "inverted"
	}
	return "normal"
}

// Step is one (orientation, polarity) entry of a probing order.
type Step struct {
	Orientation enhance.Orientation
	Polarity    Polarity
}

// Label is the human-readable name of the step, e.g. "up" or "left invert".
func (s Step) Label() string {
	if s.Polarity == Inverted {
		return s.Orientation.String() + " invert"
	}
	return s.Orientation.String()
}

// ParseStep parses a label produced by Step.Label.
func ParseStep(label string) (Step, error) {
	name, inv := strings.CutSuffix(strings.TrimSpace(label), " invert")
	o, err := enhance.ParseOrientation(name)
	if err != nil {
		return Step{}, fmt.Errorf("variant: bad step %q: %w", label, err)
	}
	s := Step{Orientation: o}
	if inv {
		s.Polarity = Inverted
	}
	return s, nil
}

// DefaultOrder is the probing order: orientation-major, both image sources
// tried per orientation before advancing.
var DefaultOrder = []Step{
	{enhance.Up, Normal},
	{enhance.Up, Inverted},
	{enhance.Right, Normal},
	{enhance.Right, Inverted},
	{enhance.Left, Normal},
	{enhance.Left, Inverted},
	{enhance.Down, Normal},
	{enhance.Down, Inverted},
}

// Variant is one candidate image handed to the decoder.
type Variant struct {
	Image image.Image
	Step
}

// Outcome is a successful decode.
type Outcome struct {
	Payload      string
	VariantLabel string
	Orientation  enhance.Orientation
	Polarity     Polarity
	// Attempts is the number of decoder calls made, including the successful one.
	Attempts int
}

// Event is the payload delivered to host applications:
// {"code": ..., "imageType": ...}.
func (o Outcome) Event() map[string]string {
	return map[string]string{
		"code":      o.Payload,
		"imageType": o.VariantLabel,
	}
}

// Decoder is the external symbol-decoding capability.
//
// Decode returns ("", nil) when img holds no readable code. A non-nil error is
// a recoverable fault for this image only. hint is the top-down orientation of
// img's pixels; it is independent of any rotation already applied to them.
// Implementations should return promptly when ctx is done.
type Decoder interface {
	Decode(ctx context.Context, img image.Image, hint enhance.Orientation) (string, error)
}

// DecoderFunc adapts a function to Decoder.
type DecoderFunc func(ctx context.Context, img image.Image, hint enhance.Orientation) (string, error)

// Decode calls f.
func (f DecoderFunc) Decode(ctx context.Context, img image.Image, hint enhance.Orientation) (string, error) {
	return f(ctx, img, hint)
}

// Reporter receives user-visible errors as (title, message).
type Reporter func(title, message string)
