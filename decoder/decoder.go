// Package decoder adapts existing symbol-decoding libraries to the scanner's
// Decoder contract. Nothing here implements a decoding algorithm.
//
// Contract (see codescan.Decoder):
//   - ("", nil): no readable code in the image
//   - (payload, nil): decoded
//   - ("", err): the decoder itself failed on this image
//
// "Not found", checksum and format failures of the underlying libraries are
// ordinary misses on a live feed and map to ("", nil).
package decoder

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/variant"
)

// ErrEmptyImage is returned for images with no pixels.
var ErrEmptyImage = errors.New("decoder: empty image")

// ErrUnknown is returned by New for an unregistered name.
var ErrUnknown = errors.New("decoder: unknown decoder")

var registry = map[string]func() variant.Decoder{
	"zxing": func() variant.Decoder { return NewZXing() },
	"goqr":  func() variant.Decoder { return NewGoQR() },
	"chain": func() variant.Decoder { return Chain{NewGoQR(), NewZXing()} },
}

// Names lists the registered decoder names.
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New returns the decoder registered under name.
func New(name string) (variant.Decoder, error) {
	mk, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("%w %q (have %s)", ErrUnknown, name, strings.Join(Names(), ", "))
	}
	return mk(), nil
}

// Chain tries decoders in order and returns the first payload. If none
// decodes and at least one failed, the first failure is returned.
type Chain []variant.Decoder

// Decode implements variant.Decoder.
func (c Chain) Decode(ctx context.Context, img image.Image, hint enhance.Orientation) (string, error) {
	var first error
	for _, d := range c {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		payload, err := d.Decode(ctx, img, hint)
		if err != nil {
			if first == nil {
				first = err
			}
			continue
		}
		if payload != "" {
			return payload, nil
		}
	}
	return "", first
}

// upright applies the orientation hint and guarantees a (0,0) origin, which
// the libraries below assume.
func upright(img image.Image, hint enhance.Orientation) (image.Image, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrEmptyImage
	}
	out := enhance.Orient(img, hint)
	if out.Bounds().Min != (image.Point{}) {
		out = imaging.Clone(out)
	}
	return out, nil
}

// guard turns a library panic into a decoder fault.
func guard(name string, err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("%s: panic: %v", name, r)
	}
}
