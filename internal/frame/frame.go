// Package frame defines the raw camera frame handed to the scanner by the
// capture collaborator, plus the pixel-format plumbing needed to copy a region
// of it out before the delivery call returns.
package frame

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"time"
)

// ErrInvalidFrame is returned when a frame's buffer does not match its
// declared geometry and pixel format.
var ErrInvalidFrame = errors.New("frame: invalid frame")

// PixelFormat identifies the byte layout of Frame.Data.
type PixelFormat int

const (
	// FormatBGRA is 4 bytes per pixel, B G R A (AVFoundation / GStreamer BGRA).
	FormatBGRA PixelFormat = iota
	// FormatRGBA is 4 bytes per pixel, R G B A.
	FormatRGBA
	// FormatRGB is 3 bytes per pixel, R G B (GStreamer RGB caps).
	FormatRGB
	// FormatGray is 1 byte per pixel luminance.
	FormatGray
)

// BytesPerPixel returns the pixel size of the format.
func (p PixelFormat) BytesPerPixel() int {
	switch p {
	case FormatBGRA, FormatRGBA:
		return 4
	case FormatRGB:
		return 3
	case FormatGray:
		return 1
	default:
		return 0
	}
}

// String returns the GStreamer caps name of the format.
func (p PixelFormat) String() string {
	switch p {
	case FormatBGRA:
		return "BGRA"
	case FormatRGBA:
		return "RGBA"
	case FormatRGB:
		return "RGB"
	case FormatGray:
		return "GRAY8"
	default:
		return "unknown"
	}
}

// ParsePixelFormat maps a caps format name back to a PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch s {
	case "BGRA", "bgra":
		return FormatBGRA, nil
	case "RGBA", "rgba":
		return FormatRGBA, nil
	case "RGB", "rgb":
		return FormatRGB, nil
	case "GRAY8", "gray", "GRAY":
		return FormatGray, nil
	}
	return 0, fmt.Errorf("frame: unknown pixel format %q", s)
}

// Frame is one camera frame.
//
// OWNERSHIP CONTRACT:
//   - Data is only valid for the duration of the Submit call that delivers it.
//     Capture adapters may reuse or unmap the buffer as soon as Submit returns.
//   - The scanner never retains Data: Crop copies the region it needs.
//   - The scanner MUST NOT modify Data.
type Frame struct {
	// Data holds the raw pixels, row-major, Stride bytes per row.
	Data []byte

	// Width of the frame in pixels (sensor orientation, typically landscape).
	Width int

	// Height of the frame in pixels.
	Height int

	// Stride is the row length in bytes. Zero means Width*BytesPerPixel.
	Stride int

	// Format is the pixel layout of Data.
	Format PixelFormat

	// Timestamp when the frame was captured (source time, not processing time).
	Timestamp time.Time

	// Seq is assigned by the scanner when the frame is admitted.
	Seq uint64

	// TraceID identifies the frame across log lines. Set by the capture adapter.
	TraceID string
}

func (f *Frame) stride() int {
	if f.Stride > 0 {
		return f.Stride
	}
	return f.Width * f.Format.BytesPerPixel()
}

// Validate checks the buffer is large enough for the declared geometry.
func (f *Frame) Validate() error {
	if f == nil {
		return fmt.Errorf("%w: nil frame", ErrInvalidFrame)
	}
	bpp := f.Format.BytesPerPixel()
	if bpp == 0 {
		return fmt.Errorf("%w: unknown pixel format %d", ErrInvalidFrame, f.Format)
	}
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("%w: size %dx%d", ErrInvalidFrame, f.Width, f.Height)
	}
	stride := f.stride()
	if stride < f.Width*bpp {
		return fmt.Errorf("%w: stride %d shorter than row (%d)", ErrInvalidFrame, stride, f.Width*bpp)
	}
	need := stride*(f.Height-1) + f.Width*bpp
	if len(f.Data) < need {
		return fmt.Errorf("%w: buffer %d bytes, need %d", ErrInvalidFrame, len(f.Data), need)
	}
	return nil
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Crop copies r (intersected with the frame bounds) into a fresh NRGBA image
// whose origin is (0,0). Returns an empty image when r misses the frame.
func (f *Frame) Crop(r image.Rectangle) (*image.NRGBA, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	r = r.Intersect(f.Bounds())
	out := image.NewNRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	if r.Empty() {
		return out, nil
	}

	bpp := f.Format.BytesPerPixel()
	stride := f.stride()
	for y := 0; y < r.Dy(); y++ {
		src := f.Data[(r.Min.Y+y)*stride+r.Min.X*bpp:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < r.Dx(); x++ {
			s := src[x*bpp:]
			d := dst[x*4 : x*4+4]
			switch f.Format {
			case FormatBGRA:
				d[0], d[1], d[2], d[3] = s[2], s[1], s[0], s[3]
			case FormatRGBA:
				d[0], d[1], d[2], d[3] = s[0], s[1], s[2], s[3]
			case FormatRGB:
				d[0], d[1], d[2], d[3] = s[0], s[1], s[2], 0xff
			case FormatGray:
				d[0], d[1], d[2], d[3] = s[0], s[0], s[0], 0xff
			}
		}
	}
	return out, nil
}

// FromImage builds an RGBA frame holding a copy of img. Used by still-image
// sources and fixtures.
func FromImage(img image.Image, ts time.Time) *Frame {
	b := img.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, b.Min, draw.Src)
	return &Frame{
		Data:      rgba.Pix,
		Width:     b.Dx(),
		Height:    b.Dy(),
		Stride:    rgba.Stride,
		Format:    FormatRGBA,
		Timestamp: ts,
	}
}
