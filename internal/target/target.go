// Package target renders synthetic camera frames with a QR code placed on the
// scan window. Used by cmd/mktarget and tests.
package target

import (
	"fmt"
	"image"
	"image/color"
	stddraw "image/draw"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
	"golang.org/x/image/draw"

	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/geometry"
)

// Options control how the code is drawn.
type Options struct {
	// Background is the frame fill outside the code.
	Background color.Color
	// Invert draws a light-on-dark code.
	Invert bool
	// Turn rotates the code inside its square (Right = 90° clockwise).
	Turn enhance.Orientation
}

// QR renders content as a size x size code including its quiet zone.
func QR(content string, size int, opt Options) (*image.NRGBA, error) {
	q, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("target: encode %q: %w", content, err)
	}

	// go-qrcode never renders below its module size; scale to the exact side.
	src := q.Image(size)
	dst := image.NewNRGBA(image.Rect(0, 0, size, size))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	var out image.Image = dst
	if opt.Invert {
		out = imaging.Invert(out)
	}
	out = enhance.Orient(out, opt.Turn)
	return imaging.Clone(out), nil
}

// Frame renders a width x height frame with the code filling region.
// The region may extend past the frame; the overflow is clipped.
func Frame(width, height int, region geometry.CropRegion, content string, opt Options) (*image.NRGBA, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("target: bad frame size %dx%d", width, height)
	}
	if region.Width <= 0 || region.Width != region.Height {
		return nil, fmt.Errorf("target: region must be a non-empty square, got %dx%d", region.Width, region.Height)
	}

	bg := opt.Background
	if bg == nil {
		bg = color.NRGBA{R: 96, G: 104, B: 112, A: 255}
	}
	frame := image.NewNRGBA(image.Rect(0, 0, width, height))
	stddraw.Draw(frame, frame.Bounds(), image.NewUniform(bg), image.Point{}, stddraw.Src)

	code, err := QR(content, region.Width, opt)
	if err != nil {
		return nil, err
	}
	stddraw.Draw(frame, region.Rect(), code, image.Point{}, stddraw.Src)
	return frame, nil
}

// ForViewport places the code where a scanner with viewport vp and layout l
// will crop, and returns the region used.
func ForViewport(width, height int, vp geometry.Viewport, l geometry.Layout, content string, opt Options) (*image.NRGBA, geometry.CropRegion, error) {
	if !vp.Valid() {
		return nil, geometry.CropRegion{}, fmt.Errorf("target: invalid viewport %vx%v", vp.Width, vp.Height)
	}
	region := geometry.ComputeCropRegion(width, height, vp, l)
	img, err := Frame(width, height, region, content, opt)
	return img, region, err
}
