// Package geometry maps the fixed on-screen target window onto a pixel region of
// the camera frame.
//
// The capture sensor is mounted 90° to the portrait display, so a landscape
// frame (e.g. 1920x1080) is viewed as a portrait image (1080x1920). The preview
// layer fills the viewport (aspect fill), which means one dimension of the
// viewed image is cropped. The limiting dimension decides the scale between
// viewport units and frame pixels:
//
//	imageAspect = viewedWidth / viewedHeight
//	imageAspect > viewport.AspectRatio  → scale = viewedHeight / viewport.Height
//	otherwise                           → scale = viewedWidth  / viewport.Width
//
// The target window is a fixed logical square displaced from the frame center.
// Its constants were tuned empirically for one camera/overlay pair, so they are
// configuration (Layout), not derived values.
package geometry

import (
	"image"
)

// Viewport is the on-screen area the camera preview is rendered into, in
// logical units. Treat as an immutable value: replace, don't mutate.
type Viewport struct {
	Width       float64 `json:"width" yaml:"width"`
	Height      float64 `json:"height" yaml:"height"`
	AspectRatio float64 `json:"aspect_ratio" yaml:"-"`
}

// NewViewport builds a viewport and derives its aspect ratio.
func NewViewport(width, height float64) Viewport {
	v := Viewport{Width: width, Height: height}
	if height != 0 {
		v.AspectRatio = width / height
	}
	return v
}

// Valid reports whether the viewport is non-degenerate.
func (v Viewport) Valid() bool {
	return v.Width > 0 && v.Height > 0
}

// Layout holds the logical placement of the target window, in viewport units.
// Offsets are relative to the frame center in frame axes (x right, y down).
type Layout struct {
	OffsetX float64 `json:"offset_x" yaml:"offset_x"`
	OffsetY float64 `json:"offset_y" yaml:"offset_y"`
	Size    float64 `json:"size" yaml:"size" validate:"gt=0"`
}

// DefaultLayout is the target overlay the scanner ships with:
// 28 units right, 56 units up, 80 units square.
var DefaultLayout = Layout{OffsetX: 28, OffsetY: -56, Size: 80}

// CropRegion is a rectangle in source-frame pixels.
type CropRegion struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Rect converts the region to an image.Rectangle.
func (r CropRegion) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Clamp intersects the region with a frameWidth x frameHeight frame.
// The boolean is false when nothing of the region lies inside the frame.
func (r CropRegion) Clamp(frameWidth, frameHeight int) (CropRegion, bool) {
	in := r.Rect().Intersect(image.Rect(0, 0, frameWidth, frameHeight))
	if in.Empty() {
		return CropRegion{}, false
	}
	return CropRegion{X: in.Min.X, Y: in.Min.Y, Width: in.Dx(), Height: in.Dy()}, true
}

// Center returns the integer center the region was built around.
func (r CropRegion) Center() image.Point {
	return image.Pt(r.X+r.Width/2, r.Y+r.Height/2)
}

// Scale returns frame pixels per viewport unit for a frame as delivered by the
// sensor (landscape) shown in a portrait viewport.
//
// The viewport is not validated: callers must skip frames while it is degenerate.
func Scale(frameWidth, frameHeight int, vp Viewport) float64 {
	viewedWidth := float64(frameHeight)
	viewedHeight := float64(frameWidth)
	imageAspect := viewedWidth / viewedHeight

	if imageAspect > vp.AspectRatio {
		return viewedHeight / vp.Height
	}
	return viewedWidth / vp.Width
}

// ComputeCropRegion places the layout's target window inside the frame.
//
// Integer conversions truncate toward zero at the same points every time, so
// identical inputs give bit-identical regions. The result may extend past the
// frame edges; use Clamp before reading pixels.
func ComputeCropRegion(frameWidth, frameHeight int, vp Viewport, l Layout) CropRegion {
	scale := Scale(frameWidth, frameHeight, vp)

	centerX := frameWidth/2 + int(l.OffsetX*scale)
	centerY := frameHeight/2 + int(l.OffsetY*scale)
	size := int(l.Size * scale)

	return CropRegion{
		X:      centerX - size/2,
		Y:      centerY - size/2,
		Width:  size,
		Height: size,
	}
}
