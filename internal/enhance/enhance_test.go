package enhance

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// allValues returns a 256x4 image covering every 8-bit value on every channel,
// with a few alpha levels.
func allValues() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 256, 4))
	alphas := []uint8{255, 128, 1, 0}
	for y, a := range alphas {
		for x := 0; x < 256; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(255 - x), B: uint8(x * 7), A: a})
		}
	}
	return img
}

// TestInvertRoundTrip verifies Invert(Invert(x)) == x for all pixel values.
func TestInvertRoundTrip(t *testing.T) {
	src := allValues()
	got := Invert(Invert(src))
	assert.Equal(t, src.Pix, got.Pix)
}

// TestInvertPreservesAlpha verifies the color channels are negated and alpha kept.
func TestInvertPreservesAlpha(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 77})

	got := Invert(src).NRGBAAt(0, 0)
	assert.Equal(t, color.NRGBA{R: 245, G: 235, B: 225, A: 77}, got)
}

func TestMonochromeDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   color.NRGBA
		want uint8
	}{
		// (1-0.5)*1.1+0.5 = 1.05, * 2^-0.7 = 0.646 → 165
		{"white", color.NRGBA{255, 255, 255, 255}, 165},
		// (0-0.5)*1.1+0.5 = -0.05 → clamped
		{"black", color.NRGBA{0, 0, 0, 255}, 0},
		// 0.50196 → 0.50216 * 0.6156 = 0.3091 → 79
		{"mid gray", color.NRGBA{128, 128, 128, 255}, 79},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := image.NewNRGBA(image.Rect(0, 0, 1, 1))
			src.SetNRGBA(0, 0, tt.in)

			got := Monochrome(src, DefaultParams()).NRGBAAt(0, 0)
			assert.Equal(t, color.NRGBA{tt.want, tt.want, tt.want, 255}, got)
		})
	}
}

// TestMonochromeDesaturates verifies colored input becomes gray and keeps luma order.
func TestMonochromeDesaturates(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 3, 1))
	src.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	src.SetNRGBA(1, 0, color.NRGBA{0, 255, 0, 255})
	src.SetNRGBA(2, 0, color.NRGBA{0, 0, 255, 200})

	out := Monochrome(src, DefaultParams())
	for x := 0; x < 3; x++ {
		c := out.NRGBAAt(x, 0)
		assert.Equal(t, c.R, c.G, "x=%d", x)
		assert.Equal(t, c.G, c.B, "x=%d", x)
	}

	red, green, blue := out.NRGBAAt(0, 0), out.NRGBAAt(1, 0), out.NRGBAAt(2, 0)
	assert.Greater(t, green.R, red.R)
	assert.Greater(t, red.R, blue.R)
	assert.Equal(t, uint8(200), blue.A)
}

// TestMonochromeIdentity verifies neutral params leave pixels unchanged.
func TestMonochromeIdentity(t *testing.T) {
	src := allValues()
	neutral := Params{Brightness: 0, Contrast: 1, Saturation: 1, ExposureEV: 0}

	got := Monochrome(src, neutral)
	assert.Equal(t, src.Pix, got.Pix)
}

func TestEnhance(t *testing.T) {
	src := image.NewNRGBA(image.Rect(5, 5, 9, 9))
	for y := 5; y < 9; y++ {
		for x := 5; x < 9; x++ {
			src.SetNRGBA(x, y, color.NRGBA{uint8(x * 20), uint8(y * 20), 90, 255})
		}
	}

	normal, inverted := Enhance(src, DefaultParams())
	require.Equal(t, image.Rect(0, 0, 4, 4), normal.Bounds())
	require.Equal(t, normal.Bounds(), inverted.Bounds())

	for i := 0; i < len(normal.Pix); i += 4 {
		assert.Equal(t, 255-normal.Pix[i], inverted.Pix[i])
		assert.Equal(t, normal.Pix[i+3], inverted.Pix[i+3])
	}
}

func TestOrient(t *testing.T) {
	a := color.NRGBA{255, 0, 0, 255}
	b := color.NRGBA{0, 0, 255, 255}
	src := image.NewNRGBA(image.Rect(0, 0, 2, 1))
	src.SetNRGBA(0, 0, a)
	src.SetNRGBA(1, 0, b)

	at := func(img image.Image, x, y int) color.NRGBA {
		return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
	}

	up := Orient(src, Up)
	assert.Same(t, src, up)

	right := Orient(src, Right)
	require.Equal(t, image.Rect(0, 0, 1, 2), right.Bounds())
	assert.Equal(t, a, at(right, 0, 0))
	assert.Equal(t, b, at(right, 0, 1))

	left := Orient(src, Left)
	require.Equal(t, image.Rect(0, 0, 1, 2), left.Bounds())
	assert.Equal(t, b, at(left, 0, 0))
	assert.Equal(t, a, at(left, 0, 1))

	down := Orient(src, Down)
	require.Equal(t, image.Rect(0, 0, 2, 1), down.Bounds())
	assert.Equal(t, b, at(down, 0, 0))
	assert.Equal(t, a, at(down, 1, 0))
}

func TestParseOrientation(t *testing.T) {
	for _, o := range []Orientation{Up, Right, Left, Down} {
		got, err := ParseOrientation(o.String())
		require.NoError(t, err)
		assert.Equal(t, o, got)
	}
	_, err := ParseOrientation("sideways")
	assert.Error(t, err)
}
