// Package enhance turns a cropped camera region into decoder-friendly variants:
// a contrast-boosted grayscale image and its photometric inverse.
package enhance

import (
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
)

// Rec.709 luma weights (same as the display pipeline's color controls).
const (
	lumaR = 0.2125
	lumaG = 0.7154
	lumaB = 0.0721
)

// Params are the color-control settings applied by Monochrome.
//
// Defaults were tuned on printed labels under store lighting: full
// desaturation, a mild contrast boost and a negative exposure bias that pulls
// mid-tones down so small codes separate from glare.
type Params struct {
	Brightness float64 `json:"brightness" yaml:"brightness" validate:"gte=-1,lte=1"`
	Contrast   float64 `json:"contrast" yaml:"contrast" validate:"gt=0,lte=4"`
	Saturation float64 `json:"saturation" yaml:"saturation" validate:"gte=0,lte=2"`
	ExposureEV float64 `json:"exposure_ev" yaml:"exposure_ev" validate:"gte=-4,lte=4"`
}

// DefaultParams returns the shipped enhancement settings.
func DefaultParams() Params {
	return Params{
		Brightness: 0,
		Contrast:   1.1,
		Saturation: 0,
		ExposureEV: -0.7,
	}
}

// Monochrome desaturates, adjusts brightness and contrast, then applies the
// exposure bias. Alpha is preserved. The result has its origin at (0,0).
func Monochrome(img image.Image, p Params) *image.NRGBA {
	gain := math.Exp2(p.ExposureEV)

	adjust := func(v float64) uint8 {
		v += p.Brightness
		v = (v-0.5)*p.Contrast + 0.5
		v *= gain
		return toByte(v)
	}

	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		r := float64(c.R) / 255
		g := float64(c.G) / 255
		b := float64(c.B) / 255
		luma := lumaR*r + lumaG*g + lumaB*b

		return color.NRGBA{
			R: adjust(luma + p.Saturation*(r-luma)),
			G: adjust(luma + p.Saturation*(g-luma)),
			B: adjust(luma + p.Saturation*(b-luma)),
			A: c.A,
		}
	})
}

// Invert negates the color channels: out = (1,1,1,0) - (r,g,b,0).
// Alpha is unchanged. Linear, not gamma-aware; Invert(Invert(x)) == x.
func Invert(img image.Image) *image.NRGBA {
	return imaging.Invert(img)
}

// Enhance produces the two polarity sources for one crop.
func Enhance(crop image.Image, p Params) (normal, inverted *image.NRGBA) {
	normal = Monochrome(crop, p)
	inverted = Invert(normal)
	return normal, inverted
}

func toByte(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
