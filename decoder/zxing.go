package decoder

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"

	"github.com/e7canasta/orion-codescan/internal/enhance"
)

// ZXing decodes QR, Code 128 and EAN-13 with github.com/makiuchi-d/gozxing.
//
// The hint is applied to the pixels: the 1D readers scan rows, so an upright
// image matters for them. Readers are built per call; a ZXing is safe for
// concurrent use.
type ZXing struct {
	readers []namedReader
	hints   map[gozxing.DecodeHintType]interface{}
}

type namedReader struct {
	name      string
	newReader func() gozxing.Reader
}

// NewZXing returns a decoder trying QR first, then Code 128, then EAN-13.
func NewZXing() *ZXing {
	return &ZXing{
		readers: []namedReader{
			{"qr", func() gozxing.Reader { return qrcode.NewQRCodeReader() }},
			{"code128", func() gozxing.Reader { return oned.NewCode128Reader() }},
			{"ean13", func() gozxing.Reader { return oned.NewEAN13Reader() }},
		},
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode implements variant.Decoder.
func (z *ZXing) Decode(ctx context.Context, img image.Image, hint enhance.Orientation) (payload string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	up, err := upright(img, hint)
	if err != nil {
		return "", err
	}
	defer guard("gozxing", &err)

	bmp, err := gozxing.NewBinaryBitmapFromImage(up)
	if err != nil {
		return "", fmt.Errorf("gozxing: bitmap: %w", err)
	}

	for _, r := range z.readers {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, err := r.newReader().Decode(bmp, z.hints)
		if err != nil {
			if !isMiss(err) {
				return "", fmt.Errorf("gozxing %s: %w", r.name, err)
			}
			continue
		}
		if text := res.GetText(); text != "" {
			slog.Debug("decoder: gozxing hit", "reader", r.name, "format", res.GetBarcodeFormat().String())
			return text, nil
		}
	}
	return "", nil
}

// isMiss reports whether err means "nothing readable here".
func isMiss(err error) bool {
	switch err.(type) {
	case gozxing.NotFoundException, gozxing.ChecksumException, gozxing.FormatException:
		return true
	}
	return false
}
