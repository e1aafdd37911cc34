package decoder

import (
	"context"
	"image"
	"log/slog"

	"github.com/liyue201/goqr"

	"github.com/e7canasta/orion-codescan/internal/enhance"
)

// GoQR decodes QR codes with github.com/liyue201/goqr.
//
// goqr has no orientation parameter; the hint is applied to the pixels.
type GoQR struct{}

// NewGoQR returns a GoQR decoder.
func NewGoQR() *GoQR {
	return &GoQR{}
}

// Decode implements variant.Decoder. Only the first code found is returned.
func (GoQR) Decode(ctx context.Context, img image.Image, hint enhance.Orientation) (payload string, err error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	up, err := upright(img, hint)
	if err != nil {
		return "", err
	}
	defer guard("goqr", &err)

	codes, err := goqr.Recognize(up)
	if err != nil {
		// "no code", grid, ECC and version failures are all misses
		slog.Debug("decoder: goqr miss", "hint", hint.String(), "error", err)
		return "", nil
	}
	for _, c := range codes {
		if len(c.Payload) > 0 {
			return string(c.Payload), nil
		}
	}
	return "", nil
}
