package codescan_test

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	codescan "github.com/e7canasta/orion-codescan"
	"github.com/e7canasta/orion-codescan/decoder"
	"github.com/e7canasta/orion-codescan/internal/target"
)

// TestScanEndToEnd runs a synthetic 1920x1080 camera frame through the full
// pipeline with a real decoder.
//
// Scenario:
//  1. Render a QR on the region a 360x640 viewport crops (scale 3, 240px)
//  2. Submit it as an RGBA frame
//  3. Assert: payload delivered with the first matching variant label
func TestScanEndToEnd(t *testing.T) {
	tests := []struct {
		name   string
		opt    target.Options
		labels []string
	}{
		{"dark on light", target.Options{}, []string{"up", "right", "left", "down"}},
		{"light on dark", target.Options{Invert: true}, []string{"up", "up invert", "right", "right invert", "left", "left invert", "down", "down invert"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := codescan.NewViewport(360, 640)
			img, _, err := target.ForViewport(1920, 1080, vp, codescan.DefaultConfig().Layout, "ORION-QR-0001", tt.opt)
			require.NoError(t, err)

			dec, err := decoder.New("goqr")
			require.NoError(t, err)

			results := make(chan codescan.Result, 1)
			cfg := codescan.DefaultConfig()
			cfg.Viewport = vp
			scanner, err := codescan.New(cfg, dec, codescan.SinkFuncs{
				Result: func(r codescan.Result) { results <- r },
			})
			require.NoError(t, err)
			require.NoError(t, scanner.Start(context.Background()))
			defer scanner.Stop()

			f := codescan.FrameFromImage(img, time.Now())
			require.True(t, scanner.Submit(f))

			select {
			case r := <-results:
				assert.Equal(t, "ORION-QR-0001", r.Outcome.Payload)
				assert.Contains(t, tt.labels, r.Outcome.VariantLabel)
				assert.Equal(t, map[string]string{"code": "ORION-QR-0001", "imageType": r.Outcome.VariantLabel}, r.Outcome.Event())
				assert.Equal(t, codescan.CropRegion{X: 924, Y: 252, Width: 240, Height: 240}, r.Region)
			case <-time.After(5 * time.Second):
				t.Fatalf("no result, stats=%+v", scanner.Stats())
			}
		})
	}
}

// TestScanLifecycle verifies the public lifecycle contract.
func TestScanLifecycle(t *testing.T) {
	none := codescan.DecoderFunc(func(context.Context, image.Image, codescan.Orientation) (string, error) {
		return "", nil
	})

	scanner, err := codescan.New(codescan.Config{}, none, nil)
	require.NoError(t, err)

	f := codescan.FrameFromImage(image.NewNRGBA(image.Rect(0, 0, 640, 360)), time.Now())
	assert.False(t, scanner.Submit(f), "stopped scanner admits nothing")

	require.NoError(t, scanner.Start(context.Background()))
	assert.ErrorIs(t, scanner.Start(context.Background()), codescan.ErrAlreadyStarted)

	scanner.SetViewport(codescan.NewViewport(360, 640))
	assert.InDelta(t, 0.5625, scanner.Viewport().AspectRatio, 1e-12)
	assert.True(t, scanner.Submit(f))

	st := scanner.Stats()
	assert.Equal(t, uint64(1), st.NoMatch)
	assert.Equal(t, uint64(1), st.NotRunning)

	require.NoError(t, scanner.Stop())
	require.NoError(t, scanner.Stop())
	assert.False(t, scanner.Stats().Running)
}
