package main

import (
	"context"
	"image"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-codescan/decoder"
	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/geometry"
)

func TestRun(t *testing.T) {
	out := filepath.Join(t.TempDir(), "frames", "0001.png")
	require.NoError(t, run(1920, 1080, "360x640", "HELLO", false, "up", out))

	img, err := imaging.Open(out)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1920, 1080), img.Bounds())

	// The code sits on the scanner's crop for that viewport
	region := geometry.ComputeCropRegion(1920, 1080, geometry.NewViewport(360, 640), geometry.DefaultLayout)
	crop := imaging.Crop(img, region.Rect())
	payload, err := decoder.NewGoQR().Decode(context.Background(), crop, enhance.Up)
	require.NoError(t, err)
	assert.Equal(t, "HELLO", payload)
}

func TestRunErrors(t *testing.T) {
	out := filepath.Join(t.TempDir(), "x.png")
	assert.Error(t, run(1920, 1080, "360", "HELLO", false, "up", out))
	assert.Error(t, run(1920, 1080, "360x640", "HELLO", false, "sideways", out))
	assert.Error(t, run(1920, 1080, "0x0", "HELLO", false, "up", out))
	assert.Error(t, run(0, 1080, "360x640", "HELLO", false, "up", out))
}
