package main

import (
	"context"
	"image"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	codescan "github.com/e7canasta/orion-codescan"
	"github.com/e7canasta/orion-codescan/internal/capture"
	"github.com/e7canasta/orion-codescan/internal/config"
	"github.com/e7canasta/orion-codescan/internal/emitter"
	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/target"
)

func newTestScanner(t *testing.T) codescan.Scanner {
	t.Helper()
	none := codescan.DecoderFunc(func(context.Context, image.Image, codescan.Orientation) (string, error) {
		return "", nil
	})
	sc, err := codescan.New(codescan.Config{}, none, nil)
	require.NoError(t, err)
	return sc
}

// TestDaemonReplaysFrames runs the daemon over a directory holding one
// synthetic frame and reads the decoded result back from the msgpack stream.
func TestDaemonReplaysFrames(t *testing.T) {
	dir := t.TempDir()
	frames := filepath.Join(dir, "frames")
	require.NoError(t, os.MkdirAll(frames, 0o755))

	vp := geometry.NewViewport(360, 640)
	img, _, err := target.ForViewport(1920, 1080, vp, geometry.DefaultLayout, "ORION-QR-0002", target.Options{})
	require.NoError(t, err)
	require.NoError(t, imaging.Save(img, filepath.Join(frames, "0001.png")))

	cfg := config.Defaults()
	cfg.Decoder = "goqr"
	cfg.HTTP.Addr = ""
	cfg.StatsIntervalS = 0
	cfg.Emitters.Log = false
	cfg.Emitters.Msgpack.Path = filepath.Join(dir, "events.bin")
	cfg.Scanner.Viewport = config.ViewportConfig{Width: 360, Height: 640}
	cfg.Capture.File = config.FileConfig{Dir: frames, FPS: 20, Loop: true}
	require.NoError(t, config.Validate(&cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, "", &cfg)
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() { errCh <- d.Run(ctx) }()

	var ev emitter.Event
	require.Eventually(t, func() bool {
		f, err := os.Open(cfg.Emitters.Msgpack.Path)
		if err != nil {
			return false
		}
		defer f.Close()
		ev, err = emitter.ReadEvent(f)
		return err == nil
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, emitter.TypeResult, ev.Type)
	assert.Equal(t, "ORION-QR-0002", ev.Code)
	assert.Equal(t, "codescan", ev.Instance)
	assert.NotEmpty(t, ev.ImageType)
	assert.Positive(t, d.runner.Stats().Captured)

	cancel()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}
	require.NoError(t, d.Shutdown(context.Background()))
}

func TestPauseResume(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := &daemon{scanner: newTestScanner(t), runCtx: ctx}

	require.NoError(t, d.Resume())
	assert.True(t, d.scanner.Stats().Running)
	require.NoError(t, d.Resume(), "resuming a running scanner is a no-op")

	require.NoError(t, d.Pause())
	assert.False(t, d.scanner.Stats().Running)

	// Capture errors while paused are logged, not delivered
	d.reportCapture("Error", "device busy")

	require.NoError(t, d.Resume())
	assert.True(t, d.scanner.Stats().Running)
	require.NoError(t, d.Pause())
}

func TestApplyConfig(t *testing.T) {
	old := config.Defaults()
	old.Scanner.Viewport = config.ViewportConfig{Width: 360, Height: 640}

	d := &daemon{cfg: &old, scanner: newTestScanner(t)}

	cur := old
	cur.Scanner.Viewport = config.ViewportConfig{Width: 393, Height: 852}
	cur.HTTP.Addr = ":9090"
	d.applyConfig(&cur)

	assert.Equal(t, geometry.NewViewport(393, 852), d.scanner.Viewport())
	assert.Equal(t, cur.Scanner.Viewport, d.cfg.Scanner.Viewport)
	assert.Equal(t, ":8080", d.cfg.HTTP.Addr, "restart-only sections are not applied")
}

func TestNewSource(t *testing.T) {
	src, err := newSource(config.CaptureConfig{Source: "file", File: config.FileConfig{Dir: "frames"}})
	require.NoError(t, err)
	assert.IsType(t, &capture.FileSource{}, src)
	assert.Equal(t, "file:frames", src.Name())

	src, err = newSource(config.CaptureConfig{Source: "camera", Camera: config.CameraConfig{Device: "/dev/video2", Format: "GRAY8"}})
	require.NoError(t, err)
	assert.Equal(t, "camera:/dev/video2", src.Name())

	_, err = newSource(config.CaptureConfig{Source: "camera", Camera: config.CameraConfig{Format: "YUY2"}})
	assert.Error(t, err)

	_, err = newSource(config.CaptureConfig{Source: "screen"})
	assert.ErrorContains(t, err, "unknown capture source")
}
