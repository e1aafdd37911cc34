package config

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/variant"
)

const sample = `
instance_id: lobby-scanner
decoder: goqr
scanner:
  viewport: {width: 393, height: 852}
  order: ["up", "up invert", "down", "down invert"]
  process_timeout_ms: 500
  enhance:
    contrast: 1.3
capture:
  source: file
  file:
    dir: /var/lib/codescan/frames
    fps: 15
emitters:
  redis:
    addr: localhost:6379
`

func writeFS(t *testing.T, body string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/etc/codescan.yaml", []byte(body), 0o644))
	return fs
}

func TestLoadFS(t *testing.T) {
	cfg, err := LoadFS(writeFS(t, sample), "/etc/codescan.yaml")
	require.NoError(t, err)

	assert.Equal(t, "lobby-scanner", cfg.InstanceID)
	assert.Equal(t, "goqr", cfg.Decoder)
	assert.Equal(t, geometry.NewViewport(393, 852), cfg.Viewport())
	assert.Equal(t, 15.0, cfg.Capture.File.FPS)

	// defaults survive partial sections
	assert.Equal(t, geometry.DefaultLayout, cfg.Scanner.Layout)
	assert.Equal(t, enhance.Params{Contrast: 1.3, ExposureEV: -0.7}, cfg.Scanner.Enhance)
	assert.Equal(t, "codescan:results", cfg.Emitters.Redis.Channel)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout())

	sc, err := cfg.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, 500*time.Millisecond, sc.ProcessTimeout)
	assert.Equal(t, []variant.Step{
		{Orientation: enhance.Up, Polarity: variant.Normal},
		{Orientation: enhance.Up, Polarity: variant.Inverted},
		{Orientation: enhance.Down, Polarity: variant.Normal},
		{Orientation: enhance.Down, Polarity: variant.Inverted},
	}, sc.Order)
}

func TestLoadFSErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing dir", "capture: {source: file}", "capture.file.dir"},
		{"bad source", "capture: {source: rtsp}", "capture.source"},
		{"bad decoder", "decoder: mlkit\ncapture: {file: {dir: /x}}", "decoder"},
		{"bad order", "scanner: {order: [sideways]}\ncapture: {file: {dir: /x}}", "scanner.order"},
		{"duplicate order", "scanner: {order: [up, up]}\ncapture: {file: {dir: /x}}", "duplicate"},
		{"half viewport", "scanner: {viewport: {width: 300}}\ncapture: {file: {dir: /x}}", "scanner.viewport"},
		{"negative contrast", "scanner: {enhance: {contrast: -1}}\ncapture: {file: {dir: /x}}", "scanner.enhance.contrast"},
		{"bad yaml", "scanner: [", "parse"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFS(writeFS(t, tt.body), "/etc/codescan.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := LoadFS(afero.NewMemMapFs(), "/nope.yaml")
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"CODESCAN_VIEWPORT":       "360x640",
		"CODESCAN_DECODER":        "chain",
		"CODESCAN_REDIS_DB":       "3",
		"CODESCAN_CAMERA_DEVICE":  "/dev/video2",
		"CODESCAN_REDIS_PASSWORD": "",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Defaults()
	require.NoError(t, applyEnv(&cfg, lookup))
	assert.Equal(t, ViewportConfig{Width: 360, Height: 640}, cfg.Scanner.Viewport)
	assert.Equal(t, "chain", cfg.Decoder)
	assert.Equal(t, 3, cfg.Emitters.Redis.DB)
	assert.Equal(t, "/dev/video2", cfg.Capture.Camera.Device)
	assert.Empty(t, cfg.Emitters.Redis.Password)

	env["CODESCAN_REDIS_DB"] = "three"
	assert.Error(t, applyEnv(&cfg, lookup))
}

func TestParseSize(t *testing.T) {
	w, h, err := ParseSize(" 1080X1920 ")
	require.NoError(t, err)
	assert.Equal(t, 1080.0, w)
	assert.Equal(t, 1920.0, h)

	for _, bad := range []string{"1080", "ax2", "2xb", "-1x2"} {
		_, _, err := ParseSize(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, LoadDotEnv(filepath.Join(dir, "missing.env")))

	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("CODESCAN_TEST_DOTENV=loaded\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("CODESCAN_TEST_DOTENV") })

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "loaded", os.Getenv("CODESCAN_TEST_DOTENV"))
}

func TestChanges(t *testing.T) {
	old := Defaults()
	cur := Defaults()
	live, restart := Changes(&old, &cur)
	assert.Empty(t, live)
	assert.Empty(t, restart)

	cur.Scanner.Viewport = ViewportConfig{Width: 360, Height: 640}
	cur.Decoder = "goqr"
	cur.Scanner.ProcessTimeoutMS = 100
	live, restart = Changes(&old, &cur)
	require.Len(t, live, 1)
	assert.Contains(t, live[0], "scanner.viewport")
	assert.Equal(t, []string{"scanner", "decoder"}, restart)
}

// TestWatch rewrites the file on disk and expects the new viewport to arrive;
// an invalid rewrite is ignored.
func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "codescan.yaml")
	body := func(w int) []byte {
		return []byte("scanner: {viewport: {width: " + strconv.Itoa(w) + ", height: 640}}\ncapture: {file: {dir: /x}}\n")
	}
	require.NoError(t, os.WriteFile(path, body(300), 0o644))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *Config) { got <- c }) }()

	// give the watcher time to register
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("scanner: ["), 0o644))
	time.Sleep(300 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, body(360), 0o644))

	select {
	case c := <-got:
		assert.Equal(t, 360.0, c.Scanner.Viewport.Width)
	case <-time.After(3 * time.Second):
		t.Fatal("no reload")
	}

	cancel()
	assert.NoError(t, <-done)
}

func TestShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "codescan.yaml"))
	require.NoError(t, err)

	sc, err := cfg.SchedulerConfig()
	require.NoError(t, err)
	assert.Equal(t, variant.DefaultOrder, sc.Order)
	assert.Equal(t, enhance.DefaultParams(), sc.Enhance)
	assert.Equal(t, geometry.DefaultLayout, sc.Layout)
	assert.True(t, cfg.Viewport().Valid())
}
