package capture

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/bmp"

	"github.com/e7canasta/orion-codescan/internal/frame"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorCategory
	}{
		{errors.New("Could not open device '/dev/video0' for reading and writing: Permission denied"), ErrCategoryPermission},
		{errors.New("Internal data stream error: not negotiated"), ErrCategoryFormat},
		{errors.New("failed to decode /frames/a.png: image: unknown format"), ErrCategoryFormat},
		{fmt.Errorf("%w in /frames", ErrNoFrames), ErrCategoryFormat},
		{errors.New("Device '/dev/video0' is busy"), ErrCategoryDevice},
		{errors.New("Cannot identify device '/dev/video9'"), ErrCategoryDevice},
		{errors.New("end of stream after 3s"), ErrCategoryDevice},
		{errors.New("open /frames: no such file or directory"), ErrCategoryDevice},
		{errors.New("something odd"), ErrCategoryUnknown},
		{nil, ErrCategoryUnknown},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.err), "%v", tt.err)
	}

	assert.True(t, ErrCategoryDevice.Retryable())
	assert.True(t, ErrCategoryUnknown.Retryable())
	assert.False(t, ErrCategoryFormat.Retryable())
	assert.False(t, ErrCategoryPermission.Retryable())
	assert.Equal(t, "permission", ErrCategoryPermission.String())
}

func TestBackoff(t *testing.T) {
	cfg := DefaultRestartConfig()
	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		assert.Equal(t, w*time.Second, Backoff(i+1, cfg), "attempt %d", i+1)
	}
	assert.Equal(t, cfg.MaxBackoff, Backoff(100, cfg))
	assert.Equal(t, time.Second, Backoff(0, cfg))
}

// scriptedSource fails with each error in turn, then ends cleanly.
type scriptedSource struct {
	mu    sync.Mutex
	errs  []error
	calls int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Stream(ctx context.Context, submit SubmitFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

func newTestRunner(src Source, cfg RestartConfig) (*Runner, *[]time.Duration, *[]string) {
	var delays []time.Duration
	var reports []string
	r := NewRunner(src, cfg, func(title, message string) {
		reports = append(reports, title+": "+message)
	})
	r.sleep = func(ctx context.Context, d time.Duration) error {
		delays = append(delays, d)
		return ctx.Err()
	}
	return r, &delays, &reports
}

func TestRunnerRestartsWithBackoff(t *testing.T) {
	busy := errors.New("Device '/dev/video0' is busy")
	src := &scriptedSource{errs: []error{busy, busy, busy}}
	r, delays, reports := newTestRunner(src, RestartConfig{MaxRetries: 5, InitialBackoff: time.Second, MaxBackoff: 3 * time.Second, StableAfter: time.Hour})

	require.NoError(t, r.Run(context.Background(), nil))
	assert.Equal(t, 4, src.calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, *delays)
	require.Len(t, *reports, 3)
	assert.Equal(t, "Error: Device '/dev/video0' is busy", (*reports)[0])

	st := r.Stats()
	assert.Equal(t, uint32(3), st.Restarts)
	assert.Equal(t, uint64(3), st.Failures["device"])
	assert.False(t, st.Connected)
}

func TestRunnerMaxRetries(t *testing.T) {
	busy := errors.New("device busy")
	src := &scriptedSource{errs: []error{busy, busy, busy, busy}}
	r, delays, _ := newTestRunner(src, RestartConfig{MaxRetries: 2, StableAfter: time.Hour})

	err := r.Run(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.ErrorIs(t, err, busy)
	assert.Equal(t, 3, src.calls)
	assert.Len(t, *delays, 2)
}

func TestRunnerNonRetryable(t *testing.T) {
	denied := errors.New("open /dev/video0: permission denied")
	src := &scriptedSource{errs: []error{denied}}
	r, delays, reports := newTestRunner(src, DefaultRestartConfig())

	err := r.Run(context.Background(), nil)
	assert.ErrorIs(t, err, denied)
	assert.Equal(t, 1, src.calls)
	assert.Empty(t, *delays)
	assert.Len(t, *reports, 1)
}

func TestRunnerCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &scriptedSource{errs: []error{errors.New("device busy")}}
	r, _, _ := newTestRunner(src, DefaultRestartConfig())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}
	assert.NoError(t, r.Run(ctx, nil))
	assert.Equal(t, 1, src.calls)
}

func writeImages(t *testing.T, fs afero.Fs, dir string) {
	t.Helper()
	red := image.NewNRGBA(image.Rect(0, 0, 8, 4))
	red.SetNRGBA(0, 0, color.NRGBA{255, 0, 0, 255})
	blue := image.NewNRGBA(image.Rect(0, 0, 6, 2))
	blue.SetNRGBA(0, 0, color.NRGBA{0, 0, 255, 255})

	f, err := fs.Create(dir + "/a.png")
	require.NoError(t, err)
	require.NoError(t, imaging.Encode(f, red, imaging.PNG))
	require.NoError(t, f.Close())

	f, err = fs.Create(dir + "/b.bmp")
	require.NoError(t, err)
	require.NoError(t, bmp.Encode(f, blue))
	require.NoError(t, f.Close())

	require.NoError(t, afero.WriteFile(fs, dir+"/notes.txt", []byte("ignored"), 0o644))
}

type seenFrame struct {
	w, h    int
	first   [4]byte
	traceID string
}

func TestFileSourceReplay(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImages(t, fs, "/frames")

	src := NewFileSource(fs, FileOptions{Dir: "/frames", FPS: 500})
	var seen []seenFrame
	submit := func(f *frame.Frame) bool {
		require.NoError(t, f.Validate())
		var px [4]byte
		copy(px[:], f.Data[:4])
		seen = append(seen, seenFrame{f.Width, f.Height, px, f.TraceID})
		return len(seen) == 1
	}

	require.NoError(t, src.Stream(context.Background(), submit))
	require.Len(t, seen, 2)
	assert.Equal(t, 8, seen[0].w)
	assert.Equal(t, [4]byte{255, 0, 0, 255}, seen[0].first)
	assert.Equal(t, 6, seen[1].w)
	assert.Equal(t, [4]byte{0, 0, 255, 255}, seen[1].first)
	assert.NotEmpty(t, seen[0].traceID)
	assert.NotEqual(t, seen[0].traceID, seen[1].traceID)

	st := src.Stats()
	assert.Equal(t, uint64(2), st.Captured)
	assert.Equal(t, uint64(1), st.Admitted)
	assert.Equal(t, uint64(1), st.Rejected)
}

func TestFileSourceLoop(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImages(t, fs, "/frames")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src := NewFileSource(fs, FileOptions{Dir: "/frames", FPS: 500, Loop: true})
	n := 0
	submit := func(*frame.Frame) bool {
		n++
		if n == 5 {
			cancel()
		}
		return true
	}
	require.NoError(t, src.Stream(ctx, submit))
	assert.Equal(t, 5, n)
}

func TestFileSourceErrors(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/empty", 0o755))

	err := NewFileSource(fs, FileOptions{Dir: "/empty"}).Stream(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoFrames)

	require.NoError(t, afero.WriteFile(fs, "/bad/x.png", []byte("not a png"), 0o644))
	err = NewFileSource(fs, FileOptions{Dir: "/bad"}).Stream(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, ErrCategoryFormat, Classify(err))

	err = NewFileSource(fs, FileOptions{Dir: "/missing"}).Stream(context.Background(), nil)
	assert.Error(t, err)
}

// TestRunnerFileSource runs a one-shot replay under the runner: a clean end
// is not retried and frame counters are merged into the runner stats.
func TestRunnerFileSource(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeImages(t, fs, "/frames")

	r := NewRunner(NewFileSource(fs, FileOptions{Dir: "/frames", FPS: 500}), DefaultRestartConfig(), nil)
	require.NoError(t, r.Run(context.Background(), func(*frame.Frame) bool { return true }))

	st := r.Stats()
	assert.Equal(t, uint64(2), st.Captured)
	assert.Equal(t, uint64(2), st.Admitted)
	assert.Zero(t, st.Restarts)
}
