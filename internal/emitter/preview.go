package emitter

import (
	"fmt"
	"image"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/disintegration/imaging"
	"github.com/spf13/afero"
	"golang.org/x/image/draw"

	"github.com/e7canasta/orion-codescan/internal/scheduler"
)

// PreviewOptions tunes the preview saver.
type PreviewOptions struct {
	Dir string
	// EveryN saves one preview in N (default: 1).
	EveryN int
	// MaxFiles keeps at most this many files, oldest removed first (0 = unbounded).
	MaxFiles int
	// Scale upscales the crop by an integer factor for viewing (default: 1).
	Scale int
	// Rotate turns the crop 90° clockwise into display (portrait) orientation.
	Rotate bool
}

// PreviewSaver writes enhanced crops to disk as PNG for debugging the target
// placement and enhancement.
type PreviewSaver struct {
	fs   afero.Fs
	opts PreviewOptions

	seen atomic.Uint64

	mu    sync.Mutex
	files []string

	saved  atomic.Uint64
	failed atomic.Uint64
}

// NewPreviewSaver creates opts.Dir on fs if needed.
func NewPreviewSaver(fs afero.Fs, opts PreviewOptions) (*PreviewSaver, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("preview dir is required")
	}
	if opts.EveryN <= 0 {
		opts.EveryN = 1
	}
	if opts.Scale <= 0 {
		opts.Scale = 1
	}
	if err := fs.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create preview directory: %w", err)
	}
	return &PreviewSaver{fs: fs, opts: opts}, nil
}

// Save writes one preview and returns its path.
//
// Filename format: preview_{seq:06d}_{timestamp}.png
func (s *PreviewSaver) Save(p scheduler.Preview) (string, error) {
	img := DisplayImage(p.Image, s.opts.Scale, s.opts.Rotate)

	name := fmt.Sprintf("preview_%06d_%s.png", p.Seq, p.At.Format("20060102_150405.000"))
	path := filepath.Join(s.opts.Dir, name)

	f, err := s.fs.Create(path)
	if err != nil {
		s.failed.Add(1)
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := imaging.Encode(f, img, imaging.PNG); err != nil {
		f.Close()
		s.failed.Add(1)
		return "", fmt.Errorf("PNG encode failed: %w", err)
	}
	if err := f.Close(); err != nil {
		s.failed.Add(1)
		return "", fmt.Errorf("failed to close file: %w", err)
	}

	s.saved.Add(1)
	s.retain(path)
	return path, nil
}

// retain records path and removes the oldest files beyond MaxFiles.
func (s *PreviewSaver) retain(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.files = append(s.files, path)
	if s.opts.MaxFiles <= 0 {
		return
	}
	for len(s.files) > s.opts.MaxFiles {
		old := s.files[0]
		s.files = s.files[1:]
		if err := s.fs.Remove(old); err != nil {
			slog.Debug("emitter: failed to remove old preview", "path", old, "error", err)
		}
	}
}

// OnPreview implements scheduler.Sink.
func (s *PreviewSaver) OnPreview(p scheduler.Preview) {
	if p.Image == nil {
		return
	}
	if n := s.seen.Add(1); (n-1)%uint64(s.opts.EveryN) != 0 {
		return
	}
	if _, err := s.Save(p); err != nil {
		slog.Warn("emitter: preview not saved", "seq", p.Seq, "error", err)
	}
}

// OnResult implements scheduler.Sink.
func (s *PreviewSaver) OnResult(scheduler.Result) {}

// OnError implements scheduler.Sink.
func (s *PreviewSaver) OnError(scheduler.ErrorReport) {}

// Stats returns saved and failed counts.
func (s *PreviewSaver) Stats() (saved, failed uint64) {
	return s.saved.Load(), s.failed.Load()
}

// DisplayImage prepares a crop for viewing: optional 90° clockwise turn into
// portrait orientation, then a nearest-neighbor upscale that keeps module
// edges sharp.
func DisplayImage(img *image.NRGBA, scale int, rotate bool) *image.NRGBA {
	if rotate {
		img = imaging.Rotate270(img)
	}
	if scale <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()*scale, b.Dy()*scale))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
