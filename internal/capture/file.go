package capture

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	// extra still-image formats beyond the ones imaging registers
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/e7canasta/orion-codescan/internal/frame"
)

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

// FileOptions configures a FileSource.
type FileOptions struct {
	Dir  string
	FPS  float64 // default: 30
	Loop bool
}

// FileSource replays a directory of still images as a camera, in name order,
// at a fixed frame rate. Images are decoded once and cached; EXIF orientation
// is applied.
type FileSource struct {
	fs   afero.Fs
	opts FileOptions

	frames []*frame.Frame

	Counters
}

// NewFileSource creates a replay source over opts.Dir on fs.
func NewFileSource(fs afero.Fs, opts FileOptions) *FileSource {
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	return &FileSource{fs: fs, opts: opts}
}

// Name implements Source.
func (s *FileSource) Name() string {
	return "file:" + s.opts.Dir
}

// Stats returns frame counters.
func (s *FileSource) Stats() Stats {
	return s.Snapshot()
}

// load decodes every image in the directory.
func (s *FileSource) load() error {
	entries, err := afero.ReadDir(s.fs, s.opts.Dir)
	if err != nil {
		return fmt.Errorf("failed to read frame directory: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(filepath.Ext(e.Name()))] {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	if len(names) == 0 {
		return fmt.Errorf("%w in %s", ErrNoFrames, s.opts.Dir)
	}

	frames := make([]*frame.Frame, 0, len(names))
	for _, name := range names {
		f, err := s.decode(filepath.Join(s.opts.Dir, name))
		if err != nil {
			return err
		}
		frames = append(frames, f)
	}
	s.frames = frames

	slog.Info("capture: frame directory loaded",
		"dir", s.opts.Dir,
		"images", len(frames),
		"fps", s.opts.FPS,
		"loop", s.opts.Loop,
	)
	return nil
}

func (s *FileSource) decode(path string) (*frame.Frame, error) {
	r, err := s.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer r.Close()

	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return frame.FromImage(img, time.Time{}), nil
}

// Stream implements Source. Frames are paced by a ticker; a tick that finds
// the scanner busy simply loses that frame, like a live camera.
func (s *FileSource) Stream(ctx context.Context, submit SubmitFunc) error {
	if s.frames == nil {
		if err := s.load(); err != nil {
			return err
		}
	}

	interval := time.Duration(float64(time.Second) / s.opts.FPS)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for i := 0; ; i++ {
		if i == len(s.frames) {
			if !s.opts.Loop {
				return nil
			}
			i = 0
		}

		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if ctx.Err() != nil {
				return nil
			}
			f := *s.frames[i]
			f.Timestamp = now
			f.TraceID = uuid.New().String()
			s.Count(submit(&f))
		}
	}
}
