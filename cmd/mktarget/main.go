// Command mktarget renders a synthetic camera frame with a QR code placed
// exactly where the scanner crops for a given viewport. Frames written to a
// directory can be replayed by codescand with capture.source: file.
//
//	mktarget -viewport 393x852 -content HELLO -turn left -invert -out frames/0001.png
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	"github.com/e7canasta/orion-codescan/internal/config"
	"github.com/e7canasta/orion-codescan/internal/enhance"
	"github.com/e7canasta/orion-codescan/internal/geometry"
	"github.com/e7canasta/orion-codescan/internal/target"
)

func main() {
	width := flag.Int("width", 1920, "Frame width in pixels (sensor orientation)")
	height := flag.Int("height", 1080, "Frame height in pixels (sensor orientation)")
	viewport := flag.String("viewport", "393x852", "Preview viewport WIDTHxHEIGHT in logical units")
	content := flag.String("content", "HELLO", "Payload to encode")
	invert := flag.Bool("invert", false, "Draw a light-on-dark code")
	turn := flag.String("turn", "up", "Rotate the code inside the window: up, right, down, left")
	out := flag.String("out", "target.png", "Output image (format from extension)")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	if err := run(*width, *height, *viewport, *content, *invert, *turn, *out); err != nil {
		slog.Error("mktarget failed", "error", err)
		os.Exit(1)
	}
}

func run(width, height int, viewport, content string, invert bool, turn, out string) error {
	vw, vh, err := config.ParseSize(viewport)
	if err != nil {
		return err
	}
	o, err := enhance.ParseOrientation(turn)
	if err != nil {
		return err
	}

	img, region, err := target.ForViewport(width, height, geometry.NewViewport(vw, vh), geometry.DefaultLayout,
		content, target.Options{Invert: invert, Turn: o})
	if err != nil {
		return err
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := imaging.Save(img, out); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}

	fmt.Printf("%s: %dx%d frame, code %q at x=%d y=%d size=%d\n",
		out, width, height, content, region.X, region.Y, region.Width)
	return nil
}
