package enhance

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"
)

// Orientation is a top-down pixel orientation hint, EXIF style: it says which
// way the image has to be turned to be upright.
type Orientation int

const (
	// Up is the identity.
	Up Orientation = iota
	// Right means the image must be turned 90° clockwise.
	Right
	// Left means the image must be turned 90° counter-clockwise.
	Left
	// Down means the image must be turned 180°.
	Down
)

// String returns the lowercase orientation name used in variant labels.
func (o Orientation) String() string {
	switch o {
	case Up:
		return "up"
	case Right:
		return "right"
	case Left:
		return "left"
	case Down:
		return "down"
	default:
		return fmt.Sprintf("orientation(%d)", int(o))
	}
}

// ParseOrientation maps a name back to an Orientation.
func ParseOrientation(s string) (Orientation, error) {
	switch s {
	case "up":
		return Up, nil
	case "right":
		return Right, nil
	case "left":
		return Left, nil
	case "down":
		return Down, nil
	}
	return Up, fmt.Errorf("enhance: unknown orientation %q", s)
}

// Orient applies o to the pixels, for decoders that cannot take a hint.
// Up returns img unchanged.
func Orient(img image.Image, o Orientation) image.Image {
	switch o {
	case Right:
		return imaging.Rotate270(img)
	case Left:
		return imaging.Rotate90(img)
	case Down:
		return imaging.Rotate180(img)
	default:
		return img
	}
}
