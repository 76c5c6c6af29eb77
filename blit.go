package kmsdisplay

import (
	"fmt"
	"image"
	"image/color"
)

// Rotation is a clockwise rotation applied while blitting, in degrees.
type Rotation int

const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// Valid reports whether r is one of the four supported rotations.
func (r Rotation) Valid() bool {
	switch r {
	case Rotate0, Rotate90, Rotate180, Rotate270:
		return true
	}
	return false
}

// Transform returns the blit engine transform constant for r.
func (r Rotation) Transform() (uint32, error) {
	switch r {
	case Rotate0:
		return 0, nil
	case Rotate90:
		return transformRot90, nil
	case Rotate180:
		return transformRot180, nil
	case Rotate270:
		return transformRot270, nil
	}
	return 0, fmt.Errorf("%w: %d", ErrUnsupportedRotation, int(r))
}

// SwapsAxes reports whether r exchanges width and height.
func (r Rotation) SwapsAxes() bool {
	return r == Rotate90 || r == Rotate270
}

// String returns the angle, such as "90°".
func (r Rotation) String() string {
	return fmt.Sprintf("%d°", int(r))
}

// Blitter is a 2D engine operating on Surfaces.
type Blitter interface {
	// Fill sets every pixel of dst to c.
	Fill(dst *Surface, c color.Color) error

	// Blit copies sr of src into dr of dst, rotating clockwise by rot and
	// scaling to fit.
	Blit(src *Surface, sr image.Rectangle, dst *Surface, dr image.Rectangle, rot Rotation) error
}

// reentrant is implemented by blitters that can be called from several
// goroutines at once.
type reentrant interface {
	Reentrant() bool
}

func isReentrant(b Blitter) bool {
	r, ok := b.(reentrant)
	return ok && r.Reentrant()
}

// checkBlit validates a blit of sr within src to dr within dst before any
// hardware is touched.
func checkBlit(src, sr, dst, dr image.Rectangle, rot Rotation) error {
	if !rot.Valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedRotation, int(rot))
	}
	if sr.Empty() || !sr.In(src) {
		return fmt.Errorf("kmsdisplay: source rectangle %v outside %v", sr, src)
	}
	if dr.Empty() || !dr.In(dst) {
		return fmt.Errorf("kmsdisplay: destination rectangle %v outside %v", dr, dst)
	}
	return nil
}
