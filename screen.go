package kmsdisplay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"github.com/flavioheleno/kmsdisplay/pixfmt"
	"periph.io/x/conn/v3/display"
)

// ScreenOpts is the configuration for a Screen.
type ScreenOpts struct {
	// Rotation applied from the logical screen to the panel. With 90 or 270
	// the logical bounds are the panel bounds transposed.
	Rotation Rotation
}

// Screen is a periph display.Drawer backed by a Presenter. Every Draw renders
// into an off-screen staging Surface in logical orientation and posts it as a
// full frame.
type Screen struct {
	p   *Presenter
	rot Rotation

	mu      sync.Mutex
	staging *Surface
	img     *pixfmt.Image
	halted  bool
}

// NewScreen creates a Screen on p. opts can be nil for no rotation.
func NewScreen(p *Presenter, opts *ScreenOpts) (*Screen, error) {
	if opts == nil {
		opts = &ScreenOpts{}
	}
	if !opts.Rotation.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedRotation, int(opts.Rotation))
	}
	d := p.Display()
	w, h := d.Width(), d.Height()
	if opts.Rotation.SwapsAxes() {
		w, h = h, w
	}
	staging, err := NewSurface(d, w, h, p.Format())
	if err != nil {
		return nil, err
	}
	img, err := staging.Image()
	if err != nil {
		if derr := staging.Destroy(); derr != nil {
			Logger().Warn("kmsdisplay: destroy staging surface", "err", derr)
		}
		return nil, err
	}
	img.Fill(p.background)
	return &Screen{p: p, rot: opts.Rotation, staging: staging, img: img}, nil
}

// ColorModel returns the color model of the presenter format.
func (s *Screen) ColorModel() color.Model {
	return s.img.ColorModel()
}

// Bounds returns the logical screen bounds.
func (s *Screen) Bounds() image.Rectangle {
	return s.img.Bounds()
}

// Draw draws src at sp into the dst region of the screen and presents the
// result. It blocks while the presenter has no free buffer.
func (s *Screen) Draw(dst image.Rectangle, src image.Image, sp image.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return errors.New("kmsdisplay: halted")
	}
	dst = dst.Intersect(s.img.Bounds())
	if dst.Empty() {
		return nil
	}
	draw.Draw(s.img, dst, src, sp, draw.Src)
	return s.postLocked()
}

func (s *Screen) postLocked() error {
	return s.p.Post(context.Background(), s.staging, s.staging.Bounds(), s.p.Display().Bounds(), s.rot)
}

// Halt clears the screen to the background color and stops accepting draws.
func (s *Screen) Halt() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.halted {
		return nil
	}
	s.img.Fill(s.p.background)
	err := s.postLocked()
	s.halted = true
	return err
}

// Close releases the staging surface. The Presenter is left running.
func (s *Screen) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.halted = true
	if s.staging == nil {
		return nil
	}
	if err := s.staging.Unmap(); err != nil {
		return err
	}
	err := s.staging.Destroy()
	s.staging = nil
	return err
}

// String returns the logical size and rotation.
func (s *Screen) String() string {
	b := s.img.Bounds()
	return fmt.Sprintf("kmsdisplay.Screen{%dx%d, %v}", b.Dx(), b.Dy(), s.rot)
}

var _ display.Drawer = (*Screen)(nil)
