package kmsdisplay

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/flavioheleno/kmsdisplay/pixfmt"
)

// Surface is an off-screen pixel buffer allocated by the display device.
//
// Geometry, stride and format never change. The PRIME export descriptor and
// the CPU mapping are created on first use and cached.
type Surface struct {
	display *Display
	handle  uint32
	size    uint64
	width   int
	height  int
	stride  int
	format  Format

	mu        sync.Mutex
	primeFD   int // -1 until exported
	mapping   []byte
	destroyed bool
}

// NewSurface allocates a width x height buffer in format on d.
func NewSurface(d *Display, width, height int, format Format) (*Surface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("kmsdisplay: invalid surface size %dx%d", width, height)
	}
	bpp := format.BitsPerPixel()
	if bpp == 0 {
		return nil, fmt.Errorf("%w %s", ErrUnsupportedFormat, format)
	}
	if err := d.acquire(); err != nil {
		return nil, err
	}
	db, err := d.dev.CreateDumb(uint32(width), uint32(height), bpp)
	if err != nil {
		d.release()
		return nil, exhausted("create dumb buffer", err)
	}
	Logger().Debug("kmsdisplay: surface created",
		"handle", db.Handle, "width", width, "height", height, "format", format.String(), "pitch", db.Pitch)
	return &Surface{
		display: d,
		handle:  db.Handle,
		size:    db.Size,
		width:   width,
		height:  height,
		stride:  int(db.Pitch),
		format:  format,
		primeFD: -1,
	}, nil
}

// Display returns the Display the buffer was allocated on.
func (s *Surface) Display() *Display {
	return s.display
}

// Width returns the width in pixels.
func (s *Surface) Width() int {
	return s.width
}

// Height returns the height in pixels.
func (s *Surface) Height() int {
	return s.height
}

// Stride returns the number of bytes between the start of consecutive rows.
func (s *Surface) Stride() int {
	return s.stride
}

// Format returns the pixel format.
func (s *Surface) Format() Format {
	return s.format
}

// Size returns the allocation size in bytes.
func (s *Surface) Size() uint64 {
	return s.size
}

// Handle returns the device-local buffer handle.
func (s *Surface) Handle() uint32 {
	return s.handle
}

// Bounds returns the pixel rectangle, anchored at the origin.
func (s *Surface) Bounds() image.Rectangle {
	return image.Rect(0, 0, s.width, s.height)
}

// ExportHandle returns a file descriptor sharing the buffer with other
// hardware engines and with mmap. The descriptor is owned by the Surface.
func (s *Surface) ExportHandle() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exportLocked()
}

func (s *Surface) exportLocked() (int, error) {
	if s.destroyed {
		return -1, ErrClosed
	}
	if s.primeFD >= 0 {
		return s.primeFD, nil
	}
	fd, err := s.display.dev.PrimeHandleToFD(s.handle)
	if err != nil {
		return -1, &DeviceError{Op: "export buffer", Err: err}
	}
	s.primeFD = fd
	return fd, nil
}

// Map returns the buffer memory for CPU access. Repeated calls return the
// same mapping until Unmap. On failure the Surface stays unmapped.
func (s *Surface) Map() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapping != nil {
		return s.mapping, nil
	}
	fd, err := s.exportLocked()
	if err != nil {
		return nil, err
	}
	m, err := s.display.dev.Mmap(fd, int(s.size))
	if err != nil {
		return nil, &DeviceError{Op: "mmap", Err: err}
	}
	s.mapping = m
	return m, nil
}

// Unmap releases the CPU mapping. It is a no-op on an unmapped Surface.
func (s *Surface) Unmap() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mapping == nil {
		return nil
	}
	if err := s.display.dev.Munmap(s.mapping); err != nil {
		return &DeviceError{Op: "munmap", Err: err}
	}
	s.mapping = nil
	return nil
}

// Mapped reports whether the Surface currently has a CPU mapping.
func (s *Surface) Mapped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mapping != nil
}

// Image maps the Surface and returns a draw.Image over its memory. The image
// is only valid until Unmap.
func (s *Surface) Image() (*pixfmt.Image, error) {
	layout, err := s.format.Layout()
	if err != nil {
		return nil, err
	}
	m, err := s.Map()
	if err != nil {
		return nil, err
	}
	return pixfmt.Wrap(m, s.stride, s.Bounds(), layout), nil
}

// Destroy releases the buffer and its export descriptor. The Surface must be
// unmapped first, and destroyed before its Display is closed.
func (s *Surface) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		return ErrClosed
	}
	if s.mapping != nil {
		return ErrSurfaceMapped
	}
	var errs []error
	if s.primeFD >= 0 {
		if err := s.display.dev.CloseFD(s.primeFD); err != nil {
			errs = append(errs, &DeviceError{Op: "close export", Err: err})
		}
		s.primeFD = -1
	}
	if err := s.display.dev.DestroyDumb(s.handle); err != nil {
		errs = append(errs, &DeviceError{Op: "destroy dumb buffer", Err: err})
	}
	s.destroyed = true
	s.display.release()
	return errors.Join(errs...)
}

// String returns the geometry, format and handle.
func (s *Surface) String() string {
	return fmt.Sprintf("kmsdisplay.Surface{%dx%d %s, handle %d}", s.width, s.height, s.format, s.handle)
}
