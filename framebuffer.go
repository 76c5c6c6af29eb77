package kmsdisplay

import (
	"fmt"
	"sync"
)

// FrameBuffer is a Surface registered with the display as a scanout object.
type FrameBuffer struct {
	surface *Surface
	id      uint32

	mu        sync.Mutex
	destroyed bool
}

// NewFrameBuffer registers s for scanout on the Display that allocated it.
func NewFrameBuffer(s *Surface) (*FrameBuffer, error) {
	s.mu.Lock()
	destroyed := s.destroyed
	s.mu.Unlock()
	if destroyed {
		return nil, ErrClosed
	}
	d := s.display
	if err := d.acquire(); err != nil {
		return nil, err
	}
	id, err := d.dev.AddFB2(uint32(s.width), uint32(s.height), uint32(s.format), s.handle, uint32(s.stride))
	if err != nil {
		d.release()
		return nil, exhausted("add framebuffer", err)
	}
	return &FrameBuffer{surface: s, id: id}, nil
}

// ID returns the scanout object id.
func (fb *FrameBuffer) ID() uint32 {
	return fb.id
}

// Surface returns the wrapped Surface. The FrameBuffer does not destroy it.
func (fb *FrameBuffer) Surface() *Surface {
	return fb.surface
}

// Destroy removes the scanout object.
func (fb *FrameBuffer) Destroy() error {
	fb.mu.Lock()
	defer fb.mu.Unlock()
	if fb.destroyed {
		return ErrClosed
	}
	fb.destroyed = true
	d := fb.surface.display
	defer d.release()
	if err := d.dev.RmFB(fb.id); err != nil {
		return &DeviceError{Op: "remove framebuffer", Err: err}
	}
	return nil
}

// String returns the scanout id and the wrapped Surface.
func (fb *FrameBuffer) String() string {
	return fmt.Sprintf("kmsdisplay.FrameBuffer{%d, %v}", fb.id, fb.surface)
}
