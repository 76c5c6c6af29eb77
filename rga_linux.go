//go:build rga && linux && cgo

package kmsdisplay

/*
#cgo LDFLAGS: -lrga
#include <rga/RgaApi.h>
*/
import "C"

import (
	"fmt"
	"image"
	"image/color"
	"sync"
)

// RGA is a Blitter backed by the Rockchip RGA 2D engine through librga.
// Calls are serialized.
type RGA struct {
	mu     sync.Mutex
	closed bool
}

// NewRGA initializes librga.
func NewRGA() (*RGA, error) {
	if ret := C.c_RkRgaInit(); ret != 0 {
		return nil, &DeviceError{Op: "rga init", Err: fmt.Errorf("code %d", int(ret))}
	}
	return &RGA{}, nil
}

// Fill paints all of dst with c using the engine color fill.
func (r *RGA) Fill(dst *Surface, c color.Color) error {
	var info C.rga_info_t
	if err := fillInfo(&info, dst, dst.Bounds()); err != nil {
		return err
	}
	info.color = C.uint(engineColor(c))

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if ret := C.c_RkRgaColorFill(&info); ret != 0 {
		return &DeviceError{Op: "rga color fill", Err: fmt.Errorf("code %d", int(ret))}
	}
	return nil
}

// Blit copies sr of src into dr of dst through the engine, rotated
// clockwise by rot and scaled with the hermite filter.
func (r *RGA) Blit(src *Surface, sr image.Rectangle, dst *Surface, dr image.Rectangle, rot Rotation) error {
	if err := checkBlit(src.Bounds(), sr, dst.Bounds(), dr, rot); err != nil {
		return err
	}
	transform, err := rot.Transform()
	if err != nil {
		return err
	}
	var in, out C.rga_info_t
	if err := fillInfo(&in, src, sr); err != nil {
		return err
	}
	if err := fillInfo(&out, dst, dr); err != nil {
		return err
	}
	in.rotation = C.int(transform)
	in.scale_mode = scaleModeHermite

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrClosed
	}
	if ret := C.c_RkRgaBlit(&in, &out, nil); ret != 0 {
		return &DeviceError{Op: "rga blit", Err: fmt.Errorf("code %d", int(ret))}
	}
	return nil
}

// Close releases librga. It is safe to call more than once.
func (r *RGA) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	C.c_RkRgaDeInit()
	return nil
}

func fillInfo(info *C.rga_info_t, s *Surface, rect image.Rectangle) error {
	er, err := engineRectFor(s, rect)
	if err != nil {
		return err
	}
	fd, err := s.ExportHandle()
	if err != nil {
		return err
	}
	info.fd = C.int(fd)
	info.mmuFlag = 1
	info.rect.xoffset = C.int(er.X)
	info.rect.yoffset = C.int(er.Y)
	info.rect.width = C.int(er.Width)
	info.rect.height = C.int(er.Height)
	info.rect.wstride = C.int(er.WStride)
	info.rect.hstride = C.int(er.HStride)
	info.rect.format = C.int(er.Format)
	return nil
}

var _ Blitter = (*RGA)(nil)
