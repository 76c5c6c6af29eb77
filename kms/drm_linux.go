//go:build linux

package kms

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"unsafe"

	"github.com/NeowayLabs/drm"
	"github.com/NeowayLabs/drm/ioctl"
	"github.com/NeowayLabs/drm/mode"
	"golang.org/x/sys/unix"
)

const (
	drmCloexec = unix.O_CLOEXEC
	drmRdwr    = unix.O_RDWR
)

type (
	sysPrimeHandle struct {
		handle uint32
		flags  uint32
		fd     int32
	}

	sysFBCmd2 struct {
		fbID          uint32
		width, height uint32
		pixelFormat   uint32
		flags         uint32
		handles       [4]uint32
		pitches       [4]uint32
		offsets       [4]uint32
		modifier      [4]uint64
	}
)

var (
	// DRM_IOWR(0x2d, struct drm_prime_handle)
	ioctlPrimeHandleToFD = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysPrimeHandle{})), drm.IOCTLBase, 0x2D)

	// DRM_IOWR(0xB8, struct drm_mode_fb_cmd2)
	ioctlModeAddFB2 = ioctl.NewCode(ioctl.Read|ioctl.Write,
		uint16(unsafe.Sizeof(sysFBCmd2{})), drm.IOCTLBase, 0xB8)
)

// DRM is a Device backed by a /dev/dri/cardN node.
type DRM struct {
	file *os.File
}

// OpenCard opens /dev/dri/card<n> and checks that it supports dumb buffers.
func OpenCard(n int) (Device, error) {
	file, err := drm.OpenCard(n)
	if err != nil {
		return nil, fmt.Errorf("kms: open card%d: %w", n, err)
	}
	if !drm.HasDumbBuffer(file) {
		file.Close()
		return nil, fmt.Errorf("kms: card%d does not support dumb buffers", n)
	}
	return &DRM{file: file}, nil
}

// NewDRM wraps an already opened DRM device node.
func NewDRM(file *os.File) *DRM {
	return &DRM{file: file}
}

func (d *DRM) fd() uintptr {
	return d.file.Fd()
}

func (d *DRM) Resources() (*Resources, error) {
	res, err := mode.GetResources(d.file)
	if err != nil {
		return nil, err
	}
	return &Resources{
		Connectors: res.Connectors,
		Encoders:   res.Encoders,
		Crtcs:      res.Crtcs,
	}, nil
}

func (d *DRM) Connector(id uint32) (*Connector, error) {
	conn, err := mode.GetConnector(d.file, id)
	if err != nil {
		return nil, err
	}
	c := &Connector{
		ID:         conn.ID,
		EncoderID:  conn.EncoderID,
		Connection: conn.Connection,
		Modes:      make([]Mode, 0, len(conn.Modes)),
	}
	for _, m := range conn.Modes {
		c.Modes = append(c.Modes, fromInfo(m))
	}
	return c, nil
}

func (d *DRM) Encoder(id uint32) (*Encoder, error) {
	enc, err := mode.GetEncoder(d.file, id)
	if err != nil {
		return nil, err
	}
	return &Encoder{ID: enc.ID, CrtcID: enc.CrtcID}, nil
}

func (d *DRM) CreateDumb(width, height, bpp uint32) (*DumbBuffer, error) {
	if width > 0xFFFF || height > 0xFFFF {
		return nil, errors.New("kms: dumb buffer geometry out of range")
	}
	fb, err := mode.CreateFB(d.file, uint16(width), uint16(height), bpp)
	if err != nil {
		return nil, err
	}
	return &DumbBuffer{Handle: fb.Handle, Pitch: fb.Pitch, Size: fb.Size}, nil
}

func (d *DRM) DestroyDumb(handle uint32) error {
	return mode.DestroyDumb(d.file, handle)
}

func (d *DRM) PrimeHandleToFD(handle uint32) (int, error) {
	args := &sysPrimeHandle{handle: handle, flags: drmRdwr | drmCloexec}
	err := ioctl.Do(d.fd(), uintptr(ioctlPrimeHandleToFD), uintptr(unsafe.Pointer(args)))
	if err != nil {
		return -1, err
	}
	return int(args.fd), nil
}

func (d *DRM) CloseFD(fd int) error {
	return unix.Close(fd)
}

func (d *DRM) Mmap(fd int, size int) ([]byte, error) {
	return unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
}

func (d *DRM) Munmap(b []byte) error {
	return unix.Munmap(b)
}

func (d *DRM) AddFB2(width, height, format, handle, pitch uint32) (uint32, error) {
	f := &sysFBCmd2{
		width:       width,
		height:      height,
		pixelFormat: format,
	}
	f.handles[0] = handle
	f.pitches[0] = pitch
	err := ioctl.Do(d.fd(), uintptr(ioctlModeAddFB2), uintptr(unsafe.Pointer(f)))
	if err != nil {
		return 0, err
	}
	return f.fbID, nil
}

func (d *DRM) RmFB(id uint32) error {
	return mode.RmFB(d.file, id)
}

func (d *DRM) SetCrtc(crtcID, fbID uint32, connectors []uint32, m *Mode) error {
	var conns *uint32
	if len(connectors) > 0 {
		conns = &connectors[0]
	}
	var info *mode.Info
	if m != nil {
		i := toInfo(m)
		info = &i
	}
	return mode.SetCrtc(d.file, crtcID, fbID, 0, 0, conns, len(connectors), info)
}

func (d *DRM) Close() error {
	return d.file.Close()
}

func (d *DRM) String() string {
	return d.file.Name()
}

func fromInfo(m mode.Info) Mode {
	name, _, _ := bytes.Cut(m.Name[:], []byte{0})
	return Mode{
		Clock:      m.Clock,
		Hdisplay:   m.Hdisplay,
		HsyncStart: m.HsyncStart,
		HsyncEnd:   m.HsyncEnd,
		Htotal:     m.Htotal,
		Hskew:      m.Hskew,
		Vdisplay:   m.Vdisplay,
		VsyncStart: m.VsyncStart,
		VsyncEnd:   m.VsyncEnd,
		Vtotal:     m.Vtotal,
		Vscan:      m.Vscan,
		Vrefresh:   m.Vrefresh,
		Flags:      m.Flags,
		Type:       m.Type,
		Name:       string(name),
	}
}

func toInfo(m *Mode) mode.Info {
	info := mode.Info{
		Clock:      m.Clock,
		Hdisplay:   m.Hdisplay,
		HsyncStart: m.HsyncStart,
		HsyncEnd:   m.HsyncEnd,
		Htotal:     m.Htotal,
		Hskew:      m.Hskew,
		Vdisplay:   m.Vdisplay,
		VsyncStart: m.VsyncStart,
		VsyncEnd:   m.VsyncEnd,
		Vtotal:     m.Vtotal,
		Vscan:      m.Vscan,
		Vrefresh:   m.Vrefresh,
		Flags:      m.Flags,
		Type:       m.Type,
	}
	copy(info.Name[:len(info.Name)-1], m.Name)
	return info
}

var _ Device = (*DRM)(nil)
