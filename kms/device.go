// Package kms describes the kernel display subsystem as seen by kmsdisplay.
//
// Device is the narrow set of kernel mode-setting operations the display
// pipeline needs: topology discovery (connectors, encoders, CRTCs, modes),
// dumb buffer allocation, zero-copy PRIME export, memory mapping, scanout
// registration and the synchronous mode-set. OpenCard returns the Linux DRM
// implementation; package memkms provides an in-memory one.
package kms

import "errors"

// Connection states reported by a connector.
const (
	Connected         = 1
	Disconnected      = 2
	UnknownConnection = 3
)

// Mode type flags.
const (
	ModeTypeBuiltin   = 1 << 0
	ModeTypePreferred = 1 << 3
	ModeTypeDefault   = 1 << 4
	ModeTypeUserDef   = 1 << 5
	ModeTypeDriver    = 1 << 6
)

// ErrUnsupported is returned by OpenCard on platforms without DRM.
var ErrUnsupported = errors.New("kms: DRM is not supported on this platform")

// Mode is a display timing, equivalent to drm_mode_modeinfo.
type Mode struct {
	Clock                                         uint32
	Hdisplay, HsyncStart, HsyncEnd, Htotal, Hskew uint16
	Vdisplay, VsyncStart, VsyncEnd, Vtotal, Vscan uint16

	Vrefresh uint32

	Flags uint32
	Type  uint32
	Name  string
}

// Preferred reports whether the driver flagged the mode as preferred.
func (m Mode) Preferred() bool {
	return m.Type&ModeTypePreferred != 0
}

// Resources lists the mode-setting objects exposed by a device.
type Resources struct {
	Connectors []uint32
	Encoders   []uint32
	Crtcs      []uint32
}

// Connector is a physical output.
type Connector struct {
	ID         uint32
	EncoderID  uint32 // currently bound encoder, 0 if none
	Connection uint8
	Modes      []Mode
}

// Encoder routes a CRTC to a connector.
type Encoder struct {
	ID     uint32
	CrtcID uint32
}

// DumbBuffer is the result of a dumb buffer allocation.
type DumbBuffer struct {
	Handle uint32
	Pitch  uint32
	Size   uint64
}

// Device is a kernel display device.
//
// Implementations need not be safe for concurrent use beyond what the kernel
// itself guarantees; kmsdisplay only issues SetCrtc from one goroutine.
type Device interface {
	Resources() (*Resources, error)
	Connector(id uint32) (*Connector, error)
	Encoder(id uint32) (*Encoder, error)

	// CreateDumb allocates a buffer of the given geometry and bits per pixel.
	CreateDumb(width, height, bpp uint32) (*DumbBuffer, error)
	DestroyDumb(handle uint32) error

	// PrimeHandleToFD exports a buffer handle as a file descriptor usable for
	// mmap and by other hardware engines.
	PrimeHandleToFD(handle uint32) (int, error)
	CloseFD(fd int) error
	Mmap(fd int, size int) ([]byte, error)
	Munmap(b []byte) error

	// AddFB2 registers a single-plane scanout object and returns its id.
	AddFB2(width, height, format, handle, pitch uint32) (uint32, error)
	RmFB(id uint32) error

	// SetCrtc binds fbID to crtcID driving the given connectors with mode.
	// It blocks until the kernel completes the mode-set.
	SetCrtc(crtcID, fbID uint32, connectors []uint32, mode *Mode) error

	Close() error
}
