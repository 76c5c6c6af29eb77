package kmsdisplay

import (
	"errors"
	"fmt"
)

var (
	ErrNoConnector         = errors.New("kmsdisplay: no connected connector")
	ErrNoPreferredMode     = errors.New("kmsdisplay: connector has no preferred mode")
	ErrNoEncoder           = errors.New("kmsdisplay: no encoder bound to connector")
	ErrUnsupportedFormat   = errors.New("kmsdisplay: unsupported pixel format")
	ErrUnsupportedRotation = errors.New("kmsdisplay: rotation must be 0, 90, 180 or 270")
	ErrSurfaceMapped       = errors.New("kmsdisplay: surface is mapped")
	ErrInUse               = errors.New("kmsdisplay: display has live surfaces or framebuffers")
	ErrClosed              = errors.New("kmsdisplay: closed")
	ErrQueueFull           = errors.New("kmsdisplay: queue full")
	ErrQueueEmpty          = errors.New("kmsdisplay: queue empty")
	ErrResourceExhausted   = errors.New("kmsdisplay: resource exhausted")
)

// DeviceError is a kernel or hardware call that was rejected.
type DeviceError struct {
	Op  string
	Err error
}

// Error returns the failed operation and its cause.
func (e *DeviceError) Error() string {
	return fmt.Sprintf("kmsdisplay: %s: %v", e.Op, e.Err)
}

// Unwrap returns the error reported by the device.
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// exhausted reports a failed allocation or registration. The result matches
// both ErrResourceExhausted and the DeviceError for op.
func exhausted(op string, err error) error {
	return fmt.Errorf("%w: %w", ErrResourceExhausted, &DeviceError{Op: op, Err: err})
}
