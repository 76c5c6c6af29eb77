package kmsdisplay

import (
	"fmt"
	"image"
	"sync"

	"github.com/flavioheleno/kmsdisplay/kms"
	"periph.io/x/conn/v3/physic"
)

// Display is a kernel display output: the first connected connector driven
// at its preferred mode through the CRTC of its bound encoder.
type Display struct {
	dev       kms.Device
	connector uint32
	crtc      uint32
	mode      kms.Mode
	rect      image.Rectangle

	mu     sync.Mutex
	closed bool
	live   int // surfaces and framebuffers not yet destroyed
}

// OpenCard opens /dev/dri/card<n> and discovers its output.
func OpenCard(n int) (*Display, error) {
	dev, err := kms.OpenCard(n)
	if err != nil {
		return nil, &DeviceError{Op: "open", Err: err}
	}
	return Open(dev)
}

// Open discovers the output of dev. On success the Display owns dev; on
// failure dev is closed.
func Open(dev kms.Device) (*Display, error) {
	d, err := discover(dev)
	if err != nil {
		if cerr := dev.Close(); cerr != nil {
			Logger().Warn("kmsdisplay: close device", "err", cerr)
		}
		return nil, err
	}
	Logger().Info("kmsdisplay: display opened",
		"connector", d.connector, "crtc", d.crtc, "mode", d.mode.Name,
		"width", d.rect.Dx(), "height", d.rect.Dy(), "refresh", d.mode.Vrefresh)
	return d, nil
}

func discover(dev kms.Device) (*Display, error) {
	res, err := dev.Resources()
	if err != nil {
		return nil, &DeviceError{Op: "get resources", Err: err}
	}

	var conn *kms.Connector
	for _, id := range res.Connectors {
		c, err := dev.Connector(id)
		if err != nil {
			Logger().Warn("kmsdisplay: skipping connector", "connector", id, "err", err)
			continue
		}
		if c.Connection == kms.Connected {
			conn = c
			break
		}
	}
	if conn == nil {
		return nil, &DeviceError{Op: "find connector", Err: ErrNoConnector}
	}

	var mode *kms.Mode
	for i := range conn.Modes {
		if conn.Modes[i].Preferred() {
			mode = &conn.Modes[i]
			break
		}
	}
	if mode == nil {
		return nil, &DeviceError{Op: "find mode", Err: fmt.Errorf("%w (connector %d)", ErrNoPreferredMode, conn.ID)}
	}

	var enc *kms.Encoder
	for _, id := range res.Encoders {
		if id != conn.EncoderID {
			continue
		}
		e, err := dev.Encoder(id)
		if err != nil {
			return nil, &DeviceError{Op: "get encoder", Err: err}
		}
		enc = e
		break
	}
	if enc == nil {
		return nil, &DeviceError{Op: "find encoder", Err: fmt.Errorf("%w (connector %d)", ErrNoEncoder, conn.ID)}
	}

	return &Display{
		dev:       dev,
		connector: conn.ID,
		crtc:      enc.CrtcID,
		mode:      *mode,
		rect:      image.Rect(0, 0, int(mode.Hdisplay), int(mode.Vdisplay)),
	}, nil
}

// Width returns the horizontal resolution of the selected mode.
func (d *Display) Width() int {
	return d.rect.Dx()
}

// Height returns the vertical resolution of the selected mode.
func (d *Display) Height() int {
	return d.rect.Dy()
}

// Bounds returns the output rectangle, anchored at the origin.
func (d *Display) Bounds() image.Rectangle {
	return d.rect
}

// Mode returns the selected display timing.
func (d *Display) Mode() kms.Mode {
	return d.mode
}

// Refresh returns the vertical refresh rate of the selected mode.
func (d *Display) Refresh() physic.Frequency {
	return physic.Frequency(d.mode.Vrefresh) * physic.Hertz
}

// ConnectorID returns the id of the selected connector.
func (d *Display) ConnectorID() uint32 {
	return d.connector
}

// CrtcID returns the id of the CRTC frames are presented on.
func (d *Display) CrtcID() uint32 {
	return d.crtc
}

// Present binds fb to the CRTC and blocks until the mode-set completes. On
// failure the previous image stays on screen; the error is logged and
// returned.
func (d *Display) Present(fb *FrameBuffer) error {
	err := d.dev.SetCrtc(d.crtc, fb.id, []uint32{d.connector}, &d.mode)
	if err != nil {
		Logger().Warn("kmsdisplay: mode-set failed", "fb", fb.id, "err", err)
		return &DeviceError{Op: "set crtc", Err: err}
	}
	return nil
}

// Close releases the device. It fails with ErrInUse while surfaces or
// framebuffers created on the display are alive.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	if d.live > 0 {
		return fmt.Errorf("%w (%d)", ErrInUse, d.live)
	}
	d.closed = true
	if err := d.dev.Close(); err != nil {
		return &DeviceError{Op: "close", Err: err}
	}
	return nil
}

// String returns the geometry, refresh and object ids of the display.
func (d *Display) String() string {
	return fmt.Sprintf("kmsdisplay.Display{%dx%d@%d, connector %d, crtc %d}",
		d.rect.Dx(), d.rect.Dy(), d.mode.Vrefresh, d.connector, d.crtc)
}

// acquire registers a new dependent object. It fails once the display is
// closed.
func (d *Display) acquire() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.live++
	return nil
}

func (d *Display) release() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.live == 0 {
		panic("kmsdisplay: display reference released twice")
	}
	d.live--
}
