package kmsdisplay

import (
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/flavioheleno/kmsdisplay/kms"
	"github.com/flavioheleno/kmsdisplay/kms/memkms"
	"periph.io/x/conn/v3/physic"
)

func newTestDisplay(t *testing.T, w, h int) (*memkms.Device, *Display) {
	t.Helper()
	dev := memkms.NewPanel(w, h)
	d, err := Open(dev)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return dev, d
}

// newSource returns a mapped surface filled with c.
func newSource(t *testing.T, d *Display, w, h int, c color.Color) *Surface {
	t.Helper()
	s, err := NewSurface(d, w, h, XRGB8888)
	if err != nil {
		t.Fatalf("NewSurface: %v", err)
	}
	img, err := s.Image()
	if err != nil {
		t.Fatalf("Image: %v", err)
	}
	img.Fill(c)
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestOpen(t *testing.T) {
	dev, d := newTestDisplay(t, 320, 240)
	if d.Width() != 320 || d.Height() != 240 {
		t.Errorf("size = %dx%d", d.Width(), d.Height())
	}
	if d.Bounds() != image.Rect(0, 0, 320, 240) {
		t.Errorf("Bounds() = %v", d.Bounds())
	}
	if d.ConnectorID() != 1 || d.CrtcID() != 20 {
		t.Errorf("connector=%d crtc=%d", d.ConnectorID(), d.CrtcID())
	}
	if d.Refresh() != 60*physic.Hertz {
		t.Errorf("Refresh() = %s", d.Refresh())
	}
	if !d.Mode().Preferred() {
		t.Error("selected mode is not the preferred one")
	}
	if got, want := d.String(), "kmsdisplay.Display{320x240@60, connector 1, crtc 20}"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !dev.Closed() {
		t.Error("device not closed")
	}
	if err := d.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Close() = %v", err)
	}
}

func TestOpenDiscovery(t *testing.T) {
	preferred := memkms.PanelMode(640, 480, 60)
	plain := preferred
	plain.Type = kms.ModeTypeDriver

	tests := []struct {
		name      string
		build     func(d *memkms.Device)
		want      error
		wantWidth int
	}{
		{
			name: "skips disconnected",
			build: func(d *memkms.Device) {
				d.AddCrtc(20)
				d.AddEncoder(kms.Encoder{ID: 10, CrtcID: 20})
				d.AddConnector(kms.Connector{ID: 1, Connection: kms.Disconnected})
				d.AddConnector(kms.Connector{ID: 2, EncoderID: 10, Connection: kms.Connected,
					Modes: []kms.Mode{plain, preferred}})
			},
			wantWidth: 640,
		},
		{
			name: "no connector",
			build: func(d *memkms.Device) {
				d.AddConnector(kms.Connector{ID: 1, Connection: kms.Disconnected})
			},
			want: ErrNoConnector,
		},
		{
			name: "no preferred mode",
			build: func(d *memkms.Device) {
				d.AddEncoder(kms.Encoder{ID: 10, CrtcID: 20})
				d.AddConnector(kms.Connector{ID: 1, EncoderID: 10, Connection: kms.Connected,
					Modes: []kms.Mode{plain}})
			},
			want: ErrNoPreferredMode,
		},
		{
			name: "no encoder",
			build: func(d *memkms.Device) {
				d.AddEncoder(kms.Encoder{ID: 11, CrtcID: 20})
				d.AddConnector(kms.Connector{ID: 1, EncoderID: 10, Connection: kms.Connected,
					Modes: []kms.Mode{preferred}})
			},
			want: ErrNoEncoder,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := memkms.New()
			tt.build(dev)
			d, err := Open(dev)
			if tt.want != nil {
				if !errors.Is(err, tt.want) {
					t.Fatalf("Open() = %v, want %v", err, tt.want)
				}
				var de *DeviceError
				if !errors.As(err, &de) {
					t.Errorf("error %v is not a DeviceError", err)
				}
				if !dev.Closed() {
					t.Error("device left open after failure")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if d.Width() != tt.wantWidth {
				t.Errorf("Width() = %d, want %d", d.Width(), tt.wantWidth)
			}
		})
	}
}

func TestOpenDeviceErrors(t *testing.T) {
	boom := errors.New("ioctl failed")
	dev := memkms.NewPanel(4, 4)
	dev.Fail(memkms.OpResources, boom)
	if _, err := Open(dev); !errors.Is(err, boom) {
		t.Fatalf("Open() = %v", err)
	}

	// A connector that cannot be queried is skipped.
	dev = memkms.NewPanel(4, 4)
	dev.Fail(memkms.OpConnector, boom)
	if _, err := Open(dev); !errors.Is(err, ErrNoConnector) {
		t.Fatalf("Open() = %v", err)
	}
}

func TestPresent(t *testing.T) {
	dev, d := newTestDisplay(t, 4, 4)
	s, err := NewSurface(d, 4, 4, XRGB8888)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := NewFrameBuffer(s)
	if err != nil {
		t.Fatal(err)
	}

	if err := d.Present(fb); err != nil {
		t.Fatal(err)
	}
	if got := dev.Scanout(); len(got) != 1 || got[0] != fb.ID() {
		t.Errorf("scanout = %v", got)
	}

	boom := errors.New("vblank timeout")
	dev.Fail(memkms.OpSetCrtc, boom)
	err = d.Present(fb)
	var de *DeviceError
	if !errors.As(err, &de) || !errors.Is(err, boom) {
		t.Errorf("Present() = %v", err)
	}
}

func TestCloseWithLiveObjects(t *testing.T) {
	dev, d := newTestDisplay(t, 4, 4)
	s, err := NewSurface(d, 4, 4, RGB565)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := NewFrameBuffer(s)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); !errors.Is(err, ErrInUse) {
		t.Fatalf("Close() with framebuffer = %v, want ErrInUse", err)
	}
	if err := fb.Destroy(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); !errors.Is(err, ErrInUse) {
		t.Fatalf("Close() with surface = %v, want ErrInUse", err)
	}
	if dev.Closed() {
		t.Fatal("device closed under a live surface")
	}
	if err := s.Destroy(); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSurface(d, 4, 4, RGB565); !errors.Is(err, ErrClosed) {
		t.Errorf("NewSurface on closed display = %v", err)
	}
	if n := dev.Calls(memkms.OpCreateDumb); n != 1 {
		t.Errorf("CreateDumb called %d times, want 1", n)
	}
}

func TestFailedSurfaceDoesNotPinDisplay(t *testing.T) {
	dev, d := newTestDisplay(t, 4, 4)
	dev.Fail(memkms.OpCreateDumb, errors.New("ENOMEM"))
	if _, err := NewSurface(d, 4, 4, RGB565); !errors.Is(err, ErrResourceExhausted) {
		t.Fatalf("NewSurface() = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
