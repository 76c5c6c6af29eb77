package kmsdisplay

import (
	"bytes"
	"errors"
	"image/color"
	"log/slog"
	"strings"
	"testing"

	"github.com/flavioheleno/kmsdisplay/kms/memkms"
)

func TestFormatBitsPerPixel(t *testing.T) {
	tests := []struct {
		format Format
		want   uint32
	}{
		{XRGB8888, 32},
		{ARGB8888, 32},
		{RGBA1010102, 32},
		{XBGR2101010, 32},
		{RGB888, 24},
		{BGR888, 24},
		{RGB565, 16},
		{BGR565, 16},
		{XRGB1555, 16},
		{RGBA5551, 16},
		{ABGR4444, 16},
		{Format(0x56595559), 0}, // YUYV
		{Format(0), 0},
	}

	for _, tt := range tests {
		t.Run(tt.format.String(), func(t *testing.T) {
			if got := tt.format.BitsPerPixel(); got != tt.want {
				t.Errorf("BitsPerPixel() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestFormatString(t *testing.T) {
	tests := []struct {
		format Format
		want   string
	}{
		{XRGB8888, "XRGB8888"},
		{RGB565, "RGB565"},
		{BGRA1010102, "BGRA1010102"},
		{ARGB1555, "ARGB1555"},
		{Format(0x56595559), `Format("YUYV")`},
		{Format(1), "Format(0x00000001)"},
	}

	for _, tt := range tests {
		if got := tt.format.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestUnsupportedFormatIsLogged(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { SetLogger(nil) })

	dev, d := newTestDisplay(t, 4, 4)
	_, err := NewSurface(d, 4, 4, Format(0x56595559))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("NewSurface() = %v", err)
	}
	if n := dev.Calls(memkms.OpCreateDumb); n != 0 {
		t.Errorf("allocation attempted %d times with 0 bpp", n)
	}
	if !strings.Contains(buf.String(), "level=ERROR") || !strings.Contains(buf.String(), "YUYV") {
		t.Errorf("log = %q", buf.String())
	}
}

func TestNewSurface(t *testing.T) {
	_, d := newTestDisplay(t, 16, 16)
	s, err := NewSurface(d, 10, 4, RGB565)
	if err != nil {
		t.Fatal(err)
	}
	if s.Width() != 10 || s.Height() != 4 || s.Format() != RGB565 {
		t.Errorf("geometry = %dx%d %s", s.Width(), s.Height(), s.Format())
	}
	if s.Stride() != 64 || s.Size() != 256 {
		t.Errorf("stride=%d size=%d", s.Stride(), s.Size())
	}
	if s.Display() != d {
		t.Error("wrong display")
	}

	if _, err := NewSurface(d, 0, 4, RGB565); err == nil {
		t.Error("zero width accepted")
	}
}

func TestNewSurfaceExhausted(t *testing.T) {
	dev, d := newTestDisplay(t, 4, 4)
	boom := errors.New("out of memory")
	dev.Fail(memkms.OpCreateDumb, boom)

	_, err := NewSurface(d, 4, 4, XRGB8888)
	if !errors.Is(err, ErrResourceExhausted) || !errors.Is(err, boom) {
		t.Fatalf("NewSurface() = %v", err)
	}
	var de *DeviceError
	if !errors.As(err, &de) || de.Op != "create dumb buffer" {
		t.Errorf("DeviceError = %+v", de)
	}
}

func TestSurfaceMapIdempotent(t *testing.T) {
	dev, d := newTestDisplay(t, 4, 4)
	s, err := NewSurface(d, 4, 4, XRGB8888)
	if err != nil {
		t.Fatal(err)
	}

	m1, err := s.Map()
	if err != nil {
		t.Fatal(err)
	}
	m2, err := s.Map()
	if err != nil {
		t.Fatal(err)
	}
	if &m1[0] != &m2[0] {
		t.Error("second Map returned a different mapping")
	}
	if n := dev.Calls(memkms.OpMmap); n != 1 {
		t.Errorf("mmap called %d times, want 1", n)
	}

	if err := s.Unmap(); err != nil {
		t.Fatal(err)
	}
	if err := s.Unmap(); err != nil {
		t.Errorf("Unmap on unmapped surface: %v", err)
	}
	if s.Mapped() {
		t.Error("still mapped")
	}
	m3, err := s.Map()
	if err != nil {
		t.Fatal(err)
	}
	if len(m3) != int(s.Size()) {
		t.Errorf("remapped %d bytes, want %d", len(m3), s.Size())
	}
	if n := dev.Calls(memkms.OpMmap); n != 2 {
		t.Errorf("mmap called %d times, want 2", n)
	}
	if n := dev.Calls(memkms.OpPrime); n != 1 {
		t.Errorf("export called %d times, want 1", n)
	}
}

func TestSurfaceMapFailure(t *testing.T) {
	dev, d := newTestDisplay(t, 4, 4)
	s, err := NewSurface(d, 4, 4, XRGB8888)
	if err != nil {
		t.Fatal(err)
	}
	dev.Fail(memkms.OpMmap, errors.New("ENOMEM"))
	if m, err := s.Map(); err == nil || m != nil {
		t.Fatalf("Map() = %v, %v", m, err)
	}
	if s.Mapped() {
		t.Error("surface marked mapped after failure")
	}
	dev.Fail(memkms.OpMmap, nil)
	if _, err := s.Map(); err != nil {
		t.Errorf("Map() after recovery: %v", err)
	}
}

func TestSurfaceImage(t *testing.T) {
	dev, d := newTestDisplay(t, 4, 4)
	s, err := NewSurface(d, 3, 2, XRGB8888)
	if err != nil {
		t.Fatal(err)
	}
	img, err := s.Image()
	if err != nil {
		t.Fatal(err)
	}
	img.Set(2, 1, color.RGBA{0x10, 0x20, 0x30, 0xFF})

	pix := dev.Pixels(s.Handle())
	off := 1*s.Stride() + 2*4
	if got := pix[off : off+3]; !bytes.Equal(got, []byte{0x30, 0x20, 0x10}) {
		t.Errorf("buffer bytes = % x", got)
	}
}

func TestSurfaceDestroy(t *testing.T) {
	dev, d := newTestDisplay(t, 4, 4)
	s, err := NewSurface(d, 4, 4, XRGB8888)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Map(); err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(); !errors.Is(err, ErrSurfaceMapped) {
		t.Fatalf("Destroy() while mapped = %v", err)
	}
	if err := s.Unmap(); err != nil {
		t.Fatal(err)
	}
	if err := s.Destroy(); err != nil {
		t.Fatal(err)
	}
	if b, _, fds, m := dev.Live(); b != 0 || fds != 0 || m != 0 {
		t.Errorf("leaked %d buffers %d fds %d mappings", b, fds, m)
	}
	if err := s.Destroy(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Destroy() = %v", err)
	}
	if _, err := s.ExportHandle(); !errors.Is(err, ErrClosed) {
		t.Errorf("ExportHandle() after Destroy = %v", err)
	}
}

func TestFrameBuffer(t *testing.T) {
	dev, d := newTestDisplay(t, 8, 8)
	s, err := NewSurface(d, 8, 8, RGB565)
	if err != nil {
		t.Fatal(err)
	}
	fb, err := NewFrameBuffer(s)
	if err != nil {
		t.Fatal(err)
	}
	if fb.Surface() != s {
		t.Error("Surface() mismatch")
	}
	rec, ok := dev.FrameBuffer(fb.ID())
	if !ok {
		t.Fatal("framebuffer not registered")
	}
	if rec.Width != 8 || rec.Height != 8 || rec.Format != uint32(RGB565) || rec.Pitch != uint32(s.Stride()) || rec.Handle != s.Handle() {
		t.Errorf("registered %+v", rec)
	}
	if err := fb.Destroy(); err != nil {
		t.Fatal(err)
	}
	if _, ok := dev.FrameBuffer(fb.ID()); ok {
		t.Error("framebuffer still registered")
	}
	if err := fb.Destroy(); !errors.Is(err, ErrClosed) {
		t.Errorf("second Destroy() = %v", err)
	}
}

func TestFrameBufferErrors(t *testing.T) {
	dev, d := newTestDisplay(t, 8, 8)
	s, err := NewSurface(d, 8, 8, RGB565)
	if err != nil {
		t.Fatal(err)
	}

	boom := errors.New("EINVAL")
	dev.Fail(memkms.OpAddFB2, boom)
	if _, err := NewFrameBuffer(s); !errors.Is(err, ErrResourceExhausted) || !errors.Is(err, boom) {
		t.Fatalf("NewFrameBuffer() = %v", err)
	}
	dev.Fail(memkms.OpAddFB2, nil)

	// The failed registration must not pin the display.
	if err := s.Destroy(); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFrameBuffer(s); !errors.Is(err, ErrClosed) {
		t.Errorf("NewFrameBuffer(destroyed) = %v", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() = %v", err)
	}
}
