package memkms

import (
	"errors"
	"testing"

	"github.com/flavioheleno/kmsdisplay/kms"
)

func TestNewPanelTopology(t *testing.T) {
	d := NewPanel(320, 240)

	res, err := d.Resources()
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Connectors) != 1 || len(res.Encoders) != 1 || len(res.Crtcs) != 1 {
		t.Fatalf("unexpected resources %+v", res)
	}
	conn, err := d.Connector(res.Connectors[0])
	if err != nil {
		t.Fatal(err)
	}
	if conn.Connection != kms.Connected {
		t.Errorf("connection = %d", conn.Connection)
	}
	if len(conn.Modes) != 1 || !conn.Modes[0].Preferred() {
		t.Fatalf("modes = %+v", conn.Modes)
	}
	if m := conn.Modes[0]; m.Hdisplay != 320 || m.Vdisplay != 240 || m.Vrefresh != 60 {
		t.Errorf("mode = %+v", m)
	}
	enc, err := d.Encoder(conn.EncoderID)
	if err != nil {
		t.Fatal(err)
	}
	if enc.CrtcID != res.Crtcs[0] {
		t.Errorf("encoder crtc = %d, want %d", enc.CrtcID, res.Crtcs[0])
	}
}

func TestBufferLifecycle(t *testing.T) {
	d := NewPanel(10, 4)

	db, err := d.CreateDumb(10, 4, 16)
	if err != nil {
		t.Fatal(err)
	}
	if db.Pitch != 64 || db.Size != 256 {
		t.Fatalf("pitch=%d size=%d", db.Pitch, db.Size)
	}
	fd, err := d.PrimeHandleToFD(db.Handle)
	if err != nil {
		t.Fatal(err)
	}
	m, err := d.Mmap(fd, int(db.Size))
	if err != nil {
		t.Fatal(err)
	}
	m[0] = 0xAB
	if got := d.Pixels(db.Handle)[0]; got != 0xAB {
		t.Errorf("mapping does not alias buffer memory: %#x", got)
	}
	if b, _, f, mp := d.Live(); b != 1 || f != 1 || mp != 1 {
		t.Errorf("live = %d buffers %d fds %d mappings", b, f, mp)
	}

	id, err := d.AddFB2(10, 4, 0x36314752, db.Handle, db.Pitch)
	if err != nil {
		t.Fatal(err)
	}
	if err := d.SetCrtc(20, id, []uint32{1}, &kms.Mode{}); err != nil {
		t.Fatal(err)
	}
	fb, pix, ok := d.Current()
	if !ok || fb.ID != id || pix[0] != 0xAB {
		t.Errorf("current = %+v %v", fb, ok)
	}

	if err := d.Munmap(m); err != nil {
		t.Fatal(err)
	}
	if err := d.CloseFD(fd); err != nil {
		t.Fatal(err)
	}
	if err := d.RmFB(id); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := d.Current(); ok {
		t.Error("removing the scanout object should disable the CRTC")
	}
	if err := d.DestroyDumb(db.Handle); err != nil {
		t.Fatal(err)
	}
	if b, fbs, f, mp := d.Live(); b+fbs+f+mp != 0 {
		t.Errorf("leaked %d buffers %d fbs %d fds %d mappings", b, fbs, f, mp)
	}
	if got := d.Scanout(); len(got) != 1 || got[0] != id {
		t.Errorf("scanout = %v", got)
	}
}

func TestInvalidArguments(t *testing.T) {
	d := NewPanel(8, 8)
	db, err := d.CreateDumb(8, 8, 32)
	if err != nil {
		t.Fatal(err)
	}
	id, err := d.AddFB2(8, 8, 0, db.Handle, db.Pitch)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"zero bpp", func() error { _, err := d.CreateDumb(8, 8, 0); return err }, ErrInvalid},
		{"unknown handle", func() error { _, err := d.PrimeHandleToFD(99); return err }, ErrNoEntry},
		{"unknown fd", func() error { _, err := d.Mmap(99, 1); return err }, ErrNoEntry},
		{"pitch too large", func() error { _, err := d.AddFB2(8, 8, 0, db.Handle, db.Pitch*2); return err }, ErrInvalid},
		{"unknown crtc", func() error { return d.SetCrtc(99, id, []uint32{1}, &kms.Mode{}) }, ErrInvalid},
		{"unknown connector", func() error { return d.SetCrtc(20, id, []uint32{7}, &kms.Mode{}) }, ErrNoEntry},
		{"unknown fb", func() error { return d.SetCrtc(20, 5, []uint32{1}, &kms.Mode{}) }, ErrNoEntry},
		{"unknown rmfb", func() error { return d.RmFB(5) }, ErrNoEntry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFailInjection(t *testing.T) {
	d := NewPanel(4, 4)
	boom := errors.New("boom")
	d.Fail(OpCreateDumb, boom)
	if _, err := d.CreateDumb(4, 4, 32); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	d.Fail(OpCreateDumb, nil)
	if _, err := d.CreateDumb(4, 4, 32); err != nil {
		t.Fatal(err)
	}
	if n := d.Calls(OpCreateDumb); n != 2 {
		t.Errorf("calls = %d", n)
	}
}

func TestBeforeSetCrtc(t *testing.T) {
	d := NewPanel(4, 4)
	db, _ := d.CreateDumb(4, 4, 32)
	id, _ := d.AddFB2(4, 4, 0, db.Handle, db.Pitch)

	var seen uint32
	boom := errors.New("vblank timeout")
	d.BeforeSetCrtc = func(fbID uint32) error {
		seen = fbID
		return boom
	}
	if err := d.SetCrtc(20, id, []uint32{1}, &kms.Mode{}); !errors.Is(err, boom) {
		t.Fatalf("got %v", err)
	}
	if seen != id {
		t.Errorf("hook saw %d, want %d", seen, id)
	}
	if len(d.Scanout()) != 0 {
		t.Error("failed mode-set recorded in scanout history")
	}
}

func TestClose(t *testing.T) {
	d := NewPanel(4, 4)
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !d.Closed() {
		t.Error("not closed")
	}
	if _, err := d.Resources(); !errors.Is(err, ErrClosed) {
		t.Errorf("got %v", err)
	}
	if err := d.Close(); !errors.Is(err, ErrClosed) {
		t.Errorf("second close: %v", err)
	}
}
