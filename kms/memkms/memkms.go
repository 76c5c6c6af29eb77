// Package memkms implements kms.Device in process memory.
//
// It emulates the parts of the kernel mode-setting API used by kmsdisplay:
// a configurable connector/encoder/CRTC topology, dumb buffers backed by Go
// slices, PRIME descriptors, scanout objects and a scanout history. Every call
// is counted and any operation can be made to fail, which makes it suitable
// for tests and for previewing the pipeline on a desktop.
package memkms

import (
	"errors"
	"fmt"
	"sync"

	"github.com/flavioheleno/kmsdisplay/kms"
)

// Operation names accepted by Fail and Calls.
const (
	OpResources   = "Resources"
	OpConnector   = "Connector"
	OpEncoder     = "Encoder"
	OpCreateDumb  = "CreateDumb"
	OpDestroyDumb = "DestroyDumb"
	OpPrime       = "PrimeHandleToFD"
	OpCloseFD     = "CloseFD"
	OpMmap        = "Mmap"
	OpMunmap      = "Munmap"
	OpAddFB2      = "AddFB2"
	OpRmFB        = "RmFB"
	OpSetCrtc     = "SetCrtc"
)

var (
	ErrClosed  = errors.New("memkms: device closed")
	ErrInvalid = errors.New("memkms: invalid argument")
	ErrNoEntry = errors.New("memkms: no such object")
)

// FB describes a registered scanout object.
type FB struct {
	ID            uint32
	Width, Height uint32
	Format        uint32
	Handle        uint32
	Pitch         uint32
}

type buffer struct {
	mem     []byte
	pitch   uint32
	mapped  int
	exports int
}

// Device is an in-memory kms.Device. The zero value is not usable; call New
// or NewPanel.
type Device struct {
	// BeforeSetCrtc, if set, runs before every SetCrtc without holding the
	// device lock. A non-nil error fails the call. Tests use it to pause the
	// presentation goroutine.
	BeforeSetCrtc func(fbID uint32) error

	mu         sync.Mutex
	closed     bool
	connectors []kms.Connector
	encoders   []kms.Encoder
	crtcs      []uint32

	buffers    map[uint32]*buffer
	fds        map[int]uint32
	fbs        map[uint32]FB
	nextHandle uint32
	nextFB     uint32
	nextFD     int

	current uint32
	scanout []uint32
	calls   map[string]int
	fail    map[string]error
}

// New returns a device with no outputs.
func New() *Device {
	return &Device{
		buffers:    make(map[uint32]*buffer),
		fds:        make(map[int]uint32),
		fbs:        make(map[uint32]FB),
		nextHandle: 1,
		nextFB:     100,
		nextFD:     3,
		calls:      make(map[string]int),
		fail:       make(map[string]error),
	}
}

// NewPanel returns a device with a single connected width x height panel
// refreshing at 60Hz, wired connector 1 -> encoder 10 -> CRTC 20.
func NewPanel(width, height int) *Device {
	d := New()
	d.AddCrtc(20)
	d.AddEncoder(kms.Encoder{ID: 10, CrtcID: 20})
	d.AddConnector(kms.Connector{
		ID:         1,
		EncoderID:  10,
		Connection: kms.Connected,
		Modes:      []kms.Mode{PanelMode(width, height, 60)},
	})
	return d
}

// PanelMode returns a preferred mode with plausible timings.
func PanelMode(width, height int, refresh uint32) kms.Mode {
	hd, vd := uint16(width), uint16(height)
	m := kms.Mode{
		Hdisplay:   hd,
		HsyncStart: hd + 8,
		HsyncEnd:   hd + 12,
		Htotal:     hd + 20,
		Vdisplay:   vd,
		VsyncStart: vd + 4,
		VsyncEnd:   vd + 6,
		Vtotal:     vd + 10,
		Vrefresh:   refresh,
		Type:       kms.ModeTypeDriver | kms.ModeTypePreferred,
		Name:       fmt.Sprintf("%dx%d", width, height),
	}
	m.Clock = uint32(m.Htotal) * uint32(m.Vtotal) * refresh / 1000
	return m
}

// AddConnector appends a connector to the topology.
func (d *Device) AddConnector(c kms.Connector) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectors = append(d.connectors, c)
}

// AddEncoder appends an encoder to the topology.
func (d *Device) AddEncoder(e kms.Encoder) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.encoders = append(d.encoders, e)
}

// AddCrtc appends a CRTC id to the topology.
func (d *Device) AddCrtc(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.crtcs = append(d.crtcs, id)
}

// Fail makes every subsequent call of op return err. A nil err clears it.
func (d *Device) Fail(op string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, op)
		return
	}
	d.fail[op] = err
}

// Calls reports how many times op was invoked.
func (d *Device) Calls(op string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls[op]
}

// enter counts a call and reports an injected or closed-device error.
// Must be called with d.mu held.
func (d *Device) enter(op string) error {
	d.calls[op]++
	if d.closed {
		return ErrClosed
	}
	return d.fail[op]
}

func (d *Device) Resources() (*kms.Resources, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpResources); err != nil {
		return nil, err
	}
	res := &kms.Resources{Crtcs: append([]uint32(nil), d.crtcs...)}
	for _, c := range d.connectors {
		res.Connectors = append(res.Connectors, c.ID)
	}
	for _, e := range d.encoders {
		res.Encoders = append(res.Encoders, e.ID)
	}
	return res, nil
}

func (d *Device) Connector(id uint32) (*kms.Connector, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpConnector); err != nil {
		return nil, err
	}
	for _, c := range d.connectors {
		if c.ID == id {
			c.Modes = append([]kms.Mode(nil), c.Modes...)
			return &c, nil
		}
	}
	return nil, ErrNoEntry
}

func (d *Device) Encoder(id uint32) (*kms.Encoder, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpEncoder); err != nil {
		return nil, err
	}
	for _, e := range d.encoders {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, ErrNoEntry
}

func (d *Device) CreateDumb(width, height, bpp uint32) (*kms.DumbBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCreateDumb); err != nil {
		return nil, err
	}
	if width == 0 || height == 0 || bpp == 0 {
		return nil, ErrInvalid
	}
	// Scanout engines usually want 64-byte aligned rows.
	pitch := (width*((bpp+7)/8) + 63) &^ 63
	size := uint64(pitch) * uint64(height)
	handle := d.nextHandle
	d.nextHandle++
	d.buffers[handle] = &buffer{mem: make([]byte, size), pitch: pitch}
	return &kms.DumbBuffer{Handle: handle, Pitch: pitch, Size: size}, nil
}

func (d *Device) DestroyDumb(handle uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpDestroyDumb); err != nil {
		return err
	}
	if _, ok := d.buffers[handle]; !ok {
		return ErrNoEntry
	}
	delete(d.buffers, handle)
	return nil
}

func (d *Device) PrimeHandleToFD(handle uint32) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpPrime); err != nil {
		return -1, err
	}
	b, ok := d.buffers[handle]
	if !ok {
		return -1, ErrNoEntry
	}
	fd := d.nextFD
	d.nextFD++
	d.fds[fd] = handle
	b.exports++
	return fd, nil
}

func (d *Device) CloseFD(fd int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpCloseFD); err != nil {
		return err
	}
	handle, ok := d.fds[fd]
	if !ok {
		return ErrNoEntry
	}
	delete(d.fds, fd)
	if b, ok := d.buffers[handle]; ok {
		b.exports--
	}
	return nil
}

func (d *Device) Mmap(fd int, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpMmap); err != nil {
		return nil, err
	}
	handle, ok := d.fds[fd]
	if !ok {
		return nil, ErrNoEntry
	}
	b, ok := d.buffers[handle]
	if !ok || size <= 0 || size > len(b.mem) {
		return nil, ErrInvalid
	}
	b.mapped++
	return b.mem[:size:size], nil
}

func (d *Device) Munmap(m []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpMunmap); err != nil {
		return err
	}
	if len(m) == 0 {
		return ErrInvalid
	}
	for _, b := range d.buffers {
		if b.mapped > 0 && &b.mem[0] == &m[0] {
			b.mapped--
			return nil
		}
	}
	return ErrNoEntry
}

func (d *Device) AddFB2(width, height, format, handle, pitch uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpAddFB2); err != nil {
		return 0, err
	}
	b, ok := d.buffers[handle]
	if !ok {
		return 0, ErrNoEntry
	}
	if width == 0 || height == 0 || pitch == 0 || uint64(pitch)*uint64(height) > uint64(len(b.mem)) {
		return 0, ErrInvalid
	}
	id := d.nextFB
	d.nextFB++
	d.fbs[id] = FB{ID: id, Width: width, Height: height, Format: format, Handle: handle, Pitch: pitch}
	return id, nil
}

func (d *Device) RmFB(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpRmFB); err != nil {
		return err
	}
	if _, ok := d.fbs[id]; !ok {
		return ErrNoEntry
	}
	delete(d.fbs, id)
	if d.current == id {
		// The kernel disables a CRTC whose framebuffer is removed.
		d.current = 0
	}
	return nil
}

func (d *Device) SetCrtc(crtcID, fbID uint32, connectors []uint32, mode *kms.Mode) error {
	if hook := d.BeforeSetCrtc; hook != nil {
		if err := hook(fbID); err != nil {
			d.mu.Lock()
			d.calls[OpSetCrtc]++
			d.mu.Unlock()
			return err
		}
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.enter(OpSetCrtc); err != nil {
		return err
	}
	if !d.hasCrtc(crtcID) || len(connectors) == 0 || mode == nil {
		return ErrInvalid
	}
	for _, id := range connectors {
		if !d.hasConnector(id) {
			return ErrNoEntry
		}
	}
	if _, ok := d.fbs[fbID]; !ok {
		return ErrNoEntry
	}
	d.current = fbID
	d.scanout = append(d.scanout, fbID)
	return nil
}

func (d *Device) hasCrtc(id uint32) bool {
	for _, c := range d.crtcs {
		if c == id {
			return true
		}
	}
	return false
}

func (d *Device) hasConnector(id uint32) bool {
	for _, c := range d.connectors {
		if c.ID == id {
			return true
		}
	}
	return false
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}
	d.closed = true
	return nil
}

// Scanout returns every framebuffer id successfully bound by SetCrtc, oldest
// first.
func (d *Device) Scanout() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint32(nil), d.scanout...)
}

// Current returns the framebuffer being scanned out and its pixel memory.
func (d *Device) Current() (FB, []byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fb, ok := d.fbs[d.current]
	if !ok {
		return FB{}, nil, false
	}
	b, ok := d.buffers[fb.Handle]
	if !ok {
		return FB{}, nil, false
	}
	return fb, b.mem, true
}

// FrameBuffer looks up a registered scanout object.
func (d *Device) FrameBuffer(id uint32) (FB, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	fb, ok := d.fbs[id]
	return fb, ok
}

// Pixels returns the backing memory of a dumb buffer.
func (d *Device) Pixels(handle uint32) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[handle]; ok {
		return b.mem
	}
	return nil
}

// Live reports the number of live dumb buffers, scanout objects, exported
// descriptors and mappings.
func (d *Device) Live() (buffers, fbs, fds, mappings int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range d.buffers {
		mappings += b.mapped
	}
	return len(d.buffers), len(d.fbs), len(d.fds), mappings
}

// Closed reports whether Close was called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

var _ kms.Device = (*Device)(nil)
