package kmsdisplay

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"

	"golang.org/x/sync/semaphore"
)

// BufferCount is the number of framebuffers cycled by a Presenter.
const BufferCount = 3

// PresenterOpts configures a Presenter. A nil *PresenterOpts selects every
// default.
type PresenterOpts struct {
	Format     Format      // Framebuffer format (default: XRGB8888)
	Background color.Color // Fill color behind the blitted image (default: opaque black)
	Blitter    Blitter     // 2D engine (default: NewSoftBlitter(nil))
}

// Stats is a snapshot of a Presenter. Free+Used+OnScreen+InFlight always
// equals BufferCount.
type Stats struct {
	Free     int // buffers ready to be composed into
	Used     int // composed buffers waiting for the display
	OnScreen int // 1 once a frame has been shown
	InFlight int // buffers being composed or in a mode-set

	Posted        uint64 // frames queued for display
	Presented     uint64 // successful mode-sets
	PresentErrors uint64 // rejected mode-sets
	BlitErrors    uint64 // posts dropped because the blit failed
}

// Presenter composes frames into a pool of BufferCount framebuffers and shows
// them in order from a dedicated goroutine.
//
// Each framebuffer is always in exactly one of four places: the free queue,
// the used queue, on screen, or held by a Post or by the presentation
// goroutine. freeSlots counts the free queue and usedReady counts the used
// queue. The buffer on screen only returns to free once a newer one has been
// presented, so the display never scans out memory being composed into.
type Presenter struct {
	display    *Display
	format     Format
	background color.Color
	blitter    Blitter
	serialize  bool
	blitMu     sync.Mutex

	pool []*FrameBuffer

	freeSlots *semaphore.Weighted
	usedReady *semaphore.Weighted

	mu       sync.Mutex
	free     *BoundedQueue[*FrameBuffer]
	used     *BoundedQueue[*FrameBuffer]
	onScreen *FrameBuffer
	pending  *FrameBuffer // in a mode-set
	posting  int          // buffers held by Post
	closed   bool
	stats    Stats

	ctx    context.Context
	cancel context.CancelFunc
	posts  sync.WaitGroup
	done   chan struct{}

	closeOnce sync.Once
	closeErr  error
}

// NewPresenter allocates BufferCount full-screen framebuffers on d and starts
// the presentation goroutine. Either every buffer is created or none is left
// behind.
func NewPresenter(d *Display, opts *PresenterOpts) (*Presenter, error) {
	var o PresenterOpts
	if opts != nil {
		o = *opts
	}
	if o.Format == 0 {
		o.Format = XRGB8888
	}
	if o.Background == nil {
		o.Background = color.Black
	}
	if o.Blitter == nil {
		o.Blitter = NewSoftBlitter(nil)
	}
	if _, err := o.Format.Layout(); err != nil {
		return nil, err
	}

	p := &Presenter{
		display:    d,
		format:     o.Format,
		background: o.Background,
		blitter:    o.Blitter,
		serialize:  !isReentrant(o.Blitter),
		free:       NewBoundedQueue[*FrameBuffer](BufferCount),
		used:       NewBoundedQueue[*FrameBuffer](BufferCount),
		freeSlots:  semaphore.NewWeighted(BufferCount),
		usedReady:  semaphore.NewWeighted(BufferCount),
		done:       make(chan struct{}),
	}
	// usedReady starts at zero.
	if !p.usedReady.TryAcquire(BufferCount) {
		panic("kmsdisplay: fresh semaphore unavailable")
	}

	for i := 0; i < BufferCount; i++ {
		fb, err := newPoolBuffer(d, o.Format)
		if err != nil {
			if rerr := p.release(); rerr != nil {
				Logger().Warn("kmsdisplay: presenter cleanup", "err", rerr)
			}
			return nil, err
		}
		p.pool = append(p.pool, fb)
		p.mustPush(p.free, fb)
	}

	p.ctx, p.cancel = context.WithCancel(context.Background())
	go p.loop()

	Logger().Info("kmsdisplay: presenter started",
		"buffers", BufferCount, "format", o.Format.String(), "serialized", p.serialize)
	return p, nil
}

func newPoolBuffer(d *Display, format Format) (*FrameBuffer, error) {
	s, err := NewSurface(d, d.Width(), d.Height(), format)
	if err != nil {
		return nil, err
	}
	fb, err := NewFrameBuffer(s)
	if err != nil {
		if derr := s.Destroy(); derr != nil {
			Logger().Warn("kmsdisplay: destroy surface", "err", derr)
		}
		return nil, err
	}
	return fb, nil
}

// Display returns the display frames are presented on.
func (p *Presenter) Display() *Display {
	return p.display
}

// Format returns the framebuffer pixel format.
func (p *Presenter) Format() Format {
	return p.format
}

// Post composes sr of src into dr of the next free framebuffer, rotated
// clockwise by rot over the background color, and queues it for display.
//
// Post blocks while every framebuffer is in use, until one is retired or ctx
// is done. It is safe for concurrent use; frames are shown in the order their
// Post calls finish composing. Invalid rotations and rectangles are rejected
// before a buffer is taken. If the blit fails the buffer is returned unused
// and the error is reported.
func (p *Presenter) Post(ctx context.Context, src *Surface, sr, dr image.Rectangle, rot Rotation) error {
	if src == nil {
		return errors.New("kmsdisplay: nil source surface")
	}
	if err := checkBlit(src.Bounds(), sr, p.display.Bounds(), dr, rot); err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.posts.Add(1)
	p.mu.Unlock()
	defer p.posts.Done()

	wctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(p.ctx, cancel)
	defer func() {
		stop()
		cancel()
	}()
	if err := p.freeSlots.Acquire(wctx, 1); err != nil {
		if p.ctx.Err() != nil {
			return ErrClosed
		}
		return err
	}

	p.mu.Lock()
	fb, err := p.free.Pop()
	if err != nil {
		p.mu.Unlock()
		panic("kmsdisplay: free queue empty while holding a free slot")
	}
	p.posting++
	p.mu.Unlock()

	err = p.compose(fb, src, sr, dr, rot)

	p.mu.Lock()
	p.posting--
	if err != nil {
		p.stats.BlitErrors++
		p.mustPush(p.free, fb)
		p.mu.Unlock()
		p.freeSlots.Release(1)
		return err
	}
	p.mustPush(p.used, fb)
	p.stats.Posted++
	p.mu.Unlock()
	p.usedReady.Release(1)

	Logger().Debug("kmsdisplay: frame posted", "fb", fb.id)
	return nil
}

func (p *Presenter) compose(fb *FrameBuffer, src *Surface, sr, dr image.Rectangle, rot Rotation) error {
	if p.serialize {
		p.blitMu.Lock()
		defer p.blitMu.Unlock()
	}
	dst := fb.surface
	if err := p.blitter.Fill(dst, p.background); err != nil {
		Logger().Warn("kmsdisplay: background fill failed", "fb", fb.id, "err", err)
	}
	if err := p.blitter.Blit(src, sr, dst, dr, rot); err != nil {
		Logger().Warn("kmsdisplay: blit failed", "fb", fb.id, "rotation", int(rot), "err", err)
		return err
	}
	return nil
}

// loop shows used buffers in order until the presenter is closed.
func (p *Presenter) loop() {
	defer close(p.done)
	for {
		if err := p.usedReady.Acquire(p.ctx, 1); err != nil {
			return
		}

		p.mu.Lock()
		fb, err := p.used.Pop()
		if err != nil {
			p.mu.Unlock()
			panic("kmsdisplay: used queue empty after wake")
		}
		p.pending = fb
		p.mu.Unlock()

		err = p.display.Present(fb)

		p.mu.Lock()
		p.pending = nil
		if err != nil {
			// The previous frame stays on screen.
			p.stats.PresentErrors++
			p.mustPush(p.free, fb)
			p.mu.Unlock()
			p.freeSlots.Release(1)
			continue
		}
		p.stats.Presented++
		prev := p.onScreen
		p.onScreen = fb
		if prev != nil {
			p.mustPush(p.free, prev)
		}
		p.mu.Unlock()

		if prev != nil {
			p.freeSlots.Release(1)
		}
		Logger().Debug("kmsdisplay: frame presented", "fb", fb.id)
	}
}

// mustPush enqueues fb. Overflow means the pool bookkeeping is corrupt.
// Must be called with p.mu held.
func (p *Presenter) mustPush(q *BoundedQueue[*FrameBuffer], fb *FrameBuffer) {
	if err := q.Push(fb); err != nil {
		panic(fmt.Sprintf("kmsdisplay: framebuffer %d: %v", fb.id, err))
	}
}

// Stats returns a consistent snapshot of the pool and counters.
func (p *Presenter) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.Free = p.free.Len()
	s.Used = p.used.Len()
	s.InFlight = p.posting
	if p.pending != nil {
		s.InFlight++
	}
	if p.onScreen != nil {
		s.OnScreen = 1
	}
	return s
}

// Close stops the presentation goroutine and releases every framebuffer. Posts
// waiting for a buffer fail with ErrClosed; posts already composing finish
// first. Close is idempotent and returns the same result every time.
func (p *Presenter) Close() error {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		p.closed = true
		p.mu.Unlock()

		p.cancel()
		p.posts.Wait()
		<-p.done

		p.closeErr = p.release()
		Logger().Info("kmsdisplay: presenter stopped")
	})
	return p.closeErr
}

// release destroys the pool, including the framebuffer on screen.
func (p *Presenter) release() error {
	var errs []error
	for _, fb := range p.pool {
		s := fb.surface
		if err := fb.Destroy(); err != nil {
			errs = append(errs, err)
		}
		if err := s.Unmap(); err != nil {
			errs = append(errs, err)
		}
		if err := s.Destroy(); err != nil {
			errs = append(errs, err)
		}
	}
	p.pool = nil
	return errors.Join(errs...)
}
