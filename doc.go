// Package kmsdisplay drives a panel through the Linux DRM/KMS mode-setting API.
//
// It finds the first connected connector, takes its preferred mode and shows
// frames by pointing the CRTC at a framebuffer. Frames are composed by a 2D
// Blitter, either the portable SoftBlitter or the Rockchip RGA engine, into a
// pool of three buffers owned by a Presenter.
//
// # Objects
//
// A Display is the open card plus the connector, encoder, CRTC and mode it
// selected. A Surface is a dumb buffer allocated on that card; it can be
// mapped into memory and exported as a PRIME file descriptor for DMA engines.
// A FrameBuffer registers a Surface as scanout memory:
//
//	d, err := kmsdisplay.OpenCard(0)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer d.Close()
//
//	s, _ := kmsdisplay.NewSurface(d, d.Width(), d.Height(), kmsdisplay.XRGB8888)
//	img, _ := s.Image()
//	img.Fill(color.White)
//
//	fb, _ := kmsdisplay.NewFrameBuffer(s)
//	d.Present(fb)
//
// Objects must be released in reverse order: FrameBuffer, then Surface
// (Unmap, Destroy), then Display. A Display with live surfaces or framebuffers
// refuses to close.
//
// # Presenter
//
// The Presenter keeps BufferCount framebuffers cycling between a free queue,
// a used queue and the screen. Post blocks until a buffer is free, composes
// the source region into it and queues it; a goroutine presents queued
// buffers in order. The buffer on screen is only handed back once the next
// one has been shown, so a frame is never composed into memory being scanned
// out:
//
//	p, err := kmsdisplay.NewPresenter(d, &kmsdisplay.PresenterOpts{
//		Background: color.Black,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer p.Close()
//
//	for frame := range frames {
//		if err := p.Post(ctx, frame, frame.Bounds(), d.Bounds(), kmsdisplay.Rotate90); err != nil {
//			break
//		}
//	}
//
// Post honours ctx while waiting for a buffer. Close wakes blocked posts,
// which then return ErrClosed, stops the presentation goroutine and frees
// every buffer.
//
// # Rotation and Scaling
//
// Blits take a source and a destination rectangle plus a clockwise Rotation
// of 0, 90, 180 or 270 degrees. The source is scaled to fill the destination
// after rotation.
//
// # Screen
//
// Screen adapts a Presenter to periph's display.Drawer, so the standard
// image/draw ecosystem can target the panel:
//
//	scr, _ := kmsdisplay.NewScreen(p, &kmsdisplay.ScreenOpts{Rotation: kmsdisplay.Rotate270})
//	scr.Draw(scr.Bounds(), img, image.Point{})
//
// # RGA
//
// Building with the rga tag on linux with cgo enables NewRGA, which links
// against librga and blits through PRIME handles without touching the CPU.
//
// # Logging
//
// The package is silent by default. SetLogger installs an slog.Logger that
// receives mode selection, allocation and presentation failures.
//
// # Testing
//
// The kms/memkms package emulates a card in memory. Open accepts it in
// place of a real device and it records every object and mode-set for
// inspection.
package kmsdisplay
