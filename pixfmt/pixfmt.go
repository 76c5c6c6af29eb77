// Package pixfmt provides image.Image implementations over packed RGB pixel
// memory as laid out by display scanout buffers.
//
// A pixel is a little-endian word of 2, 3 or 4 bytes. Layout records where
// each color channel lives inside that word, so a single Image type covers the
// whole 16/24/32-bit RGB family (RGB565, XRGB1555, RGB888, XRGB8888,
// ARGB2101010 and friends) and can be drawn with image/draw or
// golang.org/x/image/draw directly on a mapped buffer.
package pixfmt

import (
	"fmt"
	"image"
	"image/color"
)

// Channel is a bit field inside a packed pixel word. A zero Bits means the
// channel is absent.
type Channel struct {
	Shift uint8
	Bits  uint8
}

// pack scales a 16-bit channel value down to c.Bits.
func (c Channel) pack(v uint32) uint32 {
	if c.Bits == 0 {
		return 0
	}
	return (v >> (16 - c.Bits)) << c.Shift
}

// unpack expands the channel to 16 bits, replicating bits so that the
// maximum value maps to 0xFFFF.
func (c Channel) unpack(w uint32) uint32 {
	if c.Bits == 0 {
		return 0
	}
	full := uint32(1)<<c.Bits - 1
	v := (w >> c.Shift) & full
	return (v*0xFFFF + full/2) / full
}

// Layout describes a packed pixel word.
type Layout struct {
	BytesPerPixel int
	R, G, B, A    Channel
}

// Packed builds a Layout from a channel order written most significant
// first, as in DRM format names, and the matching bit widths. X marks padding.
//
//	Packed("XRGB", 8, 8, 8, 8) // R at bit 16, G at bit 8, B at bit 0
//	Packed("RGB", 5, 6, 5)
//
// It panics if the order and widths disagree or do not fill 16, 24 or 32 bits.
func Packed(order string, bits ...uint8) Layout {
	if len(order) != len(bits) {
		panic(fmt.Sprintf("pixfmt: %q needs %d widths, got %d", order, len(order), len(bits)))
	}
	total := 0
	for _, b := range bits {
		total += int(b)
	}
	if total != 16 && total != 24 && total != 32 {
		panic(fmt.Sprintf("pixfmt: %q adds up to %d bits", order, total))
	}
	l := Layout{BytesPerPixel: total / 8}
	shift := total
	for i := 0; i < len(order); i++ {
		shift -= int(bits[i])
		ch := Channel{Shift: uint8(shift), Bits: bits[i]}
		switch order[i] {
		case 'R':
			l.R = ch
		case 'G':
			l.G = ch
		case 'B':
			l.B = ch
		case 'A':
			l.A = ch
		case 'X':
		default:
			panic(fmt.Sprintf("pixfmt: unknown channel %q in %q", order[i], order))
		}
	}
	return l
}

// Common layouts.
var (
	RGB565   = Packed("RGB", 5, 6, 5)
	RGB888   = Packed("RGB", 8, 8, 8)
	XRGB8888 = Packed("XRGB", 8, 8, 8, 8)
	ARGB8888 = Packed("ARGB", 8, 8, 8, 8)
)

// HasAlpha reports whether the layout stores an alpha channel.
func (l Layout) HasAlpha() bool {
	return l.A.Bits != 0
}

// Pack encodes c as a pixel word.
func (l Layout) Pack(c color.Color) uint32 {
	r, g, b, a := c.RGBA()
	return l.R.pack(r) | l.G.pack(g) | l.B.pack(b) | l.A.pack(a)
}

// Unpack decodes a pixel word. Layouts without alpha are opaque.
func (l Layout) Unpack(w uint32) color.RGBA64 {
	c := color.RGBA64{
		R: uint16(l.R.unpack(w)),
		G: uint16(l.G.unpack(w)),
		B: uint16(l.B.unpack(w)),
		A: 0xFFFF,
	}
	if l.HasAlpha() {
		c.A = uint16(l.A.unpack(w))
		// Quantization can push a premultiplied channel above alpha.
		c.R, c.G, c.B = min(c.R, c.A), min(c.G, c.A), min(c.B, c.A)
	}
	return c
}

// Model returns a color model that quantizes to the layout's precision.
func (l Layout) Model() color.Model {
	return color.ModelFunc(func(c color.Color) color.Color {
		return l.Unpack(l.Pack(c))
	})
}

// Image is a packed RGB image.
type Image struct {
	Pix    []byte          // Pixel words, little-endian
	Stride int             // Bytes per row
	Rect   image.Rectangle // Image bounds
	Layout Layout
}

// New allocates an Image with tightly packed rows.
func New(r image.Rectangle, l Layout) *Image {
	w, h := r.Dx(), r.Dy()
	if w <= 0 || h <= 0 {
		return &Image{Rect: r, Layout: l}
	}
	stride := w * l.BytesPerPixel
	return &Image{Pix: make([]byte, stride*h), Stride: stride, Rect: r, Layout: l}
}

// Wrap returns an Image over existing memory, typically a mapped buffer whose
// rows are padded to stride bytes. It panics if pix is too small.
func Wrap(pix []byte, stride int, r image.Rectangle, l Layout) *Image {
	if r.Dx() > 0 && r.Dy() > 0 {
		need := (r.Dy()-1)*stride + r.Dx()*l.BytesPerPixel
		if stride < r.Dx()*l.BytesPerPixel || len(pix) < need {
			panic(fmt.Sprintf("pixfmt: %d bytes with stride %d cannot hold %v", len(pix), stride, r))
		}
	}
	return &Image{Pix: pix, Stride: stride, Rect: r, Layout: l}
}

// ColorModel returns the Layout model.
func (p *Image) ColorModel() color.Model {
	return p.Layout.Model()
}

// Bounds returns the image rectangle.
func (p *Image) Bounds() image.Rectangle {
	return p.Rect
}

// At returns the color at (x, y), or transparent outside the bounds.
func (p *Image) At(x, y int) color.Color {
	return p.RGBA64At(x, y)
}

// RGBA64At implements image.RGBA64Image.
func (p *Image) RGBA64At(x, y int) color.RGBA64 {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return color.RGBA64{}
	}
	return p.Layout.Unpack(p.word(p.PixOffset(x, y)))
}

// Set stores c at (x, y) when it lies inside the image.
func (p *Image) Set(x, y int, c color.Color) {
	if !(image.Point{X: x, Y: y}.In(p.Rect)) {
		return
	}
	p.setWord(p.PixOffset(x, y), p.Layout.Pack(c))
}

// SetRGBA64 implements draw.RGBA64Image.
func (p *Image) SetRGBA64(x, y int, c color.RGBA64) {
	p.Set(x, y, c)
}

// Fill sets every pixel to c.
func (p *Image) Fill(c color.Color) {
	w := p.Layout.Pack(c)
	for y := p.Rect.Min.Y; y < p.Rect.Max.Y; y++ {
		i := p.PixOffset(p.Rect.Min.X, y)
		for x := p.Rect.Min.X; x < p.Rect.Max.X; x++ {
			p.setWord(i, w)
			i += p.Layout.BytesPerPixel
		}
	}
}

// SubImage returns the part of p visible through r, sharing pixel memory.
func (p *Image) SubImage(r image.Rectangle) image.Image {
	r = r.Intersect(p.Rect)
	if r.Empty() {
		return &Image{Layout: p.Layout}
	}
	i := p.PixOffset(r.Min.X, r.Min.Y)
	return &Image{Pix: p.Pix[i:], Stride: p.Stride, Rect: r, Layout: p.Layout}
}

// PixOffset returns the index of the first byte of the pixel at (x, y).
func (p *Image) PixOffset(x, y int) int {
	return (y-p.Rect.Min.Y)*p.Stride + (x-p.Rect.Min.X)*p.Layout.BytesPerPixel
}

func (p *Image) word(i int) uint32 {
	var w uint32
	for b := 0; b < p.Layout.BytesPerPixel; b++ {
		w |= uint32(p.Pix[i+b]) << (8 * b)
	}
	return w
}

func (p *Image) setWord(i int, w uint32) {
	for b := 0; b < p.Layout.BytesPerPixel; b++ {
		p.Pix[i+b] = byte(w >> (8 * b))
	}
}
