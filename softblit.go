package kmsdisplay

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"

	"github.com/flavioheleno/kmsdisplay/pixfmt"
)

// SoftBlitter implements Blitter on the CPU through the Surfaces' mappings.
// Surfaces it touches are left mapped. It is safe for concurrent use on
// distinct destinations.
type SoftBlitter struct {
	interp xdraw.Interpolator
}

// NewSoftBlitter returns a CPU blitter resampling with interp. A nil interp
// selects xdraw.CatmullRom, the closest match to the hardware bicubic filter.
func NewSoftBlitter(interp xdraw.Interpolator) *SoftBlitter {
	if interp == nil {
		interp = xdraw.CatmullRom
	}
	return &SoftBlitter{interp: interp}
}

// Reentrant reports true: SoftBlitter keeps no per-call state.
func (b *SoftBlitter) Reentrant() bool {
	return true
}

// Fill paints all of dst with c.
func (b *SoftBlitter) Fill(dst *Surface, c color.Color) error {
	img, err := dst.Image()
	if err != nil {
		return err
	}
	img.Fill(c)
	return nil
}

// Blit scales sr of src into dr of dst, rotated clockwise by rot.
func (b *SoftBlitter) Blit(src *Surface, sr image.Rectangle, dst *Surface, dr image.Rectangle, rot Rotation) error {
	if err := checkBlit(src.Bounds(), sr, dst.Bounds(), dr, rot); err != nil {
		return err
	}
	in, err := src.Image()
	if err != nil {
		return err
	}
	out, err := dst.Image()
	if err != nil {
		return err
	}
	target := out.SubImage(dr).(*pixfmt.Image)

	if rot == Rotate0 {
		b.interp.Scale(target, dr, in, sr, xdraw.Src, nil)
		return nil
	}
	b.interp.Transform(target, rotationMatrix(sr, dr, rot), in, sr, xdraw.Src, nil)
	return nil
}

// rotationMatrix maps sr onto dr turning clockwise by rot.
func rotationMatrix(sr, dr image.Rectangle, rot Rotation) f64.Aff3 {
	sw, sh := float64(sr.Dx()), float64(sr.Dy())
	dw, dh := float64(dr.Dx()), float64(dr.Dy())
	sx, sy := float64(sr.Min.X), float64(sr.Min.Y)
	dx, dy := float64(dr.Min.X), float64(dr.Min.Y)

	switch rot {
	case Rotate90:
		kx, ky := dw/sh, dh/sw
		return f64.Aff3{
			0, -kx, kx*(sh+sy) + dx,
			ky, 0, dy - ky*sx,
		}
	case Rotate180:
		kx, ky := dw/sw, dh/sh
		return f64.Aff3{
			-kx, 0, kx*(sw+sx) + dx,
			0, -ky, ky*(sh+sy) + dy,
		}
	case Rotate270:
		kx, ky := dw/sh, dh/sw
		return f64.Aff3{
			0, kx, dx - kx*sy,
			-ky, 0, ky*(sw+sx) + dy,
		}
	}
	kx, ky := dw/sw, dh/sh
	return f64.Aff3{
		kx, 0, dx - kx*sx,
		0, ky, dy - ky*sy,
	}
}
