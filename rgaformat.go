package kmsdisplay

import (
	"fmt"
	"image"
	"image/color"
)

// Rockchip RGA native pixel formats.
const (
	rkFormatRGBA8888 = 0x0
	rkFormatRGBX8888 = 0x1
	rkFormatRGB888   = 0x2
	rkFormatBGRA8888 = 0x3
	rkFormatRGB565   = 0x4
	rkFormatRGBA5551 = 0x5
	rkFormatRGBA4444 = 0x6
	rkFormatBGR888   = 0x7
)

// Transform constants, shared with the Android HAL.
const (
	transformRot90  = 0x04
	transformRot180 = 0x03
	transformRot270 = 0x07
)

// Bicubic filter used for scaled blits (0 catrom, 1 mitchell, 2 hermite,
// 3 b-spline).
const scaleModeHermite = 2

// The 32 bpp scanout formats are moved byte for byte, so XRGB8888 and
// ARGB8888 share the engine's RGBA8888 mode.
var rgaFormats = map[Format]int{
	XRGB8888: rkFormatRGBA8888,
	ARGB8888: rkFormatRGBA8888,
	RGBA8888: rkFormatRGBA8888,
	RGBX8888: rkFormatRGBX8888,
	RGB888:   rkFormatRGB888,
	BGRA8888: rkFormatBGRA8888,
	RGB565:   rkFormatRGB565,
	RGBA5551: rkFormatRGBA5551,
	RGBA4444: rkFormatRGBA4444,
	BGR888:   rkFormatBGR888,
}

// engineFormat maps f to the RGA format enum.
func engineFormat(f Format) (int, error) {
	rk, ok := rgaFormats[f]
	if !ok {
		return 0, fmt.Errorf("%w %s for blit engine", ErrUnsupportedFormat, f)
	}
	return rk, nil
}

// engineRect is the region description the RGA expects. Strides are in
// pixels, not bytes.
type engineRect struct {
	X, Y, Width, Height int
	WStride, HStride    int
	Format              int
}

func engineRectFor(s *Surface, r image.Rectangle) (engineRect, error) {
	rk, err := engineFormat(s.format)
	if err != nil {
		return engineRect{}, err
	}
	return engineRect{
		X:       r.Min.X,
		Y:       r.Min.Y,
		Width:   r.Dx(),
		Height:  r.Dy(),
		WStride: s.stride / int(s.format.BitsPerPixel()/8),
		HStride: s.height,
		Format:  rk,
	}, nil
}

// engineColor packs c as 0xAARRGGBB for color fills.
func engineColor(c color.Color) uint32 {
	n := color.NRGBAModel.Convert(c).(color.NRGBA)
	return uint32(n.A)<<24 | uint32(n.R)<<16 | uint32(n.G)<<8 | uint32(n.B)
}
