package kmsdisplay

import (
	"fmt"
	"strconv"

	"github.com/flavioheleno/kmsdisplay/pixfmt"
)

// Format is a DRM fourcc pixel format code.
type Format uint32

// Packed RGB formats. Channel order is written most significant bit first.
const (
	XRGB4444 Format = 'X' | 'R'<<8 | '1'<<16 | '2'<<24
	XBGR4444 Format = 'X' | 'B'<<8 | '1'<<16 | '2'<<24
	RGBX4444 Format = 'R' | 'X'<<8 | '1'<<16 | '2'<<24
	BGRX4444 Format = 'B' | 'X'<<8 | '1'<<16 | '2'<<24
	ARGB4444 Format = 'A' | 'R'<<8 | '1'<<16 | '2'<<24
	ABGR4444 Format = 'A' | 'B'<<8 | '1'<<16 | '2'<<24
	RGBA4444 Format = 'R' | 'A'<<8 | '1'<<16 | '2'<<24
	BGRA4444 Format = 'B' | 'A'<<8 | '1'<<16 | '2'<<24

	XRGB1555 Format = 'X' | 'R'<<8 | '1'<<16 | '5'<<24
	XBGR1555 Format = 'X' | 'B'<<8 | '1'<<16 | '5'<<24
	RGBX5551 Format = 'R' | 'X'<<8 | '1'<<16 | '5'<<24
	BGRX5551 Format = 'B' | 'X'<<8 | '1'<<16 | '5'<<24
	ARGB1555 Format = 'A' | 'R'<<8 | '1'<<16 | '5'<<24
	ABGR1555 Format = 'A' | 'B'<<8 | '1'<<16 | '5'<<24
	RGBA5551 Format = 'R' | 'A'<<8 | '1'<<16 | '5'<<24
	BGRA5551 Format = 'B' | 'A'<<8 | '1'<<16 | '5'<<24

	RGB565 Format = 'R' | 'G'<<8 | '1'<<16 | '6'<<24
	BGR565 Format = 'B' | 'G'<<8 | '1'<<16 | '6'<<24

	RGB888 Format = 'R' | 'G'<<8 | '2'<<16 | '4'<<24
	BGR888 Format = 'B' | 'G'<<8 | '2'<<16 | '4'<<24

	XRGB8888 Format = 'X' | 'R'<<8 | '2'<<16 | '4'<<24
	XBGR8888 Format = 'X' | 'B'<<8 | '2'<<16 | '4'<<24
	RGBX8888 Format = 'R' | 'X'<<8 | '2'<<16 | '4'<<24
	BGRX8888 Format = 'B' | 'X'<<8 | '2'<<16 | '4'<<24
	ARGB8888 Format = 'A' | 'R'<<8 | '2'<<16 | '4'<<24
	ABGR8888 Format = 'A' | 'B'<<8 | '2'<<16 | '4'<<24
	RGBA8888 Format = 'R' | 'A'<<8 | '2'<<16 | '4'<<24
	BGRA8888 Format = 'B' | 'A'<<8 | '2'<<16 | '4'<<24

	XRGB2101010 Format = 'X' | 'R'<<8 | '3'<<16 | '0'<<24
	XBGR2101010 Format = 'X' | 'B'<<8 | '3'<<16 | '0'<<24
	RGBX1010102 Format = 'R' | 'X'<<8 | '3'<<16 | '0'<<24
	BGRX1010102 Format = 'B' | 'X'<<8 | '3'<<16 | '0'<<24
	ARGB2101010 Format = 'A' | 'R'<<8 | '3'<<16 | '0'<<24
	ABGR2101010 Format = 'A' | 'B'<<8 | '3'<<16 | '0'<<24
	RGBA1010102 Format = 'R' | 'A'<<8 | '3'<<16 | '0'<<24
	BGRA1010102 Format = 'B' | 'A'<<8 | '3'<<16 | '0'<<24
)

type formatInfo struct {
	name   string
	bpp    uint32
	layout pixfmt.Layout
}

// packed describes a format by its channel order and widths. The DRM name is
// the order followed by the widths.
func packed(order string, bits ...uint8) formatInfo {
	l := pixfmt.Packed(order, bits...)
	name := order
	for _, b := range bits {
		name += strconv.Itoa(int(b))
	}
	return formatInfo{name: name, bpp: uint32(l.BytesPerPixel * 8), layout: l}
}

var formats = map[Format]formatInfo{
	XRGB4444: packed("XRGB", 4, 4, 4, 4),
	XBGR4444: packed("XBGR", 4, 4, 4, 4),
	RGBX4444: packed("RGBX", 4, 4, 4, 4),
	BGRX4444: packed("BGRX", 4, 4, 4, 4),
	ARGB4444: packed("ARGB", 4, 4, 4, 4),
	ABGR4444: packed("ABGR", 4, 4, 4, 4),
	RGBA4444: packed("RGBA", 4, 4, 4, 4),
	BGRA4444: packed("BGRA", 4, 4, 4, 4),

	XRGB1555: packed("XRGB", 1, 5, 5, 5),
	XBGR1555: packed("XBGR", 1, 5, 5, 5),
	ARGB1555: packed("ARGB", 1, 5, 5, 5),
	ABGR1555: packed("ABGR", 1, 5, 5, 5),

	RGBX5551: packed("RGBX", 5, 5, 5, 1),
	BGRX5551: packed("BGRX", 5, 5, 5, 1),
	RGBA5551: packed("RGBA", 5, 5, 5, 1),
	BGRA5551: packed("BGRA", 5, 5, 5, 1),

	RGB565: packed("RGB", 5, 6, 5),
	BGR565: packed("BGR", 5, 6, 5),

	RGB888: packed("RGB", 8, 8, 8),
	BGR888: packed("BGR", 8, 8, 8),

	XRGB8888: packed("XRGB", 8, 8, 8, 8),
	XBGR8888: packed("XBGR", 8, 8, 8, 8),
	RGBX8888: packed("RGBX", 8, 8, 8, 8),
	BGRX8888: packed("BGRX", 8, 8, 8, 8),
	ARGB8888: packed("ARGB", 8, 8, 8, 8),
	ABGR8888: packed("ABGR", 8, 8, 8, 8),
	RGBA8888: packed("RGBA", 8, 8, 8, 8),
	BGRA8888: packed("BGRA", 8, 8, 8, 8),

	XRGB2101010: packed("XRGB", 2, 10, 10, 10),
	XBGR2101010: packed("XBGR", 2, 10, 10, 10),
	ARGB2101010: packed("ARGB", 2, 10, 10, 10),
	ABGR2101010: packed("ABGR", 2, 10, 10, 10),

	RGBX1010102: packed("RGBX", 10, 10, 10, 2),
	BGRX1010102: packed("BGRX", 10, 10, 10, 2),
	RGBA1010102: packed("RGBA", 10, 10, 10, 2),
	BGRA1010102: packed("BGRA", 10, 10, 10, 2),
}

// BitsPerPixel returns the storage size of one pixel, or 0 for formats
// outside the packed RGB family. A 0 result is logged and must not be used to
// allocate a buffer.
func (f Format) BitsPerPixel() uint32 {
	info, ok := formats[f]
	if !ok {
		Logger().Error("kmsdisplay: unsupported pixel format", "format", f.String())
		return 0
	}
	return info.bpp
}

// Layout returns the in-memory pixel layout of f.
func (f Format) Layout() (pixfmt.Layout, error) {
	info, ok := formats[f]
	if !ok {
		return pixfmt.Layout{}, fmt.Errorf("%w %s", ErrUnsupportedFormat, f)
	}
	return info.layout, nil
}

// String returns the DRM name of known formats and the fourcc otherwise.
func (f Format) String() string {
	if info, ok := formats[f]; ok {
		return info.name
	}
	b := [4]byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	for _, c := range b {
		if c < 0x20 || c > 0x7E {
			return fmt.Sprintf("Format(%#08x)", uint32(f))
		}
	}
	return fmt.Sprintf("Format(%q)", b[:])
}
