package format

import (
	"fmt"
	"slices"

	"github.com/danielgtaylor/huma/v2"
)

// Pixel represents supported window pixel format names.
type Pixel string

// Single source of truth - all definitions here.
const (
	ARGB8888 Pixel = "argb8888"
	ABGR8888 Pixel = "abgr8888"
	RGBA8888 Pixel = "rgba8888"
	BGRA8888 Pixel = "bgra8888"
	XRGB8888 Pixel = "xrgb8888"
	XBGR8888 Pixel = "xbgr8888"
	RGBX8888 Pixel = "rgbx8888"
	BGRX8888 Pixel = "bgrx8888"
	RGB565   Pixel = "rgb565"
	NV12     Pixel = "nv12"
	NV21     Pixel = "nv21"
	NV12M    Pixel = "nv12m"
	NV21M    Pixel = "nv21m"
	YUV420M  Pixel = "yuv420m"
)

// Channel is the bit length and offset of one color component within a pixel.
type Channel struct {
	Length int `json:"length"`
	Offset int `json:"offset"`
}

// Info describes the memory layout of a pixel format.
type Info struct {
	Name Pixel `json:"name"`
	// Code is the value programmed into the window format register.
	Code uint32 `json:"code"`
	// Planes is the number of separately imported buffers.
	Planes int `json:"planes"`
	// BitsPerPixel is the effective storage cost across all planes.
	BitsPerPixel int `json:"bits_per_pixel"`
	// FetchBits is the per-pixel size of the first plane, used for fetch alignment.
	FetchBits int     `json:"fetch_bits"`
	Red       Channel `json:"red"`
	Green     Channel `json:"green"`
	Blue      Channel `json:"blue"`
	Alpha     Channel `json:"alpha"`
	YUV       bool    `json:"yuv"`
}

// HasAlpha reports whether the format carries a per-pixel alpha channel.
func (i Info) HasAlpha() bool {
	return i.Alpha.Length > 0
}

// MultiPlane reports whether the format needs more than one buffer.
func (i Info) MultiPlane() bool {
	return i.Planes > 1
}

// BytesPerPixel returns the fetch size of the first plane rounded up to bytes.
func (i Info) BytesPerPixel() int {
	return (i.FetchBits + 7) / 8
}

func rgb32(name Pixel, code uint32, r, g, b, a int, alpha bool) Info {
	info := Info{
		Name:         name,
		Code:         code,
		Planes:       1,
		BitsPerPixel: 32,
		FetchBits:    32,
		Red:          Channel{Length: 8, Offset: r},
		Green:        Channel{Length: 8, Offset: g},
		Blue:         Channel{Length: 8, Offset: b},
	}
	if alpha {
		info.Alpha = Channel{Length: 8, Offset: a}
	}
	return info
}

func yuv(name Pixel, code uint32, planes int) Info {
	return Info{
		Name:         name,
		Code:         code,
		Planes:       planes,
		BitsPerPixel: 12,
		FetchBits:    8,
		YUV:          true,
	}
}

var pixelTable = map[Pixel]Info{
	ARGB8888: rgb32(ARGB8888, 0x12, 16, 8, 0, 24, true),
	ABGR8888: rgb32(ABGR8888, 0x13, 0, 8, 16, 24, true),
	RGBA8888: rgb32(RGBA8888, 0x14, 24, 16, 8, 0, true),
	BGRA8888: rgb32(BGRA8888, 0x15, 8, 16, 24, 0, true),
	XRGB8888: rgb32(XRGB8888, 0x16, 16, 8, 0, 24, false),
	XBGR8888: rgb32(XBGR8888, 0x17, 0, 8, 16, 24, false),
	RGBX8888: rgb32(RGBX8888, 0x18, 24, 16, 8, 0, false),
	BGRX8888: rgb32(BGRX8888, 0x19, 8, 16, 24, 0, false),
	RGB565: {
		Name:         RGB565,
		Code:         0x05,
		Planes:       1,
		BitsPerPixel: 16,
		FetchBits:    16,
		Red:          Channel{Length: 5, Offset: 11},
		Green:        Channel{Length: 6, Offset: 5},
		Blue:         Channel{Length: 5, Offset: 0},
	},
	NV12:    yuv(NV12, 0x20, 1),
	NV21:    yuv(NV21, 0x21, 1),
	NV12M:   yuv(NV12M, 0x22, 2),
	NV21M:   yuv(NV21M, 0x23, 2),
	YUV420M: yuv(YUV420M, 0x24, 3),
}

// Schema implements huma.SchemaProvider for dynamic enum validation.
func (Pixel) Schema(_ huma.Registry) *huma.Schema {
	names := All()
	enumValues := make([]any, 0, len(names))
	for _, name := range names {
		enumValues = append(enumValues, string(name))
	}

	return &huma.Schema{
		Type:        huma.TypeString,
		Enum:        enumValues,
		Description: "Supported window pixel formats",
	}
}

// Lookup returns the layout of a pixel format.
func Lookup(p Pixel) (Info, error) {
	if info, ok := pixelTable[p]; ok {
		return info, nil
	}
	return Info{}, fmt.Errorf("unsupported pixel format: %q", p)
}

// IsValid reports whether p is a known pixel format.
func (p Pixel) IsValid() bool {
	_, ok := pixelTable[p]
	return ok
}

// All returns every supported format, sorted by name.
func All() []Pixel {
	out := make([]Pixel, 0, len(pixelTable))
	for p := range pixelTable {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}
