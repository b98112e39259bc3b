package format

import (
	"fmt"

	"github.com/danielgtaylor/huma/v2"
)

// Blend is the compositing mode a window requests against the layers below it.
type Blend string

// Blend modes.
const (
	BlendNone          Blend = "none"
	BlendPremultiplied Blend = "premultiplied"
	BlendCoverage      Blend = "coverage"
)

// Schema implements huma.SchemaProvider.
func (Blend) Schema(_ huma.Registry) *huma.Schema {
	return &huma.Schema{
		Type:        huma.TypeString,
		Enum:        []any{string(BlendNone), string(BlendPremultiplied), string(BlendCoverage)},
		Description: "Window blend mode",
	}
}

// IsValid reports whether b is a known blend mode. The empty string means none.
func (b Blend) IsValid() bool {
	switch b {
	case "", BlendNone, BlendPremultiplied, BlendCoverage:
		return true
	}
	return false
}

// Normalize maps the empty blend to BlendNone.
func (b Blend) Normalize() Blend {
	if b == "" {
		return BlendNone
	}
	return b
}

// Factor is one side of the hardware blend equation.
type Factor uint8

// Blend factors understood by the window blender.
const (
	FactorZero Factor = iota
	FactorOne
	FactorSrcAlpha
	FactorOneMinusSrcAlpha
	FactorPlaneAlpha
	FactorOneMinusPlaneAlpha
	FactorSrcAlphaTimesPlaneAlpha
	FactorOneMinusSrcAlphaTimesPlaneAlpha
)

var factorNames = [...]string{
	"zero", "one", "src_alpha", "one_minus_src_alpha",
	"plane_alpha", "one_minus_plane_alpha",
	"src_alpha_x_plane_alpha", "one_minus_src_alpha_x_plane_alpha",
}

func (f Factor) String() string {
	if int(f) < len(factorNames) {
		return factorNames[f]
	}
	return fmt.Sprintf("factor(%d)", uint8(f))
}

// Coefficients is the source/destination factor pair programmed for a window.
type Coefficients struct {
	Src Factor `json:"src"`
	Dst Factor `json:"dst"`
}

// Resolved is the fully derived format and blend state of one window.
type Resolved struct {
	Info         Info         `json:"info"`
	Blend        Blend        `json:"blend"`
	PlaneAlpha   uint8        `json:"plane_alpha"`
	Coefficients Coefficients `json:"coefficients"`
}

// Resolve derives channel layout and blend coefficients for a window.
//
// When the plane alpha is strictly between 0 and 255 and the format has no
// per-pixel alpha, premultiplied blending is programmed as coverage blending.
// The blender has nothing to premultiply against in that case.
func Resolve(p Pixel, blend Blend, planeAlpha uint8) (Resolved, error) {
	info, err := Lookup(p)
	if err != nil {
		return Resolved{}, err
	}
	if !blend.IsValid() {
		return Resolved{}, fmt.Errorf("unsupported blend mode: %q", blend)
	}
	blend = blend.Normalize()

	if blend == BlendPremultiplied && planeAlpha > 0 && planeAlpha < 255 && !info.HasAlpha() {
		blend = BlendCoverage
	}

	return Resolved{
		Info:         info,
		Blend:        blend,
		PlaneAlpha:   planeAlpha,
		Coefficients: coefficients(blend, info.HasAlpha(), planeAlpha),
	}, nil
}

// SolidCoefficients returns the factors for a solid color window, which has
// no pixel alpha of its own.
func SolidCoefficients(blend Blend, planeAlpha uint8) Coefficients {
	return coefficients(blend.Normalize(), false, planeAlpha)
}

func coefficients(blend Blend, hasAlpha bool, planeAlpha uint8) Coefficients {
	opaque := planeAlpha == 255

	switch blend {
	case BlendPremultiplied:
		if !hasAlpha {
			return Coefficients{Src: FactorOne, Dst: FactorOneMinusPlaneAlpha}
		}
		if opaque {
			return Coefficients{Src: FactorOne, Dst: FactorOneMinusSrcAlpha}
		}
		return Coefficients{Src: FactorPlaneAlpha, Dst: FactorOneMinusSrcAlphaTimesPlaneAlpha}
	case BlendCoverage:
		if !hasAlpha {
			return Coefficients{Src: FactorPlaneAlpha, Dst: FactorOneMinusPlaneAlpha}
		}
		if opaque {
			return Coefficients{Src: FactorSrcAlpha, Dst: FactorOneMinusSrcAlpha}
		}
		return Coefficients{Src: FactorSrcAlphaTimesPlaneAlpha, Dst: FactorOneMinusSrcAlphaTimesPlaneAlpha}
	default:
		if opaque {
			return Coefficients{Src: FactorOne, Dst: FactorZero}
		}
		return Coefficients{Src: FactorPlaneAlpha, Dst: FactorOneMinusPlaneAlpha}
	}
}
