package display

import (
	"fmt"
	"slices"

	"github.com/smazurov/decon/internal/format"
	"github.com/smazurov/decon/internal/geom"
)

// MinRowBytes is the smallest line the window DMA can fetch in one burst.
const MinRowBytes = 128

// Validate checks a single window against the pipeline capabilities and
// returns its canonical form. It has no side effects.
func Validate(w WindowConfig, caps Capabilities) (WindowConfig, error) {
	if w.Index < 0 || w.Index >= caps.MaxWindows {
		return w, NewWindowError(ErrCodeInvalidGeometry, w.Index,
			fmt.Sprintf("index out of range 0..%d", caps.MaxWindows-1))
	}

	switch w.State {
	case "", StateDisabled:
		return Disabled(w.Index), nil
	case StateSolidColor, StateBuffer:
	default:
		return w, NewWindowError(ErrCodeInvalidGeometry, w.Index, fmt.Sprintf("unknown state %q", w.State))
	}

	if err := validateDestination(w, caps.Panel); err != nil {
		return w, err
	}

	if !w.Blend.IsValid() {
		return w, NewWindowError(ErrCodeUnsupportedFormat, w.Index, fmt.Sprintf("unknown blend mode %q", w.Blend))
	}
	w.Blend = w.Blend.Normalize()
	if w.Index == 0 && w.Blend != format.BlendNone {
		return w, NewWindowError(ErrCodeBlendingNotAllowed, w.Index, "background window cannot blend")
	}

	if w.PlaneAlpha < 0 || w.PlaneAlpha > 255 {
		return w, NewWindowError(ErrCodeInvalidGeometry, w.Index, "plane alpha outside 0..255")
	}

	if w.Protected && !caps.ProtectedContent {
		return w, NewWindowError(ErrCodeProtectedNotAllowed, w.Index, "pipeline has no protected path")
	}

	if w.State == StateSolidColor {
		w.Format = ""
		w.Planes = nil
		w.Unit = nil
		w.Src = geom.R(0, 0, w.Dst.Width, w.Dst.Height)
		return w, nil
	}

	return validateBuffer(w, caps)
}

func validateDestination(w WindowConfig, panel Panel) error {
	d := w.Dst
	if d.Width <= 0 || d.Height <= 0 {
		return NewWindowError(ErrCodeInvalidGeometry, w.Index, fmt.Sprintf("empty destination %v", d))
	}
	if d.X < 0 || d.Y < 0 {
		return NewWindowError(ErrCodeInvalidGeometry, w.Index, fmt.Sprintf("negative position %v", d))
	}
	if !d.Inside(panel.Bounds()) {
		return NewWindowError(ErrCodeInvalidGeometry, w.Index,
			fmt.Sprintf("destination %v outside panel %dx%d", d, panel.Width, panel.Height))
	}
	return nil
}

func validateBuffer(w WindowConfig, caps Capabilities) (WindowConfig, error) {
	info, err := format.Lookup(w.Format)
	if err != nil {
		return w, NewWindowError(ErrCodeUnsupportedFormat, w.Index, err.Error())
	}
	if len(caps.Formats) > 0 && !slices.Contains(caps.Formats, w.Format) {
		return w, NewWindowError(ErrCodeUnsupportedFormat, w.Index,
			fmt.Sprintf("format %s not supported by this pipeline", w.Format))
	}
	if len(w.Planes) != info.Planes {
		return w, NewWindowError(ErrCodeInvalidGeometry, w.Index,
			fmt.Sprintf("format %s needs %d planes, got %d", w.Format, info.Planes, len(w.Planes)))
	}

	if w.Src.Empty() {
		return w, NewWindowError(ErrCodeInvalidGeometry, w.Index, fmt.Sprintf("empty source %v", w.Src))
	}
	if w.Src.X < 0 || w.Src.Y < 0 {
		return w, NewWindowError(ErrCodeInvalidGeometry, w.Index, fmt.Sprintf("negative source origin %v", w.Src))
	}
	if w.Unit == nil && !w.Src.SameSize(w.Dst) {
		return w, NewWindowError(ErrCodeInvalidGeometry, w.Index, "scaling requires a compositing unit")
	}
	if w.Unit != nil && !slices.Contains(caps.Units, *w.Unit) {
		return w, NewWindowError(ErrCodeInvalidGeometry, w.Index, fmt.Sprintf("unknown compositing unit %d", *w.Unit))
	}

	// The window DMA fetches whole 32-bit words, so both horizontal edges of the
	// destination must land on a word boundary.
	bits := info.FetchBits
	if (w.Dst.X*bits)%32 != 0 || (w.Dst.Right()*bits)%32 != 0 {
		return w, NewWindowError(ErrCodeAlignment, w.Index,
			fmt.Sprintf("x=%d and x+width=%d must be multiples of %d pixels", w.Dst.X, w.Dst.Right(), alignPixels(bits)))
	}

	if rowBytes := w.Dst.Width * bits / 8; rowBytes < MinRowBytes {
		return w, NewWindowError(ErrCodeRowTooNarrow, w.Index,
			fmt.Sprintf("row of %d bytes is below the %d byte fetch burst", rowBytes, MinRowBytes))
	}

	return w, nil
}

func alignPixels(bits int) int {
	if bits >= 32 {
		return 1
	}
	return 32 / bits
}

// ValidateRequest validates every window of a request. It returns the full
// window table indexed by window number, with unlisted windows disabled, and
// the partial update region if the request carried one.
func ValidateRequest(req Request, caps Capabilities) ([]WindowConfig, *geom.Rect, error) {
	windows := make([]WindowConfig, caps.MaxWindows)
	for i := range windows {
		windows[i] = Disabled(i)
	}
	seen := make([]bool, caps.MaxWindows)

	var region *geom.Rect
	for _, w := range req.Windows {
		if w.State == StatePartialUpdateRegion {
			if region != nil {
				return nil, nil, NewError(ErrCodeInvalidGeometry, "more than one partial update region", nil)
			}
			r := w.Dst
			if r.Empty() || r.X < 0 || r.Y < 0 || !r.Inside(caps.Panel.Bounds()) {
				return nil, nil, NewError(ErrCodeInvalidGeometry, fmt.Sprintf("update region %v outside panel", r), nil)
			}
			region = &r
			continue
		}

		canon, err := Validate(w, caps)
		if err != nil {
			return nil, nil, err
		}
		if seen[canon.Index] {
			return nil, nil, NewWindowError(ErrCodeInvalidGeometry, canon.Index, "window listed twice")
		}
		seen[canon.Index] = true
		windows[canon.Index] = canon
	}

	if err := checkUnitsUnique(windows); err != nil {
		return nil, nil, err
	}

	return windows, region, nil
}

func checkUnitsUnique(windows []WindowConfig) error {
	owner := make(map[int]int)
	for _, w := range windows {
		if !w.Active() || w.Unit == nil {
			continue
		}
		id := int(*w.Unit)
		if prev, ok := owner[id]; ok {
			return NewWindowError(ErrCodeInvalidGeometry, w.Index,
				fmt.Sprintf("compositing unit %d already assigned to window %d", id, prev))
		}
		owner[id] = w.Index
	}
	return nil
}
