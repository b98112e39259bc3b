package display

import "github.com/smazurov/decon/internal/format"

// Resolve fills in the channel layout and blend coefficients of every active
// window in place.
func Resolve(windows []WindowConfig) error {
	for i := range windows {
		w := &windows[i]
		switch w.State {
		case StateSolidColor:
			alpha := uint8(w.PlaneAlpha)
			w.Resolved = format.Resolved{
				Blend:        w.Blend,
				PlaneAlpha:   alpha,
				Coefficients: format.SolidCoefficients(w.Blend, alpha),
			}
		case StateBuffer:
			r, err := format.Resolve(w.Format, w.Blend, uint8(w.PlaneAlpha))
			if err != nil {
				return NewWindowError(ErrCodeUnsupportedFormat, w.Index, err.Error())
			}
			w.Resolved = r
		}
	}
	return nil
}
