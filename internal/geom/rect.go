package geom

import "fmt"

// Rect is an axis-aligned rectangle in panel pixels. X/Y is the top-left corner.
type Rect struct {
	X      int `json:"x" toml:"x" yaml:"x" doc:"Left edge in pixels"`
	Y      int `json:"y" toml:"y" yaml:"y" doc:"Top edge in pixels"`
	Width  int `json:"width" toml:"width" yaml:"width" doc:"Width in pixels"`
	Height int `json:"height" toml:"height" yaml:"height" doc:"Height in pixels"`
}

// R is shorthand for building a Rect.
func R(x, y, w, h int) Rect {
	return Rect{X: x, Y: y, Width: w, Height: h}
}

// Right returns the exclusive right edge.
func (r Rect) Right() int { return r.X + r.Width }

// Bottom returns the exclusive bottom edge.
func (r Rect) Bottom() int { return r.Y + r.Height }

// Empty reports whether the rectangle covers no pixels.
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Area returns the number of covered pixels.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return r.Width * r.Height
}

// SameSize reports whether both rectangles have equal dimensions.
func (r Rect) SameSize(o Rect) bool {
	return r.Width == o.Width && r.Height == o.Height
}

// Contains reports whether pixel (x, y) lies inside r.
func (r Rect) Contains(x, y int) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

// Inside reports whether r lies entirely within outer.
func (r Rect) Inside(outer Rect) bool {
	return r.X >= outer.X && r.Y >= outer.Y &&
		r.Right() <= outer.Right() && r.Bottom() <= outer.Bottom()
}

// Intersect returns the common area of r and o. The result is the zero Rect
// when they do not overlap.
func (r Rect) Intersect(o Rect) Rect {
	x0 := max(r.X, o.X)
	y0 := max(r.Y, o.Y)
	x1 := min(r.Right(), o.Right())
	y1 := min(r.Bottom(), o.Bottom())
	if x1 <= x0 || y1 <= y0 {
		return Rect{}
	}
	return Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// Overlaps reports whether r and o share at least one pixel.
func (r Rect) Overlaps(o Rect) bool {
	return !r.Intersect(o).Empty()
}

// Translate moves r by (dx, dy).
func (r Rect) Translate(dx, dy int) Rect {
	r.X += dx
	r.Y += dy
	return r
}

// AlignOut grows r so that X and Width are multiples of xa and Y and Height are
// multiples of ya, then clamps the result to bounds.
func (r Rect) AlignOut(xa, ya int, bounds Rect) Rect {
	if xa < 1 {
		xa = 1
	}
	if ya < 1 {
		ya = 1
	}
	x0 := floorTo(r.X, xa)
	y0 := floorTo(r.Y, ya)
	x1 := ceilTo(r.Right(), xa)
	y1 := ceilTo(r.Bottom(), ya)
	out := Rect{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
	return out.Intersect(bounds)
}

func (r Rect) String() string {
	return fmt.Sprintf("[%d,%d %dx%d]", r.X, r.Y, r.Width, r.Height)
}

func floorTo(v, a int) int {
	if v >= 0 {
		return v / a * a
	}
	return -ceilTo(-v, a)
}

func ceilTo(v, a int) int {
	if v <= 0 {
		return -floorTo(-v, a)
	}
	return (v + a - 1) / a * a
}
