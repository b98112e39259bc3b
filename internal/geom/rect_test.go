package geom

import "testing"

func TestIntersect(t *testing.T) {
	tests := []struct {
		name string
		a, b Rect
		want Rect
	}{
		{"partial overlap", R(0, 0, 100, 100), R(50, 50, 100, 100), R(50, 50, 50, 50)},
		{"contained", R(0, 0, 100, 100), R(10, 10, 5, 5), R(10, 10, 5, 5)},
		{"touching edges", R(0, 0, 10, 10), R(10, 0, 10, 10), Rect{}},
		{"disjoint", R(0, 0, 10, 10), R(50, 50, 10, 10), Rect{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Intersect(tt.b); got != tt.want {
				t.Errorf("Intersect() = %v, want %v", got, tt.want)
			}
			if got := tt.b.Intersect(tt.a); got != tt.want {
				t.Errorf("Intersect() not symmetric: %v, want %v", got, tt.want)
			}
		})
	}
}

func TestContainsAndInside(t *testing.T) {
	r := R(10, 10, 20, 20)
	if !r.Contains(10, 10) || !r.Contains(29, 29) {
		t.Error("expected corners to be contained")
	}
	if r.Contains(30, 30) {
		t.Error("right/bottom edges are exclusive")
	}
	if !R(12, 12, 5, 5).Inside(r) {
		t.Error("expected inner rect inside")
	}
	if R(25, 25, 10, 10).Inside(r) {
		t.Error("expected overflowing rect not inside")
	}
}

func TestAlignOut(t *testing.T) {
	bounds := R(0, 0, 1080, 1920)
	tests := []struct {
		name   string
		in     Rect
		xa, ya int
		want   Rect
	}{
		{"already aligned", R(0, 0, 64, 32), 32, 16, R(0, 0, 64, 32)},
		{"grow both edges", R(10, 10, 50, 50), 32, 16, R(0, 0, 64, 64)},
		{"clamped to bounds", R(1070, 1900, 10, 20), 32, 16, R(1056, 1888, 24, 32)},
		{"zero alignment treated as one", R(3, 3, 3, 3), 0, 0, R(3, 3, 3, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.AlignOut(tt.xa, tt.ya, bounds); got != tt.want {
				t.Errorf("AlignOut() = %v, want %v", got, tt.want)
			}
		})
	}
}
