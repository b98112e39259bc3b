package bandwidth

import "github.com/smazurov/decon/internal/geom"

// DepthAt returns how many rects cover pixel (x, y).
func DepthAt(rects []geom.Rect, x, y int) int {
	n := 0
	for _, r := range rects {
		if r.Contains(x, y) {
			n++
		}
	}
	return n
}

// overlap is a region covered by every rect up to and including last, taken
// with strictly increasing indices.
type overlap struct {
	rect geom.Rect
	last int
}

// MaxDepth returns the highest number of rects that overlap at any pixel,
// capped at limit, together with every region reaching that depth.
//
// Level k of the search holds the non-empty intersections of k rects. Level
// k+1 is built by intersecting each level k region with every rect of a
// higher index, so a combination is only ever visited once.
func MaxDepth(rects []geom.Rect, limit int) (int, []geom.Rect) {
	level := make([]overlap, 0, len(rects))
	for i, r := range rects {
		if !r.Empty() {
			level = append(level, overlap{rect: r, last: i})
		}
	}
	if len(level) == 0 {
		return 0, nil
	}

	depth := 1
	for depth < limit {
		var next []overlap
		for _, o := range level {
			for j := o.last + 1; j < len(rects); j++ {
				in := o.rect.Intersect(rects[j])
				if !in.Empty() {
					next = append(next, overlap{rect: in, last: j})
				}
			}
		}
		if len(next) == 0 {
			break
		}
		level = next
		depth++
	}

	regions := make([]geom.Rect, len(level))
	for i, o := range level {
		regions[i] = o.rect
	}
	return depth, regions
}
