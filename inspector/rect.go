package inspector

import (
	"fmt"
	"math"
	"strings"
)

// rect is an axis-aligned box in the timeline's (worker lane, elapsed
// time) coordinate space.
type rect struct {
	x0, y0, x1, y1 float64
}

func unionTwo(a, b rect) rect {
	return rect{
		x0: math.Min(a.x0, b.x0),
		y0: math.Min(a.y0, b.y0),
		x1: math.Max(a.x1, b.x1),
		y1: math.Max(a.y1, b.y1),
	}
}

func unionAll(rects []rect) rect {
	acc := rect{x0: math.Inf(1), y0: math.Inf(1), x1: math.Inf(-1), y1: math.Inf(-1)}
	for _, r := range rects {
		acc = unionTwo(acc, r)
	}
	return acc
}

// toRatio maps r into [0,1]x[0,1] relative to bounds, the coordinate space
// the SVG's normalized viewBox expects.
func (r rect) toRatio(bounds rect) rect {
	return rect{
		x0: (r.x0 - bounds.x0) / (bounds.x1 - bounds.x0),
		y0: (r.y0 - bounds.y0) / (bounds.y1 - bounds.y0),
		x1: (r.x1 - bounds.x0) / (bounds.x1 - bounds.x0),
		y1: (r.y1 - bounds.y0) / (bounds.y1 - bounds.y0),
	}
}

func (r rect) toSVGRect(title string, hue float64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<rect x='%g' y='%g' width='%g' height='%g' style='fill: hsl(%g, 50%%, 50%%)'>", r.x0, r.y0, r.x1-r.x0, r.y1-r.y0, hue)
	fmt.Fprintf(&b, "<title>%s</title>", title)
	b.WriteString("</rect>")
	return b.String()
}
