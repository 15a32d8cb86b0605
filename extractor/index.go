package extractor

import "github.com/wudi/charterkit/coords"

const (
	quadCapacity = 8
	quadMaxDepth = 10
)

// quadTree indexes mark rectangles by position so each glyph run only
// tests the marks near it.
type quadTree struct {
	bounds coords.Rect
	depth  int
	items  []quadItem
	nodes  []*quadTree
}

type quadItem struct {
	rect  coords.Rect
	index int
}

func newQuadTree(bounds coords.Rect) *quadTree {
	return &quadTree{bounds: bounds}
}

func (qt *quadTree) insert(rect coords.Rect, index int) {
	if qt.nodes != nil {
		for _, n := range qt.nodes {
			if contains(n.bounds, rect) {
				n.insert(rect, index)
				return
			}
		}
		qt.items = append(qt.items, quadItem{rect, index})
		return
	}
	qt.items = append(qt.items, quadItem{rect, index})
	if len(qt.items) > quadCapacity && qt.depth < quadMaxDepth {
		qt.subdivide()
	}
}

func (qt *quadTree) subdivide() {
	b := qt.bounds
	xMid, yMid := (b.LLX+b.URX)/2, (b.LLY+b.URY)/2
	d := qt.depth + 1
	qt.nodes = []*quadTree{
		{bounds: coords.Rect{LLX: b.LLX, LLY: yMid, URX: xMid, URY: b.URY}, depth: d},
		{bounds: coords.Rect{LLX: xMid, LLY: yMid, URX: b.URX, URY: b.URY}, depth: d},
		{bounds: coords.Rect{LLX: b.LLX, LLY: b.LLY, URX: xMid, URY: yMid}, depth: d},
		{bounds: coords.Rect{LLX: xMid, LLY: b.LLY, URX: b.URX, URY: yMid}, depth: d},
	}
	items := qt.items
	qt.items = nil
	for _, it := range items {
		qt.insert(it.rect, it.index)
	}
}

// query returns the indexes of items whose rectangles touch r.
func (qt *quadTree) query(r coords.Rect, out []int) []int {
	if !touches(qt.bounds, r) {
		return out
	}
	for _, it := range qt.items {
		if touches(it.rect, r) {
			out = append(out, it.index)
		}
	}
	for _, n := range qt.nodes {
		out = n.query(r, out)
	}
	return out
}

// touches is Intersects with closed edges, so zero-height rules match.
func touches(a, b coords.Rect) bool {
	return !(b.LLX > a.URX || b.URX < a.LLX || b.LLY > a.URY || b.URY < a.LLY)
}

func contains(outer, inner coords.Rect) bool {
	return inner.LLX >= outer.LLX && inner.URX <= outer.URX &&
		inner.LLY >= outer.LLY && inner.URY <= outer.URY
}
