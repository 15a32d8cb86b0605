// Package coords holds the affine geometry shared by the content stream
// interpreter, the extractor and the writer. Matrices use the PDF
// [a b c d e f] row-vector convention.
package coords

import (
	"errors"
	"math"
)

type Matrix [6]float64

func Identity() Matrix { return Matrix{1, 0, 0, 1, 0, 0} }

// Multiply returns m x o, i.e. m applied first, then o.
func (m Matrix) Multiply(o Matrix) Matrix {
	return Matrix{
		m[0]*o[0] + m[1]*o[2],
		m[0]*o[1] + m[1]*o[3],
		m[2]*o[0] + m[3]*o[2],
		m[2]*o[1] + m[3]*o[3],
		m[4]*o[0] + m[5]*o[2] + o[4],
		m[4]*o[1] + m[5]*o[3] + o[5],
	}
}

type Point struct{ X, Y float64 }

func (m Matrix) Transform(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y + m[4], Y: m[1]*p.X + m[3]*p.Y + m[5]}
}

// TransformVector applies the linear part only.
func (m Matrix) TransformVector(p Point) Point {
	return Point{X: m[0]*p.X + m[2]*p.Y, Y: m[1]*p.X + m[3]*p.Y}
}

func (m Matrix) Inverse() (Matrix, error) {
	det := m[0]*m[3] - m[1]*m[2]
	if math.Abs(det) < 1e-10 {
		return Matrix{}, errors.New("matrix singular")
	}
	return Matrix{
		m[3] / det, -m[1] / det, -m[2] / det, m[0] / det,
		(m[2]*m[5] - m[3]*m[4]) / det, (m[1]*m[4] - m[0]*m[5]) / det,
	}, nil
}

// ScaleY is the vertical scale factor of m, used to turn a font size into
// device space.
func (m Matrix) ScaleY() float64 { return math.Hypot(m[2], m[3]) }

// ScaleX is the horizontal scale factor of m.
func (m Matrix) ScaleX() float64 { return math.Hypot(m[0], m[1]) }

func Translate(tx, ty float64) Matrix { return Matrix{1, 0, 0, 1, tx, ty} }
func Scale(sx, sy float64) Matrix     { return Matrix{sx, 0, 0, sy, 0, 0} }
func Rotate(angle float64) Matrix {
	c, s := math.Cos(angle), math.Sin(angle)
	return Matrix{c, s, -s, c, 0, 0}
}

// Rect is an axis-aligned box with LLX <= URX and LLY <= URY once normalized.
type Rect struct {
	LLX, LLY, URX, URY float64
}

// RectFromPoints returns the bounding box of pts.
func RectFromPoints(pts ...Point) Rect {
	if len(pts) == 0 {
		return Rect{}
	}
	r := Rect{LLX: pts[0].X, LLY: pts[0].Y, URX: pts[0].X, URY: pts[0].Y}
	for _, p := range pts[1:] {
		r.LLX = math.Min(r.LLX, p.X)
		r.LLY = math.Min(r.LLY, p.Y)
		r.URX = math.Max(r.URX, p.X)
		r.URY = math.Max(r.URY, p.Y)
	}
	return r
}

func (r Rect) Normalize() Rect {
	return RectFromPoints(Point{r.LLX, r.LLY}, Point{r.URX, r.URY})
}

func (r Rect) Width() float64  { return r.URX - r.LLX }
func (r Rect) Height() float64 { return r.URY - r.LLY }
func (r Rect) Empty() bool     { return r.Width() <= 0 || r.Height() <= 0 }

// Union grows r to cover o. An empty r takes o.
func (r Rect) Union(o Rect) Rect {
	if r == (Rect{}) {
		return o
	}
	return Rect{
		LLX: math.Min(r.LLX, o.LLX), LLY: math.Min(r.LLY, o.LLY),
		URX: math.Max(r.URX, o.URX), URY: math.Max(r.URY, o.URY),
	}
}

// OverlapX is the length of the horizontal overlap between r and o.
func (r Rect) OverlapX(o Rect) float64 {
	return math.Max(0, math.Min(r.URX, o.URX)-math.Max(r.LLX, o.LLX))
}

// Intersects reports whether r and o share any area.
func (r Rect) Intersects(o Rect) bool {
	return r.LLX < o.URX && o.LLX < r.URX && r.LLY < o.URY && o.LLY < r.URY
}

// Transform maps all four corners through m and returns their bounding box.
func (r Rect) Transform(m Matrix) Rect {
	return RectFromPoints(
		m.Transform(Point{r.LLX, r.LLY}),
		m.Transform(Point{r.URX, r.LLY}),
		m.Transform(Point{r.LLX, r.URY}),
		m.Transform(Point{r.URX, r.URY}),
	)
}
