package geometry

import (
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/spatial/r2"
)

// ArrowheadAngle is the angle between the shaft and each side of the head.
const ArrowheadAngle = math.Pi / 6

// ArrowStyle controls the size of a drawn arrow.
type ArrowStyle struct {
	HeadSize    float64
	StrokeWidth float64
}

// DefaultArrowStyle returns the style used when none is configured.
func DefaultArrowStyle() ArrowStyle {
	return ArrowStyle{HeadSize: 10, StrokeWidth: 2}
}

// Arrow is a resolved arrow: the shaft from Start to End plus the two
// outer points of the head, both of which connect to End.
type Arrow struct {
	Start       Point
	End         Point
	HeadLeft    Point
	HeadRight   Point
	StrokeWidth float64
}

// ArrowPath computes the shaft and head of an arrow from start to end.
// A zero-length shaft has no direction, so its head collapses onto End.
func ArrowPath(start, end Point, style ArrowStyle) Arrow {
	if start == end {
		return Arrow{Start: start, End: end, HeadLeft: end, HeadRight: end, StrokeWidth: style.StrokeWidth}
	}
	angle := math.Atan2(end.Y-start.Y, end.X-start.X)

	return Arrow{
		Start:       start,
		End:         end,
		HeadLeft:    headPoint(end, angle-ArrowheadAngle, style.HeadSize),
		HeadRight:   headPoint(end, angle+ArrowheadAngle, style.HeadSize),
		StrokeWidth: style.StrokeWidth,
	}
}

func headPoint(end Point, angle, size float64) Point {
	back := r2.Scale(size, r2.Vec{X: math.Cos(angle), Y: math.Sin(angle)})
	return fromVec(r2.Sub(end.vec(), back))
}

// PathData renders the arrow as SVG path data.
func (a Arrow) PathData() string {
	var b strings.Builder
	b.WriteString("M " + pair(a.Start))
	b.WriteString(" L " + pair(a.End))
	b.WriteString(" M " + pair(a.HeadLeft))
	b.WriteString(" L " + pair(a.End))
	b.WriteString(" L " + pair(a.HeadRight))
	return b.String()
}

// Distance returns the Euclidean distance between two points.
func Distance(p1, p2 Point) float64 {
	return r2.Norm(r2.Sub(p2.vec(), p1.vec()))
}

// IsNearby reports whether p2 lies within radius of p1.
func IsNearby(p1, p2 Point, radius float64) bool {
	return Distance(p1, p2) <= radius
}

// DistanceToSegment returns the shortest distance from p to the segment a-b.
func DistanceToSegment(p, a, b Point) float64 {
	ab := r2.Sub(b.vec(), a.vec())
	lenSq := r2.Norm2(ab)
	if lenSq == 0 {
		return Distance(p, a)
	}

	t := Clamp(r2.Dot(r2.Sub(p.vec(), a.vec()), ab)/lenSq, 0, 1)
	closest := r2.Add(a.vec(), r2.Scale(t, ab))
	return Distance(p, fromVec(closest))
}

// Midpoint returns the point halfway between a and b.
func Midpoint(a, b Point) Point {
	return fromVec(r2.Scale(0.5, r2.Add(a.vec(), b.vec())))
}

// CurvedPath returns SVG path data for a cubic curve through points.
// tension, clamped to [0, 1], offsets each control point horizontally by
// that fraction of the x-span between consecutive points. Fewer than two
// points produce an empty path.
func CurvedPath(points []Point, tension float64) string {
	if len(points) < 2 {
		return ""
	}
	tension = Clamp(tension, 0, 1)

	var b strings.Builder
	b.WriteString("M " + pair(points[0]))

	for i := 0; i < len(points)-1; i++ {
		current, next := points[i], points[i+1]
		span := (next.X - current.X) * tension

		c1 := Point{X: current.X + span, Y: current.Y}
		c2 := Point{X: next.X - span, Y: next.Y}

		b.WriteString(" C " + pair(c1) + " " + pair(c2) + " " + pair(next))
	}

	return b.String()
}

// LabelPosition places a label box of the given size at point, flipping it
// to the left or above when it would overflow bounds. The result never has
// negative coordinates.
func LabelPosition(point Point, label Size, bounds Size) Point {
	x, y := point.X, point.Y

	if x+label.Width > bounds.Width {
		x -= label.Width
	}
	if y+label.Height > bounds.Height {
		y -= label.Height
	}

	return Point{X: math.Max(0, x), Y: math.Max(0, y)}
}

// FormatFloat renders v with the shortest exact representation.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func pair(p Point) string {
	return FormatFloat(p.X) + "," + FormatFloat(p.Y)
}
