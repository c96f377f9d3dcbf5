// Package geometry converts pointer input into normalized percentage
// coordinates and computes the vector paths used to draw annotations.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/spatial/r2"
)

// MaxPercent is the upper bound of the normalized coordinate space.
const MaxPercent = 100.0

// Point is a 2D position. Depending on context it is either a normalized
// percentage coordinate (0-100 on each axis) or a pixel position.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) vec() r2.Vec {
	return r2.Vec{X: p.X, Y: p.Y}
}

func fromVec(v r2.Vec) Point {
	return Point{X: v.X, Y: v.Y}
}

// Size is the rendered width and height of an image or overlay, in pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the size has no drawable area.
func (s Size) Empty() bool {
	return !(s.Width > 0) || !(s.Height > 0)
}

// Rect is a bounding rectangle in viewport pixels, as reported by the host
// for the element the image is rendered in.
type Rect struct {
	Left   float64 `json:"left"`
	Top    float64 `json:"top"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// BoundingRect implements Container.
func (r Rect) BoundingRect() Rect {
	return r
}

// Size returns the dimensions of the rectangle.
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Clamp limits v to [lo, hi]. NaN is mapped to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) || v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ClampPercent limits v to the normalized range [0, 100].
func ClampPercent(v float64) float64 {
	return Clamp(v, 0, MaxPercent)
}

// ClampPoint clamps both axes of p to the normalized range.
func ClampPoint(p Point) Point {
	return Point{X: ClampPercent(p.X), Y: ClampPercent(p.Y)}
}

// InRange reports whether v is a finite value inside [0, 100].
func InRange(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0 && v <= MaxPercent
}
