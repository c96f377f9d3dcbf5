package geometry

// PointerEvent carries the viewport position of a pointer event.
type PointerEvent struct {
	ClientX float64 `json:"client_x"`
	ClientY float64 `json:"client_y"`
}

// Container is the element an image is rendered in. A detached element is
// represented by a nil Container.
type Container interface {
	BoundingRect() Rect
}

// ToNormalized converts a pointer event into percentage coordinates relative
// to the container's current bounding rectangle, clamped to [0, 100].
//
// A nil container, or one with no area, yields the origin instead of failing
// so a detached view never breaks the gesture pipeline.
func ToNormalized(e PointerEvent, c Container) Point {
	if c == nil {
		return Point{}
	}
	rect := c.BoundingRect()
	if rect.Size().Empty() {
		return Point{}
	}

	x := (e.ClientX - rect.Left) / rect.Width * MaxPercent
	y := (e.ClientY - rect.Top) / rect.Height * MaxPercent

	return Point{X: ClampPercent(x), Y: ClampPercent(y)}
}

// ToViewport is the inverse of ToNormalized: it maps a percentage coordinate
// to a pixel offset inside a container of the given dimensions.
func ToViewport(p Point, dims Size) Point {
	return Point{
		X: p.X / MaxPercent * dims.Width,
		Y: p.Y / MaxPercent * dims.Height,
	}
}

// ToPercentage maps a pixel offset inside a container of the given
// dimensions to percentage coordinates. Unlike ToNormalized it does not clamp.
func ToPercentage(p Point, dims Size) Point {
	if dims.Empty() {
		return Point{}
	}
	return Point{
		X: p.X / dims.Width * MaxPercent,
		Y: p.Y / dims.Height * MaxPercent,
	}
}
