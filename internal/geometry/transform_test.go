package geometry

import (
	"math"
	"testing"
	"testing/quick"

	"github.com/stretchr/testify/assert"
)

func TestToNormalized_InsideBounds(t *testing.T) {
	rect := Rect{Left: 100, Top: 50, Width: 400, Height: 200}

	p := ToNormalized(PointerEvent{ClientX: 300, ClientY: 100}, rect)

	assert.InDelta(t, 50.0, p.X, 1e-9)
	assert.InDelta(t, 25.0, p.Y, 1e-9)
}

func TestToNormalized_Clamping(t *testing.T) {
	rect := Rect{Left: 100, Top: 50, Width: 400, Height: 200}

	tests := []struct {
		name     string
		event    PointerEvent
		expected Point
	}{
		{"left of container", PointerEvent{ClientX: 50, ClientY: 100}, Pt(0, 25)},
		{"right of container", PointerEvent{ClientX: 900, ClientY: 100}, Pt(100, 25)},
		{"above container", PointerEvent{ClientX: 300, ClientY: -10}, Pt(50, 0)},
		{"below and right", PointerEvent{ClientX: 1000, ClientY: 1000}, Pt(100, 100)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := ToNormalized(tt.event, rect)
			assert.InDelta(t, tt.expected.X, p.X, 1e-9)
			assert.InDelta(t, tt.expected.Y, p.Y, 1e-9)
		})
	}
}

func TestToNormalized_AlwaysInRange(t *testing.T) {
	rect := Rect{Left: 10, Top: 20, Width: 640, Height: 480}

	f := func(x, y float64) bool {
		p := ToNormalized(PointerEvent{ClientX: x, ClientY: y}, rect)
		return InRange(p.X) && InRange(p.Y)
	}

	assert.NoError(t, quick.Check(f, nil))
}

func TestToNormalized_DetachedContainer(t *testing.T) {
	assert.Equal(t, Point{}, ToNormalized(PointerEvent{ClientX: 10, ClientY: 10}, nil))
	assert.Equal(t, Point{}, ToNormalized(PointerEvent{ClientX: 10, ClientY: 10}, Rect{Width: 0, Height: 100}))
}

func TestToViewport_RoundTrip(t *testing.T) {
	rect := Rect{Left: 37, Top: 12, Width: 813, Height: 457}

	f := func(fx, fy uint16) bool {
		// in-bounds pixel offsets
		dx := float64(fx) / math.MaxUint16 * rect.Width
		dy := float64(fy) / math.MaxUint16 * rect.Height

		e := PointerEvent{ClientX: rect.Left + dx, ClientY: rect.Top + dy}
		back := ToViewport(ToNormalized(e, rect), rect.Size())

		return math.Abs(back.X-dx) < 1e-6 && math.Abs(back.Y-dy) < 1e-6
	}

	assert.NoError(t, quick.Check(f, nil))
}

func TestToPercentage(t *testing.T) {
	dims := Size{Width: 200, Height: 50}

	assert.Equal(t, Pt(25, 50), ToPercentage(Pt(50, 25), dims))
	assert.Equal(t, Pt(50, 25), ToViewport(Pt(25, 50), dims))
	assert.Equal(t, Point{}, ToPercentage(Pt(50, 25), Size{}))
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, ClampPercent(-3))
	assert.Equal(t, 100.0, ClampPercent(140))
	assert.Equal(t, 42.5, ClampPercent(42.5))
	assert.Equal(t, 0.0, ClampPercent(math.NaN()))
	assert.Equal(t, Pt(0, 100), ClampPoint(Pt(-1, 101)))
}

func TestInRange(t *testing.T) {
	assert.True(t, InRange(0))
	assert.True(t, InRange(100))
	assert.False(t, InRange(-0.01))
	assert.False(t, InRange(100.01))
	assert.False(t, InRange(math.NaN()))
	assert.False(t, InRange(math.Inf(1)))
}
