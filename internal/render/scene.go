// Package render turns an annotation collection into an overlay scene that
// can be hit-tested and written as SVG. It never mutates annotations; clicks
// are reported back through a selection callback.
package render

import (
	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/models"
)

// Input is everything the overlay depends on.
type Input struct {
	Annotations     []models.Annotation
	ShowAnnotations bool
	SelectedID      string

	// Drawing holds the staged points of an annotation being drawn. A single
	// point renders a placeholder; any other count renders nothing extra.
	Drawing []geometry.Point
}

// Style holds presentation settings. Sizes are in pixels.
type Style struct {
	DotRadius     float64
	Arrow         geometry.ArrowStyle
	Color         string
	SelectedColor string
	HiddenOpacity float64
	HitRadius     float64
	ShowLabels    bool
}

// DefaultStyle returns the standard overlay look.
func DefaultStyle() Style {
	return Style{
		DotRadius:     4,
		Arrow:         geometry.DefaultArrowStyle(),
		Color:         "#374151",
		SelectedColor: "#3B82F6",
		HiddenOpacity: 0.3,
		HitRadius:     8,
	}
}

// Marker is one drawable annotation. Positions are normalized percentages.
type Marker struct {
	Annotation models.Annotation
	At         geometry.Point
	End        geometry.Point
	Selected   bool
	Dimmed     bool
}

// IsArrow reports whether the marker is drawn as an arrow.
func (m Marker) IsArrow() bool {
	return m.Annotation.Type == models.AnnotationArrow
}

// Scene is the resolved overlay for one frame.
type Scene struct {
	Markers     []Marker
	Placeholder *geometry.Point
	Style       Style
}

// Build resolves in into a scene. When annotations are switched off the
// scene is empty, including any placeholder.
func Build(in Input, style Style) Scene {
	scene := Scene{Style: style}
	if !in.ShowAnnotations {
		return scene
	}

	for _, a := range in.Annotations {
		m := Marker{
			Annotation: a,
			At:         a.Start(),
			Selected:   in.SelectedID != "" && a.ID == in.SelectedID,
			Dimmed:     a.IsHidden,
		}

		switch a.Type {
		case models.AnnotationDot:
		case models.AnnotationArrow:
			end, ok := a.End()
			if !ok {
				continue
			}
			m.End = end
		default:
			continue
		}

		scene.Markers = append(scene.Markers, m)
	}

	if len(in.Drawing) == 1 {
		p := in.Drawing[0]
		scene.Placeholder = &p
	}

	return scene
}

// Empty reports whether nothing would be drawn.
func (s Scene) Empty() bool {
	return len(s.Markers) == 0 && s.Placeholder == nil
}

// HitTest returns the topmost annotation under at, a normalized point, for
// an overlay rendered at dims. Dots are hit within the hit radius of their
// centre, arrows within the hit radius of their shaft.
func (s Scene) HitTest(at geometry.Point, dims geometry.Size) (models.Annotation, bool) {
	if dims.Empty() {
		return models.Annotation{}, false
	}
	p := geometry.ToViewport(at, dims)
	radius := s.Style.HitRadius
	if radius < s.Style.DotRadius {
		radius = s.Style.DotRadius
	}

	for i := len(s.Markers) - 1; i >= 0; i-- {
		m := s.Markers[i]
		start := geometry.ToViewport(m.At, dims)

		if m.IsArrow() {
			end := geometry.ToViewport(m.End, dims)
			if geometry.DistanceToSegment(p, start, end) <= radius {
				return m.Annotation, true
			}
			continue
		}
		if geometry.IsNearby(start, p, radius) {
			return m.Annotation, true
		}
	}
	return models.Annotation{}, false
}

// SelectFunc receives the clicked annotation, or nil when the click missed.
type SelectFunc func(a *models.Annotation)

// Click hit-tests at and reports the result to onSelect.
func (s Scene) Click(at geometry.Point, dims geometry.Size, onSelect SelectFunc) {
	if onSelect == nil {
		return
	}
	if a, ok := s.HitTest(at, dims); ok {
		onSelect(&a)
		return
	}
	onSelect(nil)
}
