package render

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"

	"github.com/image-annotator/backend/internal/geometry"
)

const (
	labelPadding = 4
	labelOffset  = 6
)

var labelFace font.Face = basicfont.Face7x13

// LabelSize returns the pixel size of the box drawn behind a label.
func LabelSize(label string) geometry.Size {
	width := font.MeasureString(labelFace, label).Ceil()
	height := labelFace.Metrics().Height.Ceil()
	return geometry.Size{
		Width:  float64(width + 2*labelPadding),
		Height: float64(height + labelPadding),
	}
}

// WriteSVG writes the scene as a standalone SVG document sized dims.
func (s Scene) WriteSVG(w io.Writer, dims geometry.Size) error {
	var b bytes.Buffer
	num := geometry.FormatFloat

	fmt.Fprintf(&b, `<svg xmlns="http://www.w3.org/2000/svg" width="%s" height="%s" viewBox="0 0 %s %s">`,
		num(dims.Width), num(dims.Height), num(dims.Width), num(dims.Height))

	for _, m := range s.Markers {
		s.writeMarker(&b, m, dims)
	}

	if s.Placeholder != nil {
		p := geometry.ToViewport(*s.Placeholder, dims)
		fmt.Fprintf(&b, `<line class="placeholder" x1="%s" y1="%s" x2="%s" y2="%s" stroke="%s" stroke-width="%s" stroke-dasharray="4" stroke-linecap="round"/>`,
			num(p.X), num(p.Y), num(p.X), num(p.Y), s.Style.Color, num(s.Style.Arrow.StrokeWidth))
	}

	b.WriteString(`</svg>`)

	_, err := w.Write(b.Bytes())
	return err
}

func (s Scene) writeMarker(b *bytes.Buffer, m Marker, dims geometry.Size) {
	num := geometry.FormatFloat

	color := s.Style.Color
	if m.Selected {
		color = s.Style.SelectedColor
	}
	opacity := 1.0
	if m.Dimmed {
		opacity = s.Style.HiddenOpacity
	}

	fmt.Fprintf(b, `<g data-id="%s" opacity="%s" color="%s">`, escape(m.Annotation.ID), num(opacity), color)

	start := geometry.ToViewport(m.At, dims)
	var anchor geometry.Point
	if m.IsArrow() {
		end := geometry.ToViewport(m.End, dims)
		arrow := geometry.ArrowPath(start, end, s.Style.Arrow)
		fmt.Fprintf(b, `<path d="%s" fill="none" stroke="currentColor" stroke-width="%s"/>`,
			arrow.PathData(), num(arrow.StrokeWidth))
		anchor = geometry.Midpoint(start, end)
	} else {
		fmt.Fprintf(b, `<circle cx="%s" cy="%s" r="%s" fill="currentColor"/>`,
			num(start.X), num(start.Y), num(s.Style.DotRadius))
		anchor = geometry.Pt(start.X+labelOffset, start.Y+labelOffset)
	}

	if s.Style.ShowLabels && m.Annotation.Label != "" {
		size := LabelSize(m.Annotation.Label)
		pos := geometry.LabelPosition(anchor, size, dims)
		fmt.Fprintf(b, `<rect x="%s" y="%s" width="%s" height="%s" rx="4" fill="#FFFFFF"/>`,
			num(pos.X), num(pos.Y), num(size.Width), num(size.Height))
		fmt.Fprintf(b, `<text x="%s" y="%s" font-family="monospace" font-size="12" fill="currentColor">%s</text>`,
			num(pos.X+labelPadding), num(pos.Y+size.Height-labelPadding), escape(m.Annotation.Label))
	}

	b.WriteString(`</g>`)
}

func escape(s string) string {
	var b bytes.Buffer
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
