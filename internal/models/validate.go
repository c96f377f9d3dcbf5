package models

import (
	"strings"
	"unicode/utf8"

	"github.com/image-annotator/backend/internal/geometry"
)

// Validate checks a create request before it is sent or persisted.
func (r CreateAnnotationRequest) Validate() error {
	if !r.Type.Valid() {
		return invalid("type", "must be %s or %s", AnnotationDot, AnnotationArrow)
	}
	if strings.TrimSpace(r.ImageID) == "" {
		return invalid("image_id", "is required")
	}
	if err := validateText(r.Label, r.Description); err != nil {
		return err
	}
	return validateShape(r.Type, r.X, r.Y, r.EndX, r.EndY)
}

// Validate checks the fields present in a partial update.
func (r UpdateAnnotationRequest) Validate() error {
	if r.Label != nil {
		if err := validateLabel(*r.Label); err != nil {
			return err
		}
	}
	if r.Description != nil {
		if err := validateDescription(*r.Description); err != nil {
			return err
		}
	}
	coords := []struct {
		field string
		value *float64
	}{{"x", r.X}, {"y", r.Y}, {"end_x", r.EndX}, {"end_y", r.EndY}}
	for _, c := range coords {
		if c.value != nil && !geometry.InRange(*c.value) {
			return invalid(c.field, "must be between 0 and 100")
		}
	}
	return nil
}

// Validate checks a complete annotation, such as the result of applying an
// update to a stored record.
func (a Annotation) Validate() error {
	if !a.Type.Valid() {
		return invalid("type", "must be %s or %s", AnnotationDot, AnnotationArrow)
	}
	if err := validateText(a.Label, a.Description); err != nil {
		return err
	}
	return validateShape(a.Type, a.X, a.Y, a.EndX, a.EndY)
}

func validateText(label, description string) error {
	if err := validateLabel(label); err != nil {
		return err
	}
	return validateDescription(description)
}

func validateLabel(label string) error {
	if strings.TrimSpace(label) == "" {
		return invalid("label", "is required")
	}
	if utf8.RuneCountInString(label) > MaxLabelLength {
		return invalid("label", "must be at most %d characters", MaxLabelLength)
	}
	return nil
}

func validateDescription(description string) error {
	if utf8.RuneCountInString(description) > MaxDescriptionLength {
		return invalid("description", "must be at most %d characters", MaxDescriptionLength)
	}
	return nil
}

func validateShape(t AnnotationType, x, y float64, endX, endY *float64) error {
	if !geometry.InRange(x) {
		return invalid("x", "must be between 0 and 100")
	}
	if !geometry.InRange(y) {
		return invalid("y", "must be between 0 and 100")
	}

	switch t {
	case AnnotationArrow:
		if endX == nil {
			return invalid("end_x", "is required for %s", AnnotationArrow)
		}
		if endY == nil {
			return invalid("end_y", "is required for %s", AnnotationArrow)
		}
		if !geometry.InRange(*endX) {
			return invalid("end_x", "must be between 0 and 100")
		}
		if !geometry.InRange(*endY) {
			return invalid("end_y", "must be between 0 and 100")
		}
	case AnnotationDot:
		if endX != nil || endY != nil {
			return invalid("end_x", "must be empty for %s", AnnotationDot)
		}
	}
	return nil
}
