// Package models contains the data models for the application.
package models

import (
	"time"

	"github.com/image-annotator/backend/internal/geometry"
)

// AnnotationType is the closed set of annotation shapes.
type AnnotationType string

const (
	AnnotationDot   AnnotationType = "DOT"
	AnnotationArrow AnnotationType = "ARROW"
)

// Valid reports whether t is one of the known annotation types.
func (t AnnotationType) Valid() bool {
	return t == AnnotationDot || t == AnnotationArrow
}

// Field bounds shared by client-side and server-side validation.
const (
	MaxLabelLength       = 100
	MaxDescriptionLength = 500
)

// Annotation is a DOT or ARROW marker anchored to normalized coordinates on
// one image. EndX and EndY are set only for arrows.
type Annotation struct {
	ID          string         `json:"id" db:"id"`
	Type        AnnotationType `json:"type" db:"type"`
	X           float64        `json:"x" db:"x"`
	Y           float64        `json:"y" db:"y"`
	EndX        *float64       `json:"end_x" db:"end_x"`
	EndY        *float64       `json:"end_y" db:"end_y"`
	Label       string         `json:"label" db:"label"`
	Description string         `json:"description" db:"description"`
	ImageID     string         `json:"image_id" db:"image_id"`
	UserID      string         `json:"user_id" db:"user_id"`
	IsHidden    bool           `json:"is_hidden" db:"is_hidden"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// Start returns the anchor point of the annotation.
func (a Annotation) Start() geometry.Point {
	return geometry.Pt(a.X, a.Y)
}

// End returns the arrow's terminal point. ok is false for dots and for
// arrows missing an endpoint.
func (a Annotation) End() (geometry.Point, bool) {
	if a.Type != AnnotationArrow || a.EndX == nil || a.EndY == nil {
		return geometry.Point{}, false
	}
	return geometry.Pt(*a.EndX, *a.EndY), true
}

// CreateAnnotationRequest represents the request body for creating an annotation.
type CreateAnnotationRequest struct {
	Type        AnnotationType `json:"type" binding:"required"`
	X           float64        `json:"x"`
	Y           float64        `json:"y"`
	EndX        *float64       `json:"end_x,omitempty"`
	EndY        *float64       `json:"end_y,omitempty"`
	Label       string         `json:"label" binding:"required"`
	Description string         `json:"description"`
	ImageID     string         `json:"image_id" binding:"required"`
}

// NewDot builds a create request for a dot at p. Coordinates are clamped.
func NewDot(imageID string, p geometry.Point, label string) CreateAnnotationRequest {
	p = geometry.ClampPoint(p)
	return CreateAnnotationRequest{
		Type:    AnnotationDot,
		X:       p.X,
		Y:       p.Y,
		Label:   label,
		ImageID: imageID,
	}
}

// NewArrow builds a create request for an arrow from start to end.
// Coordinates are clamped.
func NewArrow(imageID string, start, end geometry.Point, label string) CreateAnnotationRequest {
	start = geometry.ClampPoint(start)
	end = geometry.ClampPoint(end)
	return CreateAnnotationRequest{
		Type:    AnnotationArrow,
		X:       start.X,
		Y:       start.Y,
		EndX:    Float(end.X),
		EndY:    Float(end.Y),
		Label:   label,
		ImageID: imageID,
	}
}

// UpdateAnnotationRequest represents a partial update. The type, image and
// author of an annotation never change.
type UpdateAnnotationRequest struct {
	X           *float64 `json:"x,omitempty"`
	Y           *float64 `json:"y,omitempty"`
	EndX        *float64 `json:"end_x,omitempty"`
	EndY        *float64 `json:"end_y,omitempty"`
	Label       *string  `json:"label,omitempty"`
	Description *string  `json:"description,omitempty"`
	IsHidden    *bool    `json:"is_hidden,omitempty"`
}

// Empty reports whether the request changes nothing.
func (r UpdateAnnotationRequest) Empty() bool {
	return r.X == nil && r.Y == nil && r.EndX == nil && r.EndY == nil &&
		r.Label == nil && r.Description == nil && r.IsHidden == nil
}

// Apply returns a copy of a with the requested fields replaced.
func (r UpdateAnnotationRequest) Apply(a Annotation) Annotation {
	if r.X != nil {
		a.X = *r.X
	}
	if r.Y != nil {
		a.Y = *r.Y
	}
	if r.EndX != nil {
		a.EndX = Float(*r.EndX)
	}
	if r.EndY != nil {
		a.EndY = Float(*r.EndY)
	}
	if r.Label != nil {
		a.Label = *r.Label
	}
	if r.Description != nil {
		a.Description = *r.Description
	}
	if r.IsHidden != nil {
		a.IsHidden = *r.IsHidden
	}
	return a
}

// AnnotationResponse wraps a single annotation in the API response.
type AnnotationResponse struct {
	Data Annotation `json:"data"`
}

// AnnotationsResponse wraps multiple annotations in the API response.
type AnnotationsResponse struct {
	Data []Annotation `json:"data"`
}

// ErrorResponse represents an error response from the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

// String returns a pointer to v.
func String(v string) *string {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}
