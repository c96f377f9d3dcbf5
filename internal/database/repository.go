// Package database provides persistence for images and their annotations.
package database

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/image-annotator/backend/internal/models"
)

// Repository defines the interface for image and annotation data operations.
// Lookups of missing rows return models.ErrNotFound or models.ErrImageNotFound.
type Repository interface {
	// CreateImage registers an image. An empty ID is assigned.
	CreateImage(ctx context.Context, img *models.Image) (*models.Image, error)

	// GetImage retrieves an image by its ID.
	GetImage(ctx context.Context, id string) (*models.Image, error)

	// UpdateImage applies a partial update to an image's metadata.
	UpdateImage(ctx context.Context, id string, req *models.UpdateImageRequest) (*models.Image, error)

	// Create creates a new annotation authored by userID.
	Create(ctx context.Context, userID string, req *models.CreateAnnotationRequest) (*models.Annotation, error)

	// GetByID retrieves an annotation by its ID.
	GetByID(ctx context.Context, id string) (*models.Annotation, error)

	// ListByImage retrieves an image's annotations, oldest first.
	ListByImage(ctx context.Context, imageID string) ([]models.Annotation, error)

	// Update applies a partial update to an existing annotation.
	Update(ctx context.Context, id string, req *models.UpdateAnnotationRequest) (*models.Annotation, error)

	// Delete removes an annotation by its ID.
	Delete(ctx context.Context, id string) error

	// Close closes the database connection.
	Close()
}

func newImage(img *models.Image) *models.Image {
	out := *img
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := nowUTC()
	out.CreatedAt = now
	out.UpdatedAt = now
	return &out
}

func newAnnotation(userID string, req *models.CreateAnnotationRequest) *models.Annotation {
	now := nowUTC()
	a := &models.Annotation{
		ID:          uuid.New().String(),
		Type:        req.Type,
		X:           req.X,
		Y:           req.Y,
		Label:       req.Label,
		Description: req.Description,
		ImageID:     req.ImageID,
		UserID:      userID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if req.Type == models.AnnotationArrow {
		a.EndX = req.EndX
		a.EndY = req.EndY
	}
	return a
}

// applyUpdate merges req into existing and checks the result still holds.
func applyUpdate(existing *models.Annotation, req *models.UpdateAnnotationRequest) (*models.Annotation, error) {
	updated := req.Apply(*existing)
	if err := updated.Validate(); err != nil {
		return nil, err
	}
	updated.UpdatedAt = nowUTC()
	return &updated, nil
}

func nowUTC() time.Time {
	return time.Now().UTC()
}
