package cache

import (
	"context"

	"github.com/image-annotator/backend/internal/models"
)

// Noop is a Cache that stores nothing. It is used when no Redis URL is
// configured.
type Noop struct{}

var _ Cache = Noop{}

func (Noop) Get(context.Context, string) (*models.Annotation, error) { return nil, nil }

func (Noop) Set(context.Context, *models.Annotation) error { return nil }

func (Noop) Delete(context.Context, string, string) error { return nil }

func (Noop) GetImageAnnotations(context.Context, string) ([]models.Annotation, bool, error) {
	return nil, false, nil
}

func (Noop) SetImageAnnotations(context.Context, string, []models.Annotation) error { return nil }

func (Noop) InvalidateImage(context.Context, string) error { return nil }

func (Noop) Close() error { return nil }
