package database

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/models"
)

func setupRepository(t *testing.T) (*SQLiteRepository, *models.Image) {
	t.Helper()

	repo, err := NewSQLiteRepository(":memory:", zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(repo.Close)

	image, err := repo.CreateImage(context.Background(), &models.Image{
		ID:       "7",
		OwnerID:  "3",
		Title:    "Harbour",
		URL:      "https://cdn.example/harbour.jpg",
		IsPublic: true,
		Width:    1024,
		Height:   768,
	})
	require.NoError(t, err)
	return repo, image
}

func dotRequest(label string) *models.CreateAnnotationRequest {
	return &models.CreateAnnotationRequest{Type: models.AnnotationDot, X: 12.5, Y: 40, Label: label, ImageID: "7"}
}

func TestSQLite_ImageRoundTrip(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	got, err := repo.GetImage(ctx, "7")
	require.NoError(t, err)
	assert.Equal(t, "3", got.OwnerID)
	assert.Equal(t, "Harbour", got.Title)
	assert.True(t, got.IsPublic)
	assert.Equal(t, 1024, got.Width)

	_, err = repo.GetImage(ctx, "missing")
	assert.ErrorIs(t, err, models.ErrImageNotFound)
}

func TestSQLite_CreateImageAssignsID(t *testing.T) {
	repo, _ := setupRepository(t)

	image, err := repo.CreateImage(context.Background(), &models.Image{OwnerID: "4"})
	require.NoError(t, err)
	assert.Len(t, image.ID, 36)
	assert.False(t, image.CreatedAt.IsZero())
}

func TestSQLite_UpdateImage(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	updated, err := repo.UpdateImage(ctx, "7", &models.UpdateImageRequest{IsPublic: models.Bool(false)})
	require.NoError(t, err)
	assert.False(t, updated.IsPublic)
	assert.Equal(t, "Harbour", updated.Title)

	stored, err := repo.GetImage(ctx, "7")
	require.NoError(t, err)
	assert.False(t, stored.IsPublic)

	_, err = repo.UpdateImage(ctx, "missing", &models.UpdateImageRequest{Title: models.String("x")})
	assert.ErrorIs(t, err, models.ErrImageNotFound)
}

func TestSQLite_CreateAndGet(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, "3", &models.CreateAnnotationRequest{
		Type:    models.AnnotationArrow,
		X:       10,
		Y:       10,
		EndX:    models.Float(40),
		EndY:    models.Float(40),
		Label:   "New arrow",
		ImageID: "7",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "3", created.UserID)

	got, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, models.AnnotationArrow, got.Type)
	assert.Equal(t, "New arrow", got.Label)
	require.NotNil(t, got.EndX)
	assert.Equal(t, 40.0, *got.EndX)
	assert.False(t, got.IsHidden)
	assert.True(t, got.CreatedAt.Equal(created.CreatedAt))
}

func TestSQLite_CreateDotDropsEndpoints(t *testing.T) {
	repo, _ := setupRepository(t)

	req := dotRequest("Nest")
	req.EndX = models.Float(50)
	created, err := repo.Create(context.Background(), "3", req)
	require.NoError(t, err)

	got, err := repo.GetByID(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Nil(t, got.EndX)
	assert.Nil(t, got.EndY)
}

func TestSQLite_CreateOnMissingImage(t *testing.T) {
	repo, _ := setupRepository(t)

	req := dotRequest("Nest")
	req.ImageID = "missing"
	_, err := repo.Create(context.Background(), "3", req)

	assert.ErrorIs(t, err, models.ErrImageNotFound)
}

func TestSQLite_ListByImageInCreationOrder(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	var ids []string
	for _, label := range []string{"first", "second", "third"} {
		a, err := repo.Create(ctx, "3", dotRequest(label))
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	list, err := repo.ListByImage(ctx, "7")
	require.NoError(t, err)
	require.Len(t, list, 3)
	for i, a := range list {
		assert.Equal(t, ids[i], a.ID)
	}

	empty, err := repo.ListByImage(ctx, "other")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestSQLite_Update(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, "3", dotRequest("Nest"))
	require.NoError(t, err)

	updated, err := repo.Update(ctx, created.ID, &models.UpdateAnnotationRequest{
		Label:    models.String("Renamed"),
		IsHidden: models.Bool(true),
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Label)
	assert.True(t, updated.IsHidden)
	assert.Equal(t, 12.5, updated.X)
	assert.False(t, updated.UpdatedAt.Before(created.UpdatedAt))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", stored.Label)
	assert.True(t, stored.IsHidden)
}

func TestSQLite_UpdateRejectsInvalidResult(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, "3", dotRequest("Nest"))
	require.NoError(t, err)

	_, err = repo.Update(ctx, created.ID, &models.UpdateAnnotationRequest{Label: models.String("")})
	assert.ErrorIs(t, err, models.ErrValidation)

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Nest", stored.Label)
}

func TestSQLite_UpdateMissing(t *testing.T) {
	repo, _ := setupRepository(t)

	_, err := repo.Update(context.Background(), "missing", &models.UpdateAnnotationRequest{Label: models.String("x")})
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestSQLite_Delete(t *testing.T) {
	repo, _ := setupRepository(t)
	ctx := context.Background()

	created, err := repo.Create(ctx, "3", dotRequest("Nest"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, created.ID))

	_, err = repo.GetByID(ctx, created.ID)
	assert.ErrorIs(t, err, models.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, created.ID), models.ErrNotFound)
}
