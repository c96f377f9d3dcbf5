package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/config"
	"github.com/image-annotator/backend/internal/models"
)

const annotationColumns = `id, type, x, y, end_x, end_y, label, description, image_id, user_id, is_hidden, created_at, updated_at`

const imageColumns = `id, owner_id, title, url, object_key, is_public, width, height, created_at, updated_at`

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(cfg *config.Config, logger *zap.Logger) (Repository, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 10
	poolConfig.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	repo := &PostgresRepository{
		pool:   pool,
		logger: logger,
	}

	if err := repo.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Connected to PostgreSQL database")
	return repo, nil
}

// migrate creates the necessary database tables if they don't exist.
func (r *PostgresRepository) migrate(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS images (
			id TEXT PRIMARY KEY,
			owner_id TEXT NOT NULL,
			title VARCHAR(200) NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			object_key TEXT NOT NULL DEFAULT '',
			is_public BOOLEAN NOT NULL DEFAULT TRUE,
			width INTEGER NOT NULL DEFAULT 0,
			height INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS annotations (
			id TEXT PRIMARY KEY,
			type VARCHAR(8) NOT NULL CHECK (type IN ('DOT', 'ARROW')),
			x DOUBLE PRECISION NOT NULL CHECK (x BETWEEN 0 AND 100),
			y DOUBLE PRECISION NOT NULL CHECK (y BETWEEN 0 AND 100),
			end_x DOUBLE PRECISION CHECK (end_x BETWEEN 0 AND 100),
			end_y DOUBLE PRECISION CHECK (end_y BETWEEN 0 AND 100),
			label VARCHAR(100) NOT NULL,
			description VARCHAR(500) NOT NULL DEFAULT '',
			image_id TEXT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
			user_id TEXT NOT NULL,
			is_hidden BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP WITH TIME ZONE DEFAULT CURRENT_TIMESTAMP
		);

		CREATE INDEX IF NOT EXISTS idx_annotations_image_created ON annotations(image_id, created_at);
	`

	_, err := r.pool.Exec(ctx, query)
	return err
}

// CreateImage registers an image.
func (r *PostgresRepository) CreateImage(ctx context.Context, img *models.Image) (*models.Image, error) {
	image := newImage(img)

	query := `
		INSERT INTO images (` + imageColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		image.ID,
		image.OwnerID,
		image.Title,
		image.URL,
		image.ObjectKey,
		image.IsPublic,
		image.Width,
		image.Height,
		image.CreatedAt,
		image.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create image", zap.Error(err))
		return nil, fmt.Errorf("failed to create image: %w", err)
	}

	r.logger.Info("Created image", zap.String("id", image.ID))
	return image, nil
}

// GetImage retrieves an image by its ID.
func (r *PostgresRepository) GetImage(ctx context.Context, id string) (*models.Image, error) {
	return r.getImage(ctx, r.pool, id, "")
}

// UpdateImage applies a partial update to an image.
func (r *PostgresRepository) UpdateImage(ctx context.Context, id string, req *models.UpdateImageRequest) (*models.Image, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := r.getImage(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return nil, err
	}

	updated := req.Apply(*existing)
	updated.UpdatedAt = nowUTC()

	query := `UPDATE images SET title = $2, is_public = $3, updated_at = $4 WHERE id = $1`
	if _, err := tx.Exec(ctx, query, updated.ID, updated.Title, updated.IsPublic, updated.UpdatedAt); err != nil {
		r.logger.Error("Failed to update image", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update image: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit image update: %w", err)
	}

	r.logger.Info("Updated image", zap.String("id", id))
	return &updated, nil
}

// Create creates a new annotation.
func (r *PostgresRepository) Create(ctx context.Context, userID string, req *models.CreateAnnotationRequest) (*models.Annotation, error) {
	if _, err := r.GetImage(ctx, req.ImageID); err != nil {
		return nil, err
	}

	annotation := newAnnotation(userID, req)

	query := `
		INSERT INTO annotations (` + annotationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.pool.Exec(ctx, query,
		annotation.ID,
		annotation.Type,
		annotation.X,
		annotation.Y,
		annotation.EndX,
		annotation.EndY,
		annotation.Label,
		annotation.Description,
		annotation.ImageID,
		annotation.UserID,
		annotation.IsHidden,
		annotation.CreatedAt,
		annotation.UpdatedAt,
	)

	if err != nil {
		r.logger.Error("Failed to create annotation", zap.Error(err))
		return nil, fmt.Errorf("failed to create annotation: %w", err)
	}

	r.logger.Info("Created annotation", zap.String("id", annotation.ID), zap.String("image_id", annotation.ImageID))
	return annotation, nil
}

// GetByID retrieves an annotation by its ID.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Annotation, error) {
	return r.getAnnotation(ctx, r.pool, id, "")
}

// ListByImage retrieves an image's annotations in creation order.
func (r *PostgresRepository) ListByImage(ctx context.Context, imageID string) ([]models.Annotation, error) {
	query := `
		SELECT ` + annotationColumns + `
		FROM annotations
		WHERE image_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.pool.Query(ctx, query, imageID)
	if err != nil {
		r.logger.Error("Failed to list annotations", zap.String("image_id", imageID), zap.Error(err))
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	defer rows.Close()

	annotations := []models.Annotation{}
	for rows.Next() {
		annotation, err := scanAnnotation(rows)
		if err != nil {
			r.logger.Error("Failed to scan annotation row", zap.Error(err))
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		annotations = append(annotations, *annotation)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}

	return annotations, nil
}

// Update applies a partial update inside a row-locking transaction.
func (r *PostgresRepository) Update(ctx context.Context, id string, req *models.UpdateAnnotationRequest) (*models.Annotation, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existing, err := r.getAnnotation(ctx, tx, id, " FOR UPDATE")
	if err != nil {
		return nil, err
	}

	updated, err := applyUpdate(existing, req)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE annotations
		SET x = $2, y = $3, end_x = $4, end_y = $5, label = $6, description = $7, is_hidden = $8, updated_at = $9
		WHERE id = $1
	`

	_, err = tx.Exec(ctx, query,
		updated.ID,
		updated.X,
		updated.Y,
		updated.EndX,
		updated.EndY,
		updated.Label,
		updated.Description,
		updated.IsHidden,
		updated.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to update annotation", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to update annotation: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit annotation update: %w", err)
	}

	r.logger.Info("Updated annotation", zap.String("id", id))
	return updated, nil
}

// Delete removes an annotation by its ID.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM annotations WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		r.logger.Error("Failed to delete annotation", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete annotation: %w", err)
	}

	if result.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	r.logger.Info("Deleted annotation", zap.String("id", id))
	return nil
}

// Close closes the database connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
	r.logger.Info("Closed database connection")
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func (r *PostgresRepository) getImage(ctx context.Context, q querier, id, lock string) (*models.Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = $1` + lock

	var image models.Image
	err := q.QueryRow(ctx, query, id).Scan(
		&image.ID,
		&image.OwnerID,
		&image.Title,
		&image.URL,
		&image.ObjectKey,
		&image.IsPublic,
		&image.Width,
		&image.Height,
		&image.CreatedAt,
		&image.UpdatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrImageNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get image", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get image: %w", err)
	}

	return &image, nil
}

func (r *PostgresRepository) getAnnotation(ctx context.Context, q querier, id, lock string) (*models.Annotation, error) {
	query := `SELECT ` + annotationColumns + ` FROM annotations WHERE id = $1` + lock

	annotation, err := scanAnnotation(q.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get annotation", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}

	return annotation, nil
}

func scanAnnotation(row pgx.Row) (*models.Annotation, error) {
	var annotation models.Annotation
	err := row.Scan(
		&annotation.ID,
		&annotation.Type,
		&annotation.X,
		&annotation.Y,
		&annotation.EndX,
		&annotation.EndY,
		&annotation.Label,
		&annotation.Description,
		&annotation.ImageID,
		&annotation.UserID,
		&annotation.IsHidden,
		&annotation.CreatedAt,
		&annotation.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &annotation, nil
}
