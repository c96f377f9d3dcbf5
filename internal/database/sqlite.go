package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3" // registers the sqlite3 driver
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/models"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS images (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		object_key TEXT NOT NULL DEFAULT '',
		is_public BOOLEAN NOT NULL DEFAULT 1,
		width INTEGER NOT NULL DEFAULT 0,
		height INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS annotations (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL CHECK (type IN ('DOT', 'ARROW')),
		x REAL NOT NULL,
		y REAL NOT NULL,
		end_x REAL,
		end_y REAL,
		label TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		image_id TEXT NOT NULL REFERENCES images(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		is_hidden BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_annotations_image_created ON annotations(image_id, created_at);
`

// SQLiteRepository implements Repository on a local SQLite file, for
// single-node deployments and tests.
type SQLiteRepository struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// NewSQLiteRepository opens (creating if needed) the database at path.
// ":memory:" gives a private in-memory database.
func NewSQLiteRepository(path string, logger *zap.Logger) (*SQLiteRepository, error) {
	dsn := path + "?_foreign_keys=on"
	if path == ":memory:" {
		dsn = "file::memory:?_foreign_keys=on"
	}

	db, err := sqlx.Connect("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// SQLite serializes writers; a single connection also keeps an in-memory
	// database alive for the repository's lifetime.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Info("Opened SQLite database", zap.String("path", path))
	return &SQLiteRepository{db: db, logger: logger}, nil
}

// CreateImage registers an image.
func (r *SQLiteRepository) CreateImage(ctx context.Context, img *models.Image) (*models.Image, error) {
	image := newImage(img)

	query := `INSERT INTO images (id, owner_id, title, url, object_key, is_public, width, height, created_at, updated_at)
	          VALUES (:id, :owner_id, :title, :url, :object_key, :is_public, :width, :height, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, image); err != nil {
		r.logger.Error("Failed to create image", zap.Error(err))
		return nil, fmt.Errorf("failed to create image: %w", err)
	}

	r.logger.Info("Created image", zap.String("id", image.ID))
	return image, nil
}

// GetImage retrieves an image by its ID.
func (r *SQLiteRepository) GetImage(ctx context.Context, id string) (*models.Image, error) {
	return r.getImage(ctx, r.db, id)
}

// UpdateImage applies a partial update to an image.
func (r *SQLiteRepository) UpdateImage(ctx context.Context, id string, req *models.UpdateImageRequest) (*models.Image, error) {
	var updated models.Image
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := r.getImage(ctx, tx, id)
		if err != nil {
			return err
		}
		updated = req.Apply(*existing)
		updated.UpdatedAt = nowUTC()

		_, err = tx.NamedExecContext(ctx,
			`UPDATE images SET title = :title, is_public = :is_public, updated_at = :updated_at WHERE id = :id`, updated)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Updated image", zap.String("id", id))
	return &updated, nil
}

// Create creates a new annotation.
func (r *SQLiteRepository) Create(ctx context.Context, userID string, req *models.CreateAnnotationRequest) (*models.Annotation, error) {
	if _, err := r.GetImage(ctx, req.ImageID); err != nil {
		return nil, err
	}

	annotation := newAnnotation(userID, req)

	query := `INSERT INTO annotations (id, type, x, y, end_x, end_y, label, description, image_id, user_id, is_hidden, created_at, updated_at)
	          VALUES (:id, :type, :x, :y, :end_x, :end_y, :label, :description, :image_id, :user_id, :is_hidden, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, annotation); err != nil {
		r.logger.Error("Failed to create annotation", zap.Error(err))
		return nil, fmt.Errorf("failed to create annotation: %w", err)
	}

	r.logger.Info("Created annotation", zap.String("id", annotation.ID), zap.String("image_id", annotation.ImageID))
	return annotation, nil
}

// GetByID retrieves an annotation by its ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.Annotation, error) {
	return r.getAnnotation(ctx, r.db, id)
}

// ListByImage retrieves an image's annotations in creation order.
func (r *SQLiteRepository) ListByImage(ctx context.Context, imageID string) ([]models.Annotation, error) {
	annotations := []models.Annotation{}
	err := r.db.SelectContext(ctx, &annotations,
		`SELECT * FROM annotations WHERE image_id = ? ORDER BY created_at ASC, rowid ASC`, imageID)
	if err != nil {
		r.logger.Error("Failed to list annotations", zap.String("image_id", imageID), zap.Error(err))
		return nil, fmt.Errorf("failed to list annotations: %w", err)
	}
	return annotations, nil
}

// Update applies a partial update to an existing annotation.
func (r *SQLiteRepository) Update(ctx context.Context, id string, req *models.UpdateAnnotationRequest) (*models.Annotation, error) {
	var updated *models.Annotation
	err := r.inTx(ctx, func(tx *sqlx.Tx) error {
		existing, err := r.getAnnotation(ctx, tx, id)
		if err != nil {
			return err
		}
		updated, err = applyUpdate(existing, req)
		if err != nil {
			return err
		}

		_, err = tx.NamedExecContext(ctx, `UPDATE annotations SET
		            x = :x, y = :y, end_x = :end_x, end_y = :end_y, label = :label,
		            description = :description, is_hidden = :is_hidden, updated_at = :updated_at
		          WHERE id = :id`, updated)
		return err
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("Updated annotation", zap.String("id", id))
	return updated, nil
}

// Delete removes an annotation by its ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM annotations WHERE id = ?`, id)
	if err != nil {
		r.logger.Error("Failed to delete annotation", zap.String("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete annotation: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}

	r.logger.Info("Deleted annotation", zap.String("id", id))
	return nil
}

// Close closes the database.
func (r *SQLiteRepository) Close() {
	if err := r.db.Close(); err != nil {
		r.logger.Warn("Failed to close SQLite database", zap.Error(err))
		return
	}
	r.logger.Info("Closed database connection")
}

func (r *SQLiteRepository) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) getImage(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Image, error) {
	var image models.Image
	err := sqlx.GetContext(ctx, q, &image, `SELECT * FROM images WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrImageNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get image", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get image: %w", err)
	}
	return &image, nil
}

func (r *SQLiteRepository) getAnnotation(ctx context.Context, q sqlx.QueryerContext, id string) (*models.Annotation, error) {
	var annotation models.Annotation
	err := sqlx.GetContext(ctx, q, &annotation, `SELECT * FROM annotations WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrNotFound
	}
	if err != nil {
		r.logger.Error("Failed to get annotation", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get annotation: %w", err)
	}
	return &annotation, nil
}
