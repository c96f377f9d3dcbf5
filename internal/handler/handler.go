// Package handler provides the HTTP handlers for images and their annotations.
package handler

import (
	"bytes"
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/cache"
	"github.com/image-annotator/backend/internal/database"
	"github.com/image-annotator/backend/internal/geometry"
	"github.com/image-annotator/backend/internal/middleware"
	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/permission"
	"github.com/image-annotator/backend/internal/render"
	"github.com/image-annotator/backend/internal/storage"
)

// Overlay size used when neither the request nor the image has dimensions.
const defaultOverlaySize = 100

// Handler provides HTTP handlers for image and annotation operations.
type Handler struct {
	repo     database.Repository
	cache    cache.Cache
	signer   storage.URLSigner
	resolver permission.Resolver
	style    render.Style
	logger   *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithURLSigner resolves image object keys into download URLs.
func WithURLSigner(s storage.URLSigner) Option {
	return func(h *Handler) {
		h.signer = s
	}
}

// WithStyle sets the style used for rendered overlays.
func WithStyle(style render.Style) Option {
	return func(h *Handler) {
		h.style = style
	}
}

// NewHandler creates a new annotation handler.
func NewHandler(repo database.Repository, cache cache.Cache, logger *zap.Logger, opts ...Option) *Handler {
	style := render.DefaultStyle()
	style.ShowLabels = true

	h := &Handler{
		repo:     repo,
		cache:    cache,
		resolver: permission.Default{},
		style:    style,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// RegisterRoutes registers the handler routes on the given router group.
// The group is expected to run middleware.Authenticate first.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	sanitize := middleware.SanitizeJSON()

	rg.GET("/images/:id", h.GetImage)
	rg.PATCH("/images/:id", sanitize, h.UpdateImage)
	rg.GET("/images/:id/annotations", h.ListByImage)
	rg.GET("/images/:id/overlay.svg", h.Overlay)

	rg.POST("/annotations", sanitize, h.Create)
	rg.GET("/annotations/:id", h.GetByID)
	rg.PUT("/annotations/:id", sanitize, h.Update)
	rg.PATCH("/annotations/:id", sanitize, h.Update)
	rg.DELETE("/annotations/:id", h.Delete)
}

// GetImage handles retrieving an image's metadata.
// @Summary Get image
// @Tags images
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} models.ImageResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/images/{id} [get]
func (h *Handler) GetImage(c *gin.Context) {
	image, ok := h.visibleImage(c, c.Param("id"))
	if !ok {
		return
	}

	if h.signer != nil && image.ObjectKey != "" {
		url, err := h.signer.SignedURL(c.Request.Context(), image.ObjectKey)
		if err != nil {
			// The stored URL still works for public buckets.
			h.logger.Warn("Failed to sign image URL", zap.String("id", image.ID), zap.Error(err))
		} else {
			image.URL = url
		}
	}

	c.JSON(http.StatusOK, models.ImageResponse{Data: *image})
}

// UpdateImage handles changing an image's title or visibility.
// Only the owner or an admin may do so.
// @Summary Update image
// @Tags images
// @Accept json
// @Produce json
// @Param id path string true "Image ID"
// @Param image body models.UpdateImageRequest true "Image fields"
// @Success 200 {object} models.ImageResponse
// @Failure 400,401,403,404 {object} models.ErrorResponse
// @Router /api/v1/images/{id} [patch]
func (h *Handler) UpdateImage(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req models.UpdateImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid image update request", err)
		return
	}

	image, ok := h.visibleImage(c, c.Param("id"))
	if !ok {
		return
	}
	if !h.resolver.CanPerform(actor, permission.UpdateImage, permission.ForImage(*image)) {
		h.fail(c, "update image", models.ErrPermission)
		return
	}

	updated, err := h.repo.UpdateImage(c.Request.Context(), image.ID, &req)
	if err != nil {
		h.fail(c, "update image", err)
		return
	}

	c.JSON(http.StatusOK, models.ImageResponse{Data: *updated})
}

// ListByImage handles retrieving an image's annotations in creation order.
// @Summary List annotations for an image
// @Tags annotations
// @Produce json
// @Param id path string true "Image ID"
// @Success 200 {object} models.AnnotationsResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/images/{id}/annotations [get]
func (h *Handler) ListByImage(c *gin.Context) {
	image, ok := h.visibleImage(c, c.Param("id"))
	if !ok {
		return
	}

	annotations, err := h.annotationsFor(c.Request.Context(), image.ID)
	if err != nil {
		h.fail(c, "list annotations", err)
		return
	}

	c.JSON(http.StatusOK, models.AnnotationsResponse{Data: annotations})
}

// Overlay renders an image's annotations as SVG.
// Query parameters: selected (annotation id), show (false hides every
// marker), width and height (pixels, default to the image's size).
// @Summary Render annotation overlay
// @Tags annotations
// @Produce image/svg+xml
// @Param id path string true "Image ID"
// @Success 200 {string} string "SVG document"
// @Failure 404 {object} models.ErrorResponse
// @Router /api/v1/images/{id}/overlay.svg [get]
func (h *Handler) Overlay(c *gin.Context) {
	image, ok := h.visibleImage(c, c.Param("id"))
	if !ok {
		return
	}

	annotations, err := h.annotationsFor(c.Request.Context(), image.ID)
	if err != nil {
		h.fail(c, "render overlay", err)
		return
	}

	show := true
	if v := c.Query("show"); v != "" {
		show, err = strconv.ParseBool(v)
		if err != nil {
			h.badRequest(c, "Invalid overlay request", err)
			return
		}
	}

	dims := geometry.Size{
		Width:  overlayDimension(c.Query("width"), image.Width),
		Height: overlayDimension(c.Query("height"), image.Height),
	}

	scene := render.Build(render.Input{
		Annotations:     annotations,
		ShowAnnotations: show,
		SelectedID:      c.Query("selected"),
	}, h.style)

	var buf bytes.Buffer
	if err := scene.WriteSVG(&buf, dims); err != nil {
		h.fail(c, "render overlay", err)
		return
	}

	c.Data(http.StatusOK, "image/svg+xml", buf.Bytes())
}

// Create handles the creation of a new annotation.
// @Summary Create annotation
// @Description Create a new DOT or ARROW annotation on an image
// @Tags annotations
// @Accept json
// @Produce json
// @Param annotation body models.CreateAnnotationRequest true "Annotation data"
// @Success 201 {object} models.AnnotationResponse
// @Failure 400,401,403,404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/annotations [post]
func (h *Handler) Create(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}

	var req models.CreateAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid create request", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(c, "create annotation", err)
		return
	}

	image, ok := h.visibleImage(c, req.ImageID)
	if !ok {
		return
	}
	if !h.resolver.CanPerform(actor, permission.CreateAnnotation, permission.ForImage(*image)) {
		h.fail(c, "create annotation", models.ErrPermission)
		return
	}

	ctx := c.Request.Context()
	annotation, err := h.repo.Create(ctx, actor.ID, &req)
	if err != nil {
		h.fail(c, "create annotation", err)
		return
	}

	// Cache the new annotation and drop the image's list
	_ = h.cache.Set(ctx, annotation)

	c.JSON(http.StatusCreated, models.AnnotationResponse{Data: *annotation})
}

// GetByID handles retrieving a single annotation by ID.
// @Summary Get annotation by ID
// @Tags annotations
// @Produce json
// @Param id path string true "Annotation ID"
// @Success 200 {object} models.AnnotationResponse
// @Failure 404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/annotations/{id} [get]
func (h *Handler) GetByID(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	// Try cache first
	annotation, err := h.cache.Get(ctx, id)
	if err != nil || annotation == nil {
		annotation, err = h.repo.GetByID(ctx, id)
		if err != nil {
			h.fail(c, "get annotation", err)
			return
		}
		_ = h.cache.Set(ctx, annotation)
	} else {
		h.logger.Debug("Returning cached annotation", zap.String("id", id))
	}

	if _, ok := h.visibleImage(c, annotation.ImageID); !ok {
		return
	}

	c.JSON(http.StatusOK, models.AnnotationResponse{Data: *annotation})
}

// Update handles updating an existing annotation.
// Only the author or an admin may do so.
// @Summary Update annotation
// @Tags annotations
// @Accept json
// @Produce json
// @Param id path string true "Annotation ID"
// @Param annotation body models.UpdateAnnotationRequest true "Fields to change"
// @Success 200 {object} models.AnnotationResponse
// @Failure 400,401,403,404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/annotations/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")

	var req models.UpdateAnnotationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "Invalid update request", err)
		return
	}
	if err := req.Validate(); err != nil {
		h.fail(c, "update annotation", err)
		return
	}

	ctx := c.Request.Context()
	existing, err := h.repo.GetByID(ctx, id)
	if err != nil {
		h.fail(c, "update annotation", err)
		return
	}
	if !h.resolver.CanPerform(actor, permission.UpdateAnnotation, permission.ForAnnotation(*existing)) {
		h.fail(c, "update annotation", models.ErrPermission)
		return
	}
	if req.Empty() {
		c.JSON(http.StatusOK, models.AnnotationResponse{Data: *existing})
		return
	}

	annotation, err := h.repo.Update(ctx, id, &req)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			_ = h.cache.Delete(ctx, id, existing.ImageID)
		}
		h.fail(c, "update annotation", err)
		return
	}

	// Update cache
	_ = h.cache.Set(ctx, annotation)

	c.JSON(http.StatusOK, models.AnnotationResponse{Data: *annotation})
}

// Delete handles deleting an annotation.
// Only the author or an admin may do so.
// @Summary Delete annotation
// @Tags annotations
// @Produce json
// @Param id path string true "Annotation ID"
// @Success 204 "No Content"
// @Failure 401,403,404 {object} models.ErrorResponse
// @Failure 500 {object} models.ErrorResponse
// @Router /api/v1/annotations/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	actor, ok := h.requireActor(c)
	if !ok {
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	existing, err := h.repo.GetByID(ctx, id)
	if err != nil {
		h.fail(c, "delete annotation", err)
		return
	}
	if !h.resolver.CanPerform(actor, permission.DeleteAnnotation, permission.ForAnnotation(*existing)) {
		h.fail(c, "delete annotation", models.ErrPermission)
		return
	}

	err = h.repo.Delete(ctx, id)
	// Remove from cache, including when the row vanished concurrently
	_ = h.cache.Delete(ctx, id, existing.ImageID)
	if err != nil {
		h.fail(c, "delete annotation", err)
		return
	}

	c.Status(http.StatusNoContent)
}

// annotationsFor reads an image's annotations through the cache.
func (h *Handler) annotationsFor(ctx context.Context, imageID string) ([]models.Annotation, error) {
	annotations, found, err := h.cache.GetImageAnnotations(ctx, imageID)
	if err == nil && found {
		h.logger.Debug("Returning cached annotations", zap.String("image_id", imageID))
		return annotations, nil
	}

	annotations, err = h.repo.ListByImage(ctx, imageID)
	if err != nil {
		return nil, err
	}

	// Update cache
	_ = h.cache.SetImageAnnotations(ctx, imageID, annotations)
	return annotations, nil
}

// visibleImage loads an image and checks the request's actor may see it.
// Private images look missing to everyone but their owner and admins.
func (h *Handler) visibleImage(c *gin.Context, id string) (*models.Image, bool) {
	image, err := h.repo.GetImage(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get image", err)
		return nil, false
	}
	if !permission.CanView(middleware.GetActor(c), *image) {
		h.fail(c, "get image", models.ErrImageNotFound)
		return nil, false
	}
	return image, true
}

func (h *Handler) requireActor(c *gin.Context) (*models.Actor, bool) {
	actor := middleware.GetActor(c)
	if actor == nil {
		c.JSON(http.StatusUnauthorized, models.ErrorResponse{
			Error:   "unauthorized",
			Message: "sign in to annotate",
		})
		return nil, false
	}
	return actor, true
}

func (h *Handler) badRequest(c *gin.Context, msg string, err error) {
	h.logger.Warn(msg, zap.Error(err))
	c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   "invalid_request",
		Message: err.Error(),
	})
}

// fail writes the response for an error of one of the models error kinds.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: verr.Error(),
		})
	case errors.Is(err, models.ErrPermission):
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Error:   "forbidden",
			Message: "not allowed to " + op,
		})
	case errors.Is(err, models.ErrImageNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "image not found",
		})
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Error:   "not_found",
			Message: "annotation not found",
		})
	default:
		h.logger.Error("Failed to "+op, zap.Error(err), zap.String("request_id", middleware.GetRequestID(c)))
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "internal_error",
			Message: "failed to " + op,
		})
	}
}

func overlayDimension(query string, fallback int) float64 {
	if v, err := strconv.ParseFloat(query, 64); err == nil && v > 0 && !math.IsInf(v, 0) {
		return v
	}
	if fallback > 0 {
		return float64(fallback)
	}
	return defaultOverlaySize
}
