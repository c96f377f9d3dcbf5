// Package store holds the annotation collection for one image's editing
// session and keeps it consistent with the persistence backend.
//
// Every mutation is confirmation-first: the local collection changes only
// after the backend accepts the write, so a failed request never leaves a
// placeholder behind. Concurrent mutations of the same id are not
// serialized; whichever response arrives last is what the collection holds.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/image-annotator/backend/internal/models"
	"github.com/image-annotator/backend/internal/permission"
)

// Backend is the persistence boundary the store talks to.
type Backend interface {
	// Fetch returns the annotations of an image visible to the caller, in
	// creation order.
	Fetch(ctx context.Context, imageID string) ([]models.Annotation, error)

	// Create persists a new annotation and returns the stored record.
	Create(ctx context.Context, req models.CreateAnnotationRequest) (*models.Annotation, error)

	// Update applies a partial update and returns the full stored record.
	Update(ctx context.Context, id string, req models.UpdateAnnotationRequest) (*models.Annotation, error)

	// Delete removes an annotation.
	Delete(ctx context.Context, id string) error
}

// Notifier receives every error the store surfaces to the user.
type Notifier interface {
	Notify(err error)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(err error)

// Notify implements Notifier.
func (f NotifierFunc) Notify(err error) {
	f(err)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithNotifier sets where surfaced errors are reported.
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		s.notify = n
	}
}

// WithResolver replaces the permission rules consulted before mutations.
func WithResolver(r permission.Resolver) Option {
	return func(s *Store) {
		if r != nil {
			s.resolver = r
		}
	}
}

// Store is the ordered annotation collection for one image.
type Store struct {
	backend  Backend
	resolver permission.Resolver
	logger   *zap.Logger
	notify   Notifier

	mu       sync.RWMutex
	image    models.Image
	actor    *models.Actor
	items    []models.Annotation
	selected string
}

// New creates a store for image, acting as actor (nil for anonymous).
func New(backend Backend, image models.Image, actor *models.Actor, opts ...Option) *Store {
	s := &Store{
		backend:  backend,
		resolver: permission.Default{},
		logger:   zap.NewNop(),
		image:    image,
		actor:    actor,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("image_id", image.ID))
	return s
}

// Image returns the image this store belongs to.
func (s *Store) Image() models.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.image
}

// Actor returns the current actor, or nil when anonymous.
func (s *Store) Actor() *models.Actor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.actor
}

// SetActor replaces the current actor. Hosts call it whenever the resolved
// identity changes.
func (s *Store) SetActor(actor *models.Actor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actor = actor
}

// Load replaces the local collection with the backend's current state.
func (s *Store) Load(ctx context.Context) error {
	items, err := s.backend.Fetch(ctx, s.image.ID)
	if err != nil {
		return s.fail("load", classify(err))
	}

	s.mu.Lock()
	s.items = make([]models.Annotation, 0, len(items))
	for _, a := range items {
		s.items = append(s.items, clone(a))
	}
	if s.indexOf(s.selected) < 0 {
		s.selected = ""
	}
	s.mu.Unlock()

	s.logger.Debug("Loaded annotations", zap.Int("count", len(items)))
	return nil
}

// List returns the known annotations in fetch/creation order.
func (s *Store) List() []models.Annotation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Annotation, len(s.items))
	for i, a := range s.items {
		out[i] = clone(a)
	}
	return out
}

// Get returns the annotation with id, if known.
func (s *Store) Get(id string) (models.Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(id)
	if i < 0 {
		return models.Annotation{}, false
	}
	return clone(s.items[i]), true
}

// Create validates req, persists it and appends the stored record.
// An empty ImageID is filled with the store's image.
func (s *Store) Create(ctx context.Context, req models.CreateAnnotationRequest) (*models.Annotation, error) {
	image := s.Image()
	if req.ImageID == "" {
		req.ImageID = image.ID
	}
	if req.ImageID != image.ID {
		return nil, s.fail("create", &models.ValidationError{Field: "image_id", Message: "does not match the annotated image"})
	}
	if err := req.Validate(); err != nil {
		return nil, s.fail("create", err)
	}
	if !s.Can(permission.CreateAnnotation, models.Annotation{}) {
		return nil, s.fail("create", fmt.Errorf("%w: %s", models.ErrPermission, permission.CreateAnnotation))
	}

	created, err := s.backend.Create(ctx, req)
	if err != nil {
		return nil, s.fail("create", classify(err))
	}

	s.mu.Lock()
	s.items = append(s.items, clone(*created))
	s.mu.Unlock()

	s.logger.Info("Created annotation", zap.String("id", created.ID), zap.String("type", string(created.Type)))
	out := clone(*created)
	return &out, nil
}

// Update sends a partial update for id and replaces the local record with
// the stored result.
func (s *Store) Update(ctx context.Context, id string, req models.UpdateAnnotationRequest) (*models.Annotation, error) {
	current, ok := s.Get(id)
	if !ok {
		return nil, s.fail("update", fmt.Errorf("%w: %s", models.ErrNotFound, id))
	}
	if !s.Can(permission.UpdateAnnotation, current) {
		return nil, s.fail("update", fmt.Errorf("%w: %s", models.ErrPermission, permission.UpdateAnnotation))
	}
	if err := req.Validate(); err != nil {
		return nil, s.fail("update", err)
	}
	if err := req.Apply(current).Validate(); err != nil {
		return nil, s.fail("update", err)
	}
	if req.Empty() {
		return &current, nil
	}

	updated, err := s.backend.Update(ctx, id, req)
	if err != nil {
		err = classify(err)
		if errors.Is(err, models.ErrNotFound) {
			s.remove(id)
		}
		return nil, s.fail("update", err)
	}

	s.mu.Lock()
	if i := s.indexOf(id); i >= 0 {
		s.items[i] = clone(*updated)
	}
	s.mu.Unlock()

	s.logger.Info("Updated annotation", zap.String("id", id))
	out := clone(*updated)
	return &out, nil
}

// Delete removes id from the backend and then from the local collection.
// Deleting the selected annotation clears the selection.
func (s *Store) Delete(ctx context.Context, id string) error {
	current, ok := s.Get(id)
	if !ok {
		return s.fail("delete", fmt.Errorf("%w: %s", models.ErrNotFound, id))
	}
	if !s.Can(permission.DeleteAnnotation, current) {
		return s.fail("delete", fmt.Errorf("%w: %s", models.ErrPermission, permission.DeleteAnnotation))
	}

	if err := s.backend.Delete(ctx, id); err != nil {
		err = classify(err)
		if errors.Is(err, models.ErrNotFound) {
			s.remove(id)
		}
		return s.fail("delete", err)
	}

	s.remove(id)
	s.logger.Info("Deleted annotation", zap.String("id", id))
	return nil
}

// ToggleVisibility flips the hidden flag of id. An unknown id is ignored,
// since it was most likely deleted by someone else since the last render.
func (s *Store) ToggleVisibility(ctx context.Context, id string) error {
	current, ok := s.Get(id)
	if !ok {
		s.logger.Debug("Ignoring visibility toggle for unknown annotation", zap.String("id", id))
		return nil
	}

	_, err := s.Update(ctx, id, models.UpdateAnnotationRequest{IsHidden: models.Bool(!current.IsHidden)})
	return err
}

// Select marks id as the selected annotation. Unknown ids clear the selection.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(id) < 0 {
		s.selected = ""
		return false
	}
	s.selected = id
	return true
}

// ClearSelection deselects any annotation.
func (s *Store) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = ""
}

// Selected returns the selected annotation, if any.
func (s *Store) Selected() (models.Annotation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.indexOf(s.selected)
	if i < 0 {
		return models.Annotation{}, false
	}
	return clone(s.items[i]), true
}

// Can reports whether the current actor may perform action on a.
// Hosts use it to decide which controls to show.
func (s *Store) Can(action permission.Action, a models.Annotation) bool {
	return s.resolver.CanPerform(s.Actor(), action, permission.ForAnnotation(a))
}

func (s *Store) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexOf(id)
	if i < 0 {
		return
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	if s.selected == id {
		s.selected = ""
	}
}

// indexOf must be called with mu held.
func (s *Store) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.items {
		if s.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) fail(op string, err error) error {
	s.logger.Warn("Annotation operation failed", zap.String("op", op), zap.Error(err))
	if s.notify != nil {
		s.notify.Notify(err)
	}
	return err
}

// classify maps backend failures onto the error kinds in models. Anything
// not already classified is a transport failure.
func classify(err error) error {
	for _, kind := range []error{models.ErrValidation, models.ErrPermission, models.ErrNotFound, models.ErrImageNotFound, models.ErrTransport} {
		if errors.Is(err, kind) {
			return err
		}
	}
	return fmt.Errorf("%w: %w", models.ErrTransport, err)
}

func clone(a models.Annotation) models.Annotation {
	if a.EndX != nil {
		a.EndX = models.Float(*a.EndX)
	}
	if a.EndY != nil {
		a.EndY = models.Float(*a.EndY)
	}
	return a
}
