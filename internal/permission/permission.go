// Package permission decides which annotation and image mutations an actor
// may perform. Decisions are pure and re-evaluated on every call.
package permission

import "github.com/image-annotator/backend/internal/models"

// Action names a guarded operation.
type Action string

const (
	CreateAnnotation Action = "create:annotation"
	UpdateAnnotation Action = "update:annotation"
	DeleteAnnotation Action = "delete:annotation"
	UpdateImage      Action = "update:image"
)

// Resource carries the ownership facts a decision depends on: the author
// of an annotation, or the owner of an image.
type Resource struct {
	UserID  string
	OwnerID string
}

// ForAnnotation describes an annotation as a resource.
func ForAnnotation(a models.Annotation) Resource {
	return Resource{UserID: a.UserID}
}

// ForImage describes an image as a resource.
func ForImage(img models.Image) Resource {
	return Resource{OwnerID: img.OwnerID}
}

// CanPerform reports whether actor may perform action on resource.
// Rules are checked in order and the first match wins.
func CanPerform(actor *models.Actor, action Action, resource Resource) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin() {
		return true
	}

	switch action {
	case CreateAnnotation:
		return true
	case UpdateAnnotation, DeleteAnnotation:
		return resource.UserID != "" && actor.ID == resource.UserID
	case UpdateImage:
		return resource.OwnerID != "" && actor.ID == resource.OwnerID
	default:
		return false
	}
}

// CanView reports whether actor may read the annotations of img. Private
// images are visible to their owner and to admins only.
func CanView(actor *models.Actor, img models.Image) bool {
	if img.IsPublic || actor.IsAdmin() {
		return true
	}
	return actor != nil && actor.ID == img.OwnerID
}

// Resolver adapts CanPerform to an interface so callers can substitute
// their own policy in tests.
type Resolver interface {
	CanPerform(actor *models.Actor, action Action, resource Resource) bool
}

// Default is the rule set above.
type Default struct{}

// CanPerform implements Resolver.
func (Default) CanPerform(actor *models.Actor, action Action, resource Resource) bool {
	return CanPerform(actor, action, resource)
}
