package permission

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/image-annotator/backend/internal/models"
)

func TestCanPerform_Matrix(t *testing.T) {
	admin := &models.Actor{ID: "1", Role: models.RoleAdmin}
	user := &models.Actor{ID: "3", Role: models.RoleUser}

	own := ForAnnotation(models.Annotation{UserID: "3"})
	other := ForAnnotation(models.Annotation{UserID: "9"})

	cases := []struct {
		name     string
		action   Action
		resource Resource
	}{
		{"create", CreateAnnotation, Resource{}},
		{"update-own", UpdateAnnotation, own},
		{"update-other", UpdateAnnotation, other},
		{"delete-other", DeleteAnnotation, other},
	}

	adminExpected := []bool{true, true, true, true}
	userExpected := []bool{true, true, false, false}

	for i, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, adminExpected[i], CanPerform(admin, c.action, c.resource), "admin")
			assert.Equal(t, userExpected[i], CanPerform(user, c.action, c.resource), "user")
		})
	}
}

func TestCanPerform_Anonymous(t *testing.T) {
	for _, action := range []Action{CreateAnnotation, UpdateAnnotation, DeleteAnnotation, UpdateImage, "read:anything"} {
		assert.False(t, CanPerform(nil, action, Resource{UserID: "", OwnerID: ""}), string(action))
	}
}

func TestCanPerform_Image(t *testing.T) {
	owner := &models.Actor{ID: "5", Role: models.RoleUser}
	stranger := &models.Actor{ID: "6", Role: models.RoleUser}
	img := ForImage(models.Image{ID: "7", OwnerID: "5"})

	assert.True(t, CanPerform(owner, UpdateImage, img))
	assert.False(t, CanPerform(stranger, UpdateImage, img))
	assert.False(t, CanPerform(owner, UpdateAnnotation, img), "image ownership does not grant annotation edits")
}

func TestCanPerform_UnknownAction(t *testing.T) {
	user := &models.Actor{ID: "3", Role: models.RoleUser}
	admin := &models.Actor{ID: "1", Role: models.RoleAdmin}

	assert.False(t, CanPerform(user, "delete:image", Resource{OwnerID: "3"}))
	assert.True(t, CanPerform(admin, "delete:image", Resource{}))
}

func TestCanPerform_EmptyAuthorNeverMatches(t *testing.T) {
	blank := &models.Actor{ID: "", Role: models.RoleUser}
	assert.False(t, CanPerform(blank, UpdateAnnotation, Resource{}))
}

func TestCanView(t *testing.T) {
	private := models.Image{ID: "7", OwnerID: "5", IsPublic: false}
	public := models.Image{ID: "8", OwnerID: "5", IsPublic: true}

	assert.True(t, CanView(nil, public))
	assert.False(t, CanView(nil, private))
	assert.True(t, CanView(&models.Actor{ID: "5"}, private))
	assert.False(t, CanView(&models.Actor{ID: "6"}, private))
	assert.True(t, CanView(&models.Actor{ID: "6", Role: models.RoleAdmin}, private))
}

func TestDefaultResolver(t *testing.T) {
	var r Resolver = Default{}
	assert.True(t, r.CanPerform(&models.Actor{ID: "3"}, CreateAnnotation, Resource{}))
}
