package models

import "time"

// Image is the annotated image as seen by the annotation core: its identity,
// owner, visibility and display URL.
type Image struct {
	ID        string    `json:"id" db:"id"`
	OwnerID   string    `json:"owner_id" db:"owner_id"`
	Title     string    `json:"title" db:"title"`
	URL       string    `json:"url" db:"url"`
	ObjectKey string    `json:"-" db:"object_key"`
	IsPublic  bool      `json:"is_public" db:"is_public"`
	Width     int       `json:"width" db:"width"`
	Height    int       `json:"height" db:"height"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UpdateImageRequest represents a partial update of image metadata.
type UpdateImageRequest struct {
	Title    *string `json:"title,omitempty" binding:"omitempty,max=200"`
	IsPublic *bool   `json:"is_public,omitempty"`
}

// Apply returns a copy of img with the requested fields replaced.
func (r UpdateImageRequest) Apply(img Image) Image {
	if r.Title != nil {
		img.Title = *r.Title
	}
	if r.IsPublic != nil {
		img.IsPublic = *r.IsPublic
	}
	return img
}

// ImageResponse wraps a single image in the API response.
type ImageResponse struct {
	Data Image `json:"data"`
}
