package models

// Role is the access role assigned to a user by the auth layer.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAdmin Role = "ADMIN"
)

// Actor is the resolved identity performing an action. A nil *Actor is an
// anonymous visitor.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor holds the admin role.
func (a *Actor) IsAdmin() bool {
	return a != nil && a.Role == RoleAdmin
}
