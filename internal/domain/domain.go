// Package domain holds the types shared by every feature package. It has no dependencies.
package domain

import "errors"

// ErrForbidden the actor lacks the capability required by the operation
var ErrForbidden = errors.New("operation not permitted for this role")

// Role capability carried by every caller
type Role string

// roles
const (
	RoleLearner Role = "learner"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleLearner || r == RoleAdmin
}

// Actor the authenticated caller of an operation
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin .
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// RequireAdmin returns ErrForbidden unless the actor is an admin
func (a Actor) RequireAdmin() error {
	if a.IsAdmin() {
		return nil
	}
	return ErrForbidden
}
