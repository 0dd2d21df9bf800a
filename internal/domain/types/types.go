// Package types contains the caller identity shared across the application.
package types

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned by ParseRole for values outside the Role enum.
var ErrUnknownRole = errors.New("unknown role")

// Role is the caller's role as resolved by the identity provider.
type Role string

// Roles.
const (
	RoleResident Role = "resident"
	RoleTeacher  Role = "teacher"
	RoleAdmin    Role = "admin"
)

// ParseRole converts a raw header or claim value into a Role.
func ParseRole(raw string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(raw))); r {
	case RoleResident, RoleTeacher, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, raw)
	}
}

// Actor is the authenticated caller of an operation.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the actor holds the admin role.
func (a Actor) IsAdmin() bool { return a.Role == RoleAdmin }

// IsResident reports whether the actor is the resident identified by id.
func (a Actor) IsResident(id string) bool {
	return a.Role == RoleResident && a.ID != "" && a.ID == id
}

// IsTeacher reports whether the actor is the teacher identified by id.
func (a Actor) IsTeacher(id string) bool {
	return a.Role == RoleTeacher && a.ID != "" && a.ID == id
}
