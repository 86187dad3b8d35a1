// Package authz carries the caller identity resolved by the API layer.
// Role and approval flags come from the auth token; nothing here reads
// the database.
package authz

import "fmt"

const RoleAdmin = "admin"

// Principal is the authenticated caller.
type Principal struct {
	UserID   string
	Roles    []string
	Approved bool
}

func (p Principal) IsAdmin() bool {
	for _, r := range p.Roles {
		if r == RoleAdmin {
			return true
		}
	}
	return false
}

// CanEnroll reports whether the caller may create enrollments.
func (p Principal) CanEnroll() bool {
	return p.Approved || p.IsAdmin()
}

// ForbiddenError maps to 403 at the API layer.
type ForbiddenError struct {
	Msg string
}

func (e ForbiddenError) Error() string { return e.Msg }

func Forbiddenf(format string, args ...any) error {
	return ForbiddenError{Msg: fmt.Sprintf(format, args...)}
}
