package domain

import "fmt"

// Role is the capability level of an authenticated caller.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// ParseRole accepts the role names issued by the identity provider.
func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RoleUser, RoleModerator, RoleAdmin:
		return Role(raw), nil
	case "":
		return RoleUser, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Privileged reports whether the role may act on sessions owned by other users.
func (r Role) Privileged() bool {
	return r == RoleModerator || r == RoleAdmin
}

// Identity is the authenticated caller.
type Identity struct {
	UserID int64
	Role   Role
}

// CanReadSession allows owners and privileged callers.
func (id Identity) CanReadSession(s QuizSession) bool {
	return id.Role.Privileged() || (s.UserID != 0 && s.UserID == id.UserID)
}

// CanWriteSession allows owners and privileged callers.
func (id Identity) CanWriteSession(s QuizSession) bool {
	return id.Role.Privileged() || (s.UserID != 0 && s.UserID == id.UserID)
}

// CanSeeCorrectness controls whether answer correctness flags are exposed.
func (id Identity) CanSeeCorrectness() bool {
	return id.Role.Privileged()
}
