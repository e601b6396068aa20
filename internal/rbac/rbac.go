// Package rbac defines the board's roles and what each may do.
package rbac

type Role string
type Action string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

const (
	// ActionBrowse covers reading posts and comments inside the window.
	ActionBrowse Action = "browse"
	// ActionWrite covers posting, commenting, reacting and reporting.
	ActionWrite Action = "write"
	// ActionModerate covers report review and removing others' content.
	ActionModerate Action = "moderate"
	// ActionAdmin covers the shared dev-mode override and stats.
	ActionAdmin Action = "admin"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleModerator:
		return action == ActionBrowse || action == ActionWrite || action == ActionModerate
	case RoleMember:
		return action == ActionBrowse || action == ActionWrite
	default:
		return false
	}
}

// BypassesWindow reports whether the role may use the board outside
// the open window.
func BypassesWindow(role Role) bool {
	return role == RoleModerator || role == RoleAdmin
}

func Normalize(role string) Role {
	switch Role(role) {
	case RoleMember, RoleModerator, RoleAdmin:
		return Role(role)
	default:
		return RoleMember
	}
}
