package githubapi

import (
	"slices"
	"strings"
)

// RepositoryPermission is a team's access level on a repository.
type RepositoryPermission string

// Supported repository permissions.
const (
	PermissionPull     RepositoryPermission = "pull"
	PermissionPush     RepositoryPermission = "push"
	PermissionAdmin    RepositoryPermission = "admin"
	PermissionMaintain RepositoryPermission = "maintain"
	PermissionTriage   RepositoryPermission = "triage"
)

// RepositoryPermissions lists every supported permission.
func RepositoryPermissions() []RepositoryPermission {
	return []RepositoryPermission{PermissionPull, PermissionPush, PermissionAdmin, PermissionMaintain, PermissionTriage}
}

// IsValid reports whether the permission is accepted by the target platform.
func (permission RepositoryPermission) IsValid() bool {
	return slices.Contains(RepositoryPermissions(), RepositoryPermission(strings.ToLower(string(permission))))
}

// TeamRole is a member's role inside a team.
type TeamRole string

// Supported team roles.
const (
	TeamRoleMember     TeamRole = "member"
	TeamRoleMaintainer TeamRole = "maintainer"
)

// MembershipState is the live state of a team membership.
type MembershipState string

// Membership states. MembershipAbsent means no membership exists.
const (
	MembershipActive  MembershipState = "active"
	MembershipPending MembershipState = "pending"
	MembershipAbsent  MembershipState = "absent"
)

// RepositoryState describes a target repository as observed on the platform.
type RepositoryState struct {
	Exists        bool
	Empty         bool
	DefaultBranch string
	URL           string
	CloneURL      string
}

// CreateRepositoryResult reports the outcome of CreateRepository.
type CreateRepositoryResult struct {
	Repository     RepositoryState
	AlreadyExisted bool
}

// TeamState describes a target team as observed on the platform.
type TeamState struct {
	Exists bool
	ID     int64
	Slug   string
	URL    string
}

// CreateTeamResult reports the outcome of CreateTeam.
type CreateTeamResult struct {
	Team           TeamState
	AlreadyExisted bool
}

// SSOIdentity links a federated identity to an organization login.
type SSOIdentity struct {
	NameID string
	Login  string
}
