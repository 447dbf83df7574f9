package domain

import "time"

// MemberRole is a display label only. It carries no authorization
// meaning; IsProxy is the single permission gate.
type MemberRole string

const (
	RoleParent MemberRole = "parent"
	RoleChild  MemberRole = "child"
)

// ValidRole reports whether r is a known role.
func ValidRole(r MemberRole) bool {
	return r == RoleParent || r == RoleChild
}

// FamilyMember is one person in a family group. A member may always
// toggle their own attendance; mutating another member's attendance
// requires IsProxy.
type FamilyMember struct {
	ID        string     `json:"id" db:"id"`
	FamilyID  string     `json:"family_id" db:"family_id"`
	Name      string     `json:"name" db:"name"`
	Role      MemberRole `json:"role" db:"role"`
	IsProxy   bool       `json:"is_proxy" db:"is_proxy"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
}

// AddMemberRequest is the request body for adding a family member.
type AddMemberRequest struct {
	Name    string     `json:"name"`
	Role    MemberRole `json:"role"`
	IsProxy bool       `json:"is_proxy"`
}

// UpdateMemberRequest is the request body for a full-record member
// overwrite, used both for profile edits and permission toggles.
type UpdateMemberRequest struct {
	Name    string     `json:"name"`
	Role    MemberRole `json:"role"`
	IsProxy bool       `json:"is_proxy"`
}
