package domain

import "time"

// GroupSettings holds per-group joining policy.
type GroupSettings struct {
	AllowGuestJoin  bool `json:"allow_guest_join"`
	RequireApproval bool `json:"require_approval"`
}

// FamilyGroup is the tenant boundary for all attendance data. Devices
// discover a group through its join code, which is unique across the
// registry.
type FamilyGroup struct {
	ID          string        `json:"id" db:"id"`
	Name        string        `json:"name" db:"name"`
	JoinCode    string        `json:"join_code" db:"join_code"`
	CreatedBy   string        `json:"created_by" db:"created_by"`
	CreatedAt   time.Time     `json:"created_at" db:"created_at"`
	MemberCount int           `json:"member_count" db:"member_count"`
	Settings    GroupSettings `json:"settings" db:"-"`
}

// JoinRequestStatus is the lifecycle state of a join request.
type JoinRequestStatus string

const (
	JoinRequestPending  JoinRequestStatus = "pending"
	JoinRequestApproved JoinRequestStatus = "approved"
	JoinRequestRejected JoinRequestStatus = "rejected"
)

// JoinRequest is a pending membership request for a group with
// require_approval enabled.
type JoinRequest struct {
	ID            string            `json:"id" db:"id"`
	GroupID       string            `json:"group_id" db:"group_id"`
	RequesterName string            `json:"requester_name" db:"requester_name"`
	RequesterID   string            `json:"requester_id" db:"requester_id"`
	Status        JoinRequestStatus `json:"status" db:"status"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
	RespondedAt   *time.Time        `json:"responded_at,omitempty" db:"responded_at"`
}

// CreateGroupRequest is the request body for creating a family group.
// The creator becomes the group's first member.
type CreateGroupRequest struct {
	Name        string        `json:"name"`
	CreatorName string        `json:"creator_name"`
	CreatorRole MemberRole    `json:"creator_role"`
	Settings    GroupSettings `json:"settings"`
}

// UpdateGroupSettingsRequest is the request body for updating group settings.
type UpdateGroupSettingsRequest struct {
	Settings GroupSettings `json:"settings"`
}

// JoinGroupRequest is the request body for joining a group by code.
type JoinGroupRequest struct {
	Code string     `json:"code"`
	Name string     `json:"name"`
	Role MemberRole `json:"role"`
}

// RespondJoinRequest is the request body for approving or rejecting a
// join request.
type RespondJoinRequest struct {
	Approved bool `json:"approved"`
}
