package domain

import (
	"time"
)

// =====================================================
// Space Role Constants (Type Safety)
// =====================================================

// SpaceRole represents a member's role inside a space (canonical identifier from DB).
// Roles form an ordered capability tier: owner > admin > member > guest.
type SpaceRole string

const (
	// SpaceRoleOwner has full control including space settings and deletion
	SpaceRoleOwner SpaceRole = "space_owner"

	// SpaceRoleAdmin can manage pages (trash/restore/permanent delete) and members
	SpaceRoleAdmin SpaceRole = "space_admin"

	// SpaceRoleMember can create and edit pages but not manage them
	SpaceRoleMember SpaceRole = "space_member"

	// SpaceRoleGuest has read-only access to the space's pages
	SpaceRoleGuest SpaceRole = "space_guest"
)

// String returns the string representation of the SpaceRole
func (r SpaceRole) String() string {
	return string(r)
}

// IsValid checks if the role is one of the defined constants
func (r SpaceRole) IsValid() bool {
	switch r {
	case SpaceRoleOwner, SpaceRoleAdmin, SpaceRoleMember, SpaceRoleGuest:
		return true
	default:
		return false
	}
}

// Tier returns the ordered capability tier for the role.
// Higher tiers are strict supersets of lower tiers for the same subject.
// Unknown or absent roles map to tier 0 (deny everything a guest policy
// does not explicitly allow).
func (r SpaceRole) Tier() int {
	switch r {
	case SpaceRoleOwner:
		return 4
	case SpaceRoleAdmin:
		return 3
	case SpaceRoleMember:
		return 2
	case SpaceRoleGuest:
		return 1
	default:
		return 0
	}
}

// =====================================================
// Space Entity (DB Model)
// =====================================================

// Space is the authorization and containment scope holding a tree of pages
// and a membership/role list. Pages never reference pages outside their space.
type Space struct {
	ID          string     `json:"id" db:"id"`
	WorkspaceID string     `json:"workspaceId" db:"workspace_id"`
	Name        string     `json:"name" db:"name"`
	Slug        string     `json:"slug" db:"slug"`
	Description *string    `json:"description,omitempty" db:"description"`
	CreatorID   *string    `json:"creatorId,omitempty" db:"creator_id"`
	CreatedAt   time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time  `json:"updatedAt" db:"updated_at"`
	DeletedAt   *time.Time `json:"deletedAt,omitempty" db:"deleted_at"`
}

// =====================================================
// Space Member Entity (DB Model)
// =====================================================

// SpaceMember maps a user to a space with their assigned role.
// The role recorded here is the sole input to the capability engine.
type SpaceMember struct {
	UserID  string    `json:"userId" db:"user_id"`
	SpaceID string    `json:"spaceId" db:"space_id"`
	Role    SpaceRole `json:"role" db:"role"`

	InvitedBy *string   `json:"invitedBy,omitempty" db:"invited_by"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time `json:"updatedAt" db:"updated_at"`
}
