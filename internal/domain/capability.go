package domain

// =====================================================
// Capability Engine
// =====================================================
// Pure lookup from (role tier, subject, action) to allow/deny.
// No I/O, no dynamic rule registration: the policy is a static table
// and grants are recomputed per request and per space boundary crossed.

// CapabilityAction is an operation a member may attempt on a subject.
type CapabilityAction string

const (
	ActionRead   CapabilityAction = "read"
	ActionCreate CapabilityAction = "create"
	ActionEdit   CapabilityAction = "edit"
	ActionManage CapabilityAction = "manage"
	ActionDelete CapabilityAction = "delete"
)

// CapabilitySubject is the kind of resource an action targets.
type CapabilitySubject string

const (
	SubjectSpace  CapabilitySubject = "space"
	SubjectPage   CapabilitySubject = "page"
	SubjectMember CapabilitySubject = "member"
)

// minimumTier is the policy table: the lowest role tier allowed to perform
// (action, subject). A missing entry denies regardless of tier.
//
// | subject | read | create | edit | manage | delete |
// |---------|------|--------|------|--------|--------|
// | page    | 1    | 2      | 2    | 3      | 3      |
// | space   | 1    | 4      | 3    | 4      | 4      |
// | member  | 2    | 3      | 3    | 3      | 3      |
var minimumTier = map[CapabilitySubject]map[CapabilityAction]int{
	SubjectPage: {
		ActionRead:   SpaceRoleGuest.Tier(),
		ActionCreate: SpaceRoleMember.Tier(),
		ActionEdit:   SpaceRoleMember.Tier(),
		ActionManage: SpaceRoleAdmin.Tier(),
		ActionDelete: SpaceRoleAdmin.Tier(),
	},
	SubjectSpace: {
		ActionRead:   SpaceRoleGuest.Tier(),
		ActionCreate: SpaceRoleOwner.Tier(),
		ActionEdit:   SpaceRoleAdmin.Tier(),
		ActionManage: SpaceRoleOwner.Tier(),
		ActionDelete: SpaceRoleOwner.Tier(),
	},
	SubjectMember: {
		ActionRead:   SpaceRoleMember.Tier(),
		ActionCreate: SpaceRoleAdmin.Tier(),
		ActionEdit:   SpaceRoleAdmin.Tier(),
		ActionManage: SpaceRoleAdmin.Tier(),
		ActionDelete: SpaceRoleAdmin.Tier(),
	},
}

// CapabilityGrant is the per-request computed set of allowed (action, subject)
// pairs for one user in one space. It has no persisted identity and must not
// be cached across mutations that might change membership.
type CapabilityGrant struct {
	tier int
}

// Can reports whether the grant's role tier dominates the minimum tier
// required for (action, subject).
func (g CapabilityGrant) Can(action CapabilityAction, subject CapabilitySubject) bool {
	actions, ok := minimumTier[subject]
	if !ok {
		return false
	}
	min, ok := actions[action]
	if !ok {
		return false
	}
	return g.tier >= min
}

// Cannot is the negation of Can, mirroring how call sites read at the
// authorization boundary.
func (g CapabilityGrant) Cannot(action CapabilityAction, subject CapabilitySubject) bool {
	return !g.Can(action, subject)
}

// GrantFor computes the capability grant for a role. Deterministic and pure:
// the same role always yields the same grant. An invalid role yields the
// deny-everything grant (tier 0).
func GrantFor(role SpaceRole) CapabilityGrant {
	return CapabilityGrant{tier: role.Tier()}
}

// NoGrant is the grant for a user with no membership in the space.
// It denies every (action, subject) pair in the current policy table.
func NoGrant() CapabilityGrant {
	return CapabilityGrant{tier: 0}
}
