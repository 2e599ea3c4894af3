package household

// Feature names a household feature module and its record collection
type Feature string

const (
	FeatureNotes        Feature = "notes"
	FeatureAppreciation Feature = "appreciation"
	FeatureChores       Feature = "chores"
	FeatureNannyInfo    Feature = "nanny_info"
	FeatureBills        Feature = "bills"
	FeatureTasks        Feature = "tasks"
	FeatureGoals        Feature = "goals"
	FeatureMentalLoad   Feature = "mental_load"
)

func (f Feature) String() string {
	return string(f)
}

// Action is a record mutation checked by CanMutate
type Action string

const (
	ActionEdit         Action = "edit"
	ActionDelete       Action = "delete"
	ActionToggleStatus Action = "toggle_status"
	ActionReact        Action = "react"
	ActionReply        Action = "reply"
)

// AnyoneRecipient is the wildcard recipient that addresses every member
const AnyoneRecipient = "anyone"

// Recipient is the member a record is addressed or assigned to
type Recipient struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Anyone bool   `json:"anyone,omitempty"`
}

// IsZero reports whether the record has no recipient
func (r Recipient) IsZero() bool {
	return r.ID == "" && r.Name == "" && !r.Anyone
}

// ShareableRecord is the access view of any household record. Sub records,
// hearts and replies, carry the identifier of their parent.
type ShareableRecord struct {
	ID          string    `json:"id"`
	Feature     Feature   `json:"feature"`
	HouseholdID string    `json:"household_id"`
	CreatorID   string    `json:"creator_id"`
	CreatorName string    `json:"creator_name,omitempty"`
	CreatorRole Role      `json:"creator_role,omitempty"`
	Recipient   Recipient `json:"recipient,omitempty"`
	// Visibility lists the roles allowed to see the record. Nil means the
	// feature default.
	Visibility RoleSet `json:"visibility,omitempty"`
	ParentID   string  `json:"parent_id,omitempty"`
}

// IsSubRecord reports whether the record is a reaction or reply
func (r ShareableRecord) IsSubRecord() bool {
	return r.ParentID != ""
}

// Actor is the viewer a record decision is made for
type Actor struct {
	ID          string
	Name        string
	Role        Role
	HouseholdID string
}

// ActorFromProfile builds the actor for a hydrated profile. Profiles without
// a household have no actor.
func ActorFromProfile(p *UserProfile) (Actor, bool) {
	if p == nil || p.HouseholdID == "" {
		return Actor{}, false
	}
	return Actor{
		ID:          p.ID,
		Name:        p.Name,
		Role:        p.Role,
		HouseholdID: p.HouseholdID,
	}, true
}

// FeatureRule holds the per feature access configuration
type FeatureRule struct {
	// Roles may enter the feature and see records it admits
	Roles RoleSet
	// CreateRoles may create new records
	CreateRoles RoleSet
	// FamilyAdmin gives the family role blanket visibility and mutation
	FamilyAdmin bool
	// HouseholdWide makes every record visible to Roles
	HouseholdWide bool
	// HonorVisibility admits roles listed in the record visibility set
	HonorVisibility bool
	// RecipientScoped admits the recipient and, for "anyone", every role
	RecipientScoped bool
	// MemberMutations lists actions any admitted member may perform
	MemberMutations []Action
	// AssigneeActions lists actions the recipient may perform
	AssigneeActions []Action
	// ReactRoles may add hearts and replies
	ReactRoles RoleSet
	// CreatorOnlyDelete restricts deletion to the creator, family included
	CreatorOnlyDelete bool
}

func (r FeatureRule) allowsMember(action Action) bool {
	return containsAction(r.MemberMutations, action)
}

func (r FeatureRule) allowsAssignee(action Action) bool {
	return containsAction(r.AssigneeActions, action)
}

func containsAction(actions []Action, action Action) bool {
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

// DefaultFeatureRules returns the household rule set
func DefaultFeatureRules() map[Feature]FeatureRule {
	return map[Feature]FeatureRule{
		FeatureNotes: {
			Roles:           NewRoleSet(RoleFamily, RoleRoommate, RoleNanny, RoleChild),
			CreateRoles:     NewRoleSet(RoleFamily, RoleRoommate, RoleNanny, RoleChild),
			FamilyAdmin:     true,
			HonorVisibility: true,
		},
		FeatureAppreciation: {
			Roles:           NewRoleSet(RoleFamily, RoleChild),
			CreateRoles:     NewRoleSet(RoleFamily, RoleChild),
			FamilyAdmin:     true,
			RecipientScoped: true,
			ReactRoles:      NewRoleSet(RoleFamily, RoleRoommate, RoleNanny),
		},
		FeatureChores: {
			Roles:           NewRoleSet(RoleFamily, RoleChild),
			CreateRoles:     NewRoleSet(RoleFamily),
			FamilyAdmin:     true,
			RecipientScoped: true,
			AssigneeActions: []Action{ActionToggleStatus},
		},
		FeatureNannyInfo: {
			Roles:         NewRoleSet(RoleFamily, RoleNanny),
			CreateRoles:   NewRoleSet(RoleFamily),
			FamilyAdmin:   true,
			HouseholdWide: true,
		},
		FeatureBills: {
			Roles:           NewRoleSet(RoleFamily, RoleRoommate),
			CreateRoles:     NewRoleSet(RoleFamily, RoleRoommate),
			FamilyAdmin:     true,
			HouseholdWide:   true,
			MemberMutations: []Action{ActionEdit, ActionDelete, ActionToggleStatus},
		},
		FeatureTasks: {
			Roles:           NewRoleSet(RoleFamily, RoleRoommate),
			CreateRoles:     NewRoleSet(RoleFamily, RoleRoommate),
			FamilyAdmin:     true,
			HouseholdWide:   true,
			MemberMutations: []Action{ActionEdit, ActionDelete, ActionToggleStatus},
		},
		FeatureGoals: {
			Roles:         NewRoleSet(RoleFamily),
			CreateRoles:   NewRoleSet(RoleFamily),
			FamilyAdmin:   true,
			HouseholdWide: true,
		},
		FeatureMentalLoad: {
			Roles:         NewRoleSet(RoleFamily),
			CreateRoles:   NewRoleSet(RoleFamily),
			FamilyAdmin:   true,
			HouseholdWide: true,
		},
	}
}

// familyAliases are recipient names that address the family role
var familyAliases = map[string]struct{}{
	"mom":          {},
	"dad":          {},
	"grandparents": {},
	"family":       {},
}

// Features lists every feature in display order
func Features() []Feature {
	return []Feature{
		FeatureNotes,
		FeatureAppreciation,
		FeatureChores,
		FeatureNannyInfo,
		FeatureBills,
		FeatureTasks,
		FeatureGoals,
		FeatureMentalLoad,
	}
}

// IsValid reports whether a is a known action
func (a Action) IsValid() bool {
	switch a {
	case ActionEdit, ActionDelete, ActionToggleStatus, ActionReact, ActionReply:
		return true
	}
	return false
}
