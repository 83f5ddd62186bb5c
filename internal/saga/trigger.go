package saga

// TriggerKind names a registered saga sequence.
type TriggerKind string

const (
	KindApproveOnboarding TriggerKind = "approve_onboarding"
	KindCreateTeam        TriggerKind = "create_team"
	KindAddMemberToTeam   TriggerKind = "add_member_to_team"
	KindPromoteToLead     TriggerKind = "promote_to_lead"
)

// Trigger is the sum type of events the engine reacts to. The step registry
// is keyed exhaustively over this type: adding a kind without registering a
// sequence fails at engine construction.
type Trigger interface {
	Kind() TriggerKind
	sealed()
}

// ApproveOnboarding converts a pending onboarding request into a member.
type ApproveOnboarding struct {
	RequestID string `json:"request_id" validate:"required"`
	Reviewer  string `json:"reviewer" validate:"required"`
}

func (ApproveOnboarding) Kind() TriggerKind { return KindApproveOnboarding }
func (ApproveOnboarding) sealed()           {}

// CreateTeam provisions a team record and its chat/document infrastructure.
type CreateTeam struct {
	Name        string `json:"name" validate:"required,min=2,max=64"`
	Color       string `json:"color" validate:"omitempty,hexcolor"`
	Description string `json:"description" validate:"max=512"`
	// LeadIdentity optionally names the member to install as team lead.
	LeadIdentity string `json:"lead_identity"`
}

func (CreateTeam) Kind() TriggerKind { return KindCreateTeam }
func (CreateTeam) sealed()           {}

// AddMemberToTeam upserts a membership and fans out the side effects.
type AddMemberToTeam struct {
	TeamID        string `json:"team_id" validate:"required"`
	MemberID      string `json:"member_id" validate:"required"`
	RoleInTeam    string `json:"role_in_team"`
	PromoteToLead bool   `json:"promote_to_lead"`
}

func (AddMemberToTeam) Kind() TriggerKind { return KindAddMemberToTeam }
func (AddMemberToTeam) sealed()           {}

// PromoteToLead installs an existing team member as the team's lead.
type PromoteToLead struct {
	TeamID   string `json:"team_id" validate:"required"`
	MemberID string `json:"member_id" validate:"required"`
}

func (PromoteToLead) Kind() TriggerKind { return KindPromoteToLead }
func (PromoteToLead) sealed()           {}
