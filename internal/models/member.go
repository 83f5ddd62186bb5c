package models

// MemberStatus enumerates member lifecycle states.
type MemberStatus string

const (
	MemberActive    MemberStatus = "active"
	MemberSuspended MemberStatus = "suspended"
)

// Member is the canonical post-approval record for a person on the chat
// platform. Exactly one Member exists per Identity; the approval saga
// creates it with create-or-reuse semantics so duplicate triggers converge.
type Member struct {
	BaseModel

	// Identity is the opaque chat-platform user reference.
	Identity    string       `gorm:"uniqueIndex;not null" json:"identity"`
	DisplayName string       `gorm:"not null" json:"display_name"`
	Email       string       `gorm:"index" json:"email"`
	Pronouns    string       `json:"pronouns"`
	Status      MemberStatus `gorm:"default:active" json:"status"`

	// References into external systems. These are foreign identifiers with no
	// referential integrity; a dangling ref surfaces only when a later
	// operation needs it and fails.
	AuthUserID    string `json:"auth_user_id"`
	ProfileDocID  string `json:"profile_doc_id"`
	TrackerUserID string `json:"tracker_user_id"`

	// TempCredentialHash holds a bcrypt hash of the temporary credential the
	// identity provider issued; the plaintext is delivered once via DM.
	TempCredentialHash string `json:"-"`

	// TrackerTokenSealed is the member's task-tracker token, AES-GCM sealed
	// with the configured vault key.
	TrackerTokenSealed string `json:"-"`

	Memberships []TeamMembership `gorm:"foreignKey:MemberID" json:"memberships,omitempty"`
}
