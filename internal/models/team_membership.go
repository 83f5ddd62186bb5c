package models

import "time"

// TeamMembership joins a member to a team. The (team, member) pairing is
// unique; re-adding an already-active member is a no-op for the row but may
// still update RoleInTeam.
type TeamMembership struct {
	BaseModel

	TeamID   string `gorm:"type:uuid;not null;uniqueIndex:idx_team_member" json:"team_id"`
	MemberID string `gorm:"type:uuid;not null;uniqueIndex:idx_team_member" json:"member_id"`

	Team   *Team   `gorm:"foreignKey:TeamID" json:"team,omitempty"`
	Member *Member `gorm:"foreignKey:MemberID" json:"member,omitempty"`

	RoleInTeam string    `gorm:"default:member" json:"role_in_team"`
	IsActive   bool      `gorm:"default:true;index" json:"is_active"`
	JoinedAt   time.Time `gorm:"not null" json:"joined_at"`
}
