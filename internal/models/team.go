package models

import (
	"strings"

	"gorm.io/datatypes"
)

// Team groups members and carries references to the chat-platform and
// document-store infrastructure provisioned for it.
type Team struct {
	BaseModel

	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`

	// LeadMemberID is set once the team has a lead. A team with at least one
	// member always has exactly one lead.
	LeadMemberID *string `gorm:"type:uuid" json:"lead_member_id"`
	LeadMember   *Member `gorm:"foreignKey:LeadMemberID" json:"lead_member,omitempty"`

	ChatRoleID        string `json:"chat_role_id"`
	ChatManagerRoleID string `json:"chat_manager_role_id"`
	DocFolderID       string `json:"doc_folder_id"`
	OverviewDocID     string `json:"overview_doc_id"`
	RosterSheetID     string `json:"roster_sheet_id"`

	// ChannelRefs and TrackedListRefs are JSON columns; use the accessors
	// below.
	ChannelRefs     datatypes.JSONSlice[string] `json:"channel_ids"`
	TrackedListRefs datatypes.JSONSlice[string] `json:"tracked_list_ids"`

	Memberships []TeamMembership `gorm:"foreignKey:TeamID" json:"memberships,omitempty"`
}

// ChannelIDs returns the chat channel ids provisioned for the team.
func (t *Team) ChannelIDs() []string {
	if len(t.ChannelRefs) == 0 {
		return nil
	}
	return []string(t.ChannelRefs)
}

// SetChannelIDs stores the chat channel ids.
func (t *Team) SetChannelIDs(ids []string) {
	t.ChannelRefs = datatypes.NewJSONSlice(cleanRefs(ids))
}

// TrackedListIDs returns the task-tracker lists scoped to the team.
func (t *Team) TrackedListIDs() []string {
	if len(t.TrackedListRefs) == 0 {
		return nil
	}
	return []string(t.TrackedListRefs)
}

// SetTrackedListIDs stores the task-tracker list ids.
func (t *Team) SetTrackedListIDs(ids []string) {
	t.TrackedListRefs = datatypes.NewJSONSlice(cleanRefs(ids))
}

func cleanRefs(ids []string) []string {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	return clean
}
