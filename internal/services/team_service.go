package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/internal/models"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
)

// CreateTeamInput captures new team metadata.
type CreateTeamInput struct {
	Name        string
	Color       string
	Description string
}

// TeamInfraRefs carries external infrastructure identifiers produced by saga
// steps. Nil fields are left unchanged.
type TeamInfraRefs struct {
	ChatRoleID        *string
	ChatManagerRoleID *string
	DocFolderID       *string
	OverviewDocID     *string
	RosterSheetID     *string
	ChannelIDs        []string
	TrackedListIDs    []string
}

// MembershipResult reports what an upsert did.
type MembershipResult struct {
	Membership *models.TeamMembership
	// AlreadyActive is true when the member already held an active membership;
	// the row was reused (and possibly had its role updated).
	AlreadyActive bool
}

// TeamService handles team lifecycle, membership, and lead assignment.
type TeamService struct {
	db    *gorm.DB
	audit *AuditService
	now   func() time.Time
}

// TeamOption customises the service.
type TeamOption func(*TeamService)

// WithTeamClock injects a custom clock, primarily for testing.
func WithTeamClock(clock func() time.Time) TeamOption {
	return func(s *TeamService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewTeamService constructs a TeamService instance.
func NewTeamService(db *gorm.DB, audit *AuditService, opts ...TeamOption) (*TeamService, error) {
	if db == nil {
		return nil, errors.New("team service: db is required")
	}

	service := &TeamService{db: db, audit: audit, now: time.Now}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// NameAvailable reports whether a team name is unused. Sagas call this before
// any infrastructure side effect (check-then-act ordering).
func (s *TeamService) NameAvailable(ctx context.Context, name string) (bool, error) {
	ctx = ensureContext(ctx)

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.Team{}).
		Where("name = ?", trimmed(name)).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("team service: check name: %w", err)
	}
	return count == 0, nil
}

// Create registers a new team record.
func (s *TeamService) Create(ctx context.Context, input CreateTeamInput) (*models.Team, error) {
	ctx = ensureContext(ctx)

	name := trimmed(input.Name)
	if name == "" {
		return nil, apperrors.NewValidation("team name is required")
	}

	team := &models.Team{
		Name:        name,
		Color:       trimmed(input.Color),
		Description: trimmed(input.Description),
	}

	if err := s.db.WithContext(ctx).Create(team).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrTeamNameTaken
		}
		return nil, fmt.Errorf("team service: create team: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "team.create",
		Resource: team.ID,
		Result:   "success",
		Metadata: map[string]any{"name": team.Name},
	})

	return team, nil
}

// GetByID loads a team by identifier.
func (s *TeamService) GetByID(ctx context.Context, id string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	var team models.Team
	err := s.db.WithContext(ctx).Take(&team, "id = ?", trimmed(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: get team: %w", err)
	}
	return &team, nil
}

// GetByName loads a team by its unique name.
func (s *TeamService) GetByName(ctx context.Context, name string) (*models.Team, error) {
	ctx = ensureContext(ctx)

	var team models.Team
	err := s.db.WithContext(ctx).Take(&team, "name = ?", trimmed(name)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("team service: get team: %w", err)
	}
	return &team, nil
}

// UpdateInfraRefs attaches provisioned infrastructure identifiers to a team.
func (s *TeamService) UpdateInfraRefs(ctx context.Context, teamID string, refs TeamInfraRefs) error {
	ctx = ensureContext(ctx)

	updates := map[string]any{}
	if refs.ChatRoleID != nil {
		updates["chat_role_id"] = *refs.ChatRoleID
	}
	if refs.ChatManagerRoleID != nil {
		updates["chat_manager_role_id"] = *refs.ChatManagerRoleID
	}
	if refs.DocFolderID != nil {
		updates["doc_folder_id"] = *refs.DocFolderID
	}
	if refs.OverviewDocID != nil {
		updates["overview_doc_id"] = *refs.OverviewDocID
	}
	if refs.RosterSheetID != nil {
		updates["roster_sheet_id"] = *refs.RosterSheetID
	}
	if refs.ChannelIDs != nil {
		team := models.Team{}
		team.SetChannelIDs(refs.ChannelIDs)
		updates["channel_refs"] = team.ChannelRefs
	}
	if refs.TrackedListIDs != nil {
		team := models.Team{}
		team.SetTrackedListIDs(refs.TrackedListIDs)
		updates["tracked_list_refs"] = team.TrackedListRefs
	}
	if len(updates) == 0 {
		return nil
	}

	result := s.db.WithContext(ctx).
		Model(&models.Team{}).
		Where("id = ?", trimmed(teamID)).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("team service: update infra refs: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTeamNotFound
	}
	return nil
}

// UpsertMembership attaches a member to a team. Re-adding an already-active
// member is a no-op for the row but still applies a role change.
func (s *TeamService) UpsertMembership(ctx context.Context, teamID, memberID, roleInTeam string) (*MembershipResult, error) {
	ctx = ensureContext(ctx)

	teamID = trimmed(teamID)
	memberID = trimmed(memberID)
	if teamID == "" || memberID == "" {
		return nil, apperrors.NewValidation("team id and member id are required")
	}

	var result MembershipResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing models.TeamMembership
		err := tx.Where("team_id = ? AND member_id = ?", teamID, memberID).
			Take(&existing).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			membership := models.TeamMembership{
				TeamID:     teamID,
				MemberID:   memberID,
				RoleInTeam: defaultRole(roleInTeam),
				IsActive:   true,
				JoinedAt:   s.now(),
			}
			if err := tx.Create(&membership).Error; err != nil {
				return fmt.Errorf("team service: create membership: %w", err)
			}
			result.Membership = &membership
			return nil
		case err != nil:
			return fmt.Errorf("team service: find membership: %w", err)
		}

		updates := map[string]any{}
		if !existing.IsActive {
			updates["is_active"] = true
			updates["joined_at"] = s.now()
		} else {
			result.AlreadyActive = true
		}
		if role := trimmed(roleInTeam); role != "" && role != existing.RoleInTeam {
			updates["role_in_team"] = role
		}
		if len(updates) > 0 {
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return fmt.Errorf("team service: update membership: %w", err)
			}
		}
		if err := tx.Take(&existing, "id = ?", existing.ID).Error; err != nil {
			return err
		}
		result.Membership = &existing
		return nil
	})
	if err != nil {
		return nil, err
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "team.upsert_membership",
		Resource: teamID,
		Result:   "success",
		Metadata: map[string]any{"member_id": memberID, "already_active": result.AlreadyActive},
	})

	return &result, nil
}

// ActiveMemberships returns a member's active team memberships with teams
// preloaded.
func (s *TeamService) ActiveMemberships(ctx context.Context, memberID string) ([]models.TeamMembership, error) {
	ctx = ensureContext(ctx)

	var memberships []models.TeamMembership
	if err := s.db.WithContext(ctx).
		Preload("Team").
		Where("member_id = ? AND is_active = ?", trimmed(memberID), true).
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("team service: active memberships: %w", err)
	}
	return memberships, nil
}

// SetLead updates the team's lead reference.
func (s *TeamService) SetLead(ctx context.Context, teamID, memberID string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).
		Model(&models.Team{}).
		Where("id = ?", trimmed(teamID)).
		Update("lead_member_id", trimmed(memberID))
	if result.Error != nil {
		return fmt.Errorf("team service: set lead: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTeamNotFound
	}

	recordAudit(s.audit, ctx, AuditEntry{
		Action:   "team.set_lead",
		Resource: trimmed(teamID),
		Result:   "success",
		Metadata: map[string]any{"member_id": trimmed(memberID)},
	})

	return nil
}

// InterimLead picks the earliest joined active membership of a team. This is
// the documented tie-break used when a team loses its lead: earliest active
// membership by JoinedAt, member id as a stable secondary ordering.
func (s *TeamService) InterimLead(ctx context.Context, teamID string) (*models.TeamMembership, error) {
	ctx = ensureContext(ctx)

	var membership models.TeamMembership
	err := s.db.WithContext(ctx).
		Where("team_id = ? AND is_active = ?", trimmed(teamID), true).
		Order("joined_at ASC, member_id ASC").
		Take(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTeamMembershipEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("team service: interim lead: %w", err)
	}
	return &membership, nil
}

func defaultRole(role string) string {
	if role = trimmed(role); role != "" {
		return role
	}
	return "member"
}
