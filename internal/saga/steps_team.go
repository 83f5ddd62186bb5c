package saga

import (
	"context"
	"fmt"
	"strings"

	"github.com/crewdeckhq/crewdeck/internal/integrations"
	"github.com/crewdeckhq/crewdeck/internal/services"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
)

func (e *Engine) createTeamPlan(t CreateTeam) *plan {
	return &plan{
		resolve: func(ctx context.Context, sc *Context) (string, error) {
			return "team:" + strings.ToLower(strings.TrimSpace(t.Name)), nil
		},
		precheck: func(ctx context.Context, sc *Context) error {
			available, err := e.deps.Teams.NameAvailable(ctx, t.Name)
			if err != nil {
				return err
			}
			if !available {
				return services.ErrTeamNameTaken
			}
			if t.LeadIdentity != "" {
				lead, err := e.deps.Members.GetByIdentity(ctx, t.LeadIdentity)
				if err != nil {
					return err
				}
				sc.LeadCandidate = lead
			}
			return nil
		},
		steps: []Step{
			{
				Name:   "team.create",
				System: systemInternal,
				Class:  Required,
				Run: func(ctx context.Context, sc *Context) (string, error) {
					team, err := e.deps.Teams.Create(ctx, services.CreateTeamInput{
						Name:        t.Name,
						Color:       t.Color,
						Description: t.Description,
					})
					if err != nil {
						return "", err
					}
					sc.Team = team
					return "team record created", nil
				},
			},
			{
				Name:   "team.chat_roles",
				System: integrations.SystemChat,
				Class:  Optional,
				Skip: func(sc *Context) (bool, string) {
					if sc.Team.ChatRoleID != "" {
						return true, "chat roles already provisioned"
					}
					return false, ""
				},
				Run: func(ctx context.Context, sc *Context) (string, error) {
					var roleID string
					if err := sc.Call(ctx, func() (err error) {
						roleID, err = e.deps.Clients.Chat.CreateRole(ctx, sc.Team.Name, sc.Team.Color)
						return err
					}); err != nil {
						return "", err
					}
					var managerRoleID string
					if err := sc.Call(ctx, func() (err error) {
						managerRoleID, err = e.deps.Clients.Chat.CreateRole(ctx, sc.Team.Name+" Manager", sc.Team.Color)
						return err
					}); err != nil {
						return "", err
					}
					refs := services.TeamInfraRefs{ChatRoleID: &roleID, ChatManagerRoleID: &managerRoleID}
					if err := e.deps.Teams.UpdateInfraRefs(ctx, sc.Team.ID, refs); err != nil {
						return "", err
					}
					sc.Team.ChatRoleID = roleID
					sc.Team.ChatManagerRoleID = managerRoleID
					return "member and manager roles created", nil
				},
				Remediation: func(sc *Context) string {
					return fmt.Sprintf("Create chat roles %q and %q and record their ids on team %s.",
						sc.Team.Name, sc.Team.Name+" Manager", sc.Team.ID)
				},
			},
			{
				Name:   "team.channels",
				System: integrations.SystemChat,
				Class:  Optional,
				Skip: func(sc *Context) (bool, string) {
					if len(sc.Team.ChannelIDs()) > 0 {
						return true, "channels already provisioned"
					}
					return false, ""
				},
				Run: func(ctx context.Context, sc *Context) (string, error) {
					slug := channelSlug(sc.Team.Name)
					var mainID string
					if err := sc.Call(ctx, func() (err error) {
						mainID, err = e.deps.Clients.Chat.CreateChannel(ctx, slug, e.cfg.ChannelCategoryID)
						return err
					}); err != nil {
						return "", err
					}
					var leadsID string
					if err := sc.Call(ctx, func() (err error) {
						leadsID, err = e.deps.Clients.Chat.CreateChannel(ctx, slug+"-leads", e.cfg.ChannelCategoryID)
						return err
					}); err != nil {
						return "", err
					}
					channels := []string{mainID, leadsID}
					refs := services.TeamInfraRefs{ChannelIDs: channels}
					if err := e.deps.Teams.UpdateInfraRefs(ctx, sc.Team.ID, refs); err != nil {
						return "", err
					}
					sc.Team.SetChannelIDs(channels)
					return fmt.Sprintf("channels #%s and #%s-leads created", slug, slug), nil
				},
				Remediation: func(sc *Context) string {
					slug := channelSlug(sc.Team.Name)
					return fmt.Sprintf("Create channels #%s and #%s-leads and record their ids on team %s.",
						slug, slug, sc.Team.ID)
				},
			},
			{
				Name:   "team.doc_folder",
				System: integrations.SystemDocs,
				Class:  Optional,
				Skip: func(sc *Context) (bool, string) {
					if sc.Team.DocFolderID != "" {
						return true, "document folder already provisioned"
					}
					return false, ""
				},
				Run: func(ctx context.Context, sc *Context) (string, error) {
					var folderID string
					if err := sc.Call(ctx, func() (err error) {
						folderID, err = e.deps.Clients.Docs.CreateFolder(ctx, sc.Team.Name, "")
						return err
					}); err != nil {
						return "", err
					}
					var overviewID string
					if err := sc.Call(ctx, func() (err error) {
						overviewID, err = e.deps.Clients.Docs.CreateDocument(ctx,
							sc.Team.Name+" Overview", teamOverviewContent(sc.Team.Name, sc.Team.Description), folderID)
						return err
					}); err != nil {
						return "", err
					}
					var rosterID string
					if err := sc.Call(ctx, func() (err error) {
						rosterID, err = e.deps.Clients.Docs.CreateSpreadsheet(ctx, sc.Team.Name+" Roster", folderID)
						return err
					}); err != nil {
						return "", err
					}
					refs := services.TeamInfraRefs{
						DocFolderID:   &folderID,
						OverviewDocID: &overviewID,
						RosterSheetID: &rosterID,
					}
					if err := e.deps.Teams.UpdateInfraRefs(ctx, sc.Team.ID, refs); err != nil {
						return "", err
					}
					sc.Team.DocFolderID = folderID
					sc.Team.OverviewDocID = overviewID
					sc.Team.RosterSheetID = rosterID
					return "folder, overview doc, and roster sheet created", nil
				},
				Remediation: func(sc *Context) string {
					return fmt.Sprintf("Create a document folder, overview doc, and roster sheet for team %s and record their ids.",
						sc.Team.Name)
				},
			},
			{
				Name:   "team.assign_lead",
				System: systemInternal,
				Class:  Optional,
				Skip: func(sc *Context) (bool, string) {
					if sc.LeadCandidate == nil {
						return true, "no lead requested"
					}
					return false, ""
				},
				Run: func(ctx context.Context, sc *Context) (string, error) {
					if _, err := e.deps.Teams.UpsertMembership(ctx, sc.Team.ID, sc.LeadCandidate.ID, "lead"); err != nil {
						return "", err
					}
					if err := e.deps.Teams.SetLead(ctx, sc.Team.ID, sc.LeadCandidate.ID); err != nil {
						return "", err
					}
					for _, roleID := range []string{sc.Team.ChatRoleID, sc.Team.ChatManagerRoleID} {
						if roleID == "" {
							continue
						}
						grant := roleID
						if err := sc.Call(ctx, func() error {
							return e.deps.Clients.Chat.AssignRole(ctx, sc.LeadCandidate.Identity, grant)
						}); err != nil {
							return "", err
						}
					}
					sc.Team.LeadMemberID = &sc.LeadCandidate.ID
					return sc.LeadCandidate.DisplayName + " installed as lead", nil
				},
				Remediation: func(sc *Context) string {
					return fmt.Sprintf("Install %s as lead of team %s and grant them the team's chat roles.",
						sc.LeadCandidate.Identity, sc.Team.Name)
				},
			},
		},
	}
}

func (e *Engine) promoteToLeadPlan(t PromoteToLead) *plan {
	return &plan{
		resolve: func(ctx context.Context, sc *Context) (string, error) {
			return "team:" + t.TeamID, nil
		},
		precheck: func(ctx context.Context, sc *Context) error {
			if err := e.loadTeamAndMember(ctx, sc, t.TeamID, t.MemberID); err != nil {
				return err
			}
			memberships, err := e.deps.Teams.ActiveMemberships(ctx, t.MemberID)
			if err != nil {
				return err
			}
			for _, m := range memberships {
				if m.TeamID == t.TeamID {
					return nil
				}
			}
			return apperrors.NewValidation("member must hold an active membership in the team before promotion")
		},
		steps: e.leadSteps(func(sc *Context) (bool, string) { return false, "" }),
	}
}

func (e *Engine) loadTeamAndMember(ctx context.Context, sc *Context, teamID, memberID string) error {
	team, err := e.deps.Teams.GetByID(ctx, teamID)
	if err != nil {
		return err
	}
	sc.Team = team
	member, err := e.deps.Members.GetByID(ctx, memberID)
	if err != nil {
		return err
	}
	sc.Member = member
	return nil
}

func channelSlug(name string) string {
	slug := strings.ToLower(strings.TrimSpace(name))
	slug = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r == ' ' || r == '-' || r == '_':
			return '-'
		default:
			return -1
		}
	}, slug)
	return strings.Trim(slug, "-")
}

func teamOverviewContent(name, description string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", name)
	if description != "" {
		fmt.Fprintf(&b, "%s\n\n", description)
	}
	b.WriteString("## Charter\n\n_Fill in the team's mission and current focus._\n")
	return b.String()
}
