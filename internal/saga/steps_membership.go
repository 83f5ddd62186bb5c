package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/crewdeckhq/crewdeck/internal/integrations"
)

func (e *Engine) addMemberPlan(t AddMemberToTeam) *plan {
	skipLead := func(sc *Context) (bool, string) {
		if !t.PromoteToLead {
			return true, "promotion not requested"
		}
		return false, ""
	}

	steps := []Step{
		{
			Name:   "membership.upsert",
			System: systemInternal,
			Class:  Required,
			Run: func(ctx context.Context, sc *Context) (string, error) {
				result, err := e.deps.Teams.UpsertMembership(ctx, t.TeamID, t.MemberID, t.RoleInTeam)
				if err != nil {
					return "", err
				}
				sc.Membership = result.Membership
				if result.AlreadyActive {
					return "existing membership reused", nil
				}
				return "membership recorded", nil
			},
		},
		{
			Name:   "membership.chat_role",
			System: integrations.SystemChat,
			Class:  Optional,
			Skip: func(sc *Context) (bool, string) {
				if sc.Team.ChatRoleID == "" {
					return true, "team has no chat role provisioned"
				}
				return false, ""
			},
			Run: func(ctx context.Context, sc *Context) (string, error) {
				if err := sc.Call(ctx, func() error {
					return e.deps.Clients.Chat.AssignRole(ctx, sc.Member.Identity, sc.Team.ChatRoleID)
				}); err != nil {
					return "", err
				}
				return "team role granted", nil
			},
			Remediation: func(sc *Context) string {
				return fmt.Sprintf("Grant %s the %q chat role.", sc.Member.Identity, sc.Team.Name)
			},
		},
		{
			Name:   "membership.roster_row",
			System: integrations.SystemDocs,
			Class:  Optional,
			Skip: func(sc *Context) (bool, string) {
				if sc.Team.RosterSheetID == "" {
					return true, "team has no roster sheet provisioned"
				}
				return false, ""
			},
			Run: func(ctx context.Context, sc *Context) (string, error) {
				row := []string{
					sc.Member.Identity,
					sc.Member.DisplayName,
					sc.Membership.RoleInTeam,
					time.Now().UTC().Format("2006-01-02"),
				}
				if err := sc.Call(ctx, func() error {
					return e.deps.Clients.Docs.AppendRow(ctx, sc.Team.RosterSheetID, row)
				}); err != nil {
					return "", err
				}
				return "team roster updated", nil
			},
			Remediation: func(sc *Context) string {
				return fmt.Sprintf("Add %s to the %s roster sheet manually.", sc.Member.DisplayName, sc.Team.Name)
			},
		},
		{
			Name:   "membership.notify_dm",
			System: integrations.SystemChat,
			Class:  Optional,
			Run: func(ctx context.Context, sc *Context) (string, error) {
				msg := fmt.Sprintf("You've been added to **%s** as %s.", sc.Team.Name, sc.Membership.RoleInTeam)
				if err := sc.Call(ctx, func() error {
					return e.deps.Clients.Chat.SendDirectMessage(ctx, sc.Member.Identity, msg)
				}); err != nil {
					return "", err
				}
				return "member notified", nil
			},
			Remediation: func(sc *Context) string {
				return fmt.Sprintf("Let %s know they were added to %s.", sc.Member.Identity, sc.Team.Name)
			},
		},
		{
			Name:   "membership.announce",
			System: integrations.SystemChat,
			Class:  Optional,
			Skip: func(sc *Context) (bool, string) {
				if e.cfg.AnnounceChannelID == "" {
					return true, "no announce channel configured"
				}
				return false, ""
			},
			Run: func(ctx context.Context, sc *Context) (string, error) {
				msg := fmt.Sprintf(":tada: %s joined **%s**!", sc.Member.DisplayName, sc.Team.Name)
				if err := sc.Call(ctx, func() error {
					return e.deps.Clients.Chat.PostMessage(ctx, e.cfg.AnnounceChannelID, msg)
				}); err != nil {
					return "", err
				}
				return "announcement posted", nil
			},
			Remediation: func(sc *Context) string {
				return fmt.Sprintf("Announce %s joining %s in the announcements channel.", sc.Member.DisplayName, sc.Team.Name)
			},
		},
	}

	return &plan{
		resolve: func(ctx context.Context, sc *Context) (string, error) {
			return "team:" + t.TeamID, nil
		},
		precheck: func(ctx context.Context, sc *Context) error {
			return e.loadTeamAndMember(ctx, sc, t.TeamID, t.MemberID)
		},
		steps: append(steps, e.leadSteps(skipLead)...),
	}
}

// leadSteps are the two required operations of a lead change: flip the
// team's lead reference, then grant the chat manager role. Shared between
// the promotion trigger and add-member with promotion requested.
func (e *Engine) leadSteps(skip func(sc *Context) (bool, string)) []Step {
	return []Step{
		{
			Name:   "lead.update_ref",
			System: systemInternal,
			Class:  Required,
			Skip:   skip,
			Run: func(ctx context.Context, sc *Context) (string, error) {
				if err := e.deps.Teams.SetLead(ctx, sc.Team.ID, sc.Member.ID); err != nil {
					return "", err
				}
				sc.Team.LeadMemberID = &sc.Member.ID
				return sc.Member.DisplayName + " set as team lead", nil
			},
		},
		{
			Name:   "lead.manager_role",
			System: integrations.SystemChat,
			Class:  Required,
			Skip: func(sc *Context) (bool, string) {
				if skipped, detail := skip(sc); skipped {
					return true, detail
				}
				if sc.Team.ChatManagerRoleID == "" {
					return true, "team has no manager role provisioned"
				}
				return false, ""
			},
			Run: func(ctx context.Context, sc *Context) (string, error) {
				if err := sc.Call(ctx, func() error {
					return e.deps.Clients.Chat.AssignRole(ctx, sc.Member.Identity, sc.Team.ChatManagerRoleID)
				}); err != nil {
					return "", err
				}
				return "manager role granted", nil
			},
		},
	}
}
