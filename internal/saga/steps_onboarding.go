package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/crewdeckhq/crewdeck/internal/integrations"
	"github.com/crewdeckhq/crewdeck/internal/models"
	"github.com/crewdeckhq/crewdeck/internal/services"
)

const systemInternal = "crewdeck"

func (e *Engine) approveOnboardingPlan(t ApproveOnboarding) *plan {
	return &plan{
		resolve: func(ctx context.Context, sc *Context) (string, error) {
			request, err := e.deps.Onboarding.GetByID(ctx, t.RequestID)
			if err != nil {
				return "", err
			}
			sc.Request = request
			return "identity:" + request.Identity, nil
		},
		precheck: func(ctx context.Context, sc *Context) error {
			if sc.Request.Status != models.RequestPending {
				return services.ErrRequestNotPending
			}
			return nil
		},
		steps: []Step{
			{
				Name:   "member.create",
				System: systemInternal,
				Class:  Required,
				Run: func(ctx context.Context, sc *Context) (string, error) {
					member, created, err := e.deps.Members.CreateOrReuse(ctx, services.CreateMemberInput{
						Identity:    sc.Request.Identity,
						DisplayName: sc.Request.DisplayName,
						Email:       sc.Request.Email,
						Pronouns:    sc.Request.Pronouns,
					})
					if err != nil {
						return "", err
					}
					sc.Member = member
					if _, err := e.deps.Onboarding.MarkApproved(ctx, t.RequestID, t.Reviewer); err != nil {
						return "", err
					}
					if created {
						return "member record created for " + member.Identity, nil
					}
					return "existing member record reused for " + member.Identity, nil
				},
			},
			{
				Name:   "member.auth_account",
				System: integrations.SystemIdentity,
				Class:  Optional,
				Skip: func(sc *Context) (bool, string) {
					if sc.Member.AuthUserID != "" {
						return true, "identity account already linked"
					}
					return false, ""
				},
				Run: func(ctx context.Context, sc *Context) (string, error) {
					var user integrations.IdentityUser
					if err := sc.Call(ctx, func() (err error) {
						user, err = e.deps.Clients.Identity.CreateUser(ctx, sc.Member.Email, sc.Member.DisplayName)
						return err
					}); err != nil {
						return "", err
					}
					refs := services.IntegrationRefs{AuthUserID: &user.ID}
					if err := e.deps.Members.UpdateIntegrationRefs(ctx, sc.Member.ID, refs); err != nil {
						return "", err
					}
					sc.Member.AuthUserID = user.ID
					if user.TempCredential != "" {
						sc.TempCredential = user.TempCredential
						if err := e.deps.Members.SetTempCredentialHash(ctx, sc.Member.ID, user.TempCredential); err != nil {
							return "", err
						}
					}
					return "identity account provisioned", nil
				},
				Remediation: func(sc *Context) string {
					return fmt.Sprintf("Create an identity account for %s (%s) and link it to member %s.",
						sc.Member.Identity, sc.Member.Email, sc.Member.ID)
				},
			},
			{
				Name:   "member.profile_doc",
				System: integrations.SystemDocs,
				Class:  Optional,
				Skip: func(sc *Context) (bool, string) {
					if sc.Member.ProfileDocID != "" {
						return true, "profile document already exists"
					}
					return false, ""
				},
				Run: func(ctx context.Context, sc *Context) (string, error) {
					content := profileDocContent(sc.Member)
					var docID string
					if err := sc.Call(ctx, func() (err error) {
						docID, err = e.deps.Clients.Docs.CreateDocument(ctx,
							sc.Member.DisplayName, content, e.cfg.MembersFolderID)
						return err
					}); err != nil {
						return "", err
					}
					refs := services.IntegrationRefs{ProfileDocID: &docID}
					if err := e.deps.Members.UpdateIntegrationRefs(ctx, sc.Member.ID, refs); err != nil {
						return "", err
					}
					sc.Member.ProfileDocID = docID
					return "profile document created", nil
				},
				Remediation: func(sc *Context) string {
					return fmt.Sprintf("Create a profile document for %s in the members folder and record its id on member %s.",
						sc.Member.DisplayName, sc.Member.ID)
				},
			},
			{
				Name:   "member.roster_row",
				System: integrations.SystemDocs,
				Class:  Optional,
				Skip: func(sc *Context) (bool, string) {
					if e.cfg.RosterSheetID == "" {
						return true, "no roster sheet configured"
					}
					return false, ""
				},
				Run: func(ctx context.Context, sc *Context) (string, error) {
					row := []string{
						sc.Member.Identity,
						sc.Member.DisplayName,
						sc.Member.Email,
						sc.Member.Pronouns,
						time.Now().UTC().Format("2006-01-02"),
					}
					if err := sc.Call(ctx, func() error {
						return e.deps.Clients.Docs.AppendRow(ctx, e.cfg.RosterSheetID, row)
					}); err != nil {
						return "", err
					}
					return "roster row appended", nil
				},
				Remediation: func(sc *Context) string {
					return fmt.Sprintf("Add %s to the org roster sheet manually.", sc.Member.DisplayName)
				},
			},
			{
				Name:   "member.welcome_dm",
				System: integrations.SystemChat,
				Class:  Optional,
				Run: func(ctx context.Context, sc *Context) (string, error) {
					if err := sc.Call(ctx, func() error {
						return e.deps.Clients.Chat.SendDirectMessage(ctx,
							sc.Member.Identity, welcomeMessage(sc.Member, sc.TempCredential))
					}); err != nil {
						return "", err
					}
					return "welcome message delivered", nil
				},
				Remediation: func(sc *Context) string {
					return fmt.Sprintf("Send %s a welcome message with their onboarding instructions.", sc.Member.Identity)
				},
			},
		},
	}
}

func profileDocContent(member *models.Member) string {
	return fmt.Sprintf("# %s\n\n- Identity: %s\n- Email: %s\n- Pronouns: %s\n",
		member.DisplayName, member.Identity, member.Email, member.Pronouns)
}

func welcomeMessage(member *models.Member, tempCredential string) string {
	msg := fmt.Sprintf("Welcome aboard, %s! Your onboarding has been approved.", member.DisplayName)
	if tempCredential != "" {
		msg += fmt.Sprintf(" Your temporary sign-in credential is `%s`; change it on first login.", tempCredential)
	}
	return msg
}
