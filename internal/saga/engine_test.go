package saga

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/internal/database/testutil"
	"github.com/crewdeckhq/crewdeck/internal/integrations"
	"github.com/crewdeckhq/crewdeck/internal/models"
	"github.com/crewdeckhq/crewdeck/internal/services"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
)

type engineFixture struct {
	db       *gorm.DB
	engine   *Engine
	clients  integrations.Clients
	identity *fakeIdentity
	docs     *fakeDocs
	chat     *fakeChat
	leases   *MemoryLeaseStore

	onboarding *services.OnboardingService
	members    *services.MemberService
	teams      *services.TeamService
}

func newEngineFixture(t *testing.T, opts ...Option) *engineFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	onboarding, err := services.NewOnboardingService(db, nil)
	require.NoError(t, err)
	members, err := services.NewMemberService(db, nil, "test-vault-key")
	require.NoError(t, err)
	teams, err := services.NewTeamService(db, nil)
	require.NoError(t, err)

	identity := &fakeIdentity{}
	docs := &fakeDocs{}
	chat := &fakeChat{}
	clients := fakeClients(identity, docs, chat, nil)
	leases := NewMemoryLeaseStore()

	policy := RetryPolicy{MaxAttempts: 1}
	allOpts := append([]Option{WithRetryPolicy(policy)}, opts...)
	engine, err := NewEngine(Deps{
		Onboarding: onboarding,
		Members:    members,
		Teams:      teams,
		Clients:    clients,
		Leases:     leases,
	}, Config{
		LeaseTTL:          time.Minute,
		MembersFolderID:   "folder-members",
		RosterSheetID:     "sheet-org-roster",
		AnnounceChannelID: "chan-announce",
	}, allOpts...)
	require.NoError(t, err)

	return &engineFixture{
		db:       db,
		engine:   engine,
		clients:  clients,
		identity: identity,
		docs:     docs,
		chat:     chat,
		leases:   leases,

		onboarding: onboarding,
		members:    members,
		teams:      teams,
	}
}

func (f *engineFixture) submitRequest(t *testing.T, identity string) *models.OnboardingRequest {
	t.Helper()
	request, err := f.onboarding.Submit(context.Background(), services.SubmitRequestInput{
		Identity:    identity,
		DisplayName: "Ada Lovelace",
		Email:       "ada@example.com",
		Pronouns:    "she/her",
	})
	require.NoError(t, err)
	return request
}

func TestApproveOnboardingProvisionsEverything(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	request := f.submitRequest(t, "user#1042")

	report, err := f.engine.Run(ctx, ApproveOnboarding{RequestID: request.ID, Reviewer: "ops#1"})
	require.NoError(t, err)
	require.True(t, report.FullyAutomated())
	require.False(t, report.Aborted)
	require.Len(t, report.Outcomes, 5)
	for _, o := range report.Outcomes {
		require.Equal(t, StatusSuccess, o.Status, o.Step)
	}

	member, err := f.members.GetByIdentity(ctx, "user#1042")
	require.NoError(t, err)
	require.Equal(t, "auth-ada@example.com", member.AuthUserID)
	require.NotEmpty(t, member.ProfileDocID)
	require.NotEmpty(t, member.TempCredentialHash)

	updated, err := f.onboarding.GetByID(ctx, request.ID)
	require.NoError(t, err)
	require.Equal(t, models.RequestApproved, updated.Status)

	require.Len(t, f.docs.rows, 1)
	require.Len(t, f.chat.directMsgs, 1)
	require.Contains(t, f.chat.directMsgs[0], "hunter2!")
}

func TestApproveOnboardingOptionalFailureContinues(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	request := f.submitRequest(t, "user#1042")

	f.docs.createDocument = func(title, content, folderID string) (string, error) {
		return "", failure(integrations.SystemDocs, "documents.create", http.StatusForbidden)
	}

	report, err := f.engine.Run(ctx, ApproveOnboarding{RequestID: request.ID, Reviewer: "ops#1"})
	require.NoError(t, err)
	require.False(t, report.Aborted)
	require.False(t, report.FullyAutomated())

	byStep := outcomesByStep(report)
	require.Equal(t, StatusFailed, byStep["member.profile_doc"].Status)
	require.NotEmpty(t, byStep["member.profile_doc"].Remediation)
	require.Equal(t, StatusSuccess, byStep["member.roster_row"].Status)
	require.Equal(t, StatusSuccess, byStep["member.welcome_dm"].Status)

	// The member record and identity account still exist.
	member, err := f.members.GetByIdentity(ctx, "user#1042")
	require.NoError(t, err)
	require.NotEmpty(t, member.AuthUserID)
	require.Empty(t, member.ProfileDocID)

	require.Len(t, report.Remediations(), 1)
	require.Contains(t, report.Render(), "Manual follow-up needed")
}

func TestApproveOnboardingIsNotRepeatable(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	request := f.submitRequest(t, "user#1042")

	_, err := f.engine.Run(ctx, ApproveOnboarding{RequestID: request.ID, Reviewer: "ops#1"})
	require.NoError(t, err)

	calls := externalCalls(f.clients)
	_, err = f.engine.Run(ctx, ApproveOnboarding{RequestID: request.ID, Reviewer: "ops#1"})
	require.ErrorIs(t, err, services.ErrRequestNotPending)
	require.Equal(t, calls, externalCalls(f.clients), "rejected rerun must make no external calls")
}

func TestCreateTeamNameConflictMakesNoExternalCalls(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	_, err := f.teams.Create(ctx, services.CreateTeamInput{Name: "Platform"})
	require.NoError(t, err)

	_, err = f.engine.Run(ctx, CreateTeam{Name: "Platform"})
	require.ErrorIs(t, err, services.ErrTeamNameTaken)
	require.Zero(t, externalCalls(f.clients))
}

func TestCreateTeamProvisionsInfrastructure(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	lead := models.Member{Identity: "lead#7", DisplayName: "Grace", Email: "grace@example.com"}
	require.NoError(t, f.db.Create(&lead).Error)

	report, err := f.engine.Run(ctx, CreateTeam{
		Name:         "Platform Eng",
		Color:        "#3366ff",
		LeadIdentity: "lead#7",
	})
	require.NoError(t, err)
	require.True(t, report.FullyAutomated())

	team, err := f.teams.GetByName(ctx, "Platform Eng")
	require.NoError(t, err)
	require.Equal(t, "role-Platform Eng", team.ChatRoleID)
	require.Equal(t, "role-Platform Eng Manager", team.ChatManagerRoleID)
	require.Equal(t, []string{"chan-platform-eng", "chan-platform-eng-leads"}, team.ChannelIDs())
	require.NotEmpty(t, team.DocFolderID)
	require.NotEmpty(t, team.OverviewDocID)
	require.NotEmpty(t, team.RosterSheetID)
	require.NotNil(t, team.LeadMemberID)
	require.Equal(t, lead.ID, *team.LeadMemberID)

	// Lead received both the member and manager roles.
	require.Contains(t, f.chat.roleGrants, "lead#7:role-Platform Eng")
	require.Contains(t, f.chat.roleGrants, "lead#7:role-Platform Eng Manager")
}

func TestTransientRoleFailureDoesNotRepeatEarlierCalls(t *testing.T) {
	f := newEngineFixture(t, WithRetryPolicy(RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Millisecond,
	}))
	ctx := context.Background()

	// The manager-role call fails once with a retryable 502. Only that
	// call may be retried; the base role created just before it must not
	// be created a second time.
	created := map[string]int{}
	failedOnce := false
	f.chat.createRole = func(name, color string) (string, error) {
		if name == "Platform Manager" && !failedOnce {
			failedOnce = true
			return "", failure(integrations.SystemChat, "create_role", http.StatusBadGateway)
		}
		created[name]++
		return "role-" + name, nil
	}

	report, err := f.engine.Run(ctx, CreateTeam{Name: "Platform"})
	require.NoError(t, err)
	require.True(t, report.FullyAutomated())

	require.Equal(t, 1, created["Platform"])
	require.Equal(t, 1, created["Platform Manager"])

	team, err := f.teams.GetByName(ctx, "Platform")
	require.NoError(t, err)
	require.Equal(t, "role-Platform", team.ChatRoleID)
	require.Equal(t, "role-Platform Manager", team.ChatManagerRoleID)
}

func TestAddMemberToTeamReportsAndAnnounces(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	team, member := f.seedTeamWithInfra(t, "Support", "user#5")

	report, err := f.engine.Run(ctx, AddMemberToTeam{TeamID: team.ID, MemberID: member.ID})
	require.NoError(t, err)
	require.True(t, report.FullyAutomated())

	byStep := outcomesByStep(report)
	require.Equal(t, StatusSuccess, byStep["membership.upsert"].Status)
	require.Equal(t, StatusSuccess, byStep["membership.chat_role"].Status)
	require.Equal(t, StatusSkipped, byStep["lead.update_ref"].Status)
	require.Equal(t, StatusSkipped, byStep["lead.manager_role"].Status)

	require.Contains(t, f.chat.roleGrants, "user#5:role-support")
	require.Len(t, f.chat.channelPosts, 1)
	require.Contains(t, f.chat.channelPosts[0], "chan-announce")
}

func TestAddMemberToTeamIsIdempotent(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	team, member := f.seedTeamWithInfra(t, "Support", "user#5")

	_, err := f.engine.Run(ctx, AddMemberToTeam{TeamID: team.ID, MemberID: member.ID})
	require.NoError(t, err)
	report, err := f.engine.Run(ctx, AddMemberToTeam{TeamID: team.ID, MemberID: member.ID})
	require.NoError(t, err)

	byStep := outcomesByStep(report)
	require.Equal(t, StatusSuccess, byStep["membership.upsert"].Status)
	require.Contains(t, byStep["membership.upsert"].Detail, "reused")

	var rows int64
	require.NoError(t, f.db.Model(&models.TeamMembership{}).Count(&rows).Error)
	require.EqualValues(t, 1, rows)
}

func TestAddMemberWithPromotionRunsLeadSteps(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	team, member := f.seedTeamWithInfra(t, "Support", "user#5")

	report, err := f.engine.Run(ctx, AddMemberToTeam{
		TeamID:        team.ID,
		MemberID:      member.ID,
		PromoteToLead: true,
	})
	require.NoError(t, err)

	byStep := outcomesByStep(report)
	require.Equal(t, StatusSuccess, byStep["lead.update_ref"].Status)
	require.Equal(t, StatusSuccess, byStep["lead.manager_role"].Status)

	updated, err := f.teams.GetByID(ctx, team.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LeadMemberID)
	require.Equal(t, member.ID, *updated.LeadMemberID)
	require.Contains(t, f.chat.roleGrants, "user#5:mgr-role")
}

func TestPromoteToLeadRequiresActiveMembership(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()

	team, member := f.seedTeamWithInfra(t, "Support", "user#5")

	_, err := f.engine.Run(ctx, PromoteToLead{TeamID: team.ID, MemberID: member.ID})
	require.ErrorIs(t, err, apperrors.ErrValidation)
	require.Zero(t, externalCalls(f.clients))

	_, err = f.teams.UpsertMembership(ctx, team.ID, member.ID, "")
	require.NoError(t, err)

	report, err := f.engine.Run(ctx, PromoteToLead{TeamID: team.ID, MemberID: member.ID})
	require.NoError(t, err)
	require.True(t, report.FullyAutomated())

	updated, err := f.teams.GetByID(ctx, team.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LeadMemberID)
	require.Equal(t, member.ID, *updated.LeadMemberID)
}

func TestRequiredFailureAbortsRemainingSteps(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	request := f.submitRequest(t, "user#1042")

	// Dropping the members table makes the required create step fail before
	// any external call happens.
	require.NoError(t, f.db.Migrator().DropTable(&models.Member{}))

	report, err := f.engine.Run(ctx, ApproveOnboarding{RequestID: request.ID, Reviewer: "ops#1"})
	require.NoError(t, err)
	require.True(t, report.Aborted)
	require.Len(t, report.Outcomes, 1)
	require.Equal(t, "member.create", report.Outcomes[0].Step)
	require.Equal(t, StatusFailed, report.Outcomes[0].Status)
	require.Zero(t, externalCalls(f.clients))
	require.Contains(t, report.Render(), "aborted")
}

func TestLeaseContentionRejectsConcurrentRun(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	request := f.submitRequest(t, "user#1042")

	acquired, err := f.leases.Acquire(ctx, "identity:user#1042", "someone-else", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)

	_, err = f.engine.Run(ctx, ApproveOnboarding{RequestID: request.ID, Reviewer: "ops#1"})
	require.ErrorIs(t, err, apperrors.ErrSagaBusy)
	require.Zero(t, externalCalls(f.clients))

	// Once the holder releases, the run goes through.
	require.NoError(t, f.leases.Release(ctx, "identity:user#1042", "someone-else"))
	report, err := f.engine.Run(ctx, ApproveOnboarding{RequestID: request.ID, Reviewer: "ops#1"})
	require.NoError(t, err)
	require.True(t, report.FullyAutomated())
}

func TestRunValidatesTriggerInput(t *testing.T) {
	f := newEngineFixture(t)

	_, err := f.engine.Run(context.Background(), ApproveOnboarding{})
	require.ErrorIs(t, err, apperrors.ErrValidation)

	_, err = f.engine.Run(context.Background(), CreateTeam{Name: "x"})
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRunReleasesLeaseAfterCompletion(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	request := f.submitRequest(t, "user#1042")

	_, err := f.engine.Run(ctx, ApproveOnboarding{RequestID: request.ID, Reviewer: "ops#1"})
	require.NoError(t, err)

	acquired, err := f.leases.Acquire(ctx, "identity:user#1042", "next-run", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired)
}

func (f *engineFixture) seedTeamWithInfra(t *testing.T, name, memberIdentity string) (*models.Team, *models.Member) {
	t.Helper()
	ctx := context.Background()

	team, err := f.teams.Create(ctx, services.CreateTeamInput{Name: name})
	require.NoError(t, err)
	roleID := "role-" + channelSlug(name)
	mgrID := "mgr-role"
	sheetID := "sheet-" + channelSlug(name)
	require.NoError(t, f.teams.UpdateInfraRefs(ctx, team.ID, services.TeamInfraRefs{
		ChatRoleID:        &roleID,
		ChatManagerRoleID: &mgrID,
		RosterSheetID:     &sheetID,
	}))

	member := models.Member{Identity: memberIdentity, DisplayName: "Sam", Email: "sam@example.com"}
	require.NoError(t, f.db.Create(&member).Error)

	team, err = f.teams.GetByID(ctx, team.ID)
	require.NoError(t, err)
	return team, &member
}

func outcomesByStep(report *Report) map[string]Outcome {
	byStep := make(map[string]Outcome, len(report.Outcomes))
	for _, o := range report.Outcomes {
		byStep[o.Step] = o
	}
	return byStep
}
