package tasks

import (
	"context"
	"net/http"
	"sync"
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

type stubTracker struct {
	mu        sync.Mutex
	listCalls int

	valid   bool
	byList  map[string][]integrations.Task
	listErr map[string]error
	all     []integrations.Task
}

func (s *stubTracker) ValidateCredential(_ context.Context, _ string) (bool, error) {
	return s.valid, nil
}

func (s *stubTracker) ListAssignedTasks(_ context.Context, listID, _, _ string) ([]integrations.Task, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()
	if err, ok := s.listErr[listID]; ok {
		return nil, err
	}
	return s.byList[listID], nil
}

func (s *stubTracker) ListAllAssignedTasks(_ context.Context, _, _ string) ([]integrations.Task, error) {
	s.mu.Lock()
	s.listCalls++
	s.mu.Unlock()
	return s.all, nil
}

type aggFixture struct {
	db      *gorm.DB
	agg     *Aggregator
	tracker *stubTracker
	members *services.MemberService
	teams   *services.TeamService
	member  *models.Member
}

func newAggFixture(t *testing.T, cfg Config) *aggFixture {
	t.Helper()

	db := testutil.MustOpenTestDB(t)
	members, err := services.NewMemberService(db, nil, "test-vault-key")
	require.NoError(t, err)
	teams, err := services.NewTeamService(db, nil)
	require.NoError(t, err)

	tracker := &stubTracker{valid: true}
	agg, err := NewAggregator(members, teams, tracker, cfg)
	require.NoError(t, err)

	ctx := context.Background()
	member := models.Member{Identity: "user#9", DisplayName: "Noor", Email: "noor@example.com"}
	require.NoError(t, db.Create(&member).Error)
	trackerID := "tr-9"
	require.NoError(t, members.UpdateIntegrationRefs(ctx, member.ID, services.IntegrationRefs{TrackerUserID: &trackerID}))
	require.NoError(t, members.SetTrackerToken(ctx, member.ID, "tracker-token"))

	loaded, err := members.GetByID(ctx, member.ID)
	require.NoError(t, err)

	return &aggFixture{db: db, agg: agg, tracker: tracker, members: members, teams: teams, member: loaded}
}

func (f *aggFixture) addTeamWithLists(t *testing.T, name string, listIDs []string) {
	t.Helper()
	ctx := context.Background()

	team, err := f.teams.Create(ctx, services.CreateTeamInput{Name: name})
	require.NoError(t, err)
	if len(listIDs) > 0 {
		require.NoError(t, f.teams.UpdateInfraRefs(ctx, team.ID, services.TeamInfraRefs{TrackedListIDs: listIDs}))
	}
	_, err = f.teams.UpsertMembership(ctx, team.ID, f.member.ID, "")
	require.NoError(t, err)
}

func dueIn(days int) *time.Time {
	d := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
	return &d
}

func TestAssignedTasksDeduplicatesAcrossLists(t *testing.T) {
	f := newAggFixture(t, Config{})
	f.addTeamWithLists(t, "Platform", []string{"list-a", "list-b"})

	shared := integrations.Task{ID: "task-1", Title: "Shared", DueDate: dueIn(1)}
	f.tracker.byList = map[string][]integrations.Task{
		"list-a": {shared, {ID: "task-2", Title: "Only A", DueDate: dueIn(2)}},
		"list-b": {shared, {ID: "task-3", Title: "Only B", DueDate: dueIn(3)}},
	}

	digest, err := f.agg.AssignedTasks(context.Background(), f.member.ID)
	require.NoError(t, err)
	require.Len(t, digest.Tasks, 3, "overlapping ids must collapse to the union")
	require.False(t, digest.Unscoped)
	require.Empty(t, digest.Unavailable)
}

func TestAssignedTasksSortsByDueDateThenPriority(t *testing.T) {
	f := newAggFixture(t, Config{})
	f.addTeamWithLists(t, "Platform", []string{"list-a"})

	f.tracker.byList = map[string][]integrations.Task{
		"list-a": {
			{ID: "no-due-low", Priority: 1},
			{ID: "late", DueDate: dueIn(10), Priority: 1},
			{ID: "soon-high", DueDate: dueIn(1), Priority: 3},
			{ID: "soon-low", DueDate: dueIn(1), Priority: 1},
			{ID: "no-due-high", Priority: 5},
		},
	}

	digest, err := f.agg.AssignedTasks(context.Background(), f.member.ID)
	require.NoError(t, err)

	var order []string
	for _, task := range digest.Tasks {
		order = append(order, task.ID)
	}
	require.Equal(t, []string{"soon-high", "soon-low", "late", "no-due-high", "no-due-low"}, order)
}

func TestAssignedTasksCapsResults(t *testing.T) {
	f := newAggFixture(t, Config{MaxResults: 2})
	f.addTeamWithLists(t, "Platform", []string{"list-a"})

	f.tracker.byList = map[string][]integrations.Task{
		"list-a": {
			{ID: "t1", DueDate: dueIn(1)},
			{ID: "t2", DueDate: dueIn(2)},
			{ID: "t3", DueDate: dueIn(3)},
		},
	}

	digest, err := f.agg.AssignedTasks(context.Background(), f.member.ID)
	require.NoError(t, err)
	require.Len(t, digest.Tasks, 2)
	require.True(t, digest.Truncated)
	require.Equal(t, "t1", digest.Tasks[0].ID)
}

func TestAssignedTasksFailsFastOnInvalidCredential(t *testing.T) {
	f := newAggFixture(t, Config{})
	f.addTeamWithLists(t, "Platform", []string{"list-a", "list-b", "list-c"})
	f.tracker.valid = false

	_, err := f.agg.AssignedTasks(context.Background(), f.member.ID)
	require.ErrorIs(t, err, apperrors.ErrTrackerCredential)
	require.Zero(t, f.tracker.listCalls, "invalid credential must not trigger per-list queries")
}

func TestAssignedTasksRequiresStoredCredential(t *testing.T) {
	f := newAggFixture(t, Config{})

	bare := models.Member{Identity: "user#10", DisplayName: "Kim", Email: "kim@example.com"}
	require.NoError(t, f.db.Create(&bare).Error)

	_, err := f.agg.AssignedTasks(context.Background(), bare.ID)
	require.ErrorIs(t, err, apperrors.ErrTrackerCredential)
}

func TestAssignedTasksToleratesPartialListFailure(t *testing.T) {
	f := newAggFixture(t, Config{})
	f.addTeamWithLists(t, "Platform", []string{"list-ok", "list-down"})

	f.tracker.byList = map[string][]integrations.Task{
		"list-ok": {{ID: "t1", Title: "Healthy", DueDate: dueIn(1)}},
	}
	f.tracker.listErr = map[string]error{
		"list-down": integrations.FromStatus(integrations.SystemTracker, "tasks.list", http.StatusBadGateway, ""),
	}

	digest, err := f.agg.AssignedTasks(context.Background(), f.member.ID)
	require.NoError(t, err)
	require.Len(t, digest.Tasks, 1)
	require.Equal(t, []string{"list-down"}, digest.Unavailable)
	require.Contains(t, digest.Annotation(), "list-down")
}

func TestAssignedTasksFallsBackWhenNoListsTracked(t *testing.T) {
	f := newAggFixture(t, Config{})
	f.addTeamWithLists(t, "Platform", nil)

	f.tracker.all = []integrations.Task{
		{ID: "t1", DueDate: dueIn(1)},
		{ID: "t2", DueDate: dueIn(2)},
	}

	digest, err := f.agg.AssignedTasks(context.Background(), f.member.ID)
	require.NoError(t, err)
	require.True(t, digest.Unscoped)
	require.Len(t, digest.Tasks, 2)
}

func TestAssignedTasksUnionsListsAcrossTeams(t *testing.T) {
	f := newAggFixture(t, Config{})
	f.addTeamWithLists(t, "Platform", []string{"list-a", "shared-list"})
	f.addTeamWithLists(t, "Support", []string{"shared-list", "list-b"})

	f.tracker.byList = map[string][]integrations.Task{
		"list-a":      {{ID: "t1"}},
		"shared-list": {{ID: "t2"}},
		"list-b":      {{ID: "t3"}},
	}

	digest, err := f.agg.AssignedTasks(context.Background(), f.member.ID)
	require.NoError(t, err)
	require.Len(t, digest.Tasks, 3)
	// The shared list is queried once, not once per team.
	require.Equal(t, 3, f.tracker.listCalls)
}
