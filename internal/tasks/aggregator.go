package tasks

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/crewdeckhq/crewdeck/internal/integrations"
	"github.com/crewdeckhq/crewdeck/internal/services"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
	"github.com/crewdeckhq/crewdeck/pkg/logger"
	"github.com/crewdeckhq/crewdeck/pkg/metrics"
)

const (
	defaultWorkers     = 4
	defaultMaxResults  = 50
	defaultListTimeout = 15 * time.Second
)

// Config tunes the aggregator's fan-out and result shaping.
type Config struct {
	// Workers bounds how many list queries run concurrently.
	Workers int
	// MaxResults caps the merged task list.
	MaxResults int
	// ListTimeout bounds each per-list query; a timeout marks that list
	// unavailable without failing the whole call.
	ListTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}
	if c.MaxResults <= 0 {
		c.MaxResults = defaultMaxResults
	}
	if c.ListTimeout <= 0 {
		c.ListTimeout = defaultListTimeout
	}
	return c
}

// Digest is the merged view of a member's assigned tasks across every
// tracked list their teams watch.
type Digest struct {
	Tasks []integrations.Task `json:"tasks"`
	// Unavailable names the tracked lists whose queries failed.
	Unavailable []string `json:"unavailable,omitempty"`
	// Truncated is set when MaxResults cut the merged list short.
	Truncated bool `json:"truncated"`
	// Unscoped is set when results came from the credential-wide fallback
	// because no team tracked any list.
	Unscoped bool `json:"unscoped"`
}

// Annotation renders the unavailable-lists notice, or "" when every list
// answered.
func (d *Digest) Annotation() string {
	if len(d.Unavailable) == 0 {
		return ""
	}
	return fmt.Sprintf("%d list(s) unavailable: %s", len(d.Unavailable), strings.Join(d.Unavailable, ", "))
}

// Aggregator resolves a member's tracked lists and fans out tracker queries
// with bounded concurrency.
type Aggregator struct {
	members *services.MemberService
	teams   *services.TeamService
	tracker integrations.TrackerClient
	cfg     Config
	log     *zap.Logger
}

func NewAggregator(members *services.MemberService, teams *services.TeamService, tracker integrations.TrackerClient, cfg Config) (*Aggregator, error) {
	if members == nil || teams == nil {
		return nil, fmt.Errorf("task aggregator: member and team services are required")
	}
	if tracker == nil {
		return nil, fmt.Errorf("task aggregator: tracker client is required")
	}
	return &Aggregator{
		members: members,
		teams:   teams,
		tracker: tracker,
		cfg:     cfg.withDefaults(),
		log:     logger.WithModule("tasks"),
	}, nil
}

// AssignedTasks returns the member's deduplicated, sorted task digest. The
// tracker credential is validated exactly once up front: an invalid
// credential fails fast instead of producing one auth failure per list.
func (a *Aggregator) AssignedTasks(ctx context.Context, memberID string) (*Digest, error) {
	member, err := a.members.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}

	token, err := a.members.TrackerToken(member)
	if err != nil {
		return nil, err
	}
	if token == "" {
		metrics.TrackerListQueries.WithLabelValues("credential_missing").Inc()
		return nil, apperrors.ErrTrackerCredential
	}

	valid, err := a.tracker.ValidateCredential(ctx, token)
	if err != nil {
		return nil, err
	}
	if !valid {
		metrics.TrackerListQueries.WithLabelValues("credential_invalid").Inc()
		return nil, apperrors.ErrTrackerCredential
	}

	lists, err := a.trackedLists(ctx, member.ID)
	if err != nil {
		return nil, err
	}

	digest := &Digest{}
	var tasks []integrations.Task
	if len(lists) == 0 {
		// Scoping is a focus feature, not a prerequisite for results.
		digest.Unscoped = true
		tasks, err = a.queryUnscoped(ctx, member.TrackerUserID, token)
		if err != nil {
			return nil, err
		}
	} else {
		var unavailable []string
		tasks, unavailable = a.fanOut(ctx, lists, member.TrackerUserID, token)
		digest.Unavailable = unavailable
	}

	digest.Tasks, digest.Truncated = mergeTasks(tasks, a.cfg.MaxResults)
	return digest, nil
}

// trackedLists unions the tracked list ids across the member's active teams,
// preserving first-seen order.
func (a *Aggregator) trackedLists(ctx context.Context, memberID string) ([]string, error) {
	memberships, err := a.teams.ActiveMemberships(ctx, memberID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var lists []string
	for _, m := range memberships {
		for _, listID := range m.Team.TrackedListIDs() {
			if _, ok := seen[listID]; ok {
				continue
			}
			seen[listID] = struct{}{}
			lists = append(lists, listID)
		}
	}
	return lists, nil
}

func (a *Aggregator) queryUnscoped(ctx context.Context, trackerUserID, token string) ([]integrations.Task, error) {
	queryCtx, cancel := context.WithTimeout(ctx, a.cfg.ListTimeout)
	defer cancel()

	found, err := a.tracker.ListAllAssignedTasks(queryCtx, trackerUserID, token)
	if err != nil {
		metrics.TrackerListQueries.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.TrackerListQueries.WithLabelValues("ok").Inc()
	return found, nil
}

// fanOut queries every list through a fixed worker pool. A failing list is
// recorded as unavailable; it never blanks out results from healthy lists.
func (a *Aggregator) fanOut(ctx context.Context, lists []string, trackerUserID, token string) ([]integrations.Task, []string) {
	type listResult struct {
		index int
		tasks []integrations.Task
		err   error
	}

	jobs := make(chan int)
	results := make(chan listResult)

	workers := a.cfg.Workers
	if workers > len(lists) {
		workers = len(lists)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				queryCtx, cancel := context.WithTimeout(ctx, a.cfg.ListTimeout)
				found, err := a.tracker.ListAssignedTasks(queryCtx, lists[idx], trackerUserID, token)
				cancel()
				results <- listResult{index: idx, tasks: found, err: err}
			}
		}()
	}

	go func() {
		for idx := range lists {
			jobs <- idx
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	var tasks []integrations.Task
	failed := make([]bool, len(lists))
	for res := range results {
		if res.err != nil {
			failed[res.index] = true
			metrics.TrackerListQueries.WithLabelValues("failed").Inc()
			a.log.Warn("tracked list query failed",
				zap.String("list_id", lists[res.index]),
				zap.Error(res.err))
			continue
		}
		metrics.TrackerListQueries.WithLabelValues("ok").Inc()
		tasks = append(tasks, res.tasks...)
	}

	var unavailable []string
	for idx, bad := range failed {
		if bad {
			unavailable = append(unavailable, lists[idx])
		}
	}
	return tasks, unavailable
}

// mergeTasks deduplicates by task id (first occurrence wins) and sorts by
// due date ascending with missing due dates last, higher priority breaking
// ties, then id for a stable total order.
func mergeTasks(tasks []integrations.Task, maxResults int) ([]integrations.Task, bool) {
	seen := make(map[string]struct{}, len(tasks))
	merged := make([]integrations.Task, 0, len(tasks))
	for _, task := range tasks {
		if _, ok := seen[task.ID]; ok {
			continue
		}
		seen[task.ID] = struct{}{}
		merged = append(merged, task)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		a, b := merged[i], merged[j]
		switch {
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && b.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})

	if len(merged) > maxResults {
		return merged[:maxResults], true
	}
	return merged, false
}
