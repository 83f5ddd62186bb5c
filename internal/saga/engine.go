package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/crewdeckhq/crewdeck/internal/integrations"
	"github.com/crewdeckhq/crewdeck/internal/services"
	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
	"github.com/crewdeckhq/crewdeck/pkg/logger"
	"github.com/crewdeckhq/crewdeck/pkg/metrics"
	"github.com/crewdeckhq/crewdeck/pkg/validator"
)

// Config holds the shared workspace resources steps write into and the
// engine's concurrency knobs.
type Config struct {
	// LeaseTTL bounds how long an entity stays locked if a run never
	// finishes cleanly. It must stay comfortably above a worst-case run:
	// every external call retried to budget with full backoff.
	LeaseTTL time.Duration

	// MembersFolderID is the document-store folder for member profile docs.
	MembersFolderID string
	// RosterSheetID is the org-wide roster spreadsheet.
	RosterSheetID string
	// AnnounceChannelID receives membership announcements.
	AnnounceChannelID string
	// ChannelCategoryID is the chat category new team channels land under.
	ChannelCategoryID string
}

const defaultLeaseTTL = 10 * time.Minute

// Deps are the collaborators a saga engine needs. All are required except
// Audit.
type Deps struct {
	Onboarding *services.OnboardingService
	Members    *services.MemberService
	Teams      *services.TeamService
	Audit      *services.AuditService
	Clients    integrations.Clients
	Leases     LeaseStore
}

// Engine executes provisioning sagas: for each trigger kind it runs a fixed
// sequence of idempotent steps under a per-entity lease, retrying transient
// external failures and folding the rest into the report.
type Engine struct {
	deps   Deps
	cfg    Config
	policy RetryPolicy
	log    *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRetryPolicy overrides the retry behavior applied to each external
// call a step makes.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(e *Engine) { e.policy = policy }
}

func NewEngine(deps Deps, cfg Config, opts ...Option) (*Engine, error) {
	if deps.Onboarding == nil || deps.Members == nil || deps.Teams == nil {
		return nil, fmt.Errorf("saga engine: onboarding, member, and team services are required")
	}
	if deps.Leases == nil {
		return nil, fmt.Errorf("saga engine: lease store is required")
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = defaultLeaseTTL
	}
	e := &Engine{
		deps:   deps,
		cfg:    cfg,
		policy: DefaultRetryPolicy(),
		log:    logger.WithModule("saga"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run executes the saga for trigger. Precondition violations and lease
// contention return an error and make no external calls; once steps start
// executing the outcome is always a Report.
func (e *Engine) Run(ctx context.Context, trigger Trigger) (*Report, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if err := validator.ValidateStruct(trigger); err != nil {
		return nil, apperrors.NewValidation(err.Error())
	}

	plan, err := e.planFor(trigger)
	if err != nil {
		return nil, err
	}

	sc := newContext(trigger, e.log, e.policy)
	leaseKey, err := plan.resolve(ctx, sc)
	if err != nil {
		return nil, err
	}

	owner := uuid.NewString()
	acquired, err := e.deps.Leases.Acquire(ctx, leaseKey, owner, e.cfg.LeaseTTL)
	if err != nil {
		return nil, err
	}
	if !acquired {
		metrics.LeaseContention.Inc()
		return nil, apperrors.ErrSagaBusy
	}
	defer func() {
		if releaseErr := e.deps.Leases.Release(context.WithoutCancel(ctx), leaseKey, owner); releaseErr != nil {
			sc.Log.Warn("failed to release saga lease",
				zap.String("key", leaseKey), zap.Error(releaseErr))
		}
	}()

	if plan.precheck != nil {
		if err := plan.precheck(ctx, sc); err != nil {
			return nil, err
		}
	}

	report := e.execute(ctx, sc, plan.steps)

	result := "automated"
	switch {
	case report.Aborted:
		result = "aborted"
	case !report.FullyAutomated():
		result = "manual_followup"
	}
	metrics.SagaRuns.WithLabelValues(string(trigger.Kind()), result).Inc()
	e.recordAudit(ctx, sc, leaseKey, result)
	return report, nil
}

func (e *Engine) execute(ctx context.Context, sc *Context, steps []Step) *Report {
	report := &Report{Trigger: sc.Trigger.Kind()}

	for _, step := range steps {
		if step.Skip != nil {
			if skip, detail := step.Skip(sc); skip {
				report.Outcomes = append(report.Outcomes, Outcome{
					Step:   step.Name,
					System: step.System,
					Class:  step.Class,
					Status: StatusSkipped,
					Detail: detail,
				})
				metrics.StepOutcomes.WithLabelValues(step.Name, string(StatusSkipped)).Inc()
				continue
			}
		}

		detail, err := step.Run(ctx, sc)

		outcome := Outcome{
			Step:   step.Name,
			System: step.System,
			Class:  step.Class,
			Status: StatusSuccess,
			Detail: detail,
		}
		if err != nil {
			outcome.Status = StatusFailed
			outcome.Detail = err.Error()
			if step.Remediation != nil {
				outcome.Remediation = step.Remediation(sc)
			}
			sc.Log.Warn("saga step failed",
				zap.String("step", step.Name),
				zap.String("system", step.System),
				zap.String("class", string(step.Class)),
				zap.Error(err))
		}
		metrics.StepOutcomes.WithLabelValues(step.Name, string(outcome.Status)).Inc()
		report.Outcomes = append(report.Outcomes, outcome)

		if err != nil && step.Class == Required {
			report.Aborted = true
			break
		}
	}
	return report
}

func (e *Engine) recordAudit(ctx context.Context, sc *Context, resource, result string) {
	if e.deps.Audit == nil {
		return
	}
	entry := services.AuditEntry{
		Actor:    "saga-engine",
		Action:   string(sc.Trigger.Kind()),
		Resource: resource,
		Result:   result,
	}
	if err := e.deps.Audit.Log(ctx, entry); err != nil {
		sc.Log.Warn("failed to record saga audit entry", zap.Error(err))
	}
}

// plan binds a trigger kind to its lease key resolution, precondition
// checks, and step sequence.
type plan struct {
	resolve  func(ctx context.Context, sc *Context) (string, error)
	precheck func(ctx context.Context, sc *Context) error
	steps    []Step
}

func (e *Engine) planFor(trigger Trigger) (*plan, error) {
	switch t := trigger.(type) {
	case ApproveOnboarding:
		return e.approveOnboardingPlan(t), nil
	case *ApproveOnboarding:
		return e.approveOnboardingPlan(*t), nil
	case CreateTeam:
		return e.createTeamPlan(t), nil
	case *CreateTeam:
		return e.createTeamPlan(*t), nil
	case AddMemberToTeam:
		return e.addMemberPlan(t), nil
	case *AddMemberToTeam:
		return e.addMemberPlan(*t), nil
	case PromoteToLead:
		return e.promoteToLeadPlan(t), nil
	case *PromoteToLead:
		return e.promoteToLeadPlan(*t), nil
	default:
		return nil, fmt.Errorf("saga engine: unregistered trigger kind %q", trigger.Kind())
	}
}
