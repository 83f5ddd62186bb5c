package saga

import (
	"context"

	"go.uber.org/zap"

	"github.com/crewdeckhq/crewdeck/internal/models"
)

// Context accumulates results across a saga's steps. Later steps read what
// earlier steps produced (e.g. the member id minted by the create step).
// It is confined to a single saga run and never shared across goroutines.
type Context struct {
	Trigger Trigger
	Log     *zap.Logger

	Request    *models.OnboardingRequest
	Member     *models.Member
	Team       *models.Team
	Membership *models.TeamMembership

	// LeadCandidate is resolved for CreateTeam when a lead identity was given.
	LeadCandidate *models.Member

	// TempCredential is the one-time credential minted by the identity
	// provider, held only long enough to deliver it by DM.
	TempCredential string

	retry RetryPolicy
}

// Call runs one external client call under the engine's retry policy. The
// budget is scoped to the individual call rather than the whole step, so a
// transient failure late in a multi-call step never replays calls that
// already succeeded.
func (sc *Context) Call(ctx context.Context, fn func() error) error {
	return sc.retry.Do(ctx, fn)
}

func newContext(trigger Trigger, log *zap.Logger, retry RetryPolicy) *Context {
	if log == nil {
		log = zap.NewNop()
	}
	return &Context{
		Trigger: trigger,
		Log:     log.With(zap.String("trigger", string(trigger.Kind()))),
		retry:   retry,
	}
}
