package api

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/internal/app"
	"github.com/crewdeckhq/crewdeck/internal/handlers"
	"github.com/crewdeckhq/crewdeck/internal/integrations"
	"github.com/crewdeckhq/crewdeck/internal/middleware"
	"github.com/crewdeckhq/crewdeck/internal/services"
	"github.com/crewdeckhq/crewdeck/internal/tasks"
)

// Deps bundles everything the router mounts.
type Deps struct {
	DB         *gorm.DB
	Config     *app.Config
	Onboarding *services.OnboardingService
	Members    *services.MemberService
	Teams      *services.TeamService
	Engine     handlers.SagaRunner
	Aggregator *tasks.Aggregator
	Tracker    integrations.TrackerClient
	// RateStore optionally backs the request rate limiter with shared
	// storage; nil falls back to an in-memory limiter.
	RateStore middleware.RateStore
}

// NewRouter builds the Gin engine, wires middleware and registers the
// trigger API routes.
func NewRouter(deps Deps) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, fmt.Errorf("database handle must be provided")
	}
	if deps.Config == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("saga engine must be provided")
	}

	r := gin.New()

	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.Actor())
	// Basic rate limiting: 100 requests/minute per IP+path
	r.Use(middleware.RateLimitWithStore(deps.RateStore, 100, time.Minute))
	r.NoRoute(middleware.NotFoundHandler)

	if deps.Config.Monitoring.Health.Enabled {
		r.GET("/api/health", handlers.Health(deps.DB))
	}
	if deps.Config.Monitoring.Prometheus.Enabled {
		endpoint := deps.Config.Monitoring.Prometheus.Endpoint
		if endpoint == "" {
			endpoint = "/metrics"
		}
		r.GET(endpoint, gin.WrapH(promhttp.Handler()))
	}

	onboardingHandler, err := handlers.NewOnboardingHandler(deps.Onboarding, deps.Engine)
	if err != nil {
		return nil, err
	}
	teamHandler, err := handlers.NewTeamHandler(deps.Teams, deps.Engine)
	if err != nil {
		return nil, err
	}

	api := r.Group("/api")

	onboarding := api.Group("/onboarding/requests")
	{
		onboarding.POST("", onboardingHandler.Submit)
		onboarding.GET("", onboardingHandler.ListPending)
		onboarding.POST("/:id/approve", onboardingHandler.Approve)
		onboarding.POST("/:id/reject", onboardingHandler.Reject)
	}

	teams := api.Group("/teams")
	{
		teams.POST("", teamHandler.Create)
		teams.GET("/:id", teamHandler.Get)
		teams.POST("/:id/members", teamHandler.AddMember)
		teams.POST("/:id/lead", teamHandler.SetLead)
	}

	members := api.Group("/members")
	if deps.Members != nil && deps.Tracker != nil {
		memberHandler, err := handlers.NewMemberHandler(deps.Members, deps.Tracker)
		if err != nil {
			return nil, err
		}
		members.POST("/:id/tracker-token", memberHandler.ConnectTracker)
	}
	if deps.Aggregator != nil {
		taskHandler, err := handlers.NewTaskHandler(deps.Aggregator)
		if err != nil {
			return nil, err
		}
		members.GET("/:id/tasks", taskHandler.Assigned)
	}

	return r, nil
}
