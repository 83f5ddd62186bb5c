package main

import (
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/crewdeckhq/crewdeck/internal/app"
	"github.com/crewdeckhq/crewdeck/internal/database"
	"github.com/crewdeckhq/crewdeck/internal/integrations"
	"github.com/crewdeckhq/crewdeck/internal/ratelimit"
	"github.com/crewdeckhq/crewdeck/internal/saga"
	"github.com/crewdeckhq/crewdeck/internal/services"
	"github.com/crewdeckhq/crewdeck/internal/tasks"
)

// runtimeStack bundles long-lived services used by the HTTP server and the
// queue consumer.
type runtimeStack struct {
	Onboarding *services.OnboardingService
	Members    *services.MemberService
	Teams      *services.TeamService
	Audit      *services.AuditService
	Leases     saga.LeaseStore
	Engine     *saga.Engine
	Aggregator *tasks.Aggregator
	Clients    integrations.Clients
}

func newRuntimeStack(cfg *app.Config, db *gorm.DB) (*runtimeStack, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}
	onboarding, err := services.NewOnboardingService(db, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise onboarding service: %w", err)
	}
	members, err := services.NewMemberService(db, audit, cfg.Vault.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("initialise member service: %w", err)
	}
	teams, err := services.NewTeamService(db, audit)
	if err != nil {
		return nil, fmt.Errorf("initialise team service: %w", err)
	}

	clients := buildClients(cfg)
	leases := saga.NewGormLeaseStore(db)

	engine, err := saga.NewEngine(saga.Deps{
		Onboarding: onboarding,
		Members:    members,
		Teams:      teams,
		Audit:      audit,
		Clients:    clients,
		Leases:     leases,
	}, saga.Config{
		LeaseTTL:          cfg.Saga.LeaseTTL,
		MembersFolderID:   cfg.Workspace.MembersFolderID,
		RosterSheetID:     cfg.Workspace.RosterSheetID,
		AnnounceChannelID: cfg.Workspace.AnnounceChannelID,
		ChannelCategoryID: cfg.Workspace.ChannelCategoryID,
	}, saga.WithRetryPolicy(saga.RetryPolicy{
		MaxAttempts: cfg.Saga.RetryAttempts,
		BaseDelay:   cfg.Saga.RetryBase,
		MaxDelay:    cfg.Saga.RetryMax,
		Jitter:      0.2,
	}))
	if err != nil {
		return nil, fmt.Errorf("initialise saga engine: %w", err)
	}

	aggregator, err := tasks.NewAggregator(members, teams, clients.Tracker, tasks.Config{
		Workers:     cfg.Tracker.Workers,
		MaxResults:  cfg.Tracker.MaxResults,
		ListTimeout: cfg.Tracker.ListTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise task aggregator: %w", err)
	}

	return &runtimeStack{
		Onboarding: onboarding,
		Members:    members,
		Teams:      teams,
		Audit:      audit,
		Leases:     leases,
		Engine:     engine,
		Aggregator: aggregator,
		Clients:    clients,
	}, nil
}

func buildClients(cfg *app.Config) integrations.Clients {
	limiter := ratelimit.New(ratelimit.Rate{PerSecond: 5, Burst: 10},
		ratelimit.WithSystemRate(integrations.SystemIdentity, systemRate(cfg.Integrations.Identity)),
		ratelimit.WithSystemRate(integrations.SystemDocs, systemRate(cfg.Integrations.Docs)),
		ratelimit.WithSystemRate(integrations.SystemChat, systemRate(cfg.Integrations.Chat)),
		ratelimit.WithSystemRate(integrations.SystemTracker, systemRate(cfg.Integrations.Tracker)),
	)

	return integrations.Clients{
		Identity: integrations.NewHTTPIdentityClient(cfg.Integrations.Identity.BaseURL, cfg.Integrations.Identity.Token, limiter),
		Docs:     integrations.NewHTTPDocumentClient(cfg.Integrations.Docs.BaseURL, cfg.Integrations.Docs.Token, limiter),
		Chat:     integrations.NewHTTPChatClient(cfg.Integrations.Chat.BaseURL, cfg.Integrations.Chat.Token, limiter),
		Tracker:  integrations.NewHTTPTrackerClient(cfg.Integrations.Tracker.BaseURL, limiter),
	}
}

func systemRate(system app.SystemConfig) ratelimit.Rate {
	return ratelimit.Rate{PerSecond: system.RatePerSecond, Burst: system.RateBurst}
}

func convertDatabaseConfig(cfg *app.Config) database.Config {
	dbCfg := database.Config{
		Driver: strings.ToLower(strings.TrimSpace(cfg.Database.Driver)),
		Path:   strings.TrimSpace(cfg.Database.Path),
		DSN:    strings.TrimSpace(cfg.Database.DSN),
	}

	switch dbCfg.Driver {
	case "", "sqlite":
		dbCfg.Driver = "sqlite"
	case "postgres", "postgresql":
		dbCfg.Driver = "postgres"
		dbCfg.Host = strings.TrimSpace(cfg.Database.Postgres.Host)
		dbCfg.Port = cfg.Database.Postgres.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.Postgres.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.Postgres.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.Postgres.Password)
	case "mysql":
		dbCfg.Host = strings.TrimSpace(cfg.Database.MySQL.Host)
		dbCfg.Port = cfg.Database.MySQL.Port
		dbCfg.Name = strings.TrimSpace(cfg.Database.MySQL.Database)
		dbCfg.User = strings.TrimSpace(cfg.Database.MySQL.Username)
		dbCfg.Password = strings.TrimSpace(cfg.Database.MySQL.Password)
	default:
		// Leave driver as-is to surface unsupported driver error during open.
	}

	return dbCfg
}
