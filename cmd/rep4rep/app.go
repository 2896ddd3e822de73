package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/rep4rep/steam-commenter/internal/config"
	"github.com/rep4rep/steam-commenter/internal/database"
	"github.com/rep4rep/steam-commenter/internal/jobs"
	"github.com/rep4rep/steam-commenter/internal/redis"
	"github.com/rep4rep/steam-commenter/internal/rep4rep"
	"github.com/rep4rep/steam-commenter/internal/repository"
	"github.com/rep4rep/steam-commenter/internal/service"
	"github.com/rep4rep/steam-commenter/internal/steam"
	"github.com/rep4rep/steam-commenter/internal/util"
)

// app holds the wired services for one command invocation.
type app struct {
	db       *database.DB
	redis    *redis.Client
	profiles *service.ProfileService
	fleet    *service.FleetScheduler
	lock     jobs.Lock
}

func newApp(ctx context.Context, cfg *config.Config, needsAPI bool) (*app, error) {
	if needsAPI {
		if err := cfg.RequireAPIKey(); err != nil {
			return nil, err
		}
	}

	cipher, err := util.NewCipher(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to init encryption: %w", err)
	}

	db, err := database.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, config.DBPingTimeout)
	defer cancel()
	if err := db.Ping(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Debug().Bool("postgres", cfg.IsPostgres()).Msg("database connected")

	a := &app{db: db}

	if cfg.RedisURL != "" {
		a.redis, err = redis.NewClient(ctx, cfg.RedisURL)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.lock = redis.NewRunLock(a.redis, redis.RunLockKey("fleet"), cfg.RunLockTTL())
		log.Info().Msg("redis connected, run lock enabled")
	}

	profileRepo := repository.NewProfileRepository(db.DB, cipher)
	api := rep4rep.NewClient(cfg.Rep4RepURL, cfg.Rep4RepKey, rep4rep.WithRateLimit(cfg.Rep4RepRatePerSec))
	newSession := func() service.SessionClient { return steam.NewClient() }

	login := service.NewLoginService(profileRepo, nil)
	runner := service.NewTaskRunner(profileRepo, api, nil, cfg.CommentDelay())

	a.fleet = service.NewFleetScheduler(profileRepo, api, login, runner, newSession, nil, service.FleetOptions{
		LoginDelay:  cfg.LoginDelay(),
		MaxComments: cfg.MaxComments,
	})
	a.profiles = service.NewProfileService(profileRepo, api, login, newSession, newStdinPrompter(), nil, service.ProfileOptions{
		LoginDelay:    cfg.LoginDelay(),
		RegisterDelay: cfg.RegisterDelay(),
		MaxComments:   cfg.MaxComments,
	})

	return a, nil
}

// runFleet runs one fleet pass, skipping it when another instance holds the
// run lock.
func (a *app) runFleet(ctx context.Context) (*service.FleetSummary, error) {
	var summary *service.FleetSummary
	ran, err := jobs.RunExclusive(ctx, a.lock, func(ctx context.Context) error {
		var err error
		summary, err = a.fleet.Run(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !ran {
		log.Warn().Msg("another instance is running the fleet, skipping")
		return &service.FleetSummary{}, nil
	}
	return summary, nil
}

func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	a.db.Close()
}
