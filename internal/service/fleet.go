package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rep4rep/steam-commenter/internal/config"
	"github.com/rep4rep/steam-commenter/internal/model"
	"github.com/rep4rep/steam-commenter/internal/repository"
)

type AccountOutcome string

const (
	OutcomeCompleted AccountOutcome = "completed"
	OutcomeNotReady  AccountOutcome = "not_ready"
	OutcomeNotSynced AccountOutcome = "not_synced"
	OutcomeNoTasks   AccountOutcome = "no_tasks"
	OutcomeFailed    AccountOutcome = "failed"
)

type AccountResult struct {
	Username string
	Outcome  AccountOutcome
	Comments int
	Message  string
}

// FleetSummary reports one pass over every stored account.
type FleetSummary struct {
	Accounts []AccountResult
}

func (s *FleetSummary) CommentsPosted() int {
	total := 0
	for _, a := range s.Accounts {
		total += a.Comments
	}
	return total
}

func (s *FleetSummary) Count(outcome AccountOutcome) int {
	n := 0
	for _, a := range s.Accounts {
		if a.Outcome == outcome {
			n++
		}
	}
	return n
}

type FleetOptions struct {
	LoginDelay  time.Duration
	MaxComments int
}

// FleetScheduler processes every stored account strictly one after another.
type FleetScheduler struct {
	profiles   repository.ProfileRepository
	rep4rep    ReputationClient
	login      *LoginService
	runner     *TaskRunner
	newSession SessionFactory
	sleep      Sleeper
	opts       FleetOptions
	now        func() time.Time
}

func NewFleetScheduler(
	profiles repository.ProfileRepository,
	rep4rep ReputationClient,
	login *LoginService,
	runner *TaskRunner,
	newSession SessionFactory,
	sleep Sleeper,
	opts FleetOptions,
) *FleetScheduler {
	if sleep == nil {
		sleep = SleepContext
	}
	return &FleetScheduler{
		profiles:   profiles,
		rep4rep:    rep4rep,
		login:      login,
		runner:     runner,
		newSession: newSession,
		sleep:      sleep,
		opts:       opts,
		now:        time.Now,
	}
}

// Run gives every eligible account one commenting session. Per-account
// failures are logged and recorded in the summary; only store, profile list
// and context failures abort the pass.
func (f *FleetScheduler) Run(ctx context.Context) (*FleetSummary, error) {
	accounts, err := f.profiles.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	remoteProfiles, err := f.rep4rep.GetSteamProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rep4rep profiles: %w", err)
	}

	summary := &FleetSummary{}
	for i, account := range accounts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		log.Info().
			Str("account", account.Username).
			Str("steam_id", account.SteamID).
			Msg("attempting to leave comments")

		result, ran := f.runAccount(ctx, account, remoteProfiles)
		summary.Accounts = append(summary.Accounts, result)

		if ran && i != len(accounts)-1 {
			if err := f.sleep(ctx, f.opts.LoginDelay); err != nil {
				return summary, err
			}
		}
	}

	log.Info().
		Int("accounts", len(accounts)).
		Int("completed", summary.Count(OutcomeCompleted)).
		Int("failed", summary.Count(OutcomeFailed)).
		Int("comments", summary.CommentsPosted()).
		Msg("fleet run completed")
	return summary, nil
}

// runAccount reports whether the account reached the commenting stage, which
// is what earns the inter-account delay.
func (f *FleetScheduler) runAccount(ctx context.Context, account model.Account, remoteProfiles []model.SteamProfile) (AccountResult, bool) {
	logger := log.With().Str("account", account.Username).Logger()
	result := AccountResult{Username: account.Username}

	if hours, ok := account.HoursSinceLastComment(f.now()); ok && hours < int(config.CommentWindow.Hours()) {
		wait := int(config.CommentWindow.Hours()) - hours
		result.Outcome = OutcomeNotReady
		result.Message = fmt.Sprintf("try again in %d hours", wait)
		logger.Info().Int("hours_left", wait).Msgf("not ready yet, %s", result.Message)
		return result, false
	}

	remote, ok := findRemoteProfile(remoteProfiles, account.SteamID)
	if !ok {
		result.Outcome = OutcomeNotSynced
		result.Message = "steam profile does not exist on rep4rep, sync it first"
		logger.Warn().Msg(result.Message)
		return result, false
	}

	tasks, err := f.rep4rep.GetTasks(ctx, remote.ID.String())
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Message = err.Error()
		logger.Error().Err(err).Msg("failed to fetch tasks")
		return result, false
	}
	if len(tasks) == 0 {
		result.Outcome = OutcomeNoTasks
		result.Message = "no tasks found"
		logger.Info().Msg("no tasks found for the profile, skipping")
		return result, false
	}

	client := f.newSession()
	if _, err := f.login.LoginWithRetries(ctx, client, account); err != nil {
		result.Outcome = OutcomeFailed
		result.Message = "logged out, re-auth needed"
		logger.Error().Err(err).Msg(result.Message)
		return result, false
	}

	posted, err := f.runner.Run(ctx, account, client, tasks, remote.ID.String(), f.opts.MaxComments)
	result.Comments = posted
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Message = err.Error()
		return result, true
	}
	result.Outcome = OutcomeCompleted
	return result, true
}

func findRemoteProfile(profiles []model.SteamProfile, steamID string) (model.SteamProfile, bool) {
	if steamID == "" {
		return model.SteamProfile{}, false
	}
	for _, p := range profiles {
		if p.SteamID.String() == steamID {
			return p, true
		}
	}
	return model.SteamProfile{}, false
}
