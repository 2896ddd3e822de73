package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rep4rep/steam-commenter/internal/audit"
	"github.com/rep4rep/steam-commenter/internal/config"
	apperrors "github.com/rep4rep/steam-commenter/internal/errors"
	"github.com/rep4rep/steam-commenter/internal/model"
	"github.com/rep4rep/steam-commenter/internal/repository"
	"github.com/rep4rep/steam-commenter/internal/util"
)

type ProfileOptions struct {
	LoginDelay    time.Duration
	RegisterDelay time.Duration
	MaxComments   int
}

// ProfileService registers accounts, keeps them synced with rep4rep and
// answers questions about the stored fleet.
type ProfileService struct {
	profiles   repository.ProfileRepository
	rep4rep    ReputationClient
	login      *LoginService
	newSession SessionFactory
	prompter   Prompter
	sleep      Sleeper
	opts       ProfileOptions
	now        func() time.Time
	jitter     func(time.Duration) time.Duration
}

func NewProfileService(
	profiles repository.ProfileRepository,
	rep4rep ReputationClient,
	login *LoginService,
	newSession SessionFactory,
	prompter Prompter,
	sleep Sleeper,
	opts ProfileOptions,
) *ProfileService {
	if sleep == nil {
		sleep = SleepContext
	}
	return &ProfileService{
		profiles:   profiles,
		rep4rep:    rep4rep,
		login:      login,
		newSession: newSession,
		prompter:   prompter,
		sleep:      sleep,
		opts:       opts,
		now:        time.Now,
		jitter: func(limit time.Duration) time.Duration {
			if limit <= 0 {
				return 0
			}
			return rand.N(limit)
		},
	}
}

// List returns every stored account.
func (s *ProfileService) List(ctx context.Context) ([]model.Account, error) {
	return s.profiles.FindAll(ctx)
}

// AddProfile logs a new account in, resolving interrupts as they come, and
// registers it with rep4rep.
func (s *ProfileService) AddProfile(ctx context.Context, creds model.AccountCredentials) error {
	client := s.newSession()
	state, err := s.authenticate(ctx, client, creds, "")
	if err != nil {
		log.Error().Err(err).Str("account", creds.Username).Msg("failed to add profile")
		return err
	}

	audit.Log(ctx, audit.Event{Type: audit.EventAccountCreate, Account: creds.Username, SteamID: state.SteamID})

	if err := s.Sync(ctx, state.SteamID); err != nil {
		log.Error().Err(err).Str("account", creds.Username).Msg("failed to sync")
	} else {
		log.Info().Str("account", creds.Username).Msg("synced to rep4rep")
	}
	log.Info().Str("account", creds.Username).Str("steam_id", state.SteamID).Msg("profile added")
	return nil
}

// authenticate loops over the login state machine, feeding the matching
// interrupt response back in on each attempt. Rate limits back off and
// retry; any other error aborts.
func (s *ProfileService) authenticate(ctx context.Context, client SessionClient, creds model.AccountCredentials, cachedSession string) (*model.SessionState, error) {
	logger := log.With().Str("account", creds.Username).Logger()
	opts := LoginOptions{CachedSession: cachedSession}

	for attempt := 1; attempt <= config.RegisterMaxAttempts; attempt++ {
		state, err := s.login.Login(ctx, client, creds, opts)
		if err != nil {
			if !apperrors.HasCode(err, apperrors.ErrCodeRateLimitExceeded) {
				return nil, err
			}
			if attempt == config.RegisterMaxAttempts {
				break
			}
			backoff := config.RateLimitBackoffMin + s.jitter(config.RateLimitBackoffJitter)
			logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Msg("rate limit exceeded, waiting before retrying")
			if err := s.sleep(ctx, backoff); err != nil {
				return nil, err
			}
			continue
		}

		// a fresh interrupt response is collected each time; stale ones are dropped
		opts = LoginOptions{}

		switch state.Status {
		case model.SessionLoggedIn:
			return state, nil

		case model.SessionThrottled:
			return nil, apperrors.Throttled(fmt.Sprintf("[%s] login throttled", creds.Username))

		case model.SessionNeedsMobileCode:
			if creds.SharedSecret != "" {
				continue
			}
			code, err := s.prompt(ctx, creds.Username, state)
			if err != nil {
				return nil, err
			}
			opts.TwoFactorCode = code

		case model.SessionNeedsEmailCode:
			code, err := s.prompt(ctx, creds.Username, state)
			if err != nil {
				return nil, err
			}
			opts.EmailCode = code

		case model.SessionNeedsCaptcha:
			text, err := s.prompt(ctx, creds.Username, state)
			if err != nil {
				return nil, err
			}
			opts.CaptchaGID = state.CaptchaGID
			opts.CaptchaText = text
		}
	}

	return nil, apperrors.LoginFailed(creds.Username, config.RegisterMaxAttempts)
}

func (s *ProfileService) prompt(ctx context.Context, username string, state *model.SessionState) (string, error) {
	if s.prompter == nil {
		return "", apperrors.New(apperrors.ErrCodeMissingRequired,
			fmt.Sprintf("[%s] %s needs interactive input", username, state.Status))
	}
	return s.prompter.Prompt(ctx, PromptRequest{
		Username:    username,
		Status:      state.Status,
		EmailDomain: state.EmailDomain,
		CaptchaURL:  state.CaptchaURL,
	})
}

// Sync makes sure steamID is registered with rep4rep. It is idempotent: an
// identity that is already registered is a success.
func (s *ProfileService) Sync(ctx context.Context, steamID string) error {
	if steamID == "" {
		return apperrors.MissingRequired("steam id")
	}
	if !util.IsValidSteamID64(steamID) {
		return apperrors.InvalidInput("steam id", "not a 64-bit steam id")
	}

	remote, err := s.rep4rep.GetSteamProfiles(ctx)
	if err != nil {
		return fmt.Errorf("fetch rep4rep profiles: %w", err)
	}
	if _, ok := findRemoteProfile(remote, steamID); ok {
		return nil
	}

	err = s.rep4rep.AddSteamProfile(ctx, steamID)
	if err != nil && !apperrors.HasCode(err, apperrors.ErrCodeAlreadyExists) {
		return fmt.Errorf("add rep4rep profile: %w", err)
	}

	audit.Log(ctx, audit.Event{Type: audit.EventProfileSync, SteamID: steamID})
	return nil
}

// AuthAll re-authenticates every stored account and syncs it with rep4rep.
// It returns the number of accounts that ended authenticated.
func (s *ProfileService) AuthAll(ctx context.Context) (int, error) {
	accounts, err := s.profiles.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	authorized := 0
	for i, account := range accounts {
		logger := log.With().Str("account", account.Username).Str("steam_id", account.SteamID).Logger()
		logger.Info().Msg("attempting to auth")

		creds := model.AccountCredentials{
			Username:     account.Username,
			Password:     account.Password,
			SharedSecret: account.SharedSecret,
		}
		state, err := s.authenticate(ctx, s.newSession(), creds, account.Cookies)
		if err != nil {
			logger.Error().Err(err).Msg("failed to authorize")
		} else {
			authorized++
			logger.Info().Msg("authorized")
			if err := s.Sync(ctx, state.SteamID); err != nil {
				logger.Error().Err(err).Msg("failed to sync")
			} else {
				logger.Info().Msg("synced to rep4rep")
			}
		}

		if i != len(accounts)-1 {
			if err := s.sleep(ctx, s.opts.LoginDelay); err != nil {
				return authorized, err
			}
		}
	}

	log.Info().Int("accounts", len(accounts)).Int("authorized", authorized).Msg("auth all profiles completed")
	return authorized, nil
}

// CheckAndSync registers every stored steam id with rep4rep without logging
// in. It returns the number of accounts synced.
func (s *ProfileService) CheckAndSync(ctx context.Context) (int, error) {
	accounts, err := s.profiles.FindAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list accounts: %w", err)
	}

	synced := 0
	for _, account := range accounts {
		logger := log.With().Str("account", account.Username).Logger()
		if !account.HasSteamID() {
			logger.Warn().Msg("no steam id yet, run auth-all-profiles first")
			continue
		}
		if err := s.Sync(ctx, account.SteamID); err != nil {
			logger.Error().Err(err).Msg("failed to sync")
			continue
		}
		synced++
		logger.Info().Msg("synced to rep4rep")
	}

	log.Info().Int("accounts", len(accounts)).Int("synced", synced).Msg("check and sync completed")
	return synced, nil
}

// CommentAvailability reports the remaining daily quota of every account.
func (s *ProfileService) CommentAvailability(ctx context.Context) ([]model.CommentAvailability, error) {
	accounts, err := s.profiles.FindAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	result := make([]model.CommentAvailability, 0, len(accounts))
	for _, account := range accounts {
		availability, err := s.availabilityFor(ctx, account)
		if err != nil {
			return nil, err
		}
		result = append(result, availability)
	}
	return result, nil
}

// AccountAvailability reports the remaining daily quota of one account.
func (s *ProfileService) AccountAvailability(ctx context.Context, username string) (*model.CommentAvailability, error) {
	account, err := s.profiles.FindByUsername(ctx, username)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if account == nil {
		return nil, apperrors.NotFound("profile")
	}
	availability, err := s.availabilityFor(ctx, *account)
	if err != nil {
		return nil, err
	}
	return &availability, nil
}

func (s *ProfileService) availabilityFor(ctx context.Context, account model.Account) (model.CommentAvailability, error) {
	availability := model.CommentAvailability{
		Username:  account.Username,
		SteamID:   account.SteamID,
		Available: s.opts.MaxComments,
	}
	if !account.HasSteamID() {
		return availability, nil
	}

	posted, err := s.profiles.CountCommentsSince(ctx, account.SteamID, s.now().Add(-config.CommentWindow))
	if err != nil {
		return availability, apperrors.Database(err)
	}
	availability.Posted = posted
	availability.Available = max(s.opts.MaxComments-posted, 0)
	return availability, nil
}

// RemoveProfile deletes an account by username and reports whether one was
// removed.
func (s *ProfileService) RemoveProfile(ctx context.Context, username string) (bool, error) {
	n, err := s.profiles.DeleteByUsername(ctx, username)
	if err != nil {
		return false, apperrors.Database(err)
	}
	if n == 0 {
		log.Info().Str("account", username).Msg("profile not found")
		return false, nil
	}

	audit.Log(ctx, audit.Event{Type: audit.EventAccountDelete, Account: username})
	log.Info().Str("account", username).Msg("profile removed")
	return true, nil
}

// AddFromFile registers every valid record of the accounts file. Failures
// are logged per account and never stop the batch.
func (s *ProfileService) AddFromFile(ctx context.Context, path string) (int, error) {
	return s.addBatch(ctx, path, nil)
}

// AddAndRun registers each record and calls run after every record, whether
// or not the add succeeded. A run failure is logged and the batch continues.
func (s *ProfileService) AddAndRun(ctx context.Context, path string, run func(context.Context) error) (int, error) {
	return s.addBatch(ctx, path, run)
}

func (s *ProfileService) addBatch(ctx context.Context, path string, after func(context.Context) error) (int, error) {
	accounts, err := ParseAccountsFile(path)
	if err != nil {
		return 0, err
	}
	log.Info().Int("count", len(accounts)).Str("file", path).Msg("adding profiles from file")

	added := 0
	for i, creds := range accounts {
		log.Info().
			Str("account", creds.Username).
			Int("index", i+1).
			Int("total", len(accounts)).
			Msg("adding profile")

		if err := s.AddProfile(ctx, creds); err == nil {
			added++
		}
		if after != nil {
			if err := after(ctx); err != nil {
				log.Error().Err(err).Str("account", creds.Username).Msg("run after add failed")
			}
		}

		if i != len(accounts)-1 {
			if err := s.sleep(ctx, s.opts.RegisterDelay); err != nil {
				return added, err
			}
		}
	}

	log.Info().Int("added", added).Int("total", len(accounts)).Msg("profiles from file processed")
	return added, nil
}
