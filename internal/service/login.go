package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rep4rep/steam-commenter/internal/audit"
	"github.com/rep4rep/steam-commenter/internal/config"
	apperrors "github.com/rep4rep/steam-commenter/internal/errors"
	"github.com/rep4rep/steam-commenter/internal/model"
	"github.com/rep4rep/steam-commenter/internal/repository"
	"github.com/rep4rep/steam-commenter/internal/util"
)

// LoginOptions carries at most one interrupt response plus an optional
// cached session.
type LoginOptions struct {
	EmailCode string
	// TwoFactorCode overrides the code derived from the shared secret.
	TwoFactorCode string
	CaptchaGID    string
	CaptchaText   string
	CachedSession string
}

// LoginService drives the login state machine for a single account and
// persists the session once it is established.
type LoginService struct {
	profiles repository.ProfileRepository
	sleep    Sleeper
	now      func() time.Time
}

func NewLoginService(profiles repository.ProfileRepository, sleep Sleeper) *LoginService {
	if sleep == nil {
		sleep = SleepContext
	}
	return &LoginService{
		profiles: profiles,
		sleep:    sleep,
		now:      time.Now,
	}
}

// Login runs one login attempt. Interrupts and throttling are returned as
// state; only fatal failures are errors. A LoggedIn session is persisted
// under the steam id reported by the session itself.
func (s *LoginService) Login(ctx context.Context, client SessionClient, creds model.AccountCredentials, opts LoginOptions) (*model.SessionState, error) {
	logger := log.With().Str("account", creds.Username).Logger()

	twoFactor := opts.TwoFactorCode
	if twoFactor == "" && creds.SharedSecret != "" {
		code, err := util.SteamGuardCode(creds.SharedSecret, s.now())
		if err != nil {
			return nil, apperrors.InvalidInput("shared secret", err.Error())
		}
		twoFactor = code
	}

	state, err := client.Login(ctx, model.LoginInput{
		Username:      creds.Username,
		Password:      creds.Password,
		SharedSecret:  creds.SharedSecret,
		EmailCode:     opts.EmailCode,
		TwoFactorCode: twoFactor,
		CaptchaGID:    opts.CaptchaGID,
		CaptchaText:   opts.CaptchaText,
		CachedSession: opts.CachedSession,
	})
	if err != nil {
		logger.Warn().Err(err).Str("code", string(apperrors.GetCode(err))).Msg("login attempt failed")
		audit.Log(ctx, audit.Event{
			Type:    audit.EventLoginFailure,
			Account: creds.Username,
			Details: map[string]interface{}{"error": err},
		})
		return nil, err
	}

	switch state.Status {
	case model.SessionLoggedIn:
		steamID := client.SteamID()
		if steamID == "" {
			steamID = state.SteamID
		}
		if steamID == "" {
			return nil, apperrors.Internal(fmt.Sprintf("[%s] session has no steam id", creds.Username))
		}
		state.SteamID = steamID

		if _, err := s.profiles.Upsert(ctx, model.UpsertAccountParams{
			Username:     creds.Username,
			Password:     creds.Password,
			SharedSecret: creds.SharedSecret,
			SteamID:      steamID,
			Cookies:      state.Cookies,
		}); err != nil {
			return nil, apperrors.Database(err)
		}

		logger.Info().Str("steam_id", steamID).Msg("login successful")
		audit.Log(ctx, audit.Event{Type: audit.EventLoginSuccess, Account: creds.Username, SteamID: steamID})

	case model.SessionNeedsEmailCode:
		logger.Info().Str("status", state.Status.String()).Str("email_domain", state.EmailDomain).Msg("steam guard email code required")

	case model.SessionNeedsMobileCode:
		logger.Info().Str("status", state.Status.String()).Msg("steam guard mobile code required")

	case model.SessionNeedsCaptcha:
		logger.Info().Str("status", state.Status.String()).Str("captcha_url", state.CaptchaURL).Msg("captcha required")

	case model.SessionThrottled:
		logger.Warn().Str("status", state.Status.String()).Msg("login throttled, back off before retrying")
		audit.Log(ctx, audit.Event{Type: audit.EventLoginThrottled, Account: creds.Username})
	}

	return state, nil
}

// LoginWithRetries logs in with the account's stored session and credentials.
// Transient network failures wait and retry; any other error aborts.
// Attempts that end in an interrupt are retried with a fresh mobile code.
func (s *LoginService) LoginWithRetries(ctx context.Context, client SessionClient, account model.Account) (*model.SessionState, error) {
	creds := model.AccountCredentials{
		Username:     account.Username,
		Password:     account.Password,
		SharedSecret: account.SharedSecret,
	}
	opts := LoginOptions{CachedSession: account.Cookies}

	for attempt := 1; attempt <= config.LoginMaxAttempts; attempt++ {
		state, err := s.Login(ctx, client, creds, opts)
		if err != nil {
			if !apperrors.HasCode(err, apperrors.ErrCodeTransientNetwork) {
				return nil, err
			}
			log.Warn().
				Str("account", account.Username).
				Int("attempt", attempt).
				Dur("backoff", config.TransientRetryBackoff).
				Msg("transient network error, retrying")
			if attempt < config.LoginMaxAttempts {
				if err := s.sleep(ctx, config.TransientRetryBackoff); err != nil {
					return nil, err
				}
			}
			continue
		}

		if state.LoggedIn() {
			return state, nil
		}
		if state.Status == model.SessionThrottled {
			return nil, apperrors.Throttled(fmt.Sprintf("[%s] login throttled", account.Username))
		}
	}

	err := apperrors.LoginFailed(account.Username, config.LoginMaxAttempts)
	audit.Log(ctx, audit.Event{
		Type:    audit.EventLoginFailure,
		Account: account.Username,
		Details: map[string]interface{}{"attempts": config.LoginMaxAttempts},
	})
	return nil, err
}
