package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rep4rep/steam-commenter/internal/config"
	apperrors "github.com/rep4rep/steam-commenter/internal/errors"
	"github.com/rep4rep/steam-commenter/internal/model"
)

const testSharedSecret = "MTIzNDU2Nzg5MDEyMzQ1Njc4OTA="

func newTestLoginService(repo *fakeProfileRepo, sleeper *sleepRecorder) *LoginService {
	s := NewLoginService(repo, sleeper.sleep)
	s.now = func() time.Time { return time.Unix(1700000000, 0) }
	return s
}

func TestLoginService_Login(t *testing.T) {
	ctx := context.Background()
	creds := model.AccountCredentials{Username: "alice", Password: "pw", SharedSecret: testSharedSecret}

	t.Run("persists session under the steam id reported by the session", func(t *testing.T) {
		repo := newFakeProfileRepo()
		svc := newTestLoginService(repo, &sleepRecorder{})
		client := newFakeSession("76561198000000001", stepLoggedIn())

		state, err := svc.Login(ctx, client, creds, LoginOptions{})

		require.NoError(t, err)
		assert.True(t, state.LoggedIn())
		assert.Equal(t, "76561198000000001", state.SteamID)
		require.Len(t, repo.upserts, 1)
		assert.Equal(t, model.UpsertAccountParams{
			Username:     "alice",
			Password:     "pw",
			SharedSecret: testSharedSecret,
			SteamID:      "76561198000000001",
			Cookies:      `["sessionid=abc"]`,
		}, repo.upserts[0])
	})

	t.Run("derives the mobile code from the shared secret", func(t *testing.T) {
		svc := newTestLoginService(newFakeProfileRepo(), &sleepRecorder{})
		client := newFakeSession("76561198000000001", stepLoggedIn())

		_, err := svc.Login(ctx, client, creds, LoginOptions{})

		require.NoError(t, err)
		assert.Equal(t, "R87JJ", client.logins[0].TwoFactorCode)
	})

	t.Run("explicit code wins over the derived one", func(t *testing.T) {
		svc := newTestLoginService(newFakeProfileRepo(), &sleepRecorder{})
		client := newFakeSession("76561198000000001", stepLoggedIn())

		_, err := svc.Login(ctx, client, creds, LoginOptions{TwoFactorCode: "ABCDE"})

		require.NoError(t, err)
		assert.Equal(t, "ABCDE", client.logins[0].TwoFactorCode)
	})

	t.Run("interrupts are state, not errors, and persist nothing", func(t *testing.T) {
		repo := newFakeProfileRepo()
		svc := newTestLoginService(repo, &sleepRecorder{})
		client := newFakeSession("", loginStep{state: &model.SessionState{
			Status:     model.SessionNeedsCaptcha,
			CaptchaURL: "https://steamcommunity.com/login/rendercaptcha/?gid=1",
		}})

		state, err := svc.Login(ctx, client, creds, LoginOptions{})

		require.NoError(t, err)
		assert.Equal(t, model.SessionNeedsCaptcha, state.Status)
		assert.Empty(t, repo.upserts)
	})

	t.Run("fatal errors propagate", func(t *testing.T) {
		svc := newTestLoginService(newFakeProfileRepo(), &sleepRecorder{})
		client := newFakeSession("", stepErr(apperrors.External("steam", assert.AnError)))

		_, err := svc.Login(ctx, client, creds, LoginOptions{})

		assert.ErrorIs(t, err, assert.AnError)
	})

	t.Run("rejects an undecodable shared secret", func(t *testing.T) {
		svc := newTestLoginService(newFakeProfileRepo(), &sleepRecorder{})
		client := newFakeSession("", stepLoggedIn())

		_, err := svc.Login(ctx, client, model.AccountCredentials{Username: "alice", Password: "pw", SharedSecret: "%%%"}, LoginOptions{})

		assert.Equal(t, apperrors.ErrCodeInvalidInput, apperrors.GetCode(err))
		assert.Empty(t, client.logins)
	})
}

func TestLoginService_LoginWithRetries(t *testing.T) {
	ctx := context.Background()
	account := model.Account{
		Username:     "alice",
		Password:     "pw",
		SharedSecret: testSharedSecret,
		SteamID:      "76561198000000001",
		Cookies:      `["steamLoginSecure=x"]`,
	}
	transient := apperrors.TransientNetwork(assert.AnError)

	t.Run("succeeds on first attempt with the cached session", func(t *testing.T) {
		sleeper := &sleepRecorder{}
		svc := newTestLoginService(newFakeProfileRepo(), sleeper)
		client := newFakeSession(account.SteamID, stepLoggedIn())

		state, err := svc.LoginWithRetries(ctx, client, account)

		require.NoError(t, err)
		assert.True(t, state.LoggedIn())
		require.Len(t, client.logins, 1)
		assert.Equal(t, account.Cookies, client.logins[0].CachedSession)
		assert.Zero(t, sleeper.count())
	})

	t.Run("retries transient errors after a fixed wait", func(t *testing.T) {
		sleeper := &sleepRecorder{}
		svc := newTestLoginService(newFakeProfileRepo(), sleeper)
		client := newFakeSession(account.SteamID, stepErr(transient), stepLoggedIn())

		state, err := svc.LoginWithRetries(ctx, client, account)

		require.NoError(t, err)
		assert.True(t, state.LoggedIn())
		assert.Len(t, client.logins, 2)
		assert.Equal(t, []time.Duration{config.TransientRetryBackoff}, sleeper.waits)
	})

	t.Run("gives up after exactly three attempts", func(t *testing.T) {
		sleeper := &sleepRecorder{}
		svc := newTestLoginService(newFakeProfileRepo(), sleeper)
		client := newFakeSession(account.SteamID, stepErr(transient))

		_, err := svc.LoginWithRetries(ctx, client, account)

		require.Error(t, err)
		assert.Equal(t, apperrors.ErrCodeLoginFailed, apperrors.GetCode(err))
		assert.Contains(t, err.Error(), "[alice] login failed after 3 attempts")
		assert.Len(t, client.logins, 3)
	})

	t.Run("unresolved interrupts also exhaust the attempts", func(t *testing.T) {
		svc := newTestLoginService(newFakeProfileRepo(), &sleepRecorder{})
		client := newFakeSession(account.SteamID, stepStatus(model.SessionNeedsMobileCode))

		_, err := svc.LoginWithRetries(ctx, client, account)

		assert.Equal(t, apperrors.ErrCodeLoginFailed, apperrors.GetCode(err))
		assert.Len(t, client.logins, 3)
	})

	t.Run("a fresh code is derived for every attempt", func(t *testing.T) {
		svc := newTestLoginService(newFakeProfileRepo(), &sleepRecorder{})
		times := []time.Time{time.Unix(1700000000, 0), time.Unix(0, 0)}
		svc.now = func() time.Time {
			next := times[0]
			if len(times) > 1 {
				times = times[1:]
			}
			return next
		}
		client := newFakeSession(account.SteamID, stepStatus(model.SessionNeedsMobileCode), stepLoggedIn())

		_, err := svc.LoginWithRetries(ctx, client, account)

		require.NoError(t, err)
		require.Len(t, client.logins, 2)
		assert.Equal(t, "R87JJ", client.logins[0].TwoFactorCode)
		assert.Equal(t, "GG5F5", client.logins[1].TwoFactorCode)
	})

	t.Run("other errors abort immediately", func(t *testing.T) {
		sleeper := &sleepRecorder{}
		svc := newTestLoginService(newFakeProfileRepo(), sleeper)
		client := newFakeSession(account.SteamID, stepErr(apperrors.External("steam", assert.AnError)), stepLoggedIn())

		_, err := svc.LoginWithRetries(ctx, client, account)

		assert.ErrorIs(t, err, assert.AnError)
		assert.Len(t, client.logins, 1)
		assert.Zero(t, sleeper.count())
	})

	t.Run("throttling stops without retrying", func(t *testing.T) {
		svc := newTestLoginService(newFakeProfileRepo(), &sleepRecorder{})
		client := newFakeSession(account.SteamID, stepStatus(model.SessionThrottled), stepLoggedIn())

		_, err := svc.LoginWithRetries(ctx, client, account)

		assert.Equal(t, apperrors.ErrCodeThrottled, apperrors.GetCode(err))
		assert.Len(t, client.logins, 1)
	})
}
