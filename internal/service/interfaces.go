package service

import (
	"context"
	"time"

	"github.com/rep4rep/steam-commenter/internal/model"
)

// SessionClient is one account's Steam web session.
type SessionClient interface {
	Login(ctx context.Context, input model.LoginInput) (*model.SessionState, error)
	PostComment(ctx context.Context, targetSteamID, text string) error
	IsLoggedIn(ctx context.Context) (bool, error)
	// SteamID is the identity resolved by the last successful login.
	SteamID() string
}

// SessionFactory creates a fresh session per account; sessions are never
// shared across accounts.
type SessionFactory func() SessionClient

// ReputationClient is the subset of the rep4rep API the orchestrator needs.
type ReputationClient interface {
	AddSteamProfile(ctx context.Context, steamID string) error
	GetSteamProfiles(ctx context.Context) ([]model.SteamProfile, error)
	GetTasks(ctx context.Context, remoteProfileID string) ([]model.Task, error)
	CompleteTask(ctx context.Context, taskID, commentID, authorProfileID string) (*model.CompleteTaskResult, error)
}

// Prompter asks a human for an interrupt response (email code, captcha text
// or a manual mobile code).
type Prompter interface {
	Prompt(ctx context.Context, req PromptRequest) (string, error)
}

type PromptRequest struct {
	Username    string
	Status      model.SessionStatus
	EmailDomain string
	CaptchaURL  string
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the production Sleeper.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
