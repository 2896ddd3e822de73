package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/rep4rep/steam-commenter/internal/config"
	apperrors "github.com/rep4rep/steam-commenter/internal/errors"
	"github.com/rep4rep/steam-commenter/internal/model"
	"github.com/rep4rep/steam-commenter/internal/repository"
)

// TaskRunner posts the comments one authenticated account owes.
type TaskRunner struct {
	profiles     repository.ProfileRepository
	rep4rep      ReputationClient
	sleep        Sleeper
	commentDelay time.Duration
}

func NewTaskRunner(profiles repository.ProfileRepository, rep4rep ReputationClient, sleep Sleeper, commentDelay time.Duration) *TaskRunner {
	if sleep == nil {
		sleep = SleepContext
	}
	return &TaskRunner{
		profiles:     profiles,
		rep4rep:      rep4rep,
		sleep:        sleep,
		commentDelay: commentDelay,
	}
}

// taskRun is the per-invocation state; it never outlives one Run call.
type taskRun struct {
	account         model.Account
	steamID         string
	client          SessionClient
	remoteProfileID string
	logger          zerolog.Logger

	posted   int
	failures int
	// every task posted to in this run, successful or not
	attempted map[model.FlexID]bool
}

// Run works through tasks in order, then re-polls for fresh tasks until the
// quota is met. It stops after maxComments posts or
// MaxConsecutiveFailures posting failures in a row, and returns the number
// of comments posted. Only context cancellation is returned as an error.
func (r *TaskRunner) Run(ctx context.Context, account model.Account, client SessionClient, tasks []model.Task, remoteProfileID string, maxComments int) (int, error) {
	steamID := account.SteamID
	if steamID == "" {
		steamID = client.SteamID()
	}
	run := &taskRun{
		account:         account,
		steamID:         steamID,
		client:          client,
		remoteProfileID: remoteProfileID,
		logger:          log.With().Str("account", account.Username).Logger(),
		attempted:       make(map[model.FlexID]bool),
	}

	for i := 0; i < len(tasks) && run.posted < maxComments && run.failures < config.MaxConsecutiveFailures; i++ {
		task := tasks[i]
		if !task.Valid() {
			run.logger.Warn().Str("task_id", task.TaskID.String()).Msg("invalid task data, skipping")
			continue
		}
		r.attempt(ctx, run, task)
		if err := r.sleep(ctx, r.commentDelay); err != nil {
			return run.posted, err
		}
	}

	retries := 0
	for run.posted < maxComments && run.failures < config.MaxConsecutiveFailures && retries < config.MaxFillUpAttempts {
		run.logger.Info().
			Int("next", run.posted+1).
			Int("max", maxComments).
			Msg("attempting additional comment")

		task, ok := r.nextFreshTask(ctx, run)
		if !ok {
			retries++
			if err := r.sleep(ctx, r.commentDelay); err != nil {
				return run.posted, err
			}
			continue
		}

		if r.attempt(ctx, run, task) {
			retries = 0
		}
		if err := r.sleep(ctx, r.commentDelay); err != nil {
			return run.posted, err
		}
	}

	run.logger.Info().
		Int("posted", run.posted).
		Int("consecutive_failures", run.failures).
		Msg("done posting comments")
	return run.posted, ctx.Err()
}

// nextFreshTask re-fetches the task list and returns the first valid task
// not yet attempted during this run.
func (r *TaskRunner) nextFreshTask(ctx context.Context, run *taskRun) (model.Task, bool) {
	tasks, err := r.rep4rep.GetTasks(ctx, run.remoteProfileID)
	if err != nil {
		run.logger.Warn().Err(err).Msg("failed to re-fetch tasks")
		return model.Task{}, false
	}

	for _, task := range tasks {
		if run.attempted[task.TaskID] {
			continue
		}
		if !task.Valid() {
			run.logger.Warn().Str("task_id", task.TaskID.String()).Msg("invalid task data, skipping")
			continue
		}
		return task, true
	}

	run.logger.Info().Msg("no fresh tasks available for additional comments")
	return model.Task{}, false
}

// attempt posts one comment and books it. It reports whether the post
// succeeded.
func (r *TaskRunner) attempt(ctx context.Context, run *taskRun, task model.Task) bool {
	run.logger.Info().
		Str("task_id", task.TaskID.String()).
		Str("target", task.TargetSteamProfileName).
		Str("comment", task.RequiredCommentText).
		Msg("posting comment")

	run.attempted[task.TaskID] = true
	if err := run.client.PostComment(ctx, task.TargetSteamProfileID.String(), task.RequiredCommentText); err != nil {
		run.failures++
		event := run.logger.Warn().
			Err(err).
			Str("task_id", task.TaskID.String()).
			Str("target_id", task.TargetSteamProfileID.String()).
			Str("comment", task.RequiredCommentText).
			Int("consecutive_failures", run.failures)
		if apperrors.HasCode(err, apperrors.ErrCodeCommentLimitReached) {
			event.Msg("comment limit reached")
		} else {
			event.Msg("failed to post comment")
		}
		return false
	}

	run.posted++
	run.failures = 0

	result, err := r.rep4rep.CompleteTask(ctx, task.TaskID.String(), task.RequiredCommentID.String(), run.remoteProfileID)
	switch {
	case err != nil:
		run.logger.Error().Err(err).Str("task_id", task.TaskID.String()).Msg("failed to mark task completed")
	case result != nil && result.Error != "":
		run.logger.Warn().Str("task_id", task.TaskID.String()).Str("error", result.Error).Msg("task completion rejected")
	}

	if err := r.profiles.RecordComment(ctx, run.steamID); err != nil {
		run.logger.Error().Err(err).Msg("failed to record comment")
	}

	run.logger.Info().
		Str("task_id", task.TaskID.String()).
		Int("posted", run.posted).
		Msg("comment posted and marked as completed")
	return true
}
