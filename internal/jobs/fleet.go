package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rep4rep/steam-commenter/internal/service"
)

// FleetRunner runs one pass over every account.
type FleetRunner interface {
	Run(ctx context.Context) (*service.FleetSummary, error)
}

// Lock is a cross-instance mutex around a fleet run.
type Lock interface {
	Acquire(ctx context.Context) (token string, ok bool, err error)
	Release(ctx context.Context, token string) error
}

// RunExclusive calls fn while holding lock. A nil lock always runs fn. ran is
// false when another instance holds the lock.
func RunExclusive(ctx context.Context, lock Lock, fn func(context.Context) error) (ran bool, err error) {
	if lock == nil {
		return true, fn(ctx)
	}

	token, ok, err := lock.Acquire(ctx)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		// release even when ctx was cancelled mid-run
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if relErr := lock.Release(releaseCtx, token); relErr != nil {
			log.Error().Err(relErr).Msg("failed to release run lock")
		}
	}()

	return true, fn(ctx)
}

// FleetJob runs the fleet on a fixed interval. A tick that arrives while a
// run is still going is dropped, so runs never overlap.
type FleetJob struct {
	runner   FleetRunner
	lock     Lock
	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewFleetJob(runner FleetRunner, lock Lock, interval time.Duration) *FleetJob {
	ctx, cancel := context.WithCancel(context.Background())
	return &FleetJob{
		runner:   runner,
		lock:     lock,
		interval: interval,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (j *FleetJob) Start() {
	j.wg.Add(1)
	go j.run()
	log.Info().Dur("interval", j.interval).Msg("fleet job started")
}

// Stop cancels an in-flight run and waits for it to return.
func (j *FleetJob) Stop() {
	j.cancel()
	j.wg.Wait()
	log.Info().Msg("fleet job stopped")
}

func (j *FleetJob) run() {
	defer j.wg.Done()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.runOnce()

	for {
		select {
		case <-j.ctx.Done():
			return
		case <-ticker.C:
			j.runOnce()
		}
	}
}

func (j *FleetJob) runOnce() {
	start := time.Now()
	var summary *service.FleetSummary

	ran, err := RunExclusive(j.ctx, j.lock, func(ctx context.Context) error {
		var err error
		summary, err = j.runner.Run(ctx)
		return err
	})

	switch {
	case err != nil:
		log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("fleet run failed")
	case !ran:
		log.Info().Msg("fleet run skipped, another instance holds the run lock")
	case summary != nil:
		log.Info().
			Int("accounts", len(summary.Accounts)).
			Int("comments", summary.CommentsPosted()).
			Dur("elapsed", time.Since(start)).
			Msg("fleet run finished")
	}
}
