package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/types"
)

type result struct {
	path string
	err  error
}

// drive runs one attempt for job id: it starts the downloader, polls its
// progress into the tracker and notifier, and records the outcome.
func (e *Engine) drive(ctx context.Context, id int64) {
	job, ok := e.tracker.Get(id)
	if !ok {
		return
	}
	logger := log.With().Str("op", "engine/drive").Int64("job", id).Str("attempt", uuid.NewString()[:8]).Logger()

	netCh, unsubscribe := e.network.Subscribe()
	defer unsubscribe()
	if !e.network.Reachable() {
		e.pauseForNetwork(job, logger)
		return
	}
	factory, ok := e.registry[job.Kind]
	if !ok {
		e.fail(job, fmt.Errorf("no downloader for kind %q", job.Kind), logger)
		return
	}
	d := factory(job)

	attemptCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan result, 1)
	go func() {
		path, err := d.Download(attemptCtx, job)
		done <- result{path: path, err: err}
	}()
	logger.Debug().Msgf("Attempt started for %s", job.SourceURL)

	ticker := time.NewTicker(e.poll)
	defer ticker.Stop()
	lastPercent := -1
	for {
		select {
		case <-ticker.C:
			e.push(job, d, &lastPercent)
		case up := <-netCh:
			if !up {
				logger.Warn().Msg("Network lost, stopping attempt")
				cancel(types.ErrNetworkUnavailable)
			}
		case res := <-done:
			e.push(job, d, &lastPercent)
			e.tracker.SetCursor(id, d.Cursor())
			e.finish(ctx, job, res, logger)
			return
		}
	}
}

func (e *Engine) push(job types.Job, d Downloader, lastPercent *int) {
	downloaded, total := d.Progress()
	if err := e.tracker.UpdateProgress(job.ID, downloaded, total); err != nil {
		return
	}
	current, ok := e.tracker.Get(job.ID)
	if !ok || !job.ShowNotification {
		return
	}
	if p := current.Percent(); p != *lastPercent {
		*lastPercent = p
		e.notifier.ShowProgress(job.ID, p)
	}
}

func (e *Engine) finish(ctx context.Context, job types.Job, res result, logger zerolog.Logger) {
	err := res.err
	if err == nil && e.publisher != nil {
		err = e.publisher.Publish(ctx, job, res.path)
	}
	// A stopped runner context means someone paused, replaced or deleted the
	// attempt; whatever the downloader returned, the status is theirs.
	if ctx.Err() != nil && err != nil {
		logger.Info().Msgf("Attempt stopped: %v", context.Cause(ctx))
		return
	}
	switch types.Classify(err) {
	case types.OutcomeSucceeded:
		e.tracker.UpdateStatus(job.ID, types.StatusSucceeded)
		logger.Info().Msgf("Completed %s", res.path)
		if job.ShowNotification {
			e.notifier.ShowSuccess(job.ID, job.FileName)
		}
	case types.OutcomeNoNetwork:
		logger.Warn().Err(err).Msg("Network unavailable")
		e.pauseForNetwork(job, logger)
	case types.OutcomeCancelled:
		logger.Info().Err(err).Msg("Attempt cancelled")
	default:
		e.fail(job, err, logger)
	}
}

func (e *Engine) fail(job types.Job, err error, logger zerolog.Logger) {
	swapped, _ := e.tracker.CompareAndSetStatus(job.ID, types.StatusInProgress, types.StatusFailed)
	if !swapped {
		return
	}
	logger.Error().Err(err).Msgf("Download of %s failed", job.FileName)
	if job.ShowNotification {
		e.notifier.ShowFailure(job.ID, job.FileName)
	}
}

// pauseForNetwork parks the job until the network comes back. When the
// signal still says reachable (a server-side reset, say) no transition will
// arrive, so a delayed retry is armed instead.
func (e *Engine) pauseForNetwork(job types.Job, logger zerolog.Logger) {
	swapped, _ := e.tracker.CompareAndSetStatus(job.ID, types.StatusInProgress, types.StatusPausedNoNetwork)
	if !swapped {
		return
	}
	logger.Info().Msg("Waiting for network")
	time.AfterFunc(e.retry, func() {
		if e.network.Reachable() {
			e.requeue(job.ID)
		}
	})
}
