package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/config"
	"github.com/tanq16/hlsget/internal/engine"
	"github.com/tanq16/hlsget/internal/netwatch"
	"github.com/tanq16/hlsget/internal/notify"
	"github.com/tanq16/hlsget/internal/output"
	"github.com/tanq16/hlsget/internal/publish"
	"github.com/tanq16/hlsget/internal/store"
	"github.com/tanq16/hlsget/internal/tracker"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

var ErrJobsFailed = errors.New("one or more downloads failed")

// Session holds the collaborators for a foreground run. Zero fields are
// filled from the config.
type Session struct {
	Config    config.Config
	Client    utils.HTTPDoer
	Network   netwatch.Signal
	Publisher publish.Publisher
	Out       io.Writer
}

func (s *Session) network(ctx context.Context) netwatch.Signal {
	if s.Network != nil {
		return s.Network
	}
	if s.Config.Probe.Disabled {
		return netwatch.NewStatic(true)
	}
	monitor := netwatch.NewMonitor(s.Config.Probe.Address, s.Config.Probe.Interval)
	go monitor.Run(ctx)
	return monitor
}

// Run submits every request to an in-memory engine, draws progress until each
// job succeeds or fails, and prints a summary. Interrupting ctx stops all
// attempts and keeps their scratch data.
func (s *Session) Run(ctx context.Context, reqs []engine.Request) error {
	cfg := s.Config
	if s.Client == nil {
		s.Client = utils.NewHTTPClient(cfg.HTTP)
	}
	tr, err := tracker.New(ctx, store.NewMemory(), tracker.Options{FlushInterval: cfg.FlushInterval})
	if err != nil {
		return err
	}
	eng := engine.New(ctx, tr, engine.Options{
		Registry:           engine.NewRegistry(s.Client, cfg.Parallelism, cfg.Scratch()),
		Notifier:           notify.NewLog(25),
		Network:            s.network(ctx),
		Publisher:          s.Publisher,
		Workers:            cfg.Workers,
		PollInterval:       cfg.PollInterval,
		RetryDelay:         cfg.RetryDelay,
		DefaultDestination: cfg.OutputDir,
	})
	go eng.Watch(ctx)

	outputMgr := output.NewManager(s.Out)
	updates, unsubscribe := tr.Subscribe()
	defer unsubscribe()
	go outputMgr.Follow(ctx, updates)

	var ids []int64
	var submitErrs int
	for _, req := range reqs {
		id, err := eng.Submit(ctx, req)
		if err != nil {
			log.Error().Str("op", "scheduler/scheduler").Err(err).Msgf("Rejected %s", req.URL)
			output.PrintError(fmt.Sprintf("Rejected %s: %v", req.URL, err))
			submitErrs++
			continue
		}
		job, err := eng.Get(id)
		if err != nil {
			continue
		}
		outputMgr.Track(job)
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ErrJobsFailed
	}
	outputMgr.StartDisplay()

	failed := submitErrs
	for _, id := range ids {
		job, err := eng.WaitFor(ctx, id, func(job types.Job) bool {
			return job.Status == types.StatusSucceeded || job.Status == types.StatusFailed
		})
		if err != nil {
			break
		}
		if job.Status == types.StatusFailed {
			outputMgr.ReportError(id, fmt.Errorf("download of %s failed", job.SourceURL))
			failed++
		}
	}
	eng.Shutdown()
	outputMgr.Update(tr.Snapshot())
	outputMgr.StopDisplay()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", types.ErrCancelled, context.Cause(ctx))
	}
	if failed > 0 {
		return fmt.Errorf("%w: %d of %d", ErrJobsFailed, failed, len(reqs))
	}
	return nil
}
