package engine

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/netwatch"
	"github.com/tanq16/hlsget/internal/notify"
	"github.com/tanq16/hlsget/internal/publish"
	"github.com/tanq16/hlsget/internal/runner"
	"github.com/tanq16/hlsget/internal/tracker"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

const (
	DefaultPollInterval = time.Second
	DefaultRetryDelay   = 5 * time.Second
)

var (
	ErrInvalidRequest = errors.New("invalid download request")
	ErrInvalidState   = errors.New("operation not allowed in current job state")
	errDeleted        = fmt.Errorf("%w: job deleted", types.ErrCancelled)
)

// Request is what a caller supplies to start a download.
type Request struct {
	URL                  string            `json:"url" yaml:"url"`
	FileName             string            `json:"file_name" yaml:"file_name"`
	DestinationDirectory string            `json:"destination_directory" yaml:"destination_directory"`
	MimeType             string            `json:"mime_type" yaml:"mime_type"`
	Headers              map[string]string `json:"headers" yaml:"headers"`
	ShowNotification     bool              `json:"show_notification" yaml:"show_notification"`
	SupportChunks        bool              `json:"support_chunks" yaml:"support_chunks"`
}

type Options struct {
	Registry     Registry
	Notifier     notify.Notifier
	Network      netwatch.Signal
	Publisher    publish.Publisher
	Workers      int
	PollInterval time.Duration
	// RetryDelay is how long a job paused for network loss waits before
	// retrying when the network never reported going down.
	RetryDelay time.Duration
	// DefaultDestination is used when a request names no directory.
	DefaultDestination string
}

// Engine owns the lifecycle of every job: it schedules attempts through the
// runner, drives each attempt, and records outcomes in the tracker.
type Engine struct {
	tracker   *tracker.Tracker
	runner    *runner.Runner
	registry  Registry
	notifier  notify.Notifier
	network   netwatch.Signal
	publisher publish.Publisher
	poll      time.Duration
	retry     time.Duration
	destDir   string
	lastID    atomic.Int64
}

func New(ctx context.Context, tr *tracker.Tracker, opts Options) *Engine {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Network == nil {
		opts.Network = netwatch.NewStatic(true)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.DefaultDestination == "" {
		opts.DefaultDestination = "."
	}
	e := &Engine{
		tracker:   tr,
		runner:    runner.New(ctx, opts.Workers),
		registry:  opts.Registry,
		notifier:  opts.Notifier,
		network:   opts.Network,
		publisher: opts.Publisher,
		poll:      opts.PollInterval,
		retry:     opts.RetryDelay,
		destDir:   opts.DefaultDestination,
	}
	for _, job := range tr.Snapshot() {
		if job.ID > e.lastID.Load() {
			e.lastID.Store(job.ID)
		}
	}
	return e
}

// nextID returns a creation-time id that is strictly increasing even when
// two jobs are created in the same millisecond.
func (e *Engine) nextID() int64 {
	for {
		last := e.lastID.Load()
		id := max(time.Now().UnixMilli(), last+1)
		if e.lastID.CompareAndSwap(last, id) {
			return id
		}
	}
}

func (e *Engine) buildJob(req Request) (types.Job, error) {
	parsed, err := url.Parse(req.URL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return types.Job{}, fmt.Errorf("%w: url must be an absolute http(s) URL", ErrInvalidRequest)
	}
	fileName := req.FileName
	if fileName == "" {
		fileName = path.Base(parsed.Path)
		if fileName == "/" || fileName == "." {
			return types.Job{}, fmt.Errorf("%w: file name required", ErrInvalidRequest)
		}
	}
	if filepath.Base(fileName) != fileName {
		return types.Job{}, fmt.Errorf("%w: file name must not contain a path", ErrInvalidRequest)
	}
	kind := types.DetermineKind(req.URL, req.MimeType)
	if kind == types.KindPlaylist && (filepath.Ext(fileName) == ".m3u8" || filepath.Ext(fileName) == ".m3u") {
		fileName = fileName[:len(fileName)-len(filepath.Ext(fileName))] + ".ts"
	}
	dest := req.DestinationDirectory
	if dest == "" {
		dest = e.destDir
	}
	outputPath := filepath.Join(dest, fileName)
	if _, err := os.Stat(outputPath); err == nil {
		outputPath = utils.RenewOutputPath(outputPath)
		log.Debug().Str("op", "engine/engine").Msgf("Output exists, renamed to %s", outputPath)
	}
	return types.Job{
		ID:                   e.nextID(),
		SourceURL:            req.URL,
		FileName:             filepath.Base(outputPath),
		DestinationDirectory: dest,
		MimeType:             req.MimeType,
		Headers:              req.Headers,
		ShowNotification:     req.ShowNotification,
		SupportChunks:        req.SupportChunks,
		Kind:                 kind,
		Status:               types.StatusInProgress,
		CreatedAt:            time.Now(),
	}, nil
}

// Submit creates a job for req and schedules its first attempt.
func (e *Engine) Submit(ctx context.Context, req Request) (int64, error) {
	job, err := e.buildJob(req)
	if err != nil {
		return 0, err
	}
	if err := os.MkdirAll(job.DestinationDirectory, 0755); err != nil {
		return 0, &types.IOError{Op: "error creating destination directory", Err: err}
	}
	if _, err := e.tracker.AddJob(ctx, job); err != nil {
		return 0, err
	}
	log.Info().Str("op", "engine/engine").Int64("job", job.ID).Msgf("Queued %s download of %s", job.Kind, job.FileName)
	e.schedule(job.ID)
	return job.ID, nil
}

func (e *Engine) Pause(ctx context.Context, id int64) error {
	job, ok := e.tracker.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", types.ErrJobNotFound, id)
	}
	if job.Status != types.StatusInProgress && job.Status != types.StatusPausedNoNetwork {
		return fmt.Errorf("%w: job %d is %s", ErrInvalidState, id, job.Status)
	}
	if err := e.tracker.UpdateStatus(id, types.StatusPausedByUser); err != nil {
		return err
	}
	e.runner.Cancel(id, types.ErrPaused)
	log.Info().Str("op", "engine/engine").Int64("job", id).Msg("Paused by user")
	return nil
}

// Resume restarts a paused job from scratch. Single-stream jobs with chunk
// support continue from the bytes already on disk.
func (e *Engine) Resume(ctx context.Context, id int64) error {
	job, ok := e.tracker.Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", types.ErrJobNotFound, id)
	}
	if !job.Status.IsPaused() {
		return fmt.Errorf("%w: job %d is %s", ErrInvalidState, id, job.Status)
	}
	if swapped, err := e.tracker.CompareAndSetStatus(id, job.Status, types.StatusInProgress); err != nil || !swapped {
		return fmt.Errorf("%w: job %d changed state", ErrInvalidState, id)
	}
	log.Info().Str("op", "engine/engine").Int64("job", id).Msg("Resuming")
	e.schedule(id)
	return nil
}

// Delete stops any attempt, dismisses its notification and forgets the job.
// Files already on disk are left alone.
func (e *Engine) Delete(ctx context.Context, id int64) error {
	if _, ok := e.tracker.Get(id); !ok {
		return fmt.Errorf("%w: %d", types.ErrJobNotFound, id)
	}
	e.runner.Cancel(id, errDeleted)
	e.notifier.Cancel(id)
	if err := e.tracker.RemoveJob(ctx, id); err != nil {
		return err
	}
	log.Info().Str("op", "engine/engine").Int64("job", id).Msg("Deleted")
	return nil
}

func (e *Engine) Get(id int64) (types.Job, error) {
	job, ok := e.tracker.Get(id)
	if !ok {
		return types.Job{}, fmt.Errorf("%w: %d", types.ErrJobNotFound, id)
	}
	return job, nil
}

func (e *Engine) List() []types.Job {
	return e.tracker.Snapshot()
}

// Recover schedules jobs left running by a previous process, plus jobs
// paused for network loss when the network is back. It returns how many
// attempts were scheduled.
func (e *Engine) Recover(ctx context.Context) int {
	n := 0
	reachable := e.network.Reachable()
	for _, job := range e.tracker.Snapshot() {
		switch {
		case job.Status == types.StatusInProgress:
		case job.Status == types.StatusPausedNoNetwork && reachable:
			if swapped, _ := e.tracker.CompareAndSetStatus(job.ID, types.StatusPausedNoNetwork, types.StatusInProgress); !swapped {
				continue
			}
		default:
			continue
		}
		e.schedule(job.ID)
		n++
	}
	if n > 0 {
		log.Info().Str("op", "engine/engine").Msgf("Recovered %d jobs", n)
	}
	return n
}

// Watch requeues every job paused for network loss each time the network
// becomes reachable, until ctx is done.
func (e *Engine) Watch(ctx context.Context) {
	ch, cancel := e.network.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case up := <-ch:
			if up {
				e.requeueNoNetwork()
			}
		}
	}
}

func (e *Engine) requeueNoNetwork() {
	for _, job := range e.tracker.Snapshot() {
		if job.Status != types.StatusPausedNoNetwork {
			continue
		}
		e.requeue(job.ID)
	}
}

func (e *Engine) requeue(id int64) {
	swapped, err := e.tracker.CompareAndSetStatus(id, types.StatusPausedNoNetwork, types.StatusInProgress)
	if err != nil || !swapped {
		return
	}
	log.Info().Str("op", "engine/engine").Int64("job", id).Msg("Network available, requeueing")
	e.schedule(id)
}

// WaitFor blocks until cond holds for job id. It fails if the job is
// removed or ctx ends first.
func (e *Engine) WaitFor(ctx context.Context, id int64, cond func(types.Job) bool) (types.Job, error) {
	ch, cancel := e.tracker.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return types.Job{}, ctx.Err()
		case snap := <-ch:
			found := false
			for _, job := range snap {
				if job.ID != id {
					continue
				}
				found = true
				if cond(job) {
					return job, nil
				}
			}
			if !found {
				return types.Job{}, fmt.Errorf("%w: %d", types.ErrJobNotFound, id)
			}
		}
	}
}

// Wait blocks until job id is no longer in progress.
func (e *Engine) Wait(ctx context.Context, id int64) (types.Job, error) {
	return e.WaitFor(ctx, id, func(job types.Job) bool {
		return job.Status != types.StatusInProgress
	})
}

// Shutdown stops every attempt without touching job status, so Recover
// picks them up on the next start.
func (e *Engine) Shutdown() {
	e.runner.Shutdown()
}

func (e *Engine) schedule(id int64) {
	e.runner.Schedule(id, func(ctx context.Context) {
		e.drive(ctx, id)
	})
}
