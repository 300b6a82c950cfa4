package runner

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/types"
	"golang.org/x/sync/semaphore"
)

var (
	ErrSuperseded = fmt.Errorf("%w: superseded by a newer attempt", types.ErrCancelled)
	ErrShutdown   = fmt.Errorf("%w: runner shutting down", types.ErrCancelled)
)

const DefaultWorkers = 2

type run struct {
	cancel context.CancelCauseFunc
	done   chan struct{}
}

// Runner keeps at most one attempt alive per job id and at most workers
// attempts running overall. Scheduling an id that already has an attempt
// cancels and joins the old one first.
type Runner struct {
	base context.Context
	sem  *semaphore.Weighted

	// schedMu serializes Schedule and Cancel so an id never gets two
	// attempts started concurrently.
	schedMu sync.Mutex
	mu      sync.Mutex
	runs    map[int64]*run
	wg      sync.WaitGroup
}

func New(ctx context.Context, workers int) *Runner {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	return &Runner{
		base: context.WithoutCancel(ctx),
		sem:  semaphore.NewWeighted(int64(workers)),
		runs: make(map[int64]*run),
	}
}

func (r *Runner) Schedule(id int64, fn func(ctx context.Context)) {
	r.schedMu.Lock()
	defer r.schedMu.Unlock()
	if r.stop(id, ErrSuperseded) {
		log.Debug().Str("op", "runner/runner").Int64("job", id).Msg("Replaced previous attempt")
	}

	ctx, cancel := context.WithCancelCause(r.base)
	rn := &run{cancel: cancel, done: make(chan struct{})}
	r.mu.Lock()
	r.runs[id] = rn
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(rn.done)
		defer func() {
			r.mu.Lock()
			if r.runs[id] == rn {
				delete(r.runs, id)
			}
			r.mu.Unlock()
			cancel(nil)
		}()
		if err := r.sem.Acquire(ctx, 1); err != nil {
			log.Debug().Str("op", "runner/runner").Int64("job", id).Msg("Cancelled while queued")
			return
		}
		defer r.sem.Release(1)
		if ctx.Err() != nil {
			return
		}
		fn(ctx)
	}()
}

// Cancel stops the attempt for id with cause and waits for it to return.
// It reports whether an attempt existed.
func (r *Runner) Cancel(id int64, cause error) bool {
	r.schedMu.Lock()
	defer r.schedMu.Unlock()
	return r.stop(id, cause)
}

func (r *Runner) stop(id int64, cause error) bool {
	r.mu.Lock()
	rn, ok := r.runs[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	rn.cancel(cause)
	<-rn.done
	return true
}

func (r *Runner) Running(id int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.runs[id]
	return ok
}

func (r *Runner) Wait() {
	r.wg.Wait()
}

// Shutdown cancels every attempt with ErrShutdown and waits for all of them.
func (r *Runner) Shutdown() {
	r.schedMu.Lock()
	defer r.schedMu.Unlock()
	r.mu.Lock()
	runs := make([]*run, 0, len(r.runs))
	for _, rn := range r.runs {
		runs = append(runs, rn)
	}
	r.mu.Unlock()
	for _, rn := range runs {
		rn.cancel(ErrShutdown)
	}
	r.wg.Wait()
}
