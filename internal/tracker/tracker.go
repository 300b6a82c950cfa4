package tracker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/store"
	"github.com/tanq16/hlsget/internal/types"
)

const DefaultFlushInterval = time.Second

type Options struct {
	FlushInterval time.Duration
}

// flushKey is the part of a job whose change makes it dirty for the store.
type flushKey struct {
	status     types.Status
	downloaded uint64
	total      uint64
	cursor     types.Cursor
}

func keyOf(job types.Job) flushKey {
	return flushKey{status: job.Status, downloaded: job.DownloadedBytes, total: job.TotalBytes, cursor: job.Cursor}
}

// Tracker is the authoritative in-memory view of every job. All mutation
// goes through mutate; the store is written by AddJob, RemoveJob and Flush.
type Tracker struct {
	store    store.Store
	interval time.Duration

	mu        sync.Mutex
	jobs      map[int64]types.Job
	persisted map[int64]flushKey
	subs      map[int]chan []types.Job
	nextSub   int

	// ioMu orders store writes so a flush never resurrects a removed job.
	ioMu sync.Mutex
}

// New seeds the tracker from everything the store already holds.
func New(ctx context.Context, st store.Store, opts Options) (*Tracker, error) {
	if opts.FlushInterval <= 0 {
		opts.FlushInterval = DefaultFlushInterval
	}
	t := &Tracker{
		store:     st,
		interval:  opts.FlushInterval,
		jobs:      make(map[int64]types.Job),
		persisted: make(map[int64]flushKey),
		subs:      make(map[int]chan []types.Job),
	}
	jobs, err := st.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error seeding tracker: %w", err)
	}
	for _, job := range jobs {
		t.jobs[job.ID] = job
		t.persisted[job.ID] = keyOf(job)
	}
	log.Debug().Str("op", "tracker/tracker").Msgf("Seeded %d jobs from store", len(jobs))
	return t, nil
}

func (t *Tracker) mutate(id int64, fn func(job *types.Job)) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %d", types.ErrJobNotFound, id)
	}
	fn(&job)
	t.jobs[id] = job
	t.publishLocked()
	return nil
}

func (t *Tracker) UpdateProgress(id int64, downloaded, total uint64) error {
	return t.mutate(id, func(job *types.Job) {
		if total > 0 && downloaded > total {
			total = downloaded
		}
		job.DownloadedBytes = downloaded
		job.TotalBytes = total
	})
}

// UpdateStatus does not validate the transition.
func (t *Tracker) UpdateStatus(id int64, status types.Status) error {
	return t.mutate(id, func(job *types.Job) {
		job.Status = status
	})
}

// CompareAndSetStatus moves the job to `to` only while it is still in
// `from`.
func (t *Tracker) CompareAndSetStatus(id int64, from, to types.Status) (bool, error) {
	swapped := false
	err := t.mutate(id, func(job *types.Job) {
		if job.Status == from {
			job.Status = to
			swapped = true
		}
	})
	return swapped, err
}

func (t *Tracker) SetCursor(id int64, cursor types.Cursor) error {
	return t.mutate(id, func(job *types.Job) {
		job.Cursor = cursor
	})
}

// AddJob inserts job and persists it. It reports false without touching
// anything when the id is already tracked.
func (t *Tracker) AddJob(ctx context.Context, job types.Job) (bool, error) {
	t.ioMu.Lock()
	defer t.ioMu.Unlock()

	t.mu.Lock()
	if _, ok := t.jobs[job.ID]; ok {
		t.mu.Unlock()
		return false, nil
	}
	job = job.Clone()
	t.jobs[job.ID] = job
	t.persisted[job.ID] = keyOf(job)
	t.publishLocked()
	t.mu.Unlock()

	if err := t.store.Upsert(ctx, job); err != nil {
		t.mu.Lock()
		delete(t.jobs, job.ID)
		delete(t.persisted, job.ID)
		t.publishLocked()
		t.mu.Unlock()
		return false, fmt.Errorf("error persisting job %d: %w", job.ID, err)
	}
	return true, nil
}

func (t *Tracker) RemoveJob(ctx context.Context, id int64) error {
	t.ioMu.Lock()
	defer t.ioMu.Unlock()

	t.mu.Lock()
	delete(t.jobs, id)
	delete(t.persisted, id)
	t.publishLocked()
	t.mu.Unlock()

	if err := t.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("error deleting job %d: %w", id, err)
	}
	return nil
}

func (t *Tracker) Get(id int64) (types.Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.jobs[id]
	return job.Clone(), ok
}

// Snapshot returns a copy of every job ordered by id descending.
func (t *Tracker) Snapshot() []types.Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Tracker) snapshotLocked() []types.Job {
	out := make([]types.Job, 0, len(t.jobs))
	for _, job := range t.jobs {
		out = append(out, job.Clone())
	}
	slices.SortFunc(out, func(a, b types.Job) int {
		switch {
		case a.ID > b.ID:
			return -1
		case a.ID < b.ID:
			return 1
		}
		return 0
	})
	return out
}

// Subscribe returns a channel that always holds the latest snapshot. Slow
// readers miss intermediate snapshots, never the newest one.
func (t *Tracker) Subscribe() (<-chan []types.Job, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ch := make(chan []types.Job, 1)
	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	ch <- t.snapshotLocked()
	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			delete(t.subs, id)
			t.mu.Unlock()
		})
	}
}

func (t *Tracker) publishLocked() {
	if len(t.subs) == 0 {
		return
	}
	snap := t.snapshotLocked()
	for _, ch := range t.subs {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}

// Run flushes dirty jobs every interval until ctx is done, then flushes
// once more.
func (t *Tracker) Run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			if err := t.Flush(context.WithoutCancel(ctx)); err != nil {
				log.Error().Str("op", "tracker/tracker").Err(err).Msg("Final flush failed")
			}
			return
		case <-ticker.C:
			if err := t.Flush(ctx); err != nil {
				log.Warn().Str("op", "tracker/tracker").Err(err).Msg("Flush failed, retrying next tick")
			}
		}
	}
}

// Flush persists every job whose status or byte counts changed since the
// last successful write.
func (t *Tracker) Flush(ctx context.Context) error {
	t.ioMu.Lock()
	defer t.ioMu.Unlock()

	t.mu.Lock()
	var dirty []types.Job
	for id, job := range t.jobs {
		if t.persisted[id] != keyOf(job) {
			dirty = append(dirty, job.Clone())
		}
	}
	t.mu.Unlock()

	var errs []error
	for _, job := range dirty {
		if err := t.store.Upsert(ctx, job); err != nil {
			errs = append(errs, fmt.Errorf("job %d: %w", job.ID, err))
			continue
		}
		t.mu.Lock()
		if _, ok := t.jobs[job.ID]; ok {
			t.persisted[job.ID] = keyOf(job)
		}
		t.mu.Unlock()
	}
	if len(dirty) > 0 {
		log.Debug().Str("op", "tracker/tracker").Msgf("Flushed %d/%d dirty jobs", len(dirty)-len(errs), len(dirty))
	}
	return errors.Join(errs...)
}
