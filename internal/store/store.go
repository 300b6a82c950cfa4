package store

import (
	"context"
	"slices"
	"sync"

	"github.com/tanq16/hlsget/internal/types"
)

// Store is a durable key-value table of jobs keyed by id.
type Store interface {
	Upsert(ctx context.Context, job types.Job) error
	Get(ctx context.Context, id int64) (types.Job, error)
	// List returns every job ordered by id descending.
	List(ctx context.Context) ([]types.Job, error)
	Delete(ctx context.Context, id int64) error
}

type Memory struct {
	mu   sync.RWMutex
	jobs map[int64]types.Job
}

func NewMemory() *Memory {
	return &Memory{jobs: make(map[int64]types.Job)}
}

func (m *Memory) Upsert(_ context.Context, job types.Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id int64) (types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return types.Job{}, types.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (m *Memory) List(_ context.Context) ([]types.Job, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sorted(m.jobs), nil
}

func (m *Memory) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.jobs, id)
	return nil
}

func sorted(jobs map[int64]types.Job) []types.Job {
	out := make([]types.Job, 0, len(jobs))
	for _, job := range jobs {
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
