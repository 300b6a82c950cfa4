package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/types"
	"gopkg.in/yaml.v3"
)

type fileContents struct {
	Jobs []types.Job `yaml:"jobs"`
}

// File keeps jobs in a YAML document. Every mutation rewrites the whole
// document through a temp file and rename, so a crash leaves either the old
// or the new version on disk.
type File struct {
	path string
	mu   sync.Mutex
	jobs map[int64]types.Job
}

func Open(path string) (*File, error) {
	f := &File{path: path, jobs: make(map[int64]types.Job)}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debug().Str("op", "store/file").Msgf("No job store at %s, starting empty", path)
		return f, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error reading job store: %w", err)
	}
	var contents fileContents
	if err := yaml.Unmarshal(data, &contents); err != nil {
		return nil, fmt.Errorf("error parsing job store %s: %w", path, err)
	}
	for _, job := range contents.Jobs {
		f.jobs[job.ID] = job
	}
	log.Debug().Str("op", "store/file").Msgf("Loaded %d jobs from %s", len(f.jobs), path)
	return f, nil
}

func (f *File) Upsert(_ context.Context, job types.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, existed := f.jobs[job.ID]
	f.jobs[job.ID] = job.Clone()
	if err := f.save(); err != nil {
		if existed {
			f.jobs[job.ID] = prev
		} else {
			delete(f.jobs, job.ID)
		}
		return err
	}
	return nil
}

func (f *File) Get(_ context.Context, id int64) (types.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return types.Job{}, types.ErrJobNotFound
	}
	return job.Clone(), nil
}

func (f *File) List(_ context.Context) ([]types.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sorted(f.jobs), nil
}

func (f *File) Delete(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.jobs[id]
	if !ok {
		return nil
	}
	delete(f.jobs, id)
	if err := f.save(); err != nil {
		f.jobs[id] = prev
		return err
	}
	return nil
}

func (f *File) save() error {
	data, err := yaml.Marshal(fileContents{Jobs: sorted(f.jobs)})
	if err != nil {
		return fmt.Errorf("error encoding job store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return &types.IOError{Op: "error creating job store directory", Err: err}
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return &types.IOError{Op: "error writing job store", Err: err}
	}
	if err := os.Rename(tmp, f.path); err != nil {
		os.Remove(tmp)
		return &types.IOError{Op: "error replacing job store", Err: err}
	}
	return nil
}
