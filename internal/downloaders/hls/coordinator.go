package hls

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/fetch"
	"github.com/tanq16/hlsget/internal/merge"
	"github.com/tanq16/hlsget/internal/playlist"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const DefaultParallelism = 16

type Config struct {
	Parallelism int
	// ScratchRoot holds the per-run temp directories. Empty means the
	// scratch dir next to the job's destination.
	ScratchRoot string
}

// Coordinator downloads the segments of one playlist job with bounded
// parallelism and merges them in index order. A Coordinator serves a single
// run attempt.
type Coordinator struct {
	client      utils.HTTPDoer
	fetcher     *fetch.Fetcher
	parallelism int
	scratchRoot string

	mu        sync.Mutex
	states    []types.SegmentState
	tempDir   string
	active    atomic.Int64
	completed atomic.Int64
}

func New(client utils.HTTPDoer, cfg Config) *Coordinator {
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = DefaultParallelism
	}
	return &Coordinator{
		client:      client,
		fetcher:     fetch.New(client),
		parallelism: cfg.Parallelism,
		scratchRoot: cfg.ScratchRoot,
	}
}

// Download fetches and parses the job's playlist, then runs every segment.
func (c *Coordinator) Download(ctx context.Context, job types.Job) (string, error) {
	log.Debug().Str("op", "hls/coordinator").Msgf("Fetching manifest from %s", job.SourceURL)
	manifest, err := playlist.Fetch(ctx, c.client, job.SourceURL, job.Headers)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %w", types.ErrCancelled, context.Cause(ctx))
		}
		return "", fmt.Errorf("error fetching manifest: %w", err)
	}
	segments, err := playlist.Parse(manifest, job.SourceURL, job.Headers)
	if err != nil {
		return "", err
	}
	log.Info().Str("op", "hls/coordinator").Msgf("Found %d segments to download", len(segments))
	return c.Run(ctx, job, segments)
}

// Run downloads segments into a fresh temp directory and merges them into
// the job's output path. On pause or cancel every segment task is stopped
// and joined before Run returns; partial segment files stay on disk.
func (c *Coordinator) Run(ctx context.Context, job types.Job, segments []types.Segment) (string, error) {
	if len(segments) == 0 {
		return "", fmt.Errorf("%w: no segments", types.ErrMalformedPlaylist)
	}
	root := c.scratchRoot
	if root == "" {
		root = utils.ScratchDir(job.DestinationDirectory)
	}
	tempDir := filepath.Join(root, fmt.Sprintf("m3u8_%s_%s", time.Now().Format("20060102150405"), uuid.NewString()[:8]))
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return "", &types.IOError{Op: "error creating temp directory", Err: err}
	}
	ext := segmentExt(job.FileName)

	c.mu.Lock()
	c.tempDir = tempDir
	c.states = make([]types.SegmentState, len(segments))
	for i, seg := range segments {
		c.states[i] = types.SegmentState{
			Segment:  seg,
			TempPath: filepath.Join(tempDir, fmt.Sprintf("%d.%s", seg.Index, ext)),
		}
	}
	c.mu.Unlock()

	sem := semaphore.NewWeighted(int64(c.parallelism))
	g, gctx := errgroup.WithContext(ctx)
	for i := range segments {
		g.Go(func() error {
			return c.runSegment(gctx, sem, i)
		})
	}
	if err := g.Wait(); err != nil {
		if ctx.Err() != nil {
			log.Info().Str("op", "hls/coordinator").Msgf("Stopped with %d/%d segments done, keeping %s", c.completed.Load(), len(segments), tempDir)
			return "", fmt.Errorf("%w: %w", types.ErrCancelled, context.Cause(ctx))
		}
		log.Warn().Str("op", "hls/coordinator").Msgf("Preserving segments in %s due to error", tempDir)
		return "", err
	}

	dest := job.OutputPath()
	log.Info().Str("op", "hls/coordinator").Msg("All segments downloaded, merging")
	if _, err := merge.Merge(tempDir, dest, merge.Options{Expected: len(segments), Strict: true}); err != nil {
		log.Warn().Str("op", "hls/coordinator").Msgf("Preserving segments in %s due to merge error", tempDir)
		return "", fmt.Errorf("error merging segments: %w", err)
	}
	if err := os.RemoveAll(tempDir); err != nil {
		log.Warn().Str("op", "hls/coordinator").Err(err).Msgf("Could not remove %s", tempDir)
	}
	return dest, nil
}

func (c *Coordinator) runSegment(ctx context.Context, sem *semaphore.Weighted, i int) error {
	if err := sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %w", types.ErrCancelled, context.Cause(ctx))
	}
	defer sem.Release(1)

	c.mu.Lock()
	state := &c.states[i]
	state.Phase = types.SegmentDownloading
	req := fetch.Request{URL: state.Segment.URL, Dest: state.TempPath, Headers: state.Segment.Headers}
	index := state.Segment.Index
	c.mu.Unlock()

	c.active.Add(1)
	_, err := c.fetcher.Fetch(ctx, req, func(written, total int64) {
		c.mu.Lock()
		c.states[i].BytesWritten = written
		c.states[i].TotalBytes = total
		c.mu.Unlock()
	})
	c.active.Add(-1)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.states[i].Phase = types.SegmentFailed
		return fmt.Errorf("segment %d: %w", index, err)
	}
	c.states[i].Phase = types.SegmentDone
	if c.states[i].TotalBytes == 0 {
		c.states[i].TotalBytes = c.states[i].BytesWritten
	}
	c.completed.Add(1)
	return nil
}

// Progress returns exact downloaded bytes and an estimated total: known
// segment sizes plus their average for segments not sized yet.
func (c *Coordinator) Progress() (uint64, uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var downloaded, known int64
	sized := 0
	for _, s := range c.states {
		downloaded += s.BytesWritten
		if s.TotalBytes > 0 {
			known += s.TotalBytes
			sized++
		}
	}
	total := known
	if sized > 0 {
		total += known / int64(sized) * int64(len(c.states)-sized)
	}
	total = max(total, downloaded)
	return uint64(downloaded), uint64(total)
}

func (c *Coordinator) Cursor() types.Cursor {
	downloaded, _ := c.Progress()
	return types.Cursor{BytesOnDisk: downloaded, CompletedSegments: int(c.completed.Load())}
}

// Active is the number of segment fetches currently holding a slot.
func (c *Coordinator) Active() int {
	return int(c.active.Load())
}

func (c *Coordinator) TempDir() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tempDir
}

func segmentExt(fileName string) string {
	ext := strings.TrimPrefix(filepath.Ext(fileName), ".")
	if ext == "" {
		return "ts"
	}
	return ext
}
