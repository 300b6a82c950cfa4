package single

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/fetch"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

// Downloader fetches one file into a .part file in the scratch directory and
// renames it into place when complete.
type Downloader struct {
	fetcher     *fetch.Fetcher
	scratchRoot string

	written atomic.Int64
	total   atomic.Int64
}

func New(client utils.HTTPDoer, scratchRoot string) *Downloader {
	return &Downloader{fetcher: fetch.New(client), scratchRoot: scratchRoot}
}

func (d *Downloader) partPath(job types.Job) string {
	root := d.scratchRoot
	if root == "" {
		root = utils.ScratchDir(job.DestinationDirectory)
	}
	return filepath.Join(root, fmt.Sprintf("%d_%s.part", job.ID, job.FileName))
}

func (d *Downloader) Download(ctx context.Context, job types.Job) (string, error) {
	part := d.partPath(job)
	if err := os.MkdirAll(filepath.Dir(part), 0755); err != nil {
		return "", &types.IOError{Op: "error creating temp directory", Err: err}
	}

	var resumeFrom int64
	if info, err := os.Stat(part); err == nil {
		if job.SupportChunks {
			resumeFrom = info.Size()
			log.Debug().Str("op", "single/downloader").Msgf("Resuming %s from offset %d", job.FileName, resumeFrom)
		} else if err := os.Remove(part); err != nil {
			return "", &types.IOError{Op: "error removing stale part file", Err: err}
		}
	}
	d.written.Store(resumeFrom)

	_, err := d.fetcher.Fetch(ctx, fetch.Request{
		URL:        job.SourceURL,
		Dest:       part,
		Headers:    job.Headers,
		ResumeFrom: resumeFrom,
	}, func(written, total int64) {
		d.written.Store(written)
		d.total.Store(total)
	})
	if err != nil {
		return "", err
	}

	dest := job.OutputPath()
	if err := os.Rename(part, dest); err != nil {
		return "", &types.IOError{Op: "error renaming (finalizing) output file", Err: err}
	}
	log.Info().Str("op", "single/downloader").Msgf("Download successful for %s", dest)
	return dest, nil
}

func (d *Downloader) Progress() (uint64, uint64) {
	written := d.written.Load()
	return uint64(written), uint64(max(d.total.Load(), written))
}

func (d *Downloader) Cursor() types.Cursor {
	return types.Cursor{BytesOnDisk: uint64(d.written.Load())}
}
