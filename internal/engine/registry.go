package engine

import (
	"context"

	"github.com/tanq16/hlsget/internal/downloaders/hls"
	"github.com/tanq16/hlsget/internal/downloaders/single"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

// Downloader runs one attempt for one job. Progress and Cursor may be called
// from another goroutine while Download is running.
type Downloader interface {
	Download(ctx context.Context, job types.Job) (string, error)
	Progress() (downloaded, total uint64)
	Cursor() types.Cursor
}

// Factory builds a fresh Downloader for each attempt.
type Factory func(job types.Job) Downloader

type Registry map[types.Kind]Factory

// NewRegistry wires both downloader variants to the shared HTTP client.
func NewRegistry(client utils.HTTPDoer, parallelism int, scratchRoot string) Registry {
	return Registry{
		types.KindSingle: func(types.Job) Downloader {
			return single.New(client, scratchRoot)
		},
		types.KindPlaylist: func(types.Job) Downloader {
			return hls.New(client, hls.Config{Parallelism: parallelism, ScratchRoot: scratchRoot})
		},
	}
}
