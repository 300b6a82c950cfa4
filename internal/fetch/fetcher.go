// Package fetch streams a single HTTP resource into a file.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/types"
	"github.com/tanq16/hlsget/internal/utils"
)

const ChunkSize = 16 * 1024

type Request struct {
	URL        string
	Dest       string
	Headers    map[string]string
	ResumeFrom int64
}

// ProgressFunc receives the bytes present in the destination so far
// (including resumed bytes) and the expected final size, 0 if unknown.
type ProgressFunc func(written, total int64)

type Fetcher struct {
	client utils.HTTPDoer
}

func New(client utils.HTTPDoer) *Fetcher {
	return &Fetcher{client: client}
}

// Fetch downloads req.URL into req.Dest and returns the total bytes in the
// file. The context is checked between chunk reads; a cancelled fetch keeps
// what it has written and returns an error matching types.ErrCancelled.
func (f *Fetcher) Fetch(ctx context.Context, req Request, onProgress ProgressFunc) (written int64, err error) {
	if req.ResumeFrom < 0 {
		req.ResumeFrom = 0
	}
	if req.ResumeFrom > 0 {
		info, statErr := os.Stat(req.Dest)
		if statErr != nil || info.Size() < req.ResumeFrom {
			log.Warn().Str("op", "fetch/fetcher").Msgf("Resume offset %d beyond data on disk for %s, starting over", req.ResumeFrom, req.Dest)
			req.ResumeFrom = 0
		}
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return 0, fmt.Errorf("error creating GET request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if req.ResumeFrom > 0 {
		httpReq.Header.Set("Range", fmt.Sprintf("bytes=%d-", req.ResumeFrom))
		log.Debug().Str("op", "fetch/fetcher").Msgf("Resuming %s from offset %d", req.Dest, req.ResumeFrom)
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return req.ResumeFrom, cancelled(ctx)
		}
		if utils.IsNetworkError(err) {
			return req.ResumeFrom, fmt.Errorf("error executing GET request: %w: %w", types.ErrNetworkUnavailable, err)
		}
		return req.ResumeFrom, fmt.Errorf("error executing GET request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusRequestedRangeNotSatisfiable && req.ResumeFrom > 0 &&
		unsatisfiedSize(resp.Header.Get("Content-Range")) == req.ResumeFrom {
		log.Debug().Str("op", "fetch/fetcher").Msgf("%s already holds all %d bytes", req.Dest, req.ResumeFrom)
		if err := os.Truncate(req.Dest, req.ResumeFrom); err != nil {
			return 0, &types.IOError{Op: "error truncating output file", Err: err}
		}
		if onProgress != nil {
			onProgress(req.ResumeFrom, req.ResumeFrom)
		}
		return req.ResumeFrom, nil
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent {
		return 0, &types.ServerError{Code: resp.StatusCode}
	}
	offset := req.ResumeFrom
	if offset > 0 && resp.StatusCode == http.StatusOK {
		log.Warn().Str("op", "fetch/fetcher").Msgf("Server ignored range request (status %d), restarting %s", resp.StatusCode, req.Dest)
		offset = 0
	}

	outFile, err := os.OpenFile(req.Dest, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return 0, &types.IOError{Op: "error opening output file", Err: err}
	}
	defer func() {
		if syncErr := outFile.Sync(); syncErr != nil && err == nil {
			err = &types.IOError{Op: "error syncing output file", Err: syncErr}
		}
		if closeErr := outFile.Close(); closeErr != nil && err == nil {
			err = &types.IOError{Op: "error closing output file", Err: closeErr}
		}
	}()
	// drop anything past the resume point so a stale tail can never survive
	if err := outFile.Truncate(offset); err != nil {
		return 0, &types.IOError{Op: "error truncating output file", Err: err}
	}
	if _, err := outFile.Seek(offset, io.SeekStart); err != nil {
		return 0, &types.IOError{Op: "error seeking output file", Err: err}
	}

	total := int64(0)
	if resp.ContentLength >= 0 {
		total = resp.ContentLength + offset
	}
	written = offset
	if onProgress != nil && offset > 0 {
		onProgress(written, total)
	}

	buffer := make([]byte, ChunkSize)
	for {
		if ctx.Err() != nil {
			return written, cancelled(ctx)
		}
		bytesRead, readErr := resp.Body.Read(buffer)
		if bytesRead > 0 {
			if _, writeErr := outFile.Write(buffer[:bytesRead]); writeErr != nil {
				return written, &types.IOError{Op: "error writing to output file", Err: writeErr}
			}
			written += int64(bytesRead)
			if onProgress != nil {
				onProgress(written, total)
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				break
			}
			if ctx.Err() != nil {
				return written, cancelled(ctx)
			}
			if utils.IsNetworkError(readErr) || errors.Is(readErr, io.ErrUnexpectedEOF) {
				return written, fmt.Errorf("error reading response body: %w: %w", types.ErrNetworkUnavailable, readErr)
			}
			return written, fmt.Errorf("error reading response body: %w", readErr)
		}
	}
	if total > 0 && written != total {
		return written, fmt.Errorf("size mismatch: expected %d bytes, got %d", total, written)
	}
	return written, nil
}

// unsatisfiedSize reads the complete length from a 416 Content-Range of the
// form "bytes */SIZE", or -1.
func unsatisfiedSize(contentRange string) int64 {
	rest, ok := strings.CutPrefix(strings.TrimSpace(contentRange), "bytes */")
	if !ok {
		return -1
	}
	size, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		return -1
	}
	return size
}

// cancelled builds the error for a stopped fetch, keeping the cancel cause
// (pause, lost network) visible to errors.Is.
func cancelled(ctx context.Context) error {
	cause := context.Cause(ctx)
	if cause == nil || cause == types.ErrCancelled {
		return types.ErrCancelled
	}
	return fmt.Errorf("%w: %w", types.ErrCancelled, cause)
}
