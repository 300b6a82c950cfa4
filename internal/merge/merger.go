// Package merge concatenates downloaded segment files in index order.
package merge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/types"
)

const BufferSize = 1024 * 1024

var (
	ErrNonNumericSegment = errors.New("segment file name is not numeric")
	ErrMissingSegment    = errors.New("segment file missing")
)

type Options struct {
	// Expected is the number of segments the directory should hold
	// (indexes 0..Expected-1). Zero skips the gap check.
	Expected int
	// Strict turns a missing index into an error instead of a warning.
	Strict bool
}

type segmentFile struct {
	index int
	path  string
}

// Merge writes every segment file in sourceDir, ordered by the numeric value
// of its name stem, into destPath. The output is assembled next to destPath
// and renamed into place, so destPath never holds a partial result.
func Merge(sourceDir, destPath string, opts Options) (int64, error) {
	files, err := listSegments(sourceDir)
	if err != nil {
		return 0, err
	}
	if err := checkGaps(files, opts); err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("%w: no segment files in %s", ErrMissingSegment, sourceDir)
	}

	tempPath := destPath + ".merging"
	out, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return 0, &types.IOError{Op: "error creating merged file", Err: err}
	}
	total, err := concat(out, files)
	if err == nil {
		err = out.Sync()
	}
	if closeErr := out.Close(); err == nil && closeErr != nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempPath)
		return 0, &types.IOError{Op: "error merging segments", Err: err}
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		os.Remove(tempPath)
		return 0, &types.IOError{Op: "error finalizing merged file", Err: err}
	}
	log.Debug().Str("op", "merge/merger").Msgf("Merged %d segments (%d bytes) into %s", len(files), total, destPath)
	return total, nil
}

func listSegments(sourceDir string) ([]segmentFile, error) {
	entries, err := os.ReadDir(sourceDir)
	if err != nil {
		return nil, &types.IOError{Op: "error listing segment directory", Err: err}
	}
	files := make([]segmentFile, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		stem := strings.TrimSuffix(name, filepath.Ext(name))
		index, err := strconv.Atoi(stem)
		if err != nil || index < 0 {
			return nil, fmt.Errorf("%w: %s", ErrNonNumericSegment, name)
		}
		files = append(files, segmentFile{index: index, path: filepath.Join(sourceDir, name)})
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].index < files[j].index
	})
	return files, nil
}

func checkGaps(files []segmentFile, opts Options) error {
	if opts.Expected <= 0 {
		return nil
	}
	present := make(map[int]bool, len(files))
	for _, f := range files {
		present[f.index] = true
	}
	for i := 0; i < opts.Expected; i++ {
		if present[i] {
			continue
		}
		if opts.Strict {
			return fmt.Errorf("%w: index %d", ErrMissingSegment, i)
		}
		log.Warn().Str("op", "merge/merger").Msgf("Segment %d is missing, skipping it", i)
	}
	return nil
}

func concat(out io.Writer, files []segmentFile) (int64, error) {
	buffer := make([]byte, BufferSize)
	var total int64
	for _, f := range files {
		in, err := os.Open(f.path)
		if err != nil {
			if os.IsNotExist(err) {
				log.Warn().Str("op", "merge/merger").Msgf("Segment file %s disappeared, skipping it", f.path)
				continue
			}
			return total, err
		}
		n, err := io.CopyBuffer(out, in, buffer)
		in.Close()
		total += n
		if err != nil {
			return total, fmt.Errorf("segment %d: %w", f.index, err)
		}
	}
	return total, nil
}
