// Package playlist turns M3U8 media playlists into ordered segment lists.
package playlist

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/types"
)

const (
	headerTag    = "#EXTM3U"
	infoTag      = "#EXTINF:"
	byteRangeTag = "#EXT-X-BYTERANGE:"
	endListTag   = "#EXT-X-ENDLIST"
)

type format int

const (
	formatUnknown format = iota
	formatURLList
	formatByteRange
)

// Parse reads a media playlist. Segment URLs are resolved against baseURL
// and every descriptor gets its own copy of headers. Byte-range playlists
// additionally carry a Range header per descriptor.
func Parse(text, baseURL string, headers map[string]string) ([]types.Segment, error) {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.TrimLeft(text, " \t\r\n")
	if !strings.HasPrefix(text, headerTag) {
		return nil, fmt.Errorf("%w: missing %s header", types.ErrMalformedPlaylist, headerTag)
	}

	var segments []types.Segment
	detected := formatUnknown
	pickNext := false
	pendingRange := ""
	lineNo := 0

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, endListTag):
			return finish(segments, detected)
		case strings.HasPrefix(line, infoTag):
			pickNext = true
		case pickNext && strings.HasPrefix(line, byteRangeTag):
			if detected == formatURLList {
				// committed to URL listing; byte ranges are ignored from here
				continue
			}
			rangeHeader, err := parseByteRange(strings.TrimPrefix(line, byteRangeTag))
			if err != nil {
				return nil, fmt.Errorf("%w: line %d: %v", types.ErrMalformedPlaylist, lineNo, err)
			}
			detected = formatByteRange
			pendingRange = rangeHeader
		case strings.HasPrefix(line, "#"):
			continue
		case pickNext:
			segment := types.Segment{
				Index:   len(segments),
				URL:     ResolveURL(baseURL, line),
				Headers: copyHeaders(headers),
			}
			if detected == formatByteRange {
				if pendingRange == "" {
					return nil, fmt.Errorf("%w: line %d: segment without byte range", types.ErrMalformedPlaylist, lineNo)
				}
				segment.Headers["Range"] = pendingRange
				pendingRange = ""
			} else {
				detected = formatURLList
			}
			segments = append(segments, segment)
			pickNext = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning playlist: %w", err)
	}
	return finish(segments, detected)
}

func finish(segments []types.Segment, detected format) ([]types.Segment, error) {
	if len(segments) == 0 {
		return nil, fmt.Errorf("%w: no segments found", types.ErrMalformedPlaylist)
	}
	log.Debug().Str("op", "playlist/parser").Msgf("Parsed %d segments (byte-range=%t)", len(segments), detected == formatByteRange)
	return segments, nil
}

// parseByteRange converts "START@LENGTH" into "bytes=START-(START+LENGTH)".
func parseByteRange(value string) (string, error) {
	parts := strings.Split(strings.TrimSpace(value), "@")
	if len(parts) != 2 {
		return "", fmt.Errorf("byte range %q is not START@LENGTH", value)
	}
	start, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid byte range start %q", parts[0])
	}
	length, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid byte range length %q", parts[1])
	}
	return fmt.Sprintf("bytes=%d-%d", start, start+length), nil
}

// ResolveURL keeps entries starting with "http" as they are and otherwise
// joins them to the directory part of baseURL.
func ResolveURL(baseURL, entry string) string {
	if strings.HasPrefix(entry, "http") {
		return entry
	}
	base := baseURL
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[:idx]
	}
	return base + "/" + strings.TrimPrefix(entry, "/")
}

func copyHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	return out
}
