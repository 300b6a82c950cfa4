package types

import (
	"net/url"
	"path/filepath"
	"strings"
	"time"
)

// Kind selects the downloader variant for a job. It is decided once at
// submission time and never re-inspected.
type Kind string

const (
	KindSingle   Kind = "single"
	KindPlaylist Kind = "playlist"
)

// Job is the durable record of one user-initiated download.
type Job struct {
	ID                   int64             `yaml:"id" json:"id"`
	SourceURL            string            `yaml:"url" json:"url"`
	FileName             string            `yaml:"file_name" json:"file_name"`
	DestinationDirectory string            `yaml:"destination_directory" json:"destination_directory"`
	MimeType             string            `yaml:"mime_type,omitempty" json:"mime_type,omitempty"`
	Headers              map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	ShowNotification     bool              `yaml:"show_notification" json:"show_notification"`
	SupportChunks        bool              `yaml:"support_chunks" json:"support_chunks"`
	Kind                 Kind              `yaml:"kind" json:"kind"`
	Status               Status            `yaml:"status" json:"status"`
	DownloadedBytes      uint64            `yaml:"downloaded_bytes" json:"downloaded_bytes"`
	TotalBytes           uint64            `yaml:"total_bytes" json:"total_bytes"`
	Cursor               Cursor            `yaml:"cursor" json:"cursor"`
	CreatedAt            time.Time         `yaml:"created_at" json:"created_at"`
}

// Cursor records how far a job got before its last attempt stopped.
type Cursor struct {
	BytesOnDisk       uint64 `yaml:"bytes_on_disk" json:"bytes_on_disk"`
	CompletedSegments int    `yaml:"completed_segments" json:"completed_segments"`
}

func (j Job) OutputPath() string {
	return filepath.Join(j.DestinationDirectory, j.FileName)
}

// Percent returns whole-number progress, 0 while the size is unknown.
func (j Job) Percent() int {
	if j.TotalBytes == 0 {
		return 0
	}
	p := int(j.DownloadedBytes * 100 / j.TotalBytes)
	return min(p, 100)
}

// Clone returns a copy that shares no mutable state with j.
func (j Job) Clone() Job {
	if j.Headers != nil {
		headers := make(map[string]string, len(j.Headers))
		for k, v := range j.Headers {
			headers[k] = v
		}
		j.Headers = headers
	}
	return j
}

// DetermineKind inspects the source URL and mime type once to pick the
// downloader variant.
func DetermineKind(rawURL, mimeType string) Kind {
	mt := strings.ToLower(mimeType)
	if strings.Contains(mt, "mpegurl") {
		return KindPlaylist
	}
	path := strings.ToLower(rawURL)
	if parsed, err := url.Parse(rawURL); err == nil {
		path = strings.ToLower(parsed.Path)
	}
	if strings.HasSuffix(path, ".m3u8") || strings.HasSuffix(path, ".m3u") {
		return KindPlaylist
	}
	return KindSingle
}
