package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/hlsget/internal/engine"
	"github.com/tanq16/hlsget/internal/utils"
	"gopkg.in/yaml.v3"
)

const mpegURLType = "application/vnd.apple.mpegurl"

type BatchEntry struct {
	OutputPath string            `yaml:"op,omitempty"`
	Link       string            `yaml:"link"`
	Headers    map[string]string `yaml:"headers,omitempty"`
}

type BatchFile map[string][]BatchEntry

func newBatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "batch [YAML_FILE] [OPTIONS]",
		Short: "Process multiple downloads from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("error reading YAML file: %w", err)
			}
			var batchFile BatchFile
			if err := yaml.Unmarshal(data, &batchFile); err != nil {
				return fmt.Errorf("error parsing YAML file: %w", err)
			}
			reqs := buildRequestsFromBatch(batchFile, utils.ParseHeaderArgs(headers))
			if len(reqs) == 0 {
				return fmt.Errorf("no valid jobs found in the batch file")
			}
			return runForeground(reqs)
		},
	}
	return cmd
}

func buildRequestsFromBatch(batchFile BatchFile, common map[string]string) []engine.Request {
	sections := make([]string, 0, len(batchFile))
	for section := range batchFile {
		sections = append(sections, section)
	}
	sort.Strings(sections)

	var reqs []engine.Request
	for _, section := range sections {
		mimeType, ok := normalizeJobType(section)
		if !ok {
			log.Warn().Str("op", "cmd/batch").Msgf("Unknown job type '%s', skipping", section)
			continue
		}
		for _, entry := range batchFile[section] {
			if entry.Link == "" {
				log.Warn().Str("op", "cmd/batch").Msgf("Empty link found in %s section, skipping", section)
				continue
			}
			req := engine.Request{
				URL:           entry.Link,
				MimeType:      mimeType,
				Headers:       mergeHeaders(common, entry.Headers),
				SupportChunks: true,
			}
			if entry.OutputPath != "" {
				req.DestinationDirectory = filepath.Dir(entry.OutputPath)
				req.FileName = filepath.Base(entry.OutputPath)
			}
			reqs = append(reqs, req)
		}
	}
	return reqs
}

// normalizeJobType maps a batch section name to the mime type used to pick
// the downloader. Plain http sections leave detection to the URL.
func normalizeJobType(jobType string) (string, bool) {
	switch strings.ToLower(jobType) {
	case "m3u8", "hls", "live-stream", "http-livestream":
		return mpegURLType, true
	case "http", "https", "file":
		return "", true
	}
	return "", false
}

func mergeHeaders(common, own map[string]string) map[string]string {
	if len(common) == 0 && len(own) == 0 {
		return nil
	}
	merged := make(map[string]string, len(common)+len(own))
	for k, v := range common {
		merged[k] = v
	}
	for k, v := range own {
		merged[k] = v
	}
	return merged
}
