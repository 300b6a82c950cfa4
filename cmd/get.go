package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tanq16/hlsget/internal/engine"
	"github.com/tanq16/hlsget/internal/publish"
	"github.com/tanq16/hlsget/internal/scheduler"
	"github.com/tanq16/hlsget/internal/utils"
)

func newGetCmd() *cobra.Command {
	var fileName, mimeType string
	var chunks bool

	cmd := &cobra.Command{
		Use:   "get [URL] [--file-name NAME]",
		Short: "Download an HLS playlist or a single file in the foreground",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := engine.Request{
				URL:           args[0],
				FileName:      fileName,
				MimeType:      mimeType,
				Headers:       utils.ParseHeaderArgs(headers),
				SupportChunks: chunks,
			}
			return runForeground([]engine.Request{req})
		},
	}

	cmd.Flags().StringVarP(&fileName, "file-name", "f", "", "Output file name (default is inferred from the URL)")
	cmd.Flags().StringVar(&mimeType, "mime-type", "", "Mime type of the source (an mpegurl type forces playlist mode)")
	cmd.Flags().BoolVar(&chunks, "resume", true, "Resume single-file downloads from a previous partial file")
	return cmd
}

func runForeground(reqs []engine.Request) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	session := &scheduler.Session{Config: globalConfig, Out: os.Stdout}
	if globalConfig.Publish.S3 != nil {
		publisher, err := publish.NewS3(ctx, *globalConfig.Publish.S3)
		if err != nil {
			return err
		}
		session.Publisher = publisher
	}
	return session.Run(ctx, reqs)
}
