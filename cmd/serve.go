package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/hlsget/internal/api"
	"github.com/tanq16/hlsget/internal/engine"
	"github.com/tanq16/hlsget/internal/netwatch"
	"github.com/tanq16/hlsget/internal/notify"
	"github.com/tanq16/hlsget/internal/output"
	"github.com/tanq16/hlsget/internal/publish"
	"github.com/tanq16/hlsget/internal/store"
	"github.com/tanq16/hlsget/internal/tracker"
	"github.com/tanq16/hlsget/internal/utils"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the download daemon with its HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func serve(ctx context.Context) error {
	cfg := globalConfig
	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0755); err != nil {
			return fmt.Errorf("error creating log directory: %w", err)
		}
		logFile, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("error opening log file: %w", err)
		}
		defer logFile.Close()
		utils.SetLogOutput(io.MultiWriter(os.Stderr, logFile))
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		return err
	}
	tr, err := tracker.New(ctx, st, tracker.Options{FlushInterval: cfg.FlushInterval})
	if err != nil {
		return err
	}
	// the tracker outlives ctx so the final flush sees the stopped attempts
	trCtx, trCancel := context.WithCancel(context.Background())
	trDone := make(chan struct{})
	go func() {
		defer close(trDone)
		tr.Run(trCtx)
	}()

	var network netwatch.Signal = netwatch.NewStatic(true)
	if !cfg.Probe.Disabled {
		monitor := netwatch.NewMonitor(cfg.Probe.Address, cfg.Probe.Interval)
		go monitor.Run(ctx)
		network = monitor
	}

	var publisher publish.Publisher
	if cfg.Publish.S3 != nil {
		s3Publisher, err := publish.NewS3(ctx, *cfg.Publish.S3)
		if err != nil {
			trCancel()
			<-trDone
			return err
		}
		publisher = s3Publisher
	}

	notifier := notify.NewAsync(notify.Multi{notify.NewLog(10), notify.NewTerminal(os.Stdout)})
	defer notifier.Close()

	eng := engine.New(ctx, tr, engine.Options{
		Registry:           engine.NewRegistry(utils.NewHTTPClient(cfg.HTTP), cfg.Parallelism, cfg.Scratch()),
		Notifier:           notifier,
		Network:            network,
		Publisher:          publisher,
		Workers:            cfg.Workers,
		PollInterval:       cfg.PollInterval,
		RetryDelay:         cfg.RetryDelay,
		DefaultDestination: cfg.OutputDir,
	})
	if recovered := eng.Recover(ctx); recovered > 0 {
		output.PrintInfo(fmt.Sprintf("Resuming %d unfinished jobs", recovered))
	}
	go eng.Watch(ctx)

	server := api.NewServer(api.NewRouter(api.NewHandlers(eng)), api.WithAddress(cfg.Listen))
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()
	output.PrintInfo(fmt.Sprintf("Serving job API on %s", cfg.Listen))

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Str("op", "cmd/serve").Msg("Shutting down")
	case runErr = <-serverErr:
		log.Error().Str("op", "cmd/serve").Err(runErr).Msg("HTTP API stopped")
	}
	output.PrintWarning("Stopping; unfinished jobs resume on the next serve")

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Stop(stopCtx); err != nil {
		log.Warn().Str("op", "cmd/serve").Err(err).Msg("HTTP API did not stop cleanly")
	}
	eng.Shutdown()
	trCancel()
	<-trDone
	return runErr
}
