package cmd

import (
	"fmt"
	u "net/url"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tanq16/hlsget/internal/api"
	"github.com/tanq16/hlsget/internal/config"
	"github.com/tanq16/hlsget/internal/downloaders/hls"
	"github.com/tanq16/hlsget/internal/output"
	"github.com/tanq16/hlsget/internal/runner"
	"github.com/tanq16/hlsget/internal/utils"
)

var (
	configPath    string
	outputDir     string
	scratchDir    string
	parallelism   int
	workers       int
	timeout       time.Duration
	kaTimeout     time.Duration
	userAgent     string
	proxyURL      string
	proxyUsername string
	proxyPassword string
	rateLimit     float64
	listenAddr    string
	noProbe       bool
	debug         bool
	headers       []string
)

var HLSGetVersion = "dev"

// globalConfig is the loaded config with command line overrides applied.
var globalConfig config.Config

var rootCmd = &cobra.Command{
	Use:     "hlsget",
	Short:   "hlsget is a resumable, parallel HLS (M3U8) downloader",
	Version: HLSGetVersion,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		utils.InitLogger(debug)
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, &cfg)
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid options: %w", err)
		}
		globalConfig = cfg
		log.Debug().Str("op", "cmd/root").Msgf("Parallelism %d, workers %d, output %s", cfg.Parallelism, cfg.Workers, cfg.OutputDir)
		return nil
	},
	SilenceUsage: true,
}

func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("output-dir") {
		cfg.OutputDir = outputDir
	}
	if flags.Changed("scratch-dir") {
		cfg.ScratchDir = scratchDir
	}
	if flags.Changed("parallelism") {
		cfg.Parallelism = parallelism
	}
	if flags.Changed("workers") {
		cfg.Workers = workers
	}
	if flags.Changed("timeout") {
		cfg.HTTP.Timeout = timeout
	}
	if flags.Changed("keep-alive-timeout") {
		cfg.HTTP.KATimeout = kaTimeout
	}
	if flags.Changed("user-agent") {
		cfg.HTTP.UserAgent = userAgent
	}
	if cfg.HTTP.UserAgent == "randomize" {
		cfg.HTTP.UserAgent = utils.GetRandomUserAgent()
	}
	if flags.Changed("rate-limit") {
		cfg.HTTP.RateLimit = rateLimit
	}
	// above 8 segment connections per job the socket buffers are enlarged
	if cfg.Parallelism > 8 {
		cfg.HTTP.HighThreadMode = true
	}
	if flags.Changed("listen") {
		cfg.Listen = listenAddr
	}
	if flags.Changed("no-probe") {
		cfg.Probe.Disabled = noProbe
	}
	if flags.Changed("proxy-username") {
		cfg.HTTP.ProxyUsername = proxyUsername
	}
	if flags.Changed("proxy-password") {
		cfg.HTTP.ProxyPassword = proxyPassword
	}
	if flags.Changed("proxy") {
		cfg.HTTP.ProxyURL = proxyURL
		// Check if proxy URL contains auth
		parsedProxy, err := u.Parse(proxyURL)
		if err == nil && parsedProxy.User != nil && cfg.HTTP.ProxyUsername == "" {
			cfg.HTTP.ProxyUsername = parsedProxy.User.Username()
			if password, set := parsedProxy.User.Password(); set {
				cfg.HTTP.ProxyPassword = password
			}
			// Remove auth from URL to send in clientConfig
			parsedProxy.User = nil
			cfg.HTTP.ProxyURL = parsedProxy.String()
		}
	}
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		output.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default is "+config.DefaultPath()+")")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output-dir", "o", ".", "Directory downloads are written to")
	rootCmd.PersistentFlags().StringVar(&scratchDir, "scratch-dir", "", "Directory for segment scratch data (default is a temp dir next to the output)")
	rootCmd.PersistentFlags().IntVarP(&parallelism, "parallelism", "c", hls.DefaultParallelism, "Number of segments downloaded at once per playlist")
	rootCmd.PersistentFlags().IntVarP(&workers, "workers", "w", runner.DefaultWorkers, "Number of jobs downloaded at once")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 3*time.Minute, "Time to wait for response headers (eg. 5s, 10m)")
	rootCmd.PersistentFlags().DurationVarP(&kaTimeout, "keep-alive-timeout", "k", 90*time.Second, "Keep-alive timeout for client (eg. 10s, 1m, 80s)")
	rootCmd.PersistentFlags().StringVarP(&userAgent, "user-agent", "a", utils.ToolUserAgent, "User agent (\"randomize\" picks a browser agent)")
	rootCmd.PersistentFlags().StringVarP(&proxyURL, "proxy", "p", "", "HTTP/HTTPS proxy URL (e.g., proxy.example.com:8080)")
	rootCmd.PersistentFlags().StringVar(&proxyUsername, "proxy-username", "", "Proxy username (if not provided in proxy URL)")
	rootCmd.PersistentFlags().StringVar(&proxyPassword, "proxy-password", "", "Proxy password (if not provided in proxy URL)")
	rootCmd.PersistentFlags().Float64Var(&rateLimit, "rate-limit", 0, "Maximum HTTP requests per second (0 disables)")
	rootCmd.PersistentFlags().StringVarP(&listenAddr, "listen", "l", api.DefaultListenAddress, "Address of the hlsget daemon API")
	rootCmd.PersistentFlags().BoolVar(&noProbe, "no-probe", false, "Disable the network reachability probe")
	rootCmd.PersistentFlags().StringArrayVarP(&headers, "header", "H", []string{}, "Custom headers (like 'Authorization: Basic dXNlcjpwYXNz'); can be specified multiple times")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")

	rootCmd.AddCommand(newGetCmd())
	rootCmd.AddCommand(newBatchCmd())
	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newJobsCmd())
	rootCmd.AddCommand(newPauseCmd())
	rootCmd.AddCommand(newResumeCmd())
	rootCmd.AddCommand(newDeleteCmd())
	rootCmd.AddCommand(newCleanCmd())
}
