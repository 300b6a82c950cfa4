package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/rs/zerolog/log"
	"github.com/tanq16/hlsget/internal/api"
	"github.com/tanq16/hlsget/internal/downloaders/hls"
	"github.com/tanq16/hlsget/internal/engine"
	"github.com/tanq16/hlsget/internal/netwatch"
	"github.com/tanq16/hlsget/internal/publish"
	"github.com/tanq16/hlsget/internal/runner"
	"github.com/tanq16/hlsget/internal/tracker"
	"github.com/tanq16/hlsget/internal/utils"
	"gopkg.in/yaml.v3"
)

const appName = "hlsget"

type ProbeConfig struct {
	Address  string        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
	Disabled bool          `yaml:"disabled"`
}

type PublishConfig struct {
	S3 *publish.S3Config `yaml:"s3"`
}

type Config struct {
	Parallelism   int                    `yaml:"parallelism"`
	Workers       int                    `yaml:"workers"`
	OutputDir     string                 `yaml:"output_dir"`
	ScratchDir    string                 `yaml:"scratch_dir"`
	StorePath     string                 `yaml:"store_path"`
	LogFile       string                 `yaml:"log_file"`
	Listen        string                 `yaml:"listen"`
	PollInterval  time.Duration          `yaml:"poll_interval"`
	FlushInterval time.Duration          `yaml:"flush_interval"`
	RetryDelay    time.Duration          `yaml:"retry_delay"`
	Probe         ProbeConfig            `yaml:"probe"`
	HTTP          utils.HTTPClientConfig `yaml:"http"`
	Publish       PublishConfig          `yaml:"publish"`
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "." + appName
	}
	return filepath.Join(dir, appName)
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	return filepath.Join(configDir(), "config.yaml")
}

func Default() Config {
	return Config{
		Parallelism:   hls.DefaultParallelism,
		Workers:       runner.DefaultWorkers,
		OutputDir:     ".",
		StorePath:     filepath.Join(configDir(), "jobs.yaml"),
		LogFile:       filepath.Join(configDir(), utils.LogFile),
		Listen:        api.DefaultListenAddress,
		PollInterval:  engine.DefaultPollInterval,
		FlushInterval: tracker.DefaultFlushInterval,
		RetryDelay:    engine.DefaultRetryDelay,
		Probe: ProbeConfig{
			Address:  netwatch.DefaultProbeAddress,
			Interval: netwatch.DefaultProbeInterval,
		},
		HTTP: utils.HTTPClientConfig{
			Timeout:   3 * time.Minute,
			KATimeout: 90 * time.Second,
			UserAgent: utils.ToolUserAgent,
		},
	}
}

// Load reads path over the defaults. An empty path means DefaultPath, which
// may be absent; an explicit path must exist.
func Load(path string) (Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && !explicit:
		log.Debug().Str("op", "config/config").Msgf("No config at %s, using defaults", path)
		return cfg, nil
	case err != nil:
		return cfg, fmt.Errorf("error reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("error parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	log.Debug().Str("op", "config/config").Msgf("Loaded config from %s", path)
	return cfg, nil
}

func (c *Config) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Parallelism, validation.Required, validation.Min(1), validation.Max(256)),
		validation.Field(&c.Workers, validation.Required, validation.Min(1)),
		validation.Field(&c.StorePath, validation.Required),
		validation.Field(&c.PollInterval, validation.Required, validation.Min(int64(10*time.Millisecond))),
		validation.Field(&c.FlushInterval, validation.Required, validation.Min(int64(10*time.Millisecond))),
		validation.Field(&c.RetryDelay, validation.Required),
	); err != nil {
		return err
	}
	if !c.Probe.Disabled {
		if err := validation.Validate(c.Probe.Address, validation.Required, is.DialString); err != nil {
			return fmt.Errorf("probe.address: %w", err)
		}
	}
	if c.Publish.S3 != nil {
		if err := validation.Validate(c.Publish.S3.Bucket, validation.Required); err != nil {
			return fmt.Errorf("publish.s3.bucket: %w", err)
		}
	}
	return nil
}

// Scratch returns the scratch root, or "" to keep scratch data next to each
// job's destination.
func (c *Config) Scratch() string {
	return c.ScratchDir
}
