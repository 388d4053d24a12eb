package vocalmerge

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/mixer"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/outputs"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/process"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/scoring"
)

type Config struct {
	TempDir            string
	OutputDir          string
	DBPath             string
	BaseURL            string
	Mode               DeliveryMode
	FFmpegPath         string
	FFprobePath        string
	MaxConcurrentMixes int64
	MixTimeout         time.Duration
	ProbeTimeout       time.Duration
	ArtifactGrace      time.Duration
	Mix                mixer.Settings
	Scoring            scoring.Config

	Logger  Logger
	Runner  process.Runner
	Fetcher Fetcher
	Prober  Prober
	Scorer  Scorer
	Mixer   Mixer
	Store   ArtifactStore
}

type Option func(*Config)

func WithTempDir(dir string) Option {
	return func(c *Config) {
		c.TempDir = dir
	}
}

func WithOutputDir(dir string) Option {
	return func(c *Config) {
		c.OutputDir = dir
	}
}

func WithDBPath(path string) Option {
	return func(c *Config) {
		c.DBPath = path
	}
}

func WithBaseURL(url string) Option {
	return func(c *Config) {
		c.BaseURL = url
	}
}

func WithDeliveryMode(mode DeliveryMode) Option {
	return func(c *Config) {
		c.Mode = mode
	}
}

func WithFFmpeg(ffmpegPath, ffprobePath string) Option {
	return func(c *Config) {
		if ffmpegPath != "" {
			c.FFmpegPath = ffmpegPath
		}
		if ffprobePath != "" {
			c.FFprobePath = ffprobePath
		}
	}
}

func WithMaxConcurrentMixes(n int64) Option {
	return func(c *Config) {
		c.MaxConcurrentMixes = n
	}
}

func WithMixTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.MixTimeout = d
	}
}

func WithArtifactGrace(d time.Duration) Option {
	return func(c *Config) {
		c.ArtifactGrace = d
	}
}

func WithMixSettings(s mixer.Settings) Option {
	return func(c *Config) {
		c.Mix = s
	}
}

func WithScoringConfig(sc scoring.Config) Option {
	return func(c *Config) {
		c.Scoring = sc
	}
}

// WithTuning applies a loaded tuning file on top of the current settings.
func WithTuning(t *Tuning) Option {
	return func(c *Config) {
		if t == nil {
			return
		}
		c.Mix = t.Mix
		c.Scoring = t.Scoring
		if t.MaxConcurrentMixes > 0 {
			c.MaxConcurrentMixes = t.MaxConcurrentMixes
		}
		if t.ArtifactGrace > 0 {
			c.ArtifactGrace = t.ArtifactGrace
		}
		if t.MixTimeout > 0 {
			c.MixTimeout = t.MixTimeout
		}
	}
}

func WithLogger(log Logger) Option {
	return func(c *Config) {
		c.Logger = log
	}
}

func WithRunner(r process.Runner) Option {
	return func(c *Config) {
		c.Runner = r
	}
}

func WithFetcher(f Fetcher) Option {
	return func(c *Config) {
		c.Fetcher = f
	}
}

func WithProber(p Prober) Option {
	return func(c *Config) {
		c.Prober = p
	}
}

func WithScorer(s Scorer) Option {
	return func(c *Config) {
		c.Scorer = s
	}
}

func WithMixer(m Mixer) Option {
	return func(c *Config) {
		c.Mixer = m
	}
}

func WithArtifactStore(s ArtifactStore) Option {
	return func(c *Config) {
		c.Store = s
	}
}

func defaultConfig() *Config {
	return &Config{
		TempDir:            os.TempDir(),
		OutputDir:          "outputs",
		DBPath:             "vocalmerge.sqlite3",
		BaseURL:            "http://localhost:8080",
		Mode:               DeliveryReferenced,
		FFmpegPath:         "ffmpeg",
		FFprobePath:        "ffprobe",
		MaxConcurrentMixes: 2,
		MixTimeout:         mixer.DefaultTimeout,
		ProbeTimeout:       30 * time.Second,
		ArtifactGrace:      outputs.DefaultGrace,
		Mix:                mixer.DefaultSettings(),
		Scoring:            scoring.DefaultConfig(),
	}
}

// Tuning is the optional YAML file that overrides mix and scoring
// parameters. Keys left out keep their defaults.
type Tuning struct {
	Mix                mixer.Settings `yaml:"mix"`
	Scoring            scoring.Config `yaml:"scoring"`
	MaxConcurrentMixes int64          `yaml:"max_concurrent_mixes"`
	ArtifactGrace      time.Duration  `yaml:"artifact_grace"`
	MixTimeout         time.Duration  `yaml:"mix_timeout"`
}

func DefaultTuning() *Tuning {
	return &Tuning{
		Mix:     mixer.DefaultSettings(),
		Scoring: scoring.DefaultConfig(),
	}
}

func LoadTuning(path string) (*Tuning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening tuning file: %w", err)
	}
	defer f.Close()

	t := DefaultTuning()
	if err := yaml.NewDecoder(f).Decode(t); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decoding tuning file %s: %w", path, err)
	}
	if err := t.Scoring.Validate(); err != nil {
		return nil, fmt.Errorf("tuning file %s: %w", path, err)
	}
	return t, nil
}
