// Package scoring derives a performance score from a mono vocal recording:
// per-frame pitch and energy are extracted, reduced to ratios and shaped into
// bounded sub-scores plus a verdict.
package scoring

import (
	"errors"
	"fmt"
)

const (
	FrameSize = 2048
	HopSize   = FrameSize / 2

	// valid vocal pitch, both bounds exclusive
	MinPitchHz = 50.0
	MaxPitchHz = 1500.0

	// RMS above this counts as an active frame (samples normalized to [-1, 1])
	EnergyThreshold = 1e-5

	// pitch spread that maps to full diversity
	DiversityRangeHz = 1000.0

	YINThreshold = 0.1
)

var (
	ErrEmptyInput    = errors.New("no samples to analyze")
	ErrTooShort      = errors.New("recording shorter than one analysis frame")
	ErrBadSampleRate = errors.New("sample rate must be positive")
	ErrInvalidConfig = errors.New("invalid scoring configuration")
)

// Config holds the analysis parameters. The zero value is not usable; start
// from DefaultConfig.
type Config struct {
	FrameSize        int     `yaml:"frame_size"`
	HopSize          int     `yaml:"hop_size"`
	MinPitchHz       float64 `yaml:"min_pitch_hz"`
	MaxPitchHz       float64 `yaml:"max_pitch_hz"`
	EnergyThreshold  float64 `yaml:"energy_threshold"`
	DiversityRangeHz float64 `yaml:"diversity_range_hz"`
	YINThreshold     float64 `yaml:"yin_threshold"`
}

func DefaultConfig() Config {
	return Config{
		FrameSize:        FrameSize,
		HopSize:          HopSize,
		MinPitchHz:       MinPitchHz,
		MaxPitchHz:       MaxPitchHz,
		EnergyThreshold:  EnergyThreshold,
		DiversityRangeHz: DiversityRangeHz,
		YINThreshold:     YINThreshold,
	}
}

func (c Config) Validate() error {
	switch {
	case c.FrameSize < 64:
		return fmt.Errorf("%w: frame size must be at least 64", ErrInvalidConfig)
	case c.HopSize <= 0 || c.HopSize > c.FrameSize:
		return fmt.Errorf("%w: hop size must be in (0, frame size]", ErrInvalidConfig)
	case c.MinPitchHz <= 0 || c.MaxPitchHz <= c.MinPitchHz:
		return fmt.Errorf("%w: pitch range must be positive and ordered", ErrInvalidConfig)
	case c.EnergyThreshold < 0:
		return fmt.Errorf("%w: energy threshold must not be negative", ErrInvalidConfig)
	case c.DiversityRangeHz <= 0:
		return fmt.Errorf("%w: diversity range must be positive", ErrInvalidConfig)
	case c.YINThreshold <= 0 || c.YINThreshold >= 1:
		return fmt.Errorf("%w: yin threshold must be in (0, 1)", ErrInvalidConfig)
	}
	return nil
}
