package scoring

import (
	"context"
	"errors"
	"fmt"
)

// Decoder yields mono samples in [-1, 1] for a recording on disk.
type Decoder interface {
	Decode(ctx context.Context, path string) ([]float64, int, error)
}

type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Engine runs extraction and composition for whole recordings.
type Engine struct {
	Config    Config
	Decoder   Decoder
	Estimator PitchEstimator
	Logger    Logger
}

func NewEngine(cfg Config, dec Decoder, logger Logger) *Engine {
	return &Engine{
		Config:    cfg,
		Decoder:   dec,
		Estimator: NewYIN(cfg.YINThreshold),
		Logger:    logger,
	}
}

// Analyze extracts metrics from samples. Duration is derived from the frame
// count and hop so it matches what was actually analyzed.
func (e *Engine) Analyze(samples []float64, sampleRate int) (Metrics, error) {
	if err := e.Config.Validate(); err != nil {
		return Metrics{}, err
	}
	if sampleRate <= 0 {
		return Metrics{}, ErrBadSampleRate
	}
	if len(samples) == 0 {
		return Metrics{}, ErrEmptyInput
	}
	if len(samples) < e.Config.FrameSize {
		return Metrics{}, ErrTooShort
	}

	est := e.Estimator
	if est == nil {
		est = NewYIN(e.Config.YINThreshold)
	}

	pitchFrames := ExtractPitch(samples, sampleRate, e.Config, est)
	accuracy, diversity := PitchStats(pitchFrames, e.Config)
	_, activity := ExtractRhythm(samples, e.Config)

	m := Metrics{
		PitchAccuracy:   accuracy,
		PitchDiversity:  diversity,
		ActivityRatio:   activity,
		DurationSeconds: float64(len(pitchFrames)*e.Config.HopSize) / float64(sampleRate),
	}
	e.debugf("frames=%d accuracy=%.3f diversity=%.3f activity=%.3f duration=%.1fs",
		len(pitchFrames), m.PitchAccuracy, m.PitchDiversity, m.ActivityRatio, m.DurationSeconds)
	return m, nil
}

// Evaluate decodes and scores the file at path. On failure the returned
// result is DefaultResult and err describes what went wrong.
func (e *Engine) Evaluate(ctx context.Context, path string) (ScoreResult, error) {
	if e.Decoder == nil {
		return DefaultResult(), errors.New("no decoder configured")
	}
	samples, rate, err := e.Decoder.Decode(ctx, path)
	if err != nil {
		return DefaultResult(), fmt.Errorf("decode %s: %w", path, err)
	}
	return e.evaluateSamples(samples, rate)
}

func (e *Engine) ScoreSamples(samples []float64, sampleRate int) ScoreResult {
	res, err := e.evaluateSamples(samples, sampleRate)
	if err != nil {
		e.warnf("scoring failed, using default result: %v", err)
	}
	return res
}

func (e *Engine) evaluateSamples(samples []float64, sampleRate int) (ScoreResult, error) {
	m, err := e.Analyze(samples, sampleRate)
	if err != nil {
		return DefaultResult(), err
	}
	res := Compose(m)
	if e.Logger != nil {
		e.Logger.Infof("score %.1f (%s) pitch=%.1f rhythm=%.1f penalty=%t",
			res.FinalScore, res.Verdict, res.PitchScore, res.RhythmScore, res.DurationPenaltyApplied)
	}
	return res, nil
}

func (e *Engine) debugf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Debugf(format, args...)
	}
}

func (e *Engine) warnf(format string, args ...any) {
	if e.Logger != nil {
		e.Logger.Warnf(format, args...)
	}
}
