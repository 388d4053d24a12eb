// Package mixer builds and runs the ffmpeg job that lays a vocal take over a
// backing track.
package mixer

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultVoiceGain = 0.6
	DefaultTrackGain = 1.7
	MaxGain          = 10.0
)

var ErrInvalidJob = errors.New("invalid mix job")

// Gate is one noise-gate stage.
type Gate struct {
	ThresholdDB float64 `yaml:"threshold_db"`
	Ratio       float64 `yaml:"ratio"`
	AttackMs    float64 `yaml:"attack_ms"`
	ReleaseMs   float64 `yaml:"release_ms"`
}

func (g Gate) filter() string {
	return fmt.Sprintf("agate=threshold=%sdB:ratio=%s:attack=%s:release=%s",
		num(g.ThresholdDB), num(g.Ratio), num(g.AttackMs), num(g.ReleaseMs))
}

// Settings are the deployment-wide mix parameters.
type Settings struct {
	TrimSeconds     float64 `yaml:"trim_seconds"`
	HighpassHz      float64 `yaml:"highpass_hz"`
	StrictGate      Gate    `yaml:"strict_gate"`
	LooseGate       Gate    `yaml:"loose_gate"`
	PresenceHz      float64 `yaml:"presence_hz"`
	PresenceWidthHz float64 `yaml:"presence_width_hz"`
	PresenceGainDB  float64 `yaml:"presence_gain_db"`
	SibilanceHz     float64 `yaml:"sibilance_hz"`
	SibilanceWidth  float64 `yaml:"sibilance_width_hz"`
	SibilanceGainDB float64 `yaml:"sibilance_gain_db"`
	ScaleVideo      bool    `yaml:"scale_video"`
	VideoWidth      int     `yaml:"video_width"`
	VideoBitrate    string  `yaml:"video_bitrate"`
	AudioBitrate    string  `yaml:"audio_bitrate"`
}

func DefaultSettings() Settings {
	return Settings{
		TrimSeconds:     5.1,
		HighpassHz:      100,
		StrictGate:      Gate{ThresholdDB: -35, Ratio: 4, AttackMs: 5, ReleaseMs: 250},
		LooseGate:       Gate{ThresholdDB: -45, Ratio: 2, AttackMs: 10, ReleaseMs: 400},
		PresenceHz:      1800,
		PresenceWidthHz: 200,
		PresenceGainDB:  3,
		SibilanceHz:     8000,
		SibilanceWidth:  2000,
		SibilanceGainDB: -2,
		ScaleVideo:      true,
		VideoWidth:      854,
		VideoBitrate:    "1200k",
		AudioBitrate:    "192k",
	}
}

// MixJob is one fully parameterized mix. Build it with NewJob; it cannot be
// changed afterwards.
type MixJob struct {
	voicePath    string
	trackPath    string
	outputPath   string
	voiceGain    float64
	trackGain    float64
	includeVideo bool
	settings     Settings
}

func NewJob(voicePath, trackPath, outputPath string, voiceGain, trackGain float64, includeVideo bool, settings Settings) (MixJob, error) {
	switch {
	case strings.TrimSpace(voicePath) == "":
		return MixJob{}, fmt.Errorf("%w: voice path is empty", ErrInvalidJob)
	case strings.TrimSpace(trackPath) == "":
		return MixJob{}, fmt.Errorf("%w: track path is empty", ErrInvalidJob)
	case strings.TrimSpace(outputPath) == "":
		return MixJob{}, fmt.Errorf("%w: output path is empty", ErrInvalidJob)
	}
	if err := ValidateGain("voiceGain", voiceGain); err != nil {
		return MixJob{}, err
	}
	if err := ValidateGain("trackGain", trackGain); err != nil {
		return MixJob{}, err
	}
	if settings.VideoWidth <= 0 {
		settings.VideoWidth = DefaultSettings().VideoWidth
	}
	return MixJob{
		voicePath:    voicePath,
		trackPath:    trackPath,
		outputPath:   outputPath,
		voiceGain:    voiceGain,
		trackGain:    trackGain,
		includeVideo: includeVideo,
		settings:     settings,
	}, nil
}

// ValidateGain rejects gains outside [0, MaxGain].
func ValidateGain(name string, gain float64) error {
	if math.IsNaN(gain) || gain < 0 || gain > MaxGain {
		return fmt.Errorf("%w: %s must be between 0 and %s, got %v", ErrInvalidJob, name, num(MaxGain), gain)
	}
	return nil
}

func (j MixJob) VoicePath() string  { return j.voicePath }
func (j MixJob) TrackPath() string  { return j.trackPath }
func (j MixJob) OutputPath() string { return j.outputPath }
func (j MixJob) VoiceGain() float64 { return j.voiceGain }
func (j MixJob) TrackGain() float64 { return j.trackGain }
func (j MixJob) IncludeVideo() bool { return j.includeVideo }
func (j MixJob) Settings() Settings { return j.settings }

// FilterGraph returns the -filter_complex description. Input 0 is the voice,
// input 1 the backing track; the track is fed to amix first so its length
// decides the output length.
func (j MixJob) FilterGraph() string {
	s := j.settings
	voice := []string{
		"aresample=async=1:first_pts=0",
		"highpass=f=" + num(s.HighpassHz),
		s.StrictGate.filter(),
		s.LooseGate.filter(),
		fmt.Sprintf("equalizer=f=%s:width_type=h:width=%s:g=%s", num(s.PresenceHz), num(s.PresenceWidthHz), num(s.PresenceGainDB)),
		fmt.Sprintf("equalizer=f=%s:width_type=h:width=%s:g=%s", num(s.SibilanceHz), num(s.SibilanceWidth), num(s.SibilanceGainDB)),
		"volume=" + num(j.voiceGain),
	}

	graph := []string{
		"[0:a]" + strings.Join(voice, ",") + "[voice]",
		"[1:a]volume=" + num(j.trackGain) + "[track]",
		"[track][voice]amix=inputs=2:duration=first:dropout_transition=2[mix]",
	}
	if j.includeVideo && s.ScaleVideo {
		graph = append(graph, fmt.Sprintf("[1:v:0]scale=%d:-2[video]", s.VideoWidth))
	}
	return strings.Join(graph, ";")
}

// Args returns the complete ffmpeg argument list.
func (j MixJob) Args() []string {
	s := j.settings
	args := []string{"-y", "-v", "error"}
	if s.TrimSeconds > 0 {
		args = append(args, "-ss", num(s.TrimSeconds))
	}
	args = append(args,
		"-i", j.voicePath,
		"-i", j.trackPath,
		"-filter_complex", j.FilterGraph(),
	)

	switch {
	case !j.includeVideo:
		args = append(args, "-map", "[mix]", "-vn")
	case s.ScaleVideo:
		args = append(args,
			"-map", "[video]", "-map", "[mix]",
			"-c:v", "libx264", "-preset", "veryfast", "-b:v", nonEmpty(s.VideoBitrate, "1200k"),
		)
	default:
		args = append(args, "-map", "1:v:0", "-map", "[mix]", "-c:v", "copy")
	}

	return append(args,
		"-c:a", "aac", "-b:a", nonEmpty(s.AudioBitrate, "192k"),
		"-shortest",
		"-movflags", "+faststart",
		j.outputPath,
	)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func nonEmpty(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}
