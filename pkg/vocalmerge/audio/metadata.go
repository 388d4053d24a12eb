package audio

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/process"
)

// StreamInventory summarizes what ffprobe found in a media file.
type StreamInventory struct {
	HasAudio        bool
	HasVideo        bool
	AudioStreams    int
	VideoStreams    int
	DurationSeconds float64
	FormatName      string
	SampleRate      int
	Channels        int
	Width           int
	Height          int
}

func (inv StreamInventory) String() string {
	return fmt.Sprintf("format=%s audio=%d video=%d duration=%.2fs",
		inv.FormatName, inv.AudioStreams, inv.VideoStreams, inv.DurationSeconds)
}

type ffprobeOutput struct {
	Format struct {
		Filename string `json:"filename"`
		Duration string `json:"duration"`
		Format   string `json:"format_name"`
	} `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeStream struct {
	CodecType  string `json:"codec_type"`
	CodecName  string `json:"codec_name"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Duration   string `json:"duration"`
}

// ProbeError is returned when ffprobe rejects the file outright.
type ProbeError struct {
	Path     string
	ExitCode int
	Detail   string
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("ffprobe exited %d for %s: %s", e.ExitCode, e.Path, e.Detail)
}

// Prober inspects media files with ffprobe.
type Prober struct {
	Binary  string
	Runner  process.Runner
	Timeout time.Duration
}

func NewProber(binary string, runner process.Runner) *Prober {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	return &Prober{Binary: binary, Runner: runner, Timeout: 30 * time.Second}
}

func (p *Prober) Probe(ctx context.Context, path string) (StreamInventory, error) {
	res, err := p.Runner.Run(ctx, process.Spec{
		Name:   "probe",
		Binary: p.Binary,
		Args: []string{
			"-v", "error",
			"-print_format", "json",
			"-show_format",
			"-show_streams",
			"--", path,
		},
		Timeout: p.Timeout,
	})
	if err != nil {
		return StreamInventory{}, err
	}
	if !res.Success() {
		return StreamInventory{}, &ProbeError{Path: path, ExitCode: res.ExitCode, Detail: res.Diagnostics(2000)}
	}
	return ParseProbeOutput(res.Stdout)
}

// ParseProbeOutput decodes ffprobe's JSON report into a StreamInventory.
func ParseProbeOutput(data []byte) (StreamInventory, error) {
	var probe ffprobeOutput
	if err := json.Unmarshal(data, &probe); err != nil {
		return StreamInventory{}, fmt.Errorf("ffprobe parse: %w", err)
	}

	inv := StreamInventory{FormatName: probe.Format.Format}
	inv.DurationSeconds, _ = strconv.ParseFloat(strings.TrimSpace(probe.Format.Duration), 64)

	for _, s := range probe.Streams {
		switch strings.ToLower(s.CodecType) {
		case "audio":
			inv.AudioStreams++
			if inv.AudioStreams == 1 {
				inv.SampleRate, _ = strconv.Atoi(s.SampleRate)
				inv.Channels = s.Channels
			}
		case "video":
			// cover art shows up as a single-frame mjpeg/png video stream
			if s.CodecName == "mjpeg" || s.CodecName == "png" {
				continue
			}
			inv.VideoStreams++
			if inv.VideoStreams == 1 {
				inv.Width, inv.Height = s.Width, s.Height
			}
		}
	}
	inv.HasAudio = inv.AudioStreams > 0
	inv.HasVideo = inv.VideoStreams > 0
	return inv, nil
}
