package audio

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/himanishpuri/VocalMerge/pkg/utils"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/process"
)

// AnalysisSampleRate is the rate recordings are resampled to before scoring.
const AnalysisSampleRate = 44100

type Converter struct {
	Binary     string
	Runner     process.Runner
	SampleRate int
	Timeout    time.Duration
}

func NewConverter(binary string, runner process.Runner) *Converter {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &Converter{
		Binary:     binary,
		Runner:     runner,
		SampleRate: AnalysisSampleRate,
		Timeout:    2 * time.Minute,
	}
}

// ConvertToMonoWAV transcodes inputPath into a mono 16-bit PCM WAV at
// outputPath. The file is written under a temporary name and moved into
// place only when ffmpeg succeeds.
func (c *Converter) ConvertToMonoWAV(ctx context.Context, inputPath, outputPath string) error {
	rate := c.SampleRate
	if rate <= 0 {
		rate = AnalysisSampleRate
	}

	tmpPath := outputPath + ".tmp.wav"
	defer utils.RemoveIfExists(tmpPath)

	res, err := c.Runner.Run(ctx, process.Spec{
		Name:   "convert",
		Binary: c.Binary,
		Args: []string{
			"-y",
			"-v", "error",
			"-i", inputPath,
			"-vn",
			"-ac", "1",
			"-ar", strconv.Itoa(rate),
			"-c:a", "pcm_s16le",
			tmpPath,
		},
		Timeout: c.Timeout,
	})
	if err != nil {
		return err
	}
	if !res.Success() {
		return fmt.Errorf("ffmpeg failed (exit %d): %s", res.ExitCode, res.Diagnostics(1000))
	}

	return utils.MoveFile(tmpPath, outputPath)
}
