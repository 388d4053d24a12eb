package audiotest

import (
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

// Tools holds the resolved ffmpeg and ffprobe binaries.
type Tools struct {
	FFmpeg  string
	FFprobe string
}

// RequireFFmpeg skips the test unless both ffmpeg and ffprobe are on PATH.
func RequireFFmpeg(t *testing.T) Tools {
	t.Helper()
	ffmpeg, err := exec.LookPath("ffmpeg")
	if err != nil {
		t.Skip("ffmpeg not installed")
	}
	ffprobe, err := exec.LookPath("ffprobe")
	if err != nil {
		t.Skip("ffprobe not installed")
	}
	return Tools{FFmpeg: ffmpeg, FFprobe: ffprobe}
}

// RequireEncoder skips the test when the ffmpeg build lacks the encoder.
func (tl Tools) RequireEncoder(t *testing.T, name string) {
	t.Helper()
	out, err := exec.Command(tl.FFmpeg, "-hide_banner", "-encoders").Output()
	if err != nil {
		t.Skipf("listing ffmpeg encoders: %v", err)
	}
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) >= 2 && fields[1] == name {
			return
		}
	}
	t.Skipf("ffmpeg has no %s encoder", name)
}

// BackingTrack renders an mp4 with a 320x240 test pattern and a 440 Hz tone
// lasting seconds, and returns its path.
func (tl Tools) BackingTrack(t *testing.T, seconds float64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "backing.mp4")
	dur := fmt.Sprintf("%g", seconds)
	cmd := exec.Command(tl.FFmpeg, "-y", "-v", "error",
		"-f", "lavfi", "-i", "testsrc=size=320x240:rate=25:duration="+dur,
		"-f", "lavfi", "-i", "sine=frequency=440:sample_rate=44100:duration="+dur,
		"-c:v", "mpeg4", "-c:a", "aac", "-shortest", path)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("rendering backing track: %v\n%s", err, out)
	}
	return path
}
