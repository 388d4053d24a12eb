package mixer

import (
	"errors"
	"strings"
	"testing"
)

func newTestJob(t *testing.T, includeVideo bool, s Settings) MixJob {
	t.Helper()
	job, err := NewJob("/arena/voice.webm", "/arena/track.mp4", "/arena/out.mp4",
		DefaultVoiceGain, DefaultTrackGain, includeVideo, s)
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	return job
}

func TestFilterGraphVoiceChainOrder(t *testing.T) {
	graph := newTestJob(t, true, DefaultSettings()).FilterGraph()

	order := []string{
		"[0:a]aresample=async=1:first_pts=0",
		"highpass=f=100",
		"agate=threshold=-35dB:ratio=4:attack=5:release=250",
		"agate=threshold=-45dB:ratio=2:attack=10:release=400",
		"equalizer=f=1800:width_type=h:width=200:g=3",
		"equalizer=f=8000:width_type=h:width=2000:g=-2",
		"volume=0.6[voice]",
		"[1:a]volume=1.7[track]",
		"[track][voice]amix=inputs=2:duration=first:dropout_transition=2[mix]",
		"[1:v:0]scale=854:-2[video]",
	}
	last := -1
	for _, part := range order {
		idx := strings.Index(graph, part)
		if idx < 0 {
			t.Fatalf("graph missing %q:\n%s", part, graph)
		}
		if idx < last {
			t.Fatalf("%q out of order in:\n%s", part, graph)
		}
		last = idx
	}
}

func TestArgsTrimAppliesToVoiceOnly(t *testing.T) {
	args := newTestJob(t, true, DefaultSettings()).Args()
	joined := strings.Join(args, " ")

	if !strings.Contains(joined, "-ss 5.1 -i /arena/voice.webm -i /arena/track.mp4") {
		t.Fatalf("trim must precede only the voice input: %s", joined)
	}
	if args[len(args)-1] != "/arena/out.mp4" {
		t.Errorf("output path should be last: %s", joined)
	}
	for _, want := range []string{"-shortest", "-movflags +faststart", "-c:a aac -b:a 192k", "-c:v libx264", "-b:v 1200k", "-map [video] -map [mix]"} {
		if !strings.Contains(joined, want) {
			t.Errorf("args missing %q: %s", want, joined)
		}
	}
}

func TestArgsStreamCopyWhenScalingDisabled(t *testing.T) {
	s := DefaultSettings()
	s.ScaleVideo = false
	job := newTestJob(t, true, s)

	joined := strings.Join(job.Args(), " ")
	if !strings.Contains(joined, "-map 1:v:0 -map [mix] -c:v copy") {
		t.Fatalf("expected stream copy: %s", joined)
	}
	if strings.Contains(job.FilterGraph(), "scale=") {
		t.Error("graph should not scale when scaling is disabled")
	}
}

func TestArgsAudioOnly(t *testing.T) {
	job := newTestJob(t, false, DefaultSettings())
	joined := strings.Join(job.Args(), " ")
	if strings.Contains(joined, "-c:v") || strings.Contains(joined, "[video]") {
		t.Fatalf("audio-only job references video: %s", joined)
	}
	if !strings.Contains(joined, "-map [mix] -vn") {
		t.Errorf("expected audio-only mapping: %s", joined)
	}
}

func TestCustomGainsReachTheGraph(t *testing.T) {
	job, err := NewJob("v", "t", "o", 1.25, 0.5, true, DefaultSettings())
	if err != nil {
		t.Fatalf("NewJob: %v", err)
	}
	graph := job.FilterGraph()
	if !strings.Contains(graph, "volume=1.25[voice]") || !strings.Contains(graph, "volume=0.5[track]") {
		t.Fatalf("gains not applied: %s", graph)
	}
}

func TestNewJobValidation(t *testing.T) {
	cases := []struct {
		name              string
		voice, track, out string
		voiceGain         float64
		trackGain         float64
	}{
		{"empty voice", "", "t", "o", 1, 1},
		{"empty track", "v", " ", "o", 1, 1},
		{"empty output", "v", "t", "", 1, 1},
		{"negative gain", "v", "t", "o", -0.1, 1},
		{"huge gain", "v", "t", "o", 1, MaxGain + 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewJob(tc.voice, tc.track, tc.out, tc.voiceGain, tc.trackGain, true, DefaultSettings())
			if !errors.Is(err, ErrInvalidJob) {
				t.Fatalf("expected ErrInvalidJob, got %v", err)
			}
		})
	}
}
