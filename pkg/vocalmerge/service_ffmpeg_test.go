package vocalmerge

import (
	"context"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/himanishpuri/VocalMerge/internal/audiotest"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/audio"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/ingest"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/mixer"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/process"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/workspace"
)

func TestMergeEndToEndWithFFmpeg(t *testing.T) {
	tools := audiotest.RequireFFmpeg(t)
	tools.RequireEncoder(t, "libx264")

	track := tools.BackingTrack(t, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, track)
	}))
	defer srv.Close()

	svc, err := NewService(
		WithLogger(quietLogger()),
		WithDeliveryMode(DeliveryInline),
		WithFFmpeg(tools.FFmpeg, tools.FFprobe),
		WithTempDir(t.TempDir()),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	defer svc.Close()

	arena, err := workspace.New(t.TempDir())
	if err != nil {
		t.Fatalf("workspace.New: %v", err)
	}
	defer arena.Cleanup()

	const takeSeconds = 12.0
	take := audiotest.WriteWAV(t, "take.wav", audiotest.Glide(196, 392, takeSeconds, 44100, 0.5), 44100)
	data, err := os.ReadFile(take)
	if err != nil {
		t.Fatal(err)
	}
	recPath := arena.Path("recording", ".wav")
	if err := os.WriteFile(recPath, data, 0o644); err != nil {
		t.Fatal(err)
	}

	res, err := svc.Merge(context.Background(), arena, MergeRequest{
		Recording: ingest.Recording{FieldName: FieldRecording, Filename: "take.wav", Path: recPath, Size: int64(len(data))},
		VideoURL:  srv.URL + "/track.mp4",
		VoiceGain: mixer.DefaultVoiceGain,
		TrackGain: mixer.DefaultTrackGain,
	})
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}

	inv, err := audio.NewProber(tools.FFprobe, process.NewExecRunner(0)).Probe(context.Background(), res.OutputPath)
	if err != nil {
		t.Fatalf("ffprobe output: %v", err)
	}
	if !inv.HasVideo || !inv.HasAudio {
		t.Fatalf("output streams: %s", inv)
	}
	if inv.DurationSeconds > res.Track.Inventory.DurationSeconds+0.1 {
		t.Errorf("output %.2fs longer than backing track %.2fs", inv.DurationSeconds, res.Track.Inventory.DurationSeconds)
	}

	if !res.Score.DurationPenaltyApplied {
		t.Errorf("a %.0fs take should carry the short-take penalty: %+v", takeSeconds, res.Score)
	}
	if math.Abs(res.Score.DurationSeconds-takeSeconds) > 0.5 {
		t.Errorf("scored duration = %.2fs, want about %.0fs", res.Score.DurationSeconds, takeSeconds)
	}
	if res.Score.Verdict == "" || res.Score.ActivityRatio < 0.9 {
		t.Errorf("unexpected score %+v", res.Score)
	}
}
