package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/joho/godotenv"

	"github.com/himanishpuri/VocalMerge/pkg/logger"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/audio"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/mixer"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/process"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/scoring"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/storage"
)

// Settings shared by every command, read from the environment.
var (
	dbPath      string
	tempDir     string
	outputDir   string
	ffmpegPath  string
	ffprobePath string
	tuningFile  string
)

func init() {
	_ = godotenv.Load()

	dbPath = getEnvOrDefault("VOCALMERGE_DB_PATH", storage.DefaultDBFile)
	tempDir = getEnvOrDefault("VOCALMERGE_TEMP_DIR", os.TempDir())
	outputDir = getEnvOrDefault("VOCALMERGE_OUTPUT_DIR", "outputs")
	ffmpegPath = getEnvOrDefault("FFMPEG_PATH", "ffmpeg")
	ffprobePath = getEnvOrDefault("FFPROBE_PATH", "ffprobe")
	tuningFile = os.Getenv("TUNING_FILE")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func loadTuning() *vocalmerge.Tuning {
	if tuningFile == "" {
		return vocalmerge.DefaultTuning()
	}
	t, err := vocalmerge.LoadTuning(tuningFile)
	if err != nil {
		fail("Failed to load tuning file", err)
	}
	return t
}

// createService creates a VocalMerge service for the given delivery mode.
// Inline mode never opens the artifact registry.
func createService(mode vocalmerge.DeliveryMode) (vocalmerge.Service, error) {
	return vocalmerge.NewService(
		vocalmerge.WithDBPath(dbPath),
		vocalmerge.WithTempDir(tempDir),
		vocalmerge.WithOutputDir(outputDir),
		vocalmerge.WithFFmpeg(ffmpegPath, ffprobePath),
		vocalmerge.WithDeliveryMode(mode),
		vocalmerge.WithTuning(loadTuning()),
	)
}

func main() {
	log := logger.GetLogger()

	printBanner()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	log.Debugf("Executing command: %s", command)

	switch command {
	case "score":
		handleScore(os.Args[2:])
	case "probe":
		handleProbe(os.Args[2:])
	case "mix":
		handleMix(os.Args[2:])
	case "artifacts":
		handleArtifacts(os.Args[2:])
	case "sweep":
		handleSweep()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printBanner() {
	banner := `
 __     __              _ __  __
 \ \   / /__   ___ __ _| |  \/  | ___ _ __ __ _  ___
  \ \ / / _ \ / __/ _' | | |\/| |/ _ \ '__/ _' |/ _ \
   \ V / (_) | (_| (_| | | |  | |  __/ | | (_| |  __/
    \_/ \___/ \___\__,_|_|_|  |_|\___|_|  \__, |\___|
                                          |___/
          Karaoke Mixing & Scoring CLI
`
	fmt.Println(banner)
}

func printUsage() {
	fmt.Println(`Usage: vocalmerge <command> [arguments]

Commands:
  score <recording> [--json]                 Score a vocal recording
  probe <file>                               Show the streams ffprobe finds
  mix <voice> <track> [flags]                Mix a recording over a backing track
      --out <file>          Output file (default merged.mp4)
      --voice-gain <g>      Voice volume (default 0.6)
      --track-gain <g>      Backing track volume (default 1.7)
      --audio-only          Drop the backing video
  artifacts [--limit N]                      List stored merged videos
  sweep                                      Delete expired merged videos

Environment:
  VOCALMERGE_DB_PATH, VOCALMERGE_TEMP_DIR, VOCALMERGE_OUTPUT_DIR,
  FFMPEG_PATH, FFPROBE_PATH, TUNING_FILE, LOG_LEVEL`)
}

func fail(msg string, err error) {
	fmt.Printf("❌ %s: %v\n", msg, err)
	logger.GetLogger().Errorf("%s: %v", msg, err)
	os.Exit(1)
}

// splitArgs separates leading positional arguments from flags.
func splitArgs(args []string) (positional, flags []string) {
	for i, arg := range args {
		if strings.HasPrefix(arg, "-") {
			return positional, args[i:]
		}
		positional = append(positional, arg)
	}
	return positional, nil
}

func handleScore(args []string) {
	positional, flagArgs := splitArgs(args)
	scoreCmd := flag.NewFlagSet("score", flag.ExitOnError)
	asJSON := scoreCmd.Bool("json", false, "Print the result as JSON")
	scoreCmd.Parse(flagArgs)

	if len(positional) != 1 {
		fmt.Println("Usage: vocalmerge score <recording> [--json]")
		os.Exit(1)
	}

	svc, err := createService(vocalmerge.DeliveryInline)
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	fmt.Println("🎵 Analysing recording...")
	start := time.Now()
	res := svc.Score(ctx, positional[0])

	if *asJSON {
		out, _ := json.MarshalIndent(res, "", "  ")
		fmt.Println(string(out))
		return
	}
	printScore(res, time.Since(start))
}

func printScore(res scoring.ScoreResult, elapsed time.Duration) {
	fmt.Printf("\n%s  %.1f / 100\n\n", res.Verdict, res.FinalScore)
	rows := []field{
		{"Pitch score", fmt.Sprintf("%.1f", res.PitchScore)},
		{"Rhythm score", fmt.Sprintf("%.1f", res.RhythmScore)},
		{"Pitch accuracy", fmt.Sprintf("%.3f", res.PitchAccuracy)},
		{"Pitch diversity", fmt.Sprintf("%.3f", res.PitchDiversity)},
		{"Activity", fmt.Sprintf("%.3f", res.ActivityRatio)},
		{"Clarity", fmt.Sprintf("%d%%", res.Clarity)},
		{"Range", fmt.Sprintf("%d%%", res.MidiRange)},
		{"Duration", fmt.Sprintf("%.1fs", res.DurationSeconds)},
		{"Short-take penalty", strconv.FormatBool(res.DurationPenaltyApplied)},
	}
	fmt.Println(renderTable(rows, fieldColumns("Metric", text.AlignRight)))
	fmt.Printf("\nAnalysed in %s\n", elapsed.Round(time.Millisecond))
}

func handleProbe(args []string) {
	if len(args) != 1 {
		fmt.Println("Usage: vocalmerge probe <file>")
		os.Exit(1)
	}

	prober := audio.NewProber(ffprobePath, process.NewExecRunner(0))
	inv, err := prober.Probe(context.Background(), args[0])
	if err != nil {
		fail("Probe failed", err)
	}

	rows := []field{
		{"Format", inv.FormatName},
		{"Duration", fmt.Sprintf("%.2fs", inv.DurationSeconds)},
		{"Audio streams", strconv.Itoa(inv.AudioStreams)},
		{"Video streams", strconv.Itoa(inv.VideoStreams)},
	}
	if inv.HasAudio {
		rows = append(rows, field{"Audio", fmt.Sprintf("%d Hz, %d ch", inv.SampleRate, inv.Channels)})
	}
	if inv.HasVideo {
		rows = append(rows, field{"Video", fmt.Sprintf("%dx%d", inv.Width, inv.Height)})
	}
	fmt.Println(renderTable(rows, fieldColumns("Property", text.AlignLeft)))
}

func handleMix(args []string) {
	positional, flagArgs := splitArgs(args)
	mixCmd := flag.NewFlagSet("mix", flag.ExitOnError)
	out := mixCmd.String("out", "merged.mp4", "Output file")
	voiceGain := mixCmd.Float64("voice-gain", mixer.DefaultVoiceGain, "Voice volume")
	trackGain := mixCmd.Float64("track-gain", mixer.DefaultTrackGain, "Backing track volume")
	audioOnly := mixCmd.Bool("audio-only", false, "Drop the backing video")
	mixCmd.Parse(flagArgs)

	if len(positional) != 2 {
		fmt.Println("Usage: vocalmerge mix <voice> <track> [--out file] [--voice-gain g] [--track-gain g] [--audio-only]")
		os.Exit(1)
	}
	voice, track := positional[0], positional[1]
	tuning := loadTuning()

	runner := process.NewExecRunner(0)
	includeVideo := false
	if !*audioOnly {
		inv, err := audio.NewProber(ffprobePath, runner).Probe(context.Background(), track)
		if err != nil {
			fail("Backing track is not readable", err)
		}
		includeVideo = inv.HasVideo
	}

	job, err := mixer.NewJob(voice, track, *out, *voiceGain, *trackGain, includeVideo, tuning.Mix)
	if err != nil {
		fail("Invalid mix parameters", err)
	}

	engine := mixer.NewEngine(ffmpegPath, runner, 1)
	engine.Logger = logger.GetLogger()
	if tuning.MixTimeout > 0 {
		engine.Timeout = tuning.MixTimeout
	}

	fmt.Println("🎚️  Mixing...")
	res, err := engine.Run(context.Background(), job)
	if err != nil {
		fail("Mix failed", err)
	}
	fmt.Printf("✅ Wrote %s (%d bytes) in %s\n", res.OutputPath, res.SizeBytes, res.Elapsed.Round(time.Millisecond))
}

func handleArtifacts(args []string) {
	listCmd := flag.NewFlagSet("artifacts", flag.ExitOnError)
	limit := listCmd.Int("limit", 50, "Maximum number of rows")
	listCmd.Parse(args)

	db, err := storage.NewDBClientWithPath(dbPath)
	if err != nil {
		fail("Failed to open registry", err)
	}
	defer db.Close()

	artifacts, err := db.ListArtifacts(*limit)
	if err != nil {
		fail("Failed to list videos", err)
	}
	if len(artifacts) == 0 {
		fmt.Println("📭 No stored videos")
		return
	}
	total, err := db.CountArtifacts()
	if err != nil {
		total = int64(len(artifacts))
	}

	fmt.Println(renderTable(artifacts, artifactColumns, fmt.Sprintf("%d of %d", len(artifacts), total)))
}

func handleSweep() {
	svc, err := createService(vocalmerge.DeliveryReferenced)
	if err != nil {
		fail("Failed to create service", err)
	}
	defer svc.Close()

	n, err := svc.Sweep()
	if err != nil {
		fail("Sweep failed", err)
	}
	fmt.Printf("🧹 Removed %d expired video(s)\n", n)
}
