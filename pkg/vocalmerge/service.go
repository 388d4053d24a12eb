package vocalmerge

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/himanishpuri/VocalMerge/pkg/logger"
	"github.com/himanishpuri/VocalMerge/pkg/utils"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/audio"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/fetch"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/ingest"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/mixer"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/outputs"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/process"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/scoring"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/storage"
)

// mergeService is the default implementation of the Service interface.
type mergeService struct {
	config  *Config
	log     Logger
	fetcher Fetcher
	prober  Prober
	scorer  Scorer
	mixer   Mixer
	store   ArtifactStore
	db      *storage.DBClient
}

func NewService(opts ...Option) (Service, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.GetLogger()
	}
	if cfg.Mode == "" {
		cfg.Mode = DeliveryReferenced
	}
	if err := cfg.Scoring.Validate(); err != nil {
		return nil, err
	}
	if err := utils.MakeDir(cfg.TempDir); err != nil {
		return nil, fmt.Errorf("preparing temp dir: %w", err)
	}

	runner := cfg.Runner
	if runner == nil {
		runner = process.NewExecRunner(cfg.MixTimeout)
	}

	s := &mergeService{config: cfg, log: cfg.Logger}

	s.prober = cfg.Prober
	if s.prober == nil {
		p := audio.NewProber(cfg.FFprobePath, runner)
		if cfg.ProbeTimeout > 0 {
			p.Timeout = cfg.ProbeTimeout
		}
		s.prober = p
	}

	s.scorer = cfg.Scorer
	if s.scorer == nil {
		dec := audio.NewWAVDecoder(audio.NewConverter(cfg.FFmpegPath, runner))
		s.scorer = scoring.NewEngine(cfg.Scoring, dec, cfg.Logger)
	}

	s.mixer = cfg.Mixer
	if s.mixer == nil {
		m := mixer.NewEngine(cfg.FFmpegPath, runner, cfg.MaxConcurrentMixes)
		if cfg.MixTimeout > 0 {
			m.Timeout = cfg.MixTimeout
		}
		m.Logger = cfg.Logger
		s.mixer = m
	}

	s.fetcher = cfg.Fetcher
	if s.fetcher == nil {
		r := fetch.NewRetriever()
		r.Logger = cfg.Logger
		s.fetcher = r
	}

	s.store = cfg.Store
	if s.store == nil && cfg.Mode == DeliveryReferenced {
		db, err := storage.NewDBClientWithPath(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open artifact registry: %w", err)
		}
		st, err := outputs.NewStore(cfg.OutputDir, db, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		if cfg.ArtifactGrace > 0 {
			st.Grace = cfg.ArtifactGrace
		}
		s.db = db
		s.store = st
	}

	return s, nil
}

// ParseMergeRequest validates the fields of an ingested upload. Nothing is
// fetched or transcoded here, so a rejected request costs no external work.
func ParseMergeRequest(up *ingest.Upload) (MergeRequest, error) {
	if up == nil || up.Recording == nil {
		return MergeRequest{}, newError(ErrMissingInput, "recordedAudio file is required", "", nil)
	}
	videoURL := strings.TrimSpace(up.Field(FieldVideoURL))
	if videoURL == "" {
		return MergeRequest{}, newError(ErrMissingInput, "videoUrl is required", "", nil)
	}

	voiceGain, err := parseGain(up.Field(FieldVoiceGain), FieldVoiceGain, mixer.DefaultVoiceGain)
	if err != nil {
		return MergeRequest{}, err
	}
	trackGain, err := parseGain(up.Field(FieldTrackGain), FieldTrackGain, mixer.DefaultTrackGain)
	if err != nil {
		return MergeRequest{}, err
	}

	return MergeRequest{
		Recording: *up.Recording,
		VideoURL:  videoURL,
		VoiceGain: voiceGain,
		TrackGain: trackGain,
		TokenID:   strings.TrimSpace(up.Field(FieldTokenID)),
	}, nil
}

func parseGain(raw, name string, fallback float64) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, newError(ErrInvalidFormat, name+" must be a number", raw, err)
	}
	if err := mixer.ValidateGain(name, v); err != nil {
		return 0, newError(ErrInvalidFormat, fmt.Sprintf("%s must be between 0 and %g", name, mixer.MaxGain), raw, err)
	}
	return v, nil
}

// Merge runs the pipeline for one request: probe the recording, then fetch
// and probe the backing track while the recording is scored, then mix and
// deliver. The mix is not cancelled when ctx is.
func (s *mergeService) Merge(ctx context.Context, arena Arena, req MergeRequest) (*MergeResult, error) {
	log := LoggerFrom(ctx, s.log)
	start := time.Now()

	if strings.TrimSpace(req.Recording.Path) == "" {
		return nil, newError(ErrMissingInput, "recordedAudio file is required", "", nil)
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		return nil, newError(ErrMissingInput, "videoUrl is required", "", nil)
	}

	recInv, err := s.prober.Probe(ctx, req.Recording.Path)
	if err != nil {
		return nil, newError(ErrInvalidFormat, "could not read recorded audio", probeDetail(err), err)
	}
	if !recInv.HasAudio {
		return nil, newError(ErrInvalidFormat, "recorded file has no audio stream", recInv.String(), nil)
	}
	log.Infof("recording %q: %s, %d bytes", req.Recording.Filename, recInv, req.Recording.Size)

	var (
		track BackingTrack
		score scoring.ScoreResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		track, err = s.retrieveTrack(gctx, log, arena, req.VideoURL)
		return err
	})
	g.Go(func() error {
		res, err := s.scorer.Evaluate(gctx, req.Recording.Path)
		if err != nil {
			log.Warnf("%v: %v", ErrScoringFailed, err)
		}
		score = res
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	job, err := mixer.NewJob(req.Recording.Path, track.Path, arena.Path("output", ".mp4"),
		req.VoiceGain, req.TrackGain, track.Inventory.HasVideo, s.config.Mix)
	if err != nil {
		return nil, newError(ErrInvalidFormat, "invalid mix parameters", "", err)
	}

	mixed, err := s.mixer.Run(context.WithoutCancel(ctx), job)
	if err != nil {
		return nil, classifyMixError(err)
	}
	log.Infof("mixed output ready: %d bytes in %s", mixed.SizeBytes, mixed.Elapsed.Round(time.Millisecond))

	result := &MergeResult{
		Mode:       s.config.Mode,
		OutputPath: mixed.OutputPath,
		SizeBytes:  mixed.SizeBytes,
		Score:      score,
		TokenID:    req.TokenID,
		Recording:  recInv,
		Track:      track,
	}

	if s.config.Mode == DeliveryReferenced {
		if s.store == nil {
			return nil, newError(ErrOutputMissing, "artifact store unavailable", "", nil)
		}
		a, err := s.store.Put(mixed.OutputPath, outputs.Meta{
			ContentType: outputs.ContentTypeMP4,
			FinalScore:  score.FinalScore,
			Verdict:     score.Verdict,
			TokenID:     req.TokenID,
		})
		if err != nil {
			return nil, newError(ErrOutputMissing, "failed to store merged video", "", err)
		}
		result.Artifact = a
		result.OutputPath = a.Path
		result.VideoURL = outputs.URLFor(s.config.BaseURL, a.ID)
	}

	result.Elapsed = time.Since(start)
	log.Infof("merge complete in %s: score %.1f (%s)", result.Elapsed.Round(time.Millisecond), score.FinalScore, score.Verdict)
	return result, nil
}

func (s *mergeService) retrieveTrack(ctx context.Context, log Logger, arena Arena, url string) (BackingTrack, error) {
	dest := arena.Path("backing", ".mp4")
	dl, err := s.fetcher.Fetch(ctx, url, dest)
	if err != nil {
		var statusErr *fetch.StatusError
		details := ""
		if errors.As(err, &statusErr) {
			details = statusErr.Status
		}
		if errors.Is(err, fetch.ErrUnsupportedURL) {
			return BackingTrack{}, newError(ErrInvalidFormat, "videoUrl is not a supported http(s) URL", "", err)
		}
		return BackingTrack{}, newError(ErrDownloadFailed, "failed to download backing track", details, err)
	}

	inv, err := s.prober.Probe(ctx, dl.Path)
	if err != nil {
		return BackingTrack{}, newError(ErrInvalidFormat, "backing track is not readable media", probeDetail(err), err)
	}
	if !inv.HasVideo {
		log.Warnf("backing track has no video stream, producing audio-only output")
	}
	if !inv.HasAudio {
		log.Warnf("backing track has no audio stream, the mix may fail")
	}
	log.Infof("backing track: %s, %d bytes", inv, dl.SizeBytes)

	return BackingTrack{SourceURL: url, Path: dl.Path, SizeBytes: dl.SizeBytes, Inventory: inv}, nil
}

func classifyMixError(err error) error {
	var exitErr *mixer.ExitError
	switch {
	case errors.As(err, &exitErr):
		return newError(ErrTranscodeFailed, "failed to merge audio and video", exitErr.Stderr, err)
	case errors.Is(err, mixer.ErrOutputMissing):
		return newError(ErrOutputMissing, "merged video was not produced", "", err)
	case errors.Is(err, process.ErrTimeout):
		return newError(ErrTranscodeFailed, "merging timed out", "", err)
	default:
		return newError(ErrTranscodeFailed, "failed to merge audio and video", "", err)
	}
}

func probeDetail(err error) string {
	var pe *audio.ProbeError
	if errors.As(err, &pe) {
		return pe.Detail
	}
	return err.Error()
}

func (s *mergeService) Score(ctx context.Context, path string) scoring.ScoreResult {
	res, err := s.scorer.Evaluate(ctx, path)
	if err != nil {
		s.log.Warnf("%v: %v", ErrScoringFailed, err)
	}
	return res
}

func (s *mergeService) OpenArtifact(id string) (*os.File, *outputs.Artifact, error) {
	if s.store == nil {
		return nil, nil, newError(ErrNotFound, "video not found", "", nil)
	}
	f, a, err := s.store.Open(id)
	if errors.Is(err, outputs.ErrNotFound) || errors.Is(err, outputs.ErrInvalidID) {
		return nil, nil, newError(ErrNotFound, "video not found", "", err)
	}
	if err != nil {
		return nil, nil, err
	}
	return f, a, nil
}

func (s *mergeService) ScheduleArtifactCleanup(id string) error {
	if s.store == nil {
		return nil
	}
	return s.store.ScheduleDeletion(id)
}

func (s *mergeService) Sweep() (int, error) {
	if s.store == nil {
		return 0, nil
	}
	return s.store.Sweep()
}

func (s *mergeService) Mode() DeliveryMode {
	return s.config.Mode
}

// Close stops pending deletion timers and closes the registry. Expiry times
// are persisted, so the next Sweep removes what the timers would have.
func (s *mergeService) Close() error {
	if s.store != nil {
		s.store.Close()
	}
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
