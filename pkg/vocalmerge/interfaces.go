package vocalmerge

import (
	"context"
	"os"

	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/audio"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/fetch"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/mixer"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/outputs"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/scoring"
)

type Service interface {
	Merge(ctx context.Context, arena Arena, req MergeRequest) (*MergeResult, error)
	Score(ctx context.Context, path string) scoring.ScoreResult
	OpenArtifact(id string) (*os.File, *outputs.Artifact, error)
	ScheduleArtifactCleanup(id string) error
	Sweep() (int, error)
	Mode() DeliveryMode
	Close() error
}

// Arena allocates per-request scratch paths; *workspace.Arena implements it.
type Arena interface {
	ID() string
	Path(name, ext string) string
}

type Fetcher interface {
	Fetch(ctx context.Context, url, dest string) (*fetch.Download, error)
}

type Prober interface {
	Probe(ctx context.Context, path string) (audio.StreamInventory, error)
}

// Scorer returns a usable result even when err is non-nil.
type Scorer interface {
	Evaluate(ctx context.Context, path string) (scoring.ScoreResult, error)
}

type Mixer interface {
	Run(ctx context.Context, job mixer.MixJob) (mixer.Result, error)
}

type ArtifactStore interface {
	Put(src string, meta outputs.Meta) (*outputs.Artifact, error)
	Open(id string) (*os.File, *outputs.Artifact, error)
	ScheduleDeletion(id string) error
	Delete(id string) error
	Sweep() (int, error)
	Close()
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Debugf(format string, args ...any)
}
