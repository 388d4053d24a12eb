package vocalmerge

import (
	"fmt"
	"strings"
	"time"

	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/audio"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/ingest"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/outputs"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/scoring"
)

// Form field names accepted by POST /merge.
const (
	FieldRecording = ingest.RecordingField
	FieldVideoURL  = "videoUrl"
	FieldVoiceGain = "voiceGain"
	FieldTrackGain = "trackGain"
	FieldTokenID   = "tokenId"
)

// DeliveryMode decides how a finished mix reaches the client. It is fixed
// per deployment.
type DeliveryMode string

const (
	// DeliveryInline streams the media as the response body.
	DeliveryInline DeliveryMode = "inline"
	// DeliveryReferenced stores the media and answers with a retrieval URL.
	DeliveryReferenced DeliveryMode = "referenced"
)

func ParseDeliveryMode(s string) (DeliveryMode, error) {
	switch DeliveryMode(strings.ToLower(strings.TrimSpace(s))) {
	case DeliveryInline:
		return DeliveryInline, nil
	case DeliveryReferenced, "":
		return DeliveryReferenced, nil
	default:
		return "", fmt.Errorf("unknown delivery mode %q (want inline or referenced)", s)
	}
}

// MergeRequest is a validated POST /merge.
type MergeRequest struct {
	Recording ingest.Recording
	VideoURL  string
	VoiceGain float64
	TrackGain float64
	TokenID   string
}

// BackingTrack is the downloaded and probed track.
type BackingTrack struct {
	SourceURL string
	Path      string
	SizeBytes int64
	Inventory audio.StreamInventory
}

// MergeResult is what a successful merge produced. In inline mode
// OutputPath points into the request arena and is only valid until the
// arena is cleaned; in referenced mode Artifact and VideoURL are set.
type MergeResult struct {
	Mode       DeliveryMode
	OutputPath string
	SizeBytes  int64
	Artifact   *outputs.Artifact
	VideoURL   string
	Score      scoring.ScoreResult
	TokenID    string
	Recording  audio.StreamInventory
	Track      BackingTrack
	Elapsed    time.Duration
}
