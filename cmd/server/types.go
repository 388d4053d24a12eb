package main

import (
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/scoring"
)

// scoreHeader carries the JSON score alongside an inline video body.
const scoreHeader = "X-Performance-Score"

// ServerConfig holds server configuration
type ServerConfig struct {
	Port           int
	BaseURL        string
	TempDir        string
	OutputDir      string
	DBPath         string
	Mode           vocalmerge.DeliveryMode
	AllowedOrigins []string
	LogRequests    bool
}

// MergeResponse is the referenced-mode response for POST /merge
type MergeResponse struct {
	Success     bool                `json:"success"`
	VideoUID    string              `json:"videoUid"`
	VideoURL    string              `json:"videoUrl"`
	ScoreResult scoring.ScoreResult `json:"scoreResult"`
	TokenID     string              `json:"tokenId"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

type IndexResponse struct {
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Mode      string            `json:"mode"`
	Endpoints map[string]string `json:"endpoints"`
}
