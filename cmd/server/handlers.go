package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf16"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/himanishpuri/VocalMerge/pkg/logger"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/ingest"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/workspace"
)

// Server encapsulates the HTTP server and its dependencies
type Server struct {
	service  vocalmerge.Service
	config   *ServerConfig
	log      *logger.Logger
	ingestor ingest.Ingestor
	http     *http.Server
}

// NewServer creates a new server instance
func NewServer(service vocalmerge.Service, config *ServerConfig) *Server {
	log := logger.GetLogger()
	s := &Server{
		service:  service,
		config:   config,
		log:      log,
		ingestor: ingest.NewMultipartIngestor(log),
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", config.Port),
		Handler:           s.setupRoutes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// responder guarantees a single response per request. Later attempts are
// logged and dropped.
type responder struct {
	w    http.ResponseWriter
	log  *logger.Logger
	sent atomic.Bool
}

func newResponder(w http.ResponseWriter, log *logger.Logger) *responder {
	return &responder{w: w, log: log}
}

func (r *responder) claim() bool {
	if !r.sent.CompareAndSwap(false, true) {
		r.log.Warnf("response already sent, dropping")
		return false
	}
	return true
}

func (r *responder) json(statusCode int, data any) {
	if !r.claim() {
		return
	}
	writeJSON(r.w, r.log, statusCode, data)
}

func (r *responder) error(statusCode int, message, details string) {
	r.json(statusCode, ErrorResponse{Error: message, Details: details})
}

// serviceError responds with the status and message derived from err.
func (r *responder) serviceError(err error) {
	status := vocalmerge.HTTPStatus(err)
	message, details := vocalmerge.Describe(err)
	if status >= http.StatusInternalServerError {
		r.log.Errorf("%s: %v", message, err)
	} else {
		r.log.Warnf("%s: %v", message, err)
	}
	r.error(status, message, details)
}

func writeJSON(w http.ResponseWriter, log *logger.Logger, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// handleRoot handles GET /
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, IndexResponse{
		Service: "VocalMerge API",
		Version: "1.0.0",
		Mode:    string(s.config.Mode),
		Endpoints: map[string]string{
			"merge":  "POST /merge",
			"video":  "GET /video/{id}",
			"health": "GET /health",
		},
	})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.log, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// handleMerge handles POST /merge (multipart upload)
func (s *Server) handleMerge(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()[:8]
	log := s.log.WithPrefix("[req " + reqID + "]")
	resp := newResponder(w, log)
	start := time.Now()

	arena, err := workspace.New(s.config.TempDir)
	if err != nil {
		log.Errorf("Failed to create workspace: %v", err)
		resp.error(http.StatusInternalServerError, "internal error", "")
		return
	}
	defer func() {
		if err := arena.Cleanup(); err != nil {
			log.Warnf("Workspace cleanup failed: %v", err)
		}
	}()

	ctx := vocalmerge.ContextWithLogger(r.Context(), log)

	upload, err := s.ingestor.Ingest(ctx, r, arena)
	if err != nil {
		log.Warnf("Failed to read upload: %v", err)
		message := "Failed to parse form data"
		if errors.Is(err, ingest.ErrTooLarge) {
			message = "Upload too large"
		}
		resp.error(http.StatusBadRequest, message, err.Error())
		return
	}

	req, err := vocalmerge.ParseMergeRequest(upload)
	if err != nil {
		resp.serviceError(err)
		return
	}
	log.Infof("Merge request: recording %q (%d bytes), track %s, gains %.2f/%.2f",
		req.Recording.Filename, req.Recording.Size, req.VideoURL, req.VoiceGain, req.TrackGain)

	result, err := s.service.Merge(ctx, arena, req)
	if err != nil {
		resp.serviceError(err)
		return
	}

	switch result.Mode {
	case vocalmerge.DeliveryInline:
		s.streamInline(resp, result)
	default:
		resp.json(http.StatusOK, MergeResponse{
			Success:     true,
			VideoUID:    result.Artifact.ID,
			VideoURL:    result.VideoURL,
			ScoreResult: result.Score,
			TokenID:     result.TokenID,
		})
	}
	log.Infof("Request finished in %s", time.Since(start).Round(time.Millisecond))
}

// streamInline writes the merged file as the response body. It must run
// before the workspace is cleaned up.
func (s *Server) streamInline(resp *responder, result *vocalmerge.MergeResult) {
	f, err := os.Open(result.OutputPath)
	if err != nil {
		resp.serviceError(fmt.Errorf("opening merged output: %w", err))
		return
	}
	defer f.Close()

	score, err := json.Marshal(result.Score)
	if err != nil {
		resp.serviceError(err)
		return
	}
	if !resp.claim() {
		return
	}

	h := resp.w.Header()
	h.Set("Content-Type", "video/mp4")
	h.Set("Content-Disposition", `inline; filename="merged.mp4"`)
	h.Set(scoreHeader, asciiJSON(score))
	if result.SizeBytes > 0 {
		h.Set("Content-Length", fmt.Sprint(result.SizeBytes))
	}
	resp.w.WriteHeader(http.StatusOK)

	n, err := io.Copy(resp.w, f)
	if err != nil {
		resp.log.Warnf("Streaming stopped after %d bytes: %v", n, err)
		return
	}
	resp.log.Infof("Streamed %d bytes inline", n)
}

// asciiJSON escapes every non-ASCII rune in encoded JSON as \uXXXX (surrogate
// pairs above the BMP). Header values are read as Latin-1 by browsers, so raw
// UTF-8 verdict labels would arrive garbled.
func asciiJSON(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))
	for _, r := range string(data) {
		switch {
		case r < utf8.RuneSelf:
			b.WriteRune(r)
		case r > 0xFFFF:
			hi, lo := utf16.EncodeRune(r)
			fmt.Fprintf(&b, `\u%04x\u%04x`, hi, lo)
		default:
			fmt.Fprintf(&b, `\u%04x`, r)
		}
	}
	return b.String()
}

// handleVideo handles GET /video/{id}
func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	log := s.log.WithPrefix("[video " + id + "]")

	f, artifact, err := s.service.OpenArtifact(id)
	if err != nil {
		newResponder(w, log).serviceError(err)
		return
	}
	defer f.Close()

	modTime := artifact.CreatedAt
	if info, err := f.Stat(); err == nil {
		modTime = info.ModTime()
	}

	if artifact.ContentType != "" {
		w.Header().Set("Content-Type", artifact.ContentType)
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
	http.ServeContent(wrapped, r, artifact.ID+".mp4", modTime, f)

	if r.Method != http.MethodGet || wrapped.statusCode >= http.StatusBadRequest {
		return
	}
	if err := s.service.ScheduleArtifactCleanup(artifact.ID); err != nil {
		log.Warnf("Failed to schedule deletion: %v", err)
		return
	}
	log.Debugf("Served with status %d, deletion scheduled", wrapped.statusCode)
}
