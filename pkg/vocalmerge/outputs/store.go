// Package outputs keeps finished mixes on disk for a short serving window.
// Rows in the artifact registry mirror the files so that pending deletions
// survive a restart and are finished by Sweep.
package outputs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/VocalMerge/pkg/utils"
	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/storage"
)

const (
	DefaultGrace          = 10 * time.Minute
	DefaultMaxUnservedAge = time.Hour
	ContentTypeMP4        = "video/mp4"
)

var (
	ErrInvalidID = errors.New("invalid artifact id")
	ErrNotFound  = errors.New("artifact not found")
)

type Artifact = storage.Artifact

// Registry is the persistence the store needs; *storage.DBClient implements it.
type Registry interface {
	RegisterArtifact(a *storage.Artifact) error
	GetArtifact(id string) (*storage.Artifact, error)
	MarkServed(id string, servedAt, expiresAt time.Time) error
	DeleteArtifact(id string) error
	ListExpired(now, unservedBefore time.Time) ([]storage.Artifact, error)
}

type Logger interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Debugf(format string, args ...any)
}

// Meta is stored alongside an artifact.
type Meta struct {
	ContentType string
	FinalScore  float64
	Verdict     string
	TokenID     string
}

type Store struct {
	Dir            string
	Grace          time.Duration
	MaxUnservedAge time.Duration
	Logger         Logger

	registry Registry
	now      func() time.Time

	mu     sync.Mutex
	timers map[string]*pending
}

type pending struct {
	timer *time.Timer
}

func NewStore(dir string, registry Registry, logger Logger) (*Store, error) {
	if registry == nil {
		return nil, errors.New("outputs: registry is nil")
	}
	if err := utils.MakeDir(dir); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	return &Store{
		Dir:            dir,
		Grace:          DefaultGrace,
		MaxUnservedAge: DefaultMaxUnservedAge,
		Logger:         logger,
		registry:       registry,
		now:            time.Now,
		timers:         make(map[string]*pending),
	}, nil
}

// Put moves the file at src into the store under a fresh id.
func (s *Store) Put(src string, meta Meta) (*Artifact, error) {
	if !utils.FileExists(src) {
		return nil, fmt.Errorf("storing artifact: %s: %w", src, os.ErrNotExist)
	}
	id := uuid.NewString()
	ext := filepath.Ext(src)
	if ext == "" {
		ext = ".mp4"
	}
	dst := filepath.Join(s.Dir, id+ext)

	if err := utils.MoveFile(src, dst); err != nil {
		return nil, fmt.Errorf("storing artifact: %w", err)
	}

	contentType := meta.ContentType
	if contentType == "" {
		contentType = ContentTypeMP4
	}
	a := &Artifact{
		ID:          id,
		Path:        dst,
		ContentType: contentType,
		SizeBytes:   utils.FileSize(dst),
		FinalScore:  meta.FinalScore,
		Verdict:     meta.Verdict,
		TokenID:     meta.TokenID,
		CreatedAt:   s.now(),
	}
	if err := s.registry.RegisterArtifact(a); err != nil {
		utils.RemoveIfExists(dst)
		return nil, err
	}
	s.debugf("artifact %s stored (%d bytes)", id, a.SizeBytes)
	return a, nil
}

// Open returns the artifact's file for reading. The caller closes it.
func (s *Store) Open(id string) (*os.File, *Artifact, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	a, err := s.registry.GetArtifact(id)
	if errors.Is(err, storage.ErrArtifactNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	f, err := os.Open(a.Path)
	if errors.Is(err, os.ErrNotExist) {
		// file vanished underneath the registry; drop the stale row
		if err := s.registry.DeleteArtifact(id); err != nil {
			s.warnf("dropping stale artifact %s: %v", id, err)
		}
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	return f, a, nil
}

// ScheduleDeletion arms (or re-arms) the deletion timer for id after a
// successful serve.
func (s *Store) ScheduleDeletion(id string) error {
	now := s.now()
	if err := s.registry.MarkServed(id, now, now.Add(s.Grace)); err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			return ErrNotFound
		}
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.timers[id]; ok {
		p.timer.Stop()
	}
	p := &pending{}
	p.timer = time.AfterFunc(s.Grace, func() { s.expire(id, p) })
	s.timers[id] = p
	s.debugf("artifact %s scheduled for deletion in %s", id, s.Grace)
	return nil
}

// expire runs on the timer goroutine; a timer that was re-armed in the
// meantime no longer owns the id and does nothing.
func (s *Store) expire(id string, p *pending) {
	s.mu.Lock()
	current := s.timers[id] == p
	s.mu.Unlock()
	if !current {
		return
	}
	if err := s.Delete(id); err != nil {
		s.warnf("deferred delete of %s failed: %v", id, err)
	}
}

// Delete removes the artifact file and row and cancels any pending timer.
// Deleting an unknown id is not an error.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	if p, ok := s.timers[id]; ok {
		p.timer.Stop()
		delete(s.timers, id)
	}
	s.mu.Unlock()

	path := ""
	if a, err := s.registry.GetArtifact(id); err == nil {
		path = a.Path
	} else if !errors.Is(err, storage.ErrArtifactNotFound) {
		return err
	}

	var errs []error
	if path != "" {
		if err := utils.RemoveIfExists(path); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.registry.DeleteArtifact(id); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 && path != "" {
		s.infof("artifact %s deleted", id)
	}
	return errors.Join(errs...)
}

// Sweep deletes artifacts whose window has closed and artifacts never served
// within MaxUnservedAge. It returns how many were removed.
func (s *Store) Sweep() (int, error) {
	now := s.now()
	expired, err := s.registry.ListExpired(now, now.Add(-s.MaxUnservedAge))
	if err != nil {
		return 0, err
	}
	removed := 0
	var errs []error
	for _, a := range expired {
		if err := s.Delete(a.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	if removed > 0 {
		s.infof("sweep removed %d expired artifacts", removed)
	}
	return removed, errors.Join(errs...)
}

// Pending reports how many deletions are currently armed.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Close stops every pending timer. The registry still holds the expiry
// times, so the next Sweep finishes the job.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range s.timers {
		p.timer.Stop()
		delete(s.timers, id)
	}
}

// URLFor builds the retrieval URL for id.
func URLFor(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/video/" + id
}

func (s *Store) infof(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Infof(format, args...)
	}
}

func (s *Store) warnf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Warnf(format, args...)
	}
}

func (s *Store) debugf(format string, args ...any) {
	if s.Logger != nil {
		s.Logger.Debugf(format, args...)
	}
}
