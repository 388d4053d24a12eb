package outputs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/himanishpuri/VocalMerge/pkg/vocalmerge/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.NewDBClientWithPath(filepath.Join(t.TempDir(), "registry.sqlite3"))
	if err != nil {
		t.Fatalf("NewDBClientWithPath: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(filepath.Join(t.TempDir(), "outputs"), db, nil)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)
	return s
}

func writeMix(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "output.mp4")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestPutAndOpen(t *testing.T) {
	s := newTestStore(t)
	src := writeMix(t, "mp4 bytes")

	a, err := s.Put(src, Meta{FinalScore: 72.4, Verdict: "Mildly Rekt 😅", TokenID: "7"})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := uuid.Parse(a.ID); err != nil {
		t.Errorf("id %q is not a uuid", a.ID)
	}
	if filepath.Base(a.Path) != a.ID+".mp4" {
		t.Errorf("path = %s", a.Path)
	}
	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Error("source should have been moved")
	}

	f, meta, err := s.Open(a.ID)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	data, _ := io.ReadAll(f)
	if string(data) != "mp4 bytes" {
		t.Errorf("content = %q", data)
	}
	if meta.ContentType != ContentTypeMP4 || meta.TokenID != "7" {
		t.Errorf("unexpected meta %+v", meta)
	}
}

func TestOpenRejectsBadAndUnknownIDs(t *testing.T) {
	s := newTestStore(t)
	if _, _, err := s.Open("../../etc/passwd"); !errors.Is(err, ErrInvalidID) {
		t.Errorf("expected ErrInvalidID, got %v", err)
	}
	if _, _, err := s.Open(uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestOpenDropsRowWhenFileVanished(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Put(writeMix(t, "x"), Meta{})
	os.Remove(a.Path)

	if _, _, err := s.Open(a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.registry.GetArtifact(a.ID); !errors.Is(err, storage.ErrArtifactNotFound) {
		t.Errorf("stale row kept: %v", err)
	}
}

func TestScheduledDeletionFiresAfterGrace(t *testing.T) {
	s := newTestStore(t)
	s.Grace = 30 * time.Millisecond
	a, _ := s.Put(writeMix(t, "x"), Meta{})

	if err := s.ScheduleDeletion(a.ID); err != nil {
		t.Fatalf("ScheduleDeletion: %v", err)
	}
	if _, err := os.Stat(a.Path); err != nil {
		t.Fatal("file deleted before the grace window elapsed")
	}

	waitFor(t, func() bool {
		_, err := os.Stat(a.Path)
		return os.IsNotExist(err)
	})
	waitFor(t, func() bool { return s.Pending() == 0 })
	if _, _, err := s.Open(a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after deletion, got %v", err)
	}
}

func TestRescheduleRearmsSingleTimer(t *testing.T) {
	s := newTestStore(t)
	s.Grace = time.Hour
	a, _ := s.Put(writeMix(t, "x"), Meta{})

	s.ScheduleDeletion(a.ID)
	s.ScheduleDeletion(a.ID)
	if n := s.Pending(); n != 1 {
		t.Fatalf("pending = %d, want 1", n)
	}

	if err := s.Delete(a.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if n := s.Pending(); n != 0 {
		t.Errorf("Delete should cancel the timer, pending = %d", n)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	a, _ := s.Put(writeMix(t, "x"), Meta{})

	for i := 0; i < 3; i++ {
		if err := s.Delete(a.ID); err != nil {
			t.Fatalf("Delete #%d: %v", i+1, err)
		}
	}
	if err := s.Delete(uuid.NewString()); err != nil {
		t.Fatalf("Delete of unknown id: %v", err)
	}
}

func TestScheduleUnknownID(t *testing.T) {
	s := newTestStore(t)
	if err := s.ScheduleDeletion(uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSweepRemovesExpired(t *testing.T) {
	s := newTestStore(t)
	base := time.Now()
	s.now = func() time.Time { return base }

	stale, _ := s.Put(writeMix(t, "stale"), Meta{})
	served, _ := s.Put(writeMix(t, "served"), Meta{})
	fresh, _ := s.Put(writeMix(t, "fresh"), Meta{})
	s.Grace = time.Minute
	s.ScheduleDeletion(served.ID)
	s.Close()

	// a later process: served window closed, fresh is still within max age
	s.now = func() time.Time { return base.Add(30 * time.Minute) }
	s.MaxUnservedAge = 20 * time.Minute
	s.registry.(*storage.DBClient).DB.Model(&storage.Artifact{}).
		Where("id = ?", fresh.ID).Update("created_at", base.Add(25*time.Minute).UTC())

	removed, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	for _, a := range []*Artifact{stale, served} {
		if _, err := os.Stat(a.Path); !os.IsNotExist(err) {
			t.Errorf("%s still on disk", a.ID)
		}
	}
	if _, err := os.Stat(fresh.Path); err != nil {
		t.Errorf("fresh artifact removed: %v", err)
	}
}

func TestURLFor(t *testing.T) {
	if got := URLFor("https://merge.example.com/", "abc"); got != "https://merge.example.com/video/abc" {
		t.Fatalf("URLFor = %s", got)
	}
}

func TestPutMissingSource(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Put(filepath.Join(t.TempDir(), "never-written.mp4"), Meta{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestSweepRemovesNeverServedWhileRunning(t *testing.T) {
	s := newTestStore(t)
	clock := time.Now()
	s.now = func() time.Time { return clock }
	s.MaxUnservedAge = time.Hour

	orphan, err := s.Put(writeMix(t, "never fetched"), Meta{})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	if n, _ := s.Sweep(); n != 0 {
		t.Fatalf("fresh artifact swept: %d", n)
	}

	clock = clock.Add(61 * time.Minute)
	n, err := s.Sweep()
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	if _, err := os.Stat(orphan.Path); !os.IsNotExist(err) {
		t.Error("never-served artifact still on disk")
	}
	if _, _, err := s.Open(orphan.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Open after sweep = %v, want ErrNotFound", err)
	}
}

type failingDelete struct {
	*storage.DBClient
}

func (failingDelete) DeleteArtifact(string) error { return errors.New("database is locked") }

type recordingLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recordingLogger) Infof(string, ...any)  {}
func (l *recordingLogger) Debugf(string, ...any) {}
func (l *recordingLogger) Warnf(format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, fmt.Sprintf(format, args...))
}

func TestOpenLogsStaleRowDeleteFailure(t *testing.T) {
	db, err := storage.NewDBClientWithPath(filepath.Join(t.TempDir(), "registry.sqlite3"))
	if err != nil {
		t.Fatalf("NewDBClientWithPath: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := &recordingLogger{}
	s, err := NewStore(filepath.Join(t.TempDir(), "outputs"), failingDelete{db}, log)
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	t.Cleanup(s.Close)

	a, err := s.Put(writeMix(t, "x"), Meta{})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	os.Remove(a.Path)

	if _, _, err := s.Open(a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	if len(log.warns) != 1 || !strings.Contains(log.warns[0], a.ID) || !strings.Contains(log.warns[0], "database is locked") {
		t.Errorf("warnings = %q, want one naming %s and the cause", log.warns, a.ID)
	}
}
