// Package workspace hands out per-request scratch directories.
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/himanishpuri/VocalMerge/pkg/utils"
)

// Arena is a directory owned by a single request. Every path it allocates
// lives under that directory, so one Cleanup removes them all.
type Arena struct {
	id  string
	dir string

	mu      sync.Mutex
	cleaned bool
}

// New creates root/<uuid>.
func New(root string) (*Arena, error) {
	if strings.TrimSpace(root) == "" {
		root = os.TempDir()
	}
	id := uuid.NewString()
	dir := filepath.Join(root, id)
	if err := utils.MakeDir(dir); err != nil {
		return nil, fmt.Errorf("creating request arena: %w", err)
	}
	return &Arena{id: id, dir: dir}, nil
}

func (a *Arena) ID() string  { return a.id }
func (a *Arena) Dir() string { return a.dir }

// Path returns the arena path for a named artifact, e.g. Path("recording",
// ".webm"). Names are roles, so each one should be requested once per arena.
func (a *Arena) Path(name, ext string) string {
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return filepath.Join(a.dir, filepath.Base(name)+ext)
}

// Cleanup removes the arena. Calling it more than once is safe.
func (a *Arena) Cleanup() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cleaned {
		return nil
	}
	if err := utils.RemoveDirIfExists(a.dir); err != nil {
		return fmt.Errorf("removing arena %s: %w", a.id, err)
	}
	a.cleaned = true
	return nil
}
