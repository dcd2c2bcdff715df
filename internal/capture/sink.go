package capture

import (
	"context"
	"fmt"
	"sync"

	"github.com/lumodate/capturekit/internal/fsutil"
)

// FileSink is a Poster writing deliverables atomically into a confined
// directory. The artifact name comes from the posted file; escaping names
// are rejected.
type FileSink struct {
	dir string

	mu   sync.Mutex
	last string
}

// NewFileSink builds a sink rooted at dir.
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Post implements Poster.
func (s *FileSink) Post(_ context.Context, f File, _ string) error {
	path, err := fsutil.ConfinePath(s.dir, f.Name)
	if err != nil {
		return fmt.Errorf("capture: sink: %w", err)
	}
	if err := fsutil.WriteAtomic(path, f.Blob.Data, 0o644); err != nil {
		return err
	}
	s.mu.Lock()
	s.last = path
	s.mu.Unlock()
	return nil
}

// LastPath returns the most recently written artifact path.
func (s *FileSink) LastPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}
