// Package tempfiles manages the short-lived WAV files produced by synthesis.
// Files are created in a dedicated directory, released once the response
// has been sent, and swept periodically when a crash or aborted send leaves
// them behind.
package tempfiles

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"
)

const (
	// Pattern is the os.CreateTemp pattern of synthesis output files.
	Pattern = "speech-*.wav"

	// DefaultInterval is how often Run sweeps the directory.
	DefaultInterval = 10 * time.Minute

	// DefaultMaxAge is the age after which a file is considered stale.
	DefaultMaxAge = time.Hour
)

// DefaultDir returns the default output directory.
func DefaultDir() string {
	return filepath.Join(os.TempDir(), "opero-tts")
}

// Stats counts file lifecycle events.
type Stats struct {
	Created  int
	Released int
	Swept    int
	Pending  int
}

// Store creates and tracks output files.
type Store struct {
	dir    string
	logger *log.Logger

	mu      sync.Mutex
	pending map[string]time.Time
	stats   Stats

	// failures throttles repeated sweep error logs.
	failures rate.Sometimes
}

// New creates a store in dir, creating the directory if needed. An empty dir
// uses DefaultDir.
func New(dir string, logger *log.Logger) (*Store, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	if logger == nil {
		logger = log.Default()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	return &Store{
		dir:      dir,
		logger:   logger,
		pending:  make(map[string]time.Time),
		failures: rate.Sometimes{First: 1, Interval: time.Hour},
	}, nil
}

// Dir returns the directory holding the files.
func (s *Store) Dir() string {
	return s.dir
}

// Create makes a new empty output file and returns its path.
func (s *Store) Create() (string, error) {
	f, err := os.CreateTemp(s.dir, Pattern)
	if err != nil {
		return "", err
	}
	path := f.Name()
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return "", err
	}

	s.mu.Lock()
	s.pending[path] = time.Now()
	s.stats.Created++
	s.mu.Unlock()
	return path, nil
}

// Release deletes a file handed out by Create. Releasing a file that is
// already gone is not an error.
func (s *Store) Release(path string) error {
	s.mu.Lock()
	if _, ok := s.pending[path]; ok {
		delete(s.pending, path)
		s.stats.Released++
	}
	s.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Pending returns the number of files created but not yet released.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// Stats returns a snapshot of the counters.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := s.stats
	stats.Pending = len(s.pending)
	return stats
}

// Sweep removes output files in the directory last modified before
// now-maxAge and returns how many were removed. Other files are left alone.
func (s *Store) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, fmt.Errorf("failed to read temp directory: %w", err)
	}

	cutoff := now.Add(-maxAge)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isOutputFile(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue // removed concurrently
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		s.mu.Lock()
		delete(s.pending, path)
		s.stats.Swept++
		s.mu.Unlock()
		removed++
	}
	return removed, errors.Join(errs...)
}

// Run sweeps the directory every interval until ctx is done.
func (s *Store) Run(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.sweep(maxAge, now)
		}
	}
}

func (s *Store) sweep(maxAge time.Duration, now time.Time) {
	removed, err := s.Sweep(maxAge, now)
	if removed > 0 {
		s.logger.Info("Removed stale audio files", "count", removed, "dir", s.dir)
	}
	if err != nil {
		s.failures.Do(func() {
			s.logger.Warn("Temp file sweep failed", "dir", s.dir, "error", err)
		})
	}
}

// Close removes every file still pending.
func (s *Store) Close() error {
	s.mu.Lock()
	paths := make([]string, 0, len(s.pending))
	for path := range s.pending {
		paths = append(paths, path)
	}
	s.mu.Unlock()

	var errs []error
	for _, path := range paths {
		if err := s.Release(path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func isOutputFile(name string) bool {
	return strings.HasPrefix(name, "speech-") && strings.HasSuffix(name, ".wav")
}
