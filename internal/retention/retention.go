// Package retention implements the background sweeper that deletes
// completed-job video files older than a configured age, resolving the
// spec's Open Question on MP4 retention policy (§9, DESIGN.md decision 2):
// "an implementation must not let the disk grow unbounded," with no
// further detail specified, so this adds the minimal policy the spec
// explicitly demands.
package retention

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const sweepInterval = 1 * time.Hour

// Sweeper periodically removes files under dir whose modification time is
// older than maxAge.
type Sweeper struct {
	dir    string
	maxAge time.Duration
	log    *slog.Logger
}

func New(dir string, maxAge time.Duration, log *slog.Logger) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	return &Sweeper{dir: dir, maxAge: maxAge, log: log}
}

// Run sweeps once immediately, then on every tick, until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.sweepOnce()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce()
		}
	}
}

func (s *Sweeper) sweepOnce() {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		s.log.Warn("retention sweep failed to list video directory", "dir", s.dir, "error", err)
		return
	}

	cutoff := time.Now().Add(-s.maxAge)
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".mp4") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			path := filepath.Join(s.dir, e.Name())
			if err := os.Remove(path); err != nil {
				s.log.Warn("retention sweep failed to remove video", "path", path, "error", err)
				continue
			}
			removed++
		}
	}
	if removed > 0 {
		s.log.Info("retention sweep removed expired videos", "count", removed, "maxAge", s.maxAge)
	}
}
