package speech

import (
	"context"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultTempFileTTL             = time.Hour
	DefaultTempFileCleanupInterval = 10 * time.Minute
)

// StartTempFileCleaner removes audio files left behind by interrupted turns.
func (s *Synthesizer) StartTempFileCleaner(ctx context.Context, interval, ttl time.Duration) {
	if interval <= 0 {
		interval = DefaultTempFileCleanupInterval
	}
	if ttl <= 0 {
		ttl = DefaultTempFileTTL
	}
	go s.cleanupLoop(ctx, interval, ttl)
}

func (s *Synthesizer) cleanupLoop(ctx context.Context, interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed, err := s.cleanupExpiredFiles(time.Now().Add(-ttl)); err != nil {
				log.WithError(err).Warn("cleanup temp audio files")
			} else if removed > 0 {
				log.WithField("removed", removed).Debug("temp audio files cleaned")
			}
		}
	}
}

func (s *Synthesizer) cleanupExpiredFiles(cutoff time.Time) (int, error) {
	dir := s.tempDir
	if dir == "" {
		dir = os.TempDir()
	}
	matches, err := filepath.Glob(filepath.Join(dir, tempFilePattern))
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			log.WithError(err).WithField("path", path).Warn("remove temp audio file failed")
			continue
		}
		removed++
	}
	return removed, nil
}
