// Package feedback appends user feedback to a CSV file.
package feedback

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"shariahguide/internal/models"
)

// TimestampLayout is ISO-8601 local time with microseconds.
const TimestampLayout = "2006-01-02T15:04:05.000000"

var header = []string{"timestamp", "email", "feedback"}

// Sink writes one row per submission. The header is written only when the
// file is created. Appends within the process are serialised; concurrent
// writers in other processes are not coordinated.
type Sink struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

func NewSink(path string) *Sink {
	return &Sink{path: path, now: time.Now}
}

func (s *Sink) Path() string {
	return s.path
}

// Record appends a row. Both fields are stored as given; empty strings are
// accepted.
func (s *Sink) Record(email, feedback string) (*models.Feedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fresh := false
	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		fresh = true
	} else if err != nil {
		return nil, fmt.Errorf("stat feedback file: %w", err)
	}

	f, err := os.OpenFile(s.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open feedback file: %w", err)
	}
	defer f.Close()

	entry := &models.Feedback{
		Timestamp: s.now().Format(TimestampLayout),
		Email:     email,
		Feedback:  feedback,
	}
	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return nil, fmt.Errorf("write feedback header: %w", err)
		}
	}
	if err := w.Write([]string{entry.Timestamp, entry.Email, entry.Feedback}); err != nil {
		return nil, fmt.Errorf("write feedback row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush feedback: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close feedback file: %w", err)
	}
	log.WithField("path", s.path).Debug("feedback recorded")
	return entry, nil
}
