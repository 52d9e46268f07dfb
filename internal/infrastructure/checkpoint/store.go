package checkpoint

import (
	"errors"
	"fmt"
	"log"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/shelfscan/backend/internal/domain"
)

// FileName is the checkpoint file name inside a retailer data directory
const FileName = "checkpoint.json"

// FileStore persists the scrape checkpoint as a JSON file
type FileStore struct {
	path  string
	mutex sync.Mutex
	now   func() time.Time
}

// NewFileStore creates a checkpoint store backed by path
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, now: time.Now}
}

// Path returns the backing file path
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the checkpoint. A missing, unreadable or inconsistent file yields a fresh record;
// the bad file is moved aside and never causes a failure.
func (s *FileStore) Load() (*domain.CheckpointRecord, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var record domain.CheckpointRecord
	err := readJSON(s.path, &record)
	switch {
	case errors.Is(err, os.ErrNotExist):
		log.Printf("[CHECKPOINT] No checkpoint at %s, starting fresh", s.path)
		return domain.NewCheckpointRecord(), nil
	case err != nil:
		log.Printf("[CHECKPOINT] Unreadable checkpoint %s (%v), moved to %q; starting fresh", s.path, err, quarantine(s.path))
		return domain.NewCheckpointRecord(), nil
	}

	if err := record.Validate(); err != nil {
		log.Printf("[CHECKPOINT] Inconsistent checkpoint %s (%v), moved to %q; starting fresh", s.path, err, quarantine(s.path))
		return domain.NewCheckpointRecord(), nil
	}
	if record.CompletedIndices == nil {
		record.CompletedIndices = []int{}
	}
	if record.Results == nil {
		record.Results = []domain.ResultEntry{}
	}

	log.Printf("[CHECKPOINT] Loaded %s: %d/%d completed, session %d",
		s.path, record.CompletedCount, record.TotalCount, record.SessionCount)
	return &record, nil
}

// Save atomically persists record and stamps LastUpdated
func (s *FileStore) Save(record *domain.CheckpointRecord) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := s.now()
	record.LastUpdated = &now

	out := *record
	out.CompletedIndices = slices.Clone(record.CompletedIndices)
	slices.Sort(out.CompletedIndices)

	if err := WriteJSONAtomic(s.path, &out); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Reset deletes the checkpoint file
func (s *FileStore) Reset() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to reset checkpoint: %w", err)
	}
	log.Printf("[CHECKPOINT] Reset %s", s.path)
	return nil
}
