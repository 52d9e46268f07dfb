package checkpoint

import (
	"errors"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/shelfscan/backend/internal/domain"
)

// ProgressFileName is the crawl ledger file name inside a retailer data directory
const ProgressFileName = "crawl_progress.json"

// ProgressStore persists catalogue crawl progress as a JSON file
type ProgressStore struct {
	path  string
	mutex sync.Mutex
}

// NewProgressStore creates a crawl ledger store backed by path
func NewProgressStore(path string) *ProgressStore {
	return &ProgressStore{path: path}
}

// Load reads the ledger; a missing or unreadable file yields an empty one
func (s *ProgressStore) Load() (*domain.CrawlProgress, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	progress := domain.NewCrawlProgress()
	err := readJSON(s.path, progress)
	switch {
	case errors.Is(err, os.ErrNotExist):
		return domain.NewCrawlProgress(), nil
	case err != nil:
		log.Printf("[CHECKPOINT] Unreadable crawl progress %s (%v), moved to %q", s.path, err, quarantine(s.path))
		return domain.NewCrawlProgress(), nil
	}
	log.Printf("[CHECKPOINT] Loaded crawl progress: %d completed, %d failed categories",
		len(progress.CompletedCategories), len(progress.FailedCategories))
	return progress, nil
}

// Save atomically persists the ledger
func (s *ProgressStore) Save(progress *domain.CrawlProgress) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := WriteJSONAtomic(s.path, progress); err != nil {
		return fmt.Errorf("failed to save crawl progress: %w", err)
	}
	return nil
}

// Reset deletes the ledger file
func (s *ProgressStore) Reset() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to reset crawl progress: %w", err)
	}
	return nil
}
