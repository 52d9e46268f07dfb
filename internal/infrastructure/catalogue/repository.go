package catalogue

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/checkpoint"
)

// FileName is the catalogue dump file name inside a retailer data directory
const FileName = "catalogue_dump.json"

// FileRepository stores the scraped catalogue as a JSON dump so matching can run without re-scraping
type FileRepository struct {
	path string
}

// NewFileRepository creates a catalogue repository backed by path
func NewFileRepository(path string) *FileRepository {
	return &FileRepository{path: path}
}

// Load reads the dump, returning domain.ErrCatalogueNotFound when none was written yet
func (r *FileRepository) Load() (*domain.CatalogueDump, error) {
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", domain.ErrCatalogueNotFound, r.path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalogue: %w", err)
	}

	var dump domain.CatalogueDump
	if err := json.Unmarshal(data, &dump); err != nil {
		return nil, fmt.Errorf("failed to decode catalogue %s: %w", r.path, err)
	}
	if dump.Products == nil {
		dump.Products = []domain.CatalogueEntry{}
	}
	log.Printf("[CATALOGUE] Loaded %d products scraped at %s", len(dump.Products), dump.ScrapedAt)
	return &dump, nil
}

// Save atomically writes the dump
func (r *FileRepository) Save(dump *domain.CatalogueDump) error {
	dump.TotalProducts = len(dump.Products)
	if err := checkpoint.WriteJSONAtomic(r.path, dump); err != nil {
		return fmt.Errorf("failed to save catalogue: %w", err)
	}
	return nil
}
