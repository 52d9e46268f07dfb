package usecase

import (
	"errors"
	"fmt"
	"time"

	"github.com/shelfscan/backend/internal/domain"
)

// RetailerRepositories are the persisted ledgers of one retailer
type RetailerRepositories struct {
	Mode       string
	Checkpoint domain.CheckpointRepository
	Progress   domain.ProgressRepository
	Catalogue  domain.CatalogueRepository
}

// RepositoryOpener resolves the repositories of a retailer, failing with domain.ErrUnknownRetailer
type RepositoryOpener func(retailer string) (*RetailerRepositories, error)

// ScrapeStatus is the progress of a batch scrape
type ScrapeStatus struct {
	domain.ProgressStats
	SessionCount     int        `json:"sessionCount"`
	LastSessionStart *time.Time `json:"lastSessionStart,omitempty"`
	LastUpdated      *time.Time `json:"lastUpdated,omitempty"`
}

// CrawlStatus is the progress of a catalogue crawl
type CrawlStatus struct {
	CompletedCategories int                     `json:"completedCategories"`
	FailedCategories    []domain.FailedCategory `json:"failedCategories"`
	LastUpdated         *time.Time              `json:"lastUpdated,omitempty"`
}

// RetailerStatus summarizes everything persisted for one retailer
type RetailerStatus struct {
	Retailer          string        `json:"retailer"`
	Mode              string        `json:"mode"`
	Scrape            *ScrapeStatus `json:"scrape,omitempty"`
	Crawl             *CrawlStatus  `json:"crawl,omitempty"`
	CatalogueProducts int           `json:"catalogueProducts"`
	CatalogueScrapedAt string       `json:"catalogueScrapedAt,omitempty"`
}

// CataloguePage is a slice of a catalogue dump
type CataloguePage struct {
	ScrapedAt string                  `json:"scrapedAt"`
	Total     int                     `json:"total"`
	Offset    int                     `json:"offset"`
	Limit     int                     `json:"limit"`
	Products  []domain.CatalogueEntry `json:"products"`
}

// StatusService reads progress ledgers without mutating them
type StatusService struct {
	open RepositoryOpener
}

// NewStatusService creates a status service
func NewStatusService(open RepositoryOpener) *StatusService {
	return &StatusService{open: open}
}

// Status reports scrape and crawl progress of a retailer
func (s *StatusService) Status(retailer string) (*RetailerStatus, error) {
	repos, err := s.open(retailer)
	if err != nil {
		return nil, err
	}
	status := &RetailerStatus{Retailer: retailer, Mode: repos.Mode}

	if repos.Checkpoint != nil {
		record, err := repos.Checkpoint.Load()
		if err != nil {
			return nil, fmt.Errorf("load checkpoint: %w", err)
		}
		status.Scrape = &ScrapeStatus{
			ProgressStats:    record.Stats(record.TotalCount),
			SessionCount:     record.SessionCount,
			LastSessionStart: record.LastSessionStart,
			LastUpdated:      record.LastUpdated,
		}
	}

	if repos.Progress != nil {
		progress, err := repos.Progress.Load()
		if err != nil {
			return nil, fmt.Errorf("load crawl progress: %w", err)
		}
		status.Crawl = &CrawlStatus{
			CompletedCategories: len(progress.CompletedCategories),
			FailedCategories:    progress.FailedCategories,
			LastUpdated:         progress.LastUpdated,
		}
	}

	if repos.Catalogue != nil {
		dump, err := repos.Catalogue.Load()
		switch {
		case errors.Is(err, domain.ErrCatalogueNotFound):
		case err != nil:
			return nil, fmt.Errorf("load catalogue: %w", err)
		default:
			status.CatalogueProducts = len(dump.Products)
			status.CatalogueScrapedAt = dump.ScrapedAt
		}
	}

	return status, nil
}

// Catalogue returns one page of the catalogue dump of a retailer
func (s *StatusService) Catalogue(retailer string, offset, limit int) (*CataloguePage, error) {
	repos, err := s.open(retailer)
	if err != nil {
		return nil, err
	}
	if repos.Catalogue == nil {
		return nil, fmt.Errorf("%w: %s has no catalogue", domain.ErrCatalogueNotFound, retailer)
	}
	dump, err := repos.Catalogue.Load()
	if err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = 100
	}
	page := &CataloguePage{ScrapedAt: dump.ScrapedAt, Total: len(dump.Products), Offset: offset, Limit: limit}
	if offset >= len(dump.Products) {
		page.Products = []domain.CatalogueEntry{}
		return page, nil
	}
	end := offset + limit
	if end > len(dump.Products) {
		end = len(dump.Products)
	}
	page.Products = dump.Products[offset:end]
	return page, nil
}
