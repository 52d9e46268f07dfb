package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"golang.org/x/time/rate"
)

// CrawlConfig holds the tunables of a catalogue crawl
type CrawlConfig struct {
	MaxItemsPerCategory int     // 0 = unlimited
	PagesPerSecond      float64 // page pacing; 0 = 0.5 pages/s
	MaxSessionRenewals  int     // 0 = unlimited
}

// CrawlDeps are the collaborators of a CatalogueCrawler
type CrawlDeps struct {
	Pager     domain.CataloguePager
	Sessions  domain.SessionProvider // optional
	Progress  domain.ProgressRepository
	Catalogue domain.CatalogueRepository
}

// CrawlSummary describes a finished crawl
type CrawlSummary struct {
	Categories int `json:"categories"`
	Completed  int `json:"completed"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
	Products   int `json:"products"`
	Added      int `json:"added"`
	Renewals   int `json:"renewals"`
}

// CatalogueCrawler pages through every category of a catalogue retailer and appends the products
// to the catalogue dump, recording per-category progress so an interrupted crawl resumes
type CatalogueCrawler struct {
	cfg       CrawlConfig
	pager     domain.CataloguePager
	sessions  domain.SessionProvider
	progress  domain.ProgressRepository
	catalogue domain.CatalogueRepository
	limiter   *rate.Limiter
	now       func() time.Time
}

// NewCatalogueCrawler creates a crawler
func NewCatalogueCrawler(cfg CrawlConfig, deps CrawlDeps) *CatalogueCrawler {
	pps := cfg.PagesPerSecond
	if pps <= 0 {
		pps = 0.5
	}
	return &CatalogueCrawler{
		cfg:       cfg,
		pager:     deps.Pager,
		sessions:  deps.Sessions,
		progress:  deps.Progress,
		catalogue: deps.Catalogue,
		limiter:   rate.NewLimiter(rate.Limit(pps), 1),
		now:       time.Now,
	}
}

// Run crawls every category not yet completed
func (c *CatalogueCrawler) Run(ctx context.Context) (*CrawlSummary, error) {
	progress, err := c.progress.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load crawl progress: %w", err)
	}

	dump, err := c.catalogue.Load()
	if errors.Is(err, domain.ErrCatalogueNotFound) {
		dump = &domain.CatalogueDump{Products: []domain.CatalogueEntry{}}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load catalogue: %w", err)
	}
	seen := make(map[string]bool, len(dump.Products))
	for _, p := range dump.Products {
		seen[EntryKey(p)] = true
	}

	categories, err := c.pager.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	summary := &CrawlSummary{Categories: len(categories)}

	var creds *domain.SessionCredentials
	if c.sessions != nil {
		if creds, err = c.sessions.Acquire(ctx); err != nil {
			return nil, fmt.Errorf("failed to acquire session: %w", err)
		}
	}

	for i := 0; i < len(categories); {
		cat := categories[i]
		if progress.IsCompleted(cat.Key) {
			summary.Skipped++
			i++
			continue
		}

		entries, err := c.crawlCategory(ctx, cat, creds)
		if err != nil {
			if ctx.Err() != nil {
				return summary, c.saveProgress(progress)
			}
			switch domain.KindOf(err) {
			case domain.KindThrottled:
				if c.sessions == nil || (c.cfg.MaxSessionRenewals > 0 && summary.Renewals >= c.cfg.MaxSessionRenewals) {
					progress.MarkFailed(cat.Key, err.Error(), c.now())
					if saveErr := c.saveProgress(progress); saveErr != nil {
						return summary, saveErr
					}
					return summary, fmt.Errorf("%w: %v", domain.ErrRenewalsExhausted, err)
				}
				log.Printf("[CRAWL] Throttled on %q, renewing session", cat.Name)
				renewed, renewErr := c.sessions.Renew(ctx)
				if renewErr != nil {
					return summary, fmt.Errorf("failed to renew session: %w", renewErr)
				}
				creds = renewed
				summary.Renewals++
				continue
			case domain.KindConfiguration:
				return summary, err
			}

			log.Printf("[CRAWL] Category %q failed: %v", cat.Name, err)
			progress.MarkFailed(cat.Key, err.Error(), c.now())
			summary.Failed++
			if err := c.saveProgress(progress); err != nil {
				return summary, err
			}
			i++
			continue
		}

		added := 0
		for _, e := range entries {
			key := EntryKey(e)
			if seen[key] {
				continue
			}
			seen[key] = true
			dump.Products = append(dump.Products, e)
			added++
		}
		dump.TotalProducts = len(dump.Products)
		dump.ScrapedAt = c.now().Format(time.RFC3339)
		if err := c.catalogue.Save(dump); err != nil {
			return summary, fmt.Errorf("failed to save catalogue: %w", err)
		}

		progress.MarkCompleted(cat.Key)
		if err := c.saveProgress(progress); err != nil {
			return summary, err
		}
		summary.Completed++
		summary.Added += added
		log.Printf("[CRAWL] %s: %d products (%d new), %d/%d categories done",
			cat.Name, len(entries), added, len(progress.CompletedCategories), len(categories))
		i++
	}

	summary.Products = len(dump.Products)
	return summary, nil
}

// crawlCategory pages through one category until it is exhausted or the per-category cap is hit
func (c *CatalogueCrawler) crawlCategory(ctx context.Context, cat domain.Category, creds *domain.SessionCredentials) ([]domain.CatalogueEntry, error) {
	var entries []domain.CatalogueEntry
	cursor := domain.PageCursor{}

	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		page, err := c.pager.FetchPage(ctx, cat, cursor, creds)
		if err != nil {
			return nil, err
		}
		for _, e := range page.Entries {
			if e.Category == "" {
				e.Category = cat.Name
			}
			entries = append(entries, e)
		}

		if c.cfg.MaxItemsPerCategory > 0 && len(entries) >= c.cfg.MaxItemsPerCategory {
			return entries[:c.cfg.MaxItemsPerCategory], nil
		}
		if page.Next == nil || len(page.Entries) == 0 {
			return entries, nil
		}
		cursor = *page.Next
	}
}

func (c *CatalogueCrawler) saveProgress(p *domain.CrawlProgress) error {
	now := c.now()
	p.LastUpdated = &now
	if err := c.progress.Save(p); err != nil {
		return fmt.Errorf("failed to save crawl progress: %w", err)
	}
	return nil
}

// EntryKey identifies a catalogue entry for de-duplication: UPC, then slug, then name and size
func EntryKey(e domain.CatalogueEntry) string {
	switch {
	case e.UPC != "":
		return "upc:" + domain.NormalizeUPC(e.UPC, false)
	case e.Slug != "":
		return "slug:" + strings.ToLower(e.Slug)
	default:
		return "name:" + NormalizeText(e.Name) + "|" + NormalizeText(e.SizeRaw)
	}
}
