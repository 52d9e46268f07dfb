package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryProgressStore struct {
	progress *domain.CrawlProgress
	saves    int
}

func (s *memoryProgressStore) Load() (*domain.CrawlProgress, error) {
	if s.progress == nil {
		s.progress = domain.NewCrawlProgress()
	}
	return s.progress, nil
}

func (s *memoryProgressStore) Save(p *domain.CrawlProgress) error {
	s.progress = p
	s.saves++
	return nil
}

func (s *memoryProgressStore) Reset() error {
	s.progress = nil
	return nil
}

type memoryCatalogue struct {
	dump *domain.CatalogueDump
}

func (c *memoryCatalogue) Load() (*domain.CatalogueDump, error) {
	if c.dump == nil {
		return nil, domain.ErrCatalogueNotFound
	}
	return c.dump, nil
}

func (c *memoryCatalogue) Save(d *domain.CatalogueDump) error {
	c.dump = d
	return nil
}

// fakePager serves pages from a map keyed by "<category>/<offset>"; errs are returned once per key
type fakePager struct {
	categories []domain.Category
	pages      map[string]*domain.Page
	errs       map[string]error
	calls      []string
}

func (p *fakePager) Categories(ctx context.Context) ([]domain.Category, error) {
	return p.categories, nil
}

func (p *fakePager) FetchPage(ctx context.Context, cat domain.Category, cursor domain.PageCursor, creds *domain.SessionCredentials) (*domain.Page, error) {
	key := fmt.Sprintf("%s/%d", cat.Key, cursor.Offset)
	p.calls = append(p.calls, key)
	if err, ok := p.errs[key]; ok {
		delete(p.errs, key)
		return nil, err
	}
	page, ok := p.pages[key]
	if !ok {
		return &domain.Page{}, nil
	}
	return page, nil
}

func newTestCrawler(cfg CrawlConfig, pager *fakePager, sessions domain.SessionProvider, progress *memoryProgressStore, catalogue *memoryCatalogue) *CatalogueCrawler {
	cfg.PagesPerSecond = 1000
	return NewCatalogueCrawler(cfg, CrawlDeps{
		Pager:     pager,
		Sessions:  sessions,
		Progress:  progress,
		Catalogue: catalogue,
	})
}

func groceryPager() *fakePager {
	return &fakePager{
		categories: []domain.Category{
			{Key: "dairy", Name: "Dairy"},
			{Key: "bakery", Name: "Bakery"},
			{Key: "produce", Name: "Produce"},
		},
		pages: map[string]*domain.Page{
			"dairy/0": {
				Entries: []domain.CatalogueEntry{{Name: "Whole Milk", UPC: "111"}, {Name: "Butter", UPC: "112"}},
				Next:    &domain.PageCursor{Offset: 2},
			},
			"dairy/2": {
				Entries: []domain.CatalogueEntry{{Name: "Yogurt", UPC: "113"}},
			},
			"produce/0": {
				Entries: []domain.CatalogueEntry{{Name: "Bananas", Slug: "bananas"}, {Name: "Whole Milk", UPC: "111"}},
			},
		},
		errs: map[string]error{},
	}
}

func TestCatalogueCrawler_CrawlsAllCategories(t *testing.T) {
	pager := groceryPager()
	pager.errs["bakery/0"] = domain.NewFatalError(400, "bad request")
	progress := &memoryProgressStore{}
	catalogue := &memoryCatalogue{}
	crawler := newTestCrawler(CrawlConfig{}, pager, nil, progress, catalogue)

	summary, err := crawler.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 3, summary.Categories)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 4, summary.Products)

	assert.Equal(t, []string{"dairy", "produce"}, progress.progress.CompletedCategories)
	require.Len(t, progress.progress.FailedCategories, 1)
	assert.Equal(t, "bakery", progress.progress.FailedCategories[0].Category)

	require.NotNil(t, catalogue.dump)
	assert.Equal(t, 4, catalogue.dump.TotalProducts)
	assert.Equal(t, "Dairy", catalogue.dump.Products[0].Category)
	assert.NotEmpty(t, catalogue.dump.ScrapedAt)
}

func TestCatalogueCrawler_ResumesAndRespectsCap(t *testing.T) {
	pager := groceryPager()
	progress := &memoryProgressStore{progress: domain.NewCrawlProgress()}
	progress.progress.MarkCompleted("dairy")
	catalogue := &memoryCatalogue{}
	crawler := newTestCrawler(CrawlConfig{MaxItemsPerCategory: 1}, pager, nil, progress, catalogue)

	summary, err := crawler.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, summary.Skipped)
	assert.NotContains(t, pager.calls, "dairy/0")
	assert.Equal(t, 1, summary.Products)
	assert.Equal(t, "Bananas", catalogue.dump.Products[0].Name)
}

func TestCatalogueCrawler_ThrottleRenewsAndRetriesCategory(t *testing.T) {
	pager := groceryPager()
	pager.errs["dairy/2"] = domain.NewThrottledError(403, "forbidden")
	sessions := &fakeSessions{}
	progress := &memoryProgressStore{}
	catalogue := &memoryCatalogue{}
	crawler := newTestCrawler(CrawlConfig{}, pager, sessions, progress, catalogue)

	summary, err := crawler.Run(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 1, sessions.renewed)
	assert.Equal(t, 1, summary.Renewals)
	assert.Equal(t, []string{"dairy/0", "dairy/2", "dairy/0", "dairy/2"}, pager.calls[:4])
	assert.Equal(t, 3, summary.Completed)
}

func TestCatalogueCrawler_RenewalsExhausted(t *testing.T) {
	pager := groceryPager()
	pager.errs["dairy/0"] = domain.NewThrottledError(429, "slow down")
	progress := &memoryProgressStore{}
	crawler := newTestCrawler(CrawlConfig{}, pager, nil, progress, &memoryCatalogue{})

	_, err := crawler.Run(context.Background())

	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrRenewalsExhausted))
	require.Len(t, progress.progress.FailedCategories, 1)
}

func TestEntryKey(t *testing.T) {
	assert.Equal(t, "upc:111", EntryKey(domain.CatalogueEntry{UPC: "000111", Slug: "x"}))
	assert.Equal(t, "slug:bananas", EntryKey(domain.CatalogueEntry{Slug: "Bananas"}))
	assert.Equal(t, "name:whole milk|1 gal", EntryKey(domain.CatalogueEntry{Name: "Whole  Milk", SizeRaw: "1 GAL"}))
}
