package domain

import (
	"context"
	"time"
)

// CheckpointRepository persists the scrape progress ledger
type CheckpointRepository interface {
	Load() (*CheckpointRecord, error)
	Save(record *CheckpointRecord) error
	Reset() error
}

// ProgressRepository persists the catalogue crawl ledger
type ProgressRepository interface {
	Load() (*CrawlProgress, error)
	Save(progress *CrawlProgress) error
	Reset() error
}

// CatalogueRepository stores scraped catalogue snapshots
type CatalogueRepository interface {
	Load() (*CatalogueDump, error)
	Save(dump *CatalogueDump) error
}

// BatchFetcher performs one network batch call against a retailer product API
type BatchFetcher interface {
	// FetchBatch looks up ids with the given credentials. It returns ErrConfirmedAbsent
	// (wrapped or bare) when the retailer positively answered with zero products.
	FetchBatch(ctx context.Context, ids []string, creds *SessionCredentials) ([]ScrapedResult, error)
	// RequestKey and ResultKey map a requested id and a returned UPC onto the same key
	// when they denote the same product
	RequestKey(id string) string
	ResultKey(upc string) string
}

// CataloguePager pages through a retailer catalogue listing
type CataloguePager interface {
	Categories(ctx context.Context) ([]Category, error)
	FetchPage(ctx context.Context, category Category, cursor PageCursor, creds *SessionCredentials) (*Page, error)
}

// SessionProvider bootstraps and recreates the identity used for retailer API calls
type SessionProvider interface {
	Acquire(ctx context.Context) (*SessionCredentials, error)
	Renew(ctx context.Context) (*SessionCredentials, error)
	Close() error
}

// InteractiveStep is one scripted browser action run while bootstrapping a session
type InteractiveStep struct {
	Action   string        `json:"action"` // goto, click, fill, press, wait
	Selector string        `json:"selector,omitempty"`
	Frame    string        `json:"frame,omitempty"` // iframe selector the step runs inside
	Value    string        `json:"value,omitempty"`
	Timeout  time.Duration `json:"timeout,omitempty"`
}

// CapturedRequest is a request observed while a rendered page was open
type CapturedRequest struct {
	URL     string
	Method  string
	Headers map[string]string
}

// BrowserCookie is a cookie read from a rendered session
type BrowserCookie struct {
	Name   string
	Value  string
	Domain string
}

// RenderedSession is an open browser context positioned on a retailer storefront
type RenderedSession interface {
	Navigate(ctx context.Context, url string) error
	AwaitCapturedRequest(ctx context.Context, match func(CapturedRequest) bool, timeout time.Duration) (*CapturedRequest, error)
	Cookies(ctx context.Context) ([]BrowserCookie, error)
	Content(ctx context.Context) (string, error)
	Close() error
}

// PageFetcher opens rendered storefront sessions
type PageFetcher interface {
	Open(ctx context.Context, target string, steps []InteractiveStep) (RenderedSession, error)
}

// Operator is the human in the loop who unblocks a stalled run
type Operator interface {
	AwaitOperator(ctx context.Context, reason string) error
}

// ReferenceSource loads the user's reference price sheet
type ReferenceSource interface {
	LoadReference(path string, required []string) ([]ReferenceRow, error)
}

// HistoryRepository records comparison runs for price tracking
type HistoryRepository interface {
	SaveComparison(ctx context.Context, retailer string, rows []ComparisonRow, at time.Time) error
	Close()
}
