package domain

import "time"

// WorkItem is one identifier to look up (usually a UPC) tied to its row in the reference sheet
type WorkItem struct {
	ID    string `json:"id"`
	Index int    `json:"index"`
}

// ScrapedResult is the retailer-independent snapshot of one product lookup.
// A nil *ScrapedResult in a checkpoint means "looked up, not found".
type ScrapedResult struct {
	UPC         string   `json:"upc"`
	Name        string   `json:"name,omitempty"`
	Description string   `json:"description,omitempty"`
	Brand       string   `json:"brand,omitempty"`
	Price       *float64 `json:"price"`
	Size        string   `json:"size,omitempty"`
	Retailer    string   `json:"retailer,omitempty"`
}

// DisplayName returns the best human readable name for the product
func (r *ScrapedResult) DisplayName() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Description
}

// CatalogueEntry represents one product from a scraped retailer catalogue
type CatalogueEntry struct {
	Name        string   `json:"name"`
	Brand       string   `json:"brand,omitempty"`
	SizeRaw     string   `json:"size,omitempty"`
	Slug        string   `json:"slug,omitempty"`
	Description string   `json:"description,omitempty"`
	UPC         string   `json:"upc,omitempty"`
	Price       *float64 `json:"regular_price"`
	Category    string   `json:"category,omitempty"`

	// Derived fields, filled by the normalizer before matching
	NormalizedName  string `json:"-"`
	NormalizedBrand string `json:"-"`
	NormalizedSize  string `json:"-"`
	Base            string `json:"-"`
}

// CatalogueDump is the on-disk snapshot of a scraped catalogue, used to run matching without re-scraping
type CatalogueDump struct {
	ScrapedAt     string           `json:"scraped_at"`
	TotalProducts int              `json:"total_products"`
	Products      []CatalogueEntry `json:"products"`
}

// ReferenceRow is one row of the user's input price sheet
type ReferenceRow struct {
	Row         int               `json:"row"`
	UPC         string            `json:"upc"`
	Description string            `json:"description"`
	Brand       string            `json:"brand,omitempty"`
	Size        string            `json:"size,omitempty"`
	Price       *float64          `json:"price"`
	Extra       map[string]string `json:"extra,omitempty"`

	NormalizedName  string `json:"-"`
	NormalizedBrand string `json:"-"`
	NormalizedSize  string `json:"-"`
}

// HasBrand reports whether the row carries a usable brand
func (r *ReferenceRow) HasBrand() bool {
	return r.NormalizedBrand != ""
}

// MatchResult represents the outcome of matching one reference row against a catalogue
type MatchResult struct {
	ReferenceIndex int      `json:"referenceIndex"`
	CatalogueIndex *int     `json:"catalogueIndex"`
	Score          float64  `json:"score"`
	Accepted       bool     `json:"accepted"`
	RejectReasons  []string `json:"rejectReasons,omitempty"`
}

// Match status values written to reports
const (
	StatusMatched  = "matched"
	StatusRejected = "rejected"
	StatusNoMatch  = "no_match"
)

// NotMatched is the sentinel written into report cells for rows without an accepted match
const NotMatched = "n/a"

// ComparisonRow is one line of the final price comparison report
type ComparisonRow struct {
	Reference     ReferenceRow `json:"reference"`
	Match         MatchResult  `json:"match"`
	CandidateName string       `json:"candidateName,omitempty"`
	MatchedName   string       `json:"matchedName,omitempty"`
	MatchedBrand  string       `json:"matchedBrand,omitempty"`
	MatchedSize   string       `json:"matchedSize,omitempty"`
	MatchedPrice  *float64     `json:"matchedPrice"`
	DeltaAbs      *float64     `json:"deltaAbs"`
	DeltaPct      *float64     `json:"deltaPct"`
	Flagged       bool         `json:"flagged"`
	Status        string       `json:"status"`
}

// ComparisonSummary aggregates a comparison run
type ComparisonSummary struct {
	Total     int `json:"total"`
	Matched   int `json:"matched"`
	Rejected  int `json:"rejected"`
	Unmatched int `json:"unmatched"`
	Flagged   int `json:"flagged"`
}

// SessionCredentials is the captured identity a retailer fetcher needs to issue authenticated API calls
type SessionCredentials struct {
	Headers    map[string]string `json:"headers,omitempty"`
	Cookies    map[string]string `json:"cookies,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
	Token      string            `json:"token,omitempty"`
	CapturedAt time.Time         `json:"capturedAt"`
}

// Cookie returns a cookie value by name
func (c *SessionCredentials) Cookie(name string) (string, bool) {
	if c == nil || c.Cookies == nil {
		return "", false
	}
	v, ok := c.Cookies[name]
	return v, ok
}

// Category is a unit of catalogue crawling (an aisle or category listing)
type Category struct {
	Key    string `json:"key"`
	ID     string `json:"category_id"`
	Name   string `json:"category_name"`
	Parent string `json:"parent,omitempty"`
}

// PageCursor locates one page inside a category listing
type PageCursor struct {
	Offset int    `json:"offset"`
	Token  string `json:"token,omitempty"`
}

// Page is a single page of catalogue entries; Next is nil when the listing is exhausted
type Page struct {
	Entries []CatalogueEntry
	Next    *PageCursor
	Total   int
}

// BuildWorkItems turns reference rows with a UPC into work items. The returned rows are aligned with
// the items so that rows[i] belongs to the item with Index i.
func BuildWorkItems(refs []ReferenceRow) ([]WorkItem, []ReferenceRow) {
	items := make([]WorkItem, 0, len(refs))
	rows := make([]ReferenceRow, 0, len(refs))
	for _, ref := range refs {
		if digitsOnly(ref.UPC) == "" {
			continue
		}
		items = append(items, WorkItem{ID: ref.UPC, Index: len(items)})
		rows = append(rows, ref)
	}
	return items, rows
}
