package retailer

import (
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/catalogue"
	"github.com/shelfscan/backend/internal/infrastructure/checkpoint"
	"github.com/shelfscan/backend/internal/usecase"
)

// Options configures one retailer adapter
type Options struct {
	BaseURL        string
	Timeout        time.Duration
	ZipCode        string
	StoreID        string
	CategoriesPath string
	Categories     []string
}

// Mode tells which workflow a retailer supports
type Mode string

const (
	// ModeBatch retailers answer UPC lookups
	ModeBatch Mode = "batch"
	// ModeCatalogue retailers are crawled category by category and matched offline
	ModeCatalogue Mode = "catalogue"
)

var modes = map[string]Mode{
	HarrisTeeterName: ModeBatch,
	GiantName:        ModeBatch,
	SafewayName:      ModeCatalogue,
	WholeFoodsName:   ModeCatalogue,
}

// Names returns every supported retailer
func Names() []string {
	names := make([]string, 0, len(modes))
	for name := range modes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModeOf reports the workflow of a retailer
func ModeOf(name string) (Mode, error) {
	mode, ok := modes[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", domain.ErrUnknownRetailer, name)
	}
	return mode, nil
}

// Repositories lays out retailer ledgers as dataDir/<retailer>/<file>. Batch retailers get a
// checkpoint, catalogue retailers a crawl ledger and a catalogue dump.
func Repositories(dataDir string) usecase.RepositoryOpener {
	return func(name string) (*usecase.RetailerRepositories, error) {
		mode, err := ModeOf(name)
		if err != nil {
			return nil, err
		}
		dir := filepath.Join(dataDir, name)
		repos := &usecase.RetailerRepositories{Mode: string(mode)}
		if mode == ModeBatch {
			repos.Checkpoint = checkpoint.NewFileStore(filepath.Join(dir, checkpoint.FileName))
		} else {
			repos.Progress = checkpoint.NewProgressStore(filepath.Join(dir, checkpoint.ProgressFileName))
			repos.Catalogue = catalogue.NewFileRepository(filepath.Join(dir, catalogue.FileName))
		}
		return repos, nil
	}
}

// NewBatchFetcher returns the UPC lookup adapter of a batch retailer
func NewBatchFetcher(name string, opts Options) (domain.BatchFetcher, error) {
	switch name {
	case HarrisTeeterName:
		return NewHarrisTeeter(opts.BaseURL, opts.Timeout), nil
	case GiantName:
		return NewGiant(opts.BaseURL, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: %s has no UPC lookup", domain.ErrUnknownRetailer, name)
	}
}

// NewCataloguePager returns the listing adapter of a catalogue retailer
func NewCataloguePager(name string, opts Options) (domain.CataloguePager, error) {
	switch name {
	case SafewayName:
		return NewSafeway(opts.BaseURL, opts.CategoriesPath, opts.Timeout), nil
	case WholeFoodsName:
		return NewWholeFoods(opts.BaseURL, opts.Categories, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("%w: %s has no catalogue listing", domain.ErrUnknownRetailer, name)
	}
}

// Profile returns the browser bootstrap recipe of a retailer
func Profile(name string, opts Options) (SessionProfile, error) {
	wait := func(d time.Duration) domain.InteractiveStep {
		return domain.InteractiveStep{Action: "wait", Timeout: d}
	}
	click := func(sel string) domain.InteractiveStep {
		return domain.InteractiveStep{Action: "click", Selector: sel, Timeout: 5 * time.Second}
	}
	fill := func(sel, v string) domain.InteractiveStep {
		return domain.InteractiveStep{Action: "fill", Selector: sel, Value: v, Timeout: 5 * time.Second}
	}
	gotoURL := func(u string) domain.InteractiveStep {
		return domain.InteractiveStep{Action: "goto", Value: u, Timeout: 20 * time.Second}
	}

	switch name {
	case HarrisTeeterName:
		base := orDefault(opts.BaseURL, harrisTeeterBaseURL)
		return SessionProfile{
			Retailer: name,
			StartURL: base,
			Steps: []domain.InteractiveStep{
				click("button[data-testid='CurrentModality-button']"),
				click("button[data-testid='ModalityOption-Button-PICKUP']"),
				fill("input[data-testid='PostalCodeSearchBox-input']", opts.ZipCode),
				click("button[aria-label='Search']"),
				click(fmt.Sprintf("button[data-testid='SelectStore-%s']", opts.StoreID)),
				wait(time.Second),
				gotoURL(base + "/search?query=milk&searchType=default_search"),
			},
			CaptureURL:    harrisTeeterPath,
			KeepHeaders:   []string{LAFHeader, "x-facility-id", "x-modality", "x-geo-location-v1", "user-agent"},
			StaticHeaders: map[string]string{"x-kroger-channel": "WEB"},
			CookieDomain:  "harristeeter.com",
		}, nil
	case GiantName:
		base := orDefault(opts.BaseURL, giantBaseURL)
		return SessionProfile{
			Retailer:     name,
			StartURL:     base,
			Steps:        []domain.InteractiveStep{gotoURL(base + "/product-search/milk?semanticSearch=false")},
			CaptureURL:   giantProductsPrefix,
			KeepHeaders:  []string{"user-agent"},
			PathParam:    GiantProductsPathParam,
			CookieDomain: "giantfood.com",
		}, nil
	case SafewayName:
		base := orDefault(opts.BaseURL, safewayBaseURL)
		return SessionProfile{
			Retailer: name,
			StartURL: base,
			Steps: []domain.InteractiveStep{
				click(`div[id="openFulfillmentModalButton"]`),
				fill("input[data-qa='hmpg-flfllmntmdl-zpcdtxtbx']", opts.ZipCode),
				{Action: "press", Selector: "input[data-qa='hmpg-flfllmntmdl-zpcdtxtbx']", Value: "Enter"},
				click(fmt.Sprintf(`a[aria-describedby*="address_%s"]`, opts.StoreID)),
				wait(time.Second),
				gotoURL(fmt.Sprintf("%s/shop/aisles/bread-bakery/sandwich-breads.html?sort=&page=1&loc=%s", base, opts.StoreID)),
			},
			CaptureURL:    safewayAislePath,
			KeepHeaders:   []string{SafewaySubscriptionHeader, "user-agent", "referer"},
			CaptureParams: true,
			CookieDomain:  "safeway.com",
		}, nil
	case WholeFoodsName:
		base := orDefault(opts.BaseURL, wholeFoodsBaseURL)
		return SessionProfile{
			Retailer: name,
			StartURL: base,
			Steps: []domain.InteractiveStep{
				click("text='Find a Store' >> visible=true"),
				{Action: "fill", Frame: storesModal, Selector: "#store-finder-search-bar", Value: opts.ZipCode, Timeout: 10 * time.Second},
				{Action: "press", Frame: storesModal, Selector: "#store-finder-search-bar", Value: "Enter"},
				{Action: "click", Frame: storesModal, Selector: "span.w-makethismystore[tabindex='0']", Timeout: 5 * time.Second},
				click("button.modalCloseButtonStyle"),
				wait(2 * time.Second),
			},
			CookieDomain: "wholefoodsmarket.com",
		}, nil
	default:
		return SessionProfile{}, fmt.Errorf("%w: %s", domain.ErrUnknownRetailer, name)
	}
}

const storesModal = "iframe[title='stores-modal']"

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
