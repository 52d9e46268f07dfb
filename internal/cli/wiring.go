package cli

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/browser"
	"github.com/shelfscan/backend/internal/infrastructure/cache"
	"github.com/shelfscan/backend/internal/infrastructure/excel"
	"github.com/shelfscan/backend/internal/infrastructure/history"
	"github.com/shelfscan/backend/internal/infrastructure/retailer"
	"github.com/shelfscan/backend/internal/usecase"
)

// Output file names inside a retailer data directory
const (
	resultsFileName    = "results.xlsx"
	comparisonFileName = "comparison.xlsx"
)

func (a *app) repositories(name string) (*usecase.RetailerRepositories, error) {
	return retailer.Repositories(a.cfg.DataDir)(name)
}

// modeOf resolves the workflow of a retailer, listing the known ones on failure
func modeOf(name string) (retailer.Mode, error) {
	mode, err := retailer.ModeOf(name)
	if err != nil {
		return "", fmt.Errorf("%w (known: %v)", err, retailer.Names())
	}
	return mode, nil
}

// requireMode fails unless the retailer supports the wanted workflow
func requireMode(name string, want retailer.Mode) error {
	mode, err := modeOf(name)
	if err != nil {
		return err
	}
	if mode != want {
		return fmt.Errorf("%s is a %s retailer, this command needs a %s retailer", name, mode, want)
	}
	return nil
}

func (a *app) retailerOptions(name string) retailer.Options {
	rc := a.cfg.Retailer(name)
	return retailer.Options{
		BaseURL:        rc.BaseURL,
		Timeout:        a.cfg.Session.RequestTimeout,
		ZipCode:        rc.ZipCode,
		StoreID:        rc.StoreID,
		CategoriesPath: rc.CategoriesPath,
		Categories:     rc.Categories,
	}
}

func (a *app) reader() *excel.Reader {
	return excel.NewReader(a.cfg.Scrape.Sheet)
}

func (a *app) outputPath(name, flagValue, fileName string) string {
	if flagValue != "" {
		return flagValue
	}
	return filepath.Join(a.cfg.RetailerDir(name), fileName)
}

// sessionProvider wires the headless browser, the credential cache and the retailer profile.
// The returned func releases the browser.
func (a *app) sessionProvider(name string) (domain.SessionProvider, func(), error) {
	profile, err := retailer.Profile(name, a.retailerOptions(name))
	if err != nil {
		return nil, nil, err
	}

	fetcher := browser.NewFetcher(browser.Config{
		Headless:  a.cfg.Session.Headless,
		UserAgent: a.cfg.Session.UserAgent,
	})
	sessions := cache.NewSessionCache()
	provider := retailer.NewBrowserSessionProvider(profile, fetcher, sessions, a.cfg.Session.TTL, a.cfg.Session.CaptureTimeout)

	cleanup := func() {
		if err := provider.Close(); err != nil {
			log.Printf("[SESSION] Close error: %v", err)
		}
		if err := fetcher.Close(); err != nil {
			log.Printf("[BROWSER] Close error: %v", err)
		}
		sessions.Close()
	}
	return provider, cleanup, nil
}

// recordHistory stores a comparison run when a history database is configured. Failures are
// logged and never fail the run; the report is already on disk.
func (a *app) recordHistory(ctx context.Context, name string, rows []domain.ComparisonRow) {
	if a.cfg.History.DatabaseURL == "" {
		return
	}
	store, err := history.Open(ctx, a.cfg.History.DatabaseURL, a.cfg.History.MaxConns)
	if err != nil {
		log.Printf("[HISTORY] Could not open history database: %v", err)
		return
	}
	defer store.Close()

	var repo domain.HistoryRepository = store
	if err := repo.SaveComparison(ctx, name, rows, time.Now()); err != nil {
		log.Printf("[HISTORY] Could not record comparison: %v", err)
	}
}
