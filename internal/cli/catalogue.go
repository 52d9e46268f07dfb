package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/excel"
	"github.com/shelfscan/backend/internal/infrastructure/retailer"
	"github.com/shelfscan/backend/internal/usecase"
	"github.com/spf13/cobra"
)

type matchOptions struct {
	retailer string
	input    string
	output   string
	byUPC    bool
}

func (a *app) newCrawlCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl the catalogue of a catalogue retailer into the local dump",
		Long: `Page through every category of a catalogue retailer and append its products to
<data-dir>/<retailer>/catalogue_dump.json. Completed categories are remembered, so a crawl
that was interrupted or throttled resumes with the next category.`,
		Example: `  shelfscan crawl --retailer safeway
  shelfscan crawl --retailer wholefoods`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return a.runCrawl(ctx, name)
		},
	}
	cmd.Flags().StringVarP(&name, "retailer", "r", "", "catalogue retailer: safeway or wholefoods")
	cmd.Flags().Int("max-items", 0, "stop each category after this many products (0 = unlimited)")
	cmd.MarkFlagRequired("retailer")

	a.v.BindPFlag("crawl.max_items_per_category", cmd.Flags().Lookup("max-items"))
	return cmd
}

func (a *app) runCrawl(ctx context.Context, name string) error {
	if err := requireMode(name, retailer.ModeCatalogue); err != nil {
		return err
	}
	repos, err := a.repositories(name)
	if err != nil {
		return err
	}
	pager, err := retailer.NewCataloguePager(name, a.retailerOptions(name))
	if err != nil {
		return err
	}
	sessions, closeSessions, err := a.sessionProvider(name)
	if err != nil {
		return err
	}
	defer closeSessions()

	crawler := usecase.NewCatalogueCrawler(usecase.CrawlConfig{
		MaxItemsPerCategory: a.cfg.Crawl.MaxItemsPerCategory,
		PagesPerSecond:      a.cfg.Crawl.PagesPerSecond,
		MaxSessionRenewals:  a.cfg.Crawl.MaxSessionRenewals,
	}, usecase.CrawlDeps{
		Pager:     pager,
		Sessions:  sessions,
		Progress:  repos.Progress,
		Catalogue: repos.Catalogue,
	})

	color.New(color.FgGreen).Fprintf(a.stdout, "Crawling %s catalogue\n", name)
	summary, err := crawler.Run(ctx)
	if summary != nil {
		label := color.New(color.FgCyan)
		label.Fprint(a.stdout, "Categories: ")
		fmt.Fprintf(a.stdout, "%d total, %d crawled, %d skipped, %d failed\n",
			summary.Categories, summary.Completed, summary.Skipped, summary.Failed)
		label.Fprint(a.stdout, "Products:   ")
		fmt.Fprintf(a.stdout, "%d in catalogue, %d new\n", summary.Products, summary.Added)
	}
	if err != nil {
		color.New(color.FgRed).Fprintln(a.stdout, describeError(err))
		return err
	}
	if ctx.Err() != nil {
		color.New(color.FgYellow).Fprintln(a.stdout, "Interrupted; run crawl again to resume")
	}
	return nil
}

func (a *app) newMatchCommand() *cobra.Command {
	opts := &matchOptions{}
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Compare a price sheet with scraped retailer prices and write a comparison report",
		Long: `Match every row of the reference sheet against what was scraped from a retailer and write
a comparison workbook with price deltas. For catalogue retailers rows are matched against the
catalogue dump by fuzzy name within the same size and brand, or by UPC with --by-upc. For batch
retailers each row is joined to its own checkpointed lookup.`,
		Example: `  shelfscan match --retailer wholefoods --input prices.xlsx
  shelfscan match --retailer giant --input prices.xlsx
  shelfscan match --retailer safeway --input prices.xlsx --by-upc --output safeway-comparison.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return a.runMatch(ctx, opts)
		},
	}
	addMatchFlags(cmd, opts)
	return cmd
}

func addMatchFlags(cmd *cobra.Command, opts *matchOptions) {
	cmd.Flags().StringVarP(&opts.retailer, "retailer", "r", "", "retailer: giant, harristeeter, safeway or wholefoods")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "reference price sheet (.xlsx)")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "comparison workbook (default: <data-dir>/<retailer>/comparison.xlsx)")
	cmd.Flags().BoolVar(&opts.byUPC, "by-upc", false, "join on UPC instead of fuzzy name matching (catalogue retailers)")
	cmd.MarkFlagRequired("retailer")
	cmd.MarkFlagRequired("input")
}

func (a *app) runMatch(ctx context.Context, opts *matchOptions) error {
	mode, err := modeOf(opts.retailer)
	if err != nil {
		return err
	}
	repos, err := a.repositories(opts.retailer)
	if err != nil {
		return err
	}
	matcher := usecase.NewMatchingService(usecase.MatchConfig{
		BrandThreshold:     a.cfg.Match.BrandThreshold,
		SlugThreshold:      a.cfg.Match.SlugThreshold,
		EnableDebugLogging: a.cfg.Match.Debug,
	})

	var (
		refs    []domain.ReferenceRow
		idx     *usecase.CatalogueIndex
		matches []domain.MatchResult
	)
	if mode == retailer.ModeBatch {
		refs, idx, matches, err = a.matchCheckpoint(opts, repos.Checkpoint, matcher)
	} else {
		refs, idx, matches, err = a.matchCatalogue(ctx, opts, repos.Catalogue, matcher)
	}
	if err != nil {
		return err
	}

	rows, summary := usecase.NewComparisonService(a.cfg.Match.DeltaThreshold).Compare(refs, idx, matches)

	path := a.outputPath(opts.retailer, opts.output, comparisonFileName)
	if err := excel.WriteReport(path, rows, excel.ReportOptions{HighlightScore: a.cfg.Match.HighlightScore}); err != nil {
		return err
	}
	a.recordHistory(ctx, opts.retailer, rows)

	label := color.New(color.FgCyan)
	label.Fprint(a.stdout, "Matched:  ")
	fmt.Fprintf(a.stdout, "%d/%d (%d rejected, %d unmatched)\n", summary.Matched, summary.Total, summary.Rejected, summary.Unmatched)
	label.Fprint(a.stdout, "Flagged:  ")
	fmt.Fprintf(a.stdout, "%d price differences above %.0f%%\n", summary.Flagged, a.cfg.Match.DeltaThreshold*100)
	color.New(color.FgGreen).Fprintf(a.stdout, "Report written to %s\n", path)
	return nil
}

// matchCatalogue matches the sheet against a crawled catalogue dump, by fuzzy name or by UPC
func (a *app) matchCatalogue(ctx context.Context, opts *matchOptions, repo domain.CatalogueRepository, matcher *usecase.MatchingService) ([]domain.ReferenceRow, *usecase.CatalogueIndex, []domain.MatchResult, error) {
	dump, err := repo.Load()
	if errors.Is(err, domain.ErrCatalogueNotFound) {
		return nil, nil, nil, fmt.Errorf("%w; run 'shelfscan crawl --retailer %s' first", err, opts.retailer)
	}
	if err != nil {
		return nil, nil, nil, err
	}

	required := excel.MatchColumns
	if opts.byUPC {
		required = excel.UPCMatchColumns
	}
	refs, err := a.reader().LoadReference(opts.input, required)
	if err != nil {
		return nil, nil, nil, err
	}

	idx := matcher.BuildIndex(dump.Products)
	if opts.byUPC {
		return refs, idx, matcher.MatchByUPC(refs, idx), nil
	}
	matches, err := matcher.MatchAll(ctx, refs, idx)
	return refs, idx, matches, err
}

// matchCheckpoint joins the sheet to the results of a batch scrape row by row
func (a *app) matchCheckpoint(opts *matchOptions, store domain.CheckpointRepository, matcher *usecase.MatchingService) ([]domain.ReferenceRow, *usecase.CatalogueIndex, []domain.MatchResult, error) {
	record, err := store.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if record.CompletedCount == 0 {
		return nil, nil, nil, fmt.Errorf("no scrape results for %s; run 'shelfscan scrape --retailer %s --input %s' first",
			opts.retailer, opts.retailer, opts.input)
	}
	refs, err := a.reader().LoadReference(opts.input, excel.UPCMatchColumns)
	if err != nil {
		return nil, nil, nil, err
	}
	idx, matches := matcher.MatchCheckpoint(refs, record)
	return refs, idx, matches, nil
}

func (a *app) newBothCommand() *cobra.Command {
	opts := &matchOptions{}
	cmd := &cobra.Command{
		Use:   "both",
		Short: "Scrape, then compare",
		Long: `For a catalogue retailer: crawl the catalogue, then match the price sheet against it.
For a batch retailer: scrape every UPC of the price sheet, then compare the scraped prices with it.`,
		Example: `  shelfscan both --retailer wholefoods --input prices.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			mode, err := modeOf(opts.retailer)
			if err != nil {
				return err
			}
			if mode == retailer.ModeBatch {
				err = a.runScrape(ctx, &scrapeOptions{retailer: opts.retailer, input: opts.input})
			} else {
				err = a.runCrawl(ctx, opts.retailer)
			}
			if err != nil {
				return err
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return a.runMatch(ctx, opts)
		},
	}
	addMatchFlags(cmd, opts)
	return cmd
}
