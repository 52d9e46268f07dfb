package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/shelfscan/backend/internal/domain"
	"github.com/shelfscan/backend/internal/infrastructure/excel"
	"github.com/shelfscan/backend/internal/infrastructure/retailer"
	"github.com/shelfscan/backend/internal/usecase"
	"github.com/spf13/cobra"
)

type scrapeOptions struct {
	retailer  string
	input     string
	output    string
	batchSize int
}

func (a *app) newScrapeCommand() *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Look up every UPC of a price sheet at a batch retailer",
		Long: `Look up the UPCs of a reference sheet in batches. Progress is checkpointed after every batch,
so an interrupted run resumes where it stopped. Results are exported next to the checkpoint.`,
		Example: `  shelfscan scrape --retailer harristeeter --input prices.xlsx
  shelfscan scrape --retailer giant --input prices.xlsx --batch-size 5 --max-requests 400`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return a.runScrape(ctx, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.retailer, "retailer", "r", "", "batch retailer: giant or harristeeter")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "reference price sheet (.xlsx) with a UPC column")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "results workbook (default: <data-dir>/<retailer>/results.xlsx)")
	cmd.Flags().IntVar(&opts.batchSize, "batch-size", 0, "items per request (default: retailer batch size)")
	cmd.Flags().Int("max-requests", 0, "stop the session after this many lookups (0 = unlimited)")
	cmd.Flags().String("sheet", "", "sheet of the reference workbook (default: first sheet)")
	cmd.MarkFlagRequired("retailer")
	cmd.MarkFlagRequired("input")

	a.v.BindPFlag("scrape.max_requests", cmd.Flags().Lookup("max-requests"))
	a.v.BindPFlag("scrape.sheet", cmd.Flags().Lookup("sheet"))
	return cmd
}

func (a *app) runScrape(ctx context.Context, opts *scrapeOptions) error {
	if err := requireMode(opts.retailer, retailer.ModeBatch); err != nil {
		return err
	}

	reader := a.reader()
	refs, err := reader.LoadReference(opts.input, excel.ScrapeColumns)
	if err != nil {
		return err
	}
	items, rows := domain.BuildWorkItems(refs)
	if len(items) == 0 {
		return domain.NewConfigurationError(fmt.Sprintf("no row of %s has a UPC", opts.input), nil)
	}

	repos, err := a.repositories(opts.retailer)
	if err != nil {
		return err
	}
	fetcher, err := retailer.NewBatchFetcher(opts.retailer, a.retailerOptions(opts.retailer))
	if err != nil {
		return err
	}
	sessions, closeSessions, err := a.sessionProvider(opts.retailer)
	if err != nil {
		return err
	}
	defer closeSessions()

	s := a.cfg.Scrape
	batchSize := a.cfg.BatchSize(opts.retailer)
	if opts.batchSize > 0 {
		batchSize = opts.batchSize
	}
	controller := usecase.NewScrapeController(usecase.ScrapeConfig{
		BatchSize:          batchSize,
		PauseThreshold:     s.PauseThreshold,
		BatchTimeout:       s.BatchTimeout,
		InterBatchMin:      s.InterBatchMin,
		InterBatchMax:      s.InterBatchMax,
		FailureDelay:       s.FailureDelay,
		MaxSessionRenewals: s.MaxSessionRenewals,
		EmptyPolicy:        usecase.EmptyPolicy(s.EmptyPolicy),
	}, usecase.ScrapeDeps{
		Store:    repos.Checkpoint,
		Fetcher:  fetcher,
		Sessions: sessions,
		Operator: NewPrompt(a.stdin, a.stdout),
		Limiter:  usecase.NewRateLimiter(s.BaseDelay),
		Budget:   usecase.NewSessionBudget(usecase.SessionBudgetConfig{MaxRequests: s.MaxRequests, Timeout: s.Timeout}),
	})

	color.New(color.FgGreen).Fprintf(a.stdout, "Scraping %d UPCs from %s at %s\n", len(items), opts.input, opts.retailer)
	summary, runErr := controller.Run(ctx, items)
	if summary != nil {
		a.printRunSummary(summary)
	}

	// Export whatever is checkpointed, even after a failed or interrupted run
	if err := a.exportResults(opts.retailer, opts.input, opts.output, rows, repos.Checkpoint); err != nil {
		if runErr == nil {
			return err
		}
		color.New(color.FgRed).Fprintf(a.stdout, "Export failed: %v\n", err)
	}

	if runErr != nil {
		color.New(color.FgRed).Fprintln(a.stdout, describeError(runErr))
		return runErr
	}
	return nil
}

func (a *app) printRunSummary(s *usecase.RunSummary) {
	label := color.New(color.FgCyan)
	label.Fprint(a.stdout, "Stopped:   ")
	fmt.Fprintln(a.stdout, s.StopReason)
	label.Fprint(a.stdout, "Progress:  ")
	fmt.Fprintf(a.stdout, "%d/%d (%.1f%%), %d remaining\n", s.Completed, s.Total, s.Percentage, s.Remaining)
	label.Fprint(a.stdout, "Batches:   ")
	fmt.Fprintf(a.stdout, "%d (%d failed, %d session renewals)\n", s.Batches, s.Failures, s.Renewals)
}

func (a *app) exportResults(name, input, output string, rows []domain.ReferenceRow, store domain.CheckpointRepository) error {
	record, err := store.Load()
	if err != nil {
		return err
	}
	path := a.outputPath(name, output, resultsFileName)
	summary, err := a.reader().ExportResults(input, path, rows, record)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprintf(a.stdout, "Results written to %s (%d found, %d not found, %d pending)\n",
		path, summary.Success, summary.Failed, summary.Pending)
	return nil
}

func (a *app) newExportCommand() *cobra.Command {
	opts := &scrapeOptions{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write checkpointed scrape results into a copy of the price sheet",
		Example: `  shelfscan export --retailer giant --input prices.xlsx --output giant-prices.xlsx`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireMode(opts.retailer, retailer.ModeBatch); err != nil {
				return err
			}
			refs, err := a.reader().LoadReference(opts.input, excel.ScrapeColumns)
			if err != nil {
				return err
			}
			_, rows := domain.BuildWorkItems(refs)
			repos, err := a.repositories(opts.retailer)
			if err != nil {
				return err
			}
			return a.exportResults(opts.retailer, opts.input, opts.output, rows, repos.Checkpoint)
		},
	}
	cmd.Flags().StringVarP(&opts.retailer, "retailer", "r", "", "batch retailer: giant or harristeeter")
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "reference price sheet the checkpoint was built from")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "results workbook (default: <data-dir>/<retailer>/results.xlsx)")
	cmd.MarkFlagRequired("retailer")
	cmd.MarkFlagRequired("input")
	return cmd
}

func (a *app) newStatusCommand() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show scrape and crawl progress",
		Example: `  shelfscan status
  shelfscan status --retailer harristeeter`,
		RunE: func(cmd *cobra.Command, args []string) error {
			names := retailer.Names()
			if name != "" {
				names = []string{name}
			}
			svc := usecase.NewStatusService(retailer.Repositories(a.cfg.DataDir))
			for _, n := range names {
				status, err := svc.Status(n)
				if err != nil {
					return err
				}
				a.printStatus(status)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "retailer", "r", "", "only this retailer")
	return cmd
}

func (a *app) printStatus(s *usecase.RetailerStatus) {
	title := color.New(color.FgCyan, color.Bold)
	title.Fprintf(a.stdout, "%s (%s)\n", s.Retailer, s.Mode)
	if s.Scrape != nil {
		if s.Scrape.Total == 0 {
			fmt.Fprintln(a.stdout, "  no scrape started")
		} else {
			fmt.Fprintf(a.stdout, "  completed %d/%d (%.1f%%), %d remaining, %d sessions\n",
				s.Scrape.Completed, s.Scrape.Total, s.Scrape.Percentage, s.Scrape.Remaining, s.Scrape.SessionCount)
		}
	}
	if s.Crawl != nil {
		fmt.Fprintf(a.stdout, "  %d categories crawled, %d failed, %d products in catalogue\n",
			s.Crawl.CompletedCategories, len(s.Crawl.FailedCategories), s.CatalogueProducts)
	}
}

func (a *app) newResetCommand() *cobra.Command {
	var name string
	var yes bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete the checkpoint or crawl progress of a retailer",
		RunE: func(cmd *cobra.Command, args []string) error {
			repos, err := a.repositories(name)
			if err != nil {
				return err
			}
			if !yes {
				color.New(color.FgYellow).Fprintf(a.stdout, "Reset all progress of %s? Type yes to confirm: ", name)
				line, _ := bufio.NewReader(a.stdin).ReadString('\n')
				if answer := strings.ToLower(strings.TrimSpace(line)); answer != "yes" && answer != "y" {
					fmt.Fprintln(a.stdout, "Aborted")
					return nil
				}
			}

			var errs []error
			if repos.Checkpoint != nil {
				errs = append(errs, repos.Checkpoint.Reset())
			}
			if repos.Progress != nil {
				errs = append(errs, repos.Progress.Reset())
			}
			if err := errors.Join(errs...); err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(a.stdout, "Progress of %s reset\n", name)
			return nil
		},
	}
	cmd.Flags().StringVarP(&name, "retailer", "r", "", "retailer to reset")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.MarkFlagRequired("retailer")
	return cmd
}
