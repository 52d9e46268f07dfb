package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/shelfscan/backend/config"
	"github.com/shelfscan/backend/internal/cli/logger"
	"github.com/shelfscan/backend/internal/domain"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version information injected via main package
var (
	Version   string
	GitCommit string
	BuildDate string
)

// app carries state shared by every command of one invocation
type app struct {
	v        *viper.Viper
	cfgFile  string
	verbose  bool
	noLogs   bool
	cfg      *config.Config
	closeLog func()

	stdin  io.Reader
	stdout io.Writer
}

// Execute runs the shelfscan command line
func Execute() error {
	return NewRootCommand().Execute()
}

// NewRootCommand builds the command tree
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{v: viper.New(), stdin: os.Stdin, stdout: os.Stdout, closeLog: func() {}})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "shelfscan",
		Short: "Grocery price scraper and comparison tool",
		Long: color.CyanString(`shelfscan - scrape grocery retailer prices and compare them with your price sheet`) + `

Batch retailers (giant, harristeeter) are looked up by UPC with a resumable checkpoint.
Catalogue retailers (safeway, wholefoods) are crawled category by category and matched offline.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.closeLog()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./shelfscan.yaml or $HOME/.shelfscan/shelfscan.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "verbose output (per-row match logging)")
	root.PersistentFlags().String("data-dir", "", "directory for checkpoints, catalogues and reports")
	root.PersistentFlags().BoolVar(&a.noLogs, "no-log-file", false, "log to stdout only")

	// Bind flags to viper
	a.v.BindPFlag("data_dir", root.PersistentFlags().Lookup("data-dir"))
	a.v.BindPFlag("match.debug", root.PersistentFlags().Lookup("verbose"))

	root.AddCommand(
		a.newScrapeCommand(),
		a.newStatusCommand(),
		a.newResetCommand(),
		a.newExportCommand(),
		a.newCrawlCommand(),
		a.newMatchCommand(),
		a.newBothCommand(),
		a.newServeCommand(),
		newVersionCommand(),
	)
	return root
}

// setup loads configuration and starts file logging before any command runs
func (a *app) setup(cmd *cobra.Command) error {
	if cmd.Name() == "version" {
		return nil
	}

	cfg, err := config.Load(a.v, a.cfgFile)
	if err != nil {
		return err
	}
	a.cfg = cfg

	if !a.noLogs {
		path, closeLog := logger.Setup(cfg.LogDir, cmd.Name())
		a.closeLog = closeLog
		if a.verbose && path != "" {
			fmt.Fprintln(a.stdout, "Logging to", path)
		}
	}
	if a.verbose {
		if used := a.v.ConfigFileUsed(); used != "" {
			fmt.Fprintln(a.stdout, "Using config file:", used)
		}
	}
	return nil
}

// signalContext is cancelled on Ctrl-C so loops stop between batches and keep their checkpoint
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// describeError turns a classified failure into operator guidance
func describeError(err error) string {
	var se *domain.ScrapeError
	if errors.As(err, &se) {
		return se.UserMessage()
	}
	return err.Error()
}
