package cli

import (
	"fmt"
	"runtime"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			title := color.New(color.FgCyan, color.Bold)
			label := color.New(color.FgGreen)
			out := cmd.OutOrStdout()

			title.Fprintf(out, "shelfscan %s\n", orUnknown(Version, "dev"))
			fmt.Fprintln(out)

			label.Fprint(out, "Git commit: ")
			fmt.Fprintln(out, orUnknown(GitCommit, "unknown"))

			label.Fprint(out, "Built:      ")
			fmt.Fprintln(out, orUnknown(BuildDate, "unknown"))

			label.Fprint(out, "Go version: ")
			fmt.Fprintln(out, runtime.Version())

			label.Fprint(out, "OS/Arch:    ")
			fmt.Fprintf(out, "%s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

func orUnknown(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// SetVersionInfo sets the version information from the main package
func SetVersionInfo(version, gitCommit, buildDate string) {
	Version = version
	GitCommit = gitCommit
	BuildDate = buildDate
}
