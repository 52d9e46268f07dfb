package main

import (
	"os"

	"github.com/shelfscan/backend/internal/cli"
)

// Set via -ldflags at build time
var (
	version   = "dev"
	gitCommit = ""
	buildDate = ""
)

func main() {
	cli.SetVersionInfo(version, gitCommit, buildDate)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
