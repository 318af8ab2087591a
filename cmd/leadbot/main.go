package main

import (
	"os"

	_ "time/tzdata"

	"github.com/aatumaykin/leadbot/internal/version"
)

// Set with -ldflags "-X main.Version=...". Empty values keep the
// placeholders from the version package.
var (
	Version   string
	BuildTime string
	GitCommit string
	GoVersion string
)

func init() {
	version.SetInfo(Version, BuildTime, GitCommit, GoVersion)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
