package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/aatumaykin/leadbot/internal/version"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		info := version.Current()
		return render(cmd.OutOrStdout(), info, func(w io.Writer) error {
			fmt.Fprintf(w, "leadbot %s\n", info.Version)
			fmt.Fprintf(w, "  commit:     %s\n", info.GitCommit)
			fmt.Fprintf(w, "  built:      %s\n", info.BuildTime)
			fmt.Fprintf(w, "  go version: %s\n", info.GoVersion)
			return nil
		})
	},
}
