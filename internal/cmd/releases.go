package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/torctl/internal/exitcode"
)

var releasesCmd = &cobra.Command{
	Use:   "releases",
	Short: "List releases on the distribution site, newest first",
	Args:  cobra.NoArgs,
	RunE:  runReleases,
}

var releasesLimit int

func init() {
	releasesCmd.Flags().IntVarP(&releasesLimit, "limit", "n", 10, "Maximum number of releases to list (0 for all)")

	rootCmd.AddCommand(releasesCmd)
}

func runReleases(cmd *cobra.Command, _ []string) error {
	if releasesLimit < 0 {
		return exitcode.Usage("--limit must not be negative")
	}

	versions, err := newResolver(settings.cfg).Releases(cmd.Context())
	if err != nil {
		return err
	}
	if releasesLimit > 0 && len(versions) > releasesLimit {
		versions = versions[:releasesLimit]
	}
	out := cmd.OutOrStdout()
	for _, v := range versions {
		fmt.Fprintln(out, v.String())
	}
	return nil
}
