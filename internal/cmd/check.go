package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/torctl/internal/style"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check whether a newer daemon build is available",
	Long: `Compare the installed daemon version with the newest build on the
distribution site. Nothing is downloaded.

When no daemon is installed the distribution site is not contacted.`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, _ []string) error {
	cfg := settings.cfg
	sup := newSupervisor(cfg)
	upd := newUpdater(cfg, sup, newResolver(cfg))

	st, err := upd.Check(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if st.Installed == "" {
		fmt.Fprintf(out, "%s No daemon installed in %s\n", style.WarningPrefix, cfg.InstallDir)
		fmt.Fprintf(out, "  Run %s to install it.\n", style.Bold.Render("torctl install"))
		return nil
	}

	fmt.Fprintf(out, "Installed: %s\n", st.Installed)
	fmt.Fprintf(out, "Latest:    %s %s\n", st.Latest.Version, style.Dim.Render("(release "+st.Latest.Name+")"))
	if st.UpdateNeeded {
		fmt.Fprintf(out, "%s Update available. Run %s.\n", style.ArrowPrefix, style.Bold.Render("torctl install"))
	} else {
		fmt.Fprintf(out, "%s Up to date\n", style.SuccessPrefix)
	}
	return nil
}
