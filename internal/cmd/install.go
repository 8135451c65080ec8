package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/torctl/internal/exitcode"
	"github.com/steveyegge/torctl/internal/release"
	"github.com/steveyegge/torctl/internal/style"
	"github.com/steveyegge/torctl/internal/supervisor"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Install or update the daemon",
	Long: `Download the newest daemon build and extract it into the install
directory. Running daemons of this installation are stopped first.

Extraction overlays the existing files in place. An interrupted install
can leave a mix of old and new files; run install again to repair it.

Examples:
  torctl install             # Install, or update when a newer build exists
  torctl install --force     # Reinstall even when up to date
  torctl install --dry-run   # Show what would be downloaded`,
	Args: cobra.NoArgs,
	RunE: runInstall,
}

var (
	installForce  bool
	installDryRun bool
)

func init() {
	installCmd.Flags().BoolVar(&installForce, "force", false, "Install even if the installed version is current")
	installCmd.Flags().BoolVar(&installDryRun, "dry-run", false, "Resolve the release without downloading or changing anything")

	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, _ []string) error {
	cfg := settings.cfg
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	sup := newSupervisor(cfg)
	res := newResolver(cfg)
	upd := newUpdater(cfg, sup, res)

	if installDryRun {
		rel, err := res.ResolveLatest(ctx, cfg.PlatformValue())
		if err != nil {
			return err
		}
		if rel.IsZero() {
			return exitcode.Wrapf(exitcode.ErrNotFound, release.ErrNoMatchingBuild, "no %s build", cfg.PlatformValue())
		}
		fmt.Fprintf(out, "Would download %s\n", res.ArchiveURL(rel, cfg.PlatformValue()))
		fmt.Fprintf(out, "Would extract into %s\n", cfg.InstallDir)
		return nil
	}

	return withInstallLock(cfg, func() error {
		if !installForce {
			st, err := upd.Check(ctx)
			if err != nil {
				return err
			}
			if !st.UpdateNeeded {
				fmt.Fprintf(out, "%s Version %s is already installed\n", style.SuccessPrefix, st.Installed)
				return nil
			}
		}

		result, err := upd.Install(ctx)
		printTerminated(cmd, result.Terminated)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s Installed %s %s\n", style.SuccessPrefix,
			result.Release.Version, style.Dim.Render(fmt.Sprintf("(release %s, %d files)", result.Release.Name, result.Files)))
		return nil
	})
}

func printTerminated(cmd *cobra.Command, rep supervisor.TerminateReport) {
	out := cmd.OutOrStdout()
	for _, r := range rep.Results {
		switch {
		case r.Err != nil:
			fmt.Fprintf(out, "%s Could not stop pid %d: %v\n", style.WarningPrefix, r.PID, r.Err)
		case r.Killed:
			fmt.Fprintf(out, "%s Killed daemon pid %d\n", style.ArrowPrefix, r.PID)
		default:
			fmt.Fprintf(out, "%s Stopped daemon pid %d\n", style.ArrowPrefix, r.PID)
		}
	}
}
