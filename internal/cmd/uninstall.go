package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/steveyegge/torctl/internal/style"
)

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop running daemons and remove the installation",
	Args:  cobra.NoArgs,
	RunE:  runUninstall,
}

func init() {
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, _ []string) error {
	cfg := settings.cfg
	sup := newSupervisor(cfg)
	upd := newUpdater(cfg, sup, newResolver(cfg))

	return withInstallLock(cfg, func() error {
		if err := upd.Uninstall(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s Removed %s\n", style.SuccessPrefix, cfg.InstallDir)
		return nil
	})
}
