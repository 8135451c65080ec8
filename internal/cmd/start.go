package cmd

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/steveyegge/torctl/internal/client"
	"github.com/steveyegge/torctl/internal/style"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon and keep it running until interrupted",
	Long: `Start the installed daemon, or attach to one that is already running,
authenticate on its control port and apply the client settings.

The command prints the SOCKS address and waits for Ctrl-C. A daemon it
started is stopped on exit; a daemon it attached to keeps running.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

var startKillExisting bool

func init() {
	startCmd.Flags().BoolVar(&startKillExisting, "kill-existing", false, "Stop a running daemon and start a fresh one")

	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, _ []string) error {
	cfg := settings.cfg
	if err := cfg.RequireSecret(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	c, err := newManager(cfg, newSupervisor(cfg)).Initialize(ctx, client.InitOptions{KillExisting: startKillExisting})
	if err != nil {
		return err
	}
	defer func() {
		if err := c.Close(); err != nil {
			settings.logger.Warn("shutting down", "error", err)
		}
	}()

	h := c.Handle()
	out := cmd.OutOrStdout()
	mode := "attached to running daemon"
	if h.Spawned {
		mode = fmt.Sprintf("started daemon pid %d", h.PID)
	}
	fmt.Fprintf(out, "%s %s\n", style.SuccessPrefix, mode)
	if info, err := c.GetInfo(ctx, "version"); err == nil {
		fmt.Fprintf(out, "  Version: %s\n", info["version"])
	}
	fmt.Fprintf(out, "  SOCKS:   %s\n", style.Bold.Render("socks5://"+h.SocksAddr()))
	fmt.Fprintf(out, "  Control: %s\n", h.ControlAddr())
	fmt.Fprintln(out, style.Dim.Render("Press Ctrl-C to stop."))

	select {
	case <-ctx.Done():
		fmt.Fprintf(out, "%s Shutting down\n", style.ArrowPrefix)
		return nil
	case <-h.Done():
		if err := h.ExitErr(); err != nil {
			return fmt.Errorf("daemon exited: %w", err)
		}
		return errors.New("daemon exited")
	}
}
