package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/steveyegge/torctl/internal/style"
	"github.com/steveyegge/torctl/internal/supervisor"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the installed version and running daemon processes",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	cfg := settings.cfg
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	sup := newSupervisor(cfg)

	fmt.Fprintf(out, "Binary:    %s\n", sup.Binary())
	if !sup.Installed() {
		fmt.Fprintf(out, "Installed: %s\n", style.Warning.Render("no"))
	} else if v, err := sup.InstalledVersion(ctx); err != nil {
		fmt.Fprintf(out, "Installed: %s\n", style.Warning.Render("yes, version unreadable: "+err.Error()))
	} else {
		fmt.Fprintf(out, "Installed: %s\n", v)
	}

	report, err := sup.Scan(ctx)
	if err != nil {
		return err
	}

	matches := report.Matches()
	if len(matches) == 0 {
		fmt.Fprintf(out, "Running:   %s\n", style.Dim.Render("no"))
	} else {
		fmt.Fprintf(out, "Running:   %s\n", style.Success.Render(strconv.Itoa(len(matches))+" process(es)"))
	}

	if len(report.Results) > 0 {
		fmt.Fprintln(out)
		fmt.Fprint(out, scanTable(report).Render())
	}
	if denied := report.Count(supervisor.InspectionDenied); denied > 0 {
		fmt.Fprintf(out, "%s %d process(es) with a matching name could not be inspected\n", style.WarningPrefix, denied)
	}
	return nil
}

func scanTable(report supervisor.ScanReport) *style.Table {
	tbl := style.NewTable(
		style.Column{Name: "PID", Width: 8, Align: style.AlignRight},
		style.Column{Name: "OUTCOME", Width: 12},
		style.Column{Name: "EXECUTABLE", Width: 60},
	)
	for _, r := range report.Results {
		exe := r.Exe
		if r.Err != nil {
			exe = r.Err.Error()
		}
		tbl.AddRow(strconv.Itoa(int(r.PID)), r.Outcome.String(), exe)
	}
	return tbl
}
