package cmd

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/steveyegge/torctl/internal/config"
	"github.com/steveyegge/torctl/internal/style"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Generate a random control-port secret",
	Long: `Print a new random secret for the daemon's control port.

torctl has no built-in secret. Store the generated value as control.secret
in the config file or export it as ` + config.EnvControlSecret + `.`,
	Args: cobra.NoArgs,
	RunE: runSecret,
}

var secretQuiet bool

func init() {
	secretCmd.Flags().BoolVarP(&secretQuiet, "quiet", "q", false, "Print only the secret")

	rootCmd.AddCommand(secretCmd)
}

// newSecret joins two random UUIDs without dashes.
func newSecret() (string, error) {
	a, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	b, err := uuid.NewRandom()
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(a.String()+b.String(), "-", ""), nil
}

func runSecret(cmd *cobra.Command, _ []string) error {
	secret, err := newSecret()
	if err != nil {
		return fmt.Errorf("generating secret: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, secret)
	if secretQuiet {
		return nil
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, style.Dim.Render("Add it to "+config.DefaultPath()+":"))
	fmt.Fprintf(out, "  [control]\n  secret = %q\n", secret)
	fmt.Fprintln(out, style.Dim.Render("or export "+config.EnvControlSecret+"="+secret))
	return nil
}
