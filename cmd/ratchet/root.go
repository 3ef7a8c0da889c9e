// ratchet is the workspace gatekeeper CLI: register canon artifacts into the
// decision ledger, evaluate the lifecycle resume gates, and emit completeness
// reports.
//
// Usage:
//
//	ratchet register [--dry-run] [--config=<path>]
//	ratchet guard [--expect-lifecycle=<id>]
//	ratchet gates [--report] [--json] [--block] [--expect-lifecycle=<id>]
//	ratchet serve
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"ratchet/internal/logging"
	"ratchet/internal/workspace"
)

// version is set at build time via -ldflags.
var version = "dev"

var rootFlags struct {
	root      string
	logLevel  string
	logFormat string
}

var rootCmd = &cobra.Command{
	Use:   "ratchet",
	Short: "Content-addressed artifact ledger and lifecycle resume gates",
	Long: "Ratchet registers canon artifacts into a content-addressed decision ledger\nand cross-checks the workspace lifecycle documents before work resumes.",
	SilenceUsage:  true,
	SilenceErrors: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(rootFlags.logLevel)
		if err != nil {
			return err
		}
		logging.Init(level, rootFlags.logFormat)
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.root, "root", ".", "Workspace root directory")
	pf.StringVar(&rootFlags.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	pf.StringVar(&rootFlags.logFormat, "log-format", "text", "Log format (text, json)")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(guardCmd)
	rootCmd.AddCommand(gatesCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.Version = version
}

// workspaceLayout resolves the layout every subcommand operates on.
func workspaceLayout() workspace.Layout {
	return workspace.NewLayout(rootFlags.root)
}

// exitCodeError carries a gate exit code through RunE. The caller has
// already printed its result; main only translates the code.
type exitCodeError struct{ code int }

func (e exitCodeError) Error() string { return fmt.Sprintf("exit code %d", e.code) }

func main() {
	if err := rootCmd.Execute(); err != nil {
		var ec exitCodeError
		if errors.As(err, &ec) {
			os.Exit(ec.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
