package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"ratchet/internal/format"
	"ratchet/internal/ingest"
	"ratchet/internal/workspace"
)

var registerFlags struct {
	dryRun bool
	config string
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Register canon artifacts into the decision ledger",
	Long: `Collects the canon artifacts, hashes their canonical form, and upserts the
decision ledger: unchanged artifacts are no-ops, changed ones supersede the
previous active decision. With --dry-run the registry is left untouched.`,
	RunE: runRegister,
}

func init() {
	f := registerCmd.Flags()
	f.BoolVar(&registerFlags.dryRun, "dry-run", false, "Compute registrations without writing the registry")
	f.StringVar(&registerFlags.config, "config", workspace.RegisterConfigRel, "Workspace-relative register config path")
}

func runRegister(cmd *cobra.Command, _ []string) error {
	res, err := ingest.Run(workspaceLayout(), ingest.Options{
		DryRun:     registerFlags.dryRun,
		ConfigPath: registerFlags.config,
	})
	if err != nil {
		return fmt.Errorf("register: %w", err)
	}

	out := cmd.OutOrStdout()
	if res.DryRun {
		fmt.Fprintln(out, "dry_run: true")
		fmt.Fprintf(out, "config: %s\n", res.ConfigPath)
		fmt.Fprintf(out, "artifact_count: %d\n", res.ArtifactCount)
		fmt.Fprintf(out, "new_decision_count: %d\n", len(res.NewDecisionIDs))
	}
	if len(res.NewDecisionIDs) > 0 {
		fmt.Fprintln(out, "new_decision_ids:")
		for _, id := range res.NewDecisionIDs {
			fmt.Fprintln(out, id)
		}
	} else {
		fmt.Fprintln(out, "new_decision_ids: none")
	}

	if len(res.Skipped) > 0 {
		tbl := format.NewTable(format.ASCII)
		tbl.Header("Skipped", "Reason")
		tbl.MaxColumnWidth(2, 72)
		for _, s := range res.Skipped {
			tbl.Row(s.Path, format.Truncate(s.Reason, 72))
		}
		fmt.Fprintln(out, tbl.String())
	}
	return nil
}
