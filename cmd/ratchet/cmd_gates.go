package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ratchet/internal/gate"
)

var gatesFlags struct {
	report          bool
	jsonOut         bool
	block           bool
	expectLifecycle string
}

var gatesCmd = &cobra.Command{
	Use:   "gates",
	Short: "Run every gate and emit a completeness report",
	Long: `Runs the registration pass, the lifecycle guard, and the canon layout scan,
then prints the completeness report as Markdown (default), JSON (--json), or
a single orchestration block (--block).

Exit: 0 all gates pass, 1 registration failed, 2 guard denied, 3 layout incomplete.`,
	RunE: runGates,
}

func init() {
	f := gatesCmd.Flags()
	f.BoolVar(&gatesFlags.report, "report", false, "Write the report to .reports/completeness_<timestamp>.md")
	f.BoolVar(&gatesFlags.jsonOut, "json", false, "Print the report as JSON")
	f.BoolVar(&gatesFlags.block, "block", false, "Print one orchestration block (use with --report for the report path)")
	f.StringVar(&gatesFlags.expectLifecycle, "expect-lifecycle", "", "Deny unless the contract lifecycle_id matches")
}

func runGates(cmd *cobra.Command, _ []string) error {
	layout := workspaceLayout()
	opts := gate.Options{}
	if cmd.Flags().Changed("expect-lifecycle") {
		opts.ExpectedLifecycleID = &gatesFlags.expectLifecycle
	}

	report := gate.Run(cmd.Context(), layout, opts)

	var reportRel string
	if gatesFlags.report {
		rel, err := gate.WriteReport(layout, report)
		if err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		reportRel = rel
		if !gatesFlags.jsonOut && !gatesFlags.block {
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s\n", rel)
		}
	}

	out := cmd.OutOrStdout()
	switch {
	case gatesFlags.block:
		fmt.Fprintln(out, gate.Block(cmd.Context(), layout.Root, report, reportRel))
	case gatesFlags.jsonOut:
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	default:
		fmt.Fprintln(out, gate.RenderMarkdown(report))
	}

	if code := gate.ExitCode(report); code != gate.ExitPass {
		return exitCodeError{code: code}
	}
	return nil
}
