package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"ratchet/internal/guard"
)

var guardFlags struct {
	expectLifecycle string
}

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Evaluate the lifecycle resume gates",
	Long: `Cross-checks the canon documents (contract, index, manifest, reconstruction
check, claims matrix, evidence index) and prints the full verdict as JSON.
Exits 2 when the guard denies resume.`,
	RunE: runGuard,
}

func init() {
	guardCmd.Flags().StringVar(&guardFlags.expectLifecycle, "expect-lifecycle", "", "Deny unless the contract lifecycle_id matches")
}

func runGuard(cmd *cobra.Command, _ []string) error {
	opts := guard.Options{}
	if cmd.Flags().Changed("expect-lifecycle") {
		opts.ExpectedLifecycleID = &guardFlags.expectLifecycle
	}

	res, err := guard.Evaluate(workspaceLayout(), opts)
	if err != nil {
		return fmt.Errorf("guard: %w", err)
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))

	if !res.Allowed {
		return exitCodeError{code: 2}
	}
	return nil
}
