// Package wiring drives the full flow end to end: seed a complete demo
// workspace, run the registration pass, and evaluate the gates against it.
package wiring

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"ratchet/internal/canonical"
	"ratchet/internal/gate"
	"ratchet/internal/workspace"
)

// Fixed coordinates of the seeded workspace.
const (
	// LifecycleID is the lifecycle every seeded document agrees on.
	LifecycleID = "L1"
	// RawMetricsRel is the raw evidence file the evidence index points at.
	RawMetricsRel = "runs/metrics_L1.json"
	// SnapshotRel is the managed snapshot CURRENT points at.
	SnapshotRel = ".canon/system/snap_L1.json"
)

const rawMetrics = `{"metrics": {"score": 0.91, "runs": [1, 2, 3]}}`

// Run seeds a fresh workspace under dir, evaluates the gates over it, and
// writes the completeness report. It returns the report and the
// workspace-relative report path.
func Run(ctx context.Context, dir string) (gate.Report, string, error) {
	if err := Seed(dir); err != nil {
		return gate.Report{}, "", err
	}
	layout := workspace.NewLayout(dir)
	report := gate.Run(ctx, layout, gate.Options{})
	rel, err := gate.WriteReport(layout, report)
	if err != nil {
		return gate.Report{}, "", err
	}
	return report, rel, nil
}

// Seed provisions a complete workspace under dir: every canon document the
// layout gate requires, an evidence chain whose hashes verify, and no
// orphans. The first gates run over a seeded workspace passes everything.
func Seed(dir string) error {
	layout := workspace.NewLayout(dir)

	rawSHA := canonical.SHA256Hex([]byte(rawMetrics))
	doc, err := canonical.DecodeJSON([]byte(rawMetrics))
	if err != nil {
		return fmt.Errorf("seed: decode raw metrics: %w", err)
	}
	value, err := canonical.ResolvePointer(doc, "/metrics/score")
	if err != nil {
		return fmt.Errorf("seed: resolve pointer: %w", err)
	}
	sliceBytes, err := canonical.MarshalJSON(value)
	if err != nil {
		return fmt.Errorf("seed: marshal slice: %w", err)
	}
	sliceSHA := canonical.SHA256Hex(sliceBytes)

	files := map[string]string{
		RawMetricsRel:                  rawMetrics,
		SnapshotRel:                    `{"snapshot": "state"}`,
		workspace.IndexRel:             "# Canon index\n\nDocument map for the managed workspace.\n",
		workspace.NextAgentBootRel:     "# Boot notes\n\nStart from the resume protocol.\n",
		workspace.ResumeProtocolRel:    "# Resume protocol\n\nRun the gates before resuming work.\n",
		workspace.LayoutPolicyRel:      "# Layout policy\n\nCanon documents live under .canon.\n",
		workspace.CredentialsPolicyRel: "# Credentials policy\n\nNo credentials in canon documents.\n",
		workspace.CurrentPointerRel:    "snap_L1.json\n",
		workspace.RunManifestRel: fmt.Sprintf(`{
  "lifecycle_id": %q,
  "decision_scope": {"od_pair": "A-B", "graph_id": "g1", "run_id": "r1"},
  "identity_fields": {"repo_commit": "abc", "objective_hash": "o1", "graph_hash": "gh1", "params_hash": "p1"}
}`, LifecycleID),
		workspace.LifecycleContractRel: fmt.Sprintf("<!--\nDECISION_KIND: lifecycle_contract\nLIFECYCLE_ID: %s\n-->\n# Lifecycle contract\n\n```json\n{\n  \"lifecycle_id\": %q,\n  \"orphan_override_rule\": {\"enabled\": false}\n}\n```\n", LifecycleID, LifecycleID),
		workspace.LifecycleIndexRel: fmt.Sprintf(`{
  "lifecycle_id": %q,
  "orphan_count": 0,
  "managed_snapshot_refs": [%q]
}`, LifecycleID, SnapshotRel),
		workspace.ReconstructionCheckRel: fmt.Sprintf(`{
  "lifecycle_id": %q,
  "reconstructable": true,
  "summary": {"status": "pass"}
}`, LifecycleID),
		workspace.ClaimsMatrixRel: `{"claims": [{"claim_id": "C1", "status": "supported", "evidence_refs": ["E1"]}]}`,
		workspace.EvidenceIndexRel: fmt.Sprintf(`{
  "evidence": [
    {
      "evidence_id": "E1",
      "raw_path": %q,
      "raw_file_sha256": %q,
      "slice_sha256": %q,
      "range": {"json_pointer": "/metrics/score"}
    }
  ]
}`, RawMetricsRel, rawSHA, sliceSHA),
	}

	for rel, content := range files {
		abs := layout.Abs(rel)
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return fmt.Errorf("seed: mkdir for %s: %w", rel, err)
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return fmt.Errorf("seed: write %s: %w", rel, err)
		}
	}
	return nil
}
