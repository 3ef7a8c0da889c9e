// Package guard evaluates the fixed battery of resume-safety checks against
// a workspace: lifecycle agreement across the canon documents, snapshot
// custody, orphan handling, placeholder scans, and evidence hash
// verification. The battery is all-or-nothing; resume is allowed only when
// no check produced an abort reason.
package guard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"ratchet/internal/artifact"
	"ratchet/internal/canon"
	"ratchet/internal/registry"
	"ratchet/internal/workspace"
)

// CheckOrder lists every check in evaluation order. Reports iterate it so
// rendering stays stable across runs.
var CheckOrder = []string{
	"manifest_contract_match",
	"lifecycle_index_match",
	"reconstruction_lifecycle_match",
	"reconstructable",
	"summary_pass",
	"requested_lifecycle_match",
	"orphan_free",
	"current_snapshot_exists",
	"current_snapshot_managed",
	"override_enabled_if_needed",
	"contract_active_in_registry",
	"ledger_identity_fields_no_unset",
	"supported_claims_have_evidence_refs",
	"evidence_hashes_match_raw",
}

// Options tune a single evaluation.
type Options struct {
	// ExpectedLifecycleID, when non-nil, must match the contract lifecycle.
	ExpectedLifecycleID *string
}

// Result is the full guard verdict. Fields are declared in alphabetical
// JSON-key order so the encoder emits sorted keys.
type Result struct {
	Allowed                  bool            `json:"allowed"`
	Checks                   map[string]bool `json:"checks"`
	ContractHash             string          `json:"contract_hash"`
	EvidenceHashViolations   []string        `json:"evidence_hash_violations"`
	LifecycleID              string          `json:"lifecycle_id"`
	OrphanCount              int             `json:"orphan_count"`
	OverrideEnabled          bool            `json:"override_enabled"`
	Reasons                  []string        `json:"reasons"`
	SupportedClaimViolations []string        `json:"supported_claim_violations"`
	UnsetViolations          []string        `json:"unset_violations"`
}

// Evaluate runs the battery against the workspace at layout. It returns an
// error, not a Result, when the workspace is too broken to judge: a missing
// or malformed canon document, or an unreadable CURRENT pointer.
func Evaluate(layout workspace.Layout, opts Options) (Result, error) {
	manifest, err := canon.LoadRunManifest(layout.Abs(workspace.RunManifestRel))
	if err != nil {
		return Result{}, err
	}
	index, err := canon.LoadLifecycleIndex(layout.Abs(workspace.LifecycleIndexRel))
	if err != nil {
		return Result{}, err
	}
	recon, err := canon.LoadReconstructionCheck(layout.Abs(workspace.ReconstructionCheckRel))
	if err != nil {
		return Result{}, err
	}
	contract, err := canon.LoadLifecycleContract(layout.Abs(workspace.LifecycleContractRel))
	if err != nil {
		return Result{}, err
	}
	contractLifecycle := contract.Payload.LifecycleID

	res := Result{
		Checks:                   map[string]bool{},
		ContractHash:             contract.Hash,
		EvidenceHashViolations:   []string{},
		LifecycleID:              contractLifecycle,
		Reasons:                  []string{},
		SupportedClaimViolations: []string{},
		UnsetViolations:          []string{},
	}

	res.Checks["manifest_contract_match"] = manifest.LifecycleID == contractLifecycle
	if !res.Checks["manifest_contract_match"] {
		res.Reasons = append(res.Reasons, "abort: lifecycle_id mismatch between run_manifest and lifecycle_contract")
	}

	res.Checks["lifecycle_index_match"] = index.LifecycleID == contractLifecycle
	if !res.Checks["lifecycle_index_match"] {
		res.Reasons = append(res.Reasons, "abort: lifecycle_id mismatch between lifecycle_index and lifecycle_contract")
	}

	res.Checks["reconstruction_lifecycle_match"] = recon.LifecycleID == contractLifecycle
	if !res.Checks["reconstruction_lifecycle_match"] {
		res.Reasons = append(res.Reasons, "abort: lifecycle_id mismatch between reconstruction_check and lifecycle_contract")
	}

	res.Checks["reconstructable"] = recon.Reconstructable
	if !res.Checks["reconstructable"] {
		res.Reasons = append(res.Reasons, "abort: reconstruction_check.reconstructable is false")
	}

	res.Checks["summary_pass"] = recon.Summary.Status == "pass"
	if !res.Checks["summary_pass"] {
		res.Reasons = append(res.Reasons, "abort: reconstruction_check summary status is not pass")
	}

	if opts.ExpectedLifecycleID != nil {
		res.Checks["requested_lifecycle_match"] = *opts.ExpectedLifecycleID == contractLifecycle
		if !res.Checks["requested_lifecycle_match"] {
			res.Reasons = append(res.Reasons, "abort: lifecycle_id mismatch against requested lifecycle_id")
		}
	} else {
		res.Checks["requested_lifecycle_match"] = true
	}

	res.OrphanCount = index.OrphanCount
	res.Checks["orphan_free"] = index.OrphanCount == 0

	currentName, err := readCurrentPointer(layout)
	if err != nil {
		return Result{}, err
	}
	currentRel := path.Join(workspace.SystemRel, currentName)
	_, statErr := os.Stat(layout.Abs(currentRel))
	currentExists := statErr == nil

	res.Checks["current_snapshot_exists"] = currentExists
	if !currentExists {
		res.Reasons = append(res.Reasons, "abort: current snapshot referenced by .canon/system/CURRENT is missing")
	}

	managed := false
	for _, ref := range index.ManagedSnapshotRefs {
		if ref == currentRel {
			managed = true
			break
		}
	}
	res.Checks["current_snapshot_managed"] = currentExists && managed
	if currentExists && !managed {
		res.Reasons = append(res.Reasons, "abort: current snapshot is not in lifecycle_index managed_snapshot_refs")
	}

	res.OverrideEnabled = contract.Payload.OrphanOverrideRule.Enabled
	res.Checks["override_enabled_if_needed"] = res.Checks["orphan_free"] || res.OverrideEnabled
	if index.OrphanCount > 0 && !res.OverrideEnabled {
		res.Reasons = append(res.Reasons, "abort: orphan snapshots detected and override is not explicitly enabled")
	}

	active, err := contractActiveInRegistry(layout, contract.Hash, contractLifecycle)
	if err != nil {
		return Result{}, err
	}
	res.Checks["contract_active_in_registry"] = active
	if index.OrphanCount > 0 && res.OverrideEnabled && !active {
		res.Reasons = append(res.Reasons, "abort: orphan override enabled but updated lifecycle contract is not active in ledger registry")
	}

	unset, err := scanIdentityPlaceholders(layout)
	if err != nil {
		return Result{}, err
	}
	res.UnsetViolations = unset
	res.Checks["ledger_identity_fields_no_unset"] = len(unset) == 0
	if len(unset) > 0 {
		res.Reasons = append(res.Reasons, "abort: UNSET found in ledger_identity_fields")
	}

	claimsOK, claimViolations, err := supportedClaimsHaveEvidence(layout)
	if err != nil {
		return Result{}, err
	}
	res.SupportedClaimViolations = claimViolations
	res.Checks["supported_claims_have_evidence_refs"] = claimsOK
	if !claimsOK {
		res.Reasons = append(res.Reasons, "abort: supported claim missing evidence_refs")
	}

	evidenceOK, evidenceViolations, err := evidenceHashesMatch(layout)
	if err != nil {
		return Result{}, err
	}
	res.EvidenceHashViolations = evidenceViolations
	res.Checks["evidence_hashes_match_raw"] = evidenceOK
	if !evidenceOK {
		res.Reasons = append(res.Reasons, "abort: evidence hash mismatch or invalid evidence record")
	}

	res.Allowed = len(res.Reasons) == 0
	return res, nil
}

// readCurrentPointer returns the snapshot name the CURRENT pointer names.
// A missing or empty pointer is a hard error: the workspace has no judgeable
// snapshot state.
func readCurrentPointer(layout workspace.Layout) (string, error) {
	data, err := os.ReadFile(layout.Abs(workspace.CurrentPointerRel))
	if err != nil {
		return "", fmt.Errorf("read current snapshot pointer: %w", err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return "", errors.New(workspace.CurrentPointerRel + " is empty")
	}
	return name, nil
}

// contractActiveInRegistry reports whether the ledger holds an active
// lifecycle_contract entry for this exact contract text and lifecycle.
func contractActiveInRegistry(layout workspace.Layout, contractHash, lifecycleID string) (bool, error) {
	reg, err := registry.Load(layout.Abs(workspace.RegistryRel))
	if err != nil {
		return false, err
	}
	for _, e := range reg.ActiveByKind("lifecycle_contract") {
		if e.ArtifactPath != workspace.LifecycleContractRel {
			continue
		}
		if e.ArtifactHash != contractHash {
			continue
		}
		if e.Scope.LifecycleID == lifecycleID {
			return true, nil
		}
	}
	return false, nil
}

// scanIdentityPlaceholders walks every canon JSON document outside the tools
// tree and reports ledger_identity_fields values still carrying the UNSET
// placeholder as "<path>:<key>" violations, in sorted order.
func scanIdentityPlaceholders(layout workspace.Layout) ([]string, error) {
	var rels []string
	walk := func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := layout.Rel(p)
		if err != nil {
			return err
		}
		if path.Ext(rel) != ".json" || strings.HasPrefix(rel, workspace.CanonRel+"/tools/") {
			return nil
		}
		rels = append(rels, rel)
		return nil
	}
	if err := filepath.WalkDir(layout.Abs(workspace.CanonRel), walk); err != nil {
		return nil, fmt.Errorf("scan canon documents: %w", err)
	}
	sort.Strings(rels)

	violations := []string{}
	for _, rel := range rels {
		data, err := os.ReadFile(layout.Abs(rel))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", rel, err)
		}
		var payload map[string]any
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, fmt.Errorf("parse %s: %w", rel, err)
		}
		identity, ok := payload["ledger_identity_fields"].(map[string]any)
		if !ok {
			continue
		}
		keys := make([]string, 0, len(identity))
		for k := range identity {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if strings.Contains(fmt.Sprint(identity[k]), artifact.Placeholder) {
				violations = append(violations, rel+":"+k)
			}
		}
	}
	return violations, nil
}

// supportedClaimsHaveEvidence verifies every claim marked supported carries
// at least one evidence ref. A missing claims matrix fails the check with a
// violation rather than erroring: its absence is itself the finding.
func supportedClaimsHaveEvidence(layout workspace.Layout) (bool, []string, error) {
	cm, err := canon.LoadClaimsMatrix(layout.Abs(workspace.ClaimsMatrixRel))
	if errors.Is(err, fs.ErrNotExist) {
		return false, []string{"missing " + workspace.ClaimsMatrixRel}, nil
	}
	if err != nil {
		return false, nil, err
	}
	violations := []string{}
	for _, claim := range cm.Claims {
		if !strings.EqualFold(claim.Status, "supported") {
			continue
		}
		if len(claim.EvidenceRefs) == 0 {
			id := claim.ClaimID
			if id == "" {
				id = "unknown_claim"
			}
			violations = append(violations, id)
		}
	}
	return len(violations) == 0, violations, nil
}
