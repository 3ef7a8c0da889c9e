// Package canon loads the canon documents the lifecycle gate cross-checks.
// Every loader validates the raw bytes against an embedded JSON Schema before
// decoding, so a document of the wrong shape fails loudly instead of reading
// as zero values.
package canon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"ratchet/internal/artifact"
	"ratchet/internal/canonical"
)

// RunManifest names the lifecycle the workspace claims to be in and seeds
// the scope and identity defaults for registration.
type RunManifest struct {
	DecisionScope  artifact.Scope          `json:"decision_scope"`
	IdentityFields artifact.IdentityFields `json:"identity_fields"`
	LifecycleID    string                  `json:"lifecycle_id"`
}

// Defaults adapts the manifest into registration defaults.
func (m RunManifest) Defaults() artifact.Defaults {
	return artifact.Defaults{
		Scope:       m.DecisionScope,
		Identity:    m.IdentityFields,
		LifecycleID: m.LifecycleID,
	}
}

// OrphanOverrideRule is the contract's escape hatch for resuming with
// orphaned snapshots present.
type OrphanOverrideRule struct {
	Enabled bool `json:"enabled"`
}

// ContractPayload is the machine-readable part of the lifecycle contract.
type ContractPayload struct {
	LifecycleID        string             `json:"lifecycle_id"`
	OrphanOverrideRule OrphanOverrideRule `json:"orphan_override_rule"`
}

// LifecycleContract is the contract document: its fenced JSON payload plus
// the canonical text hash of the whole document, which is what the registry
// stores for the contract artifact.
type LifecycleContract struct {
	Payload ContractPayload
	Hash    string
}

// LifecycleIndex tracks which snapshots the lifecycle manages.
type LifecycleIndex struct {
	LifecycleID         string   `json:"lifecycle_id"`
	ManagedSnapshotRefs []string `json:"managed_snapshot_refs"`
	OrphanCount         int      `json:"orphan_count"`
}

// ReconstructionSummary is the verdict block of a reconstruction check.
type ReconstructionSummary struct {
	Status string `json:"status"`
}

// ReconstructionCheck reports whether the workspace state can be rebuilt
// from its inputs.
type ReconstructionCheck struct {
	LifecycleID     string                `json:"lifecycle_id"`
	Reconstructable bool                  `json:"reconstructable"`
	Summary         ReconstructionSummary `json:"summary"`
}

// Claim is one row of the claims matrix.
type Claim struct {
	ClaimID      string   `json:"claim_id"`
	EvidenceRefs []string `json:"evidence_refs"`
	Status       string   `json:"status"`
}

// ClaimsMatrix lists the claims the workspace makes and their evidence.
type ClaimsMatrix struct {
	Claims []Claim `json:"claims"`
}

// EvidenceRange selects a slice of a raw evidence file.
type EvidenceRange struct {
	JSONPointer string `json:"json_pointer"`
}

// Evidence is one row of the evidence index.
type Evidence struct {
	EvidenceID    string        `json:"evidence_id"`
	Range         EvidenceRange `json:"range"`
	RawFileSHA256 string        `json:"raw_file_sha256"`
	RawPath       string        `json:"raw_path"`
	SliceSHA256   string        `json:"slice_sha256"`
}

// EvidenceIndex links evidence ids to raw files and their expected hashes.
type EvidenceIndex struct {
	Evidence []Evidence `json:"evidence"`
}

var contractPayloadRE = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

// LoadRunManifest reads and validates the run manifest.
func LoadRunManifest(path string) (RunManifest, error) {
	var m RunManifest
	if err := loadValidated(path, runManifestSchema, &m); err != nil {
		return RunManifest{}, err
	}
	return m, nil
}

// LoadLifecycleContract reads the contract markdown, extracts its fenced
// JSON payload, and hashes the canonical text of the full document.
func LoadLifecycleContract(path string) (LifecycleContract, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return LifecycleContract{}, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	text := string(data)
	m := contractPayloadRE.FindStringSubmatch(text)
	if m == nil {
		return LifecycleContract{}, errors.New("lifecycle_contract.md missing fenced JSON payload")
	}
	var tree any
	if err := json.Unmarshal([]byte(m[1]), &tree); err != nil {
		return LifecycleContract{}, fmt.Errorf("parse contract payload: %w", err)
	}
	if err := contractPayloadSchema.Validate(tree); err != nil {
		return LifecycleContract{}, fmt.Errorf("validate contract payload: %w", err)
	}
	var payload ContractPayload
	if err := json.Unmarshal([]byte(m[1]), &payload); err != nil {
		return LifecycleContract{}, fmt.Errorf("decode contract payload: %w", err)
	}
	return LifecycleContract{Payload: payload, Hash: canonical.HashText(text)}, nil
}

// LoadLifecycleIndex reads and validates the lifecycle index.
func LoadLifecycleIndex(path string) (LifecycleIndex, error) {
	var idx LifecycleIndex
	if err := loadValidated(path, lifecycleIndexSchema, &idx); err != nil {
		return LifecycleIndex{}, err
	}
	return idx, nil
}

// LoadReconstructionCheck reads and validates the reconstruction check.
func LoadReconstructionCheck(path string) (ReconstructionCheck, error) {
	var rc ReconstructionCheck
	if err := loadValidated(path, reconstructionCheckSchema, &rc); err != nil {
		return ReconstructionCheck{}, err
	}
	return rc, nil
}

// LoadClaimsMatrix reads and validates the claims matrix.
func LoadClaimsMatrix(path string) (ClaimsMatrix, error) {
	var cm ClaimsMatrix
	if err := loadValidated(path, claimsMatrixSchema, &cm); err != nil {
		return ClaimsMatrix{}, err
	}
	return cm, nil
}

// LoadEvidenceIndex reads and validates the evidence index.
func LoadEvidenceIndex(path string) (EvidenceIndex, error) {
	var ei EvidenceIndex
	if err := loadValidated(path, evidenceIndexSchema, &ei); err != nil {
		return EvidenceIndex{}, err
	}
	return ei, nil
}

// loadValidated reads path, checks the raw tree against schema, then decodes
// into target. Read errors wrap the underlying error so callers can branch
// on fs.ErrNotExist.
func loadValidated(path string, schema *jsonschema.Schema, target any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	if err := schema.Validate(tree); err != nil {
		return fmt.Errorf("validate %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, target); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
