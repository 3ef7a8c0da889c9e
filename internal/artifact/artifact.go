// Package artifact turns canon documents into ledger-ready records: a
// parsed artifact with resolved scope and identity, a content hash, and the
// derived equivalence key and decision id.
package artifact

import (
	"fmt"
	"strings"

	"ratchet/internal/canonical"
)

const (
	// Unknown fills scope keys no provider resolves.
	Unknown = "unknown"
	// Placeholder marks values never materialized upstream; it must not
	// survive into hashes or identity fields.
	Placeholder = "UNSET"
)

// Scope pins the coordinates a decision applies to. Fields are declared in
// alphabetical tag order so the marshaled keys come out sorted.
type Scope struct {
	GraphID     string `json:"graph_id"`
	LifecycleID string `json:"lifecycle_id"`
	ODPair      string `json:"od_pair"`
	RunID       string `json:"run_id"`
}

// IdentityFields carry the reproducibility coordinates every decision must
// declare. All four are required after defaults are applied.
type IdentityFields struct {
	GraphHash     string `json:"graph_hash"`
	ObjectiveHash string `json:"objective_hash"`
	ParamsHash    string `json:"params_hash"`
	RepoCommit    string `json:"repo_commit"`
}

// identityKeys lists the required identity keys in their declared wire
// order, used for the missing-keys error.
var identityKeys = []string{"repo_commit", "objective_hash", "graph_hash", "params_hash"}

// Defaults are the run-manifest fallbacks consulted when a document omits
// scope or identity values. Zero values mean "no default".
type Defaults struct {
	Scope       Scope
	Identity    IdentityFields
	LifecycleID string
}

// EquivalencePolicy names the canonical form behind an artifact hash.
type EquivalencePolicy struct {
	Canonicalization string   `json:"canonicalization"`
	CompareFields    []string `json:"compare_fields"`
	PolicyName       string   `json:"policy_name"`
}

// Provenance records where a ledger entry came from.
type Provenance struct {
	Generator      string `json:"generator"`
	SourceArtifact string `json:"source_artifact"`
	SourceType     string `json:"source_type"`
}

// Record is one parsed artifact ready for upsert into the ledger.
type Record struct {
	Kind         string
	Scope        Scope
	Identity     IdentityFields
	ArtifactPath string // workspace-relative, slash-separated
	ArtifactHash string
	Policy       EquivalencePolicy
	Provenance   Provenance
}

// EquivalenceKey identifies the decision slot this record competes for:
// the hash of (kind, scope, identity), independent of artifact content.
func (r Record) EquivalenceKey() (string, error) {
	return canonical.HashJSON(map[string]any{
		"kind":            r.Kind,
		"scope":           r.Scope,
		"identity_fields": r.Identity,
	})
}

// DecisionID identifies this exact artifact within its slot: the
// equivalence key material plus the artifact hash.
func (r Record) DecisionID() (string, error) {
	return canonical.HashJSON(map[string]any{
		"kind":            r.Kind,
		"scope":           r.Scope,
		"identity_fields": r.Identity,
		"artifact_hash":   r.ArtifactHash,
	})
}

// resolveScope applies the layered provider chain per key: document value,
// then manifest default, then the unknown sentinel. The lifecycle key
// additionally consults the document-level lifecycle id before the manifest.
func resolveScope(doc map[string]any, docLifecycle string, d Defaults) (Scope, error) {
	get := func(key string) (string, error) { return stringValue(doc, "decision_scope", key) }

	odPair, err := get("od_pair")
	if err != nil {
		return Scope{}, err
	}
	graphID, err := get("graph_id")
	if err != nil {
		return Scope{}, err
	}
	runID, err := get("run_id")
	if err != nil {
		return Scope{}, err
	}
	lifecycleID, err := get("lifecycle_id")
	if err != nil {
		return Scope{}, err
	}

	return Scope{
		ODPair:      firstNonEmpty(odPair, d.Scope.ODPair, Unknown),
		GraphID:     firstNonEmpty(graphID, d.Scope.GraphID, Unknown),
		RunID:       firstNonEmpty(runID, d.Scope.RunID, Unknown),
		LifecycleID: firstNonEmpty(lifecycleID, docLifecycle, d.Scope.LifecycleID, d.LifecycleID, Unknown),
	}, nil
}

// resolveIdentity merges document values over manifest defaults; any key
// still empty afterwards fails validation.
func resolveIdentity(doc map[string]any, d Defaults) (IdentityFields, error) {
	get := func(key string) (string, error) { return stringValue(doc, "identity_fields", key) }

	repoCommit, err := get("repo_commit")
	if err != nil {
		return IdentityFields{}, err
	}
	objectiveHash, err := get("objective_hash")
	if err != nil {
		return IdentityFields{}, err
	}
	graphHash, err := get("graph_hash")
	if err != nil {
		return IdentityFields{}, err
	}
	paramsHash, err := get("params_hash")
	if err != nil {
		return IdentityFields{}, err
	}

	id := IdentityFields{
		RepoCommit:    firstNonEmpty(repoCommit, d.Identity.RepoCommit),
		ObjectiveHash: firstNonEmpty(objectiveHash, d.Identity.ObjectiveHash),
		GraphHash:     firstNonEmpty(graphHash, d.Identity.GraphHash),
		ParamsHash:    firstNonEmpty(paramsHash, d.Identity.ParamsHash),
	}

	byKey := map[string]string{
		"repo_commit":    id.RepoCommit,
		"objective_hash": id.ObjectiveHash,
		"graph_hash":     id.GraphHash,
		"params_hash":    id.ParamsHash,
	}
	var missing []string
	for _, key := range identityKeys {
		if byKey[key] == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return IdentityFields{}, fmt.Errorf("identity_fields missing required keys: %s", strings.Join(missing, ", "))
	}
	return id, nil
}

// stringValue pulls key from m as a string. Missing keys resolve to "";
// present non-string values are malformed documents.
func stringValue(m map[string]any, section, key string) (string, error) {
	if m == nil {
		return "", nil
	}
	raw, ok := m[key]
	if !ok || raw == nil {
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%s.%s: expected string, got %T", section, key, raw)
	}
	return s, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
