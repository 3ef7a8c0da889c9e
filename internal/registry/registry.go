// Package registry persists decision entries as a canonically sorted,
// byte-reproducible JSON file. One entry per registered artifact revision;
// at most one active entry per (kind, scope, identity_fields).
package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"ratchet/internal/artifact"
	"ratchet/internal/canonical"
)

// SchemaVersion is written into every registry this tool creates.
const SchemaVersion = "1.0"

// Status of a registry entry.
type Status string

const (
	StatusActive     Status = "active"
	StatusSuperseded Status = "superseded"
)

// Entry is one registered decision. Fields are declared in alphabetical
// JSON-key order so the encoder emits sorted keys.
type Entry struct {
	ArtifactHash      string                     `json:"artifact_hash"`
	ArtifactPath      string                     `json:"artifact_path"`
	DecisionID        string                     `json:"decision_id"`
	EquivalencePolicy artifact.EquivalencePolicy `json:"equivalence_policy"`
	IdentityFields    artifact.IdentityFields    `json:"identity_fields"`
	Kind              string                     `json:"kind"`
	Provenance        artifact.Provenance        `json:"provenance"`
	Scope             artifact.Scope             `json:"scope"`
	Status            Status                     `json:"status"`
	Supersedes        []string                   `json:"supersedes,omitempty"`
}

// Registry is the full ledger. Field order follows the JSON key order.
type Registry struct {
	Entries       []Entry `json:"entries"`
	SchemaVersion string  `json:"schema_version,omitempty"`
}

// Load reads the registry at path. A missing file yields an empty registry.
// A present file must be a JSON object whose entries key holds a list.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	var probe struct {
		Entries json.RawMessage `json:"entries"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	trimmed := bytes.TrimSpace(probe.Entries)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, errors.New("invalid registry format: entries must be a list")
	}
	var r Registry
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}
	return &r, nil
}

// Upsert registers records in order and returns the decision ids of the
// entries it created. A record whose artifact hash matches an active
// equivalent entry is a no-op; otherwise the active equivalents are marked
// superseded and the new entry lists their decision ids.
func (r *Registry) Upsert(records []artifact.Record) ([]string, error) {
	var created []string
	for _, rec := range records {
		var matched []*Entry
		for i := range r.Entries {
			e := &r.Entries[i]
			if e.Status == StatusActive &&
				e.Kind == rec.Kind &&
				e.Scope == rec.Scope &&
				e.IdentityFields == rec.Identity {
				matched = append(matched, e)
			}
		}
		identical := false
		for _, e := range matched {
			if e.ArtifactHash == rec.ArtifactHash {
				identical = true
				break
			}
		}
		if identical {
			continue
		}
		var superseded []string
		for _, e := range matched {
			superseded = append(superseded, e.DecisionID)
			e.Status = StatusSuperseded
		}
		id, err := rec.DecisionID()
		if err != nil {
			return created, fmt.Errorf("decision id for %s: %w", rec.ArtifactPath, err)
		}
		r.Entries = append(r.Entries, Entry{
			ArtifactHash:      rec.ArtifactHash,
			ArtifactPath:      rec.ArtifactPath,
			DecisionID:        id,
			EquivalencePolicy: rec.Policy,
			IdentityFields:    rec.Identity,
			Kind:              rec.Kind,
			Provenance:        rec.Provenance,
			Scope:             rec.Scope,
			Status:            StatusActive,
			Supersedes:        superseded,
		})
		created = append(created, id)
	}
	if err := r.sort(); err != nil {
		return created, err
	}
	return created, nil
}

// ActiveByKind returns the active entries of the given kind.
func (r *Registry) ActiveByKind(kind string) []Entry {
	var out []Entry
	for _, e := range r.Entries {
		if e.Status == StatusActive && e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// sort orders entries by (kind, canonical scope, canonical identity,
// decision id) so persisted bytes do not depend on insertion order.
func (r *Registry) sort() error {
	type keyed struct {
		entry           Entry
		scope, identity string
	}
	items := make([]keyed, len(r.Entries))
	for i, e := range r.Entries {
		scopeJSON, err := canonical.MarshalJSON(e.Scope)
		if err != nil {
			return fmt.Errorf("sort registry: %w", err)
		}
		identityJSON, err := canonical.MarshalJSON(e.IdentityFields)
		if err != nil {
			return fmt.Errorf("sort registry: %w", err)
		}
		items[i] = keyed{entry: e, scope: string(scopeJSON), identity: string(identityJSON)}
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if a.entry.Kind != b.entry.Kind {
			return a.entry.Kind < b.entry.Kind
		}
		if a.scope != b.scope {
			return a.scope < b.scope
		}
		if a.identity != b.identity {
			return a.identity < b.identity
		}
		return a.entry.DecisionID < b.entry.DecisionID
	})
	for i := range items {
		r.Entries[i] = items[i].entry
	}
	return nil
}

// Persist writes the registry atomically: pretty-printed, sorted keys,
// trailing newline, temp file + rename.
func (r *Registry) Persist(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write registry: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace registry: %w", err)
	}
	return nil
}
