package registry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"ratchet/internal/artifact"
)

func testRecord(kind, hash string) artifact.Record {
	return artifact.Record{
		Kind:         kind,
		Scope:        artifact.Scope{ODPair: "A-B", GraphID: "g1", RunID: "r1", LifecycleID: "L1"},
		Identity:     artifact.IdentityFields{RepoCommit: "c1", ObjectiveHash: "o1", GraphHash: "gh1", ParamsHash: "p1"},
		ArtifactPath: ".canon/" + kind + ".json",
		ArtifactHash: hash,
		Policy: artifact.EquivalencePolicy{
			Canonicalization: "JSON sort keys, compact separators, UTF-8",
			CompareFields:    []string{"__full_json__"},
			PolicyName:       "canonical_json_sha256",
		},
		Provenance: artifact.Provenance{
			Generator:      artifact.Generator,
			SourceArtifact: ".canon/" + kind + ".json",
			SourceType:     "json",
		},
	}
}

func TestLoad_MissingFileYieldsEmptyRegistry(t *testing.T) {
	r, err := Load(filepath.Join(t.TempDir(), "registry.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.SchemaVersion != SchemaVersion {
		t.Errorf("schema version = %q, want %q", r.SchemaVersion, SchemaVersion)
	}
	if len(r.Entries) != 0 {
		t.Errorf("entries = %d, want 0", len(r.Entries))
	}
}

func TestLoad_RejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"entries missing":    `{"schema_version": "1.0"}`,
		"entries null":       `{"entries": null}`,
		"entries not a list": `{"entries": {"a": 1}}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "registry.json")
			if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), "entries must be a list") {
				t.Errorf("error = %q", err)
			}
		})
	}
}

func TestLoad_MalformedJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := os.WriteFile(path, []byte(`{"entries": [`), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestUpsert_CreatesActiveEntry(t *testing.T) {
	r := &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}
	rec := testRecord("objective_spec", "hash1")
	created, err := r.Upsert([]artifact.Record{rec})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	wantID, err := rec.DecisionID()
	if err != nil {
		t.Fatalf("DecisionID: %v", err)
	}
	if diff := cmp.Diff([]string{wantID}, created); diff != "" {
		t.Errorf("created mismatch:\n%s", diff)
	}
	if len(r.Entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(r.Entries))
	}
	e := r.Entries[0]
	if e.Status != StatusActive {
		t.Errorf("status = %q, want active", e.Status)
	}
	if len(e.Supersedes) != 0 {
		t.Errorf("supersedes = %v, want empty", e.Supersedes)
	}
}

func TestUpsert_IdenticalArtifactIsNoOp(t *testing.T) {
	r := &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}
	rec := testRecord("objective_spec", "hash1")
	if _, err := r.Upsert([]artifact.Record{rec}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	created, err := r.Upsert([]artifact.Record{rec})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("created = %v, want none", created)
	}
	if len(r.Entries) != 1 {
		t.Errorf("entries = %d, want 1", len(r.Entries))
	}
}

func TestUpsert_SupersedesOnContentChange(t *testing.T) {
	r := &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}
	v1 := testRecord("objective_spec", "hash1")
	v2 := testRecord("objective_spec", "hash2")
	if _, err := r.Upsert([]artifact.Record{v1}); err != nil {
		t.Fatalf("upsert v1: %v", err)
	}
	if _, err := r.Upsert([]artifact.Record{v2}); err != nil {
		t.Fatalf("upsert v2: %v", err)
	}

	v1ID, _ := v1.DecisionID()
	v2ID, _ := v2.DecisionID()
	var active, superseded []Entry
	for _, e := range r.Entries {
		switch e.Status {
		case StatusActive:
			active = append(active, e)
		case StatusSuperseded:
			superseded = append(superseded, e)
		}
	}
	if len(active) != 1 || active[0].DecisionID != v2ID {
		t.Errorf("active = %+v, want single entry %s", active, v2ID)
	}
	if len(superseded) != 1 || superseded[0].DecisionID != v1ID {
		t.Errorf("superseded = %+v, want single entry %s", superseded, v1ID)
	}
	if diff := cmp.Diff([]string{v1ID}, active[0].Supersedes); diff != "" {
		t.Errorf("supersedes mismatch:\n%s", diff)
	}
}

func TestUpsert_RevisionChainKeepsSingleActive(t *testing.T) {
	r := &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}
	for _, hash := range []string{"hash1", "hash2", "hash3"} {
		if _, err := r.Upsert([]artifact.Record{testRecord("model_spec", hash)}); err != nil {
			t.Fatalf("upsert %s: %v", hash, err)
		}
	}
	if len(r.Entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(r.Entries))
	}
	activeCount := 0
	for _, e := range r.Entries {
		if e.Status == StatusActive {
			activeCount++
			v2ID, _ := testRecord("model_spec", "hash2").DecisionID()
			if diff := cmp.Diff([]string{v2ID}, e.Supersedes); diff != "" {
				t.Errorf("final supersedes mismatch:\n%s", diff)
			}
		}
	}
	if activeCount != 1 {
		t.Errorf("active entries = %d, want 1", activeCount)
	}
}

func TestUpsert_DistinctScopesCoexist(t *testing.T) {
	r := &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}
	a := testRecord("objective_spec", "hash1")
	b := testRecord("objective_spec", "hash2")
	b.Scope.RunID = "r2"
	if _, err := r.Upsert([]artifact.Record{a, b}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	for _, e := range r.Entries {
		if e.Status != StatusActive {
			t.Errorf("entry %s status = %q, want active", e.DecisionID, e.Status)
		}
	}
}

func TestActiveByKind(t *testing.T) {
	r := &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}
	if _, err := r.Upsert([]artifact.Record{
		testRecord("lifecycle_contract", "hash1"),
		testRecord("objective_spec", "hash2"),
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	got := r.ActiveByKind("lifecycle_contract")
	if len(got) != 1 || got[0].Kind != "lifecycle_contract" {
		t.Errorf("ActiveByKind = %+v", got)
	}
	if r.ActiveByKind("absent") != nil {
		t.Error("ActiveByKind(absent) should be nil")
	}
}

func TestPersist_BytesIndependentOfInputOrder(t *testing.T) {
	recs := []artifact.Record{
		testRecord("z_kind", "hash1"),
		testRecord("a_kind", "hash2"),
		testRecord("m_kind", "hash3"),
	}
	forward := &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}
	if _, err := forward.Upsert(recs); err != nil {
		t.Fatalf("Upsert forward: %v", err)
	}
	reversed := &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}
	if _, err := reversed.Upsert([]artifact.Record{recs[2], recs[1], recs[0]}); err != nil {
		t.Fatalf("Upsert reversed: %v", err)
	}

	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.json")
	pathB := filepath.Join(dir, "b.json")
	if err := forward.Persist(pathA); err != nil {
		t.Fatalf("Persist forward: %v", err)
	}
	if err := reversed.Persist(pathB); err != nil {
		t.Fatalf("Persist reversed: %v", err)
	}
	bytesA, err := os.ReadFile(pathA)
	if err != nil {
		t.Fatalf("read a: %v", err)
	}
	bytesB, err := os.ReadFile(pathB)
	if err != nil {
		t.Fatalf("read b: %v", err)
	}
	if diff := cmp.Diff(string(bytesA), string(bytesB)); diff != "" {
		t.Errorf("persisted bytes differ:\n%s", diff)
	}
	if !strings.HasSuffix(string(bytesA), "\n") {
		t.Error("persisted registry missing trailing newline")
	}
	if strings.Contains(string(bytesA), `"supersedes"`) {
		t.Error("fresh entries must omit the supersedes key")
	}
}

func TestPersist_ThenLoadRoundTrips(t *testing.T) {
	r := &Registry{Entries: []Entry{}, SchemaVersion: SchemaVersion}
	if _, err := r.Upsert([]artifact.Record{testRecord("objective_spec", "hash1")}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	path := filepath.Join(t.TempDir(), "registry.json")
	if err := r.Persist(path); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if diff := cmp.Diff(r, loaded); diff != "" {
		t.Errorf("round trip mismatch:\n%s", diff)
	}
}
