package guard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"ratchet/internal/artifact"
	"ratchet/internal/canon"
	"ratchet/internal/canonical"
	"ratchet/internal/workspace"
)

// evidenceHashesMatch re-derives every evidence hash from the raw files on
// disk and compares against the index. Each record degrades independently
// into a "<id>:<failure>" violation; only an unreadable index or raw file is
// a hard error.
func evidenceHashesMatch(layout workspace.Layout) (bool, []string, error) {
	ei, err := canon.LoadEvidenceIndex(layout.Abs(workspace.EvidenceIndexRel))
	if errors.Is(err, fs.ErrNotExist) {
		return false, []string{"missing " + workspace.EvidenceIndexRel}, nil
	}
	if err != nil {
		return false, nil, err
	}

	violations := []string{}
	for _, ev := range ei.Evidence {
		id := ev.EvidenceID
		if id == "" {
			id = "unknown_evidence"
		}
		if ev.RawPath == "" {
			violations = append(violations, id+":missing_raw_path")
			continue
		}
		if strings.Contains(ev.RawFileSHA256, artifact.Placeholder) || strings.Contains(ev.SliceSHA256, artifact.Placeholder) {
			violations = append(violations, id+":unset_hash")
			continue
		}
		raw, err := os.ReadFile(layout.Abs(ev.RawPath))
		if errors.Is(err, fs.ErrNotExist) {
			violations = append(violations, id+":raw_missing:"+ev.RawPath)
			continue
		}
		if err != nil {
			return false, nil, fmt.Errorf("read evidence raw %s: %w", ev.RawPath, err)
		}
		if canonical.SHA256Hex(raw) != ev.RawFileSHA256 {
			violations = append(violations, id+":raw_hash_mismatch")
			continue
		}
		sliceBytes, ok := resolveSlice(raw, ev.Range.JSONPointer)
		if !ok {
			violations = append(violations, id+":invalid_json_pointer")
			continue
		}
		if canonical.SHA256Hex(sliceBytes) != ev.SliceSHA256 {
			violations = append(violations, id+":slice_hash_mismatch")
		}
	}
	return len(violations) == 0, violations, nil
}

// resolveSlice returns the bytes the slice hash covers: the raw file itself
// when the pointer is empty, else the canonical JSON of the pointed-at value.
func resolveSlice(raw []byte, pointer string) ([]byte, bool) {
	if pointer == "" {
		return raw, true
	}
	doc, err := canonical.DecodeJSON(raw)
	if err != nil {
		return nil, false
	}
	value, err := canonical.ResolvePointer(doc, pointer)
	if err != nil {
		return nil, false
	}
	out, err := canonical.MarshalJSON(value)
	if err != nil {
		return nil, false
	}
	return out, true
}
