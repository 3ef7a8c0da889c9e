package artifact

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"unicode"

	"ratchet/internal/canonical"
)

// Generator identifies this tool in ledger provenance.
const Generator = "ratchet register"

// Markdown header keys recognized inside the leading comment block.
const (
	headerKind        = "DECISION_KIND"
	headerScope       = "DECISION_SCOPE_JSON"
	headerIdentity    = "DECISION_IDENTITY_FIELDS_JSON"
	headerLifecycleID = "LIFECYCLE_ID"
)

// ParseFile reads the artifact at the workspace-relative path rel and
// returns its ledger record. The suffix decides the canonical form: .json
// documents hash their canonical JSON, .md documents hash their canonical
// text. Any other suffix is rejected. Errors describe a single artifact and
// never abort the surrounding batch.
func ParseFile(root, rel string, d Defaults) (Record, error) {
	rel = path.Clean(filepath.ToSlash(rel))
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return Record{}, fmt.Errorf("read artifact: %w", err)
	}
	switch path.Ext(rel) {
	case ".json":
		return parseJSON(data, rel, d)
	case ".md":
		return parseMarkdown(data, rel, d)
	default:
		return Record{}, fmt.Errorf("unsupported artifact type: %s", rel)
	}
}

func parseJSON(data []byte, rel string, d Defaults) (Record, error) {
	tree, err := canonical.DecodeJSON(data)
	if err != nil {
		return Record{}, fmt.Errorf("parse json artifact: %w", err)
	}
	payload, ok := tree.(map[string]any)
	if !ok {
		return Record{}, fmt.Errorf("json artifact payload must be an object, got %T", tree)
	}

	docLifecycle, err := stringValue(payload, "artifact", "lifecycle_id")
	if err != nil {
		return Record{}, err
	}
	docScope, err := objectValue(payload, "decision_scope")
	if err != nil {
		return Record{}, err
	}
	docIdentity, err := objectValue(payload, "identity_fields")
	if err != nil {
		return Record{}, err
	}

	scope, err := resolveScope(docScope, docLifecycle, d)
	if err != nil {
		return Record{}, err
	}
	identity, err := resolveIdentity(docIdentity, d)
	if err != nil {
		return Record{}, err
	}

	kind, err := stringValue(payload, "artifact", "artifact_kind")
	if err != nil {
		return Record{}, err
	}
	if kind == "" {
		kind = stem(rel)
	}

	hash, err := canonical.HashJSON(tree)
	if err != nil {
		return Record{}, err
	}

	return Record{
		Kind:         kind,
		Scope:        scope,
		Identity:     identity,
		ArtifactPath: rel,
		ArtifactHash: hash,
		Policy: EquivalencePolicy{
			Canonicalization: "JSON sort keys, compact separators, UTF-8",
			CompareFields:    []string{"__full_json__"},
			PolicyName:       "canonical_json_sha256",
		},
		Provenance: Provenance{
			Generator:      Generator,
			SourceArtifact: rel,
			SourceType:     "json",
		},
	}, nil
}

func parseMarkdown(data []byte, rel string, d Defaults) (Record, error) {
	text := string(data)
	header := parseHeader(text)

	docScope, err := headerObject(header, headerScope)
	if err != nil {
		return Record{}, err
	}
	docIdentity, err := headerObject(header, headerIdentity)
	if err != nil {
		return Record{}, err
	}

	scope, err := resolveScope(docScope, header[headerLifecycleID], d)
	if err != nil {
		return Record{}, err
	}
	identity, err := resolveIdentity(docIdentity, d)
	if err != nil {
		return Record{}, err
	}

	kind := header[headerKind]
	if kind == "" {
		kind = stem(rel)
	}

	return Record{
		Kind:         kind,
		Scope:        scope,
		Identity:     identity,
		ArtifactPath: rel,
		ArtifactHash: canonical.HashText(text),
		Policy: EquivalencePolicy{
			Canonicalization: "LF normalize, trim trailing whitespace per line, UTF-8",
			CompareFields:    []string{"__full_text__"},
			PolicyName:       "canonical_lf_trim_trailing_ws_sha256",
		},
		Provenance: Provenance{
			Generator:      Generator,
			SourceArtifact: rel,
			SourceType:     "text",
		},
	}, nil
}

// parseHeader extracts KEY: value lines from a leading <!-- --> comment
// block. Documents without such a block yield an empty map.
func parseHeader(text string) map[string]string {
	out := map[string]string{}
	if !strings.HasPrefix(strings.TrimLeftFunc(text, unicode.IsSpace), "<!--") {
		return out
	}
	start := strings.Index(text, "<!--")
	end := strings.Index(text[start+4:], "-->")
	if end == -1 {
		return out
	}
	for _, line := range strings.Split(text[start+4:start+4+end], "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !strings.Contains(line, ":") {
			continue
		}
		key, value, _ := strings.Cut(line, ":")
		out[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return out
}

// headerObject decodes an embedded JSON object from a header value.
func headerObject(header map[string]string, key string) (map[string]any, error) {
	raw, ok := header[key]
	if !ok {
		return nil, nil
	}
	tree, err := canonical.DecodeJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", key, err)
	}
	obj, ok := tree.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected object, got %T", key, tree)
	}
	return obj, nil
}

// objectValue pulls key from payload as an object. Missing keys resolve to
// nil; present non-object values are malformed documents.
func objectValue(payload map[string]any, key string) (map[string]any, error) {
	raw, ok := payload[key]
	if !ok || raw == nil {
		return nil, nil
	}
	obj, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected object, got %T", key, raw)
	}
	return obj, nil
}

func stem(rel string) string {
	base := path.Base(rel)
	return strings.TrimSuffix(base, path.Ext(base))
}
