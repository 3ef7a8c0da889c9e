// Package canonical pins the byte forms everything else hashes: a single
// canonical JSON encoding and a single canonical text encoding. Every hash
// in the ledger and the guard flows through these two functions, so their
// output is a wire contract and must never drift.
package canonical

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode"
)

// DecodeJSON parses data into a generic tree with number literals preserved
// as json.Number. Trailing content after the first value is rejected.
func DecodeJSON(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if dec.More() {
		return nil, errors.New("trailing data after json value")
	}
	return v, nil
}

// MarshalJSON renders v in canonical form: object keys sorted, compact
// separators, UTF-8 kept raw, HTML escaping off. The value is round-tripped
// through DecodeJSON first so that struct fields become sorted map keys and
// json.Number literals survive byte for byte, making the form a fixed point:
// MarshalJSON(DecodeJSON(out)) == out.
func MarshalJSON(v any) ([]byte, error) {
	first, err := encodeCompact(v)
	if err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	tree, err := DecodeJSON(first)
	if err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	out, err := encodeCompact(tree)
	if err != nil {
		return nil, fmt.Errorf("canonical json: %w", err)
	}
	return out, nil
}

func encodeCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Text normalizes s for hashing: CRLF and bare CR collapse to LF, every
// line drops trailing whitespace, and blank lines at either edge are
// trimmed. Trailing-space edits and newline-convention changes therefore
// never move a text hash.
func Text(s string) []byte {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRightFunc(line, unicode.IsSpace)
	}
	return []byte(strings.Trim(strings.Join(lines, "\n"), "\n"))
}

// SHA256Hex returns the lowercase hex SHA-256 digest of data.
func SHA256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HashJSON hashes the canonical JSON form of v.
func HashJSON(v any) (string, error) {
	b, err := MarshalJSON(v)
	if err != nil {
		return "", err
	}
	return SHA256Hex(b), nil
}

// HashText hashes the canonical text form of s.
func HashText(s string) string {
	return SHA256Hex(Text(s))
}
