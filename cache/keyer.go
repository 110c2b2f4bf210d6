package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
)

// QueryKey derives a deterministic identifier for a parameterised read,
// such as a database query with a filter or a search with options.
// Format: <id>:<hash>, hash being the first 16 hex characters of
// SHA-256 over the canonical JSON of input. An empty id yields just <hash>.
func QueryKey(id string, input any) (string, error) {
	canonical, err := canonicalize(input)
	if err != nil {
		return "", fmt.Errorf("cache: failed to canonicalize query: %w", err)
	}

	sum := sha256.Sum256(canonical)
	hash := hex.EncodeToString(sum[:8])
	if id == "" {
		return hash, nil
	}
	return id + ":" + hash, nil
}

// canonicalize produces JSON with map keys sorted at every depth.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		// Structs and typed maps go through a JSON round trip so nested
		// maps end up sorted too.
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, err
		}
		switch generic.(type) {
		case map[string]any, []any:
			return canonicalize(generic)
		}
		return raw, nil
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	out := []byte{'{'}
	for i, k := range keys {
		if i > 0 {
			out = append(out, ',')
		}
		name, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		out = append(out, name...)
		out = append(out, ':')

		val, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		out = append(out, val...)
	}
	return append(out, '}'), nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	out := []byte{'['}
	for i, v := range s {
		if i > 0 {
			out = append(out, ',')
		}
		val, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		out = append(out, val...)
	}
	return append(out, ']'), nil
}
