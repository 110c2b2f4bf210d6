package cache

import (
	"strings"
	"testing"
)

func TestQueryKey_MapOrderIndependent(t *testing.T) {
	filters := []map[string]any{
		{"status": "done", "assignee": "me", "sorts": []any{"created"}},
		{"sorts": []any{"created"}, "status": "done", "assignee": "me"},
		{"assignee": "me", "sorts": []any{"created"}, "status": "done"},
	}

	want, err := QueryKey("db1", filters[0])
	if err != nil {
		t.Fatalf("QueryKey() error = %v", err)
	}
	for i, f := range filters[1:] {
		got, err := QueryKey("db1", f)
		if err != nil {
			t.Fatalf("QueryKey() error = %v", err)
		}
		if got != want {
			t.Errorf("filters[%d] key = %s, want %s", i+1, got, want)
		}
	}
}

func TestQueryKey_NestedAndStructInputs(t *testing.T) {
	type filter struct {
		Property string         `json:"property"`
		Where    map[string]any `json:"where"`
	}

	a, err := QueryKey("db1", filter{Property: "Status", Where: map[string]any{"z": 1, "a": 2}})
	if err != nil {
		t.Fatalf("QueryKey() error = %v", err)
	}
	b, err := QueryKey("db1", map[string]any{
		"where":    map[string]any{"a": 2, "z": 1},
		"property": "Status",
	})
	if err != nil {
		t.Fatalf("QueryKey() error = %v", err)
	}
	if a != b {
		t.Errorf("struct and equivalent map should share a key: %s != %s", a, b)
	}
}

func TestQueryKey_Distinguishes(t *testing.T) {
	tests := []struct {
		name   string
		idA    string
		inputA any
		idB    string
		inputB any
	}{
		{"different ids", "db1", map[string]any{"q": 1}, "db2", map[string]any{"q": 1}},
		{"array order matters", "db1", []any{1, 2}, "db1", []any{2, 1}},
		{"nil vs empty map", "db1", nil, "db1", map[string]any{}},
		{"different values", "db1", map[string]any{"q": "a"}, "db1", map[string]any{"q": "b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := QueryKey(tt.idA, tt.inputA)
			if err != nil {
				t.Fatalf("QueryKey() error = %v", err)
			}
			b, err := QueryKey(tt.idB, tt.inputB)
			if err != nil {
				t.Fatalf("QueryKey() error = %v", err)
			}
			if a == b {
				t.Errorf("keys should differ, both = %s", a)
			}
		})
	}
}

func TestQueryKey_Format(t *testing.T) {
	key, err := QueryKey("db1", map[string]any{"q": "x"})
	if err != nil {
		t.Fatalf("QueryKey() error = %v", err)
	}

	hash, ok := strings.CutPrefix(key, "db1:")
	if !ok {
		t.Fatalf("key %q should start with db1:", key)
	}
	if len(hash) != 16 {
		t.Errorf("hash length = %d, want 16", len(hash))
	}
	if strings.Trim(hash, "0123456789abcdef") != "" {
		t.Errorf("hash %q should be lowercase hex", hash)
	}

	bare, err := QueryKey("", "term")
	if err != nil {
		t.Fatalf("QueryKey() error = %v", err)
	}
	if len(bare) != 16 || strings.Contains(bare, ":") {
		t.Errorf("QueryKey with empty id = %q, want bare 16 char hash", bare)
	}
	if err := ValidateKey(key); err != nil {
		t.Errorf("query key should be a valid cache key: %v", err)
	}
}

func TestQueryKey_Unmarshalable(t *testing.T) {
	if _, err := QueryKey("db1", map[string]any{"fn": func() {}}); err == nil {
		t.Error("QueryKey should fail for values JSON cannot encode")
	}
}
