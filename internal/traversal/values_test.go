package traversal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	language "github.com/hanpama/graphcache/internal/language"
)

func TestNormalizeVariables(t *testing.T) {
	doc := mustParseQuery(t, `query ($id: ID!, $first: Int = 10, $after: String) { todos(first: $first, after: $after) { id } }`)

	got := NormalizeVariables(doc.Operations[0], map[string]any{"id": "1", "unused": true, "after": nil})
	want := map[string]any{"id": "1", "first": 10, "after": nil}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("variables mismatch (-want +got):\n%s", diff)
	}
}

func TestFieldArguments(t *testing.T) {
	doc := mustParseQuery(t, `query ($id: ID, $tags: [String]) {
		plain
		todo(id: $id)
		search(text: "x", limit: 2, ratio: 0.5, done: false, kind: OPEN, none: null)
		filter(input: { tags: $tags, nested: [1, $missing] })
	}`)
	vars := map[string]any{"tags": []any{"a"}}
	sel := doc.Operations[0].SelectionSet

	tests := []struct {
		name string
		want map[string]any
	}{
		{"plain", nil},
		{"todo", nil},
		{"search", map[string]any{"text": "x", "limit": 2, "ratio": 0.5, "done": false, "kind": "OPEN", "none": nil}},
		{"filter", map[string]any{"input": map[string]any{"tags": []any{"a"}, "nested": []any{1, nil}}}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FieldArguments(sel[i].(*language.Field), vars)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("arguments mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
