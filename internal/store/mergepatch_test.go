package store

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestMergePatch(t *testing.T) {
	tests := []struct {
		name   string
		target map[string]interface{}
		patch  map[string]interface{}
		want   map[string]interface{}
	}{
		{
			name:   "set new key",
			target: map[string]interface{}{"a": "1"},
			patch:  map[string]interface{}{"b": "2"},
			want:   map[string]interface{}{"a": "1", "b": "2"},
		},
		{
			name:   "replace existing key",
			target: map[string]interface{}{"a": "1"},
			patch:  map[string]interface{}{"a": "2"},
			want:   map[string]interface{}{"a": "2"},
		},
		{
			name:   "null deletes key",
			target: map[string]interface{}{"a": "1", "b": "2"},
			patch:  map[string]interface{}{"b": nil},
			want:   map[string]interface{}{"a": "1"},
		},
		{
			name:   "null on absent key is a no-op",
			target: map[string]interface{}{"a": "1"},
			patch:  map[string]interface{}{"b": nil},
			want:   map[string]interface{}{"a": "1"},
		},
		{
			name:   "nested merge",
			target: map[string]interface{}{"persona": map[string]interface{}{"tone": "formal", "lang": "en"}},
			patch:  map[string]interface{}{"persona": map[string]interface{}{"tone": "casual"}},
			want:   map[string]interface{}{"persona": map[string]interface{}{"tone": "casual", "lang": "en"}},
		},
		{
			name:   "nested null deletes nested key",
			target: map[string]interface{}{"persona": map[string]interface{}{"tone": "formal", "lang": "en"}},
			patch:  map[string]interface{}{"persona": map[string]interface{}{"lang": nil}},
			want:   map[string]interface{}{"persona": map[string]interface{}{"tone": "formal"}},
		},
		{
			name:   "object replaces scalar",
			target: map[string]interface{}{"a": "1"},
			patch:  map[string]interface{}{"a": map[string]interface{}{"b": "2"}},
			want:   map[string]interface{}{"a": map[string]interface{}{"b": "2"}},
		},
		{
			name:   "empty patch",
			target: map[string]interface{}{"a": "1"},
			patch:  map[string]interface{}{},
			want:   map[string]interface{}{"a": "1"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MergePatch(tt.target, tt.patch)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("MergePatch mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMergePatchDoesNotMutateTarget(t *testing.T) {
	target := map[string]interface{}{"a": "1", "nested": map[string]interface{}{"x": "y"}}
	MergePatch(target, map[string]interface{}{"a": nil, "nested": map[string]interface{}{"x": "z"}})

	if target["a"] != "1" {
		t.Error("target top-level key mutated")
	}
	if target["nested"].(map[string]interface{})["x"] != "y" {
		t.Error("target nested key mutated")
	}
}
