package types

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRecallTypes(t *testing.T) {
	all := RecallTypes(nil)
	want := []MemoryType{TypeSessionMessage, TypeFact, TypeDecision, TypeTask, TypeEvent}
	if diff := cmp.Diff(want, all); diff != "" {
		t.Errorf("RecallTypes(nil) mismatch (-want +got):\n%s", diff)
	}

	filtered := RecallTypes([]MemoryType{TypeFact})
	if len(filtered) != 1 || filtered[0] != TypeFact {
		t.Errorf("RecallTypes(fact) = %v, want [fact]", filtered)
	}

	// Unknown types in the whitelist are dropped rather than erroring.
	none := RecallTypes([]MemoryType{"bogus"})
	if len(none) != 0 {
		t.Errorf("RecallTypes(bogus) = %v, want empty", none)
	}
}

func TestInfo(t *testing.T) {
	info, err := Info(TypeDecision)
	if err != nil {
		t.Fatalf("Info(decision): %v", err)
	}
	if info.Table != "decisions" {
		t.Errorf("decision table = %q", info.Table)
	}
	if info.ContentExpr != "title || ': ' || decision" {
		t.Errorf("decision content expr = %q", info.ContentExpr)
	}

	ev, err := Info(TypeEvent)
	if err != nil {
		t.Fatalf("Info(event): %v", err)
	}
	if ev.TimeColumn != "occurred_at" {
		t.Errorf("event time column = %q", ev.TimeColumn)
	}

	if _, err := Info(TypeProject); err == nil {
		t.Error("Info(project) should not be recallable")
	}
}

func TestValidSlug(t *testing.T) {
	valid := []string{"a", "a-b_c", "agent1", "9lives", "p2-test-1"}
	for _, s := range valid {
		if !ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "abc!", "-lead", "_lead", "UPPER", "has space"}
	for _, s := range invalid {
		if ValidSlug(s) {
			t.Errorf("ValidSlug(%q) = true, want false", s)
		}
	}
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"Simple", "My Project", "my-project"},
		{"Punctuation", "Hello, World!", "hello-world"},
		{"CollapseRuns", "a  --  b", "a-b"},
		{"TrimEdges", "  edged  ", "edged"},
		{"AlreadyClean", "already-clean", "already-clean"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Slugify(tt.in); got != tt.want {
				t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestEnumValidators(t *testing.T) {
	if !ValidRole("tool") || ValidRole("bot") {
		t.Error("ValidRole mismatch")
	}
	if !ValidTaskStatus("blocked") || ValidTaskStatus("done") {
		t.Error("ValidTaskStatus mismatch")
	}
	if !ValidSeverity("critical") || ValidSeverity("fatal") {
		t.Error("ValidSeverity mismatch")
	}
	if !ValidRelation("derived_from") || ValidRelation("linked") {
		t.Error("ValidRelation mismatch")
	}
	if !ValidProjectStatus("paused") || ValidProjectStatus("open") {
		t.Error("ValidProjectStatus mismatch")
	}
}
