package vartree

import "testing"

func TestChildID_StableAndDeterministic(t *testing.T) {
	a := ChildID(ScopeID("Global"), "process")
	b := ChildID(ScopeID("Global"), "process")
	if a != b {
		t.Errorf("same path produced different ids: %q vs %q", a, b)
	}
	if a != "scope:Global/process" {
		t.Errorf("id = %q, want scope:Global/process", a)
	}
}

func TestChildID_DistinctPathsNeverCollide(t *testing.T) {
	// "a/b" as one name segment must not collide with nested a → b.
	flat := ChildID(ScopeID("Local"), "a/b")
	nested := ChildID(ChildID(ScopeID("Local"), "a"), "b")
	if flat == nested {
		t.Fatalf("escaping failed: %q collides with %q", flat, nested)
	}

	// A literal percent must survive the round trip too.
	tricky := ChildID(ScopeID("Local"), "%2F")
	plain := ChildID(ScopeID("Local"), "/")
	if tricky == plain {
		t.Fatalf("%%-escaping failed: %q collides with %q", tricky, plain)
	}
}

func TestSegmentNames_RoundTrip(t *testing.T) {
	id := ChildID(ChildID(ScopeID("Global"), "pro/cess"), "env%PATH")
	names := SegmentNames(id)
	want := []string{"Global", "pro/cess", "env%PATH"}
	if len(names) != len(want) {
		t.Fatalf("names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
	if BaseName(id) != "env%PATH" {
		t.Errorf("BaseName = %q, want env%%PATH", BaseName(id))
	}
}

func TestIsScopeID(t *testing.T) {
	if !IsScopeID(ScopeID("Global")) {
		t.Error("scope root should be a scope id")
	}
	if IsScopeID(ChildID(ScopeID("Global"), "process")) {
		t.Error("nested node should not be a scope id")
	}
	if IsScopeID("process") {
		t.Error("bare name should not be a scope id")
	}
}
