package geom

import "testing"

func TestParameterSetCanonicalDeterministic(t *testing.T) {
	a := ParameterSet{"width": float64(50), "label": "lid", "solid": true}
	b := ParameterSet{"solid": true, "label": "lid", "width": float64(50)}
	if string(a.Canonical()) != string(b.Canonical()) {
		t.Fatal("key order changed the canonical form")
	}
	if !a.Equal(b) {
		t.Fatal("equal sets compare unequal")
	}
	c := a.Clone()
	c["width"] = float64(60)
	if a.Equal(c) {
		t.Fatal("value change not reflected in comparison")
	}
	if a["width"] != float64(50) {
		t.Fatal("Clone shares storage with the original")
	}
}

func TestParameterSetCanonicalNil(t *testing.T) {
	var p ParameterSet
	if got := string(p.Canonical()); got != "" {
		t.Fatalf("nil canonical = %q, want empty", got)
	}
	if p.Clone() != nil {
		t.Fatal("nil Clone must stay nil")
	}
}

func TestSourceSignature(t *testing.T) {
	p := Project{Name: "bracket", Source: "cube(1);"}
	if got := p.SourceSignature(); got != "bracket:8" {
		t.Fatalf("signature = %q", got)
	}
	q := p
	q.Source = "cube(2);" // same length: parameter-only edits share a signature
	if q.SourceSignature() != p.SourceSignature() {
		t.Fatal("signature changed for same-length source")
	}
}

func TestLibraryIDsSorted(t *testing.T) {
	p := Project{Libraries: []Library{{ID: "b"}, {ID: "a"}, {ID: "c"}}}
	ids := p.LibraryIDs()
	if len(ids) != 3 || ids[0] != "a" || ids[1] != "b" || ids[2] != "c" {
		t.Fatalf("ids = %v", ids)
	}
}
