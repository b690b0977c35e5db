package catalog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func sample() *Catalog {
	return FromNames([]string{"Person", "Place", "Organization", "Date", "Product"})
}

func TestSlugify(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Person", "person"},
		{"  New York City ", "new-york-city"},
		{"Café Müller", "cafe-muller"},
		{"a -- b", "a-b"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := Slugify(tt.input); got != tt.expected {
			t.Errorf("Slugify(%q): expected %q, got %q", tt.input, tt.expected, got)
		}
	}
	if got := Slugify(strings.Repeat("ab", 50)); len(got) > 64 {
		t.Errorf("expected slug capped at 64 bytes, got %d", len(got))
	}
}

func TestNew_DerivesIDsAndDropsBlanks(t *testing.T) {
	c := New([]Option{{Name: "Person"}, {Name: "  "}, {ID: "loc", Name: "Place"}, {Name: "person"}})
	if c.Len() != 2 {
		t.Fatalf("expected 2 options, got %+v", c.Options())
	}
	if o, ok := c.Get("person"); !ok || o.Name != "Person" {
		t.Errorf("expected derived id person, got %+v", o)
	}
	if _, ok := c.Get("loc"); !ok {
		t.Error("expected explicit id to be kept")
	}
}

func TestSearch_BlankQueryListsInOrder(t *testing.T) {
	got := sample().Search("  ", 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 matches, got %d", len(got))
	}
	if got[0].Option.Name != "Person" || got[2].Option.Name != "Organization" {
		t.Errorf("expected catalog order, got %+v", got)
	}
	if len(got[0].Segments) != 1 || got[0].Segments[0].Matched {
		t.Errorf("expected one unmatched segment, got %+v", got[0].Segments)
	}
}

func TestSearch_FuzzyHighlights(t *testing.T) {
	got := sample().Search("pl", 0)
	if len(got) == 0 || got[0].Option.Name != "Place" {
		t.Fatalf("expected Place first, got %+v", got)
	}
	segs := got[0].Segments
	if len(segs) != 2 || segs[0].Text != "Pl" || !segs[0].Matched || segs[1].Text != "ace" || segs[1].Matched {
		t.Errorf("unexpected segments %+v", segs)
	}

	var joined strings.Builder
	for _, s := range segs {
		joined.WriteString(s.Text)
	}
	if joined.String() != "Place" {
		t.Errorf("expected segments to rebuild %q, got %q", "Place", joined.String())
	}

	if got := sample().Search("zzz", 0); len(got) != 0 {
		t.Errorf("expected no matches, got %+v", got)
	}
}

func TestSegments_MultiByte(t *testing.T) {
	segs := segments("über", []int{0})
	if len(segs) != 2 || segs[0].Text != "ü" || !segs[0].Matched || segs[1].Text != "ber" {
		t.Errorf("unexpected segments %+v", segs)
	}
}

func TestPicker_Wraps(t *testing.T) {
	p := NewPicker(sample(), 3)
	if o, _ := p.Selected(); o.Name != "Person" {
		t.Errorf("expected Person, got %q", o.Name)
	}
	p.Up()
	if p.Highlight() != 2 {
		t.Errorf("expected wrap to last (2), got %d", p.Highlight())
	}
	p.Down()
	if p.Highlight() != 0 {
		t.Errorf("expected wrap to first (0), got %d", p.Highlight())
	}
}

func TestPicker_ClampsOnShrink(t *testing.T) {
	p := NewPicker(sample(), 0)
	p.Up() // last of five
	p.SetQuery("date")
	if p.Highlight() != len(p.Matches())-1 {
		t.Errorf("expected highlight clamped to %d, got %d", len(p.Matches())-1, p.Highlight())
	}
	p.SetQuery("zzz")
	if p.Highlight() != 0 {
		t.Errorf("expected 0 on empty list, got %d", p.Highlight())
	}
	if _, ok := p.Selected(); ok {
		t.Error("expected no selection")
	}
	p.Down()
	p.Up()
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	if err := os.WriteFile(path, []byte(`[{"id":"per","name":"Person"},{"name":"Place"}]`), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 options, got %d", c.Len())
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
