package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadDocument_PlainAndParsed(t *testing.T) {
	dir := t.TempDir()
	raw := filepath.Join(dir, "notes.log")
	if err := os.WriteFile(raw, []byte("a b\n\nc"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := readDocument(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "a b\n\nc" {
		t.Errorf("expected %q, got %q", "a b\n\nc", got)
	}

	md := filepath.Join(dir, "doc.md")
	if err := os.WriteFile(md, []byte("# Title\n\nSome *text* here.\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = readDocument(md)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "Title\nSome text here."; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestLoadEntities(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.json")
	body := `[{"id":"e1","start_token_index":2,"token_length":1,"data":{"name":"Person"}}]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	entities, err := loadEntities(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entities) != 1 || entities[0].Data.Name != "Person" || entities[0].StartTokenIndex != 2 {
		t.Errorf("unexpected entities %+v", entities)
	}

	if entities, err := loadEntities(""); err != nil || entities != nil {
		t.Errorf("expected no entities for empty path, got %v %v", entities, err)
	}
}

func TestFirstDiff(t *testing.T) {
	if got := firstDiff("hello world", "hello there"); got != "world" {
		t.Errorf("expected %q, got %q", "world", got)
	}
	if got := firstDiff("same", "same"); got != "" {
		t.Errorf("expected empty, got %q", got)
	}
}
