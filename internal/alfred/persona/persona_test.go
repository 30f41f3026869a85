package persona

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParse_FullDocument(t *testing.T) {
	data := []byte(`
name: Jeeves
personality: |
  You are Jeeves, a dry-witted butler.
intro: |
  Good day. Jeeves at your service.
`)
	p, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.Name != "Jeeves" {
		t.Errorf("Name = %q, want Jeeves", p.Name)
	}
	if !strings.Contains(p.Personality, "dry-witted butler") {
		t.Errorf("Personality = %q", p.Personality)
	}
	if !strings.Contains(p.Intro, "at your service") {
		t.Errorf("Intro = %q", p.Intro)
	}
}

func TestParse_PartialDocumentFallsBack(t *testing.T) {
	p, err := Parse([]byte("name: Jeeves\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p.Name != "Jeeves" {
		t.Errorf("Name = %q, want Jeeves", p.Name)
	}
	def := Default()
	if p.Personality != def.Personality {
		t.Error("empty personality should fall back to the default")
	}
	if p.Intro != def.Intro {
		t.Error("empty intro should fall back to the default")
	}
}

func TestParse_EmptyDocument(t *testing.T) {
	p, err := Parse([]byte(""))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if p != Default() {
		t.Errorf("Parse(empty) = %+v, want the embedded defaults", p)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse([]byte("name: [unclosed"))
	if err == nil {
		t.Fatal("Parse() = nil error for invalid YAML")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "persona.yaml")
	if err := os.WriteFile(path, []byte("name: Jeeves\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	p, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if p.Name != "Jeeves" {
		t.Errorf("Name = %q, want Jeeves", p.Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) = nil error, want read failure")
	}
}

func TestDefault(t *testing.T) {
	p := Default()
	if p.Name != "Alfred" {
		t.Errorf("default Name = %q, want Alfred", p.Name)
	}
	if p.Personality == "" || p.Intro == "" {
		t.Error("default persona has empty fields")
	}
}
