package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "trash.toml", `
[project]
name = "test-app"
version = "0.1.0"

[source]
entry = "app.trash"

[constants]
limit = 10
greeting = "hi"
debug = true

[run]
trace = true
trace-all = true
max-call-depth = 200
disassemble = true

[cache]
enabled = true
path = "build/cache.db"

[log]
verbosity = 2
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if m.Source.Entry != "app.trash" {
		t.Errorf("source entry = %q, want app.trash", m.Source.Entry)
	}
	if !m.Run.Trace || !m.Run.TraceAll || !m.Run.Disassemble {
		t.Errorf("run flags = %+v, want all set", m.Run)
	}
	if m.Run.MaxCallDepth != 200 {
		t.Errorf("max call depth = %d, want 200", m.Run.MaxCallDepth)
	}
	if !m.Cache.Enabled {
		t.Error("cache enabled = false, want true")
	}
	if m.Log.Verbosity != 2 {
		t.Errorf("log verbosity = %d, want 2", m.Log.Verbosity)
	}
	if got := m.CachePath(); got != filepath.Join(m.Dir, "build", "cache.db") {
		t.Errorf("cache path = %q", got)
	}
	if got := m.EntryPath(); got != filepath.Join(m.Dir, "app.trash") {
		t.Errorf("entry path = %q", got)
	}

	names := m.ConstantNames()
	if len(names) != 3 || names[0] != "debug" || names[1] != "greeting" || names[2] != "limit" {
		t.Errorf("constant names = %v", names)
	}
	if v := m.ConstantValue("limit"); v.AsNumber() != 10 {
		t.Errorf("limit = %s, want 10", v)
	}
	if v := m.ConstantValue("greeting"); v.AsString() != "hi" {
		t.Errorf("greeting = %s, want hi", v)
	}
	if v := m.ConstantValue("debug"); !v.AsBool() {
		t.Errorf("debug = %s, want true", v)
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "trash.toml", `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Source.Entry != "main.trash" {
		t.Errorf("default entry = %q, want main.trash", m.Source.Entry)
	}
	if m.Cache.Path != filepath.Join(".trash", "cache.db") {
		t.Errorf("default cache path = %q", m.Cache.Path)
	}
	if m.Run.MaxCallDepth != 0 {
		t.Errorf("default max call depth = %d, want 0", m.Run.MaxCallDepth)
	}
}

func TestLoadYAMLManifest(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "trash.yaml", `
project:
  name: yaml-app
run:
  max-call-depth: 50
constants:
  ratio: 1.5
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "yaml-app" {
		t.Errorf("project name = %q, want yaml-app", m.Project.Name)
	}
	if m.Run.MaxCallDepth != 50 {
		t.Errorf("max call depth = %d, want 50", m.Run.MaxCallDepth)
	}
	if v := m.ConstantValue("ratio"); v.AsNumber() != 1.5 {
		t.Errorf("ratio = %s, want 1.5", v)
	}
}

func TestTOMLPreferredOverYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "trash.toml", "[project]\nname = \"from-toml\"\n")
	writeFile(t, dir, "trash.yaml", "project:\n  name: from-yaml\n")

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Project.Name != "from-toml" {
		t.Errorf("project name = %q, want from-toml", m.Project.Name)
	}
}

func TestValidationRejects(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"negative max call depth", "trash.toml", "[run]\nmax-call-depth = -1\n"},
		{"negative max call depth yaml", "trash.yaml", "run:\n  max-call-depth: -5\n"},
		{"unknown section", "trash.toml", "[plugins]\nx = 1\n"},
		{"unknown field", "trash.toml", "[run]\nturbo = true\n"},
		{"wrong type", "trash.toml", "[run]\ntrace = \"yes\"\n"},
		{"bad entry extension", "trash.toml", "[source]\nentry = \"main.txt\"\n"},
		{"container constant", "trash.toml", "[constants]\nlist = [1, 2]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeFile(t, dir, tt.file, tt.content)
			if _, err := Load(dir); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestValidateEmptyDocument(t *testing.T) {
	if err := Validate(nil); err != nil {
		t.Errorf("empty manifest should validate, got %v", err)
	}
}

func TestLoadMissing(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("expected error for a directory without a manifest")
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "trash.toml", "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no trash.toml exists")
	}
}

func TestAbsolutePathsKept(t *testing.T) {
	m := &Manifest{Dir: "/app", Cache: CacheConfig{Path: "/var/cache/trash.db"}, Source: Source{Entry: "main.trash"}}
	if m.CachePath() != "/var/cache/trash.db" {
		t.Errorf("cache path = %q", m.CachePath())
	}
	if m.EntryPath() != "/app/main.trash" {
		t.Errorf("entry path = %q", m.EntryPath())
	}
}
