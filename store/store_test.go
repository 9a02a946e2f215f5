package store

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/chazu/trashdsl/compiler"
	"github.com/chazu/trashdsl/lib/natives"
	"github.com/chazu/trashdsl/vm"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "cache", "programs.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newEnv() *vm.Environment {
	env := vm.NewEnvironment()
	natives.Register(env)
	return env
}

const program = "sq(x) => x * x. total := 0. for i := 1 to 3 do total := total + sq(i). result := total"

func TestKeyDependsOnInputs(t *testing.T) {
	base := Key("main", "result := 1", "fp")
	if Key("main", "result := 1", "fp") != base {
		t.Error("Key should be deterministic")
	}
	for _, other := range []string{
		Key("other", "result := 1", "fp"),
		Key("main", "result := 2", "fp"),
		Key("main", "result := 1", "fp2"),
	} {
		if other == base {
			t.Error("Key should change with each input")
		}
	}
}

func TestPutGet(t *testing.T) {
	s := openTemp(t)
	env := newEnv()
	if _, err := compiler.New(env).Compile("main", program); err != nil {
		t.Fatal(err)
	}

	id, err := s.Put("k1", "main", env.CodeBlocks())
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if len(id) != 36 {
		t.Errorf("Expected uuid id, got %q", id)
	}

	p, err := s.Get("k1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if p.ID != id || p.Name != "main" || p.Key != "k1" {
		t.Errorf("Unexpected program %+v", p)
	}
	if len(p.Blocks) != 2 {
		t.Fatalf("Expected 2 blocks, got %d", len(p.Blocks))
	}
	if p.Blocks[0].Disassemble() != env.CodeBlocks()[0].Disassemble() {
		t.Error("Expected cached main block to match the compiled one")
	}
	if p.CreatedAt.IsZero() {
		t.Error("Expected a creation time")
	}
}

func TestGetMissing(t *testing.T) {
	s := openTemp(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestPutReplacesAndDelete(t *testing.T) {
	s := openTemp(t)
	env := newEnv()
	if _, err := compiler.New(env).Compile("main", "result := 1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put("k", "main", env.CodeBlocks()); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put("k", "main", env.CodeBlocks()); err != nil {
		t.Fatal(err)
	}
	if n, err := s.Count(); err != nil || n != 1 {
		t.Errorf("Expected 1 program, got %d (%v)", n, err)
	}

	if err := s.Delete("k"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if n, _ := s.Count(); n != 0 {
		t.Errorf("Expected empty cache, got %d", n)
	}
	if err := s.Delete("k"); err != nil {
		t.Errorf("Deleting a missing key should succeed, got %v", err)
	}
}

func TestCompileUsesCache(t *testing.T) {
	s := openTemp(t)

	env := newEnv()
	cb, hit, err := s.Compile(compiler.New(env), env, "main", program)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if hit {
		t.Error("First compile should miss the cache")
	}
	want, err := vm.New(env).Run(cb)
	if err != nil {
		t.Fatal(err)
	}

	fresh := newEnv()
	cached, hit, err := s.Compile(compiler.New(fresh), fresh, "main", program)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	if !hit {
		t.Fatal("Second compile should hit the cache")
	}
	if _, ok := fresh.CodeBlock("sq"); !ok {
		t.Error("Expected cached function block to be registered")
	}
	got, err := vm.New(fresh).Run(cached)
	if err != nil {
		t.Fatalf("Run cached failed: %v", err)
	}
	if got.String() != want.String() || got.AsNumber() != 14 {
		t.Errorf("Expected %s from cache, got %s", want, got)
	}
}

func TestCompileMissesOnDifferentEnvironment(t *testing.T) {
	s := openTemp(t)

	env := newEnv()
	if _, _, err := s.Compile(compiler.New(env), env, "main", "result := 1"); err != nil {
		t.Fatal(err)
	}

	other := newEnv()
	other.RegisterNative("extra", 0, nil)
	if _, hit, err := s.Compile(compiler.New(other), other, "main", "result := 1"); err != nil || hit {
		t.Errorf("Expected a miss for a different environment, got hit=%v err=%v", hit, err)
	}
	if n, _ := s.Count(); n != 2 {
		t.Errorf("Expected 2 cached programs, got %d", n)
	}
}

func TestCompileErrorsAreNotCached(t *testing.T) {
	s := openTemp(t)
	env := newEnv()
	if _, _, err := s.Compile(compiler.New(env), env, "main", "break"); err == nil {
		t.Fatal("Expected compile error")
	}
	if n, _ := s.Count(); n != 0 {
		t.Errorf("Expected nothing cached, got %d", n)
	}
}
