package main

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func writeModelDir(t *testing.T, root, name string) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", name, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "tokenizer.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write tokenizer for %s: %v", name, err)
	}
	return dir
}

func TestDiscoverModelsSorted(t *testing.T) {
	root := t.TempDir()
	b := writeModelDir(t, root, "b")
	a := writeModelDir(t, root, "a")
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "tokenizer.json"), []byte("{}"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := discoverModels(root)
	if err != nil {
		t.Fatalf("discoverModels returned error: %v", err)
	}
	want := []string{a, b}
	if len(got) != len(want) {
		t.Fatalf("unexpected model count: got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("unexpected ordering at %d: got %q want %q", i, got[i], want[i])
		}
	}
}

func TestDiscoverModelsRejectsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := discoverModels(path); err == nil {
		t.Fatal("expected error for a non-directory models path")
	}
	if _, err := discoverModels(" "); err == nil {
		t.Fatal("expected error for an empty models path")
	}
}

func TestResolveModelDir(t *testing.T) {
	t.Run("model flag bypasses env", func(t *testing.T) {
		t.Setenv(envModelsDir, "")
		got, err := resolveModelDir("/tmp/gpt2/", "", bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveModelDir returned error: %v", err)
		}
		if got != filepath.Clean("/tmp/gpt2") {
			t.Fatalf("unexpected model path: got %q", got)
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		t.Setenv(envModelsDir, "")
		if _, err := resolveModelDir("", "", bytes.NewBuffer(nil), io.Discard); err == nil {
			t.Fatal("expected error without --model or a models dir")
		}
	})

	t.Run("single model selects automatically", func(t *testing.T) {
		root := t.TempDir()
		only := writeModelDir(t, root, "only")
		t.Setenv(envModelsDir, root)

		prevTTY := stdinIsTTY
		stdinIsTTY = func() bool { return false }
		defer func() { stdinIsTTY = prevTTY }()

		got, err := resolveModelDir("", "", bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveModelDir returned error: %v", err)
		}
		if got != only {
			t.Fatalf("unexpected model path: got %q want %q", got, only)
		}
	})

	t.Run("models path flag wins over env", func(t *testing.T) {
		t.Setenv(envModelsDir, t.TempDir())
		root := t.TempDir()
		only := writeModelDir(t, root, "flagged")

		got, err := resolveModelDir("", root, bytes.NewBuffer(nil), io.Discard)
		if err != nil {
			t.Fatalf("resolveModelDir returned error: %v", err)
		}
		if got != only {
			t.Fatalf("unexpected model path: got %q want %q", got, only)
		}
	})

	t.Run("multiple models requires tty", func(t *testing.T) {
		root := t.TempDir()
		writeModelDir(t, root, "a")
		writeModelDir(t, root, "b")
		t.Setenv(envModelsDir, root)

		prevTTY := stdinIsTTY
		stdinIsTTY = func() bool { return false }
		defer func() { stdinIsTTY = prevTTY }()

		if _, err := resolveModelDir("", "", bytes.NewBuffer(nil), io.Discard); err == nil {
			t.Fatalf("expected error when multiple models and stdin is not a tty")
		}
	})

	t.Run("interactive selection chooses sorted index", func(t *testing.T) {
		root := t.TempDir()
		b := writeModelDir(t, root, "b")
		writeModelDir(t, root, "a")
		t.Setenv(envModelsDir, root)

		prevTTY := stdinIsTTY
		stdinIsTTY = func() bool { return true }
		defer func() { stdinIsTTY = prevTTY }()

		got, err := resolveModelDir("", "", bytes.NewBufferString("x\n2\n"), io.Discard)
		if err != nil {
			t.Fatalf("resolveModelDir returned error: %v", err)
		}
		if got != b {
			t.Fatalf("unexpected model selection: got %q want %q", got, b)
		}
	})
}
