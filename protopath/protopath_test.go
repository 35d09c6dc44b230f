package protopath

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolve_JoinsEveryNameInOrder(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if got.Root != root {
		t.Errorf("Root %q, want %q", got.Root, root)
	}
	if len(got.Files) != len(SchemaFiles) {
		t.Fatalf("resolved %d files, want %d", len(got.Files), len(SchemaFiles))
	}
	seen := make(map[string]bool)
	for i, name := range SchemaFiles {
		want := filepath.Join(root, name)
		if got.Files[i] != want {
			t.Errorf("file %d is %q, want %q", i, got.Files[i], want)
		}
		if seen[got.Files[i]] {
			t.Errorf("file %q appears twice", got.Files[i])
		}
		seen[got.Files[i]] = true
	}
}

func TestResolve_CacheOverrides(t *testing.T) {
	root := t.TempDir()
	cache := "# cached layout\n\ngenerated/One.proto\n/absolute/Two.proto\n"
	if err := os.WriteFile(filepath.Join(root, CacheFile), []byte(cache), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := Resolve(root)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	want := []string{filepath.Join(root, "generated/One.proto"), "/absolute/Two.proto"}
	if len(got.Files) != len(want) {
		t.Fatalf("resolved %v, want %v", got.Files, want)
	}
	for i := range want {
		if got.Files[i] != want[i] {
			t.Errorf("file %d is %q, want %q", i, got.Files[i], want[i])
		}
	}
}

func TestResolve_EmptyCacheIsError(t *testing.T) {
	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, CacheFile), []byte("# nothing\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Resolve(root); err == nil {
		t.Fatal("an empty cache file must be an error")
	}
}
