package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRecordReadClear(t *testing.T) {
	r := New(filepath.Join(t.TempDir(), "run", "pids"))
	if err := r.Record("auth", 4242); err != nil {
		t.Fatalf("Record: %v", err)
	}
	pid, ok := r.Read("auth")
	if !ok || pid != 4242 {
		t.Fatalf("Read = %d, %v", pid, ok)
	}
	if err := r.Clear("auth"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, ok := r.Read("auth"); ok {
		t.Fatalf("marker survived Clear")
	}
}

func TestRecordCreatesParentDirs(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "c")
	r := New(dir)
	if err := r.Record("web", 1); err != nil {
		t.Fatalf("Record into missing dirs: %v", err)
	}
	if _, err := os.Stat(r.Path("web")); err != nil {
		t.Fatalf("marker not created: %v", err)
	}
}

func TestReadTrimsWhitespace(t *testing.T) {
	r := New(t.TempDir())
	if err := os.WriteFile(r.Path("network"), []byte(" 567\n"), 0o600); err != nil {
		t.Fatalf("write marker: %v", err)
	}
	pid, ok := r.Read("network")
	if !ok || pid != 567 {
		t.Fatalf("Read = %d, %v", pid, ok)
	}
}

func TestReadMalformedIsAbsent(t *testing.T) {
	r := New(t.TempDir())
	for _, content := range []string{"", "not-a-pid", "-3", "0", "12x"} {
		if err := os.WriteFile(r.Path("svc"), []byte(content), 0o600); err != nil {
			t.Fatalf("write marker: %v", err)
		}
		if _, ok := r.Read("svc"); ok {
			t.Fatalf("content %q must read as absent", content)
		}
	}
}

func TestClearMissingIsNoop(t *testing.T) {
	r := New(t.TempDir())
	if err := r.Clear("ghost"); err != nil {
		t.Fatalf("Clear missing marker: %v", err)
	}
}
