package epoch

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestOpenFreshStore(t *testing.T) {
	s, err := Open(t.TempDir(), "node-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if got := s.Load(); got != 0 {
		t.Errorf("fresh epoch = %d, want 0", got)
	}
	if _, err := os.Stat(s.FilePath()); !os.IsNotExist(err) {
		t.Errorf("fresh store should not create a file yet, stat err = %v", err)
	}
}

func TestSaveAndReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, "node-1")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	if err := s.Save(4); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	reopened, err := Open(dir, "node-1")
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	if got := reopened.Load(); got != 4 {
		t.Errorf("reopened epoch = %d, want 4", got)
	}

	rec, err := ReadFile(filepath.Join(dir, stateFileName))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if rec.NodeID != "node-1" || rec.Version != currentStateVersion {
		t.Errorf("unexpected record %+v", rec)
	}
	if _, err := os.Stat(filepath.Join(dir, stateFileName+".tmp")); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestSaveRefusesRegression(t *testing.T) {
	s, _ := Open(t.TempDir(), "node-1")
	if err := s.Save(7); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	err := s.Save(6)
	if !errors.Is(err, ErrEpochRegression) {
		t.Fatalf("expected ErrEpochRegression, got %v", err)
	}
	if got := s.Load(); got != 7 {
		t.Errorf("epoch changed after refused save: %d", got)
	}

	if err := s.Save(7); err != nil {
		t.Errorf("saving the same epoch should succeed, got %v", err)
	}
}

func TestUnsupportedVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, stateFileName)
	if err := os.WriteFile(path, []byte(`{"version": 9, "epoch": 3}`), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(dir, "node-1"); !errors.Is(err, ErrUnsupportedState) {
		t.Errorf("expected ErrUnsupportedState, got %v", err)
	}
}
