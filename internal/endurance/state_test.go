package endurance

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStateFileResumesPriorCycleCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle")
	if err := os.WriteFile(path, []byte("1234\n"), 0o644); err != nil {
		t.Fatalf("seed state file: %v", err)
	}

	sv := &Supervisor{logger: nil}
	if err := sv.OpenState(path); err != nil {
		t.Fatalf("OpenState: %v", err)
	}
	defer sv.CloseState()

	if sv.Cycle() != 1234 {
		t.Fatalf("Cycle() after resume = %d, want 1234", sv.Cycle())
	}
}

func TestStateFileSaveRewritesInPlace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle")
	sv := &Supervisor{logger: nil}
	if err := sv.OpenState(path); err != nil {
		t.Fatalf("OpenState: %v", err)
	}

	sv.cycle = 1236
	if err := sv.SaveState(); err != nil {
		t.Fatalf("SaveState: %v", err)
	}
	if err := sv.CloseState(); err != nil {
		t.Fatalf("CloseState: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read state file: %v", err)
	}
	if string(data) != "1236\n" {
		t.Fatalf("state file contents = %q, want %q", data, "1236\n")
	}
}
