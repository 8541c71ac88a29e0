package endurance

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestFollowReportsCycleOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle")
	if err := os.WriteFile(path, []byte("1\n"), 0o644); err != nil {
		t.Fatalf("seed state file: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	seen := make(chan uint32, 4)
	go func() {
		_ = Follow(ctx, path, func(n uint32) { seen <- n })
	}()

	time.Sleep(50 * time.Millisecond)
	if err := os.WriteFile(path, []byte("2\n"), 0o644); err != nil {
		t.Fatalf("rewrite state file: %v", err)
	}

	select {
	case n := <-seen:
		if n != 2 {
			t.Fatalf("Follow reported cycle %d, want 2", n)
		}
	case <-time.After(1500 * time.Millisecond):
		t.Fatal("Follow did not report the write within the deadline")
	}
}

func TestReadCycle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycle")
	if err := os.WriteFile(path, []byte("77\n"), 0o644); err != nil {
		t.Fatalf("seed state file: %v", err)
	}

	n, err := readCycle(path)
	if err != nil {
		t.Fatalf("readCycle: %v", err)
	}
	if n != 77 {
		t.Fatalf("readCycle = %d, want 77", n)
	}
}
