package endurance

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

// Follow watches path for writes and invokes onCycle with the new cycle
// count each time it changes, until ctx is canceled. It is the --follow
// companion to Run: a second process can tail a state file the supervisor
// rewrites in place, instead of polling it.
func Follow(ctx context.Context, path string, onCycle func(uint32)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return ocderr.Wrap(ocderr.IoError, "create state file watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(path); err != nil {
		return ocderr.Wrap(ocderr.IoError, "watch state file", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			n, err := readCycle(path)
			if err != nil {
				continue
			}
			onCycle(n)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return ocderr.Wrap(ocderr.IoError, "state file watcher", err)
		}
	}
}

func readCycle(path string) (uint32, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	var n uint32
	if _, err := fmt.Fscanln(f, &n); err != nil {
		return 0, err
	}
	return n, nil
}
