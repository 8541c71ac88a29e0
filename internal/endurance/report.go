package endurance

import (
	"os"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/z8ocd/ocdctl/internal/ocderr"
)

// Report is the end-of-run summary written by --report, supplementing the
// original tool's mail-only status with something a script can parse.
type Report struct {
	Cycles      uint32        `yaml:"cycles"`
	Errors      int           `yaml:"errors"`
	Duration    time.Duration `yaml:"duration"`
	LastPattern string        `yaml:"last_pattern"`
}

var patternNames = [4]string{"checkerboard", "reverse_checkerboard", "zeros", "random"}

func patternName(cycle uint32) string {
	return patternNames[cycle%4]
}

// WriteReport renders the supervisor's final state as YAML to path.
func (sv *Supervisor) WriteReport(path string) error {
	r := Report{
		Cycles:      sv.cycle,
		Errors:      sv.errorCount,
		Duration:    sv.runDuration,
		LastPattern: patternName(sv.cycle),
	}
	data, err := yaml.Marshal(r)
	if err != nil {
		return ocderr.Wrap(ocderr.IoError, "marshal report", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return ocderr.Wrap(ocderr.IoError, "write report file", err)
	}
	return nil
}
