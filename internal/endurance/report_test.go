package endurance

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.yaml.in/yaml/v3"
)

func TestWriteReportRoundTrips(t *testing.T) {
	sv := &Supervisor{cycle: 42, errorCount: 2, runDuration: 3 * time.Second}
	path := filepath.Join(t.TempDir(), "report.yaml")

	require.NoError(t, sv.WriteReport(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var r Report
	require.NoError(t, yaml.Unmarshal(data, &r))
	require.Equal(t, Report{
		Cycles:      42,
		Errors:      2,
		Duration:    3 * time.Second,
		LastPattern: "zeros",
	}, r)
}
