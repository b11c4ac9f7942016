package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsHappyPath(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC))
	m := NewWithClock(clock)

	m.RecordSourceBytes(2048)
	m.RecordRowsLoaded(2000)
	m.RecordRowsLoaded(500)
	m.RecordNormalization(10, 3, 2)
	m.RecordHashing(10, 5)
	m.RecordDataFile(1250, 400)
	m.RecordDataFile(1250, 380)
	m.RecordManifest()
	m.RecordPartitions(2)

	clock.Advance(1500 * time.Millisecond)
	report := m.GenerateReport("run-1", "customers")

	assert.Equal(t, int64(2048), report.NumBytes)
	assert.Equal(t, int64(2500), report.RowsLoaded)
	assert.Equal(t, int64(2500), report.NumRows)
	assert.Equal(t, int64(2), report.FilesWritten)
	assert.Equal(t, int64(1), report.Manifests)
	assert.Equal(t, int64(3), report.Unnormalizable)
	assert.Equal(t, 1500*time.Millisecond, report.Duration)

	assert.Equal(t, float64(3), testutil.ToFloat64(m.valuesUnnormalized))
	assert.Equal(t, float64(7), testutil.ToFloat64(m.valuesSkipped))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.filesWrittenTotal.WithLabelValues("data")))
	assert.Equal(t, float64(780), testutil.ToFloat64(m.bytesWrittenTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.partitions))

	str := report.String()
	assert.Contains(t, str, "run-1")
	assert.Contains(t, str, "Unnormalizable values: 3")
}

func TestReportMarshalJSON(t *testing.T) {
	r := Report{JobRunID: "r", DatasetID: "d", NumRows: 4, Duration: 2 * time.Second}
	b, err := json.Marshal(r)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, "2s", decoded["duration"])
	assert.Equal(t, float64(4), decoded["numRows"])
	assert.Equal(t, "d", decoded["datasetId"])
}

func TestInstancesDoNotShareState(t *testing.T) {
	a, b := New(), New()
	a.RecordRowsLoaded(5)
	assert.Equal(t, float64(5), testutil.ToFloat64(a.rowsLoadedTotal))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.rowsLoadedTotal))
}

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.RecordNormalization(1, 4, 0)
	m.ObserveStage("load", 20*time.Millisecond)

	path := filepath.Join(t.TempDir(), "amc_etl.prom")
	require.NoError(t, m.WriteTextfile(path))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(b)
	assert.True(t, strings.Contains(out, "amc_etl_values_unnormalizable_total 4"), out)
	assert.Contains(t, out, `amc_etl_stage_duration_seconds_count{stage="load"} 1`)
}
