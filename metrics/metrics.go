// Package metrics collects job counters, exposes them as Prometheus metrics
// and builds the end-of-job performance report.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the counters of one job run. Each instance owns its own
// registry so runs and tests do not share state.
type Metrics struct {
	registry *prometheus.Registry
	clock    clockwork.Clock
	start    time.Time

	numBytes     int64 // size of the source object
	rowsLoaded   int64
	rowsWritten  int64 // rows across all data files, counted per target
	filesWritten int64
	manifests    int64
	unnormalized int64

	rowsLoadedTotal    prometheus.Counter
	valuesNormalized   prometheus.Counter
	valuesUnnormalized prometheus.Counter
	valuesHashed       prometheus.Counter
	valuesSkipped      prometheus.Counter
	filesWrittenTotal  *prometheus.CounterVec
	bytesWrittenTotal  prometheus.Counter
	partitions         prometheus.Gauge
	stageDuration      *prometheus.HistogramVec
	sourceBytes        prometheus.Gauge
}

// New creates a Metrics using the real clock.
func New() *Metrics {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock creates a Metrics reading time from clock.
func NewWithClock(clock clockwork.Clock) *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		clock:    clock,
		start:    clock.Now(),

		rowsLoadedTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "amc_etl_rows_loaded_total",
			Help: "Rows read from the source object",
		}),
		valuesNormalized: f.NewCounter(prometheus.CounterOpts{
			Name: "amc_etl_values_normalized_total",
			Help: "PII values passed through a normalizer",
		}),
		valuesUnnormalized: f.NewCounter(prometheus.CounterOpts{
			Name: "amc_etl_values_unnormalizable_total",
			Help: "Non-empty PII values a normalizer could not normalize",
		}),
		valuesHashed: f.NewCounter(prometheus.CounterOpts{
			Name: "amc_etl_values_hashed_total",
			Help: "PII values replaced by their SHA-256 digest",
		}),
		valuesSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "amc_etl_values_skipped_total",
			Help: "PII values left alone because they were null, empty or already hashed",
		}),
		filesWrittenTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "amc_etl_files_written_total",
			Help: "Objects written to the output sink",
		}, []string{"kind"}),
		bytesWrittenTotal: f.NewCounter(prometheus.CounterOpts{
			Name: "amc_etl_bytes_written_total",
			Help: "Compressed bytes written to the output sink",
		}),
		partitions: f.NewGauge(prometheus.GaugeOpts{
			Name: "amc_etl_output_partitions",
			Help: "Output partitions or time buckets of the last run",
		}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "amc_etl_stage_duration_seconds",
			Help:    "Duration of each pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~82s
		}, []string{"stage"}),
		sourceBytes: f.NewGauge(prometheus.GaugeOpts{
			Name: "amc_etl_source_bytes",
			Help: "Size of the source object",
		}),
	}
}

// Now returns the current time of the metrics clock.
func (m *Metrics) Now() time.Time { return m.clock.Now() }

func (m *Metrics) RecordSourceBytes(n int64) {
	atomic.StoreInt64(&m.numBytes, n)
	m.sourceBytes.Set(float64(n))
}

func (m *Metrics) RecordRowsLoaded(n int) {
	atomic.AddInt64(&m.rowsLoaded, int64(n))
	m.rowsLoadedTotal.Add(float64(n))
}

// RecordNormalization adds the counts of one normalization pass.
func (m *Metrics) RecordNormalization(normalized, unnormalizable, skipped int) {
	atomic.AddInt64(&m.unnormalized, int64(unnormalizable))
	m.valuesNormalized.Add(float64(normalized))
	m.valuesUnnormalized.Add(float64(unnormalizable))
	m.valuesSkipped.Add(float64(skipped))
}

// RecordHashing adds the counts of one hashing pass.
func (m *Metrics) RecordHashing(hashed, skipped int) {
	m.valuesHashed.Add(float64(hashed))
	m.valuesSkipped.Add(float64(skipped))
}

// RecordDataFile counts one written data object.
func (m *Metrics) RecordDataFile(rows int, bytes int) {
	atomic.AddInt64(&m.filesWritten, 1)
	atomic.AddInt64(&m.rowsWritten, int64(rows))
	m.filesWrittenTotal.WithLabelValues("data").Inc()
	m.bytesWrittenTotal.Add(float64(bytes))
}

// RecordManifest counts one written manifest.
func (m *Metrics) RecordManifest() {
	atomic.AddInt64(&m.manifests, 1)
	m.filesWrittenTotal.WithLabelValues("manifest").Inc()
}

func (m *Metrics) RecordPartitions(n int) {
	m.partitions.Set(float64(n))
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// WriteTextfile writes all metrics in the Prometheus text format, for the
// node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}

// Report is the performance summary of a job run.
type Report struct {
	JobRunID       string        `json:"jobRunId"`
	DatasetID      string        `json:"datasetId"`
	StartTime      time.Time     `json:"startTime"`
	EndTime        time.Time     `json:"endTime"`
	NumBytes       int64         `json:"numBytes"`
	RowsLoaded     int64         `json:"rowsLoaded"`
	NumRows        int64         `json:"numRows"`
	FilesWritten   int64         `json:"filesWritten"`
	Manifests      int64         `json:"manifests"`
	Unnormalizable int64         `json:"unnormalizable"`
	Duration       time.Duration `json:"duration"`
}

// GenerateReport snapshots the counters.
func (m *Metrics) GenerateReport(jobRunID, datasetID string) Report {
	end := m.clock.Now()
	return Report{
		JobRunID:       jobRunID,
		DatasetID:      datasetID,
		StartTime:      m.start,
		EndTime:        end,
		NumBytes:       atomic.LoadInt64(&m.numBytes),
		RowsLoaded:     atomic.LoadInt64(&m.rowsLoaded),
		NumRows:        atomic.LoadInt64(&m.rowsWritten),
		FilesWritten:   atomic.LoadInt64(&m.filesWritten),
		Manifests:      atomic.LoadInt64(&m.manifests),
		Unnormalizable: atomic.LoadInt64(&m.unnormalized),
		Duration:       end.Sub(m.start),
	}
}

// MarshalJSON writes the duration as a string.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Duration string `json:"duration"`
	}{
		Alias:    Alias(r),
		Duration: r.Duration.String(),
	})
}

func (r Report) String() string {
	return fmt.Sprintf(
		"Job %s for dataset %s completed in %s\n"+
			"Source bytes: %d\n"+
			"Rows loaded: %d\n"+
			"Rows written: %d\n"+
			"Data files: %d, manifests: %d\n"+
			"Unnormalizable values: %d",
		r.JobRunID, r.DatasetID, r.Duration,
		r.NumBytes,
		r.RowsLoaded,
		r.NumRows,
		r.FilesWritten, r.Manifests,
		r.Unnormalizable,
	)
}
