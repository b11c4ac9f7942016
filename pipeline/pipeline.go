// Package pipeline runs one ETL job end to end: it drives a dataset through
// its stages, then reports and records the run.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/gurre/amc-etl/config"
	"github.com/gurre/amc-etl/dataset"
	"github.com/gurre/amc-etl/jobrecord"
	"github.com/gurre/amc-etl/logger"
	"github.com/gurre/amc-etl/metrics"
	"github.com/gurre/amc-etl/objectstore"
)

// Outcome is what a successful run produced.
type Outcome struct {
	Report metrics.Report
	Result dataset.Result
}

// Pipeline runs a single job. It is not reusable.
type Pipeline struct {
	job      config.Job
	source   objectstore.Source
	sink     objectstore.Sink
	recorder jobrecord.Recorder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	runID    string
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithMetrics replaces the metrics of the run, e.g. to inject a fake clock.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithRunID fixes the run id instead of generating one.
func WithRunID(id string) Option {
	return func(p *Pipeline) { p.runID = id }
}

// New creates a Pipeline. A nil recorder disables performance metrics and a
// nil logger discards logs.
func New(job config.Job, source objectstore.Source, sink objectstore.Sink, recorder jobrecord.Recorder, l *slog.Logger, opts ...Option) *Pipeline {
	if recorder == nil {
		recorder = jobrecord.NoopRecorder{}
	}
	if l == nil {
		l = logger.Discard()
	}
	p := &Pipeline{
		job:      job,
		source:   source,
		sink:     sink,
		recorder: recorder,
		logger:   l,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.metrics == nil {
		p.metrics = metrics.New()
	}
	if p.runID == "" {
		p.runID = uuid.NewString()
	}
	return p
}

// RunID identifies this run in logs and recorded metrics.
func (p *Pipeline) RunID() string { return p.runID }

// Metrics exposes the counters of the run.
func (p *Pipeline) Metrics() *metrics.Metrics { return p.metrics }

// Run validates the job and executes every stage in order. The first failing
// stage aborts the run and its error is returned wrapped with the stage name.
// Writing the metrics textfile and recording the run happen after the output
// is complete and only log on failure.
func (p *Pipeline) Run(ctx context.Context) (Outcome, error) {
	if err := p.job.Validate(); err != nil {
		return Outcome{}, err
	}
	log := p.logger.With("run_id", p.runID, "dataset_id", p.job.DatasetID)
	log.Info("starting job",
		"source", p.job.Source,
		"fact", p.job.IsFact(),
		"country", p.job.CountryCode,
		"targets", len(p.job.Targets),
		"dry_run", p.job.DryRun,
	)

	ds := dataset.New(p.job, p.source, p.sink, dataset.WithLogger(log), dataset.WithMetrics(p.metrics))
	var res dataset.Result
	stages := []step{
		{"read_metadata", func() error { return ds.ReadSourceMetadata(ctx) }},
		{"load", func() error { return ds.LoadInputRows(ctx) }},
		{"remove_deleted", ds.RemoveDeletedColumns},
		{"normalize", ds.Normalize},
		{"hash", ds.Hash},
	}
	if f, ok := ds.(*dataset.Fact); ok {
		stages = append(stages,
			step{"parse_timestamps", f.ParseTimestampColumn},
			step{"time_partition", f.DetermineTimePartitioning},
		)
	}
	stages = append(stages, step{"write", func() error {
		var err error
		res, err = ds.WriteOutput(ctx)
		return err
	}})

	for _, s := range stages {
		if err := p.runStep(ctx, log, s); err != nil {
			return Outcome{}, err
		}
	}

	report := p.metrics.GenerateReport(p.runID, p.job.DatasetID)
	log.Info("job complete",
		"rows", report.NumRows,
		"files", report.FilesWritten,
		"manifests", report.Manifests,
		"partitions", res.Partitions,
		"granularity", string(res.Granularity),
		"duration", report.Duration,
	)
	log.Debug("performance report\n" + report.String())

	if p.job.MetricsTextfile != "" {
		if err := p.metrics.WriteTextfile(p.job.MetricsTextfile); err != nil {
			log.Warn("failed to write metrics textfile", "path", p.job.MetricsTextfile, "error", err)
		}
	}
	if err := p.recorder.Record(ctx, report); err != nil {
		log.Warn("failed to record performance metrics", "error", err)
	}
	return Outcome{Report: report, Result: res}, nil
}

// step is one timed stage of a run.
type step struct {
	name string
	fn   func() error
}

func (p *Pipeline) runStep(ctx context.Context, log *slog.Logger, s step) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", s.name, err)
	}
	start := p.metrics.Now()
	err := s.fn()
	elapsed := p.metrics.Now().Sub(start)
	p.metrics.ObserveStage(s.name, elapsed)
	if err != nil {
		log.Error("stage failed", "stage", s.name, "error", err)
		return fmt.Errorf("%s: %w", s.name, err)
	}
	log.Debug("stage done", "stage", s.name, "elapsed", elapsed)
	return nil
}
