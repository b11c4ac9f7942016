// Package dataset runs one advertiser file through the ETL stages: load,
// drop deleted columns, normalize and hash PII, partition, and write the
// tagged output files and manifests.
//
// A Dimension is split into size-bounded partitions. A Fact is a time series
// and is split into time buckets. Both move through the same states and
// refuse operations called out of order:
//
//	CONSTRUCTED -> LOADED -> CLEANSED -> NORMALIZED -> HASHED -> [TIME_PARTITIONED] -> WRITTEN
package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gurre/amc-etl/config"
	"github.com/gurre/amc-etl/logger"
	"github.com/gurre/amc-etl/manifest"
	"github.com/gurre/amc-etl/metrics"
	"github.com/gurre/amc-etl/objectstore"
	"github.com/gurre/amc-etl/rowcodec"
	"github.com/gurre/amc-etl/rows"
	"github.com/gurre/amc-etl/timeseries"
	"github.com/gurre/amc-etl/transform"
)

var (
	ErrColumnNotFound    = rows.ErrColumnNotFound
	ErrTimestampParse    = timeseries.ErrTimestampParse
	ErrUnsupportedFormat = rowcodec.ErrUnsupportedFormat
	ErrInvalidState      = errors.New("dataset operation called out of order")
)

// State is a step of the dataset lifecycle.
type State int

const (
	Constructed State = iota
	Loaded
	Cleansed
	Normalized
	Hashed
	TimePartitioned
	Written
)

func (s State) String() string {
	switch s {
	case Constructed:
		return "CONSTRUCTED"
	case Loaded:
		return "LOADED"
	case Cleansed:
		return "CLEANSED"
	case Normalized:
		return "NORMALIZED"
	case Hashed:
		return "HASHED"
	case TimePartitioned:
		return "TIME_PARTITIONED"
	case Written:
		return "WRITTEN"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Dataset is the part of the lifecycle shared by Dimension and Fact.
type Dataset interface {
	ReadSourceMetadata(ctx context.Context) error
	LoadInputRows(ctx context.Context) error
	RemoveDeletedColumns() error
	Normalize() error
	Hash() error
	WriteOutput(ctx context.Context) (Result, error)
	State() State
	Table() rows.Table
}

// OutputFile is one written data object.
type OutputFile struct {
	Target    string
	Partition string // sequence number or bucket label
	Location  string
	Rows      int
	Bytes     int
}

// Result lists what a dataset wrote.
type Result struct {
	Files       []OutputFile
	Manifests   []string
	Partitions  int
	Granularity timeseries.Granularity // Fact only
}

// Option configures a dataset.
type Option func(*base)

func WithLogger(l *slog.Logger) Option {
	return func(b *base) { b.logger = l }
}

// WithMetrics makes the dataset record into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *base) { b.metrics = m }
}

// New returns a Fact when job has a timestamp column and a Dimension
// otherwise. job must have been validated.
func New(job config.Job, source objectstore.Source, sink objectstore.Sink, opts ...Option) Dataset {
	if job.IsFact() {
		return NewFact(job, source, sink, opts...)
	}
	return NewDimension(job, source, sink, opts...)
}

type base struct {
	job     config.Job
	source  objectstore.Source
	sink    objectstore.Sink
	logger  *slog.Logger
	metrics *metrics.Metrics

	state    State
	info     *objectstore.ObjectInfo
	format   rowcodec.Format
	table    rows.Table
	files    []OutputFile
	byTarget map[string][]string
}

func newBase(job config.Job, source objectstore.Source, sink objectstore.Sink, opts []Option) *base {
	if job.ChunkSize <= 0 {
		job.ChunkSize = config.DefaultChunkSize
	}
	if job.PartitionBytes <= 0 {
		job.PartitionBytes = config.DefaultPartitionBytes
	}
	b := &base{
		job:      job,
		source:   source,
		sink:     sink,
		byTarget: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = logger.Discard()
	}
	if b.metrics == nil {
		b.metrics = metrics.New()
	}
	return b
}

func (b *base) State() State { return b.state }

// Table returns the rows as of the current state.
func (b *base) Table() rows.Table { return b.table }

// Format returns the file format, known after ReadSourceMetadata.
func (b *base) Format() rowcodec.Format { return b.format }

func (b *base) expect(op string, want State) error {
	if b.state != want {
		return fmt.Errorf("%w: %s requires state %s, dataset is %s", ErrInvalidState, op, want, b.state)
	}
	return nil
}

// ReadSourceMetadata reads the size and content type of the source. The file
// format comes from the job when set, else from the content type, else from
// the file name.
func (b *base) ReadSourceMetadata(ctx context.Context) error {
	if err := b.expect("ReadSourceMetadata", Constructed); err != nil {
		return err
	}
	info, err := b.source.Stat(ctx)
	if err != nil {
		return fmt.Errorf("failed to read source metadata: %w", err)
	}

	format, err := b.resolveFormat(info)
	if err != nil {
		return err
	}
	b.info = &info
	b.format = format
	b.metrics.RecordSourceBytes(info.Size)
	b.logger.Info("read source metadata", "name", info.Name, "bytes", info.Size, "content_type", info.ContentType, "format", format)
	return nil
}

func (b *base) resolveFormat(info objectstore.ObjectInfo) (rowcodec.Format, error) {
	if b.job.FileFormat != "" {
		return rowcodec.ParseFormat(b.job.FileFormat)
	}
	if f, err := rowcodec.FormatFromContentType(info.ContentType); err == nil {
		return f, nil
	}
	if f, err := rowcodec.FormatFromName(info.Name); err == nil {
		return f, nil
	}
	return "", fmt.Errorf("%w: content type %q of %s", ErrUnsupportedFormat, info.ContentType, info.Name)
}

// LoadInputRows reads the whole source in chunks. PII columns are read as
// text. Uncompressed JSON sources that can stream lines are decoded line by
// line.
func (b *base) LoadInputRows(ctx context.Context) error {
	if err := b.expect("LoadInputRows", Constructed); err != nil {
		return err
	}
	if b.info == nil {
		return fmt.Errorf("%w: LoadInputRows before ReadSourceMetadata", ErrInvalidState)
	}

	var (
		t   rows.Table
		err error
	)
	if ls, ok := b.source.(objectstore.LineStreamer); ok && b.format == rowcodec.JSON && !gzipped(*b.info) {
		t, err = b.streamJSONLines(ctx, ls)
	} else {
		t, err = b.readChunks(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", b.info.Name, err)
	}
	if b.format == rowcodec.JSON {
		t.Columns = rows.SortedColumns(t.Rows)
	}

	b.table = t
	b.state = Loaded
	b.logger.Info("loaded input rows", "rows", t.Len(), "columns", len(t.Columns))
	return nil
}

func gzipped(info objectstore.ObjectInfo) bool {
	switch strings.ToLower(info.ContentType) {
	case "application/gzip", "application/x-gzip":
		return true
	}
	return strings.HasSuffix(strings.ToLower(info.Name), ".gz")
}

func (b *base) readChunks(ctx context.Context) (rows.Table, error) {
	rc, err := b.source.Open(ctx)
	if err != nil {
		return rows.Table{}, err
	}
	body, err := rowcodec.MaybeGunzip(rc)
	if err != nil {
		rc.Close()
		return rows.Table{}, err
	}
	defer body.Close()

	reader, err := rowcodec.NewChunkReader(b.format, body, transform.Columns(b.job.PIIFields))
	if err != nil {
		return rows.Table{}, err
	}
	total := 0
	return rowcodec.ReadEach(reader, b.job.ChunkSize, func(chunk rows.Table) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		total += chunk.Len()
		b.metrics.RecordRowsLoaded(chunk.Len())
		b.logger.Debug("loaded chunk", "rows", chunk.Len(), "total", total)
		return nil
	})
}

func (b *base) streamJSONLines(ctx context.Context, ls objectstore.LineStreamer) (rows.Table, error) {
	dec := rowcodec.NewLineDecoder(transform.Columns(b.job.PIIFields))
	var (
		all   []rows.Row
		chunk int
		line  int
	)
	err := ls.StreamLines(ctx, func(raw []byte) error {
		line++
		if len(bytes.TrimSpace(raw)) == 0 {
			return nil
		}
		row, err := dec.Decode(raw)
		if err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
		all = append(all, row)
		if chunk++; chunk == b.job.ChunkSize {
			b.metrics.RecordRowsLoaded(chunk)
			chunk = 0
		}
		return nil
	})
	if err != nil {
		return rows.Table{}, err
	}
	b.metrics.RecordRowsLoaded(chunk)
	return rows.New(nil, all), nil
}

// RemoveDeletedColumns drops the job's deleted fields. Naming a column the
// input does not have is an error.
func (b *base) RemoveDeletedColumns() error {
	if err := b.expect("RemoveDeletedColumns", Loaded); err != nil {
		return err
	}
	if len(b.job.DeletedFields) > 0 {
		t, err := b.table.Drop(b.job.DeletedFields...)
		if err != nil {
			return fmt.Errorf("failed to remove deleted fields: %w", err)
		}
		b.table = t
		b.logger.Info("removed deleted fields", "fields", b.job.DeletedFields)
	}
	b.state = Cleansed
	return nil
}

// Normalize runs the country's normalizers over the PII columns. Without a
// country code the values are left as they are.
func (b *base) Normalize() error {
	if err := b.expect("Normalize", Cleansed); err != nil {
		return err
	}
	if b.job.CountryCode == "" {
		b.logger.Info("no country code, skipping normalization")
		b.state = Normalized
		return nil
	}

	t, stats, err := transform.TransformData(b.table, b.job.PIIFields, b.job.CountryCode)
	if err != nil {
		return fmt.Errorf("failed to normalize pii: %w", err)
	}
	b.table = t
	b.state = Normalized
	b.metrics.RecordNormalization(stats.Normalized, stats.Unnormalizable, stats.Skipped)
	b.logger.Info("normalized pii",
		"country", b.job.CountryCode,
		"columns", stats.ColumnsAffected,
		"normalized", stats.Normalized,
		"unnormalizable", stats.Unnormalizable,
		"skipped", stats.Skipped,
	)
	return nil
}

// Hash replaces PII values with their SHA-256 digests.
func (b *base) Hash() error {
	if err := b.expect("Hash", Normalized); err != nil {
		return err
	}
	t, stats, err := transform.HashData(b.table, b.job.PIIFields)
	if err != nil {
		return fmt.Errorf("failed to hash pii: %w", err)
	}
	b.table = t
	b.state = Hashed
	b.metrics.RecordHashing(stats.Hashed, stats.Skipped)
	b.logger.Info("hashed pii", "columns", stats.ColumnsAffected, "hashed", stats.Hashed, "skipped", stats.Skipped)
	return nil
}

func (b *base) layout() manifest.Layout {
	return manifest.Layout{
		DatasetID:      b.job.DatasetID,
		UpdateStrategy: b.job.UpdateStrategy,
		FileFormat:     string(b.format),
		CountryCode:    b.job.CountryCode,
		CallerID:       b.job.CallerID,
	}
}

// baseName is the source file name without ".gz".
func (b *base) baseName() string {
	return manifest.BaseName(b.info.Name)
}

// writePartition encodes t once and puts a copy per target, tagged with the
// target.
func (b *base) writePartition(ctx context.Context, partition string, t rows.Table) error {
	body, err := rowcodec.EncodeGzip(b.format, t)
	if err != nil {
		return fmt.Errorf("failed to encode partition %s: %w", partition, err)
	}
	layout := b.layout()
	name := b.baseName() + "-" + partition + ".gz"
	for _, target := range b.job.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}
		loc, err := b.sink.Put(ctx, layout.DataKey(target, name), body, manifest.Tags(target))
		if err != nil {
			return fmt.Errorf("failed to write partition %s for %s: %w", partition, target, err)
		}
		b.logger.Info("wrote rows", "rows", t.Len(), "location", loc)
		b.files = append(b.files, OutputFile{
			Target:    target,
			Partition: partition,
			Location:  loc,
			Rows:      t.Len(),
			Bytes:     len(body),
		})
		b.byTarget[target] = append(b.byTarget[target], loc)
		b.metrics.RecordDataFile(t.Len(), len(body))
	}
	return nil
}

// finish writes the manifests and marks the dataset written.
func (b *base) finish(ctx context.Context, partitions int) (Result, error) {
	w := manifest.NewWriter(b.sink, b.layout(), b.logger)
	locs, err := w.Write(ctx, manifest.Stem(b.baseName()), b.job.Targets, b.byTarget)
	if err != nil {
		return Result{}, err
	}
	for range locs {
		b.metrics.RecordManifest()
	}
	b.metrics.RecordPartitions(partitions)
	b.state = Written
	return Result{
		Files:      append([]OutputFile(nil), b.files...),
		Manifests:  locs,
		Partitions: partitions,
	}, nil
}
