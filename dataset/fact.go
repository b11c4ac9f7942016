package dataset

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gurre/amc-etl/config"
	"github.com/gurre/amc-etl/objectstore"
	"github.com/gurre/amc-etl/rows"
	"github.com/gurre/amc-etl/timeseries"
)

// FullPrecisionColumn holds the original timestamps while the timestamp
// column is rounded to the minute. It never reaches the output.
const FullPrecisionColumn = "timestamp_full_precision"

// Fact is a time-series dataset. Its output is one file per time bucket.
type Fact struct {
	*base
	parsed      bool
	granularity timeseries.Granularity
}

func NewFact(job config.Job, source objectstore.Source, sink objectstore.Sink, opts ...Option) *Fact {
	return &Fact{base: newBase(job, source, sink, opts)}
}

// Granularity returns the bucket width, known after
// DetermineTimePartitioning.
func (f *Fact) Granularity() timeseries.Granularity { return f.granularity }

// ParseTimestampColumn converts the timestamp column to UTC times. A missing
// column or any value that is not an ISO-8601 string fails the dataset.
func (f *Fact) ParseTimestampColumn() error {
	if err := f.expect("ParseTimestampColumn", Hashed); err != nil {
		return err
	}
	if f.parsed {
		return fmt.Errorf("%w: timestamps already parsed", ErrInvalidState)
	}

	col := f.job.TimestampColumn
	var (
		parseErr error
		i        int
	)
	t, err := f.table.MapColumn(col, func(v any) any {
		defer func() { i++ }()
		if parseErr != nil {
			return v
		}
		ts, err := timeseries.ParseTimestamp(v)
		if err != nil {
			parseErr = fmt.Errorf("row %d: %w", i+1, err)
			return v
		}
		return ts
	})
	if err != nil {
		return fmt.Errorf("failed to parse time series: %w", err)
	}
	if parseErr != nil {
		return fmt.Errorf("failed to parse time series in column %q: %w", col, parseErr)
	}
	f.table = t
	f.parsed = true
	return nil
}

// DetermineTimePartitioning rounds the timestamps down to the minute, keeping
// the originals in FullPrecisionColumn, and settles the granularity: the
// job's period when explicit, otherwise detected from the smallest gap
// between distinct rounded timestamps.
func (f *Fact) DetermineTimePartitioning() error {
	if err := f.expect("DetermineTimePartitioning", Hashed); err != nil {
		return err
	}
	if !f.parsed {
		return fmt.Errorf("%w: DetermineTimePartitioning before ParseTimestampColumn", ErrInvalidState)
	}

	col := f.job.TimestampColumn
	t := f.table.WithColumn(FullPrecisionColumn, func(r rows.Row) any { return r[col] })
	t, err := t.MapColumn(col, func(v any) any {
		return timeseries.RoundToMinute(v.(time.Time))
	})
	if err != nil {
		return err
	}

	rounded := make([]time.Time, t.Len())
	for i, r := range t.Rows {
		rounded[i] = r[col].(time.Time)
	}
	period, err := timeseries.ParseGranularity(f.job.Period)
	if err != nil {
		return err
	}
	f.granularity = timeseries.Resolve(period, rounded)
	f.table = t
	f.state = TimePartitioned
	f.logger.Info("determined time partitioning",
		"period", period,
		"granularity", f.granularity,
		"distinct_timestamps", len(timeseries.Distinct(rounded)),
	)
	return nil
}

// WriteOutput writes one file per time bucket, per target, in ascending time
// order, then the manifests. Timestamps are written at full precision.
func (f *Fact) WriteOutput(ctx context.Context) (Result, error) {
	if err := f.expect("WriteOutput", TimePartitioned); err != nil {
		return Result{}, err
	}
	col := f.job.TimestampColumn
	sorted := append([]rows.Row(nil), f.table.Rows...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i][col].(time.Time).Before(sorted[j][col].(time.Time))
	})
	columns := make([]string, 0, len(f.table.Columns))
	for _, c := range f.table.Columns {
		if c != FullPrecisionColumn {
			columns = append(columns, c)
		}
	}

	buckets := 0
	var (
		label string
		group []rows.Row
	)
	flush := func() error {
		if len(group) == 0 {
			return nil
		}
		buckets++
		err := f.writePartition(ctx, label, rows.New(columns, group))
		group = nil
		return err
	}
	for _, r := range sorted {
		l := timeseries.BucketLabel(r[col].(time.Time), f.granularity)
		if l != label {
			if err := flush(); err != nil {
				return Result{}, err
			}
			label = l
		}
		group = append(group, restoreTimestamp(r, col))
	}
	if err := flush(); err != nil {
		return Result{}, err
	}

	res, err := f.finish(ctx, buckets)
	if err != nil {
		return Result{}, err
	}
	res.Granularity = f.granularity
	return res, nil
}

func restoreTimestamp(r rows.Row, col string) rows.Row {
	out := r.Clone()
	if ts, ok := r[FullPrecisionColumn].(time.Time); ok {
		out[col] = timeseries.Format(ts)
	}
	delete(out, FullPrecisionColumn)
	return out
}

var _ Dataset = (*Fact)(nil)
