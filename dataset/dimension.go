package dataset

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strconv"

	"github.com/gurre/amc-etl/config"
	"github.com/gurre/amc-etl/objectstore"
	"github.com/gurre/amc-etl/rowcodec"
)

const (
	// sampleEvery picks the rows used to estimate the compression ratio.
	sampleEvery = 1000
	// partitionPadding is added to the estimate so that files stay under the
	// size limit when the sample compresses better than the whole.
	partitionPadding = 2
)

var errEmptySample = errors.New("sample encodes to nothing")

// Dimension is a dataset without a time axis. Its output is split into
// partitions of roughly equal row count.
// Example:
//
//	d := dataset.NewDimension(job, source, sink, dataset.WithLogger(log))
//	if err := d.ReadSourceMetadata(ctx); err != nil { ... }
//	if err := d.LoadInputRows(ctx); err != nil { ... }
//	// RemoveDeletedColumns, Normalize, Hash ...
//	res, err := d.WriteOutput(ctx)
type Dimension struct {
	*base
}

func NewDimension(job config.Job, source objectstore.Source, sink objectstore.Sink, opts ...Option) *Dimension {
	return &Dimension{base: newBase(job, source, sink, opts)}
}

// EstimateOutputPartitionCount returns how many files the output needs so
// that each stays below the partition size once compressed. Sources smaller
// than the limit produce one file. Otherwise every 1000th row is encoded and
// gzipped to estimate the compression ratio; if that fails the count is the
// padding alone.
func (d *Dimension) EstimateOutputPartitionCount() int {
	limit := d.job.PartitionBytes
	if d.info == nil || d.info.Size < limit {
		return 1
	}

	n, err := d.estimate(limit)
	if err != nil {
		d.logger.Warn("failed to estimate compression ratio, using default partition count", "error", err, "partitions", partitionPadding)
		return partitionPadding
	}
	return n
}

func (d *Dimension) estimate(limit int64) (int, error) {
	sample := d.table.Sample(sampleEvery)
	var encoded bytes.Buffer
	if err := rowcodec.Encode(&encoded, d.format, sample); err != nil {
		return 0, err
	}
	compressed, err := rowcodec.Gzip(encoded.Bytes())
	if err != nil {
		return 0, err
	}
	if encoded.Len() == 0 || len(compressed) == 0 {
		return 0, errEmptySample
	}
	ratio := float64(encoded.Len()) / float64(len(compressed))
	compressedSize := float64(d.info.Size) / ratio
	return partitionPadding + int(math.Ceil(compressedSize/float64(limit))), nil
}

// WriteOutput splits the rows into EstimateOutputPartitionCount parts and
// writes every non-empty part once per target, then the manifests.
func (d *Dimension) WriteOutput(ctx context.Context) (Result, error) {
	if err := d.expect("WriteOutput", Hashed); err != nil {
		return Result{}, err
	}
	n := d.EstimateOutputPartitionCount()
	d.logger.Info("partitioning output", "rows", d.table.Len(), "partitions", n)
	written := 0
	for i, part := range d.table.Split(n) {
		if part.Len() == 0 {
			continue
		}
		if err := d.writePartition(ctx, strconv.Itoa(i), part); err != nil {
			return Result{}, err
		}
		written++
	}

	res, err := d.finish(ctx, written)
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

var _ Dataset = (*Dimension)(nil)
