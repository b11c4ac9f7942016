// Package config holds the parameters of one ETL job run and validates them.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gurre/amc-etl/manifest"
	"github.com/gurre/amc-etl/normalize"
	"github.com/gurre/amc-etl/objectstore"
	"github.com/gurre/amc-etl/rowcodec"
	"github.com/gurre/amc-etl/timeseries"
	"github.com/gurre/amc-etl/transform"
)

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid job configuration")

// DefaultPartitionBytes is the uncompressed size above which Dimension output
// is split into several files. AMC caps uploads at 500 MB (decimal).
const DefaultPartitionBytes int64 = 500 * 1000 * 1000

// DefaultChunkSize is the number of rows read from the source at a time.
const DefaultChunkSize = 2000

// Job holds everything one run needs. A Job with a TimestampColumn is a Fact
// (time-series) dataset, otherwise a Dimension dataset.
type Job struct {
	Source          string            // s3://bucket/key, file:// URL or local path
	Output          string            // s3://bucket[/prefix] or local directory
	DatasetID       string            // Dataset identifier, first key segment under amc/
	UpdateStrategy  string            // e.g. ADDITIVE, passed through to the key
	FileFormat      string            // "JSON"|"CSV", empty means derive from content type
	CountryCode     string            // Empty skips normalization
	PIIFields       []transform.Field // Columns to normalize and hash
	DeletedFields   []string          // Columns dropped before anything else
	Targets         []string          // AMC instance ids or destination endpoint URLs
	CallerID        string            // User id appended to each target segment
	TimestampColumn string            // Fact datasets only
	Period          string            // autodetect|PT1M|PT1H|P1D|P7D
	Region          string            // AWS region for S3 and DynamoDB
	MetricsTable    string            // DynamoDB table for performance metrics, optional
	MetricsTextfile string            // Prometheus textfile path, optional
	PartitionBytes  int64             // Dimension partition threshold
	ChunkSize       int               // Rows per read chunk
	DryRun          bool              // Write to memory instead of Output
}

// IsFact reports whether the job processes a time-series dataset.
func (j *Job) IsFact() bool {
	return j.TimestampColumn != ""
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// Validate checks required fields and normalizes the free-form ones in place:
// identifiers are trimmed, the file format and country are upper-cased and
// unset sizes get their defaults.
func (j *Job) Validate() error {
	j.DatasetID = strings.TrimSpace(j.DatasetID)
	j.TimestampColumn = strings.TrimSpace(j.TimestampColumn)
	j.FileFormat = strings.ToUpper(strings.TrimSpace(j.FileFormat))
	j.CountryCode = strings.ToUpper(strings.TrimSpace(j.CountryCode))

	if j.Source == "" {
		return invalid("source is required")
	}
	if j.Output == "" && !j.DryRun {
		return invalid("output is required")
	}
	if j.DatasetID == "" {
		return invalid("dataset id is required")
	}
	if strings.ContainsAny(j.DatasetID, "/|") {
		return invalid("dataset id %q must not contain '/' or '|'", j.DatasetID)
	}
	if j.UpdateStrategy == "" {
		return invalid("update strategy is required")
	}
	if strings.Contains(j.UpdateStrategy, "/") {
		return invalid("update strategy %q must not contain '/'", j.UpdateStrategy)
	}
	if j.FileFormat != "" {
		if _, err := rowcodec.ParseFormat(j.FileFormat); err != nil {
			return invalid("file format must be JSON or CSV, got %q", j.FileFormat)
		}
	}
	if j.CountryCode != "" && !normalize.IsSupportedCountry(j.CountryCode) {
		return invalid("unsupported country code %q", j.CountryCode)
	}
	if len(j.Targets) == 0 {
		return invalid("at least one target is required")
	}
	segments := make(map[string]string, len(j.Targets))
	for _, t := range j.Targets {
		if strings.TrimSpace(t) == "" {
			return invalid("targets must not be blank")
		}
		seg := manifest.TargetSegment(t)
		if prev, ok := segments[seg]; ok {
			return invalid("targets %q and %q share the output prefix %q", prev, t, seg)
		}
		segments[seg] = t
	}
	if j.CallerID == "" {
		return invalid("caller id is required")
	}
	for _, f := range j.PIIFields {
		if f.Column == "" {
			return invalid("pii field without column name")
		}
	}
	if j.IsFact() {
		if _, err := timeseries.ParseGranularity(j.Period); err != nil {
			return invalid("%v", err)
		}
	}
	for _, loc := range []string{j.Source, j.Output} {
		if objectstore.IsS3URI(loc) {
			if u, err := url.Parse(loc); err != nil || u.Host == "" {
				return invalid("%q is not a valid s3:// URI", loc)
			}
		}
	}
	if j.PartitionBytes < 0 {
		return invalid("partition bytes must not be negative")
	}
	if j.PartitionBytes == 0 {
		j.PartitionBytes = DefaultPartitionBytes
	}
	if j.ChunkSize < 0 {
		return invalid("chunk size must not be negative")
	}
	if j.ChunkSize == 0 {
		j.ChunkSize = DefaultChunkSize
	}
	return nil
}

// ParseFields decodes the pii_fields parameter. Empty input means no fields.
func ParseFields(s string) ([]transform.Field, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields, err := transform.ParseFields(s)
	if err != nil {
		return nil, invalid("pii fields: %v", err)
	}
	return fields, nil
}

// ParseList decodes a JSON array of strings, or failing that a comma
// separated list. Blank items are dropped.
// Example:
//
//	config.ParseList(`["amc1","amc2"]`) // [amc1 amc2]
//	config.ParseList("amc1, amc2")      // [amc1 amc2]
func ParseList(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var items []string
	if strings.HasPrefix(s, "[") {
		if err := json.Unmarshal([]byte(s), &items); err != nil {
			return nil, invalid("malformed list %q: %v", s, err)
		}
	} else {
		items = strings.Split(s, ",")
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out, nil
}
