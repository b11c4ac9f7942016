package rowcodec

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/gurre/amc-etl/rows"
)

// ChunkReader yields a file as consecutive tables of at most n rows and
// returns io.EOF once the input is exhausted.
type ChunkReader interface {
	ReadChunk(n int) (rows.Table, error)
}

// NewChunkReader returns the reader for format f. Values of stringColumns
// are always read as text so that phone numbers and postal codes keep
// their leading zeros.
func NewChunkReader(f Format, r io.Reader, stringColumns []string) (ChunkReader, error) {
	switch f {
	case JSON:
		return NewJSONLinesReader(r, stringColumns), nil
	case CSV:
		return NewCSVReader(r), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// LineDecoder decodes single JSON lines into rows.
type LineDecoder struct {
	stringColumns map[string]bool
}

func NewLineDecoder(stringColumns []string) *LineDecoder {
	set := make(map[string]bool, len(stringColumns))
	for _, c := range stringColumns {
		set[c] = true
	}
	return &LineDecoder{stringColumns: set}
}

// Decode parses one JSON object. Numbers are kept as json.Number.
func (d *LineDecoder) Decode(line []byte) (rows.Row, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var row rows.Row
	if err := dec.Decode(&row); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if row == nil {
		return nil, fmt.Errorf("%w: line is not an object", ErrCorrupt)
	}
	for col := range d.stringColumns {
		if v, ok := row[col]; ok && v != nil {
			row[col] = asText(v)
		}
	}
	return row, nil
}

func asText(v any) any {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	}
}

// JSONLinesReader reads newline delimited JSON objects.
type JSONLinesReader struct {
	r    *bufio.Reader
	dec  *LineDecoder
	line int
	done bool
}

func NewJSONLinesReader(r io.Reader, stringColumns []string) *JSONLinesReader {
	return &JSONLinesReader{
		r:   bufio.NewReaderSize(r, 1<<20),
		dec: NewLineDecoder(stringColumns),
	}
}

func (j *JSONLinesReader) ReadChunk(n int) (rows.Table, error) {
	if j.done {
		return rows.Table{}, io.EOF
	}
	var rs []rows.Row
	for len(rs) < n {
		line, err := j.r.ReadBytes('\n')
		if len(bytes.TrimSpace(line)) > 0 {
			j.line++
			row, derr := j.dec.Decode(line)
			if derr != nil {
				return rows.Table{}, fmt.Errorf("line %d: %w", j.line, derr)
			}
			rs = append(rs, row)
		}
		if errors.Is(err, io.EOF) {
			j.done = true
			break
		}
		if err != nil {
			return rows.Table{}, fmt.Errorf("failed to read line %d: %w", j.line+1, err)
		}
	}
	if len(rs) == 0 {
		return rows.Table{}, io.EOF
	}
	return rows.New(rows.SortedColumns(rs), rs), nil
}

// CSVReader reads a CSV file with a header row. Empty cells are nulls and
// every other cell is text.
type CSVReader struct {
	r       *csv.Reader
	header  []string
	emitted bool
	done    bool
}

func NewCSVReader(r io.Reader) *CSVReader {
	return &CSVReader{r: csv.NewReader(r)}
}

func (c *CSVReader) ReadChunk(n int) (rows.Table, error) {
	if c.done {
		return rows.Table{}, io.EOF
	}
	if c.header == nil {
		header, err := c.r.Read()
		if errors.Is(err, io.EOF) {
			c.done = true
			return rows.Table{}, io.EOF
		}
		if err != nil {
			return rows.Table{}, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
		}
		c.header = header
	}

	var rs []rows.Row
	for len(rs) < n {
		record, err := c.r.Read()
		if errors.Is(err, io.EOF) {
			c.done = true
			break
		}
		if err != nil {
			return rows.Table{}, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		row := make(rows.Row, len(c.header))
		for i, col := range c.header {
			if record[i] == "" {
				row[col] = nil
				continue
			}
			row[col] = record[i]
		}
		rs = append(rs, row)
	}
	// A header without records still yields one empty table so the columns
	// are known.
	if len(rs) == 0 && c.emitted {
		return rows.Table{}, io.EOF
	}
	c.emitted = true
	return rows.New(c.header, rs), nil
}

// ReadAll drains r in chunks of chunkSize rows and concatenates them.
func ReadAll(r ChunkReader, chunkSize int) (rows.Table, error) {
	return ReadEach(r, chunkSize, nil)
}

// ReadEach drains r like ReadAll and hands every chunk to fn as it arrives.
// Rows are gathered into a single slice and the column union, in first-seen
// order, is built once all chunks are in. A non-nil error from fn stops the
// read.
func ReadEach(r ChunkReader, chunkSize int, fn func(chunk rows.Table) error) (rows.Table, error) {
	var (
		all    []rows.Row
		chunks [][]string
	)
	for {
		chunk, err := r.ReadChunk(chunkSize)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rows.Table{}, err
		}
		all = append(all, chunk.Rows...)
		chunks = append(chunks, chunk.Columns)
		if fn != nil {
			if err := fn(chunk); err != nil {
				return rows.Table{}, err
			}
		}
	}
	return rows.Table{Columns: mergeColumns(chunks), Rows: all}, nil
}

func mergeColumns(chunks [][]string) []string {
	var (
		cols []string
		seen = make(map[string]bool)
	)
	for _, cs := range chunks {
		for _, c := range cs {
			if !seen[c] {
				seen[c] = true
				cols = append(cols, c)
			}
		}
	}
	return cols
}
