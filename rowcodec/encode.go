package rowcodec

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gurre/amc-etl/rows"
	"github.com/gurre/amc-etl/timeseries"
	"github.com/klauspost/compress/gzip"
)

// Encode writes t to w in format f.
func Encode(w io.Writer, f Format, t rows.Table) error {
	switch f {
	case JSON:
		return EncodeJSONLines(w, t)
	case CSV:
		return EncodeCSV(w, t)
	}
	return fmt.Errorf("%w: %q", ErrUnsupportedFormat, f)
}

// EncodeJSONLines writes one JSON object per row with keys in column order.
// Columns a row lacks are written as null.
func EncodeJSONLines(w io.Writer, t rows.Table) error {
	bw := bufio.NewWriter(w)
	keys := make([][]byte, len(t.Columns))
	for i, c := range t.Columns {
		k, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("failed to encode column name %q: %w", c, err)
		}
		keys[i] = k
	}

	for n, r := range t.Rows {
		_ = bw.WriteByte('{')
		for i, c := range t.Columns {
			if i > 0 {
				_ = bw.WriteByte(',')
			}
			_, _ = bw.Write(keys[i])
			_ = bw.WriteByte(':')
			v, err := marshalValue(r[c])
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", n, c, err)
			}
			_, _ = bw.Write(v)
		}
		_, _ = bw.WriteString("}\n")
	}
	return bw.Flush()
}

func marshalValue(v any) ([]byte, error) {
	switch x := v.(type) {
	case nil:
		return []byte("null"), nil
	case json.Number:
		return []byte(x.String()), nil
	case time.Time:
		return json.Marshal(timeseries.Format(x))
	default:
		return json.Marshal(x)
	}
}

// EncodeCSV writes a header row followed by one record per row. Nulls are
// written as empty cells.
func EncodeCSV(w io.Writer, t rows.Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}
	record := make([]string, len(t.Columns))
	for n, r := range t.Rows {
		for i, c := range t.Columns {
			s, err := FormatCell(r[c])
			if err != nil {
				return fmt.Errorf("row %d column %q: %w", n, c, err)
			}
			record[i] = s
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", n, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// FormatCell renders a value as a CSV cell.
func FormatCell(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.Number:
		return x.String(), nil
	case bool:
		return strconv.FormatBool(x), nil
	case time.Time:
		return timeseries.Format(x), nil
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}

// EncodeGzip encodes t in format f and gzips the result.
func EncodeGzip(f Format, t rows.Table) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := Encode(zw, f, t); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}

// Gzip compresses data.
func Gzip(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		_ = zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type gzipReadCloser struct {
	*gzip.Reader
	src io.Closer
}

func (g gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.src.Close(); err == nil {
		err = cerr
	}
	return err
}

type bufferedReadCloser struct {
	*bufio.Reader
	io.Closer
}

// MaybeGunzip returns a reader that transparently decompresses rc when it
// starts with the gzip magic bytes. Closing the result closes rc.
func MaybeGunzip(rc io.ReadCloser) (io.ReadCloser, error) {
	br := bufio.NewReader(rc)
	magic, err := br.Peek(2)
	if err != nil || magic[0] != 0x1f || magic[1] != 0x8b {
		// Short or plain input is read as is.
		return bufferedReadCloser{Reader: br, Closer: rc}, nil
	}
	zr, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("%w: gzip header: %v", ErrCorrupt, err)
	}
	return gzipReadCloser{Reader: zr, src: rc}, nil
}
