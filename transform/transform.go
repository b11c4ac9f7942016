// Package transform applies per-column PII normalization and SHA-256
// hashing to a rows.Table.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/gurre/amc-etl/normalize"
	"github.com/gurre/amc-etl/rows"
)

// Field declares that a column holds PII of a given type.
type Field struct {
	Column string            `json:"column_name"`
	Type   normalize.PIIType `json:"pii_type"`
}

// ParseFields decodes a JSON list of {"column_name", "pii_type"} objects.
func ParseFields(data string) ([]Field, error) {
	if strings.TrimSpace(data) == "" {
		return nil, nil
	}
	var fields []Field
	if err := json.Unmarshal([]byte(data), &fields); err != nil {
		return nil, fmt.Errorf("failed to decode pii fields: %w", err)
	}
	for i, f := range fields {
		if strings.TrimSpace(f.Column) == "" {
			return nil, fmt.Errorf("pii field %d has no column_name", i)
		}
		// Unknown types are kept and normalized with the default normalizer.
		if t, err := normalize.ParsePIIType(string(f.Type)); err == nil {
			fields[i].Type = t
		}
	}
	return fields, nil
}

// Columns returns the column names of fields.
func Columns(fields []Field) []string {
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Column
	}
	return cols
}

var sha256Hex = regexp.MustCompile(`^[a-f0-9]{64}$`)

// IsHashed reports whether s already is a lower-case SHA-256 hex digest.
func IsHashed(s string) bool {
	return sha256Hex.MatchString(s)
}

// Hash returns the lower-case hex SHA-256 digest of the UTF-8 bytes of s.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Stats counts what happened to PII values during a pass.
type Stats struct {
	Normalized      int // values handed to a normalizer
	Unnormalizable  int // non-empty values a normalizer rejected
	Hashed          int
	Skipped         int // nulls and values that were already hashed
	ColumnsAffected int
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Normalized:      s.Normalized + o.Normalized,
		Unnormalizable:  s.Unnormalizable + o.Unnormalizable,
		Hashed:          s.Hashed + o.Hashed,
		Skipped:         s.Skipped + o.Skipped,
		ColumnsAffected: s.ColumnsAffected + o.ColumnsAffected,
	}
}

// TransformData normalizes every PII column in t with the normalizer for its
// type and country. Null and already hashed values are left alone. A PII
// column missing from t is an error wrapping rows.ErrColumnNotFound.
func TransformData(t rows.Table, fields []Field, country string) (rows.Table, Stats, error) {
	var stats Stats
	out := t
	for _, f := range fields {
		n, err := normalize.For(f.Type, country)
		if err != nil {
			return rows.Table{}, Stats{}, fmt.Errorf("column %q: %w", f.Column, err)
		}
		out, err = out.MapColumn(f.Column, func(v any) any {
			if skip(v) {
				stats.Skipped++
				return v
			}
			raw := stringValue(v)
			normalized := n.Normalize(raw)
			stats.Normalized++
			if normalized == "" && raw != "" {
				stats.Unnormalizable++
			}
			return normalized
		})
		if err != nil {
			return rows.Table{}, Stats{}, fmt.Errorf("pii column: %w", err)
		}
		stats.ColumnsAffected++
	}
	return out, stats, nil
}

// HashData replaces every PII value with its SHA-256 digest. Nulls, empty
// strings and values that are already digests pass through, so hashing is
// idempotent.
func HashData(t rows.Table, fields []Field) (rows.Table, Stats, error) {
	var stats Stats
	out := t
	for _, f := range fields {
		var err error
		out, err = out.MapColumn(f.Column, func(v any) any {
			if skip(v) {
				stats.Skipped++
				return v
			}
			s := stringValue(v)
			if s == "" {
				stats.Skipped++
				return s
			}
			stats.Hashed++
			return Hash(s)
		})
		if err != nil {
			return rows.Table{}, Stats{}, fmt.Errorf("pii column: %w", err)
		}
		stats.ColumnsAffected++
	}
	return out, stats, nil
}

func skip(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && IsHashed(s)
}

// stringValue renders a PII cell as text. Loaders already read PII columns
// as strings; the other cases cover tables built in code.
func stringValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case json.Number:
		return x.String()
	case bool:
		return strconv.FormatBool(x)
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
