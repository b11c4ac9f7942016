// Package rows holds the in-memory tabular data the pipeline stages pass
// along. A Table is treated as immutable: every operation returns a new
// Table and leaves its receiver untouched.
package rows

import (
	"errors"
	"fmt"
	"sort"
)

// ErrColumnNotFound is returned when an operation names a column the table
// does not have.
var ErrColumnNotFound = errors.New("column not found")

// Row maps column names to values. A nil value is a null. Values are
// scalars (string, json.Number, bool, time.Time) or decoded JSON structures
// and are never modified in place.
type Row map[string]any

// Clone returns a shallow copy of r.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered set of columns and the rows holding them.
type Table struct {
	Columns []string
	Rows    []Row
}

// New returns a table with the given columns and rows.
func New(columns []string, rs []Row) Table {
	return Table{Columns: append([]string(nil), columns...), Rows: rs}
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// HasColumn reports whether name is one of the table's columns.
func (t Table) HasColumn(name string) bool {
	return indexOf(t.Columns, name) >= 0
}

// Drop returns a table without the named columns.
func (t Table) Drop(names ...string) (Table, error) {
	drop := make(map[string]bool, len(names))
	for _, name := range names {
		if !t.HasColumn(name) {
			return Table{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
		}
		drop[name] = true
	}

	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		if !drop[c] {
			cols = append(cols, c)
		}
	}
	out := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			if !drop[k] {
				nr[k] = v
			}
		}
		out[i] = nr
	}
	return Table{Columns: cols, Rows: out}, nil
}

// MapColumn returns a table where every value of column name has been
// replaced by fn(value). Rows that lack the column are passed nil.
func (t Table) MapColumn(name string, fn func(any) any) (Table, error) {
	if !t.HasColumn(name) {
		return Table{}, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	out := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		nr := r.Clone()
		nr[name] = fn(r[name])
		out[i] = nr
	}
	return Table{Columns: append([]string(nil), t.Columns...), Rows: out}, nil
}

// WithColumn returns a table with an extra column whose values come from
// fn. An existing column of the same name is overwritten in place.
func (t Table) WithColumn(name string, fn func(Row) any) Table {
	cols := append([]string(nil), t.Columns...)
	if indexOf(cols, name) < 0 {
		cols = append(cols, name)
	}
	out := make([]Row, len(t.Rows))
	for i, r := range t.Rows {
		nr := r.Clone()
		nr[name] = fn(r)
		out[i] = nr
	}
	return Table{Columns: cols, Rows: out}
}

// Column returns the values of column name in row order.
func (t Table) Column(name string) ([]any, error) {
	if !t.HasColumn(name) {
		return nil, fmt.Errorf("%w: %q", ErrColumnNotFound, name)
	}
	vals := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		vals[i] = r[name]
	}
	return vals, nil
}

// Slice returns rows [i, j) as a new table sharing the row values.
func (t Table) Slice(i, j int) Table {
	return Table{Columns: append([]string(nil), t.Columns...), Rows: append([]Row(nil), t.Rows[i:j]...)}
}

// Split divides the table into n contiguous parts whose sizes differ by at
// most one, larger parts first. Some parts are empty when n exceeds Len.
func (t Table) Split(n int) []Table {
	if n < 1 {
		n = 1
	}
	parts := make([]Table, 0, n)
	size, extra := t.Len()/n, t.Len()%n
	start := 0
	for i := 0; i < n; i++ {
		end := start + size
		if i < extra {
			end++
		}
		parts = append(parts, t.Slice(start, end))
		start = end
	}
	return parts
}

// Sample returns every nth row starting with the first.
func (t Table) Sample(every int) Table {
	if every < 1 {
		every = 1
	}
	out := make([]Row, 0, t.Len()/every+1)
	for i := 0; i < t.Len(); i += every {
		out = append(out, t.Rows[i])
	}
	return Table{Columns: append([]string(nil), t.Columns...), Rows: out}
}

// SortedColumns returns the sorted union of keys across rs.
func SortedColumns(rs []Row) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range rs {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return cols
}

func indexOf(cols []string, name string) int {
	for i, c := range cols {
		if c == name {
			return i
		}
	}
	return -1
}
