// Package timeseries parses fact timestamps, detects the granularity of a
// time series and names the time buckets output files are grouped by.
package timeseries

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrTimestampParse is returned when a timestamp value cannot be parsed.
var ErrTimestampParse = errors.New("failed to parse timestamp")

// OutputLayout is the layout timestamps are written back with.
const OutputLayout = "2006-01-02T15:04:05Z"

// Granularity is an ISO-8601 duration naming the bucket width.
type Granularity string

const (
	Autodetect Granularity = "autodetect"
	Minute     Granularity = "PT1M"
	Hour       Granularity = "PT1H"
	Day        Granularity = "P1D"
	Week       Granularity = "P7D"
)

// ParseGranularity accepts the four durations and "autodetect". An empty
// string means autodetect.
func ParseGranularity(s string) (Granularity, error) {
	switch g := Granularity(strings.TrimSpace(s)); g {
	case "", Autodetect:
		return Autodetect, nil
	case Minute, Hour, Day, Week:
		return g, nil
	}
	return "", fmt.Errorf("invalid period %q: must be one of autodetect, PT1M, PT1H, P1D, P7D", s)
}

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999-0700",
	"2006-01-02T15:04:05.999999999-07",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-0700",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp converts a cell value into a UTC time. Strings carrying no
// zone are read as UTC. Nulls, numbers and unparseable strings fail with
// ErrTimestampParse.
func ParseTimestamp(v any) (time.Time, error) {
	switch x := v.(type) {
	case time.Time:
		return x.UTC(), nil
	case string:
		s := strings.TrimSpace(x)
		for _, layout := range layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.UTC(), nil
			}
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrTimestampParse, x)
	case nil:
		return time.Time{}, fmt.Errorf("%w: null value", ErrTimestampParse)
	default:
		return time.Time{}, fmt.Errorf("%w: unsupported value %v (%T)", ErrTimestampParse, x, x)
	}
}

// RoundToMinute drops seconds and sub-seconds.
func RoundToMinute(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}

// Distinct returns the sorted unique values of ts.
func Distinct(ts []time.Time) []time.Time {
	seen := make(map[time.Time]bool, len(ts))
	out := make([]time.Time, 0, len(ts))
	for _, t := range ts {
		t = t.UTC()
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

// Detect picks the granularity from the smallest gap between consecutive
// distinct timestamps. Fewer than two distinct values detect as Day.
func Detect(ts []time.Time) Granularity {
	distinct := Distinct(ts)
	if len(distinct) < 2 {
		return Day
	}
	gap := distinct[1].Sub(distinct[0])
	for i := 2; i < len(distinct); i++ {
		if d := distinct[i].Sub(distinct[i-1]); d < gap {
			gap = d
		}
	}
	switch {
	case gap < time.Hour:
		return Minute
	case gap < 24*time.Hour:
		return Hour
	case gap < 7*24*time.Hour:
		return Day
	default:
		return Week
	}
}

// Resolve returns g, or the detected granularity of ts when g is Autodetect.
func Resolve(g Granularity, ts []time.Time) Granularity {
	if g == Autodetect || g == "" {
		return Detect(ts)
	}
	return g
}

// BucketLabel names the bucket t falls in. Week buckets are labelled with
// the day, so consecutive days of a weekly series land in separate files.
func BucketLabel(t time.Time, g Granularity) string {
	t = t.UTC()
	switch g {
	case Minute:
		return t.Format("2006_01_02-15:04:00")
	case Hour:
		return t.Format("2006_01_02-15:00:00")
	default:
		return t.Format("2006_01_02-00:00:00")
	}
}

// Format renders t with OutputLayout.
func Format(t time.Time) string {
	return t.UTC().Format(OutputLayout)
}
