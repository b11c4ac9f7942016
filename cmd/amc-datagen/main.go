// Package main generates synthetic customer datasets for exercising amc-etl.
// Rows carry messy but realistic PII (mixed case, punctuation, street
// abbreviations) and, for time-series datasets, a timestamp column.
package main

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/gurre/amc-etl/rowcodec"
	"github.com/gurre/amc-etl/rows"
	flag "github.com/spf13/pflag"
)

// Config holds the command-line configuration for the data generator.
type Config struct {
	NumRows  int
	Format   string
	Gzip     bool
	Fact     bool
	Start    time.Time
	Interval time.Duration
	Seed     int64
	Out      string
}

var (
	firstNames = []string{"John", "Jane", "María", "Zoë", "O'Brien", "Anne-Marie", "  Li ", "José"}
	lastNames  = []string{"Smith", "Doe", "García", "Müller", "Nguyen", "St. John", "O'Neil"}
	streets    = []string{"Main Street", "Oak Ave.", "1st St", "Elm Road", "Park Boulevard", "Pine Ln"}
	cities     = []string{"Boston", "New York", "San Francisco", "Austin", "St. Louis"}
	states     = []string{"MA", "New York", "california", "TX", "Missouri"}
	domains    = []string{"example.com", "Example.ORG", "mail.test"}
)

func pick(r *rand.Rand, from []string) string {
	return from[r.Intn(len(from))]
}

func randomNumber(r *rand.Rand, min, max int) int {
	return min + r.Intn(max-min+1)
}

// generateRow creates one customer row. Roughly one in twenty values is left
// empty so that blank handling gets exercised too.
func generateRow(r *rand.Rand, id int) rows.Row {
	first, last := pick(r, firstNames), pick(r, lastNames)
	row := rows.Row{
		"customer_id": fmt.Sprintf("C%06d", id),
		"first_name":  first,
		"last_name":   last,
		"email":       fmt.Sprintf("%s.%s%d@%s", strings.TrimSpace(first), last, id, pick(r, domains)),
		"phone":       fmt.Sprintf("(%03d) %03d-%04d", randomNumber(r, 201, 989), randomNumber(r, 200, 999), r.Intn(10000)),
		"address":     fmt.Sprintf("%d %s", randomNumber(r, 1, 9999), pick(r, streets)),
		"city":        pick(r, cities),
		"state":       pick(r, states),
		"zip":         fmt.Sprintf("%05d", r.Intn(100000)),
	}
	if r.Intn(20) == 0 {
		row["phone"] = ""
	}
	return row
}

// generate builds the dataset. Fact datasets get a "timestamp" column that
// advances by Interval with a few seconds of jitter per row.
func generate(r *rand.Rand, cfg Config) rows.Table {
	columns := []string{"customer_id", "first_name", "last_name", "email", "phone", "address", "city", "state", "zip"}
	if cfg.Fact {
		columns = append(columns, "timestamp")
	}
	rs := make([]rows.Row, cfg.NumRows)
	for i := range rs {
		rs[i] = generateRow(r, i)
		if cfg.Fact {
			ts := cfg.Start.Add(time.Duration(i)*cfg.Interval + time.Duration(r.Intn(30))*time.Second)
			rs[i]["timestamp"] = ts.UTC().Format(time.RFC3339)
		}
	}
	return rows.New(columns, rs)
}

func write(w io.Writer, cfg Config, t rows.Table) error {
	format, err := rowcodec.ParseFormat(cfg.Format)
	if err != nil {
		return err
	}
	if cfg.Gzip {
		b, err := rowcodec.EncodeGzip(format, t)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	}
	var buf bytes.Buffer
	if err := rowcodec.Encode(&buf, format, t); err != nil {
		return err
	}
	_, err = buf.WriteTo(w)
	return err
}

func main() {
	cfg := Config{}
	var start string

	flag.IntVarP(&cfg.NumRows, "rows", "n", 1000, "Number of rows to generate")
	flag.StringVarP(&cfg.Format, "format", "f", "JSON", "Output format: JSON | CSV")
	flag.BoolVarP(&cfg.Gzip, "gzip", "z", false, "Gzip the output")
	flag.BoolVar(&cfg.Fact, "fact", false, "Add a timestamp column (time-series dataset)")
	flag.StringVar(&start, "start", "2024-01-01T00:00:00Z", "First timestamp (fact datasets)")
	flag.DurationVar(&cfg.Interval, "interval", time.Hour, "Time between rows (fact datasets)")
	flag.Int64Var(&cfg.Seed, "seed", 0, "Random seed (0 = time-based)")
	flag.StringVarP(&cfg.Out, "out", "o", "-", "Output file, - for stdout")
	flag.Parse()

	var err error
	if cfg.Start, err = time.Parse(time.RFC3339, start); err != nil {
		log.Fatalf("Invalid --start: %v", err)
	}

	// Initialize random source
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	r := rand.New(rand.NewSource(seed))
	fmt.Fprintf(os.Stderr, "Using seed: %d\n", seed)

	w := io.Writer(os.Stdout)
	if cfg.Out != "-" {
		f, err := os.Create(cfg.Out)
		if err != nil {
			log.Fatalf("Failed to create %s: %v", cfg.Out, err)
		}
		defer f.Close()
		w = f
	}

	if err := write(w, cfg, generate(r, cfg)); err != nil {
		log.Fatalf("Failed to write dataset: %v", err)
	}
	fmt.Fprintf(os.Stderr, "Rows written: %d\n", cfg.NumRows)
}
