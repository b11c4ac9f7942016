// Command amc-etl prepares one customer dataset for upload to Amazon
// Marketing Cloud: it normalizes and hashes the PII columns, partitions the
// rows and writes one copy per target instance along with its manifest.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
