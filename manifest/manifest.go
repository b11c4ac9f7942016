package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/gurre/amc-etl/logger"
	"github.com/gurre/amc-etl/objectstore"
)

// TagKey is the object tag naming the target instance.
const TagKey = "instanceId"

// Tags returns the object tags for target.
func Tags(target string) map[string]string {
	return map[string]string{TagKey: TargetSegment(target)}
}

// Writer emits one manifest per target.
type Writer struct {
	sink   objectstore.Sink
	layout Layout
	logger *slog.Logger
}

func NewWriter(sink objectstore.Sink, layout Layout, l *slog.Logger) *Writer {
	if l == nil {
		l = logger.Discard()
	}
	return &Writer{sink: sink, layout: layout, logger: l}
}

// Write stores, for each target in order, a manifest listing exactly the
// locations in files[target]. Targets without files get no manifest. When no
// target has files nothing is written and the returned slice is empty.
func (w *Writer) Write(ctx context.Context, stem string, targets []string, files map[string][]string) ([]string, error) {
	total := 0
	for _, t := range targets {
		total += len(files[t])
	}
	if total == 0 {
		w.logger.Warn("no output files to put in manifest, skipping manifests", "stem", stem)
		return nil, nil
	}

	var written []string
	for _, target := range targets {
		locs := files[target]
		if len(locs) == 0 {
			w.logger.Warn("target has no output files, skipping its manifest", "target", target)
			continue
		}
		key := w.layout.ManifestKey(target, stem)
		body := []byte(strings.Join(locs, "\n"))
		loc, err := w.sink.Put(ctx, key, body, Tags(target))
		if err != nil {
			return written, fmt.Errorf("failed to write manifest for %s: %w", target, err)
		}
		w.logger.Info("wrote manifest", "target", target, "location", loc, "files", len(locs))
		written = append(written, loc)
	}
	return written, nil
}
