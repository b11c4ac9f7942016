// Package objectstore reads the advertiser source object and writes output
// objects. S3, the local filesystem and memory are supported behind the same
// Source and Sink interfaces.
//
// Example:
//
//	src, err := objectstore.NewS3Source(client, streamer, "s3://in-bucket/customers.json.gz")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	info, err := src.Stat(ctx)
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/gurre/amc-etl/rowcodec"
)

// ErrNotFound is returned when the source object does not exist.
var ErrNotFound = errors.New("object not found")

// ObjectInfo describes the source object.
type ObjectInfo struct {
	Name        string // base name of the object
	Size        int64  // size in bytes as stored
	ContentType string
}

// Source is the single input object of a job.
type Source interface {
	Stat(ctx context.Context) (ObjectInfo, error)
	Open(ctx context.Context) (io.ReadCloser, error)
}

// LineStreamer is implemented by sources that can deliver the decompressed
// object one line at a time without buffering it whole.
type LineStreamer interface {
	StreamLines(ctx context.Context, fn func(line []byte) error) error
}

// Sink receives output objects. Put returns the location of the written
// object, such as s3://bucket/key.
type Sink interface {
	Put(ctx context.Context, key string, body []byte, tags map[string]string) (string, error)
}

// Object is a stored object with its tags.
type Object struct {
	Body        []byte
	ContentType string
	Tags        map[string]string
}

// IsS3URI reports whether uri uses the s3 scheme.
func IsS3URI(uri string) bool {
	return strings.HasPrefix(uri, "s3://")
}

// parseS3URI splits s3://bucket/key into its parts.
func parseS3URI(uri string) (bucket, key string, err error) {
	u, err := url.Parse(uri)
	if err != nil {
		return "", "", fmt.Errorf("invalid S3 URI: %w", err)
	}
	if u.Scheme != "s3" {
		return "", "", fmt.Errorf("invalid S3 URI scheme: %s", u.Scheme)
	}
	if u.Host == "" {
		return "", "", fmt.Errorf("S3 URI has no bucket: %s", uri)
	}
	return u.Host, strings.TrimPrefix(u.Path, "/"), nil
}

// contentTypeFor guesses a content type from an object name. Data files get
// the media type of their row format, manifests are plain text.
func contentTypeFor(name string) string {
	if f, err := rowcodec.FormatFromName(name); err == nil {
		return f.ContentType()
	}
	if strings.EqualFold(path.Ext(name), ".txt") {
		return "text/plain"
	}
	return "application/octet-stream"
}

func copyTags(tags map[string]string) map[string]string {
	if tags == nil {
		return nil
	}
	out := make(map[string]string, len(tags))
	for k, v := range tags {
		out[k] = v
	}
	return out
}
