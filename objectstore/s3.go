package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"sort"
	"strings"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/gurre/amc-etl/aws"
	"github.com/gurre/s3streamer"
)

// S3Source reads the source object from S3.
// Example:
//
//	client := s3.NewFromConfig(cfg)
//	src, err := objectstore.NewS3Source(client, s3streamer.NewS3Streamer(client), "s3://in-bucket/customers.csv")
type S3Source struct {
	client   aws.S3Client
	streamer s3streamer.Streamer
	bucket   string
	key      string
}

// NewS3Source creates a source for the object at uri.
func NewS3Source(client aws.S3Client, streamer s3streamer.Streamer, uri string) (*S3Source, error) {
	bucket, key, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, fmt.Errorf("S3 URI has no key: %s", uri)
	}
	return &S3Source{client: client, streamer: streamer, bucket: bucket, key: key}, nil
}

func (s *S3Source) Stat(ctx context.Context) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.key)
		}
		return ObjectInfo{}, fmt.Errorf("failed to head s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return ObjectInfo{
		Name:        path.Base(s.key),
		Size:        awssdk.ToInt64(out.ContentLength),
		ContentType: awssdk.ToString(out.ContentType),
	}, nil
}

func (s *S3Source) Open(ctx context.Context) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &s.key,
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("%w: s3://%s/%s", ErrNotFound, s.bucket, s.key)
		}
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return out.Body, nil
}

// StreamLines hands every line of the object to fn. The line slice is only
// valid for the duration of the call.
func (s *S3Source) StreamLines(ctx context.Context, fn func(line []byte) error) error {
	if s.streamer == nil {
		return errors.New("s3 source has no streamer")
	}
	return s.streamer.Stream(ctx, s.bucket, s.key, 0, func(line []byte, _ int64) error {
		return fn(line)
	})
}

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noSuchKey) || errors.As(err, &notFound)
}

// S3Sink writes output objects below an S3 prefix.
// Example:
//
//	sink, err := objectstore.NewS3Sink(client, "s3://out-bucket")
//	loc, err := sink.Put(ctx, "amc/ds/ADDITIVE/JSON/US/inst|123/data-0.gz", body, map[string]string{"instanceId": "inst"})
type S3Sink struct {
	client aws.S3Client
	bucket string
	prefix string
}

// NewS3Sink creates a sink for s3://bucket[/prefix].
func NewS3Sink(client aws.S3Client, uri string) (*S3Sink, error) {
	bucket, prefix, err := parseS3URI(uri)
	if err != nil {
		return nil, err
	}
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}, nil
}

func (s *S3Sink) Put(ctx context.Context, key string, body []byte, tags map[string]string) (string, error) {
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}
	in := &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        bytes.NewReader(body),
		ContentType: awssdk.String(contentTypeFor(key)),
	}
	if strings.HasSuffix(key, ".gz") {
		in.ContentType = awssdk.String("application/gzip")
	}
	if len(tags) > 0 {
		in.Tagging = awssdk.String(encodeTags(tags))
	}
	if _, err := s.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("failed to put s3://%s/%s: %w", s.bucket, key, err)
	}
	return "s3://" + s.bucket + "/" + key, nil
}

// encodeTags renders tags as the URL query string S3 expects, in key order.
func encodeTags(tags map[string]string) string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = url.QueryEscape(k) + "=" + url.QueryEscape(tags[k])
	}
	return strings.Join(parts, "&")
}
