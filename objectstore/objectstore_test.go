package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[*in.Bucket+"/"+*in.Key] = b
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	b, ok := f.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NotFound{}
	}
	return &s3.HeadObjectOutput{ContentLength: awssdk.Int64(int64(len(b))), ContentType: awssdk.String("text/csv")}, nil
}

type fakeStreamer struct {
	content string
}

func (f *fakeStreamer) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	for i, line := range strings.Split(strings.TrimSuffix(f.content, "\n"), "\n") {
		if err := fn([]byte(line), int64(i)); err != nil {
			return err
		}
	}
	return nil
}

func TestS3Source(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string][]byte{"in/data/customers.csv": []byte("a,b\n1,2\n")}}

	src, err := NewS3Source(client, &fakeStreamer{content: "x\ny\n"}, "s3://in/data/customers.csv")
	require.NoError(t, err)

	info, err := src.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, ObjectInfo{Name: "customers.csv", Size: 8, ContentType: "text/csv"}, info)

	rc, err := src.Open(ctx)
	require.NoError(t, err)
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(b))

	var lines []string
	require.NoError(t, src.StreamLines(ctx, func(line []byte) error {
		lines = append(lines, string(line))
		return nil
	}))
	assert.Equal(t, []string{"x", "y"}, lines)
}

func TestS3SourceNotFound(t *testing.T) {
	ctx := context.Background()
	src, err := NewS3Source(&fakeS3{objects: map[string][]byte{}}, nil, "s3://in/missing.json")
	require.NoError(t, err)

	_, err = src.Stat(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = src.Open(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.Error(t, src.StreamLines(ctx, func([]byte) error { return nil }))
}

func TestNewS3SourceInvalidURI(t *testing.T) {
	for _, uri := range []string{"http://bucket/key", "s3://bucket", "s3:///key", "bucket/key"} {
		_, err := NewS3Source(&fakeS3{}, nil, uri)
		assert.Error(t, err, uri)
	}
}

func TestS3SinkPut(t *testing.T) {
	ctx := context.Background()
	client := &fakeS3{objects: map[string][]byte{}}
	sink, err := NewS3Sink(client, "s3://out/prefix/")
	require.NoError(t, err)

	loc, err := sink.Put(ctx, "amc/ds/inst|1/file-0.gz", []byte("body"), map[string]string{"instanceId": "inst"})
	require.NoError(t, err)
	assert.Equal(t, "s3://out/prefix/amc/ds/inst|1/file-0.gz", loc)

	require.Len(t, client.puts, 1)
	put := client.puts[0]
	assert.Equal(t, "instanceId=inst", awssdk.ToString(put.Tagging))
	assert.Equal(t, "application/gzip", awssdk.ToString(put.ContentType))
	assert.Equal(t, []byte("body"), client.objects["out/prefix/amc/ds/inst|1/file-0.gz"])

	_, err = sink.Put(ctx, "m.txt", []byte("x"), nil)
	require.NoError(t, err)
	assert.Nil(t, client.puts[1].Tagging)
	assert.Equal(t, "text/plain", awssdk.ToString(client.puts[1].ContentType))
}

func TestEncodeTags(t *testing.T) {
	s := encodeTags(map[string]string{"b": "x y", "a": "1&2"})
	assert.Equal(t, "a=1%262&b=x+y", s)
}

func TestContentTypeFor(t *testing.T) {
	for name, want := range map[string]string{
		"events.json":        "application/json",
		"events.ndjson":      "application/json",
		"customers.csv":      "text/csv",
		"customers.csv.gz":   "text/csv",
		"customers.csv-0.gz": "application/octet-stream",
		"customers.txt":      "text/plain",
		"archive.parquet":    "application/octet-stream",
	} {
		assert.Equal(t, want, contentTypeFor(name), name)
	}
}

func TestFileSourceAndSink(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	in := filepath.Join(dir, "customers.json")
	require.NoError(t, os.WriteFile(in, []byte("{}\n"), 0644))

	src, err := NewFileSource("file://" + in)
	require.NoError(t, err)
	info, err := src.Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, "customers.json", info.Name)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, "application/json", info.ContentType)

	missing, err := NewFileSource(filepath.Join(dir, "nope.csv"))
	require.NoError(t, err)
	_, err = missing.Stat(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))

	sink, err := NewFileSink(filepath.Join(dir, "out"))
	require.NoError(t, err)
	loc, err := sink.Put(ctx, "amc/ds/a|b/file.txt", []byte("hello"), map[string]string{"instanceId": "a"})
	require.NoError(t, err)
	b, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(b))

	_, err = sink.Put(ctx, "../escape.txt", []byte("x"), nil)
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryStore()
	tags := map[string]string{"instanceId": "i"}
	loc, err := m.Put(ctx, "b/file.csv", []byte("a\n"), tags)
	require.NoError(t, err)
	assert.Equal(t, "mem://b/file.csv", loc)
	tags["instanceId"] = "changed"

	obj, ok := m.Get("b/file.csv")
	require.True(t, ok)
	assert.Equal(t, "i", obj.Tags["instanceId"])
	assert.Equal(t, "text/csv", obj.ContentType)
	assert.Equal(t, []string{"b/file.csv"}, m.Keys())

	info, err := m.Source("b/file.csv").Stat(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), info.Size)

	_, err = m.Source("nope").Open(ctx)
	assert.True(t, errors.Is(err, ErrNotFound))
}
