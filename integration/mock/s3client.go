package mock

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Object is one stored S3 object.
type Object struct {
	Body        []byte
	ContentType string
	Tags        map[string]string
}

// S3Client is an in-memory implementation of aws.S3Client for testing. Its
// Stream method also makes it an s3streamer.Streamer.
type S3Client struct {
	mu      sync.Mutex
	objects map[string]Object // bucket/key -> object
	// FailPut, when set, is returned by PutObject for keys containing it.
	FailPut string
	puts    int
	streams int
}

// NewS3Client creates an empty mock S3 client.
func NewS3Client() *S3Client {
	return &S3Client{objects: make(map[string]Object)}
}

// AddFile stores content under bucket/key.
func (m *S3Client) AddFile(bucket, key string, content []byte, contentType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = Object{Body: content, ContentType: contentType}
}

// LoadDir stores every regular file below dir in bucket, keyed by its path
// relative to dir. Content types are left empty so that the file name
// decides the format.
func (m *S3Client) LoadDir(bucket, dir string) error {
	return filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		m.AddFile(bucket, filepath.ToSlash(rel), data, "")
		return nil
	})
}

// Object returns the object stored under bucket/key.
func (m *S3Client) Object(bucket, key string) (Object, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[bucket+"/"+key]
	return obj, ok
}

// Keys lists the keys in bucket that start with prefix, sorted.
func (m *S3Client) Keys(bucket, prefix string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for k := range m.objects {
		b, key, _ := strings.Cut(k, "/")
		if b == bucket && strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Puts returns the number of successful PutObject calls.
func (m *S3Client) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}

func (m *S3Client) get(bucket, key *string) (Object, error) {
	obj, ok := m.Object(aws.ToString(bucket), aws.ToString(key))
	if !ok {
		return Object{}, &types.NoSuchKey{
			Message: aws.String(fmt.Sprintf("The specified key does not exist: %s", aws.ToString(key))),
		}
	}
	return obj, nil
}

// GetObject implements the S3Client interface for reading objects
func (m *S3Client) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	obj, err := m.get(params.Bucket, params.Key)
	if err != nil {
		return nil, err
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(bytes.NewReader(obj.Body)),
		ContentLength: aws.Int64(int64(len(obj.Body))),
		ContentType:   aws.String(obj.ContentType),
		ETag:          aws.String(fmt.Sprintf("\"%x\"", len(obj.Body))),
	}, nil
}

// HeadObject implements the S3Client interface for retrieving object metadata
func (m *S3Client) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	obj, err := m.get(params.Bucket, params.Key)
	if err != nil {
		// HeadObject has no body, so S3 reports a bare NotFound.
		return nil, &types.NotFound{Message: aws.String(err.Error())}
	}
	return &s3.HeadObjectOutput{
		ContentLength: aws.Int64(int64(len(obj.Body))),
		ContentType:   aws.String(obj.ContentType),
		ETag:          aws.String(fmt.Sprintf("\"%x\"", len(obj.Body))),
	}, nil
}

// PutObject implements the S3Client interface for writing objects. Tagging
// is parsed the way S3 does, as a URL query string.
func (m *S3Client) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	key := aws.ToString(params.Key)
	if m.FailPut != "" && strings.Contains(key, m.FailPut) {
		return nil, fmt.Errorf("mock S3: put %s failed", key)
	}
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	obj := Object{Body: data, ContentType: aws.ToString(params.ContentType)}
	if params.Tagging != nil {
		vals, err := url.ParseQuery(*params.Tagging)
		if err != nil {
			return nil, fmt.Errorf("mock S3: malformed tagging: %w", err)
		}
		obj.Tags = make(map[string]string, len(vals))
		for k, v := range vals {
			obj.Tags[k] = v[0]
		}
	}

	m.mu.Lock()
	m.objects[aws.ToString(params.Bucket)+"/"+key] = obj
	m.puts++
	m.mu.Unlock()

	return &s3.PutObjectOutput{ETag: aws.String(fmt.Sprintf("\"%x\"", len(data)))}, nil
}
