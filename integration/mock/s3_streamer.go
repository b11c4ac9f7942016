package mock

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
)

// Stream provides a simplified implementation of s3streamer.Streamer for
// testing. It scans the stored object line by line, skipping the first
// offset lines.
func (m *S3Client) Stream(ctx context.Context, bucket, key string, offset int64, fn func([]byte, int64) error) error {
	obj, ok := m.Object(bucket, key)
	if !ok {
		return fmt.Errorf("mock S3: key not found: %s/%s", bucket, key)
	}
	m.mu.Lock()
	m.streams++
	m.mu.Unlock()

	scanner := bufio.NewScanner(bytes.NewReader(obj.Body))
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024)

	for n := int64(0); scanner.Scan(); n++ {
		if n < offset {
			continue
		}
		if err := fn(scanner.Bytes(), n); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning lines: %w", err)
	}
	return nil
}

// Streams returns how many objects were read through Stream.
func (m *S3Client) Streams() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams
}
