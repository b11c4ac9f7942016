package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads the source object from the local filesystem.
type FileSource struct {
	path string
}

// NewFileSource accepts a plain path or a file:// URI.
func NewFileSource(uri string) (*FileSource, error) {
	p, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	return &FileSource{path: p}, nil
}

func (f *FileSource) Stat(ctx context.Context) (ObjectInfo, error) {
	fi, err := os.Stat(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, f.path)
		}
		return ObjectInfo{}, fmt.Errorf("failed to stat %s: %w", f.path, err)
	}
	return ObjectInfo{
		Name:        filepath.Base(f.path),
		Size:        fi.Size(),
		ContentType: contentTypeFor(f.path),
	}, nil
}

func (f *FileSource) Open(ctx context.Context) (io.ReadCloser, error) {
	file, err := os.Open(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, f.path)
		}
		return nil, fmt.Errorf("failed to open %s: %w", f.path, err)
	}
	return file, nil
}

// FileSink writes output objects below a directory. The filesystem has no
// object tags, so tags are dropped.
type FileSink struct {
	dir string
}

// NewFileSink creates the output directory if needed.
func NewFileSink(uri string) (*FileSink, error) {
	dir, err := localPath(uri)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

func (f *FileSink) Put(ctx context.Context, key string, body []byte, _ map[string]string) (string, error) {
	p := filepath.Join(f.dir, filepath.FromSlash(key))
	// Keys come from dataset ids and file names; keep them inside dir.
	if rel, err := filepath.Rel(f.dir, p); err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("key escapes output directory: %s", key)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	if err := os.WriteFile(p, body, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p, err)
	}
	return p, nil
}

func localPath(uri string) (string, error) {
	p := uri
	if strings.HasPrefix(uri, "file://") {
		u, err := url.Parse(uri)
		if err != nil {
			return "", fmt.Errorf("invalid file URI: %w", err)
		}
		p = u.Path
	}
	if p == "" {
		return "", errors.New("empty path")
	}
	return filepath.Clean(p), nil
}
