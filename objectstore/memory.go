package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"sync"
)

// MemoryStore keeps objects in memory. It serves as a sink for dry runs and
// tests, and as a source through Source.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]Object)}
}

func (m *MemoryStore) Put(ctx context.Context, key string, body []byte, tags map[string]string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = Object{
		Body:        append([]byte(nil), body...),
		ContentType: contentTypeFor(key),
		Tags:        copyTags(tags),
	}
	return "mem://" + key, nil
}

// Get returns the object stored under key.
func (m *MemoryStore) Get(key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[key]
	return obj, ok
}

// Keys returns all stored keys in sorted order.
func (m *MemoryStore) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Source returns a Source reading the object stored under key.
func (m *MemoryStore) Source(key string) Source {
	return &memorySource{store: m, key: key}
}

type memorySource struct {
	store *MemoryStore
	key   string
}

func (s *memorySource) Stat(ctx context.Context) (ObjectInfo, error) {
	obj, ok := s.store.Get(s.key)
	if !ok {
		return ObjectInfo{}, fmt.Errorf("%w: %s", ErrNotFound, s.key)
	}
	return ObjectInfo{Name: path.Base(s.key), Size: int64(len(obj.Body)), ContentType: obj.ContentType}, nil
}

func (s *memorySource) Open(ctx context.Context) (io.ReadCloser, error) {
	obj, ok := s.store.Get(s.key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, s.key)
	}
	return io.NopCloser(bytes.NewReader(obj.Body)), nil
}
