// Package storage keeps attachment content outside the primary store.
package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
)

var ErrObjectNotFound = errors.New("object not found")

// Object is one stored attachment body.
type Object struct {
	// Key is "<user>/<message>/<attachment>".
	Key         string
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ObjectStore holds attachment content.
type ObjectStore interface {
	Put(ctx context.Context, obj Object) error
	// Open returns ErrObjectNotFound for a missing key.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Remove deletes the object. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// RemovePrefix deletes every object under prefix.
	RemovePrefix(ctx context.Context, prefix string) error
}

// MemoryStorage keeps objects in memory. Used by tests and when MinIO is
// not configured.
type MemoryStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{objects: make(map[string][]byte)}
}

func (m *MemoryStorage) Put(ctx context.Context, obj Object) error {
	b, err := io.ReadAll(obj.Body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[obj.Key] = b
	return nil
}

func (m *MemoryStorage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.objects[key]
	if !ok {
		return nil, ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *MemoryStorage) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *MemoryStorage) RemovePrefix(ctx context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k := range m.objects {
		if strings.HasPrefix(k, prefix) {
			delete(m.objects, k)
		}
	}
	return nil
}

// Len reports the number of stored objects.
func (m *MemoryStorage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
