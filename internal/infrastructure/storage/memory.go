package storage

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/synchub/backend/internal/application/integration"
)

var _ integration.FileStore = (*MemoryDocumentStore)(nil)

type storedObject struct {
	data        []byte
	contentType string
}

// MemoryDocumentStore keeps attachments in process memory for the "memory"
// storage type. Links use the memory:// scheme and cannot be fetched.
type MemoryDocumentStore struct {
	mu      sync.RWMutex
	objects map[string]storedObject
	now     func() time.Time
}

// NewMemoryDocumentStore creates an empty store
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{objects: make(map[string]storedObject), now: time.Now}
}

// Put keeps a copy of data
func (s *MemoryDocumentStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errNoKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = storedObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

// Exists reports whether key was put
func (s *MemoryDocumentStore) Exists(_ context.Context, key string) (bool, error) {
	if key == "" {
		return false, errNoKey
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

// DownloadURL returns memory://documents/<key>?expires=<RFC3339>; ttl <= 0
// means fifteen minutes
func (s *MemoryDocumentStore) DownloadURL(_ context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errNoKey
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	expires := s.now().Add(ttl).UTC()
	u := url.URL{Scheme: "memory", Host: "documents", Path: "/" + key, RawQuery: "expires=" + url.QueryEscape(expires.Format(time.RFC3339))}
	return u.String(), expires, nil
}

// Object returns what was put under key
func (s *MemoryDocumentStore) Object(key string) ([]byte, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.objects[key]
	return o.data, o.contentType, ok
}
