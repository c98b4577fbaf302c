package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/synchub/backend/internal/infrastructure/config"
)

// fakeBucket answers the path-style PUT and HEAD calls the store makes
type fakeBucket struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func newFakeBucket(t *testing.T) (*fakeBucket, *httptest.Server) {
	t.Helper()
	b := &fakeBucket{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()
		switch r.Method {
		case http.MethodPut:
			body, _ := io.ReadAll(r.Body)
			b.objects[r.URL.Path] = body
			b.types[r.URL.Path] = r.Header.Get("Content-Type")
			w.Header().Set("ETag", `"etag"`)
			w.WriteHeader(http.StatusOK)
		case http.MethodHead:
			if _, ok := b.objects[r.URL.Path]; !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}))
	t.Cleanup(srv.Close)
	return b, srv
}

func testStorageConfig(endpoint string) config.StorageConfig {
	return config.StorageConfig{
		Type:         "s3",
		Endpoint:     endpoint,
		Bucket:       "hub-documents",
		AccessKey:    "test-key",
		SecretKey:    "test-secret",
		UsePathStyle: true,
	}
}

func TestNewS3DocumentStore_Validation(t *testing.T) {
	cfg := testStorageConfig("http://localhost:9000")
	cfg.Bucket = ""
	_, err := NewS3DocumentStore(cfg, nil)
	assert.ErrorContains(t, err, "storage.bucket")

	cfg = testStorageConfig("http://localhost:9000")
	cfg.SecretKey = ""
	_, err = NewS3DocumentStore(cfg, nil)
	assert.ErrorContains(t, err, "secret keys")

	s, err := NewS3DocumentStore(testStorageConfig("minio.local:9000"), nil)
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, s.linkTTL)
}

func TestS3DocumentStore_PutAndExists(t *testing.T) {
	bucket, srv := newFakeBucket(t)
	s, err := NewS3DocumentStore(testStorageConfig(srv.URL), nil)
	require.NoError(t, err)
	ctx := context.Background()
	key := "documents/t1/d1/factura.pdf"

	exists, err := s.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Put(ctx, key, []byte("%PDF-1.4"), "application/pdf"))
	bucket.mu.Lock()
	assert.Equal(t, []byte("%PDF-1.4"), bucket.objects["/hub-documents/"+key])
	assert.Equal(t, "application/pdf", bucket.types["/hub-documents/"+key])
	bucket.mu.Unlock()

	exists, err = s.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	assert.ErrorIs(t, s.Put(ctx, "", nil, "text/plain"), errNoKey)
}

func TestS3DocumentStore_DownloadURL(t *testing.T) {
	cfg := testStorageConfig("http://localhost:9000")
	cfg.PresignExpiration = time.Hour
	s, err := NewS3DocumentStore(cfg, nil)
	require.NoError(t, err)
	ctx := context.Background()

	link, expires, err := s.DownloadURL(ctx, "documents/t1/d1/factura.pdf", 0)
	require.NoError(t, err)
	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "localhost:9000", u.Host)
	assert.True(t, strings.HasPrefix(u.Path, "/hub-documents/documents/t1/d1/"))
	assert.Equal(t, "3600", u.Query().Get("X-Amz-Expires"))
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	_, _, err = s.DownloadURL(ctx, "", time.Minute)
	assert.ErrorIs(t, err, errNoKey)
}
