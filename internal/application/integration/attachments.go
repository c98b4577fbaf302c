package integration

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// FileStore persists document files
type FileStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	// DownloadURL returns a time-limited link; ttl <= 0 uses the store default
	DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error)
}

// attachmentPrefix starts every key the fetcher writes
const attachmentPrefix = "documents/"

// DefaultMaxAttachmentSize caps a fetched attachment (20MB)
const DefaultMaxAttachmentSize = 20 << 20

// StoredFile describes an attachment copied into the file store
type StoredFile struct {
	Key         string
	FileName    string
	ContentType string
	Size        int
}

// AttachmentFetcher downloads document files referenced by pulled records
// and copies them into the file store.
type AttachmentFetcher struct {
	store   FileStore
	client  *http.Client
	maxSize int64
	logger  *zap.Logger
}

// NewAttachmentFetcher creates a fetcher. A nil client uses a 30s timeout
// and a non-positive maxSize uses DefaultMaxAttachmentSize.
func NewAttachmentFetcher(store FileStore, client *http.Client, maxSize int64, logger *zap.Logger) *AttachmentFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxAttachmentSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttachmentFetcher{store: store, client: client, maxSize: maxSize, logger: logger}
}

// Fetch downloads rawURL and stores it under
// documents/<tenant>/<document>/<file name>.
func (f *AttachmentFetcher) Fetch(ctx context.Context, tenantID, documentID uuid.UUID, rawURL string) (*StoredFile, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("unsupported attachment url %q", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("download attachment: HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, f.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment: %w", err)
	}
	if int64(len(data)) > f.maxSize {
		return nil, fmt.Errorf("attachment exceeds %d bytes", f.maxSize)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	name := attachmentName(u, contentType)
	key := fmt.Sprintf("%s%s/%s/%s", attachmentPrefix, tenantID, documentID, name)
	if err := f.store.Put(ctx, key, data, contentType); err != nil {
		return nil, fmt.Errorf("store attachment: %w", err)
	}

	f.logger.Debug("attachment stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return &StoredFile{Key: key, FileName: name, ContentType: contentType, Size: len(data)}, nil
}

func attachmentName(u *url.URL, contentType string) string {
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = "attachment"
	}
	if path.Ext(name) == "" {
		mediaType, _, _ := mime.ParseMediaType(contentType)
		if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
			name += exts[0]
		}
	}
	return strings.ReplaceAll(name, " ", "_")
}

// Link returns a download link for a stored attachment. ok is false when
// filePath is not a key this fetcher wrote or the object is gone.
func (f *AttachmentFetcher) Link(ctx context.Context, filePath string) (string, bool) {
	if !strings.HasPrefix(filePath, attachmentPrefix) {
		return "", false
	}
	exists, err := f.store.Exists(ctx, filePath)
	if err != nil || !exists {
		f.logger.Warn("stored attachment unavailable", zap.String("key", filePath), zap.Bool("exists", exists), zap.Error(err))
		return "", false
	}
	link, _, err := f.store.DownloadURL(ctx, filePath, 0)
	if err != nil {
		f.logger.Warn("attachment link not generated", zap.String("key", filePath), zap.Error(err))
		return "", false
	}
	return link, true
}
