// Package storage keeps the files of imported documents in object storage.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/synchub/backend/internal/application/integration"
	infraconfig "github.com/synchub/backend/internal/infrastructure/config"
	"go.uber.org/zap"
)

var _ integration.FileStore = (*S3DocumentStore)(nil)

var errNoKey = errors.New("storage key is required")

// S3DocumentStore keeps document attachments in one S3-compatible bucket
// (AWS S3 or MinIO) and hands out presigned links to them.
type S3DocumentStore struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
	linkTTL time.Duration
	logger  *zap.Logger
}

// NewS3DocumentStore builds the client from the storage section. A
// scheme-less endpoint is completed from UseSSL.
func NewS3DocumentStore(cfg infraconfig.StorageConfig, logger *zap.Logger) (*S3DocumentStore, error) {
	switch {
	case cfg.Bucket == "":
		return nil, errors.New("storage.bucket is required")
	case cfg.AccessKey == "" || cfg.SecretKey == "":
		return nil, errors.New("storage access and secret keys are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.Contains(endpoint, "://") {
		scheme := "http://"
		if cfg.UseSSL {
			scheme = "https://"
		}
		endpoint = scheme + endpoint
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := config.LoadDefaultConfig(context.Background(),
		config.WithRegion(region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	linkTTL := cfg.PresignExpiration
	if linkTTL <= 0 {
		linkTTL = 15 * time.Minute
	}
	return &S3DocumentStore{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
		linkTTL: linkTTL,
		logger:  logger,
	}, nil
}

// Put uploads one attachment
func (s *S3DocumentStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	if key == "" {
		return errNoKey
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	s.logger.Debug("attachment uploaded", zap.String("bucket", s.bucket), zap.String("key", key), zap.Int("bytes", len(data)))
	return nil
}

// Exists reports whether key is in the bucket
func (s *S3DocumentStore) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, errNoKey
	}
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err == nil {
		return true, nil
	}
	if isMissing(err) {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", key, err)
}

// DownloadURL presigns a GET for key. ttl <= 0 uses storage.presign_expiration.
func (s *S3DocumentStore) DownloadURL(ctx context.Context, key string, ttl time.Duration) (string, time.Time, error) {
	if key == "" {
		return "", time.Time{}, errNoKey
	}
	if ttl <= 0 {
		ttl = s.linkTTL
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)},
		s3.WithPresignExpires(ttl))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, time.Now().Add(ttl), nil
}

// isMissing recognises a 404 from HeadObject. HEAD responses carry no body,
// so MinIO only surfaces the generic NotFound API code.
func isMissing(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	var apiErr smithy.APIError
	return errors.As(err, &apiErr) && (apiErr.ErrorCode() == "NotFound" || apiErr.ErrorCode() == "NoSuchKey")
}
