// Package storage resolves image files held in S3-compatible object storage
// into short-lived download URLs.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/image-annotator/backend/internal/config"
)

// URLSigner turns an object key into a URL a browser can load.
type URLSigner interface {
	SignedURL(ctx context.Context, objectKey string) (string, error)
}

// ObjectStore is a minio-backed URLSigner for one bucket.
type ObjectStore struct {
	client *minio.Client
	bucket string
	region string
	ttl    time.Duration
}

// NewObjectStore creates a store from the storage settings in cfg. The
// endpoint may be a bare host:port or a URL whose scheme selects TLS.
func NewObjectStore(cfg *config.Config) (*ObjectStore, error) {
	endpoint := cfg.StorageEndpoint
	useSSL := cfg.StorageUseSSL

	if strings.HasPrefix(endpoint, "http") {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("failed to parse storage endpoint: %w", err)
		}
		endpoint = u.Host
		useSSL = u.Scheme == "https"
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: useSSL,
		Region: cfg.StorageRegion,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init object storage client: %w", err)
	}

	ttl := cfg.StorageURLTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}

	return &ObjectStore{
		client: client,
		bucket: cfg.StorageBucket,
		region: cfg.StorageRegion,
		ttl:    ttl,
	}, nil
}

// EnsureBucket creates the image bucket if it does not exist.
func (s *ObjectStore) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// SignedURL presigns a GET for objectKey, valid for the configured TTL.
func (s *ObjectStore) SignedURL(ctx context.Context, objectKey string) (string, error) {
	if objectKey == "" {
		return "", fmt.Errorf("object key is empty")
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, objectKey, s.ttl, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", objectKey, err)
	}
	return u.String(), nil
}
