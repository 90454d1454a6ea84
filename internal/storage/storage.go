// Package storage keeps item images in S3-compatible object storage.
//
// Two clients are used on purpose: uploads go through aws-sdk-go-v2 (plain
// PutObject), while serving uses minio-go presigned GET URLs so image bytes
// never flow through the API process.
package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/minio/minio-go/v7"
	miniocreds "github.com/minio/minio-go/v7/pkg/credentials"
)

// presignExpiry bounds how long a served image URL stays valid.
const presignExpiry = 15 * time.Minute

type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type ImageStore struct {
	uploader *s3.Client
	presign  *minio.Client
	bucket   string
}

func New(cfg *Config) (*ImageStore, error) {
	// minio-go expects host:port without a scheme
	endpoint := cfg.Endpoint
	endpoint = strings.TrimPrefix(endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	presign, err := minio.New(endpoint, &minio.Options{
		Creds:  miniocreds.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	scheme := "http"
	if cfg.UseSSL {
		scheme = "https"
	}
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  awscreds.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true, // Required for MinIO
		BaseEndpoint: aws.String(scheme + "://" + endpoint),
	}

	return &ImageStore{
		uploader: s3.New(opts),
		presign:  presign,
		bucket:   cfg.Bucket,
	}, nil
}

// Key returns the object key for an item's image. One image per item;
// re-uploads overwrite.
func Key(itemID string) string {
	return fmt.Sprintf("items/%s/image", itemID)
}

// Upload stores an image under key, replacing any previous object.
func (s *ImageStore) Upload(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	_, err := s.uploader.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload image: %w", err)
	}
	return nil
}

// URL returns a time-limited presigned GET URL for the stored image.
func (s *ImageStore) URL(ctx context.Context, key string) (string, error) {
	u, err := s.presign.PresignedGetObject(ctx, s.bucket, key, presignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign image url: %w", err)
	}
	return u.String(), nil
}

// Delete removes an item's image.
func (s *ImageStore) Delete(ctx context.Context, key string) error {
	_, err := s.uploader.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

// Check verifies the bucket is reachable; used by the readiness probe.
func (s *ImageStore) Check(ctx context.Context) error {
	exists, err := s.presign.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("storage check failed: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.bucket)
	}
	return nil
}
