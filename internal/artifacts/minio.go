package artifacts

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config holds the configuration for the MinIO artifact backend.
type Config struct {
	Endpoint        string        `yaml:"endpoint"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	UseSSL          bool          `yaml:"use_ssl"`
	Region          string        `yaml:"region"`
	Bucket          string        `yaml:"bucket"`
	// PublicBaseURL, when set, is used for artifact URLs instead of
	// presigning (e.g. a CDN in front of the bucket).
	PublicBaseURL string        `yaml:"public_base_url"`
	PresignExpiry time.Duration `yaml:"presign_expiry"`
}

// MinioClient wraps the MinIO client and implements the ObjectStorage interface.
type MinioClient struct {
	client *minio.Client
	logger *zap.Logger
	config Config
}

// NewMinioClient creates and returns a new MinIO-backed artifact store.
func NewMinioClient(cfg Config, logger *zap.Logger) (*MinioClient, error) {
	logger.Info("Initializing MinIO artifact store",
		zap.String("endpoint", cfg.Endpoint),
		zap.Bool("useSSL", cfg.UseSSL),
		zap.String("bucket", cfg.Bucket),
	)

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.ListBuckets(ctx); err != nil {
		return nil, fmt.Errorf("failed to connect/authenticate with MinIO: %w", err)
	}

	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 24 * time.Hour
	}

	return &MinioClient{
		client: client,
		logger: logger.Named("minio_artifacts"),
		config: cfg,
	}, nil
}

// EnsureBucket creates the artifact bucket if it does not already exist.
func (mc *MinioClient) EnsureBucket(ctx context.Context) error {
	exists, err := mc.client.BucketExists(ctx, mc.config.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check for bucket %s: %w", mc.config.Bucket, err)
	}
	if !exists {
		mc.logger.Info("Bucket does not exist, creating it", zap.String("bucket", mc.config.Bucket))
		err = mc.client.MakeBucket(ctx, mc.config.Bucket, minio.MakeBucketOptions{Region: mc.config.Region})
		if err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", mc.config.Bucket, err)
		}
	}
	return nil
}

// Upload stores a generated artifact under the given key.
func (mc *MinioClient) Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*ObjectInfo, error) {
	info, err := mc.client.PutObject(ctx, mc.config.Bucket, key, reader, size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload %s/%s: %w", mc.config.Bucket, key, err)
	}

	mc.logger.Debug("Artifact uploaded",
		zap.String("key", key),
		zap.Int64("size", info.Size),
		zap.String("contentType", contentType),
	)

	return &ObjectInfo{
		Key:         info.Key,
		Size:        info.Size,
		ContentType: contentType,
		ETag:        info.ETag,
	}, nil
}

// Download retrieves a stored artifact by key.
func (mc *MinioClient) Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error) {
	obj, err := mc.client.GetObject(ctx, mc.config.Bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get %s/%s: %w", mc.config.Bucket, key, err)
	}

	stat, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, nil, fmt.Errorf("failed to stat %s/%s: %w", mc.config.Bucket, key, err)
	}

	return obj, &ObjectInfo{
		Key:          stat.Key,
		Size:         stat.Size,
		LastModified: stat.LastModified,
		ContentType:  stat.ContentType,
		ETag:         stat.ETag,
	}, nil
}

// Delete removes an artifact by key.
func (mc *MinioClient) Delete(ctx context.Context, key string) error {
	if err := mc.client.RemoveObject(ctx, mc.config.Bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", mc.config.Bucket, key, err)
	}
	return nil
}

// PublicURL returns the client-facing URL for an artifact: a plain URL under
// the configured public base when one is set, otherwise a presigned GET.
func (mc *MinioClient) PublicURL(ctx context.Context, key string) (string, error) {
	if mc.config.PublicBaseURL != "" {
		return strings.TrimSuffix(mc.config.PublicBaseURL, "/") + "/" + key, nil
	}

	presigned, err := mc.client.PresignedGetObject(ctx, mc.config.Bucket, key, mc.config.PresignExpiry, url.Values{})
	if err != nil {
		return "", fmt.Errorf("failed to presign %s/%s: %w", mc.config.Bucket, key, err)
	}
	return presigned.String(), nil
}
