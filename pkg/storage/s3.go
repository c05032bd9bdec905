package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/hitesh-bhardwaj/online-assessment-platform-sub000/internal/models"
)

// FolderMedia is the S3 prefix for proctoring media objects.
const FolderMedia = "proctoring"

// S3Config holds S3 client configuration for the durable media bucket.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
}

// S3 is the remote storage backend. Locators are object keys.
type S3 struct {
	client   *s3.Client
	uploader *manager.Uploader
	cfg      S3Config
	logger   *zap.Logger
}

// NewS3 creates an S3 backend using credentials from config or the environment
// (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY).
func NewS3(ctx context.Context, cfg S3Config, logger *zap.Logger) (*S3, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 backend requires a bucket")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	accessKey := cfg.AccessKeyID
	secretKey := cfg.SecretAccessKey
	if accessKey == "" || secretKey == "" {
		accessKey = os.Getenv("AWS_ACCESS_KEY_ID")
		secretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")
	}
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if accessKey != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			accessKey, secretKey, "",
		)))
		logger.Info("S3 media backend using static credentials", zap.String("region", cfg.Region), zap.String("bucket", cfg.Bucket))
	} else {
		logger.Warn("S3 media backend using default credential chain (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY not set)")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg)
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		u.PartSize = 5 * 1024 * 1024 // 5MB parts for streaming
	})
	return &S3{client: client, uploader: uploader, cfg: cfg, logger: logger}, nil
}

// MediaKey returns the object key for a merged recording:
// proctoring/{result_id}/{filename}.
func MediaKey(resultID, filename string) string {
	return path.Join(FolderMedia, resultID, path.Base(filename))
}

// PublicObjectURL returns the public URL for an object key.
func (s *S3) PublicObjectURL(key string) string {
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}

// Kind reports the backend kind.
func (s *S3) Kind() models.StorageBackend { return models.BackendRemote }

// Put streams body to S3 under key and returns the key plus public URL.
func (s *S3) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (PutResult, error) {
	var contentLength *int64
	if size > 0 {
		contentLength = &size
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: contentLength,
	})
	if err != nil {
		return PutResult{}, fmt.Errorf("s3 upload %s: %w", key, err)
	}
	return PutResult{
		Backend:   models.BackendRemote,
		Locator:   key,
		PublicURL: s.PublicObjectURL(key),
	}, nil
}

// Fetch returns the object body for key. Returns ErrNotFound for missing keys.
func (s *S3) Fetch(ctx context.Context, locator string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, locator)
		}
		return nil, fmt.Errorf("s3 get %s: %w", locator, err)
	}
	return out.Body, nil
}

// Delete removes the object for key. Missing objects are not an error (S3
// DeleteObject is a no-op for absent keys).
func (s *S3) Delete(ctx context.Context, locator string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(locator),
	})
	if err != nil {
		return fmt.Errorf("s3 delete %s: %w", locator, err)
	}
	return nil
}
