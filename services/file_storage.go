package services

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	appConfig "github.com/kendall-kelly/design-studio-api/config"
	"github.com/kendall-kelly/design-studio-api/utils"
	jww "github.com/spf13/jwalterweatherman"
)

// StoredFile is the result of a successful upload.
type StoredFile struct {
	Key string
	URL string
}

// FileStorage stores uploaded binaries and returns a durable public URL.
type FileStorage interface {
	Upload(ctx context.Context, content []byte, filename string, orderID, uploaderID uint) (StoredFile, error)
	Delete(ctx context.Context, key string) error
}

// s3API is the part of the S3 client the storage uses.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3FileStorage implements FileStorage on an S3 bucket.
type S3FileStorage struct {
	client        s3API
	bucket        string
	region        string
	publicBaseURL string
}

// NewS3FileStorage builds an S3 client from the application config.
func NewS3FileStorage(ctx context.Context, cfg *appConfig.Config) (*S3FileStorage, error) {
	if cfg.AWSS3Bucket == "" {
		return nil, fmt.Errorf("AWS_S3_BUCKET is required for file uploads")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.AWSRegion)}
	if cfg.AWSAccessKeyID != "" && cfg.AWSSecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AWSAccessKeyID,
			cfg.AWSSecretAccessKey,
			"",
		)))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		o.UsePathStyle = false
	})

	return newS3FileStorage(client, cfg.AWSS3Bucket, cfg.AWSRegion, cfg.FilePublicBaseURL), nil
}

func newS3FileStorage(client s3API, bucket, region, publicBaseURL string) *S3FileStorage {
	return &S3FileStorage{
		client:        client,
		bucket:        bucket,
		region:        region,
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
	}
}

// StorageKey returns the object key for an upload.
// Format: uploads/orders/{orderID}/{uuid}_{filename}
func StorageKey(orderID uint, filename string) string {
	return fmt.Sprintf("uploads/orders/%d/%s_%s", orderID, uuid.NewString(), utils.SanitizeFilename(filename))
}

// Upload puts the content in the bucket and returns its key and public URL.
func (s *S3FileStorage) Upload(ctx context.Context, content []byte, filename string, orderID, uploaderID uint) (StoredFile, error) {
	key := StorageKey(orderID, filename)

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(filename)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(content),
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"order-id":    fmt.Sprint(orderID),
			"uploader-id": fmt.Sprint(uploaderID),
		},
	})
	if err != nil {
		return StoredFile{}, fmt.Errorf("failed to upload to S3: %w", err)
	}

	jww.INFO.Printf("[S3] Uploaded %s (%d bytes) for order %d", key, len(content), orderID)
	return StoredFile{Key: key, URL: s.PublicURL(key)}, nil
}

// PublicURL returns the durable URL of an object.
func (s *S3FileStorage) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// Delete removes an object. An empty key is a no-op.
func (s *S3FileStorage) Delete(ctx context.Context, key string) error {
	if key == "" {
		return nil
	}

	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file from S3: %w", err)
	}

	return nil
}
