// Package s3 provides an S3-compatible object store backend.
package s3

import (
	"bytes"
	"context"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/juju/errors"
	"go.uber.org/zap"

	"github.com/pqaidevteam/pqai-db/internal/logging"
	"github.com/pqaidevteam/pqai-db/internal/metrics"
	"github.com/pqaidevteam/pqai-db/internal/storage"
)

// ObjectAPI is the subset of the S3 client used by S3Backend.
// *s3.Client satisfies it.
type ObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ClientConfig holds the connection settings shared by every bucket.
type ClientConfig struct {
	Endpoint  string // empty for AWS
	Region    string
	AccessKey string // empty to use the default credential chain
	SecretKey string
	Timeout   time.Duration
}

// NewClient builds an S3 client. Retries are disabled: a failed call surfaces
// immediately and retry policy belongs to the caller.
func NewClient(ctx context.Context, cfg ClientConfig) (*s3.Client, error) {
	opts := []func(*config.LoadOptions) error{
		config.WithRegion(cfg.Region),
		config.WithRetryMaxAttempts(1),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, config.WithHTTPClient(
			awshttp.NewBuildableClient().WithTimeout(cfg.Timeout),
		))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, errors.Annotate(err, "load aws config")
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO
		}
	})
	return client, nil
}

// S3Backend implements storage.Backend on a single bucket.
type S3Backend struct {
	client ObjectAPI
	bucket string
}

var _ storage.Backend = (*S3Backend)(nil)

// NewBackend creates a backend for bucket using a shared client.
func NewBackend(client ObjectAPI, bucket string) (*S3Backend, error) {
	if client == nil {
		return nil, errors.NotValidf("nil s3 client")
	}
	if bucket == "" {
		return nil, errors.NotValidf("empty bucket name")
	}
	return &S3Backend{client: client, bucket: bucket}, nil
}

// Get retrieves an object's content.
func (b *S3Backend) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()

	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			metrics.RecordStorageOperation("s3", "get", time.Since(start), true)
			return nil, errors.NotFoundf("key %q", key)
		}
		metrics.RecordStorageOperation("s3", "get", time.Since(start), false)
		return nil, errors.Annotatef(err, "get object %s", key)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		metrics.RecordStorageOperation("s3", "get", time.Since(start), false)
		return nil, errors.Annotatef(err, "read object %s", key)
	}

	metrics.RecordStorageOperation("s3", "get", time.Since(start), true)
	logging.Debug("S3 get object", zap.String("key", key), zap.Int("size", len(data)))
	return data, nil
}

// List returns the keys starting with prefix. Only the first page (ListCap keys)
// is fetched; Truncated reports whether more exist.
func (b *S3Backend) List(ctx context.Context, prefix string) (storage.Listing, error) {
	start := time.Now()

	result, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(b.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int32(storage.ListCap),
	})
	if err != nil {
		metrics.RecordStorageOperation("s3", "list", time.Since(start), false)
		return storage.Listing{}, errors.Annotatef(err, "list objects %s", prefix)
	}
	metrics.RecordStorageOperation("s3", "list", time.Since(start), true)

	listing := storage.Listing{
		Keys:      make([]string, 0, len(result.Contents)),
		Truncated: aws.ToBool(result.IsTruncated),
	}
	for _, obj := range result.Contents {
		listing.Keys = append(listing.Keys, aws.ToString(obj.Key))
	}
	if listing.Truncated {
		metrics.RecordListTruncated("s3")
		logging.Warn("S3 listing truncated",
			zap.String("bucket", b.bucket),
			zap.String("prefix", prefix),
			zap.Int("keys", len(listing.Keys)))
	}
	return listing, nil
}

// Exists checks if an object exists.
func (b *S3Backend) Exists(ctx context.Context, key string) (bool, error) {
	start := time.Now()

	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			metrics.RecordStorageOperation("s3", "head", time.Since(start), true)
			return false, nil
		}
		metrics.RecordStorageOperation("s3", "head", time.Since(start), false)
		return false, errors.Annotatef(err, "head object %s", key)
	}

	metrics.RecordStorageOperation("s3", "head", time.Since(start), true)
	return true, nil
}

// Remove deletes an object. Deleting a missing key is a no-op.
func (b *S3Backend) Remove(ctx context.Context, key string) error {
	start := time.Now()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		metrics.RecordStorageOperation("s3", "delete", time.Since(start), false)
		return errors.Annotatef(err, "delete object %s", key)
	}

	metrics.RecordStorageOperation("s3", "delete", time.Since(start), true)
	logging.Debug("S3 delete object", zap.String("key", key))
	return nil
}

// Put uploads content, overwriting any existing object.
func (b *S3Backend) Put(ctx context.Context, key string, data []byte) error {
	start := time.Now()

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		metrics.RecordStorageOperation("s3", "put", time.Since(start), false)
		return errors.Annotatef(err, "put object %s", key)
	}

	metrics.RecordStorageOperation("s3", "put", time.Since(start), true)
	logging.Debug("S3 put object", zap.String("key", key), zap.Int("size", len(data)))
	return nil
}

// Type returns "s3".
func (b *S3Backend) Type() string { return "s3" }

// Close is a no-op for S3 backends; the client is shared.
func (b *S3Backend) Close() error { return nil }

// Bucket returns the bucket name.
func (b *S3Backend) Bucket() string { return b.bucket }

func isNotFound(err error) bool {
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
