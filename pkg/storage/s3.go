package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/atelier-socle/hlskit/pkg/herr"
	"github.com/atelier-socle/hlskit/pkg/logger"
)

// S3Storage implements Storage against an S3-compatible bucket, the
// backend S3Pusher uses to mirror live segments and playlists to origin
// storage as they're produced.
type S3Storage struct {
	client *s3.Client
	config StorageConfig
	logger logger.Logger
}

// NewS3Storage creates a new S3 storage backend.
func NewS3Storage(cfg StorageConfig, log logger.Logger) (*S3Storage, error) {
	if cfg.Type != StorageTypeS3 {
		return nil, herr.New(herr.ErrCodeInvalidConfig, fmt.Sprintf("s3 storage: invalid storage type %q", cfg.Type))
	}

	if log == nil {
		log = logger.NewDefaultLogger(logger.InfoLevel, "text")
	}

	var awsConfig aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsConfig, err = config.LoadDefaultConfig(context.TODO(),
			config.WithRegion(cfg.Region),
			config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				cfg.AccessKeyID,
				cfg.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsConfig, err = config.LoadDefaultConfig(context.TODO(),
			config.WithRegion(cfg.Region),
		)
	}

	if err != nil {
		return nil, herr.NewStorageError("load_aws_config", err)
	}

	s3Options := []func(*s3.Options){
		func(o *s3.Options) {
			o.UsePathStyle = true // S3-compatible origins (MinIO) need path-style addressing
		},
	}

	if cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsConfig, s3Options...)

	return &S3Storage{
		client: client,
		config: cfg,
		logger: log,
	}, nil
}

// Upload puts a segment/playlist/chapter object, retrying transient
// failures per config.MaxRetries/RetryDelay.
func (s *S3Storage) Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) error {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, data); err != nil {
		return herr.NewStorageError("buffer_upload:"+key, err)
	}

	var lastErr error
	for attempt := 0; attempt <= s.config.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn("retrying s3 upload",
				logger.Field{Key: "attempt", Value: attempt},
				logger.Field{Key: "key", Value: key},
			)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.config.RetryDelay):
			}
		}

		input := &s3.PutObjectInput{
			Bucket:      aws.String(s.config.Bucket),
			Key:         aws.String(s.normalizeKey(key)),
			Body:        bytes.NewReader(buf.Bytes()),
			ContentType: aws.String(contentType),
		}

		_, err := s.client.PutObject(ctx, input)
		if err != nil {
			lastErr = err
			continue
		}

		s.logger.Debug("segment pushed to s3",
			logger.Field{Key: "bucket", Value: s.config.Bucket},
			logger.Field{Key: "key", Value: key},
			logger.Field{Key: "size", Value: size},
		)

		return nil
	}

	return herr.NewStorageError("upload:"+key, lastErr)
}

// Download fetches an object's body.
func (s *S3Storage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.normalizeKey(key)),
	}

	result, err := s.client.GetObject(ctx, input)
	if err != nil {
		if s.isNotFoundError(err) {
			return nil, herr.NewFileNotFoundError(key)
		}
		return nil, herr.NewStorageError("download:"+key, err)
	}

	return result.Body, nil
}

// Delete removes an object.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.normalizeKey(key)),
	}

	_, err := s.client.DeleteObject(ctx, input)
	if err != nil {
		if s.isNotFoundError(err) {
			return herr.NewFileNotFoundError(key)
		}
		return herr.NewStorageError("delete:"+key, err)
	}

	s.logger.Debug("deleted s3 object",
		logger.Field{Key: "bucket", Value: s.config.Bucket},
		logger.Field{Key: "key", Value: key},
	)

	return nil
}

// Exists reports whether an object is present.
func (s *S3Storage) Exists(ctx context.Context, key string) (bool, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.normalizeKey(key)),
	}

	_, err := s.client.HeadObject(ctx, input)
	if err != nil {
		if s.isNotFoundError(err) {
			return false, nil
		}
		return false, herr.NewStorageError("head:"+key, err)
	}

	return true, nil
}

// List pages through objects under prefix, up to maxKeys (0 means unbounded).
func (s *S3Storage) List(ctx context.Context, prefix string, maxKeys int) ([]StorageObject, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.config.Bucket),
		Prefix: aws.String(s.normalizeKey(prefix)),
	}

	if maxKeys > 0 {
		input.MaxKeys = aws.Int32(int32(maxKeys))
	}

	objects := make([]StorageObject, 0)

	paginator := s3.NewListObjectsV2Paginator(s.client, input)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, herr.NewStorageError("list:"+prefix, err)
		}

		for _, obj := range page.Contents {
			metadata, _ := s.GetMetadata(ctx, aws.ToString(obj.Key))

			objects = append(objects, StorageObject{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
				Metadata:     metadata,
			})

			if maxKeys > 0 && len(objects) >= maxKeys {
				return objects, nil
			}
		}
	}

	return objects, nil
}

// GetMetadata returns an object's user metadata plus its content type.
func (s *S3Storage) GetMetadata(ctx context.Context, key string) (map[string]string, error) {
	input := &s3.HeadObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.normalizeKey(key)),
	}

	result, err := s.client.HeadObject(ctx, input)
	if err != nil {
		if s.isNotFoundError(err) {
			return nil, herr.NewFileNotFoundError(key)
		}
		return nil, herr.NewStorageError("head:"+key, err)
	}

	metadata := make(map[string]string)
	for k, v := range result.Metadata {
		metadata[k] = v
	}

	if result.ContentType != nil {
		metadata["content-type"] = *result.ContentType
	}

	return metadata, nil
}

// SetMetadata replaces an object's metadata via a self-copy, S3 has no
// in-place metadata update.
func (s *S3Storage) SetMetadata(ctx context.Context, key string, metadata map[string]string) error {
	normalizedKey := s.normalizeKey(key)
	copySource := fmt.Sprintf("%s/%s", s.config.Bucket, normalizedKey)

	input := &s3.CopyObjectInput{
		Bucket:            aws.String(s.config.Bucket),
		Key:               aws.String(normalizedKey),
		CopySource:        aws.String(copySource),
		Metadata:          metadata,
		MetadataDirective: types.MetadataDirectiveReplace,
	}

	_, err := s.client.CopyObject(ctx, input)
	if err != nil {
		if s.isNotFoundError(err) {
			return herr.NewFileNotFoundError(key)
		}
		return herr.NewStorageError("set_metadata:"+key, err)
	}

	return nil
}

// Copy duplicates srcKey to dstKey server-side, without re-uploading
// the bytes.
func (s *S3Storage) Copy(ctx context.Context, srcKey, dstKey string) error {
	copySource := fmt.Sprintf("%s/%s", s.config.Bucket, s.normalizeKey(srcKey))

	input := &s3.CopyObjectInput{
		Bucket:     aws.String(s.config.Bucket),
		Key:        aws.String(s.normalizeKey(dstKey)),
		CopySource: aws.String(copySource),
	}

	_, err := s.client.CopyObject(ctx, input)
	if err != nil {
		if s.isNotFoundError(err) {
			return herr.NewFileNotFoundError(srcKey)
		}
		return herr.NewStorageError("copy:"+srcKey, err)
	}

	s.logger.Debug("copied s3 object",
		logger.Field{Key: "source", Value: srcKey},
		logger.Field{Key: "destination", Value: dstKey},
	)

	return nil
}

// GetURL returns a pre-signed GET URL valid for expires.
func (s *S3Storage) GetURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	presignClient := s3.NewPresignClient(s.client)

	input := &s3.GetObjectInput{
		Bucket: aws.String(s.config.Bucket),
		Key:    aws.String(s.normalizeKey(key)),
	}

	result, err := presignClient.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expires
	})

	if err != nil {
		return "", herr.NewStorageError("presign:"+key, err)
	}

	return result.URL, nil
}

// Close is a no-op; the SDK client holds no persistent connection to close.
func (s *S3Storage) Close() error {
	return nil
}

func (s *S3Storage) normalizeKey(key string) string {
	return strings.TrimPrefix(key, "/")
}

func (s *S3Storage) isNotFoundError(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "NoSuchKey" || apiErr.ErrorCode() == "NotFound"
	}
	return false
}
