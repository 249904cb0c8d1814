package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	generrors "github.com/arkilian/abgen/internal/errors"
)

// minPartSize is the smallest part S3 accepts in a multipart upload.
const minPartSize = 5 * 1024 * 1024

// S3Config holds configuration for S3 storage.
type S3Config struct {
	// Region is the AWS region for the S3 bucket.
	Region string
	// Endpoint is an optional custom endpoint (for MinIO, LocalStack, etc.).
	Endpoint string
	// UsePathStyle enables path-style addressing (required for MinIO).
	UsePathStyle bool
	// PartSize is the multipart threshold and part size in bytes.
	PartSize int64
}

// DefaultS3Config returns the default S3 configuration.
func DefaultS3Config() S3Config {
	return S3Config{
		Region:   "us-east-1",
		PartSize: 8 * 1024 * 1024,
	}
}

// S3Storage implements ObjectStorage on an S3 bucket. Requests that fail with
// a retryable storage error are retried with exponential backoff; missing
// objects and rejected requests fail at once.
type S3Storage struct {
	client   *s3.Client
	bucket   string
	partSize int64
	attempts int
	backoff  time.Duration
}

// NewS3Storage loads the default AWS credential chain and opens bucket.
func NewS3Storage(ctx context.Context, bucket string, cfg S3Config) (*S3Storage, error) {
	var opts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, generrors.NewStorageError(generrors.CodeRejected, "failed to load AWS config", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3StorageWithClient(client, bucket, cfg), nil
}

// NewS3StorageWithClient wraps a configured client. Part sizes below the S3
// minimum fall back to the default.
func NewS3StorageWithClient(client *s3.Client, bucket string, cfg S3Config) *S3Storage {
	partSize := cfg.PartSize
	if partSize < minPartSize {
		partSize = DefaultS3Config().PartSize
	}
	return &S3Storage{
		client:   client,
		bucket:   bucket,
		partSize: partSize,
		attempts: 4,
		backoff:  100 * time.Millisecond,
	}
}

// Upload stores the file at localPath under objectPath. Files larger than the
// part size go through a multipart upload.
func (s *S3Storage) Upload(ctx context.Context, localPath, objectPath string) (Object, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return Object{}, generrors.NewStorageError(generrors.CodeUploadFailed, "failed to open "+localPath, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return Object{}, generrors.NewStorageError(generrors.CodeUploadFailed, "failed to stat "+localPath, err)
	}
	size := info.Size()

	var etag string
	err = s.retry(ctx, func() error {
		var putErr error
		if size > s.partSize {
			etag, putErr = s.putMultipart(ctx, file, size, objectPath)
		} else {
			etag, putErr = s.put(ctx, io.NewSectionReader(file, 0, size), size, objectPath)
		}
		return classify(generrors.CodeUploadFailed, objectPath, putErr)
	})
	if err != nil {
		return Object{}, err
	}

	return Object{Key: objectPath, ETag: strings.Trim(etag, `"`), Size: size}, nil
}

func (s *S3Storage) put(ctx context.Context, body io.ReadSeeker, size int64, key string) (string, error) {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return "", err
	}
	return aws.ToString(out.ETag), nil
}

// putMultipart uploads file in partSize slices and aborts the upload on failure.
func (s *S3Storage) putMultipart(ctx context.Context, file *os.File, size int64, key string) (string, error) {
	created, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", err
	}

	var parts []types.CompletedPart
	for offset, number := int64(0), int32(1); offset < size; offset, number = offset+s.partSize, number+1 {
		length := min(s.partSize, size-offset)
		part, err := s.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(key),
			UploadId:      created.UploadId,
			PartNumber:    aws.Int32(number),
			Body:          io.NewSectionReader(file, offset, length),
			ContentLength: aws.Int64(length),
		})
		if err != nil {
			s.abort(ctx, key, created.UploadId)
			return "", err
		}
		parts = append(parts, types.CompletedPart{ETag: part.ETag, PartNumber: aws.Int32(number)})
	}

	done, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(key),
		UploadId:        created.UploadId,
		MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
	})
	if err != nil {
		s.abort(ctx, key, created.UploadId)
		return "", err
	}
	return aws.ToString(done.ETag), nil
}

func (s *S3Storage) abort(ctx context.Context, key string, uploadID *string) {
	_, _ = s.client.AbortMultipartUpload(context.WithoutCancel(ctx), &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		UploadId: uploadID,
	})
}

// Download writes objectPath to localPath through a temp file in the
// destination directory.
func (s *S3Storage) Download(ctx context.Context, objectPath, localPath string) error {
	dir := filepath.Dir(localPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return generrors.NewStorageError(generrors.CodeDownloadFailed, "failed to create destination directory", err)
	}

	return s.retry(ctx, func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		if err != nil {
			return classify(generrors.CodeDownloadFailed, objectPath, err)
		}
		defer out.Body.Close()

		tmp, err := os.CreateTemp(dir, ".download-*")
		if err != nil {
			return generrors.NewStorageError(generrors.CodeDownloadFailed, "failed to create temp file", err)
		}
		defer os.Remove(tmp.Name())

		if _, err := io.Copy(tmp, out.Body); err != nil {
			tmp.Close()
			return classify(generrors.CodeDownloadFailed, objectPath, err)
		}
		if err := tmp.Close(); err != nil {
			return generrors.NewStorageError(generrors.CodeDownloadFailed, "failed to close "+tmp.Name(), err)
		}
		if err := os.Rename(tmp.Name(), localPath); err != nil {
			return generrors.NewStorageError(generrors.CodeDownloadFailed, "failed to move download to "+localPath, err)
		}
		return nil
	})
}

// Delete removes objectPath. S3 reports success for missing keys.
func (s *S3Storage) Delete(ctx context.Context, objectPath string) error {
	return s.retry(ctx, func() error {
		_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		return classify(generrors.CodeDeleteFailed, objectPath, err)
	})
}

// Exists reports whether objectPath is present.
func (s *S3Storage) Exists(ctx context.Context, objectPath string) (bool, error) {
	err := s.retry(ctx, func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(objectPath),
		})
		return classify(generrors.CodeDownloadFailed, objectPath, err)
	})
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrObjectNotFound):
		return false, nil
	default:
		return false, err
	}
}

// ListObjects returns the sorted keys under prefix, following continuation
// tokens.
func (s *S3Storage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.retry(ctx, func() error {
		keys = keys[:0]
		pages := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.bucket),
			Prefix: aws.String(prefix),
		})
		for pages.HasMorePages() {
			page, err := pages.NextPage(ctx)
			if err != nil {
				return classify(generrors.CodeListFailed, prefix, err)
			}
			for _, obj := range page.Contents {
				keys = append(keys, aws.ToString(obj.Key))
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(keys)
	return keys, nil
}

// retry runs op until it succeeds, fails with an error that is not
// retryable, or uses up its attempts. The wait doubles after each attempt.
func (s *S3Storage) retry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.backoff << (attempt - 1)):
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if err = op(); err == nil || !generrors.IsRetryable(err) {
			return err
		}
	}
	return err
}

// httpStatusError is implemented by the SDK's response errors.
type httpStatusError interface {
	HTTPStatusCode() int
}

// classify maps an SDK error to a storage error. Missing keys become
// ErrObjectNotFound and client errors other than timeouts and throttling
// become CodeRejected; both are final. Anything else keeps code and may be
// retried.
func classify(code, key string, err error) error {
	if err == nil {
		return nil
	}

	var noSuchKey *types.NoSuchKey
	var notFoundErr *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFoundErr) {
		return notFound(key)
	}

	var resp httpStatusError
	if errors.As(err, &resp) {
		switch status := resp.HTTPStatusCode(); {
		case status == http.StatusNotFound:
			return notFound(key)
		case status == http.StatusRequestTimeout, status == http.StatusTooManyRequests:
		case status >= 400 && status < 500:
			return generrors.NewStorageError(generrors.CodeRejected,
				fmt.Sprintf("s3 rejected request for %s (status %d)", key, status), err)
		}
	}

	return generrors.NewStorageError(code, "s3 request failed for "+key, err)
}
