package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/Skryldev/photoreel/core"
	apperrors "github.com/Skryldev/photoreel/errors"
	"github.com/Skryldev/photoreel/utils"
)

// S3Config holds S3 connection parameters.  Empty values fall back to the
// standard AWS config and credential chain.
type S3Config struct {
	Bucket       string
	Region       string
	Profile      string
	Endpoint     string // optional: MinIO, localstack, etc.
	UsePathStyle bool
}

// S3API is the subset of *s3.Client used to resolve transfer handles.
// Tests inject a fake.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3 resolves TransferHandles against an S3 (or S3-compatible) bucket.
type S3 struct {
	client    S3API
	bucket    string
	maxBytes  int64
	chunkSize int
}

// NewS3 creates an S3 transfer store.  client must not be nil.
func NewS3(client S3API, defaultBucket string, maxBytes int64, chunkSize int) (*S3, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 source: client must not be nil")
	}
	return &S3{client: client, bucket: defaultBucket, maxBytes: maxBytes, chunkSize: chunkSize}, nil
}

// NewS3FromConfig loads the AWS configuration and builds a real client.
func NewS3FromConfig(ctx context.Context, cfg S3Config, maxBytes int64, chunkSize int) (*S3, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Profile != "" {
		loadOpts = append(loadOpts, awsconfig.WithSharedConfigProfile(cfg.Profile))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 source: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.UsePathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return NewS3(client, cfg.Bucket, maxBytes, chunkSize)
}

func (s *S3) bucketFor(h core.TransferHandle) string {
	if h.Bucket != "" {
		return h.Bucket
	}
	return s.bucket
}

func (s *S3) FetchTransfer(ctx context.Context, h core.TransferHandle) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "s3.fetch", err)
	}
	bucket := s.bucketFor(h)
	if bucket == "" || h.Key == "" {
		return nil, apperrors.New(apperrors.CategoryFetch, "s3.fetch",
			fmt.Errorf("%w: transfer handle needs bucket and key", apperrors.ErrInvalidSource))
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(h.Key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, apperrors.New(apperrors.CategoryFetch, "s3.fetch",
				fmt.Errorf("%w: s3://%s/%s", apperrors.ErrNotFound, bucket, h.Key))
		}
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.CategoryFetch, "s3.fetch", ctx.Err())
		}
		return nil, apperrors.Transient("s3.fetch", err)
	}
	defer out.Body.Close()

	if s.maxBytes > 0 && out.ContentLength != nil && *out.ContentLength > s.maxBytes {
		return nil, apperrors.New(apperrors.CategoryFetch, "s3.fetch",
			fmt.Errorf("%w: s3://%s/%s is %d bytes", apperrors.ErrTooLarge, bucket, h.Key, *out.ContentLength))
	}

	data, err := utils.ReadAll(ctx, out.Body, s.maxBytes, s.chunkSize)
	if err != nil {
		if errors.Is(err, utils.ErrLimitExceeded) {
			return nil, apperrors.New(apperrors.CategoryFetch, "s3.fetch",
				fmt.Errorf("%w: s3://%s/%s larger than %d bytes", apperrors.ErrTooLarge, bucket, h.Key, s.maxBytes))
		}
		return nil, apperrors.Transient("s3.fetch.read", err)
	}
	return data, nil
}

// isNotFound reports a missing bucket or key, whichever way the SDK
// surfaces it.
func isNotFound(err error) bool {
	var nsk *s3types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *s3types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}

var _ core.TransferFetcher = (*S3)(nil)
