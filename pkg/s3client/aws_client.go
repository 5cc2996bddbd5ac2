package s3client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// API is the subset of *s3.Client used for reads
type API interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Uploader is the subset of *manager.Uploader used for writes
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// GCSEndpointURL is the Cloud Storage XML API endpoint that accepts S3
// requests signed with HMAC keys.
const GCSEndpointURL = "https://storage.googleapis.com"

// Config tunes the client for a particular endpoint
type Config struct {
	EndpointURL  string // S3-compatible endpoint (MinIO, GCS interop)
	UsePathStyle bool
	Region       string // overrides the region from the shared config
	MaxRetries   int
	Timeout      time.Duration // per request attempt

	// ChecksumWhenRequired disables the flexible checksum headers the SDK
	// adds by default, which non-AWS endpoints reject.
	ChecksumWhenRequired bool
}

// GCSConfig returns the settings for Cloud Storage interoperability.
// An empty endpoint selects GCSEndpointURL.
func GCSConfig(endpointURL string, maxRetries int, timeout time.Duration) Config {
	if endpointURL == "" {
		endpointURL = GCSEndpointURL
	}
	return Config{
		EndpointURL:          endpointURL,
		UsePathStyle:         true,
		Region:               "auto",
		MaxRetries:           maxRetries,
		Timeout:              timeout,
		ChecksumWhenRequired: true,
	}
}

func (conf Config) apply(o *s3.Options) {
	if conf.EndpointURL != "" {
		o.BaseEndpoint = aws.String(conf.EndpointURL)
		o.UsePathStyle = true
	}
	if conf.UsePathStyle {
		o.UsePathStyle = true
	}
	if conf.Region != "" {
		o.Region = conf.Region
	}
	if conf.ChecksumWhenRequired {
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.ResponseChecksumValidation = aws.ResponseChecksumValidationWhenRequired
	}
}

// AWSClient implements Client on top of the AWS SDK with retries
type AWSClient struct {
	api      API
	uploader Uploader
	policy   retryPolicy
}

// NewAWSClient builds a client from a loaded AWS config
func NewAWSClient(cfg aws.Config, conf Config) *AWSClient {
	client := s3.NewFromConfig(cfg, conf.apply)

	return newAWSClient(client, manager.NewUploader(client), conf)
}

func newAWSClient(api API, uploader Uploader, conf Config) *AWSClient {
	maxRetries := conf.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &AWSClient{
		api:      api,
		uploader: uploader,
		policy: retryPolicy{
			maxRetries: maxRetries,
			baseDelay:  defaultBaseDelay,
			maxDelay:   defaultMaxDelay,
			timeout:    conf.Timeout,
		},
	}
}

func (c *AWSClient) ListObjects(ctx context.Context, req *ListObjectsRequest) ([]ObjectSummary, error) {
	var items []ObjectSummary

	paginator := s3.NewListObjectsV2Paginator(c.api, &s3.ListObjectsV2Input{
		Bucket: aws.String(req.Bucket),
		Prefix: aws.String(req.Prefix),
	})

	for paginator.HasMorePages() {
		page, err := withRetry(ctx, c.policy, func(ctx context.Context) (*s3.ListObjectsV2Output, error) {
			return paginator.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list objects: %w", translateError(err))
		}

		for _, obj := range page.Contents {
			if obj.Key == nil {
				continue
			}

			items = append(items, ObjectSummary{
				Key:  *obj.Key,
				Size: aws.ToInt64(obj.Size),
				ETag: aws.ToString(obj.ETag),
			})
		}
	}

	return items, nil
}

func (c *AWSClient) HeadObject(ctx context.Context, req *HeadObjectRequest) (*ObjectInfo, error) {
	resp, err := withRetry(ctx, c.policy, func(ctx context.Context) (*s3.HeadObjectOutput, error) {
		return c.api.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket:       aws.String(req.Bucket),
			Key:          aws.String(req.Key),
			ChecksumMode: types.ChecksumModeEnabled,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to head object: %w", translateError(err))
	}

	return &ObjectInfo{
		Size:                 aws.ToInt64(resp.ContentLength),
		ETag:                 aws.ToString(resp.ETag),
		ChecksumSHA256:       aws.ToString(resp.ChecksumSHA256),
		ChecksumCRC64NVME:    aws.ToString(resp.ChecksumCRC64NVME),
		ChecksumType:         string(resp.ChecksumType),
		ServerSideEncryption: string(resp.ServerSideEncryption),
		SSECustomerAlgorithm: aws.ToString(resp.SSECustomerAlgorithm),
	}, nil
}

// GetObject opens the object body. The body is streamed after the call
// returns, so the per-attempt timeout does not apply; only ctx bounds it.
func (c *AWSClient) GetObject(ctx context.Context, req *GetObjectRequest) (io.ReadCloser, error) {
	policy := c.policy
	policy.timeout = 0

	resp, err := withRetry(ctx, policy, func(ctx context.Context) (*s3.GetObjectOutput, error) {
		return c.api.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", translateError(err))
	}

	return resp.Body, nil
}

// PutObject uploads through the transfer manager, which switches to a
// multipart upload for large bodies. Bodies implementing io.Seeker are
// rewound between attempts; other bodies are attempted once.
func (c *AWSClient) PutObject(ctx context.Context, req *PutObjectRequest) error {
	policy := c.policy
	seeker, seekable := req.Body.(io.Seeker)
	if !seekable {
		policy.maxRetries = 0
	}

	_, err := withRetry(ctx, policy, func(ctx context.Context) (*manager.UploadOutput, error) {
		if seekable {
			if _, err := seeker.Seek(0, io.SeekStart); err != nil {
				return nil, fmt.Errorf("rewind body: %w", err)
			}
		}

		input := &s3.PutObjectInput{
			Bucket: aws.String(req.Bucket),
			Key:    aws.String(req.Key),
			Body:   req.Body,
		}
		if req.ContentType != "" {
			input.ContentType = aws.String(req.ContentType)
		}
		return c.uploader.Upload(ctx, input)
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}

	return nil
}

// translateError marks missing buckets and keys with ErrNotFound
func translateError(err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) || errors.As(err, &noSuchBucket) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return fmt.Errorf("%w: %w", ErrNotFound, err)
		}
	}

	return err
}
