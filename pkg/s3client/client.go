package s3client

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned (wrapped) when a bucket or key does not exist
var ErrNotFound = errors.New("not found")

// ObjectSummary is one entry of a listing
type ObjectSummary struct {
	Key  string
	Size int64
	ETag string
}

// ObjectInfo is the metadata returned by HeadObject
type ObjectInfo struct {
	Size                 int64
	ETag                 string
	ChecksumSHA256       string
	ChecksumCRC64NVME    string
	ChecksumType         string // FULL_OBJECT or COMPOSITE when reported
	ServerSideEncryption string // AES256, aws:kms, aws:kms:dsse or empty
	SSECustomerAlgorithm string // set for SSE-C objects
}

// Client is the object store surface the storage backends depend on
type Client interface {
	ListObjects(ctx context.Context, req *ListObjectsRequest) ([]ObjectSummary, error)
	HeadObject(ctx context.Context, req *HeadObjectRequest) (*ObjectInfo, error)
	GetObject(ctx context.Context, req *GetObjectRequest) (io.ReadCloser, error)
	PutObject(ctx context.Context, req *PutObjectRequest) error
}

type ListObjectsRequest struct {
	Bucket string
	Prefix string
}

type HeadObjectRequest struct {
	Bucket string
	Key    string
}

type GetObjectRequest struct {
	Bucket string
	Key    string
}

type PutObjectRequest struct {
	Bucket      string
	Key         string
	Body        io.Reader
	ContentType string
}
