package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yuya-takeyama/strict-s3-verify/internal/checksum"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/reconcile"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/s3client"
)

func TestS3BackendList(t *testing.T) {
	client := &mockS3Client{
		listObjectsFunc: func(ctx context.Context, req *s3client.ListObjectsRequest) ([]s3client.ObjectSummary, error) {
			assert.Equal(t, "bucket", req.Bucket)
			assert.Equal(t, "x/data/", req.Prefix)
			return []s3client.ObjectSummary{
				{Key: "x/data/b/f2", Size: 2},
				{Key: "x/data/"},
				{Key: "x/data/a/"},
				{Key: "x/data/sub_$folder$"},
				{Key: "x/data/a/f1", Size: 1},
			}, nil
		},
	}

	refs, err := NewS3Backend(client, discardLogger()).List(context.Background(), location.MustParse("s3://bucket/x/data"))
	require.NoError(t, err)

	assert.Equal(t, []location.Ref{
		location.MustParse("s3://bucket/x/data/a/f1"),
		location.MustParse("s3://bucket/x/data/b/f2"),
	}, refs)
}

func TestS3BackendListEmptyFolder(t *testing.T) {
	client := &mockS3Client{
		listObjectsFunc: func(ctx context.Context, req *s3client.ListObjectsRequest) ([]s3client.ObjectSummary, error) {
			return []s3client.ObjectSummary{{Key: "data/"}}, nil
		},
	}

	refs, err := NewS3Backend(client, discardLogger()).List(context.Background(), location.MustParse("s3://bucket/data"))
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestS3BackendListSingleObjectRoot(t *testing.T) {
	client := &mockS3Client{
		listObjectsFunc: func(ctx context.Context, req *s3client.ListObjectsRequest) ([]s3client.ObjectSummary, error) {
			return nil, nil
		},
		headObjectFunc: func(ctx context.Context, req *s3client.HeadObjectRequest) (*s3client.ObjectInfo, error) {
			assert.Equal(t, "x/file.vcf.gz", req.Key)
			return &s3client.ObjectInfo{Size: 10}, nil
		},
	}

	root := location.MustParse("s3://bucket/x/file.vcf.gz")
	refs, err := NewS3Backend(client, discardLogger()).List(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, []location.Ref{root}, refs)
}

func TestS3BackendListNotFound(t *testing.T) {
	tests := []struct {
		name   string
		client *mockS3Client
	}{
		{
			name: "no objects and no object at root",
			client: &mockS3Client{
				listObjectsFunc: func(ctx context.Context, req *s3client.ListObjectsRequest) ([]s3client.ObjectSummary, error) {
					return nil, nil
				},
				headObjectFunc: func(ctx context.Context, req *s3client.HeadObjectRequest) (*s3client.ObjectInfo, error) {
					return nil, fmt.Errorf("failed to head object: %w", s3client.ErrNotFound)
				},
			},
		},
		{
			name: "bucket missing",
			client: &mockS3Client{
				listObjectsFunc: func(ctx context.Context, req *s3client.ListObjectsRequest) ([]s3client.ObjectSummary, error) {
					return nil, fmt.Errorf("failed to list objects: %w", s3client.ErrNotFound)
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewS3Backend(tt.client, discardLogger()).List(context.Background(), location.MustParse("s3://bucket/missing"))

			var notFound *reconcile.LocationNotFoundError
			require.True(t, errors.As(err, &notFound), "got %v", err)
			assert.Equal(t, location.MustParse("s3://bucket/missing"), notFound.Ref)
		})
	}
}

func TestS3BackendFingerprint(t *testing.T) {
	const helloMD5 = "b1kCrCNwJL3QwXbLkwY9xA=="
	const helloSHA256 = "qUiQTy8PR5uPgZdpSzAYSw0u0cHNKh7A+4XSmaGSpEc="

	tests := []struct {
		name       string
		alg        checksum.Algorithm
		info       *s3client.ObjectInfo
		wantDigest string
		wantGet    bool
	}{
		{
			name:       "md5 from single part etag",
			alg:        checksum.MD5,
			info:       &s3client.ObjectInfo{Size: 12, ETag: `"6f5902ac237024bdd0c176cb93063dc4"`},
			wantDigest: helloMD5,
		},
		{
			name:       "md5 streamed for multipart etag",
			alg:        checksum.MD5,
			info:       &s3client.ObjectInfo{Size: 12, ETag: `"0123456789abcdef0123456789abcdef-2"`},
			wantDigest: helloMD5,
			wantGet:    true,
		},
		{
			name:       "md5 from etag under SSE-S3",
			alg:        checksum.MD5,
			info:       &s3client.ObjectInfo{Size: 12, ETag: `"6f5902ac237024bdd0c176cb93063dc4"`, ServerSideEncryption: "AES256"},
			wantDigest: helloMD5,
		},
		{
			name:       "md5 streamed under SSE-KMS",
			alg:        checksum.MD5,
			info:       &s3client.ObjectInfo{Size: 12, ETag: `"0123456789abcdef0123456789abcdef"`, ServerSideEncryption: "aws:kms"},
			wantDigest: helloMD5,
			wantGet:    true,
		},
		{
			name:       "md5 streamed under DSSE-KMS",
			alg:        checksum.MD5,
			info:       &s3client.ObjectInfo{Size: 12, ETag: `"0123456789abcdef0123456789abcdef"`, ServerSideEncryption: "aws:kms:dsse"},
			wantDigest: helloMD5,
			wantGet:    true,
		},
		{
			name:       "md5 streamed under SSE-C",
			alg:        checksum.MD5,
			info:       &s3client.ObjectInfo{Size: 12, ETag: `"0123456789abcdef0123456789abcdef"`, ServerSideEncryption: "AES256", SSECustomerAlgorithm: "AES256"},
			wantDigest: helloMD5,
			wantGet:    true,
		},
		{
			name:       "sha256 stored under SSE-KMS",
			alg:        checksum.SHA256,
			info:       &s3client.ObjectInfo{Size: 12, ChecksumSHA256: "stored==", ChecksumType: "FULL_OBJECT", ServerSideEncryption: "aws:kms"},
			wantDigest: "stored==",
		},
		{
			name:       "sha256 stored full object checksum",
			alg:        checksum.SHA256,
			info:       &s3client.ObjectInfo{Size: 12, ChecksumSHA256: "stored==", ChecksumType: "FULL_OBJECT"},
			wantDigest: "stored==",
		},
		{
			name:       "sha256 streamed for composite checksum",
			alg:        checksum.SHA256,
			info:       &s3client.ObjectInfo{Size: 12, ChecksumSHA256: "composite==-3", ChecksumType: "COMPOSITE"},
			wantDigest: helloSHA256,
			wantGet:    true,
		},
		{
			name:       "sha256 streamed when absent",
			alg:        checksum.SHA256,
			info:       &s3client.ObjectInfo{Size: 12},
			wantDigest: helloSHA256,
			wantGet:    true,
		},
		{
			name:       "crc64nvme stored",
			alg:        checksum.CRC64NVME,
			info:       &s3client.ObjectInfo{Size: 12, ChecksumCRC64NVME: "crc=="},
			wantDigest: "crc==",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := false
			client := &mockS3Client{
				headObjectFunc: func(ctx context.Context, req *s3client.HeadObjectRequest) (*s3client.ObjectInfo, error) {
					return tt.info, nil
				},
				getObjectFunc: func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
					got = true
					return io.NopCloser(strings.NewReader("hello world\n")), nil
				},
			}

			fp, err := NewS3Backend(client, discardLogger()).Fingerprint(context.Background(), location.MustParse("s3://b/k"), tt.alg)
			require.NoError(t, err)
			assert.Equal(t, reconcile.Fingerprint{Size: 12, Digest: tt.wantDigest}, fp)
			assert.Equal(t, tt.wantGet, got)
		})
	}
}

func TestS3BackendFingerprintMultipartListingSkipsHead(t *testing.T) {
	heads := 0
	client := &mockS3Client{
		listObjectsFunc: func(ctx context.Context, req *s3client.ListObjectsRequest) ([]s3client.ObjectSummary, error) {
			return []s3client.ObjectSummary{
				{Key: "data/big", Size: 12, ETag: `"0123456789abcdef0123456789abcdef-4"`},
				{Key: "data/small", Size: 12, ETag: `"6f5902ac237024bdd0c176cb93063dc4"`},
			}, nil
		},
		headObjectFunc: func(ctx context.Context, req *s3client.HeadObjectRequest) (*s3client.ObjectInfo, error) {
			heads++
			assert.Equal(t, "data/small", req.Key)
			return &s3client.ObjectInfo{Size: 12, ETag: `"6f5902ac237024bdd0c176cb93063dc4"`}, nil
		},
		getObjectFunc: func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
			assert.Equal(t, "data/big", req.Key)
			return io.NopCloser(strings.NewReader("hello world\n")), nil
		},
	}

	b := NewS3Backend(client, discardLogger())
	refs, err := b.List(context.Background(), location.MustParse("s3://bucket/data"))
	require.NoError(t, err)
	require.Len(t, refs, 2)

	for _, ref := range refs {
		fp, err := b.Fingerprint(context.Background(), ref, checksum.MD5)
		require.NoError(t, err)
		assert.Equal(t, reconcile.Fingerprint{Size: 12, Digest: "b1kCrCNwJL3QwXbLkwY9xA=="}, fp)
	}
	assert.Equal(t, 1, heads)
}

func TestS3BackendListGCSRoot(t *testing.T) {
	client := &mockS3Client{
		listObjectsFunc: func(ctx context.Context, req *s3client.ListObjectsRequest) ([]s3client.ObjectSummary, error) {
			assert.Equal(t, "archive", req.Bucket)
			assert.Equal(t, "runs/r1/", req.Prefix)
			return []s3client.ObjectSummary{{Key: "runs/r1/a.vcf", Size: 3}}, nil
		},
	}

	refs, err := NewS3Backend(client, discardLogger()).List(context.Background(), location.MustParse("gs://archive/runs/r1"))
	require.NoError(t, err)
	assert.Equal(t, []location.Ref{location.MustParse("gs://archive/runs/r1/a.vcf")}, refs)
}

func TestS3BackendFingerprintUnavailable(t *testing.T) {
	client := &mockS3Client{
		headObjectFunc: func(ctx context.Context, req *s3client.HeadObjectRequest) (*s3client.ObjectInfo, error) {
			return nil, errors.New("access denied")
		},
	}

	ref := location.MustParse("s3://b/k")
	_, err := NewS3Backend(client, discardLogger()).Fingerprint(context.Background(), ref, checksum.MD5)

	var unavailable *reconcile.FingerprintUnavailableError
	require.True(t, errors.As(err, &unavailable))
	assert.Equal(t, ref, unavailable.Ref)
}

func TestS3BackendReadWrite(t *testing.T) {
	var written string
	client := &mockS3Client{
		getObjectFunc: func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
			assert.Equal(t, "manifests/paths.tsv", req.Key)
			return io.NopCloser(strings.NewReader("a\tb\n")), nil
		},
		putObjectFunc: func(ctx context.Context, req *s3client.PutObjectRequest) error {
			assert.Equal(t, "reports/out.txt", req.Key)
			assert.Equal(t, "text/plain", req.ContentType)
			data, err := io.ReadAll(req.Body)
			require.NoError(t, err)
			written = string(data)
			return nil
		},
	}

	b := NewS3Backend(client, discardLogger())

	data, err := b.Read(context.Background(), location.MustParse("s3://bucket/manifests/paths.tsv"))
	require.NoError(t, err)
	assert.Equal(t, "a\tb\n", string(data))

	require.NoError(t, b.Write(context.Background(), location.MustParse("s3://bucket/reports/out.txt"), []byte("report"), "text/plain"))
	assert.Equal(t, "report", written)
}
