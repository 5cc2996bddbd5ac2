package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/yuya-takeyama/strict-s3-verify/internal/checksum"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/reconcile"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/s3client"
)

// S3Backend serves s3:// locations and gs:// locations through the GCS
// XML interoperability endpoint.
type S3Backend struct {
	client s3client.Client
	logger *slog.Logger
	listed sync.Map // location.Ref -> s3client.ObjectSummary, consumed by Fingerprint
}

// NewS3Backend returns a backend that issues requests through client
func NewS3Backend(client s3client.Client, logger *slog.Logger) *S3Backend {
	return &S3Backend{
		client: client,
		logger: logger,
	}
}

// List returns every object below root, or root itself when it names a
// single object.
func (b *S3Backend) List(ctx context.Context, root location.Ref) ([]location.Ref, error) {
	objects, err := b.client.ListObjects(ctx, &s3client.ListObjectsRequest{
		Bucket: root.Bucket,
		Prefix: root.Prefix(),
	})
	if err != nil {
		if errors.Is(err, s3client.ErrNotFound) {
			return nil, &reconcile.LocationNotFoundError{Ref: root, Err: err}
		}
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	refs := make([]location.Ref, 0, len(objects))
	for _, obj := range objects {
		if isDirectoryMarker(obj.Key) {
			continue
		}
		ref := location.Ref{Scheme: root.Scheme, Bucket: root.Bucket, Path: obj.Key}
		b.listed.Store(ref, obj)
		refs = append(refs, ref)
	}

	// No keys at all, not even folder markers: the root may name one object.
	if len(objects) == 0 {
		return b.listSingleObject(ctx, root)
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Path < refs[j].Path
	})

	b.logger.Debug("listed", "root", root.String(), "objects", len(refs))
	return refs, nil
}

// listSingleObject handles a root naming one object rather than a folder
func (b *S3Backend) listSingleObject(ctx context.Context, root location.Ref) ([]location.Ref, error) {
	if root.Path == "" {
		// empty bucket
		return []location.Ref{}, nil
	}

	_, err := b.client.HeadObject(ctx, &s3client.HeadObjectRequest{
		Bucket: root.Bucket,
		Key:    root.Path,
	})
	if err != nil {
		if errors.Is(err, s3client.ErrNotFound) {
			return nil, &reconcile.LocationNotFoundError{Ref: root}
		}
		return nil, fmt.Errorf("head %s: %w", root, err)
	}

	return []location.Ref{root}, nil
}

// Fingerprint prefers a digest the store already holds and streams the
// object otherwise. A multipart ETag seen while listing can never yield an
// md5, so such objects are streamed without a HEAD round trip.
func (b *S3Backend) Fingerprint(ctx context.Context, ref location.Ref, alg checksum.Algorithm) (reconcile.Fingerprint, error) {
	if alg == checksum.MD5 && b.listedMultipart(ref) {
		b.logger.Debug("multipart etag, streaming object", "ref", ref.String())
		return b.stream(ctx, ref, alg)
	}

	info, err := b.client.HeadObject(ctx, &s3client.HeadObjectRequest{
		Bucket: ref.Bucket,
		Key:    ref.Path,
	})
	if err != nil {
		return reconcile.Fingerprint{}, &reconcile.FingerprintUnavailableError{Ref: ref, Err: err}
	}

	if digest, ok := storedDigest(info, alg); ok {
		return reconcile.Fingerprint{Size: info.Size, Digest: digest}, nil
	}

	b.logger.Debug("no stored digest, streaming object", "ref", ref.String(), "algorithm", string(alg))
	return b.stream(ctx, ref, alg)
}

func (b *S3Backend) listedMultipart(ref location.Ref) bool {
	v, ok := b.listed.LoadAndDelete(ref)
	if !ok {
		return false
	}
	return checksum.IsComposite(v.(s3client.ObjectSummary).ETag)
}

func (b *S3Backend) stream(ctx context.Context, ref location.Ref, alg checksum.Algorithm) (reconcile.Fingerprint, error) {
	body, err := b.client.GetObject(ctx, &s3client.GetObjectRequest{
		Bucket: ref.Bucket,
		Key:    ref.Path,
	})
	if err != nil {
		return reconcile.Fingerprint{}, &reconcile.FingerprintUnavailableError{Ref: ref, Err: err}
	}
	defer body.Close()

	digest, n, err := checksum.Calculate(body, alg)
	if err != nil {
		return reconcile.Fingerprint{}, &reconcile.FingerprintUnavailableError{Ref: ref, Err: err}
	}

	return reconcile.Fingerprint{Size: n, Digest: digest}, nil
}

// storedDigest returns a full-object digest S3 already holds for the object
func storedDigest(info *s3client.ObjectInfo, alg checksum.Algorithm) (string, bool) {
	if info.ChecksumType == "COMPOSITE" && alg != checksum.MD5 {
		return "", false
	}

	switch alg {
	case checksum.MD5:
		if !etagIsMD5(info) {
			return "", false
		}
		return checksum.MD5FromETag(info.ETag)
	case checksum.SHA256:
		if info.ChecksumSHA256 == "" || checksum.IsComposite(info.ChecksumSHA256) {
			return "", false
		}
		return info.ChecksumSHA256, true
	case checksum.CRC64NVME:
		if info.ChecksumCRC64NVME == "" {
			return "", false
		}
		return info.ChecksumCRC64NVME, true
	default:
		return "", false
	}
}

// etagIsMD5 reports whether the ETag of a single-part object is its md5.
// SSE-KMS, DSSE-KMS and SSE-C objects carry opaque ETags.
func etagIsMD5(info *s3client.ObjectInfo) bool {
	if info.SSECustomerAlgorithm != "" {
		return false
	}
	return info.ServerSideEncryption == "" || info.ServerSideEncryption == "AES256"
}

// Read returns the whole object body
func (b *S3Backend) Read(ctx context.Context, ref location.Ref) ([]byte, error) {
	body, err := b.client.GetObject(ctx, &s3client.GetObjectRequest{
		Bucket: ref.Bucket,
		Key:    ref.Path,
	})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

// Write uploads data, replacing any existing object
func (b *S3Backend) Write(ctx context.Context, ref location.Ref, data []byte, contentType string) error {
	err := b.client.PutObject(ctx, &s3client.PutObjectRequest{
		Bucket:      ref.Bucket,
		Key:         ref.Path,
		Body:        bytes.NewReader(data),
		ContentType: contentType,
	})
	if err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return nil
}
