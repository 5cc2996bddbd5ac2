package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/yuya-takeyama/strict-s3-verify/pkg/s3client"
)

// mockS3Client is a mock implementation of s3client.Client for testing
type mockS3Client struct {
	listObjectsFunc func(ctx context.Context, req *s3client.ListObjectsRequest) ([]s3client.ObjectSummary, error)
	headObjectFunc  func(ctx context.Context, req *s3client.HeadObjectRequest) (*s3client.ObjectInfo, error)
	getObjectFunc   func(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error)
	putObjectFunc   func(ctx context.Context, req *s3client.PutObjectRequest) error
}

func (m *mockS3Client) ListObjects(ctx context.Context, req *s3client.ListObjectsRequest) ([]s3client.ObjectSummary, error) {
	if m.listObjectsFunc != nil {
		return m.listObjectsFunc(ctx, req)
	}
	return nil, fmt.Errorf("ListObjects not implemented")
}

func (m *mockS3Client) HeadObject(ctx context.Context, req *s3client.HeadObjectRequest) (*s3client.ObjectInfo, error) {
	if m.headObjectFunc != nil {
		return m.headObjectFunc(ctx, req)
	}
	return nil, fmt.Errorf("HeadObject not implemented")
}

func (m *mockS3Client) GetObject(ctx context.Context, req *s3client.GetObjectRequest) (io.ReadCloser, error) {
	if m.getObjectFunc != nil {
		return m.getObjectFunc(ctx, req)
	}
	return nil, fmt.Errorf("GetObject not implemented")
}

func (m *mockS3Client) PutObject(ctx context.Context, req *s3client.PutObjectRequest) error {
	if m.putObjectFunc != nil {
		return m.putObjectFunc(ctx, req)
	}
	return fmt.Errorf("PutObject not implemented")
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
