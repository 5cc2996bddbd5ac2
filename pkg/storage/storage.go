// Package storage provides the object stores the verifier lists and
// fingerprints: S3 (and S3-compatible endpoints) and local filesystems.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuya-takeyama/strict-s3-verify/internal/checksum"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/reconcile"
)

// Backend is a read-mostly view of one kind of object store.
type Backend interface {
	// List returns every leaf object under root, sorted by path. Directory
	// placeholders are skipped. A root that does not exist fails with
	// *reconcile.LocationNotFoundError.
	List(ctx context.Context, root location.Ref) ([]location.Ref, error)

	// Fingerprint returns the size and digest of one object. Failures are
	// reported as *reconcile.FingerprintUnavailableError.
	Fingerprint(ctx context.Context, ref location.Ref, alg checksum.Algorithm) (reconcile.Fingerprint, error)

	Read(ctx context.Context, ref location.Ref) ([]byte, error)
	Write(ctx context.Context, ref location.Ref, data []byte, contentType string) error
}

// Fingerprinter binds a backend and digest algorithm for index building
func Fingerprinter(b Backend, alg checksum.Algorithm) reconcile.Fingerprinter {
	return reconcile.FingerprinterFunc(func(ctx context.Context, ref location.Ref) (reconcile.Fingerprint, error) {
		return b.Fingerprint(ctx, ref, alg)
	})
}

// Router dispatches to a backend by location scheme
type Router struct {
	backends map[location.Scheme]Backend
}

// NewRouter returns a Router with no backends registered
func NewRouter() *Router {
	return &Router{backends: make(map[location.Scheme]Backend)}
}

// Register serves scheme with b, replacing any earlier registration
func (r *Router) Register(scheme location.Scheme, b Backend) {
	r.backends[scheme] = b
}

func (r *Router) backend(ref location.Ref) (Backend, error) {
	b, ok := r.backends[ref.Scheme]
	if !ok {
		return nil, fmt.Errorf("no storage backend registered for %s", ref)
	}
	return b, nil
}

func (r *Router) List(ctx context.Context, root location.Ref) ([]location.Ref, error) {
	b, err := r.backend(root)
	if err != nil {
		return nil, err
	}
	return b.List(ctx, root)
}

func (r *Router) Fingerprint(ctx context.Context, ref location.Ref, alg checksum.Algorithm) (reconcile.Fingerprint, error) {
	b, err := r.backend(ref)
	if err != nil {
		return reconcile.Fingerprint{}, err
	}
	return b.Fingerprint(ctx, ref, alg)
}

func (r *Router) Read(ctx context.Context, ref location.Ref) ([]byte, error) {
	b, err := r.backend(ref)
	if err != nil {
		return nil, err
	}
	return b.Read(ctx, ref)
}

func (r *Router) Write(ctx context.Context, ref location.Ref, data []byte, contentType string) error {
	b, err := r.backend(ref)
	if err != nil {
		return err
	}
	return b.Write(ctx, ref, data, contentType)
}

// isDirectoryMarker reports listing entries that stand for folders rather
// than objects: keys ending in "/" and "_$folder$" placeholders.
func isDirectoryMarker(key string) bool {
	return key == "" || strings.HasSuffix(key, "/") || strings.HasSuffix(key, "_$folder$")
}
