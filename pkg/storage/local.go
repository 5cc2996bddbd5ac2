package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/yuya-takeyama/strict-s3-verify/internal/checksum"
	"github.com/yuya-takeyama/strict-s3-verify/internal/walker"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/reconcile"
)

// LocalBackend serves file:// locations from a billy filesystem rooted at "/"
type LocalBackend struct {
	fs     billy.Filesystem
	logger *slog.Logger
}

// NewLocalBackend serves file:// locations from filesystem
func NewLocalBackend(filesystem billy.Filesystem, logger *slog.Logger) *LocalBackend {
	return &LocalBackend{
		fs:     filesystem,
		logger: logger,
	}
}

// NewOSBackend serves the host filesystem
func NewOSBackend(logger *slog.Logger) *LocalBackend {
	return NewLocalBackend(osfs.New("/"), logger)
}

func (b *LocalBackend) List(ctx context.Context, root location.Ref) ([]location.Ref, error) {
	w, err := walker.NewWalker(b.fs, root.Path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &reconcile.LocationNotFoundError{Ref: root, Err: err}
		}
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	files, err := w.Walk()
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	refs := make([]location.Ref, 0, len(files))
	for _, f := range files {
		refs = append(refs, location.Ref{Scheme: location.SchemeFile, Path: f.Path})
	}

	b.logger.Debug("listed", "root", root.String(), "objects", len(refs))
	return refs, ctx.Err()
}

func (b *LocalBackend) Fingerprint(ctx context.Context, ref location.Ref, alg checksum.Algorithm) (reconcile.Fingerprint, error) {
	if err := ctx.Err(); err != nil {
		return reconcile.Fingerprint{}, err
	}

	file, err := b.fs.Open(ref.Path)
	if err != nil {
		return reconcile.Fingerprint{}, &reconcile.FingerprintUnavailableError{Ref: ref, Err: err}
	}
	defer file.Close()

	digest, n, err := checksum.Calculate(file, alg)
	if err != nil {
		return reconcile.Fingerprint{}, &reconcile.FingerprintUnavailableError{Ref: ref, Err: err}
	}

	return reconcile.Fingerprint{Size: n, Digest: digest}, nil
}

func (b *LocalBackend) Read(ctx context.Context, ref location.Ref) ([]byte, error) {
	data, err := util.ReadFile(b.fs, ref.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", ref, err)
	}
	return data, nil
}

func (b *LocalBackend) Write(ctx context.Context, ref location.Ref, data []byte, contentType string) error {
	if err := b.fs.MkdirAll(path.Dir(ref.Path), 0755); err != nil {
		return fmt.Errorf("create directory for %s: %w", ref, err)
	}
	if err := util.WriteFile(b.fs, ref.Path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", ref, err)
	}
	return nil
}
