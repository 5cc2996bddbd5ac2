package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"golang.org/x/sync/errgroup"
)

const defaultConcurrency = 32

// Fingerprinter returns the fingerprint of a single object.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, ref location.Ref) (Fingerprint, error)
}

// FingerprinterFunc adapts a function to the Fingerprinter interface
type FingerprinterFunc func(ctx context.Context, ref location.Ref) (Fingerprint, error)

func (f FingerprinterFunc) Fingerprint(ctx context.Context, ref location.Ref) (Fingerprint, error) {
	return f(ctx, ref)
}

// Builder turns a root's object listing into a fingerprint index.
type Builder struct {
	fingerprinter Fingerprinter
	logger        *slog.Logger
	concurrency   int
	excludes      []string
}

// NewBuilder returns a Builder running at most concurrency fingerprint calls
// at once. Keys matching any of excludes are left out of the index.
func NewBuilder(fingerprinter Fingerprinter, logger *slog.Logger, concurrency int, excludes []string) *Builder {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Builder{
		fingerprinter: fingerprinter,
		logger:        logger,
		concurrency:   concurrency,
		excludes:      excludes,
	}
}

type keyedRef struct {
	key RelativeKey
	ref location.Ref
}

// Build fingerprints every object and indexes it by its key relative to
// root. Objects are fingerprinted concurrently but inserted in listing
// order, so on a duplicate key the later object wins. The first fingerprint
// failure cancels the remaining calls and is returned.
func (b *Builder) Build(ctx context.Context, root location.Ref, objects []location.Ref) (*Index, error) {
	targets := make([]keyedRef, 0, len(objects))
	for _, obj := range objects {
		key, err := DeriveKey(root, obj)
		if err != nil {
			return nil, err
		}

		excluded, err := IsExcluded(key, b.excludes)
		if err != nil {
			return nil, fmt.Errorf("failed to check exclude pattern for %s: %w", key, err)
		}
		if excluded {
			b.logger.Debug("excluded", "root", root.String(), "key", string(key))
			continue
		}

		targets = append(targets, keyedRef{key: key, ref: obj})
	}

	fingerprints := make([]Fingerprint, len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, t := range targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}

			fp, err := b.fingerprinter.Fingerprint(gctx, t.ref)
			if err != nil {
				var unavailable *FingerprintUnavailableError
				if errors.As(err, &unavailable) {
					return err
				}
				return &FingerprintUnavailableError{Ref: t.ref, Err: err}
			}

			fingerprints[i] = fp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	idx := NewIndex(root)
	for i, t := range targets {
		w, dup := idx.Add(t.key, Entry{Ref: t.ref, Fingerprint: fingerprints[i]})
		if dup {
			b.logger.Warn("duplicate relative key",
				"root", root.String(),
				"key", string(w.Key),
				"previous", w.Previous.String(),
				"current", w.Current.String(),
			)
		}
	}

	b.logger.Debug("index built", "root", root.String(), "objects", idx.Len())
	return idx, nil
}
