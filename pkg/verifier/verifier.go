// Package verifier runs reconciliation over every root pair of a manifest.
//
// Each pair lists both roots, builds a fingerprint index per side and
// reconciles them. Pairs run concurrently. By default a failing pair is
// recorded on its result and the others carry on; with FailFast the first
// failure cancels the whole run.
package verifier

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/yuya-takeyama/strict-s3-verify/internal/checksum"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/manifest"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/reconcile"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/storage"
	"golang.org/x/sync/errgroup"
)

const defaultPairConcurrency = 4

// Options controls digest choice, concurrency and failure handling
type Options struct {
	Algorithm       checksum.Algorithm
	Concurrency     int // fingerprint calls in flight per index build
	PairConcurrency int
	Excludes        []string
	FailFast        bool
}

// Verifier reconciles root pairs read from a single storage backend
type Verifier struct {
	backend storage.Backend
	logger  *slog.Logger
	opts    Options
}

// New returns a Verifier. Zero options select md5 and the default
// concurrency.
func New(backend storage.Backend, logger *slog.Logger, opts Options) *Verifier {
	if opts.Algorithm == "" {
		opts.Algorithm = checksum.MD5
	}
	if opts.PairConcurrency <= 0 {
		opts.PairConcurrency = defaultPairConcurrency
	}
	return &Verifier{
		backend: backend,
		logger:  logger,
		opts:    opts,
	}
}

// LoadManifest reads and parses the manifest at ref
func LoadManifest(ctx context.Context, backend storage.Backend, ref location.Ref) ([]reconcile.RootPair, error) {
	data, err := backend.Read(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	pairs, err := manifest.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest %s: %w", ref, err)
	}
	return pairs, nil
}

// RunManifest loads the manifest at ref and verifies its pairs. A malformed
// manifest fails before any root is listed.
func (v *Verifier) RunManifest(ctx context.Context, ref location.Ref) (*Summary, error) {
	pairs, err := LoadManifest(ctx, v.backend, ref)
	if err != nil {
		return nil, err
	}
	v.logger.Info("manifest loaded", "manifest", ref.String(), "pairs", len(pairs))
	return v.Run(ctx, pairs)
}

// Run verifies every pair. Results are returned in manifest order. In
// FailFast mode the first pair error is returned without a summary; otherwise
// an error is returned only when ctx is cancelled.
func (v *Verifier) Run(ctx context.Context, pairs []reconcile.RootPair) (*Summary, error) {
	start := time.Now()
	results := make([]PairResult, len(pairs))

	var g *errgroup.Group
	gctx := ctx
	if v.opts.FailFast {
		g, gctx = errgroup.WithContext(ctx)
	} else {
		g = &errgroup.Group{}
	}
	g.SetLimit(v.opts.PairConcurrency)

	for i, pair := range pairs {
		g.Go(func() error {
			res := v.VerifyPair(gctx, pair)
			results[i] = res
			if res.Err != nil && v.opts.FailFast {
				return fmt.Errorf("verify %s -> %s: %w", pair.Origin, pair.Destination, res.Err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	summary := &Summary{
		Algorithm: v.opts.Algorithm,
		Pairs:     results,
		Duration:  time.Since(start),
	}

	t := summary.Totals()
	v.logger.Info("verification complete",
		"pairs", t.Pairs,
		"failed", t.Failed,
		"matched", t.Matched,
		"mismatched", t.Mismatched,
		"missing", t.Missing,
		"scanned", humanize.Bytes(uint64(t.OriginBytes)),
		"duration", summary.Duration.Round(time.Millisecond).String(),
	)

	return summary, nil
}

// VerifyPair lists both roots concurrently, indexes them and reconciles the
// origin index against the destination. Failures are returned on the result.
func (v *Verifier) VerifyPair(ctx context.Context, pair reconcile.RootPair) PairResult {
	start := time.Now()
	res := PairResult{Pair: pair}

	logger := v.logger.With("origin", pair.Origin.String(), "destination", pair.Destination.String())
	logger.Debug("verifying pair")

	origin, dest, err := v.buildIndices(ctx, pair, logger)
	res.Duration = time.Since(start)
	if err != nil {
		res.Err = err
		if !errors.Is(err, context.Canceled) {
			logger.Error("pair failed", "error", err)
		}
		return res
	}

	res.Report = reconcile.Reconcile(origin, dest)
	res.OriginObjects = origin.Len()
	res.DestinationObjects = dest.Len()
	res.OriginBytes = origin.TotalSize()
	res.Duplicates = append(append([]reconcile.DuplicateKeyWarning{}, origin.Duplicates...), dest.Duplicates...)
	res.Duration = time.Since(start)

	logger.Info("pair verified",
		"matched", res.Report.Matched,
		"mismatched", len(res.Report.Mismatches),
		"missing", res.Report.Missing.Cardinality(),
		"size", humanize.Bytes(uint64(res.OriginBytes)),
		"duration", res.Duration.Round(time.Millisecond).String(),
	)

	return res
}

func (v *Verifier) buildIndices(ctx context.Context, pair reconcile.RootPair, logger *slog.Logger) (*reconcile.Index, *reconcile.Index, error) {
	var originObjects, destObjects []location.Ref

	lg, lctx := errgroup.WithContext(ctx)
	lg.Go(func() error {
		var err error
		originObjects, err = v.backend.List(lctx, pair.Origin)
		return err
	})
	lg.Go(func() error {
		var err error
		destObjects, err = v.backend.List(lctx, pair.Destination)
		return err
	})
	if err := lg.Wait(); err != nil {
		return nil, nil, err
	}

	logger.Debug("listed roots", "origin_objects", len(originObjects), "destination_objects", len(destObjects))

	builder := reconcile.NewBuilder(storage.Fingerprinter(v.backend, v.opts.Algorithm), logger, v.opts.Concurrency, v.opts.Excludes)

	var origin, dest *reconcile.Index

	bg, bctx := errgroup.WithContext(ctx)
	bg.Go(func() error {
		var err error
		origin, err = builder.Build(bctx, pair.Origin, originObjects)
		return err
	})
	bg.Go(func() error {
		var err error
		dest, err = builder.Build(bctx, pair.Destination, destObjects)
		return err
	})
	if err := bg.Wait(); err != nil {
		return nil, nil, err
	}

	return origin, dest, nil
}
