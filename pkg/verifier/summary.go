package verifier

import (
	"time"

	"github.com/yuya-takeyama/strict-s3-verify/internal/checksum"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/reconcile"
)

// PairResult is the outcome of one root pair: a report on success, Err on
// failure.
type PairResult struct {
	Pair               reconcile.RootPair
	Report             *reconcile.Report
	Err                error
	Duration           time.Duration
	OriginObjects      int
	DestinationObjects int
	OriginBytes        int64
	Duplicates         []reconcile.DuplicateKeyWarning
}

// Failed reports whether the pair could not be verified
func (r PairResult) Failed() bool {
	return r.Err != nil
}

// Summary collects the results of a run in manifest order
type Summary struct {
	Algorithm checksum.Algorithm
	Pairs     []PairResult
	Duration  time.Duration
}

// Totals aggregates counts across all pairs of a run
type Totals struct {
	Pairs       int
	Failed      int
	Matched     int
	Mismatched  int
	Missing     int
	OriginBytes int64
}

// Failed returns the pairs that could not be verified
func (s *Summary) Failed() []PairResult {
	var failed []PairResult
	for _, p := range s.Pairs {
		if p.Failed() {
			failed = append(failed, p)
		}
	}
	return failed
}

// HasDiscrepancies reports whether any verified pair has a mismatched or
// missing object.
func (s *Summary) HasDiscrepancies() bool {
	for _, p := range s.Pairs {
		if p.Report != nil && !p.Report.IsClean() {
			return true
		}
	}
	return false
}

// Totals sums the per-pair results
func (s *Summary) Totals() Totals {
	t := Totals{Pairs: len(s.Pairs)}
	for _, p := range s.Pairs {
		if p.Failed() {
			t.Failed++
			continue
		}
		if p.Report == nil {
			continue
		}
		t.Matched += p.Report.Matched
		t.Mismatched += len(p.Report.Mismatches)
		t.Missing += p.Report.Missing.Cardinality()
		t.OriginBytes += p.OriginBytes
	}
	return t
}
