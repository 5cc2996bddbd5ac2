// Package manifest reads the list of (origin, destination) roots to verify.
//
// A manifest is tab-separated text without a header: the first column holds
// origin locations and the second their destinations, one pair per row.
package manifest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/reconcile"
)

type column struct {
	raw  string
	line int
}

// Parse reads a manifest. Origins and destinations are collected per column
// and paired by position; columns of different lengths fail with
// *reconcile.ManifestShapeError. Blank lines and lines starting with '#'
// are ignored.
func Parse(r io.Reader) ([]reconcile.RootPair, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.Comment = '#'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	var origins, dests []column
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read manifest: %w", err)
		}

		line, _ := reader.FieldPos(0)

		if v := strings.TrimSpace(record[0]); v != "" {
			origins = append(origins, column{raw: v, line: line})
		}
		if len(record) > 1 {
			if v := strings.TrimSpace(record[1]); v != "" {
				dests = append(dests, column{raw: v, line: line})
			}
		}
	}

	if len(origins) != len(dests) {
		return nil, &reconcile.ManifestShapeError{
			Origins:      len(origins),
			Destinations: len(dests),
		}
	}

	pairs := make([]reconcile.RootPair, 0, len(origins))
	for i := range origins {
		origin, err := location.Parse(origins[i].raw)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: origin: %w", origins[i].line, err)
		}
		dest, err := location.Parse(dests[i].raw)
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: destination: %w", dests[i].line, err)
		}
		pairs = append(pairs, reconcile.RootPair{
			Origin:      origin,
			Destination: dest,
			Line:        origins[i].line,
		})
	}

	return pairs, nil
}
