// Package report renders verification summaries.
package report

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/yuya-takeyama/strict-s3-verify/pkg/verifier"
)

// Text renders the line-oriented report: for each verified pair one line
// listing mismatched keys with their origin and destination, one line
// listing origin objects absent at the destination, and for each failed
// pair one line with the failure. Clean pairs produce no output, so a fully
// clean run renders as an empty document.
func Text(summary *verifier.Summary) string {
	var lines []string

	for _, p := range summary.Pairs {
		if p.Failed() {
			lines = append(lines, fmt.Sprintf("Pair failed: %s -> %s: %v", p.Pair.Origin, p.Pair.Destination, p.Err))
			continue
		}
		if p.Report == nil {
			continue
		}

		if len(p.Report.Mismatches) > 0 {
			entries := make([]string, 0, len(p.Report.Mismatches))
			for _, m := range p.Report.Mismatches {
				entries = append(entries, fmt.Sprintf("%s: [%s, %s]", quote(string(m.Key)), quote(m.Origin.String()), quote(m.Destination.String())))
			}
			lines = append(lines, fmt.Sprintf("%s mismatch: {%s}", summary.Algorithm, strings.Join(entries, ", ")))
		}

		if p.Report.Missing.Cardinality() > 0 {
			missing := p.Report.MissingSorted()
			entries := make([]string, 0, len(missing))
			for _, ref := range missing {
				entries = append(entries, quote(ref.String()))
			}
			lines = append(lines, fmt.Sprintf("Files not copied: {%s}", strings.Join(entries, ", ")))
		}
	}

	return strings.Join(lines, "\n")
}

// quote renders s the way Python's repr does: single quotes unless s
// contains a single quote and no double quote.
func quote(s string) string {
	q := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		q = '"'
	}

	var b strings.Builder
	b.WriteRune(q)
	for _, r := range s {
		switch {
		case r == q || r == '\\':
			b.WriteRune('\\')
			b.WriteRune(r)
		case r == '\n':
			b.WriteString(`\n`)
		case r == '\r':
			b.WriteString(`\r`)
		case r == '\t':
			b.WriteString(`\t`)
		case r < 0x100 && !unicode.IsPrint(r):
			fmt.Fprintf(&b, `\x%02x`, r)
		case !unicode.IsPrint(r) && r < 0x10000:
			fmt.Fprintf(&b, `\u%04x`, r)
		case !unicode.IsPrint(r):
			fmt.Fprintf(&b, `\U%08x`, r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteRune(q)
	return b.String()
}

// Result is the machine-readable verification outcome
type Result struct {
	Files    []ResultFile  `json:"files"`
	Errors   []ErrorPair   `json:"errors"`
	Warnings []string      `json:"warnings"` // duplicate keys within a root
	Summary  ResultSummary `json:"summary"`
}

// ResultFile is one mismatched or missing object
type ResultFile struct {
	Status      string `json:"status"` // "mismatched", "missing"
	Key         string `json:"key"`
	Origin      string `json:"origin"`
	Destination string `json:"destination,omitempty"`
	OriginSize  int64  `json:"originSize,omitempty"`
	DestSize    int64  `json:"destinationSize,omitempty"`
}

// ErrorPair is a root pair that could not be verified
type ErrorPair struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	Line        int    `json:"line,omitempty"`
	Error       string `json:"error"`
}

// ResultSummary holds the run totals
type ResultSummary struct {
	Algorithm  string `json:"algorithm"`
	Pairs      int    `json:"pairs"`
	Failed     int    `json:"failed"`
	Matched    int    `json:"matched"`
	Mismatched int    `json:"mismatched"`
	Missing    int    `json:"missing"`
	Bytes      int64  `json:"bytes"`
}

// NewResult flattens a summary into a Result
func NewResult(summary *verifier.Summary) Result {
	t := summary.Totals()
	result := Result{
		Files:    []ResultFile{},
		Errors:   []ErrorPair{},
		Warnings: []string{},
		Summary: ResultSummary{
			Algorithm:  string(summary.Algorithm),
			Pairs:      t.Pairs,
			Failed:     t.Failed,
			Matched:    t.Matched,
			Mismatched: t.Mismatched,
			Missing:    t.Missing,
			Bytes:      t.OriginBytes,
		},
	}

	for _, p := range summary.Pairs {
		for _, w := range p.Duplicates {
			result.Warnings = append(result.Warnings, w.String())
		}
		if p.Failed() {
			result.Errors = append(result.Errors, ErrorPair{
				Origin:      p.Pair.Origin.String(),
				Destination: p.Pair.Destination.String(),
				Line:        p.Pair.Line,
				Error:       p.Err.Error(),
			})
			continue
		}
		if p.Report == nil {
			continue
		}

		for _, m := range p.Report.Mismatches {
			result.Files = append(result.Files, ResultFile{
				Status:      "mismatched",
				Key:         string(m.Key),
				Origin:      m.Origin.String(),
				Destination: m.Destination.String(),
				OriginSize:  m.OriginFingerprint.Size,
				DestSize:    m.DestinationFingerprint.Size,
			})
		}
		for _, ref := range p.Report.MissingSorted() {
			key, _ := p.Pair.Origin.Rel(ref)
			if key == "" {
				key = ref.Base()
			}
			result.Files = append(result.Files, ResultFile{
				Status: "missing",
				Key:    key,
				Origin: ref.String(),
			})
		}
	}

	return result
}

// JSON renders the summary as an indented Result document
func JSON(summary *verifier.Summary) ([]byte, error) {
	data, err := json.MarshalIndent(NewResult(summary), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return data, nil
}
