// Package reconcile compares fingerprint indices of an origin and a
// destination tree.
package reconcile

// Reconcile reports origin entries whose fingerprint differs at the
// destination and origin entries with no destination counterpart. The check
// is origin-authoritative: keys present only in dest are ignored.
// Mismatches are ordered by key.
func Reconcile(origin, dest *Index) *Report {
	report := newReport()

	for _, key := range origin.Keys() {
		src := origin.Entries[key]

		dst, exists := dest.Entries[key]
		if !exists {
			report.Missing.Add(src.Ref)
			continue
		}

		if src.Fingerprint != dst.Fingerprint {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Key:                    key,
				Origin:                 src.Ref,
				Destination:            dst.Ref,
				OriginFingerprint:      src.Fingerprint,
				DestinationFingerprint: dst.Fingerprint,
			})
			continue
		}

		report.Matched++
	}

	return report
}
