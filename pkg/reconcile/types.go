package reconcile

import (
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
)

// Fingerprint is the size and content digest of one object. Two objects with
// equal fingerprints are treated as having identical content.
type Fingerprint struct {
	Size   int64
	Digest string
}

// RootPair is one unit of reconciliation work.
type RootPair struct {
	Origin      location.Ref
	Destination location.Ref
	Line        int // manifest row, 0 when not read from a manifest
}

// RelativeKey joins an origin object with its destination counterpart.
type RelativeKey string

// Entry is one indexed object and its fingerprint
type Entry struct {
	Ref         location.Ref
	Fingerprint Fingerprint
}

// Index maps root-relative keys to fingerprinted objects for one root.
type Index struct {
	Root       location.Ref
	Entries    map[RelativeKey]Entry
	Duplicates []DuplicateKeyWarning
}

// NewIndex returns an empty index for root
func NewIndex(root location.Ref) *Index {
	return &Index{
		Root:    root,
		Entries: make(map[RelativeKey]Entry),
	}
}

// Add inserts an entry. A key that is already present is overwritten and the
// collision is recorded and returned.
func (idx *Index) Add(key RelativeKey, entry Entry) (DuplicateKeyWarning, bool) {
	prev, exists := idx.Entries[key]
	idx.Entries[key] = entry
	if !exists {
		return DuplicateKeyWarning{}, false
	}

	w := DuplicateKeyWarning{
		Root:     idx.Root,
		Key:      key,
		Previous: prev.Ref,
		Current:  entry.Ref,
	}
	idx.Duplicates = append(idx.Duplicates, w)
	return w, true
}

// Len returns the number of indexed keys
func (idx *Index) Len() int {
	return len(idx.Entries)
}

// Keys returns the index keys in ascending order
func (idx *Index) Keys() []RelativeKey {
	keys := make([]RelativeKey, 0, len(idx.Entries))
	for k := range idx.Entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return keys[i] < keys[j]
	})
	return keys
}

// TotalSize sums the sizes of all indexed objects
func (idx *Index) TotalSize() int64 {
	var total int64
	for _, e := range idx.Entries {
		total += e.Fingerprint.Size
	}
	return total
}

// Mismatch is an origin object whose destination counterpart has a different
// fingerprint.
type Mismatch struct {
	Key                    RelativeKey
	Origin                 location.Ref
	Destination            location.Ref
	OriginFingerprint      Fingerprint
	DestinationFingerprint Fingerprint
}

// Report is the outcome of reconciling one origin index against its
// destination.
type Report struct {
	Mismatches []Mismatch
	Missing    mapset.Set[location.Ref]
	Matched    int
}

func newReport() *Report {
	return &Report{
		Mismatches: []Mismatch{},
		Missing:    mapset.NewThreadUnsafeSet[location.Ref](),
	}
}

// IsClean reports whether every origin object was found intact
func (r *Report) IsClean() bool {
	return len(r.Mismatches) == 0 && r.Missing.Cardinality() == 0
}

// MissingSorted returns the missing set ordered by location string
func (r *Report) MissingSorted() []location.Ref {
	refs := r.Missing.ToSlice()
	sort.Slice(refs, func(i, j int) bool {
		return refs[i].String() < refs[j].String()
	})
	return refs
}
