package reconcile

import (
	"fmt"

	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
)

// ManifestShapeError reports a manifest whose origin and destination columns
// have different lengths. It is raised before any storage call is made.
type ManifestShapeError struct {
	Origins      int
	Destinations int
}

func (e *ManifestShapeError) Error() string {
	return fmt.Sprintf("number of origins (%d) does not equal number of destinations (%d)", e.Origins, e.Destinations)
}

// LocationNotFoundError reports a root that cannot be listed.
type LocationNotFoundError struct {
	Ref location.Ref
	Err error
}

func (e *LocationNotFoundError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("location not found: %s", e.Ref)
	}
	return fmt.Sprintf("location not found: %s: %v", e.Ref, e.Err)
}

func (e *LocationNotFoundError) Unwrap() error {
	return e.Err
}

// FingerprintUnavailableError reports an object that could not be read or
// hashed. Such objects are never reported as missing.
type FingerprintUnavailableError struct {
	Ref location.Ref
	Err error
}

func (e *FingerprintUnavailableError) Error() string {
	return fmt.Sprintf("fingerprint unavailable for %s: %v", e.Ref, e.Err)
}

func (e *FingerprintUnavailableError) Unwrap() error {
	return e.Err
}

// KeyDerivationError reports an object whose relative key cannot be derived
// from its root.
type KeyDerivationError struct {
	Root   location.Ref
	Object location.Ref
	Reason string
}

func (e *KeyDerivationError) Error() string {
	return fmt.Sprintf("cannot derive key for %s under root %s: %s", e.Object, e.Root, e.Reason)
}

// DuplicateKeyWarning is emitted when two objects of one root map to the
// same relative key. Current replaced Previous in the index.
type DuplicateKeyWarning struct {
	Root     location.Ref
	Key      RelativeKey
	Previous location.Ref
	Current  location.Ref
}

func (w DuplicateKeyWarning) String() string {
	return fmt.Sprintf("duplicate key %q under %s: %s replaced by %s", w.Key, w.Root, w.Previous, w.Current)
}
