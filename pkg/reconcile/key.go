package reconcile

import (
	"fmt"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
)

// DeriveKey returns object's path relative to root. Objects with the same
// relative position under two different roots get identical keys.
//
// The object must be root itself or lie strictly under root on a path
// segment boundary. An object equal to root (a single-object root) is keyed
// by its basename.
func DeriveKey(root, object location.Ref) (RelativeKey, error) {
	rel, ok := root.Rel(object)
	if !ok {
		return "", &KeyDerivationError{Root: root, Object: object, Reason: "object is not under root"}
	}

	if rel == "" {
		base := root.Base()
		if base == "" {
			return "", &KeyDerivationError{Root: root, Object: object, Reason: "root has no basename"}
		}
		return RelativeKey(base), nil
	}

	return RelativeKey(rel), nil
}

// IsExcluded reports whether key matches any of the doublestar patterns
func IsExcluded(key RelativeKey, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		matched, err := doublestar.Match(pattern, string(key))
		if err != nil {
			return false, err
		}
		if matched {
			return true, nil
		}
	}
	return false, nil
}

// ValidatePatterns rejects malformed exclude patterns up front.
func ValidatePatterns(patterns []string) error {
	for _, pattern := range patterns {
		if !doublestar.ValidatePattern(pattern) {
			return fmt.Errorf("%w: %s", doublestar.ErrBadPattern, pattern)
		}
	}
	return nil
}
