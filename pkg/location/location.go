// Package location parses and manipulates the object references that the
// verifier lists, fingerprints and reports on.
package location

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Scheme identifies the store a Ref lives in
type Scheme string

const (
	SchemeS3   Scheme = "s3"
	SchemeGS   Scheme = "gs"
	SchemeFile Scheme = "file"
)

// Ref is an absolute reference to one stored object or to a root under which
// objects are enumerated. Refs are comparable and safe to use as map keys.
type Ref struct {
	Scheme Scheme
	Bucket string // empty for SchemeFile
	Path   string // object key without leading slash, or absolute slash-separated file path
}

// Parse accepts s3://bucket/key, gs://bucket/key, file:///abs/path and plain
// filesystem paths.
// Trailing slashes are dropped so that "s3://b/data/" and "s3://b/data"
// name the same root.
func Parse(raw string) (Ref, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Ref{}, fmt.Errorf("empty location")
	}

	switch {
	case strings.HasPrefix(raw, "s3://"):
		return parseBucketURI(raw, SchemeS3)
	case strings.HasPrefix(raw, "gs://"):
		return parseBucketURI(raw, SchemeGS)
	case strings.HasPrefix(raw, "file://"):
		return parseFile(strings.TrimPrefix(raw, "file://"))
	case strings.Contains(raw, "://"):
		return Ref{}, fmt.Errorf("unsupported location scheme: %s", raw)
	default:
		return parseFile(raw)
	}
}

// MustParse is Parse for literals in tests and defaults.
func MustParse(raw string) Ref {
	ref, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return ref
}

func parseBucketURI(uri string, scheme Scheme) (Ref, error) {
	p := strings.TrimPrefix(uri, string(scheme)+"://")
	parts := strings.SplitN(p, "/", 2)

	if parts[0] == "" {
		return Ref{}, fmt.Errorf("invalid %s URI: missing bucket name: %s", scheme, uri)
	}

	ref := Ref{Scheme: scheme, Bucket: parts[0]}
	if len(parts) > 1 {
		ref.Path = strings.TrimRight(parts[1], "/")
	}
	return ref, nil
}

func parseFile(p string) (Ref, error) {
	if p == "" {
		return Ref{}, fmt.Errorf("empty file path")
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return Ref{}, fmt.Errorf("get absolute path: %w", err)
	}
	return Ref{Scheme: SchemeFile, Path: filepath.ToSlash(abs)}, nil
}

func (r Ref) String() string {
	if !r.InBucket() {
		return r.Path
	}
	if r.Path == "" {
		return fmt.Sprintf("%s://%s", r.Scheme, r.Bucket)
	}
	return fmt.Sprintf("%s://%s/%s", r.Scheme, r.Bucket, r.Path)
}

// InBucket reports whether r names an object store location
func (r Ref) InBucket() bool {
	return r.Scheme == SchemeS3 || r.Scheme == SchemeGS
}

// IsZero reports whether r is the zero Ref
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// Base returns the last path segment, or the bucket name for a bucket root.
func (r Ref) Base() string {
	if r.Path == "" || r.Path == "/" {
		return r.Bucket
	}
	return path.Base(r.Path)
}

// Join returns the ref for a slash-separated path below r.
func (r Ref) Join(elem ...string) Ref {
	child := r
	parts := append([]string{r.Path}, elem...)
	child.Path = path.Join(parts...)
	if r.InBucket() {
		child.Path = strings.TrimPrefix(child.Path, "/")
	}
	return child
}

// Prefix is the listing prefix for everything strictly under r: the path
// with a trailing slash, or "" for a bucket root.
func (r Ref) Prefix() string {
	if r.Path == "" {
		return ""
	}
	if strings.HasSuffix(r.Path, "/") {
		return r.Path
	}
	return r.Path + "/"
}

// Rel returns child's slash-separated path relative to r. The child must live
// in the same bucket and sit strictly under r on a segment boundary; a child
// equal to r yields "".
func (r Ref) Rel(child Ref) (string, bool) {
	if r.Scheme != child.Scheme || r.Bucket != child.Bucket {
		return "", false
	}
	if child.Path == r.Path {
		return "", true
	}
	prefix := r.Prefix()
	if !strings.HasPrefix(child.Path, prefix) {
		return "", false
	}
	rel := strings.TrimPrefix(child.Path, prefix)
	if rel == "" {
		return "", false
	}
	return rel, true
}
