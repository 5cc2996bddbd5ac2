package checksum

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"hash"
	"hash/crc64"
	"io"
	"strings"
)

const bufferSize = 64 * 1024 // 64KB buffer

// Algorithm names a content digest. All digests are reported base64 encoded,
// the same format S3 uses for its stored checksums.
type Algorithm string

const (
	MD5       Algorithm = "md5"
	SHA256    Algorithm = "sha256"
	CRC64NVME Algorithm = "crc64nvme"
)

// CRC64NVME polynomial as per AWS S3 specification
var crc64NVMETable = crc64.MakeTable(0x9a6c9329ac4bc9b5)

// ParseAlgorithm validates a user supplied algorithm name
func ParseAlgorithm(name string) (Algorithm, error) {
	switch alg := Algorithm(strings.ToLower(name)); alg {
	case MD5, SHA256, CRC64NVME:
		return alg, nil
	default:
		return "", fmt.Errorf("unsupported digest algorithm %q (want md5, sha256 or crc64nvme)", name)
	}
}

func (a Algorithm) newHash() (hash.Hash, error) {
	switch a {
	case MD5:
		return md5.New(), nil
	case SHA256:
		return sha256.New(), nil
	case CRC64NVME:
		return crc64.New(crc64NVMETable), nil
	default:
		return nil, fmt.Errorf("unsupported digest algorithm %q", string(a))
	}
}

// Calculate streams r through the algorithm and returns the base64 digest
// together with the number of bytes read.
func Calculate(r io.Reader, alg Algorithm) (string, int64, error) {
	h, err := alg.newHash()
	if err != nil {
		return "", 0, err
	}

	buffer := make([]byte, bufferSize)
	n, err := io.CopyBuffer(h, r, buffer)
	if err != nil {
		return "", n, fmt.Errorf("read: %w", err)
	}

	return base64.StdEncoding.EncodeToString(h.Sum(nil)), n, nil
}

// MD5FromETag converts a single-part S3 ETag into a base64 md5 digest.
// Multipart ETags ("<hex>-<parts>") are not content digests and report false.
func MD5FromETag(etag string) (string, bool) {
	etag = strings.Trim(etag, "\"")
	if strings.Contains(etag, "-") || len(etag) != hex.EncodedLen(md5.Size) {
		return "", false
	}
	raw, err := hex.DecodeString(etag)
	if err != nil {
		return "", false
	}
	return base64.StdEncoding.EncodeToString(raw), true
}

// IsComposite reports whether an S3 checksum value is a checksum-of-checksums
// from a multipart upload, which cannot be compared with a full-object digest.
func IsComposite(value string) bool {
	return strings.Contains(value, "-")
}
