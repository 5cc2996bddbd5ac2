package verifier

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/yuya-takeyama/strict-s3-verify/internal/checksum"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/location"
	"github.com/yuya-takeyama/strict-s3-verify/pkg/reconcile"
)

// mockBackend is an in-memory storage.Backend keyed by location string
type mockBackend struct {
	mu      sync.Mutex
	objects map[string]reconcile.Fingerprint
	files   map[string][]byte
	failing map[string]error

	listCalls        atomic.Int32
	fingerprintCalls atomic.Int32
}

func newMockBackend() *mockBackend {
	return &mockBackend{
		objects: make(map[string]reconcile.Fingerprint),
		files:   make(map[string][]byte),
		failing: make(map[string]error),
	}
}

func (m *mockBackend) put(ref string, size int64, digest string) {
	m.objects[location.MustParse(ref).String()] = reconcile.Fingerprint{Size: size, Digest: digest}
}

func (m *mockBackend) List(ctx context.Context, root location.Ref) ([]location.Ref, error) {
	m.listCalls.Add(1)
	if err := m.failing[root.String()]; err != nil {
		return nil, err
	}

	var refs []location.Ref
	for raw := range m.objects {
		ref := location.MustParse(raw)
		if _, ok := root.Rel(ref); ok {
			refs = append(refs, ref)
		}
	}
	if len(refs) == 0 {
		return nil, &reconcile.LocationNotFoundError{Ref: root}
	}

	sort.Slice(refs, func(i, j int) bool {
		return refs[i].Path < refs[j].Path
	})
	return refs, nil
}

func (m *mockBackend) Fingerprint(ctx context.Context, ref location.Ref, alg checksum.Algorithm) (reconcile.Fingerprint, error) {
	m.fingerprintCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return reconcile.Fingerprint{}, err
	}
	if err := m.failing[ref.String()]; err != nil {
		return reconcile.Fingerprint{}, &reconcile.FingerprintUnavailableError{Ref: ref, Err: err}
	}
	fp, ok := m.objects[ref.String()]
	if !ok {
		return reconcile.Fingerprint{}, &reconcile.FingerprintUnavailableError{Ref: ref, Err: fmt.Errorf("no such object")}
	}
	return fp, nil
}

func (m *mockBackend) Read(ctx context.Context, ref location.Ref) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[ref.String()]
	if !ok {
		return nil, fmt.Errorf("no such file: %s", ref)
	}
	return data, nil
}

func (m *mockBackend) Write(ctx context.Context, ref location.Ref, data []byte, contentType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[ref.String()] = data
	return nil
}
