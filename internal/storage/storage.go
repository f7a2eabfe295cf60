// README: Blob storage contract for proof-of-delivery photos and signatures.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"trackas/internal/types"
)

// BlobStore accepts an opaque blob and returns a stable reference. The core
// only ever stores the reference; retrieval is the application layer's job.
type BlobStore interface {
	Put(ctx context.Context, kind string, data []byte) (string, error)
}

// FSStore writes blobs under a base directory, one file per blob. It stands
// in for an object storage service in single-node deployments and tests.
type FSStore struct {
	base string
}

func NewFSStore(base string) (*FSStore, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{base: base}, nil
}

func (s *FSStore) Put(_ context.Context, kind string, data []byte) (string, error) {
	name := fmt.Sprintf("%s_%s", kind, types.NewID())
	path := filepath.Join(s.base, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	return name, nil
}

// MemStore keeps blobs in memory. Test helper.
type MemStore struct {
	blobs map[string][]byte
}

func NewMemStore() *MemStore {
	return &MemStore{blobs: make(map[string][]byte)}
}

func (s *MemStore) Put(_ context.Context, kind string, data []byte) (string, error) {
	ref := fmt.Sprintf("%s_%s", kind, types.NewID())
	s.blobs[ref] = data
	return ref, nil
}

// Blob returns the stored bytes for ref, or nil.
func (s *MemStore) Blob(ref string) []byte {
	return s.blobs[ref]
}
