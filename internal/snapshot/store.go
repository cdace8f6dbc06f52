package snapshot

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store is the upload-and-get-public-URL boundary for map snapshot images.
// Callers treat uploads as best-effort: a failed upload degrades to a record
// without a snapshot, never to a failed request.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) (string, error)
}

// DiskStore writes snapshots under a content root and resolves them against
// a public base URL served as static files.
type DiskStore struct {
	root    string
	baseURL string
}

func NewDiskStore(root, baseURL string) (*DiskStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	return &DiskStore{
		root:    root,
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

func (s *DiskStore) Put(_ context.Context, key string, r io.Reader) (string, error) {
	// keys are generated server-side, but never trust them with path parts
	name := filepath.Base(filepath.Clean(key))
	if name == "." || name == ".." || name == string(filepath.Separator) {
		return "", fmt.Errorf("invalid snapshot key: %q", key)
	}

	f, err := os.Create(filepath.Join(s.root, name))
	if err != nil {
		return "", err
	}
	defer f.Close()

	if _, err := io.Copy(f, r); err != nil {
		os.Remove(f.Name())
		return "", err
	}
	return s.baseURL + "/" + name, nil
}
