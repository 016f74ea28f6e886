// Package blob implements the content-addressed artifact store. References
// are derived from the sha256 of the content, so identical artifacts are
// stored once and a reference is only handed out after the bytes are
// durable on disk.
package blob

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

var (
	ErrNotFound   = errors.New("blob not found")
	ErrInvalidRef = errors.New("invalid blob reference")
)

// Store is a filesystem-backed content-addressed store. Safe for concurrent
// use: a write race on the same content converges on one object, with the
// first durable writer authoritative.
type Store struct {
	root string
}

// New creates the store root if needed and returns a Store.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: root}, nil
}

// Put writes data and returns its content reference. The write goes to a
// temp file first and is renamed into place, so a returned reference always
// points at complete bytes.
func (s *Store) Put(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	ref := hex.EncodeToString(sum[:])

	path := s.path(ref)
	if _, err := os.Stat(path); err == nil {
		// Already stored; first writer wins.
		return ref, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write blob: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync blob: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close blob: %w", err)
	}

	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		// A concurrent writer may have landed the same content first.
		if _, statErr := os.Stat(path); statErr == nil {
			return ref, nil
		}
		return "", fmt.Errorf("commit blob: %w", err)
	}

	return ref, nil
}

// Get returns the bytes for a reference.
func (s *Store) Get(ref string) ([]byte, error) {
	if !validRef(ref) {
		return nil, ErrInvalidRef
	}
	data, err := os.ReadFile(s.path(ref))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read blob: %w", err)
	}
	return data, nil
}

// Delete removes the given references. Missing blobs are not an error:
// delete is used for job garbage collection and must be idempotent.
func (s *Store) Delete(refs []string) error {
	for _, ref := range refs {
		if !validRef(ref) {
			return ErrInvalidRef
		}
		if err := os.Remove(s.path(ref)); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("delete blob %s: %w", ref, err)
		}
	}
	return nil
}

func (s *Store) path(ref string) string {
	// Two-level fanout keeps directories small.
	return filepath.Join(s.root, ref[:2], ref)
}

// validRef guards against path traversal: references are exactly 64 hex chars.
func validRef(ref string) bool {
	if len(ref) != 64 {
		return false
	}
	_, err := hex.DecodeString(ref)
	return err == nil
}
