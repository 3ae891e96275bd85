package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Storage is the blob backend the store persists bundles through. Put must
// be atomic: a reader never observes a partially written object.
type Storage interface {
	Get(path string) ([]byte, error)
	Put(path string, data []byte) error
	Exists(path string) (bool, error)
	List(prefix string) ([]string, error)
}

// FSStorage stores blobs as files under a base directory
type FSStorage struct {
	base string
}

// NewFSStorage creates the base directory if needed
func NewFSStorage(base string) (*FSStorage, error) {
	if err := os.MkdirAll(base, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: create storage dir: %w", err)
	}
	return &FSStorage{base: base}, nil
}

func (f *FSStorage) Get(path string) ([]byte, error) {
	return os.ReadFile(filepath.Join(f.base, filepath.FromSlash(path)))
}

// Put writes to a temp file in the target directory and renames it into
// place, so concurrent writers settle last-writer-wins without a reader
// ever seeing a torn blob
func (f *FSStorage) Put(path string, data []byte) error {
	full := filepath.Join(f.base, filepath.FromSlash(path))
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return nil
}

func (f *FSStorage) Exists(path string) (bool, error) {
	_, err := os.Stat(filepath.Join(f.base, filepath.FromSlash(path)))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// List returns the names of the immediate children under prefix, sorted
func (f *FSStorage) List(prefix string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(f.base, filepath.FromSlash(prefix)))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
