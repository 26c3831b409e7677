package blob

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
)

// FS stores raw uploads on the local filesystem under a root directory.
// Object paths are namespaced owner/document/filename, which keeps one
// tenant's blobs out of another's subtree.
type FS struct {
	root string
}

func NewFS(root string) *FS {
	return &FS{root: root}
}

// ObjectPath builds the canonical storage path for an upload. The filename is
// reduced to its base name so callers cannot climb out of the namespace.
func ObjectPath(ownerID, documentID, filename string) string {
	return path.Join(ownerID, documentID, path.Base(filepath.ToSlash(filename)))
}

func (f *FS) Put(objectPath string, data []byte) error {
	full, err := f.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("failed to create blob directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return fmt.Errorf("failed to write blob: %w", err)
	}
	return nil
}

func (f *FS) Remove(objectPath string) error {
	full, err := f.resolve(objectPath)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("failed to remove blob: %w", err)
	}
	return nil
}

func (f *FS) resolve(objectPath string) (string, error) {
	clean := path.Clean("/" + objectPath) // rooted, so .. cannot escape
	return filepath.Join(f.root, filepath.FromSlash(clean)), nil
}
