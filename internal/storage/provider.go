// Package storage defines the output-tree file-system abstraction.
package storage

// Entry describes one file in an output tree.
type Entry struct {
	Path     string `json:"path"`
	Checksum string `json:"checksum"`
	Size     int64  `json:"size"`
}

// Provider is the interface for rooted file operations.
type Provider interface {
	// List returns every regular file under dir (relative to root), sorted by path.
	List(dir string) ([]Entry, error)
	// Read returns the raw bytes of the file at path (relative to root).
	Read(path string) ([]byte, error)
	// Write atomically writes content to path, creating parent directories.
	Write(path string, content []byte) error
	// RemoveAll deletes path and everything below it; a missing path is not an error.
	RemoveAll(path string) error
	// Move renames oldPath to newPath (both relative to root).
	Move(oldPath, newPath string) error
	// Abs resolves a relative path to its absolute location under root.
	Abs(path string) (string, error)
}
