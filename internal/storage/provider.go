// Package storage defines the file-area abstraction used for the import inbox and
// database backups.
package storage

import "github.com/starford/loopgrid/internal/models"

// Provider is the interface for file operations inside one root directory.
type Provider interface {
	// Root returns the absolute root directory.
	Root() string
	// Abs resolves a path relative to the root, rejecting escapes.
	Abs(path string) (string, error)
	// List returns metadata for every .db file directly inside dir (relative to root).
	List(dir string) ([]models.DBFile, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
