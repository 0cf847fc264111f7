// Package storage defines the file-system abstraction behind the
// markdown mirror.
package storage

import "time"

// FileInfo describes one mirrored file.
type FileInfo struct {
	// Path is relative to the mirror root.
	Path string
	// Checksum is the hex SHA-256 of the file content.
	Checksum string
	// UpdatedAt is the file modification time.
	UpdatedAt time.Time
}

// Provider is the interface for mirror file operations. All paths are
// relative to the mirror root.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]FileInfo, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
