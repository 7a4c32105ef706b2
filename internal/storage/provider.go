// Package storage reads documents from the vault directory.
package storage

import "github.com/starford/herald/internal/models"

// Provider is the read side of the document store. Paths are
// slash-separated identities relative to the vault root.
type Provider interface {
	// List returns metadata for every Markdown document under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the full content of the document at path.
	Read(path string) ([]byte, error)
}
