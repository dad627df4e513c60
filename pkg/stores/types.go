package stores

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no archived version matches.
	ErrNotFound = errors.New("archived version not found")

	// ErrExists is returned when storing a version that is already archived.
	ErrExists = errors.New("archived version already exists")
)

// ArchivedVersion is a stored project version document.
type ArchivedVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`

	// Document is the serialized model data.
	Document []byte `json:"-"`

	// Checksum is the hex BLAKE3 digest of Document.
	Checksum string `json:"checksum"`

	ElementCount int       `json:"element_count"`
	Origin       string    `json:"origin,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// VersionInfo describes an archived version without its document.
type VersionInfo struct {
	Name         string    `json:"name"`
	Version      string    `json:"version"`
	Checksum     string    `json:"checksum"`
	ElementCount int       `json:"element_count"`
	Origin       string    `json:"origin,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Store is the archive persistence contract.
type Store interface {
	// Put archives v. It fails with ErrExists unless overwrite is set.
	Put(ctx context.Context, v *ArchivedVersion, overwrite bool) error

	// Get returns the archived version or ErrNotFound.
	Get(ctx context.Context, name, version string) (*ArchivedVersion, error)

	// List returns archived versions, newest first. An empty name lists all.
	List(ctx context.Context, name string) ([]VersionInfo, error)

	// Delete removes an archived version or returns ErrNotFound.
	Delete(ctx context.Context, name, version string) error

	HealthCheck(ctx context.Context) error
	Close() error
}
