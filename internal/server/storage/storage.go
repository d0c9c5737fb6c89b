// Package storage persists crate archives outside the database. The registry
// stores each published .crate file once and serves it back on download.
package storage

import (
	"context"
	"fmt"
)

// Storage stores and retrieves crate archives addressed by name and version.
type Storage interface {
	Store(ctx context.Context, name string, version string, data []byte) error
	Fetch(ctx context.Context, name string, version string) ([]byte, error)
	Delete(ctx context.Context, name string, version string) error
}

// ArchiveKey is the object key of one crate archive.
func ArchiveKey(name string, version string) string {
	return fmt.Sprintf("crates/%s/%s-%s.crate", name, name, version)
}
