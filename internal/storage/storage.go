// Package storage holds the blob backends. Blobs live in a flat namespace
// keyed by opaque storage names; ownership is enforced by the metadata
// layer, never by where a blob is placed.
package storage

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBlobNotFound is returned when no blob exists under a name.
	ErrBlobNotFound = errors.New("blob not found")
	// ErrBlobExists is returned by Put when the name is already taken.
	// Backends never overwrite an existing blob.
	ErrBlobExists = errors.New("blob already exists")
)

// validName rejects names that could escape the flat namespace.
func validName(name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid blob name %q", name)
	}
	return nil
}
