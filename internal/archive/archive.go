// Package archive turns file trees into encrypted payload blobs and back.
// The container layer treats the payload as opaque; this package defines
// the collaborator interface and ships a default implementation.
package archive

import (
	"context"
	"errors"
	"io"

	"timelocker/internal/progress"
)

// ErrBadPassword means the password could not decrypt the payload. It is
// distinct from ErrCorrupted wherever the format allows telling them apart.
var ErrBadPassword = errors.New("wrong password")

// ErrCorrupted means the payload failed integrity checks under a password
// that verified correctly.
var ErrCorrupted = errors.New("archive corrupted")

// Archiver seals file trees into encrypted byte streams and unseals them
// into a destination directory.
//
// Both operations poll the emitter's tracker for cancellation at every file
// boundary and return progress.ErrCancelled after unwinding cleanly. A nil
// emitter disables progress reporting.
type Archiver interface {
	// Seal archives and encrypts sources, streaming the sealed bytes to w.
	Seal(ctx context.Context, w io.Writer, sources []string, password string, em *progress.Emitter) error

	// Unseal decrypts and extracts a sealed stream into destDir. A wrong
	// password surfaces as ErrBadPassword, other damage as ErrCorrupted.
	Unseal(ctx context.Context, r io.Reader, password string, destDir string, em *progress.Emitter) error
}
