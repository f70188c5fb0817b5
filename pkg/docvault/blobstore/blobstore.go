// Package blobstore keeps uploaded file contents behind opaque references.
// Clients only ever see a reference, never a filesystem path.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

var (
	ErrNotFound   = errors.New("blobstore: not found")
	ErrInvalidRef = errors.New("blobstore: invalid reference")
	ErrTooLarge   = errors.New("blobstore: content too large")
)

// Store saves and retrieves file contents by reference
type Store interface {
	Put(ctx context.Context, r io.Reader, maxBytes int64) (ref string, size int64, err error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, ref string) error
}

// Local stores blobs as files in a single directory, named by a random uuid
type Local struct {
	dir string
}

// NewLocal creates the directory if needed and returns a store rooted there
func NewLocal(dir string) (*Local, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create blob dir: %w", err)
	}
	return &Local{dir: dir}, nil
}

// path maps a reference to its file. Only canonical uuids are accepted, so a
// reference can never name anything outside the directory.
func (l *Local) path(ref string) (string, error) {
	id, err := uuid.Parse(ref)
	if err != nil || id.String() != ref {
		return "", ErrInvalidRef
	}
	return filepath.Join(l.dir, ref), nil
}

// Put copies at most maxBytes from r into a new blob. A non-positive maxBytes
// means no limit.
func (l *Local) Put(ctx context.Context, r io.Reader, maxBytes int64) (string, int64, error) {
	if err := ctx.Err(); err != nil {
		return "", 0, err
	}
	ref := uuid.NewString()
	p, _ := l.path(ref)

	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", 0, fmt.Errorf("create blob: %w", err)
	}

	src := r
	if maxBytes > 0 {
		src = io.LimitReader(r, maxBytes+1)
	}
	size, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && maxBytes > 0 && size > maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(p)
		if errors.Is(err, ErrTooLarge) {
			return "", 0, err
		}
		return "", 0, fmt.Errorf("write blob: %w", err)
	}
	return ref, size, nil
}

// Open returns a reader for the blob
func (l *Local) Open(ctx context.Context, ref string) (io.ReadCloser, error) {
	p, err := l.path(ref)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("open blob: %w", err)
	}
	return f, nil
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (l *Local) Delete(ctx context.Context, ref string) error {
	p, err := l.path(ref)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}
