package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrNotFound is returned when a blob does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// BlobStore is an abstraction for reading and writing immutable blobs.
type BlobStore interface {
	// Open opens a blob for reading.
	Open(ctx context.Context, name string) (Blob, error)
	// Create creates a blob for streaming writes. The blob becomes visible
	// when Close returns without error.
	Create(ctx context.Context, name string) (WritableBlob, error)
	// Put writes a blob atomically.
	Put(ctx context.Context, name string, data []byte) error
	// Delete removes a blob. Deleting a missing blob is not an error.
	Delete(ctx context.Context, name string) error
	// List returns the sorted names of blobs starting with prefix.
	List(ctx context.Context, prefix string) ([]string, error)
}

// Blob is a read-only handle to a data blob.
type Blob interface {
	io.Closer
	// ReadAt reads len(p) bytes starting at off.
	ReadAt(ctx context.Context, p []byte, off int64) (int, error)
	// ReadRange returns a reader over length bytes starting at off.
	ReadRange(ctx context.Context, off, length int64) (io.ReadCloser, error)
	// Size returns the size of the blob in bytes.
	Size() int64
}

// WritableBlob is a handle for streaming writes.
type WritableBlob interface {
	io.WriteCloser
	// Sync flushes buffered data to durable storage where supported.
	Sync() error
}

// Mappable is an optional interface for Blobs that support memory mapping.
type Mappable interface {
	// Bytes returns the underlying byte slice.
	// The slice is valid until the Blob is closed.
	Bytes() ([]byte, error)
}

// View opens name and calls fn with its full content. The slice is only
// valid during fn. Mappable blobs are passed without copying.
func View(ctx context.Context, store BlobStore, name string, fn func(data []byte) error) (err error) {
	blob, err := store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := blob.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if m, ok := blob.(Mappable); ok {
		data, err := m.Bytes()
		if err != nil {
			return err
		}
		return fn(data)
	}

	data, err := readAll(ctx, blob)
	if err != nil {
		return err
	}
	return fn(data)
}

// ReadAll returns a copy of the full content of name.
func ReadAll(ctx context.Context, store BlobStore, name string) ([]byte, error) {
	var out []byte
	err := View(ctx, store, name, func(data []byte) error {
		out = append([]byte(nil), data...)
		return nil
	})
	return out, err
}

func readAll(ctx context.Context, blob Blob) ([]byte, error) {
	size := blob.Size()
	if size == 0 {
		return []byte{}, nil
	}

	rc, err := blob.ReadRange(ctx, 0, size)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rc.Close() }()

	data := make([]byte, size)
	if _, err := io.ReadFull(rc, data); err != nil {
		return nil, fmt.Errorf("blobstore: read %d bytes: %w", size, err)
	}
	return data, nil
}

// WriteTo streams a blob through fn and closes it. On failure the blob is
// closed and the error from fn is returned; partial content may remain on
// backends that cannot abort.
func WriteTo(ctx context.Context, store BlobStore, name string, fn func(w io.Writer) error) error {
	wb, err := store.Create(ctx, name)
	if err != nil {
		return err
	}

	if err := fn(wb); err != nil {
		if a, ok := wb.(interface{ Abort() error }); ok {
			_ = a.Abort()
		} else {
			_ = wb.Close()
		}
		return err
	}
	if err := wb.Sync(); err != nil {
		_ = wb.Close()
		return err
	}
	return wb.Close()
}

// IsNotFound reports whether err means a blob is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
