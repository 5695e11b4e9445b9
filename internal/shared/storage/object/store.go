package object

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned when a reference does not resolve to an object.
var ErrNotFound = errors.New("object not found")

// Object describes a stored binary.
type Object struct {
	// Ref locates the object for reads and URL generation.
	Ref string
	// DeleteHandle removes the object.
	DeleteHandle string
	SizeBytes    int64
	ContentType  string
}

// ObjectStore defines the contract for saving and retrieving binary objects.
type ObjectStore interface {
	Put(ctx context.Context, userID, fileName, contentType string, r io.Reader) (Object, error)
	Open(ctx context.Context, ref string) (io.ReadCloser, error)
	Delete(ctx context.Context, deleteHandle string) error
	// URL returns a location clients can be redirected to for downloading ref.
	URL(ctx context.Context, ref string, ttl time.Duration) (string, error)
}
