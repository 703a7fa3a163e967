package app

import (
	"context"
	"time"
)

// ObjectStore is the blob container holding the event index and the event
// images. Names are container-relative, folders are "/" separated prefixes.
type ObjectStore interface {
	// Get returns the content of name, or an error wrapping ErrObjectNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
	// List returns every object whose name starts with prefix.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	// SignedURL returns a read-only URL for name valid for ttl.
	SignedURL(ctx context.Context, name string, ttl time.Duration) (string, error)
	// Put stores data under name and returns the object URL.
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}
