package port

import (
	"context"
	"io"
	"time"
)

type PutObjectInput struct {
	Key         string
	Body        io.Reader
	Size        int64
	ContentType string
	OnProgress  func(loaded, total int64)
}

type ObjectInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ObjectStorage stores clip media and returns publicly dereferenceable URLs.
type ObjectStorage interface {
	Put(ctx context.Context, in PutObjectInput) (string, error)
	Delete(ctx context.Context, key string) error
	// ListOlderThan lists objects under prefix last modified before the cutoff.
	ListOlderThan(ctx context.Context, prefix string, before time.Time) ([]ObjectInfo, error)
}
