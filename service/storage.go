package service

import (
	"context"
	"errors"
	"io"
)

var (
	// ErrPresignUnsupported is returned by storages that cannot publish a URL
	ErrPresignUnsupported = errors.New("presigned URLs not supported by this storage")
	// ErrFileNotFound is returned by Open for a key that holds no file
	ErrFileNotFound = errors.New("stored file not found")
)

// FileStorage keeps uploaded contract files under tenant/contract/filename keys
type FileStorage interface {
	Save(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete succeeds when the key is already gone
	Delete(ctx context.Context, key string) error
	// PresignedURL returns a time-limited URL a remote service can fetch the file from
	PresignedURL(ctx context.Context, key string) (string, error)
}
