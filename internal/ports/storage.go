package ports

import (
	"context"
	"io"
)

type PutObjectInput struct {
	ObjectKey   string
	ContentType string
	Reader      io.Reader
	Size        int64
	// Upsert replaces an existing object with the same key instead of failing.
	Upsert bool
}

type PutObjectOutput struct {
	// localfs and supabase echo the requested key.
	// gdrive returns the Drive fileId, which PublicURL and GetObject expect.
	ObjectKey string
	Size      int64
}

// StorageProvider is implemented by localfs, gdrive and supabase.
type StorageProvider interface {
	Provider() string

	PutObject(ctx context.Context, in PutObjectInput) (PutObjectOutput, error)
	GetObject(ctx context.Context, objectKey string) (rc io.ReadCloser, contentType string, size int64, err error)

	// PublicURL returns an address that resolves without credentials.
	PublicURL(ctx context.Context, objectKey string) (string, error)
}

// Uploader pushes a finished local file to storage and reports where the
// public can fetch it.
type Uploader interface {
	Upload(ctx context.Context, localPath, remoteName string) (string, error)
}
