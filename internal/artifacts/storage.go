package artifacts

import (
	"context"
	"io"
	"time"
)

// ObjectInfo contains metadata about a stored artifact.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	ContentType  string    `json:"content_type"`
	ETag         string    `json:"etag"`
}

// ObjectStorage defines the interface for the generated-media backend.
// Artifacts are write-once under UUID keys, so there is no update path.
type ObjectStorage interface {
	// Upload stores an artifact under the given key and returns its metadata.
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) (*ObjectInfo, error)

	// Download retrieves an artifact by key.
	Download(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)

	// Delete removes an artifact by key.
	Delete(ctx context.Context, key string) error

	// PublicURL returns a URL a client can fetch the artifact from.
	PublicURL(ctx context.Context, key string) (string, error)

	// EnsureBucket checks that the backing bucket exists, creating it if needed.
	EnsureBucket(ctx context.Context) error
}
