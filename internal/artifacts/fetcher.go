package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxArtifactSize bounds a single result download (64 MiB covers the
// largest video outputs the providers return).
const maxArtifactSize = 64 << 20

// Fetcher downloads provider result media and persists it into the artifact
// store under a fresh UUID key.
type Fetcher struct {
	storage    ObjectStorage
	httpClient *http.Client
	logger     *zap.Logger
}

// NewFetcher creates a new result media fetcher.
func NewFetcher(storage ObjectStorage, timeout time.Duration, logger *zap.Logger) *Fetcher {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Fetcher{
		storage: storage,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("artifact_fetcher"),
	}
}

// FetchAndStore downloads the media at remoteURL and stores it, returning
// the stored artifact's key and public URL.
func (f *Fetcher) FetchAndStore(ctx context.Context, remoteURL string) (string, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return "", "", fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", "", fmt.Errorf("failed to download result media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", "", fmt.Errorf("failed to download result media: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	key := uuid.New().String() + extensionFor(contentType)

	// Size -1 streams without knowing the length up front; the capped
	// reader then fails the upload mid-stream if the limit is crossed.
	size := resp.ContentLength
	if size > maxArtifactSize {
		return "", "", fmt.Errorf("result media too large: %d bytes", size)
	}
	body := &cappedReader{r: resp.Body, remaining: maxArtifactSize + 1}

	if _, err := f.storage.Upload(ctx, key, body, size, contentType); err != nil {
		if errors.Is(err, errArtifactTooLarge) {
			return "", "", fmt.Errorf("result media too large: exceeds %d bytes", maxArtifactSize)
		}
		return "", "", err
	}

	publicURL, err := f.storage.PublicURL(ctx, key)
	if err != nil {
		return "", "", err
	}

	f.logger.Debug("Result media stored",
		zap.String("key", key),
		zap.String("source", remoteURL),
	)
	return key, publicURL, nil
}

var errArtifactTooLarge = errors.New("artifact exceeds size limit")

// cappedReader yields at most remaining bytes, then returns
// errArtifactTooLarge instead of io.EOF. Callers size remaining one byte
// past the real limit so an exact-limit source still drains cleanly.
type cappedReader struct {
	r         io.Reader
	remaining int64
}

func (c *cappedReader) Read(p []byte) (int, error) {
	if c.remaining <= 0 {
		return 0, errArtifactTooLarge
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if c.remaining <= 0 {
		return n, errArtifactTooLarge
	}
	return n, err
}

func extensionFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "audio/mpeg":
		return ".mp3"
	default:
		return ""
	}
}
