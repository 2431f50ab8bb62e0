// Package media moves webhook attachments into durable object storage.
//
// Inbound WhatsApp media lives behind a transient, authenticated gateway
// URL. Pipeline.Store downloads the attachment to a scratch file, uploads
// it to the configured object store, and removes the scratch file whether
// or not the upload succeeded.
package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/labflowhq/labflow/internal/twilioclient"
)

// ObjectStore persists a local file and returns its public reference URL.
type ObjectStore interface {
	Upload(ctx context.Context, localPath, contentType string) (string, error)
}

// Pipeline fetches transient gateway media and re-homes it durably.
type Pipeline struct {
	fetcher    twilioclient.Sender
	objects    ObjectStore
	scratchDir string
}

// NewPipeline creates a media pipeline. scratchDir defaults to os.TempDir().
func NewPipeline(fetcher twilioclient.Sender, objects ObjectStore, scratchDir string) *Pipeline {
	if scratchDir == "" {
		scratchDir = os.TempDir()
	}
	return &Pipeline{fetcher: fetcher, objects: objects, scratchDir: scratchDir}
}

// Store downloads the attachment at mediaURL and uploads it to the object
// store, returning the durable public URL. The scratch copy is deleted
// before returning regardless of the upload outcome.
func (p *Pipeline) Store(ctx context.Context, mediaURL, contentType string) (string, error) {
	body, err := p.fetcher.FetchMedia(ctx, mediaURL)
	if err != nil {
		return "", fmt.Errorf("failed to download media: %w", err)
	}
	defer body.Close()

	filename := fmt.Sprintf("whatsapp-media-%d%s", time.Now().UnixNano(), extensionFor(contentType))
	localPath := filepath.Join(p.scratchDir, filename)

	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create scratch file: %w", err)
	}
	defer func() {
		if removeErr := os.Remove(localPath); removeErr != nil {
			slog.Warn("Media scratch file cleanup failed", "error", removeErr, "path", localPath)
		} else {
			slog.Debug("Media scratch file removed", "path", localPath)
		}
	}()

	if _, err := io.Copy(f, body); err != nil {
		f.Close()
		return "", fmt.Errorf("failed to write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close scratch file: %w", err)
	}
	slog.Debug("Media saved locally", "path", localPath)

	url, err := p.objects.Upload(ctx, localPath, contentType)
	if err != nil {
		return "", fmt.Errorf("failed to upload media: %w", err)
	}
	slog.Info("Media stored durably", "url", url)
	return url, nil
}

// extensionFor derives a file extension from a MIME content type.
func extensionFor(contentType string) string {
	if i := strings.Index(contentType, "/"); i >= 0 && i+1 < len(contentType) {
		return "." + contentType[i+1:]
	}
	return ".bin"
}
