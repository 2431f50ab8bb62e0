package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/labflowhq/labflow/internal/twilioclient"
)

func TestPipelineStoresMediaDurably(t *testing.T) {
	scratchDir := t.TempDir()
	uploadDir := t.TempDir()

	fetcher := twilioclient.NewMockClient()
	fetcher.MediaContent = []byte("%PDF-1.4 fake report")

	objects, err := NewDirStore(uploadDir, "https://cdn.example.com/uploads")
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	pipeline := NewPipeline(fetcher, objects, scratchDir)

	url, err := pipeline.Store(context.Background(), "https://api.twilio.com/media/ME123", "application/pdf")
	if err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	if !strings.HasPrefix(url, "https://cdn.example.com/uploads/") {
		t.Errorf("url = %q, want cdn prefix", url)
	}
	if !strings.HasSuffix(url, ".pdf") {
		t.Errorf("url = %q, want .pdf extension from content type", url)
	}

	// The durable copy carries the fetched bytes.
	name := url[strings.LastIndex(url, "/")+1:]
	data, err := os.ReadFile(filepath.Join(uploadDir, name))
	if err != nil {
		t.Fatalf("failed to read stored file: %v", err)
	}
	if string(data) != "%PDF-1.4 fake report" {
		t.Errorf("stored content mismatch: %q", data)
	}

	// The scratch copy is gone.
	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		t.Fatalf("failed to read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch dir should be empty, found %d entries", len(entries))
	}
}

func TestPipelineFetchFailure(t *testing.T) {
	fetcher := twilioclient.NewMockClient()
	fetcher.MediaErr = errors.New("gateway timeout")

	objects, err := NewDirStore(t.TempDir(), "https://cdn.example.com/uploads")
	if err != nil {
		t.Fatalf("NewDirStore failed: %v", err)
	}
	pipeline := NewPipeline(fetcher, objects, t.TempDir())

	if _, err := pipeline.Store(context.Background(), "https://api.twilio.com/media/ME123", "image/jpeg"); err == nil {
		t.Fatal("expected error when media download fails")
	}
}

func TestPipelineUploadFailureCleansScratch(t *testing.T) {
	scratchDir := t.TempDir()

	fetcher := twilioclient.NewMockClient()
	fetcher.MediaContent = []byte("bytes")

	pipeline := NewPipeline(fetcher, failingObjectStore{}, scratchDir)

	if _, err := pipeline.Store(context.Background(), "https://api.twilio.com/media/ME123", "image/png"); err == nil {
		t.Fatal("expected error when upload fails")
	}

	entries, err := os.ReadDir(scratchDir)
	if err != nil {
		t.Fatalf("failed to read scratch dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("scratch file should be removed on failure, found %d entries", len(entries))
	}
}

type failingObjectStore struct{}

func (failingObjectStore) Upload(_ context.Context, _, _ string) (string, error) {
	return "", errors.New("bucket unavailable")
}

// capturingS3 records PutObject inputs.
type capturingS3 struct {
	inputs []*s3.PutObjectInput
	err    error
}

func (c *capturingS3) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if c.err != nil {
		return nil, c.err
	}
	c.inputs = append(c.inputs, params)
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreUpload(t *testing.T) {
	localPath := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(localPath, []byte("pdf bytes"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	client := &capturingS3{}
	store := NewS3StoreFromClient(client, "labflow-media", "ap-south-1")

	url, err := store.Upload(context.Background(), localPath, "application/pdf")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}
	want := "https://labflow-media.s3.ap-south-1.amazonaws.com/uploads/report.pdf"
	if url != want {
		t.Errorf("url = %q, want %q", url, want)
	}

	if len(client.inputs) != 1 {
		t.Fatalf("expected 1 PutObject call, got %d", len(client.inputs))
	}
	in := client.inputs[0]
	if *in.Bucket != "labflow-media" {
		t.Errorf("Bucket = %s, want labflow-media", *in.Bucket)
	}
	if *in.Key != "uploads/report.pdf" {
		t.Errorf("Key = %s, want uploads/report.pdf", *in.Key)
	}
	if *in.ContentType != "application/pdf" {
		t.Errorf("ContentType = %s, want application/pdf", *in.ContentType)
	}
}

func TestS3StoreUploadFailure(t *testing.T) {
	localPath := filepath.Join(t.TempDir(), "report.pdf")
	if err := os.WriteFile(localPath, []byte("pdf bytes"), 0644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	store := NewS3StoreFromClient(&capturingS3{err: errors.New("access denied")}, "labflow-media", "ap-south-1")
	if _, err := store.Upload(context.Background(), localPath, ""); err == nil {
		t.Fatal("expected error from failing client")
	}
}

func TestExtensionFor(t *testing.T) {
	tests := []struct {
		contentType string
		want        string
	}{
		{"application/pdf", ".pdf"},
		{"image/jpeg", ".jpeg"},
		{"image/png", ".png"},
		{"", ".bin"},
		{"garbage", ".bin"},
	}

	for _, tt := range tests {
		if got := extensionFor(tt.contentType); got != tt.want {
			t.Errorf("extensionFor(%q) = %s, want %s", tt.contentType, got, tt.want)
		}
	}
}
