package media

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Store uploads report media to an S3 bucket under uploads/.
type S3Store struct {
	bucket   string
	region   string
	s3Client S3API
}

// NewS3Store creates an S3-backed object store using the default AWS
// credential chain.
func NewS3Store(ctx context.Context, bucket string) (*S3Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket not set")
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		slog.Error("S3Store failed to load AWS config", "error", err)
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3Store{
		bucket:   bucket,
		region:   cfg.Region,
		s3Client: s3.NewFromConfig(cfg),
	}, nil
}

// NewS3StoreFromClient wraps an existing client; used by tests.
func NewS3StoreFromClient(client S3API, bucket, region string) *S3Store {
	return &S3Store{bucket: bucket, region: region, s3Client: client}
}

// Upload puts the file into the bucket and returns its public object URL.
func (s *S3Store) Upload(ctx context.Context, localPath, contentType string) (string, error) {
	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer f.Close()

	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := "uploads/" + filepath.Base(localPath)

	_, err = s.s3Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		slog.Error("S3Store upload failed", "error", err, "key", key)
		return "", fmt.Errorf("failed to upload %s to s3: %w", key, err)
	}

	url := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
	slog.Debug("S3Store upload succeeded", "key", key, "url", url)
	return url, nil
}

// DirStore is a filesystem-backed object store for local development and tests.
type DirStore struct {
	dir     string
	baseURL string
}

// NewDirStore creates an object store rooted at dir. Uploaded files are
// addressable under baseURL.
func NewDirStore(dir, baseURL string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &DirStore{dir: dir, baseURL: baseURL}, nil
}

// Upload copies the file into the store directory and returns its URL.
func (d *DirStore) Upload(ctx context.Context, localPath, contentType string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", localPath, err)
	}
	name := filepath.Base(localPath)
	if err := os.WriteFile(filepath.Join(d.dir, name), data, 0644); err != nil {
		return "", fmt.Errorf("failed to store %s: %w", name, err)
	}
	return d.baseURL + "/" + name, nil
}
