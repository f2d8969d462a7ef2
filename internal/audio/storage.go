package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// Storage persists finished tracks and returns their public URL.
type Storage interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// LocalStorage writes tracks under Dir; the HTTP server serves them at
// BaseURL/audio/<key>.
type LocalStorage struct {
	Dir     string
	BaseURL string
}

func (s *LocalStorage) Put(ctx context.Context, key string, data []byte) (string, error) {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio dir: %w", err)
	}
	path := filepath.Join(s.Dir, filepath.Base(key))
	tmp, err := os.CreateTemp(s.Dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close audio: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("move audio into place: %w", err)
	}
	return strings.TrimRight(s.BaseURL, "/") + "/audio/" + filepath.Base(key), nil
}

// S3Storage uploads tracks to a bucket.
type S3Storage struct {
	svc       s3iface.S3API
	bucket    string
	region    string
	publicURL string
}

// NewS3Storage opens an AWS session for region. publicURL, when set,
// replaces the virtual hosted bucket URL (for a CDN in front of the bucket).
func NewS3Storage(bucket, region, publicURL string) (*S3Storage, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("create aws session: %w", err)
	}
	return &S3Storage{svc: s3.New(sess), bucket: bucket, region: region, publicURL: publicURL}, nil
}

func (s *S3Storage) Put(ctx context.Context, key string, data []byte) (string, error) {
	objectKey := "episodes/" + key
	_, err := s.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String("audio/mpeg"),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s to s3: %w", objectKey, err)
	}
	if s.publicURL != "" {
		return strings.TrimRight(s.publicURL, "/") + "/" + objectKey, nil
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, objectKey), nil
}
