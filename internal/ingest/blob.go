package ingest

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/clinvera/clinvera/pkg/httperr"
)

// BlobStore holds uploaded document bytes under opaque keys.
type BlobStore interface {
	Put(ctx context.Context, key string, contentType string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// --- minio / S3 ---

type minioBlobStore struct {
	client *minio.Client
	bucket string
}

// NewMinioBlobStore connects to the S3-compatible endpoint named by
// BLOB_ENDPOINT and ensures the bucket exists.
func NewMinioBlobStore(ctx context.Context) (BlobStore, error) {
	endpoint := getenvDefault("BLOB_ENDPOINT", "127.0.0.1:9000")
	bucket := getenvDefault("BLOB_BUCKET", "clinvera-documents")
	useSSL := os.Getenv("BLOB_USE_SSL") == "1"

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(os.Getenv("BLOB_ACCESS_KEY"), os.Getenv("BLOB_SECRET_KEY"), ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, err
	}

	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	return &minioBlobStore{client: client, bucket: bucket}, nil
}

func (s *minioBlobStore) Put(ctx context.Context, key string, contentType string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (s *minioBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// --- memory ---

type memBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemBlobStore() BlobStore {
	return &memBlobStore{blobs: make(map[string][]byte)}
}

func (s *memBlobStore) Put(_ context.Context, key string, _ string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[key] = append([]byte(nil), data...)
	return nil
}

func (s *memBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[key]
	if !ok {
		return nil, httperr.NewNotFound("blob not found: " + key)
	}
	return append([]byte(nil), b...), nil
}
