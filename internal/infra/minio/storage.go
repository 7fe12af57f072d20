package minio

import (
	"context"
	"fmt"
	"strings"
	"time"

	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/qwerty-development/car-marketplace-sub003/internal/domain/port"
)

type Storage struct {
	client        *miniogo.Client
	bucket        string
	publicBaseURL string
	publicRead    bool
	keyPrefix     string
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	// PublicBaseURL prefixes object keys in returned URLs. When empty the
	// path-style endpoint URL is used, which is only readable by anonymous
	// clients when PublicRead is set.
	PublicBaseURL string
	// PublicRead makes EnsureBucket grant anonymous s3:GetObject on
	// KeyPrefix* so returned URLs can be fetched directly.
	PublicRead bool
	KeyPrefix  string
}

func NewStorage(cfg StorageConfig) (*Storage, error) {
	client, err := miniogo.New(cfg.Endpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Storage{
		client:        client,
		bucket:        cfg.Bucket,
		publicBaseURL: cfg.PublicBaseURL,
		publicRead:    cfg.PublicRead,
		keyPrefix:     cfg.KeyPrefix,
	}, nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if !exists {
		if err := s.client.MakeBucket(ctx, s.bucket, miniogo.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", s.bucket, err)
		}
	}
	if s.publicRead {
		if err := s.client.SetBucketPolicy(ctx, s.bucket, readPolicy(s.bucket, s.keyPrefix)); err != nil {
			return fmt.Errorf("set read policy on %s: %w", s.bucket, err)
		}
	}
	return nil
}

// readPolicy allows anonymous GetObject below prefix only; listing stays private.
func readPolicy(bucket, prefix string) string {
	return fmt.Sprintf(`{"Version":"2012-10-17","Statement":[{"Effect":"Allow","Principal":{"AWS":["*"]},"Action":["s3:GetObject"],"Resource":["arn:aws:s3:::%s/%s*"]}]}`,
		bucket, prefix)
}

// Ping is used by the readiness probe.
func (s *Storage) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

// Put sends the object in a single request; multipart is disabled so the
// upload is all-or-nothing and progress callbacks arrive in order.
func (s *Storage) Put(ctx context.Context, in port.PutObjectInput) (string, error) {
	opts := miniogo.PutObjectOptions{
		ContentType:      in.ContentType,
		DisableMultipart: true,
	}
	if in.OnProgress != nil {
		opts.Progress = &progressReader{total: in.Size, fn: in.OnProgress}
	}

	if _, err := s.client.PutObject(ctx, s.bucket, in.Key, in.Body, in.Size, opts); err != nil {
		return "", fmt.Errorf("put object %s: %w", in.Key, err)
	}
	return s.PublicURL(in.Key), nil
}

func (s *Storage) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, key, miniogo.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("remove object %s: %w", key, err)
	}
	return nil
}

func (s *Storage) ListOlderThan(ctx context.Context, prefix string, before time.Time) ([]port.ObjectInfo, error) {
	var out []port.ObjectInfo
	for obj := range s.client.ListObjects(ctx, s.bucket, miniogo.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, fmt.Errorf("list objects: %w", obj.Err)
		}
		if obj.LastModified.Before(before) {
			out = append(out, port.ObjectInfo{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified})
		}
	}
	return out, nil
}

func (s *Storage) PublicURL(key string) string {
	if s.publicBaseURL != "" {
		return strings.TrimRight(s.publicBaseURL, "/") + "/" + key
	}
	u := s.client.EndpointURL()
	return fmt.Sprintf("%s://%s/%s/%s", u.Scheme, u.Host, s.bucket, key)
}

// progressReader receives a Read call for every chunk minio sends; it never
// produces data.
type progressReader struct {
	total  int64
	loaded int64
	fn     func(loaded, total int64)
}

func (p *progressReader) Read(b []byte) (int, error) {
	p.loaded += int64(len(b))
	p.fn(p.loaded, p.total)
	return len(b), nil
}
