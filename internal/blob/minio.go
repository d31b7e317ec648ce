package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"medcatalog/api/internal/catalog"
	"medcatalog/api/internal/logger"
	"medcatalog/api/internal/metrics"
)

type MinioConfig struct {
	Endpoint      string
	AccessKeyID   string
	SecretKey     string
	Region        string
	UseSSL        bool
	BucketPrefix  string
	PublicBaseURL string
}

type MinioStore struct {
	client  *minio.Client
	cfg     MinioConfig
	buckets map[catalog.Kind]string
	log     *logger.Logger
}

func NewMinioStore(cfg MinioConfig, log *logger.Logger) (*MinioStore, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create s3 client: %w", err)
	}
	buckets := make(map[catalog.Kind]string, len(catalog.Kinds))
	for _, kind := range catalog.Kinds {
		buckets[kind] = BucketName(cfg.BucketPrefix, kind)
	}
	return &MinioStore{client: client, cfg: cfg, buckets: buckets, log: log.With("component", "blob")}, nil
}

// BucketName is the bucket holding assets of kind.
func BucketName(prefix string, kind catalog.Kind) string {
	if prefix == "" {
		return string(kind)
	}
	return prefix + "-" + string(kind)
}

func (s *MinioStore) bucket(kind catalog.Kind) (string, error) {
	name, ok := s.buckets[kind]
	if !ok {
		return "", fmt.Errorf("%w: unknown kind %q", catalog.ErrInvalidInput, kind)
	}
	return name, nil
}

func observe(op string, start time.Time, err error) {
	metrics.RecordBlobOperation(op, metrics.Status(err), time.Since(start).Seconds())
}

// EnsureBuckets creates any missing kind bucket.
func (s *MinioStore) EnsureBuckets(ctx context.Context) error {
	for _, kind := range catalog.Kinds {
		name := s.buckets[kind]
		exists, err := s.client.BucketExists(ctx, name)
		if err != nil {
			return fmt.Errorf("check bucket %s: %w", name, err)
		}
		if exists {
			continue
		}
		if err := s.client.MakeBucket(ctx, name, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
			return fmt.Errorf("create bucket %s: %w", name, err)
		}
		s.log.Info("created bucket", "bucket", name)
	}
	return nil
}

func (s *MinioStore) List(ctx context.Context, kind catalog.Kind) (objects []Object, err error) {
	start := time.Now()
	defer func() { observe("list", start, err) }()
	name, err := s.bucket(kind)
	if err != nil {
		return nil, err
	}

	objects = make([]Object, 0)
	for info := range s.client.ListObjects(ctx, name, minio.ListObjectsOptions{Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list %s: %w", name, info.Err)
		}
		objects = append(objects, Object{
			Key:          info.Key,
			Size:         info.Size,
			LastModified: info.LastModified.UTC(),
			ContentType:  info.ContentType,
		})
	}
	return objects, nil
}

func (s *MinioStore) Put(ctx context.Context, kind catalog.Kind, key string, r io.Reader, size int64, contentType string) (err error) {
	start := time.Now()
	defer func() { observe("put", start, err) }()
	name, err := s.bucket(kind)
	if err != nil {
		return err
	}
	if _, err := s.client.PutObject(ctx, name, key, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("put %s/%s: %w", name, key, err)
	}
	return nil
}

func (s *MinioStore) Stat(ctx context.Context, kind catalog.Kind, key string) (obj Object, err error) {
	start := time.Now()
	defer func() { observe("stat", start, err) }()
	name, err := s.bucket(kind)
	if err != nil {
		return Object{}, err
	}
	info, err := s.client.StatObject(ctx, name, key, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("stat %s/%s: %w", name, key, err)
	}
	return Object{Key: info.Key, Size: info.Size, LastModified: info.LastModified.UTC(), ContentType: info.ContentType}, nil
}

func (s *MinioStore) Delete(ctx context.Context, kind catalog.Kind, key string) (err error) {
	start := time.Now()
	defer func() { observe("delete", start, err) }()
	name, err := s.bucket(kind)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, name, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s/%s: %w", name, key, err)
	}
	return nil
}

func (s *MinioStore) URL(kind catalog.Kind, key string) string {
	return PublicURL(s.cfg.PublicBaseURL, kind, key)
}

func (s *MinioStore) Ping(ctx context.Context) error {
	name := s.buckets[catalog.KindMachines]
	if _, err := s.client.BucketExists(ctx, name); err != nil {
		return fmt.Errorf("ping s3: %w", err)
	}
	return nil
}

// IsNotFound reports whether err is a missing-object error from this package.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
