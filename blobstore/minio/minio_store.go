package minio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/hupe1980/rescache/blobstore"
	"github.com/hupe1980/rescache/model"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ErrModified is returned by a blob read when the object was replaced after
// Open.
var ErrModified = errors.New("minio: object modified since open")

// Store implements blobstore.BlobStore for MinIO and S3-compatible storage.
// Object keys are the normalized resource names below the store prefix.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewStore creates a store over an existing client.
// rootPrefix is prepended to all keys (e.g. "assets/").
func NewStore(client *minio.Client, bucket, rootPrefix string) *Store {
	return &Store{
		client: client,
		bucket: bucket,
		prefix: model.NormalizePath(rootPrefix),
	}
}

// Option configures New.
type Option func(*newOptions)

type newOptions struct {
	prefix    string
	region    string
	accessKey string
	secretKey string
	secure    bool
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *newOptions) { o.prefix = prefix }
}

// WithRegion sets the bucket region.
func WithRegion(region string) Option {
	return func(o *newOptions) { o.region = region }
}

// WithStaticCredentials authenticates with a static access key pair.
func WithStaticCredentials(accessKey, secretKey string) Option {
	return func(o *newOptions) {
		o.accessKey = accessKey
		o.secretKey = secretKey
	}
}

// WithSecure enables TLS.
func WithSecure(secure bool) Option {
	return func(o *newOptions) { o.secure = secure }
}

// New connects to endpoint and returns a store for bucket.
func New(endpoint, bucket string, opts ...Option) (*Store, error) {
	var o newOptions
	for _, opt := range opts {
		opt(&o)
	}

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(o.accessKey, o.secretKey, ""),
		Secure: o.secure,
		Region: o.region,
	})
	if err != nil {
		return nil, fmt.Errorf("minio: client for %s: %w", endpoint, err)
	}
	return NewStore(client, bucket, o.prefix), nil
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, model.NormalizePath(name))
}

// name maps an object key back to a resource name. Directory markers map to
// the empty name.
func (s *Store) name(key string) string {
	if strings.HasSuffix(key, "/") {
		return ""
	}
	if s.prefix == "" {
		return key
	}
	rest, ok := strings.CutPrefix(key, s.prefix+"/")
	if !ok {
		return ""
	}
	return rest
}

func isNotFound(err error) bool {
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NotFound":
		return true
	}
	return false
}

// Open stats the object; reads are issued lazily as range requests.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	info, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	switch {
	case isNotFound(err):
		return nil, blobstore.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("minio: stat %s: %w", key, err)
	}
	return &minioBlob{store: s, key: key, etag: info.ETag, size: info.Size}, nil
}

// Put uploads data as one object.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("minio: put %s: %w", key, err)
	}
	return nil
}

// Delete removes an object. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("minio: delete %s: %w", name, err)
	}
	return nil
}

// List returns the sorted names below prefix.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	opts := minio.ListObjectsOptions{Recursive: true}
	if s.prefix != "" {
		opts.Prefix = s.prefix + "/"
	}

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return nil, fmt.Errorf("minio: list: %w", obj.Err)
		}
		if n := s.name(obj.Key); n != "" && strings.HasPrefix(n, prefix) {
			names = append(names, n)
		}
	}
	sort.Strings(names)
	return names, nil
}

type minioBlob struct {
	store *Store
	key   string
	etag  string
	size  int64
}

func (b *minioBlob) Size() int64 {
	return b.size
}

// ReadAt issues one range request clamped to the object size.
func (b *minioBlob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= b.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), b.size-off)

	var opts minio.GetObjectOptions
	if err := opts.SetRange(off, off+want-1); err != nil {
		return 0, err
	}
	if b.etag != "" {
		if err := opts.SetMatchETag(b.etag); err != nil {
			return 0, err
		}
	}
	obj, err := b.store.client.GetObject(ctx, b.store.bucket, b.key, opts)
	if err != nil {
		return 0, fmt.Errorf("minio: get %s: %w", b.key, err)
	}
	defer func() { _ = obj.Close() }()

	// The request is sent on the first read, so server errors surface here.
	n, err := io.ReadFull(obj, p[:want])
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return n, io.EOF
	case minio.ToErrorResponse(err).Code == "PreconditionFailed":
		return n, fmt.Errorf("%w: %s", ErrModified, b.key)
	case isNotFound(err):
		return n, blobstore.ErrNotFound
	case err != nil:
		return n, fmt.Errorf("minio: read %s: %w", b.key, err)
	case int64(len(p)) > want:
		return n, io.EOF
	}
	return n, nil
}

func (b *minioBlob) Close() error {
	return nil
}
