package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"slices"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/hupe1980/rescache/blobstore"
	"github.com/hupe1980/rescache/model"
)

// ErrModified is returned by a blob read when the object was replaced after
// Open. Reopen the blob to read the new content.
var ErrModified = errors.New("s3: object modified since open")

// Client is the subset of the S3 API the store needs. *s3.Client satisfies it.
type Client interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// UploadConfig configures the managed uploader used by Put.
type UploadConfig struct {
	// PartSize is the minimum part size for multipart uploads.
	// Default: 8MB
	PartSize int64

	// Concurrency is the number of concurrent part uploads.
	// Default: 5
	Concurrency int
}

func (c UploadConfig) withDefaults() UploadConfig {
	if c.PartSize <= 0 {
		c.PartSize = 8 << 20
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 5
	}
	return c
}

// Store implements blobstore.BlobStore for S3. Object keys are the
// normalized resource names below the store prefix.
type Store struct {
	client   Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewStore creates a store over an existing client.
// rootPrefix is prepended to all keys (e.g. "assets/").
func NewStore(client Client, bucket, rootPrefix string) *Store {
	return NewStoreWithConfig(client, bucket, rootPrefix, UploadConfig{})
}

// NewStoreWithConfig creates a store with custom upload settings. Zero
// fields take their defaults.
func NewStoreWithConfig(client Client, bucket, rootPrefix string, cfg UploadConfig) *Store {
	cfg = cfg.withDefaults()
	return &Store{
		client: client,
		uploader: manager.NewUploader(client, func(u *manager.Uploader) {
			u.PartSize = cfg.PartSize
			u.Concurrency = cfg.Concurrency
		}),
		bucket: bucket,
		prefix: model.NormalizePath(rootPrefix),
	}
}

// Option configures New.
type Option func(*newOptions)

type newOptions struct {
	prefix   string
	region   string
	endpoint string
	upload   UploadConfig
}

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(o *newOptions) { o.prefix = prefix }
}

// WithRegion overrides the region from the default AWS configuration.
func WithRegion(region string) Option {
	return func(o *newOptions) { o.region = region }
}

// WithEndpoint points the client at an S3-compatible endpoint and enables
// path-style addressing.
func WithEndpoint(endpoint string) Option {
	return func(o *newOptions) { o.endpoint = endpoint }
}

// WithUploadConfig sets the managed uploader settings.
func WithUploadConfig(cfg UploadConfig) Option {
	return func(o *newOptions) { o.upload = cfg }
}

// New loads the default AWS configuration and returns a store for bucket.
func New(ctx context.Context, bucket string, opts ...Option) (*Store, error) {
	var o newOptions
	for _, opt := range opts {
		opt(&o)
	}

	var loadOpts []func(*config.LoadOptions) error
	if o.region != "" {
		loadOpts = append(loadOpts, config.WithRegion(o.region))
	}
	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if o.endpoint != "" {
			so.BaseEndpoint = aws.String(o.endpoint)
			so.UsePathStyle = true
		}
	})
	return NewStoreWithConfig(client, bucket, o.prefix, o.upload), nil
}

func (s *Store) key(name string) string {
	return path.Join(s.prefix, model.NormalizePath(name))
}

// name maps an object key back to a resource name. Keys outside the prefix
// and directory markers map to the empty name.
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
	var nf *types.NotFound
	var nsk *types.NoSuchKey
	return errors.As(err, &nf) || errors.As(err, &nsk)
}

func isPreconditionFailed(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "PreconditionFailed"
}

// Open issues a HEAD request for the size and ETag. Reads are range GETs
// pinned to that ETag.
func (s *Store) Open(ctx context.Context, name string) (blobstore.Blob, error) {
	key := s.key(name)
	head, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	switch {
	case isNotFound(err):
		return nil, blobstore.ErrNotFound
	case err != nil:
		return nil, fmt.Errorf("s3: head %s: %w", key, err)
	}

	return &s3Blob{
		store: s,
		key:   key,
		etag:  aws.ToString(head.ETag),
		size:  aws.ToInt64(head.ContentLength),
	}, nil
}

// Put uploads data, switching to multipart above the configured part size.
func (s *Store) Put(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("s3: put %s: %w", key, err)
	}
	return nil
}

// Delete removes an object. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, name string) error {
	key := s.key(name)
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("s3: delete %s: %w", key, err)
	}
	return nil
}

// List returns the sorted names below prefix, following continuation tokens.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	in := &s3.ListObjectsV2Input{Bucket: aws.String(s.bucket)}
	keyPrefix := prefix
	if s.prefix != "" {
		keyPrefix = s.prefix + "/" + prefix
	}
	if keyPrefix != "" {
		in.Prefix = aws.String(keyPrefix)
	}

	var names []string
	pages := s3.NewListObjectsV2Paginator(s.client, in)
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("s3: list: %w", err)
		}
		for _, obj := range page.Contents {
			if n := s.name(aws.ToString(obj.Key)); n != "" && strings.HasPrefix(n, prefix) {
				names = append(names, n)
			}
		}
	}
	slices.Sort(names)
	return names, nil
}

type s3Blob struct {
	store *Store
	key   string
	etag  string
	size  int64
}

func (b *s3Blob) Close() error { return nil }

func (b *s3Blob) Size() int64 { return b.size }

// ReadAt issues one range GET clamped to the object size.
func (b *s3Blob) ReadAt(ctx context.Context, p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 || off >= b.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), b.size-off)

	in := &s3.GetObjectInput{
		Bucket: aws.String(b.store.bucket),
		Key:    aws.String(b.key),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", off, off+want-1)),
	}
	if b.etag != "" {
		in.IfMatch = aws.String(b.etag)
	}

	resp, err := b.store.client.GetObject(ctx, in)
	switch {
	case isNotFound(err):
		return 0, blobstore.ErrNotFound
	case isPreconditionFailed(err):
		return 0, fmt.Errorf("%w: %s", ErrModified, b.key)
	case err != nil:
		return 0, fmt.Errorf("s3: get %s: %w", b.key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.ReadFull(resp.Body, p[:want])
	switch {
	case errors.Is(err, io.ErrUnexpectedEOF):
		return n, io.EOF
	case err != nil:
		return n, fmt.Errorf("s3: read %s: %w", b.key, err)
	case n < len(p):
		return n, io.EOF
	}
	return n, nil
}
