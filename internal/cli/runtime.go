package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/hupe1980/rescache"
	"github.com/hupe1980/rescache/blobstore"
	miniostore "github.com/hupe1980/rescache/blobstore/minio"
	s3store "github.com/hupe1980/rescache/blobstore/s3"
	"github.com/hupe1980/rescache/internal/cache"
	"github.com/hupe1980/rescache/loader"
	"github.com/hupe1980/rescache/resource"
)

// runtime is the wired stack behind a command.
type runtime struct {
	cfg     Config
	logger  *rescache.Logger
	rc      *resource.Controller
	store   blobstore.BlobStore
	loader  *loader.BlobLoader
	manager *rescache.Manager
	metrics *rescache.BasicMetricsCollector
}

func newLogger(opts *RootOptions, level slog.Level) *rescache.Logger {
	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level}
	if opts.Format == "json" {
		return rescache.NewLogger(slog.NewJSONHandler(w, hopts))
	}
	return rescache.NewLogger(slog.NewTextHandler(w, hopts))
}

func openStore(ctx context.Context, cfg Config, rc *resource.Controller) (blobstore.BlobStore, error) {
	sc := cfg.Store

	var remote blobstore.BlobStore
	switch sc.Type {
	case "", "local":
		return blobstore.NewLocalStore(cfg.Root), nil
	case "s3":
		opts := []s3store.Option{s3store.WithPrefix(sc.Prefix)}
		if sc.Region != "" {
			opts = append(opts, s3store.WithRegion(sc.Region))
		}
		if sc.Endpoint != "" {
			opts = append(opts, s3store.WithEndpoint(sc.Endpoint))
		}
		s, err := s3store.New(ctx, sc.Bucket, opts...)
		if err != nil {
			return nil, err
		}
		remote = s
	case "minio":
		s, err := miniostore.New(sc.Endpoint, sc.Bucket,
			miniostore.WithPrefix(sc.Prefix),
			miniostore.WithRegion(sc.Region),
			miniostore.WithStaticCredentials(sc.AccessKey, sc.SecretKey),
			miniostore.WithSecure(sc.Secure),
		)
		if err != nil {
			return nil, err
		}
		remote = s
	default:
		return nil, fmt.Errorf("unknown store type %q", sc.Type)
	}

	if sc.BlockCacheBytes <= 0 {
		return remote, nil
	}
	return blobstore.NewCachingStore(remote, cache.NewShardedLRU(sc.BlockCacheBytes, rc), blobstore.DefaultBlockSize), nil
}

func newRuntime(ctx context.Context, opts *RootOptions, cfg Config) (*runtime, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := newLogger(opts, level)

	rc := resource.NewController(resource.Config{
		MemoryLimitBytes:     cfg.MemoryLimit,
		MaxBackgroundReloads: cfg.MaxReloads,
		IOLimitBytesPerSec:   cfg.IOLimit,
	})

	store, err := openStore(ctx, cfg, rc)
	if err != nil {
		return nil, err
	}

	ldr := loader.New(store, loader.Config{
		CacheBytes: cfg.CacheBytes,
		Controller: rc,
		Logger:     logger.Logger,
	})
	if err := ldr.Refresh(ctx); err != nil {
		_ = ldr.Close()
		return nil, err
	}

	metrics := &rescache.BasicMetricsCollector{}
	mgr, err := rescache.New(ldr,
		rescache.WithWorkers(cfg.Workers),
		rescache.WithController(rc),
		rescache.WithLogger(logger),
		rescache.WithMetricsCollector(metrics),
		rescache.WithSkipUnchanged(),
	)
	if err != nil {
		_ = ldr.Close()
		return nil, err
	}

	return &runtime{
		cfg:     cfg,
		logger:  logger,
		rc:      rc,
		store:   store,
		loader:  ldr,
		manager: mgr,
		metrics: metrics,
	}, nil
}

func (r *runtime) Close() error {
	err := r.manager.Close()
	if cerr := r.loader.Close(); err == nil {
		err = cerr
	}
	return err
}
