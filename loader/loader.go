package loader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/hupe1980/rescache/blobstore"
	"github.com/hupe1980/rescache/internal/cache"
	"github.com/hupe1980/rescache/internal/compress"
	"github.com/hupe1980/rescache/internal/hash"
	"github.com/hupe1980/rescache/model"
	"github.com/hupe1980/rescache/resource"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrNotFound is returned for hashes that are not indexed.
	ErrNotFound = errors.New("loader: content not found")
	// ErrSizeMismatch is returned by Read when the buffer length differs from Size.
	ErrSizeMismatch = errors.New("loader: buffer size mismatch")
)

// Config configures a BlobLoader. The zero value is usable.
type Config struct {
	// CacheBytes bounds the decoded content cache.
	// 0 selects DefaultCacheBytes; a negative value disables caching.
	CacheBytes int64

	// Concurrency bounds parallel store requests during Refresh.
	// Default: 16
	Concurrency int

	// Controller applies the IO rate limit and accounts cache memory. Optional.
	Controller *resource.Controller

	// Logger receives debug output. Defaults to a discarding logger.
	Logger *slog.Logger
}

// DefaultCacheBytes is the default capacity of the decoded content cache.
const DefaultCacheBytes = 64 << 20

type entry struct {
	name string // stored name, including a compression suffix
	algo compress.Algorithm
	// stored is the blob size in the store; the decoded size for
	// uncompressed blobs.
	stored int64
}

// BlobLoader resolves content hashes to blobs of a blobstore.BlobStore.
//
// Names are indexed by the fingerprint of the name without its compression
// suffix, so "mesh.bin.lz4" serves the same hash as "mesh.bin".
type BlobLoader struct {
	store  blobstore.BlobStore
	cfg    Config
	logger *slog.Logger
	cache  cache.ByteCache // nil when disabled

	mu    sync.RWMutex
	index map[model.Hash]entry
	// sums holds the CRC32C of the content last returned by Load.
	sums map[model.Hash]uint32
}

// New creates a loader over store. Call Refresh or Register to index content.
func New(store blobstore.BlobStore, cfg Config) *BlobLoader {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 16
	}
	if cfg.CacheBytes == 0 {
		cfg.CacheBytes = DefaultCacheBytes
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	l := &BlobLoader{
		store:  store,
		cfg:    cfg,
		logger: logger,
		index:  make(map[model.Hash]entry),
		sums:   make(map[model.Hash]uint32),
	}
	if cfg.CacheBytes > 0 {
		l.cache = cache.NewShardedLRU(cfg.CacheBytes, cfg.Controller)
	}
	return l
}

func contentKey(h model.Hash) cache.Key {
	return cache.Key{Kind: cache.KindContent, Hash: h}
}

// Refresh lists the store and rebuilds the index. Blob sizes are probed in
// parallel. Names that disappeared are dropped from the index and the cache.
func (l *BlobLoader) Refresh(ctx context.Context) error {
	names, err := l.store.List(ctx, "")
	if err != nil {
		return fmt.Errorf("loader: list: %w", err)
	}

	entries := make([]entry, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.cfg.Concurrency)
	for i, name := range names {
		g.Go(func() error {
			e, err := l.probe(gctx, name)
			if err != nil {
				return err
			}
			entries[i] = e
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	index := make(map[model.Hash]entry, len(entries))
	for _, e := range entries {
		if e.name == "" {
			continue
		}
		_, logical := compress.FromName(e.name)
		h := model.Fingerprint(logical)
		// Prefer the uncompressed name when both exist.
		if prev, ok := index[h]; ok && prev.algo == compress.None {
			continue
		}
		index[h] = e
	}

	l.mu.Lock()
	old := l.index
	l.index = index
	for h := range old {
		if _, ok := index[h]; !ok {
			delete(l.sums, h)
		}
	}
	l.mu.Unlock()

	if l.cache != nil {
		l.cache.Invalidate(func(k cache.Key) bool {
			_, ok := index[k.Hash]
			return !ok
		})
	}

	l.logger.Debug("loader refreshed", "blobs", len(index))
	return nil
}

// probe opens name to learn its size. A blob that vanished between List and
// Open yields a zero entry.
func (l *BlobLoader) probe(ctx context.Context, name string) (entry, error) {
	b, err := l.store.Open(ctx, name)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return entry{}, nil
		}
		return entry{}, fmt.Errorf("loader: open %q: %w", name, err)
	}
	defer func() { _ = b.Close() }()

	algo, _ := compress.FromName(name)
	return entry{name: name, algo: algo, stored: b.Size()}, nil
}

// Register indexes a single name without a full refresh and returns its hash.
func (l *BlobLoader) Register(ctx context.Context, name string) (model.Hash, error) {
	e, err := l.probe(ctx, name)
	if err != nil {
		return 0, err
	}
	_, logical := compress.FromName(name)
	h := model.Fingerprint(logical)
	if e.name == "" {
		l.Forget(h)
		return h, blobstore.ErrNotFound
	}

	l.mu.Lock()
	l.index[h] = e
	l.mu.Unlock()
	return h, nil
}

// Forget drops h from the index and the cache.
func (l *BlobLoader) Forget(h model.Hash) {
	l.Invalidate(h)
	l.mu.Lock()
	delete(l.index, h)
	delete(l.sums, h)
	l.mu.Unlock()
}

// Names returns the indexed stored names in sorted order.
func (l *BlobLoader) Names() []string {
	l.mu.RLock()
	names := make([]string, 0, len(l.index))
	for _, e := range l.index {
		names = append(names, e.name)
	}
	l.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Hashes returns the indexed hashes in the order of their stored names.
func (l *BlobLoader) Hashes() []model.Hash {
	l.mu.RLock()
	byName := make(map[string]model.Hash, len(l.index))
	names := make([]string, 0, len(l.index))
	for h, e := range l.index {
		byName[e.name] = h
		names = append(names, e.name)
	}
	l.mu.RUnlock()

	sort.Strings(names)
	out := make([]model.Hash, len(names))
	for i, n := range names {
		out[i] = byName[n]
	}
	return out
}

func (l *BlobLoader) lookup(h model.Hash) (entry, bool) {
	l.mu.RLock()
	e, ok := l.index[h]
	l.mu.RUnlock()
	return e, ok
}

// Exists reports whether content for h is indexed.
func (l *BlobLoader) Exists(_ context.Context, h model.Hash) bool {
	_, ok := l.lookup(h)
	return ok
}

// Size returns the decoded size of h. Compressed blobs are loaded to learn it.
func (l *BlobLoader) Size(ctx context.Context, h model.Hash) (int64, error) {
	e, ok := l.lookup(h)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, h)
	}
	if e.algo == compress.None {
		return e.stored, nil
	}
	data, err := l.Load(ctx, h)
	if err != nil {
		return 0, err
	}
	return int64(len(data)), nil
}

// Read fills buf, which must be exactly Size(h) bytes, with the content of h.
func (l *BlobLoader) Read(ctx context.Context, h model.Hash, buf []byte) error {
	data, err := l.Load(ctx, h)
	if err != nil {
		return err
	}
	if len(data) != len(buf) {
		return fmt.Errorf("%w: %s has %d bytes, buffer %d", ErrSizeMismatch, h, len(data), len(buf))
	}
	copy(buf, data)
	return nil
}

// Load returns the decoded content of h. The returned slice is shared with
// the cache and must not be modified.
func (l *BlobLoader) Load(ctx context.Context, h model.Hash) ([]byte, error) {
	if l.cache != nil {
		if data, ok := l.cache.Get(ctx, contentKey(h)); ok {
			return data, nil
		}
	}

	data, err := l.fetch(ctx, h)
	if err != nil {
		return nil, err
	}

	sum := hash.CRC32C(data)
	l.mu.Lock()
	l.sums[h] = sum
	l.mu.Unlock()

	if l.cache != nil {
		l.cache.Set(ctx, contentKey(h), data)
	}
	return data, nil
}

// fetch reads and decodes h from the store, bypassing the cache.
func (l *BlobLoader) fetch(ctx context.Context, h model.Hash) ([]byte, error) {
	e, ok := l.lookup(h)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, h)
	}

	b, err := l.store.Open(ctx, e.name)
	if err != nil {
		return nil, fmt.Errorf("loader: open %q: %w", e.name, err)
	}
	defer func() { _ = b.Close() }()

	if err := l.cfg.Controller.AcquireIO(ctx, int(b.Size())); err != nil {
		return nil, err
	}

	raw, err := blobstore.ReadAll(ctx, b)
	if err != nil {
		return nil, fmt.Errorf("loader: read %q: %w", e.name, err)
	}
	if int64(len(raw)) != b.Size() {
		return nil, fmt.Errorf("loader: short read %q: %d of %d bytes", e.name, len(raw), b.Size())
	}

	data, err := compress.Decode(raw, e.algo)
	if err != nil {
		return nil, fmt.Errorf("loader: decode %q: %w", e.name, err)
	}

	l.logger.Debug("loaded blob", "name", e.name, "hash", h.String(), "algorithm", e.algo.String(), "bytes", len(data))
	return data, nil
}

// nameInvalidator is implemented by stores that cache blob content, such as
// blobstore.CachingStore.
type nameInvalidator interface {
	Invalidate(name string)
}

// Invalidate drops the cached bytes of h, including blocks a caching store
// holds for it. The next Load reads the backend again.
func (l *BlobLoader) Invalidate(h model.Hash) {
	if l.cache != nil {
		l.cache.Invalidate(cache.ForHash(h))
	}
	if inv, ok := l.store.(nameInvalidator); ok {
		if e, found := l.lookup(h); found {
			inv.Invalidate(e.name)
		}
	}
}

// Changed reports whether the stored content of h differs from the content
// last returned by Load. Content never loaded counts as changed.
func (l *BlobLoader) Changed(ctx context.Context, h model.Hash) (bool, error) {
	l.mu.RLock()
	prev, seen := l.sums[h]
	l.mu.RUnlock()
	if !seen {
		return true, nil
	}

	data, err := l.fetch(ctx, h)
	if err != nil {
		return false, err
	}
	return hash.CRC32C(data) != prev, nil
}

// CacheStats returns hit and miss counts of the content cache.
func (l *BlobLoader) CacheStats() (hits, misses int64) {
	if l.cache == nil {
		return 0, 0
	}
	return l.cache.Stats()
}

// Close releases the content cache.
func (l *BlobLoader) Close() error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Close()
}
