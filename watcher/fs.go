package watcher

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/fsnotify/fsnotify"
	"github.com/hupe1980/rescache/internal/compress"
	"github.com/hupe1980/rescache/model"
)

// Config configures an FS watcher. The zero value is usable.
type Config struct {
	// Debounce is the quiet period after the last event before a burst is
	// flushed. Editors write files in several steps; each burst yields one
	// notification per file.
	// Default: 50ms
	Debounce time.Duration

	// Buffer is the capacity of the Changes channel.
	// Default: 256
	Buffer int

	// OnName, if set, is called with the slash separated name (relative to
	// the root) of every changed file before its hash is emitted.
	OnName func(name string)

	// Logger receives watch errors. Defaults to a discarding logger.
	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Debounce <= 0 {
		c.Debounce = 50 * time.Millisecond
	}
	if c.Buffer <= 0 {
		c.Buffer = 256
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
	return c
}

// FS watches a directory tree and emits the fingerprint of every changed file.
type FS struct {
	root string
	cfg  Config
	w    *fsnotify.Watcher

	changes chan model.Hash
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

// NewFS starts watching root and all directories below it.
func NewFS(root string, cfg Config) (*FS, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		_ = w.Close()
		return nil, err
	}

	cfg = cfg.withDefaults()
	f := &FS{
		root:    abs,
		cfg:     cfg,
		w:       w,
		changes: make(chan model.Hash, cfg.Buffer),
		done:    make(chan struct{}),
	}
	if err := f.addTree(abs, nil); err != nil {
		_ = w.Close()
		return nil, err
	}

	f.wg.Add(1)
	go f.loop()
	return f, nil
}

// Changes returns the channel of changed hashes. It is closed by Close.
func (f *FS) Changes() <-chan model.Hash {
	return f.changes
}

// Close stops watching and closes the Changes channel.
func (f *FS) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = f.w.Close()
		f.wg.Wait()
		close(f.changes)
	})
	return err
}

// addTree watches dir and every directory below it. Files found are passed
// to found, which lets a directory that appears with content report it.
func (f *FS) addTree(dir string, found func(path string)) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			// Removed while walking.
			if errors.Is(err, fs.ErrNotExist) && p != dir {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return f.w.Add(p)
		}
		if found != nil {
			found(p)
		}
		return nil
	})
}

// name maps an absolute path to the store name and logical hash of the file.
func (f *FS) name(p string) (string, model.Hash, bool) {
	rel, err := filepath.Rel(f.root, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", 0, false
	}
	name := filepath.ToSlash(rel)
	if strings.HasPrefix(filepath.Base(p), ".tmp-") {
		return "", 0, false
	}
	_, logical := compress.FromName(name)
	return name, model.Fingerprint(logical), true
}

type pending struct {
	hashes *roaring64.Bitmap
	names  map[model.Hash]string
	// rewatch holds paths that were renamed or removed; if they reappear as
	// directories they must be watched again.
	rewatch map[string]struct{}
}

func newPending() *pending {
	return &pending{
		hashes:  roaring64.New(),
		names:   make(map[model.Hash]string),
		rewatch: make(map[string]struct{}),
	}
}

func (p *pending) empty() bool {
	return p.hashes.IsEmpty() && len(p.rewatch) == 0
}

func (f *FS) record(p *pending, path string) {
	name, h, ok := f.name(path)
	if !ok {
		return
	}
	p.hashes.Add(uint64(h))
	p.names[h] = name
}

func (f *FS) loop() {
	defer f.wg.Done()

	p := newPending()
	timer := time.NewTimer(f.cfg.Debounce)
	timer.Stop()

	for {
		select {
		case <-f.done:
			timer.Stop()
			return

		case ev, ok := <-f.w.Events:
			if !ok {
				return
			}
			f.handle(p, ev)
			if !p.empty() {
				timer.Reset(f.cfg.Debounce)
			}

		case err, ok := <-f.w.Errors:
			if !ok {
				return
			}
			f.cfg.Logger.Warn("watch error", "root", f.root, "error", err)

		case <-timer.C:
			if !f.flush(p) {
				return
			}
			p = newPending()
		}
	}
}

func (f *FS) handle(p *pending, ev fsnotify.Event) {
	if ev.Op == fsnotify.Chmod {
		return
	}

	if ev.Has(fsnotify.Create) {
		if st, err := os.Stat(ev.Name); err == nil && st.IsDir() {
			if err := f.addTree(ev.Name, func(path string) { f.record(p, path) }); err != nil {
				f.cfg.Logger.Warn("watch directory", "path", ev.Name, "error", err)
			}
			return
		}
	}
	if ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Remove) {
		p.rewatch[ev.Name] = struct{}{}
	}
	f.record(p, ev.Name)
}

// flush emits every pending hash once. It returns false if the watcher was
// closed while sending.
func (f *FS) flush(p *pending) bool {
	for path := range p.rewatch {
		st, err := os.Stat(path)
		if err != nil || !st.IsDir() {
			continue
		}
		if err := f.addTree(path, func(path string) { f.record(p, path) }); err != nil {
			f.cfg.Logger.Warn("rewatch directory", "path", path, "error", err)
		}
	}

	it := p.hashes.Iterator()
	for it.HasNext() {
		h := model.Hash(it.Next())
		if f.cfg.OnName != nil {
			f.cfg.OnName(p.names[h])
		}
		select {
		case f.changes <- h:
		case <-f.done:
			return false
		}
	}
	return true
}
