package cli

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/hupe1980/rescache"
	"github.com/hupe1980/rescache/model"
	"github.com/hupe1980/rescache/watcher"
	"github.com/spf13/cobra"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep every resource loaded and reload on change",
		Long: `Load every file of the resource root, then watch the tree and reload
changed files in place until interrupted. New files are loaded as they
appear. Only the local store can be watched.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, rootOpts)
			if err != nil {
				return err
			}
			return runWatch(cmd, rootOpts, cfg, duration)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long (0 = until interrupted)")

	return cmd
}

// holder owns one instance per hash for the lifetime of a watch run.
type holder struct {
	mgr    *rescache.Manager
	logger *rescache.Logger

	mu    sync.Mutex
	insts map[model.Hash]*rescache.Instance
}

func (h *holder) request(ctx context.Context, hash model.Hash) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.insts[hash]; ok {
		return
	}

	inst, err := h.mgr.Request(ctx, hash, rawKind, rescache.WithOnReady(func(i *rescache.Instance) {
		h.logger.WithHash(i.Hash()).Info("resource ready")
	}))
	if err != nil {
		h.logger.WithHash(hash).Warn("request rejected", "error", err)
		return
	}
	h.insts[hash] = inst
}

func (h *holder) releaseAll() (ready, failed int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for hash, inst := range h.insts {
		switch {
		case inst.IsReady():
			ready++
		case inst.Err() != nil:
			failed++
		}
		inst.Release()
		delete(h.insts, hash)
	}
	return ready, failed
}

func runWatch(cmd *cobra.Command, opts *RootOptions, cfg Config, duration time.Duration) error {
	if cfg.Store.Type != "" && cfg.Store.Type != "local" {
		return errors.New("watch requires the local store")
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}
	start := time.Now()

	rt, err := newRuntime(ctx, opts, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	h := &holder{
		mgr:    rt.manager,
		logger: rt.logger,
		insts:  make(map[model.Hash]*rescache.Instance),
	}
	for _, hash := range rt.loader.Hashes() {
		h.request(ctx, hash)
	}

	fsw, err := watcher.NewFS(cfg.Root, watcher.Config{
		Debounce: cfg.Debounce,
		Logger:   rt.logger.Logger,
		OnName: func(name string) {
			hash, err := rt.loader.Register(ctx, name)
			if err != nil {
				rt.logger.Debug("file gone", "name", name)
				return
			}
			h.request(ctx, hash)
		},
	})
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err := rt.manager.Watch(ctx, fsw); err != nil {
		return err
	}
	rt.logger.Info("watching", "root", cfg.Root, "files", len(rt.loader.Hashes()))

	<-ctx.Done()

	s := Summary{Files: len(rt.loader.Hashes())}
	s.Bytes = rt.manager.MemoryUsage()
	s.CacheBytes = rt.rc.Usage().Cache
	s.Reloads = rt.metrics.GetStats().ReloadCount
	s.Ready, s.Failed = h.releaseAll()
	s.DurationMS = time.Since(start).Milliseconds()

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return f.Print(s)
}
