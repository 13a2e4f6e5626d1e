package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/rescache"
	"github.com/spf13/cobra"
)

// rawResource keeps the size of the content it was constructed from.
type rawResource struct {
	size int64
}

func (r *rawResource) OnConstruct(_ *rescache.ConstructContext, data []byte) error {
	r.size = int64(len(data))
	return nil
}

func (r *rawResource) OnDependenciesFulfilled() error { return nil }
func (r *rawResource) OnDelete() error                { return nil }

var rawKind = rescache.KindFunc("raw", func() rescache.Resource { return &rawResource{} })

// errResourcesFailed is returned when at least one resource did not become
// Ready.
var errResourcesFailed = errors.New("some resources failed")

// NewLoadCommand creates the load command.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Construct every resource once and report",
		Long: `Index the resource root, request every file in parallel, wait until all
of them are Ready or failed and print a summary.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(cmd, rootOpts)
			if err != nil {
				return err
			}
			return runLoad(cmd, rootOpts, cfg, timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "time to wait for all resources")

	return cmd
}

func runLoad(cmd *cobra.Command, opts *RootOptions, cfg Config, timeout time.Duration) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	rt, err := newRuntime(ctx, opts, cfg)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	hashes := rt.loader.Hashes()
	insts, reqErr := rt.manager.RequestMany(ctx, hashes, rawKind)
	if reqErr != nil {
		rt.logger.Warn("some requests were rejected", "error", reqErr)
	}

	s := Summary{Files: len(hashes)}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for _, inst := range insts {
		if inst == nil {
			s.Rejected++
			continue
		}
		if err := inst.Wait(wctx); err != nil {
			s.Failed++
			rt.logger.WithHash(inst.Hash()).Error("resource failed", "error", err)
		} else {
			s.Ready++
		}
	}
	s.Bytes = rt.manager.MemoryUsage()
	s.CacheBytes = rt.rc.Usage().Cache
	s.DurationMS = time.Since(start).Milliseconds()

	for _, inst := range insts {
		if inst != nil {
			inst.Release()
		}
	}

	f := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	if err := f.Print(s); err != nil {
		return err
	}
	if s.Failed > 0 || s.Rejected > 0 {
		return fmt.Errorf("%w: %d failed, %d rejected", errResourcesFailed, s.Failed, s.Rejected)
	}
	return nil
}
