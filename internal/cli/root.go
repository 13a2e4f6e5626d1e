package cli

import (
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath  string
	Format      string // "text" | "json" | "yaml"
	Root        string
	Workers     int
	MemoryLimit int64
	LogLevel    string

	// LogWriter receives log output. Defaults to stderr.
	LogWriter io.Writer
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command of the rescache CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "rescache",
		Short: "Load and hot-reload resource trees",
		Long: `rescache constructs every file of a resource tree on a work-stealing
scheduler and keeps it cached, reloading files in place when they change.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "YAML config file")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVarP(&opts.Root, "root", "r", ".", "resource root directory")
	cmd.PersistentFlags().IntVarP(&opts.Workers, "workers", "w", 0, "scheduler workers (0 = GOMAXPROCS)")
	cmd.PersistentFlags().Int64Var(&opts.MemoryLimit, "memory-limit", 0, "payload memory limit in bytes (0 = unlimited)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "info", "log level (debug|info|warn|error)")

	cmd.AddCommand(NewLoadCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))

	return cmd
}

// resolveConfig reads the config file and applies the flags that were set
// explicitly.
func resolveConfig(cmd *cobra.Command, opts *RootOptions) (Config, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return cfg, err
	}

	flags := cmd.Flags()
	if flags.Changed("root") || opts.ConfigPath == "" {
		cfg.Root = opts.Root
	}
	if flags.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if flags.Changed("memory-limit") {
		cfg.MemoryLimit = opts.MemoryLimit
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.LogLevel
	}
	return cfg, cfg.Validate()
}
