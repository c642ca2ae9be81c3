// Package cmd provides the CLI commands for mcb.
package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/config"
	"github.com/Aman-CERP/mcb/internal/logging"
	"github.com/Aman-CERP/mcb/internal/output"
	"github.com/Aman-CERP/mcb/internal/profiling"
	"github.com/Aman-CERP/mcb/pkg/version"
)

// cli is the state shared by every subcommand of one invocation.
type cli struct {
	dir        string
	collection string
	debug      bool
	noColor    bool

	profile  profiling.Options
	profiler *profiling.Session

	root    string
	cfg     *config.Config
	logger  *slog.Logger
	cleanup func()
}

// NewRootCmd creates the root command for the mcb CLI.
func NewRootCmd() *cobra.Command {
	cmd, _ := newRoot()
	return cmd
}

func newRoot() (*cobra.Command, *cli) {
	c := &cli{}

	cmd := &cobra.Command{
		Use:   version.Name,
		Short: "Hybrid code search and agent memory over MCP",
		Long: `mcb indexes a codebase into a vector store and a BM25 index, serves
hybrid search and agent memory to AI assistants over MCP, and keeps
the index current while files change.

Run 'mcb index' in a project, then 'mcb serve' from your MCP client.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if !c.profile.Enabled() {
				return nil
			}
			p, err := profiling.Start(c.profile)
			if err != nil {
				return err
			}
			c.profiler = p
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			c.teardown()
		},
	}
	cmd.SetVersionTemplate(version.Name + " version {{.Version}}\n")

	cmd.PersistentFlags().StringVarP(&c.dir, "dir", "C", ".", "Project directory")
	cmd.PersistentFlags().StringVar(&c.collection, "collection", "", "Collection name (default from config)")
	cmd.PersistentFlags().BoolVar(&c.debug, "debug", false, "Debug logging, mirrored to stderr")
	cmd.PersistentFlags().BoolVar(&c.noColor, "no-color", false, "Disable colored output")
	cmd.PersistentFlags().StringVar(&c.profile.CPUPath, "profile-cpu", "", "Write a CPU profile to this file")
	cmd.PersistentFlags().StringVar(&c.profile.HeapPath, "profile-mem", "", "Write a heap profile to this file on exit")
	cmd.PersistentFlags().StringVar(&c.profile.TracePath, "profile-trace", "", "Write an execution trace to this file")
	_ = cmd.PersistentFlags().MarkHidden("profile-trace")

	cmd.AddCommand(newIndexCmd(c))
	cmd.AddCommand(newSearchCmd(c))
	cmd.AddCommand(newMemoryCmd(c))
	cmd.AddCommand(newProvidersCmd(c))
	cmd.AddCommand(newServeCmd(c))
	cmd.AddCommand(newWatchCmd(c))
	cmd.AddCommand(newTombstonesCmd(c))
	cmd.AddCommand(newStatusCmd(c))
	cmd.AddCommand(newConfigCmd(c))
	cmd.AddCommand(newLogsCmd(c))
	cmd.AddCommand(newDoctorCmd(c))
	cmd.AddCommand(newVersionCmd())

	return cmd, c
}

// Execute runs the root command. Logging is torn down even when the
// command fails.
func Execute() error {
	cmd, c := newRoot()
	defer c.teardown()
	return cmd.Execute()
}

// load resolves the project root, reads its configuration and installs
// logging. In server mode nothing is ever written to stderr or stdout.
func (c *cli) load(serverMode bool) error {
	if c.cfg != nil {
		return nil
	}

	root, err := config.FindProjectRoot(c.dir)
	if err != nil {
		return err
	}
	cfg, err := config.Load(root)
	if err != nil {
		return err
	}

	logCfg := logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      cfg.Logging.File,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.Stderr,
	}
	if c.debug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}
	if serverMode {
		logCfg.WriteToStderr = false
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	slog.SetDefault(logger)

	c.root = root
	c.cfg = cfg
	c.logger = logger
	c.cleanup = cleanup
	logger.Debug("cli_loaded",
		slog.String("root", root),
		slog.String("version", version.Version),
		slog.Bool("server_mode", serverMode))
	return nil
}

// openApp loads the configuration and starts an App over it. The caller
// closes the App.
func (c *cli) openApp(ctx context.Context, serverMode bool) (*app.App, error) {
	if err := c.load(serverMode); err != nil {
		return nil, err
	}
	a, err := app.New(ctx, c.cfg, app.WithLogger(c.logger))
	if err != nil {
		return nil, err
	}
	a.Start(ctx)
	return a, nil
}

// out returns the styled writer for cmd's stdout.
func (c *cli) out(cmd *cobra.Command) *output.Writer {
	return output.New(cmd.OutOrStdout(), c.noColor)
}

func (c *cli) teardown() {
	if c.profiler != nil {
		if err := c.profiler.Stop(); err != nil {
			slog.Warn("profile_write_failed", slog.String("error", err.Error()))
		}
		c.profiler = nil
	}
	if c.cleanup != nil {
		c.cleanup()
		c.cleanup = nil
	}
}
