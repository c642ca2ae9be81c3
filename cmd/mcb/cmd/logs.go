package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mcb/internal/config"
	"github.com/Aman-CERP/mcb/internal/logging"
	"github.com/Aman-CERP/mcb/internal/ui"
)

type logsOptions struct {
	follow  bool
	lines   int
	level   string
	filter  string
	logFile string
}

func newLogsCmd(c *cli) *cobra.Command {
	var opts logsOptions

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View the mcb log",
		Long: `Show the last lines of the mcb log, or follow it like 'tail -f'.

The log is JSON; entries are rendered one per line with their attributes.
The file is logging.file from the configuration, else ~/.mcb/logs/mcb.log.

Examples:
  mcb logs                    # last 50 lines
  mcb logs -f                 # follow
  mcb logs --level warn       # warnings and errors only
  mcb logs --filter search    # entries matching a regex`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.logFile == "" {
				root, err := config.FindProjectRoot(c.dir)
				if err != nil {
					return err
				}
				if cfg, err := config.Load(root); err == nil {
					opts.logFile = cfg.Logging.File
				}
			}
			return runLogs(cmd, c, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&opts.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&opts.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&opts.filter, "filter", "", "Only entries matching this regex")
	cmd.Flags().StringVar(&opts.logFile, "file", "", "Log file path")

	return cmd
}

func runLogs(cmd *cobra.Command, c *cli, opts logsOptions) error {
	path, err := logging.FindLogFile(opts.logFile)
	if err != nil {
		return err
	}

	var pattern *regexp.Regexp
	if opts.filter != "" {
		if pattern, err = regexp.Compile(opts.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:   opts.level,
		Pattern: pattern,
		NoColor: c.noColor || ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()),
	}, cmd.OutOrStdout())

	stderr := cmd.ErrOrStderr()
	_, _ = fmt.Fprintf(stderr, "Log file: %s\n---\n", path)

	if !opts.follow {
		entries, err := viewer.Tail(path, opts.lines)
		if err != nil {
			return err
		}
		viewer.Print(entries)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return followLog(ctx, viewer, path, cmd)
}

func followLog(ctx context.Context, viewer *logging.Viewer, path string, cmd *cobra.Command) error {
	entries := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, entries) }()

	for {
		select {
		case e := <-entries:
			viewer.Print([]logging.LogEntry{e})
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(cmd.ErrOrStderr(), "---\nStopped.")
			return nil
		}
	}
}
