package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/index"
	mcpserver "github.com/Aman-CERP/mcb/internal/mcp"
	"github.com/Aman-CERP/mcb/internal/preflight"
	"github.com/Aman-CERP/mcb/pkg/version"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		transport string
		addr      string
		watch     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve search and memory tools over MCP",
		Long: `Start the MCP server for the project.

With the stdio transport, stdout carries JSON-RPC only; every log line
goes to the log file (see 'mcb logs'). The http transport serves the
streamable HTTP protocol on --addr.

With --watch the collection is kept current while the server runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.openApp(ctx, true)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()
			c.preflight(ctx, a)

			if !cmd.Flags().Changed("transport") {
				transport = c.cfg.Server.Transport
			}
			if !cmd.Flags().Changed("addr") {
				addr = c.cfg.Server.Addr
			}

			srv, err := mcpserver.NewServer(a,
				mcpserver.WithLogger(c.logger),
				mcpserver.WithRoot(c.root),
				mcpserver.WithCollection(c.collection))
			if err != nil {
				return err
			}
			if _, err := srv.RegisterResources(ctx); err != nil {
				c.logger.Warn("mcp_resources_unavailable", slog.String("error", err.Error()))
			}

			if watch {
				go func() {
					wo := app.WatchOptions{
						SkipInitial: true,
						OnResult: func(_ *index.Result, err error) {
							if err == nil {
								_, _ = srv.RegisterResources(ctx)
							}
						},
					}
					if err := a.Watch(ctx, c.root, c.collection, wo); err != nil {
						c.logger.Error("watch_stopped", slog.String("error", err.Error()))
					}
				}()
			}
			return srv.Serve(ctx, transport, addr)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", mcpserver.TransportStdio, "Transport: stdio or http")
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address for the http transport (default from config)")
	cmd.Flags().BoolVar(&watch, "watch", false, "Reindex changed files while serving")

	return cmd
}

// preflight runs the checks the first time a state directory is served.
// Results go to the log only: stdout belongs to the protocol.
// preflightMarker describes the setup a passing preflight run covers.
func preflightMarker(a *app.App) preflight.Marker {
	return preflight.Marker{
		Version:     version.Version,
		Embedding:   a.Embedding().Provider,
		VectorStore: a.VectorStoreName(),
	}
}

func (c *cli) preflight(ctx context.Context, a *app.App) {
	marker := preflightMarker(a)
	if !preflight.NeedsCheck(a.StateDir(), marker) {
		return
	}
	results := preflight.New(preflight.WithProber(a)).RunAll(ctx, c.root, a.StateDir())
	for _, r := range results {
		level := slog.LevelInfo
		if r.Status != preflight.StatusPass {
			level = slog.LevelWarn
		}
		c.logger.Log(ctx, level, "preflight_check",
			slog.String("name", r.Name),
			slog.String("status", r.Status.String()),
			slog.String("message", r.Message))
	}
	if preflight.HasCriticalFailures(results) {
		c.logger.Error("preflight_failed", slog.String("hint", "run 'mcb doctor'"))
		return
	}
	if err := preflight.MarkPassed(a.StateDir(), marker); err != nil {
		c.logger.Warn("preflight_marker_failed", slog.String("error", err.Error()))
	}
}
