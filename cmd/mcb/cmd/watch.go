package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/output"
)

func newWatchCmd(c *cli) *cobra.Command {
	var wo app.WatchOptions

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Index the project, then reindex files as they change",
		Long: `Index the project once, then watch it and reindex every debounced
batch of changes until interrupted. fsnotify is used where available;
--polling forces the polling watcher (network filesystems, containers).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.openApp(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			w := c.out(cmd)
			wo.OnResult = func(res *index.Result, err error) { printWatchResult(w, res, err) }
			w.Statusf("WATCH", "%s (Ctrl+C to stop)", c.root)
			return a.Watch(ctx, c.root, c.collection, wo)
		},
	}

	cmd.Flags().BoolVar(&wo.ForcePolling, "polling", false, "Use the polling watcher")
	cmd.Flags().BoolVar(&wo.SkipInitial, "skip-initial", false, "Start watching without indexing first")

	return cmd
}

func printWatchResult(w *output.Writer, res *index.Result, err error) {
	switch {
	case res == nil:
		w.Errorf("%v", err)
	case err != nil || res.Status != index.StatusCompleted:
		w.Warningf("%s: %s, %d indexed, %d deleted, %d errors",
			res.Collection, res.Status, res.FilesProcessed, res.FilesDeleted, len(res.Errors))
		for _, fe := range res.Errors {
			w.Status("", fe.Error())
		}
	default:
		w.Successf("%s: %d indexed, %d unchanged, %d deleted, %d chunks in %s",
			res.Collection, res.FilesProcessed, res.FilesUnchanged, res.FilesDeleted, res.ChunksCreated, res.Duration.Round(time.Millisecond))
	}
}
