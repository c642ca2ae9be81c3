package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mcb/internal/app"
	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/ui"
)

type indexOptions struct {
	force  bool
	noTUI  bool
	check  bool
	repair bool
}

func newIndexCmd(c *cli) *cobra.Command {
	var opts indexOptions

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory into a collection",
		Long: `Scan a directory, chunk every changed file, embed the chunks and
store them in the vector store and the BM25 index.

Unchanged files are skipped unless --force is given. Files removed since
the last run are deleted from both indexes.

Examples:
  mcb index
  mcb index ./services/api --collection api
  mcb index --force --no-tui
  mcb index --check
  mcb index --repair`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := c.openApp(ctx, false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if opts.check || opts.repair {
				return runCheck(ctx, cmd, c, a, opts.repair)
			}

			path := c.root
			if len(args) == 1 {
				if path, err = filepath.Abs(args[0]); err != nil {
					return err
				}
			}
			return runIndex(ctx, cmd, c, a, path, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.force, "force", false, "Reindex every file, changed or not")
	cmd.Flags().BoolVar(&opts.noTUI, "no-tui", false, "Plain progress output")
	cmd.Flags().BoolVar(&opts.check, "check", false, "Compare the file-hash store with the vector store")
	cmd.Flags().BoolVar(&opts.repair, "repair", false, "Check, then fix every inconsistency found")

	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, c *cli, a *app.App, path string, opts indexOptions) error {
	collection := c.collection
	if collection == "" {
		collection = a.DefaultCollection()
	}

	r := ui.NewRenderer(ui.Config{
		Output:     cmd.OutOrStdout(),
		ForcePlain: opts.noTUI,
		NoColor:    c.noColor,
		Title:      fmt.Sprintf("Indexing %s into %q", path, collection),
	})
	if err := r.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = r.Stop() }()

	// Subscribe before indexing so the start event is not missed.
	sub := a.Events().Subscribe()
	defer sub.Close()
	followCtx, cancelFollow := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Go(func() { ui.Follow(followCtx, sub, collection, r) })

	idxOpts := a.IndexOptions()
	idxOpts.Force = opts.force
	res, err := a.Index(ctx, path, collection, idxOpts)

	cancelFollow()
	wg.Wait()

	if res != nil {
		r.Complete(summarize(res, a.Embedding()))
	}
	if err != nil {
		return err
	}
	if res.Status == index.StatusPartialFailure {
		return mcberrors.Internal(fmt.Sprintf("indexing finished with %d file errors", len(res.Errors)), nil).
			WithSuggestion("run 'mcb logs --level warn' for details, then 'mcb index' again")
	}
	return nil
}

func summarize(res *index.Result, emb app.EmbeddingInfo) ui.Summary {
	errs := make([]string, 0, len(res.Errors))
	for _, fe := range res.Errors {
		errs = append(errs, fe.Error())
	}
	return ui.Summary{
		Collection: res.Collection,
		Status:     string(res.Status),
		Files:      res.FilesProcessed,
		Unchanged:  res.FilesUnchanged,
		Deleted:    res.FilesDeleted,
		Skipped:    res.FilesSkipped,
		Chunks:     res.ChunksCreated,
		Errors:     errs,
		Duration:   res.Duration,
		Embedder:   emb.Provider + "/" + emb.Model,
	}
}

func runCheck(ctx context.Context, cmd *cobra.Command, c *cli, a *app.App, repair bool) error {
	w := c.out(cmd)

	res, err := a.Check(ctx, c.collection)
	if err != nil {
		return err
	}
	if len(res.Inconsistencies) == 0 {
		w.Successf("%s: %d files consistent (%s)", res.Collection, res.Checked, res.Duration.Round(time.Millisecond))
		return nil
	}

	w.Warningf("%s: %d of %d files inconsistent", res.Collection, len(res.Inconsistencies), res.Checked)
	for _, inc := range res.Inconsistencies {
		w.Statusf("", "%-16s %s", inc.Type, inc.FilePath)
	}
	if !repair {
		w.Status("", "run 'mcb index --repair' to fix")
		return nil
	}

	fixed, err := a.Repair(ctx, c.collection)
	if err != nil {
		return err
	}
	w.Successf("repaired %d files", fixed)
	return nil
}
