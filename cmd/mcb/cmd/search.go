package cmd

import (
	"context"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/domain"
	mcpserver "github.com/Aman-CERP/mcb/internal/mcp"
	"github.com/Aman-CERP/mcb/internal/search"
	"github.com/Aman-CERP/mcb/internal/ui"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit      int
	language   string
	pathPrefix string
	branch     string
	bm25Weight float64
	jsonOutput bool
}

func newSearchCmd(c *cli) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search a collection with hybrid search.

BM25 and vector candidates are fused into one ranking. --bm25-weight
moves the balance: 1 is keyword only, 0 is semantic only.

Examples:
  mcb search "authentication middleware"
  mcb search "retry with backoff" --language go --limit 5
  mcb search "install steps" --path docs/
  mcb search "handleRequest" --bm25-weight 0.8 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			weightSet := cmd.Flags().Changed("bm25-weight")
			return runSearch(cmd.Context(), cmd, c, a, strings.Join(args, " "), opts, weightSet)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default from config)")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g. go, python)")
	cmd.Flags().StringVarP(&opts.pathPrefix, "path", "p", "", "Filter by path prefix")
	cmd.Flags().StringVar(&opts.branch, "branch", "", "Filter by branch")
	cmd.Flags().Float64Var(&opts.bm25Weight, "bm25-weight", search.DefaultBM25Weight, "Keyword weight in [0,1]; the vector weight is the rest")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, c *cli, a *app.App, query string, opts searchOptions, weightSet bool) error {
	req := search.Request{
		Collection: c.collection,
		Query:      query,
		Limit:      opts.limit,
		Filter: domain.SearchFilter{
			Language:   opts.language,
			PathPrefix: opts.pathPrefix,
			Branch:     opts.branch,
		},
	}
	if weightSet {
		req.Weights = &search.Weights{BM25: opts.bm25Weight, Vector: 1 - opts.bm25Weight}
	}

	results, err := a.Search(ctx, req)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		out := make([]mcpserver.SearchResultOutput, 0, len(results))
		for _, r := range results {
			out = append(out, mcpserver.ToSearchResultOutput(r, false))
		}
		return c.out(cmd).JSON(out)
	}
	ui.WriteResults(cmd.OutOrStdout(), query, results, ui.GetStyles(c.noColor || !ui.IsTTY(cmd.OutOrStdout())))
	return nil
}
