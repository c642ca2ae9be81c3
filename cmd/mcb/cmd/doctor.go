package cmd

import (
	"github.com/spf13/cobra"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
	"github.com/Aman-CERP/mcb/internal/preflight"
)

func newDoctorCmd(c *cli) *cobra.Command {
	var (
		jsonOut bool
		verbose bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the host and the configured providers",
		Long: `Run the preflight checks: project readable, free disk and a writable
state directory, the file descriptor limit, and one health probe per
active provider.

A failed required check exits non-zero. An unreachable embedding
provider is a warning: search falls back to BM25.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			checker := preflight.New(
				preflight.WithProber(a),
				preflight.WithVerbose(verbose),
				preflight.WithOutput(cmd.OutOrStdout()))
			results := checker.RunAll(cmd.Context(), c.root, a.StateDir())

			if jsonOut {
				if err := c.out(cmd).JSON(map[string]any{
					"status": preflight.SummaryStatus(results),
					"checks": results,
				}); err != nil {
					return err
				}
			} else {
				c.out(cmd).Header("mcb doctor")
				checker.PrintResults(results)
			}

			if preflight.HasCriticalFailures(results) {
				return mcberrors.Internal("preflight checks failed", nil).
					WithSuggestion("fix the FAIL lines above, then rerun 'mcb doctor'")
			}
			marker := preflightMarker(a)
			if !preflight.NeedsCheck(a.StateDir(), marker) {
				return nil
			}
			return preflight.MarkPassed(a.StateDir(), marker)
		},
	}

	cmd.Flags().BoolVar(&jsonOut, "json", false, "Output as JSON")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show details of passing checks")

	return cmd
}
