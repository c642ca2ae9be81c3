package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mcb/internal/app"
	"github.com/Aman-CERP/mcb/internal/index"
	"github.com/Aman-CERP/mcb/internal/ports"
)

// statusReport is the JSON form of 'mcb status'.
type statusReport struct {
	Project    ports.ProjectInfo       `json:"project"`
	Stats      app.CollectionStats     `json:"stats"`
	Embeddings app.EmbeddingInfo       `json:"embeddings"`
	Operations []index.OperationStatus `json:"operations"`
}

func newStatusCmd(c *cli) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the index state of the project",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			project, err := a.DetectProject(cmd.Context(), c.root)
			if err != nil {
				return err
			}
			stats, err := a.Stats(cmd.Context(), c.collection)
			if err != nil {
				return err
			}
			report := statusReport{
				Project:    project,
				Stats:      stats,
				Embeddings: a.Embedding(),
				Operations: a.Status(stats.Collection),
			}

			w := c.out(cmd)
			if jsonOutput {
				return w.JSON(report)
			}
			w.Header(fmt.Sprintf("%s (%s)", project.Name, project.Root))
			w.KeyValues(
				"collection", stats.Collection,
				"files", strconv.Itoa(stats.Files),
				"chunks", strconv.Itoa(stats.Vectors),
				"tombstones", strconv.FormatInt(stats.Tombstones, 10),
				"embedder", fmt.Sprintf("%s/%s (%d dims)", report.Embeddings.Provider, report.Embeddings.Model, report.Embeddings.Dimensions),
			)
			for _, op := range report.Operations {
				if op.IsIndexing {
					w.Statusf("RUN", "%s %d/%d files", op.Root, op.ProcessedFiles, op.TotalFiles)
					continue
				}
				w.Statusf("LAST", "%s %s %s ago", op.Root, op.Status, time.Since(op.FinishedAt).Round(time.Second))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
