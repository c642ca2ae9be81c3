package cmd

import (
	"github.com/spf13/cobra"
)

func newTombstonesCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tombstones",
		Short: "Count soft-deleted vectors",
		Long: `Vectors of deleted or changed files are tombstoned first and purged
once older than indexing.tombstone_ttl by 'mcb tombstones cleanup'.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.TombstoneCount(cmd.Context(), c.collection)
			if err != nil {
				return err
			}
			c.out(cmd).Statusf("", "%d tombstones", n)
			return nil
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "cleanup",
		Short: "Purge expired tombstones now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			n, err := a.CleanupTombstones(cmd.Context())
			if err != nil {
				return err
			}
			c.out(cmd).Successf("purged %d tombstones", n)
			return nil
		},
	})
	return cmd
}
