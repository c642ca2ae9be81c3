package cmd

import (
	"strings"
	"time"

	"github.com/spf13/cobra"

	mcberrors "github.com/Aman-CERP/mcb/internal/errors"
)

func newProvidersCmd(c *cli) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "providers",
		Short: "List registered providers and the active ones",
		Long: `List every provider kind with its registered implementations. The
provider in use for this project is marked with '*'. Select providers in
.mcb.yaml or with MCB_EMBEDDING_PROVIDER and MCB_VECTOR_STORE_PROVIDER.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			kinds := a.Providers()
			w := c.out(cmd)
			if jsonOutput {
				return w.JSON(kinds)
			}
			for _, k := range kinds {
				w.Header(string(k.Kind))
				for _, info := range k.Available {
					mark := " "
					if info.Name == k.Active {
						mark = "*"
					}
					w.Statusf("", "%s %-14s %s", mark, info.Name, info.Description)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	cmd.AddCommand(newHealthCmd(c))
	return cmd
}

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Probe every active provider",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			report := a.Health(cmd.Context())
			w := c.out(cmd)
			var failed []string
			for _, st := range report.Statuses {
				if st.Healthy {
					w.Successf("%-13s %-10s %s", st.Component, st.Provider, st.Latency.Round(time.Microsecond))
					continue
				}
				w.Errorf("%-13s %-10s %s", st.Component, st.Provider, st.Error)
				failed = append(failed, st.Component)
			}
			if !report.Healthy {
				return mcberrors.Transport("unhealthy providers: "+strings.Join(failed, ", "), nil)
			}
			return nil
		},
	}
}
