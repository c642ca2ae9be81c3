package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mcb/internal/domain"
	"github.com/Aman-CERP/mcb/internal/output"
)

// memoryFlags are the filter flags shared by search and timeline.
type memoryFlags struct {
	tags      []string
	obsType   string
	sessionID string
	branch    string
	since     time.Duration
}

func (f *memoryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.tags, "tag", nil, "Require tag (repeatable)")
	cmd.Flags().StringVar(&f.obsType, "type", "", "Observation type")
	cmd.Flags().StringVar(&f.sessionID, "session", "", "Session ID")
	cmd.Flags().StringVar(&f.branch, "branch", "", "Branch")
	cmd.Flags().DurationVar(&f.since, "since", 0, "Only observations newer than this (e.g. 24h)")
}

func (f *memoryFlags) filter() (domain.MemoryFilter, error) {
	mf := domain.MemoryFilter{
		Tags:      f.tags,
		SessionID: f.sessionID,
		Branch:    f.branch,
	}
	if f.obsType != "" {
		t, err := domain.ParseObservationType(f.obsType)
		if err != nil {
			return mf, err
		}
		mf.Type = t
	}
	if f.since > 0 {
		mf.Since = time.Now().Add(-f.since).Unix()
	}
	return mf, nil
}

func newMemoryCmd(c *cli) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Store and recall agent observations",
		Long: `Observations are notes an agent keeps across sessions: decisions,
errors, context. They are deduplicated by content and searchable by
keyword and meaning.`,
	}
	cmd.AddCommand(newMemoryAddCmd(c))
	cmd.AddCommand(newMemorySearchCmd(c))
	cmd.AddCommand(newMemoryTimelineCmd(c))
	cmd.AddCommand(newMemoryGetCmd(c))
	cmd.AddCommand(newMemoryDeleteCmd(c))
	cmd.AddCommand(newMemorySummaryCmd(c))
	return cmd
}

func newMemoryAddCmd(c *cli) *cobra.Command {
	var (
		tags      []string
		obsType   string
		sessionID string
		filePath  string
		branch    string
	)
	cmd := &cobra.Command{
		Use:   "add <content>",
		Short: "Store an observation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t := domain.ObservationContext
			if obsType != "" {
				var err error
				if t, err = domain.ParseObservationType(obsType); err != nil {
					return err
				}
			}
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			id, created, err := a.StoreObservation(cmd.Context(), &domain.Observation{
				Content: strings.Join(args, " "),
				Tags:    tags,
				Type:    t,
				Metadata: domain.ObservationMetadata{
					SessionID: sessionID,
					FilePath:  filePath,
					Branch:    branch,
				},
			})
			if err != nil {
				return err
			}
			w := c.out(cmd)
			if created {
				w.Successf("stored %s", id)
			} else {
				w.Statusf("SAME", "already stored as %s", id)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tag (repeatable)")
	cmd.Flags().StringVar(&obsType, "type", "", "Observation type (default context)")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session ID")
	cmd.Flags().StringVar(&filePath, "file", "", "Related file")
	cmd.Flags().StringVar(&branch, "branch", "", "Branch")
	return cmd
}

func newMemorySearchCmd(c *cli) *cobra.Command {
	var (
		flags memoryFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search observations; without a query, list the newest",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			results, err := a.SearchMemories(cmd.Context(), strings.Join(args, " "), filter, limit)
			if err != nil {
				return err
			}
			w := c.out(cmd)
			if len(results) == 0 {
				w.Status("", "no observations")
				return nil
			}
			for _, r := range results {
				printObservation(w, r.Observation, fmt.Sprintf("%.3f", r.Score))
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of observations")
	return cmd
}

func newMemoryTimelineCmd(c *cli) *cobra.Command {
	var (
		flags         memoryFlags
		before, after int
	)
	cmd := &cobra.Command{
		Use:   "timeline <id>",
		Short: "Show the observations around one observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			obs, err := a.GetTimeline(cmd.Context(), args[0], before, after, filter)
			if err != nil {
				return err
			}
			w := c.out(cmd)
			for _, o := range obs {
				mark := ""
				if o.ID == args[0] {
					mark = "anchor"
				}
				printObservation(w, o, mark)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&before, "before", 5, "Observations before the anchor")
	cmd.Flags().IntVar(&after, "after", 5, "Observations after the anchor")
	return cmd
}

func newMemoryGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>...",
		Short: "Print observations by ID",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			obs, err := a.GetObservations(cmd.Context(), args)
			if err != nil {
				return err
			}
			return c.out(cmd).JSON(obs)
		},
	}
}

func newMemoryDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an observation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			if err := a.DeleteObservation(cmd.Context(), args[0]); err != nil {
				return err
			}
			c.out(cmd).Successf("deleted %s", args[0])
			return nil
		},
	}
}

func newMemorySummaryCmd(c *cli) *cobra.Command {
	var sum domain.SessionSummary
	cmd := &cobra.Command{
		Use:   "summary <session-id>",
		Short: "Store or print the summary of a session",
		Long: `With any of --topic, --decision, --next or --file, store a summary
for the session. Without them, print the latest stored summary.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.openApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			sum.SessionID = args[0]
			if len(sum.Topics)+len(sum.Decisions)+len(sum.NextSteps)+len(sum.KeyFiles) == 0 {
				got, err := a.GetSessionSummary(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return c.out(cmd).JSON(got)
			}
			if err := a.StoreSessionSummary(cmd.Context(), &sum); err != nil {
				return err
			}
			c.out(cmd).Successf("stored summary %s for session %s", sum.ID, sum.SessionID)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&sum.Topics, "topic", nil, "Topic (repeatable)")
	cmd.Flags().StringSliceVar(&sum.Decisions, "decision", nil, "Decision (repeatable)")
	cmd.Flags().StringSliceVar(&sum.NextSteps, "next", nil, "Next step (repeatable)")
	cmd.Flags().StringSliceVar(&sum.KeyFiles, "file", nil, "Key file (repeatable)")
	cmd.Flags().StringToStringVar(&sum.OriginContext, "origin", nil, "What started the session")
	return cmd
}

func printObservation(w *output.Writer, o *domain.Observation, note string) {
	head := fmt.Sprintf("%s [%s] %s", o.ID, o.Type, time.Unix(o.CreatedAt, 0).Format(time.DateTime))
	if note != "" {
		head += " " + note
	}
	w.Header(head)
	if len(o.Tags) > 0 {
		w.Status("", "tags: "+strings.Join(o.Tags, ", "))
	}
	w.Code(o.Content)
}
