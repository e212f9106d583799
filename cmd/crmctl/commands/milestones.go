package commands

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func milestonesCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "milestones",
		Short: "List the allowed milestone values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := a.service.Milestones()
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), opts)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "KEY\tLABEL")
			for _, o := range opts {
				fmt.Fprintf(tw, "%s\t%s %s\n", o.Key, o.Emoji, o.Label)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	cmd.AddCommand(setMilestoneCmd(a))
	return cmd
}

func setMilestoneCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "set <company-id> <milestone>",
		Short:   "Set one company's milestone",
		Example: "  crmctl milestones set 42 meeting_arranged",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid company id %q", args[0])
			}
			c, err := a.service.UpdateMilestone(cmd.Context(), id, args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", c.Name, c.Milestone.DisplayWithEmoji())
			return nil
		},
	}
}

func statsCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Count companies per milestone",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			stats, err := a.service.MilestoneStats(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "MILESTONE\tCOMPANIES")
			for _, c := range stats.Counts {
				fmt.Fprintf(tw, "%s\t%d\n", c.Key, c.Count)
			}
			fmt.Fprintf(tw, "total\t%d\n", stats.Total)
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
