package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/stats"
)

// Stats command flags.
var statsClear bool

// StatsCmd shows the fairness report for the completed meeting.
var StatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the speaking-time fairness report",
	Long: `Show the speaking-time fairness report for the completed meeting.

For each category with participants: total speaking time, share of the
meeting, number of turns, average turn length, time per participant, and
the fair share (what that category would have spoken if time were split
evenly per head).

Categories with zero participants are left out entirely.

Examples:
  airtime stats
  airtime stats --output json
  airtime stats --clear      Show the report, then delete the meeting records`,
	RunE: runStats,
}

func init() {
	StatsCmd.Flags().BoolVar(&statsClear, "clear", false, "Delete the meeting records after showing the report")
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := getConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}

	m, err := st.LoadCompletedMeeting(ctx)
	if err != nil {
		if aterrors.IsNotFound(err) {
			// A meeting that ended without the final commit still has
			// its committed turns in the current record.
			if cur, curErr := st.LoadCurrentMeeting(ctx); curErr == nil && !cur.Active {
				m = cur
			} else {
				return fmt.Errorf("no completed meeting found; end one with 'airtime meeting end' first")
			}
		} else {
			return err
		}
	}
	m.Normalize()

	report := stats.Calculate(m)
	if err := renderOutput(cmd, cfg.OutputFormat, report, report.RenderText); err != nil {
		return err
	}

	if statsClear {
		if err := st.Clear(ctx); err != nil {
			return fmt.Errorf("clearing meeting records: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Meeting records cleared.")
	}
	return nil
}
