package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rolloverCmd.Flags().BoolVar(&rolloverCheck, "check", false, "Only report whether a rollover is due")
	rootCmd.AddCommand(rolloverCmd)
}

var rolloverCheck bool

var rolloverCmd = &cobra.Command{
	Use:   "rollover",
	Short: "Close the weekly leaderboard if the week has ended",
	Long: `Rank every league, apply promotions and demotions and reset weekly XP.
Running it again within the same week does nothing.`,
	RunE: runRollover,
}

func runRollover(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()
	out := cmd.OutOrStdout()

	if rolloverCheck {
		due, err := d.League.RolloverDue(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Rollover due: %t\n", due)
		return nil
	}

	r, err := d.League.Rollover(cmd.Context())
	if err != nil {
		return err
	}
	switch {
	case !r.Processed:
		fmt.Fprintf(out, "%s (week %s)\n", r.Message, r.WeekID)
	case r.Initialized:
		fmt.Fprintf(out, "Initialized week %s\n", r.WeekID)
	default:
		fmt.Fprintf(out, "Closed week %s: %d participants, %d promoted, %d demoted\n",
			r.PreviousWeekID, r.Participants, r.Promotions, r.Demotions)
		fmt.Fprintf(out, "Current week: %s\n", r.WeekID)
	}
	return nil
}
