package cli

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/learnpath/gamify/internal/app/engagement"
)

func init() {
	levelCmd.Flags().IntVarP(&levelRows, "levels", "n", 20, "Number of levels to list")
	rootCmd.AddCommand(levelCmd)
}

var levelRows int

var levelCmd = &cobra.Command{
	Use:   "level [total-xp]",
	Short: "Show the level curve, or the level for a total XP",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runLevel,
}

func runLevel(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

	if len(args) == 1 {
		xp, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || xp < 0 {
			return fmt.Errorf("total XP must be a non-negative integer, got %q", args[0])
		}
		info := engagement.CalculateLevel(xp)
		fmt.Fprintln(w, "LEVEL\tCURRENT XP\tTO NEXT\tPROGRESS")
		fmt.Fprintf(w, "%d\t%d\t%d\t%.2f%%\n", info.Level, info.CurrentXP, info.XPToNextLevel, info.ProgressPercent)
		return w.Flush()
	}

	if levelRows < 1 {
		return fmt.Errorf("--levels must be positive")
	}
	fmt.Fprintln(w, "LEVEL\tREACHED AT\tCOST")
	for _, s := range engagement.LevelTable(levelRows) {
		fmt.Fprintf(w, "%d\t%d\t%d\n", s.Level, s.ReachedAt, s.Cost)
	}
	return w.Flush()
}
