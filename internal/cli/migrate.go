package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(migrateCmd)
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Rewrite stored profiles in canonical form",
	Long: `Rewrite every profile so legacy badge records (bare IDs, duplicate
unlocks) are stored as one {badgeId, unlockedAt} entry per badge.`,
	RunE: runMigrate,
}

func runMigrate(cmd *cobra.Command, args []string) error {
	d, err := openDaemon(cmd.Context())
	if err != nil {
		return err
	}
	defer d.Close()

	n, err := d.Engagement.NormalizeProfiles(cmd.Context())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Migrated %d profiles\n", n)
	return nil
}
