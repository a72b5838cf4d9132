// Package cli implements the gamify command-line interface using Cobra.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/learnpath/gamify/internal/daemon"
)

var rootCmd = &cobra.Command{
	Use:   "gamify",
	Short: "gamify: XP, streaks, goals, badges and weekly leagues",
	Long: `gamify is the engagement engine behind a learning platform.
It tracks XP and levels, daily streaks with freezes, daily lesson goals,
badges and the weekly tiered leaderboard.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// openDaemon wires every service from the on-disk configuration.
func openDaemon(ctx context.Context) (*daemon.Daemon, error) {
	return daemon.New(ctx, rootCmd.Version)
}
