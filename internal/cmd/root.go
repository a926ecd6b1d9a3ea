// Package cmd implements the minimal launcher CLI of spec.md §6: command
// parsing and flag normalization only, delegating everything else to the
// internal/team wiring layer. Grounded on teacher cmd/gt/main.go's
// one-line main calling cmd.Execute(), and on the teacher's cobra.Command
// var-plus-init()-registration convention seen throughout internal/cmd
// (e.g. dashboardCmd/bootCmd), generalized here to a much smaller surface:
// team start/stop/status only, nothing else in scope.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "teamctl",
	Short: "Coordinate a team of autonomous coding agents",
	Long: `teamctl starts, monitors, and tears down a team of autonomous coding
agents cooperating on a single project under a leader agent.`,
	SilenceUsage: true,
}

// Execute runs the CLI and returns the process exit code, mirroring
// teacher cmd/gt/main.go's os.Exit(cmd.Execute()) wiring.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	return 0
}

func init() {
	rootCmd.AddCommand(teamCmd)
}

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Manage a team of autonomous coding agents",
}
