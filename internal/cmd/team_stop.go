package cmd

import (
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/omx/teamctl/internal/store"
)

var stopForce bool

var teamStopCmd = &cobra.Command{
	Use:   "stop <team-name>",
	Short: "Request a team shut down, killing panes that don't acknowledge in time",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamStop,
}

func init() {
	teamStopCmd.Flags().BoolVar(&stopForce, "force", false, "finish the shutdown even if a worker rejects it (the leader and HUD panes are still never killed)")
	teamCmd.AddCommand(teamStopCmd)
}

func runTeamStop(cmd *cobra.Command, args []string) error {
	name := args[0]

	project, err := projectRoot()
	if err != nil {
		return err
	}
	tm, err := loadTeam()
	if err != nil {
		return err
	}

	if err := tm.ShutdownTeam(name, stopForce, requestedByCLI()); err != nil {
		return fmt.Errorf("stopping team %q: %w", name, err)
	}

	// Strip the instructions overlay, archive the session, and cancel any
	// still-active modes now that the leader's own process is going away
	// (spec.md §4.12). Fault-isolated like PreLaunch: a missing or already
	// archived session just means there is nothing to post-process.
	if sess, ok, err := store.New(project).ReadSession(); err == nil && ok {
		reportLifecycleResult(cmd.ErrOrStderr(), loadLifecycleHooks(project).PostLaunch(sess))
	}

	fmt.Fprintf(cmd.OutOrStdout(), "team %q stopped\n", name)
	return nil
}

// requestedByCLI identifies this process as the shutdown requester
// (spec.md §4.9's ShutdownRequest.requested_by) by the OS username,
// falling back to the hostname and finally a fixed label if neither is
// resolvable.
func requestedByCLI() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return "teamctl"
}
