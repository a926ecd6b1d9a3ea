package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/multiplex"
	"github.com/omx/teamctl/internal/overlay"
)

var (
	startWorkers   string
	startTask      string
	startAgentType string
)

var teamStartCmd = &cobra.Command{
	Use:   "start <team-name>",
	Short: "Split worker panes and bootstrap a new team",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamStart,
}

func init() {
	teamStartCmd.Flags().StringVar(&startWorkers, "workers", "", "comma-separated worker names (required)")
	teamStartCmd.Flags().StringVar(&startTask, "task", "", "one-line task description for the team")
	teamStartCmd.Flags().StringVar(&startAgentType, "agent-type", "codex", "interactive agent CLI the workers run")
	teamCmd.AddCommand(teamStartCmd)
}

func runTeamStart(cmd *cobra.Command, args []string) error {
	name := args[0]
	workerNames := splitNonEmpty(startWorkers)
	if len(workerNames) == 0 {
		return fmt.Errorf("--workers is required (comma-separated worker names)")
	}

	project, err := projectRoot()
	if err != nil {
		return err
	}
	tm, err := loadTeam()
	if err != nil {
		return err
	}

	hooks := loadLifecycleHooks(project)
	_, lifecycleRes := hooks.PreLaunch(overlay.Context{
		Project:   project,
		StartedAt: time.Now().UTC(),
	})
	reportLifecycleResult(cmd.ErrOrStderr(), lifecycleRes)

	leaderPaneID, err := tm.Adapter.CurrentLeaderPaneID()
	if err != nil {
		return fmt.Errorf("resolving leader pane: %w", err)
	}

	workers := make([]core.WorkerInfo, 0, len(workerNames))
	for i, wname := range workerNames {
		paneID, err := tm.Adapter.SplitPane(leaderPaneID, multiplex.SplitOpts{Vertical: true})
		if err != nil {
			return fmt.Errorf("splitting pane for worker %q: %w", wname, err)
		}
		workers = append(workers, core.WorkerInfo{Name: wname, Index: i, PaneID: paneID})
	}

	cfg := &core.Config{
		Name:         name,
		Task:         startTask,
		AgentType:    startAgentType,
		WorkerCount:  len(workers),
		MaxWorkers:   len(workers),
		Workers:      workers,
		CreatedAt:    time.Now().UTC(),
		NextTaskID:   1,
		LeaderPaneID: leaderPaneID,
	}

	if err := tm.StartTeam(cfg); err != nil {
		return fmt.Errorf("starting team %q: %w", name, err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "team %q started with %d worker(s)\n", name, len(workers))
	return nil
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
