package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/omx/teamctl/internal/core"
)

var teamStatusCmd = &cobra.Command{
	Use:   "status <team-name>",
	Short: "Run one monitor cycle and render the resulting team summary",
	Args:  cobra.ExactArgs(1),
	RunE:  runTeamStatus,
}

func init() {
	teamCmd.AddCommand(teamStatusCmd)
}

var (
	statusBold  = lipgloss.NewStyle().Bold(true)
	statusDim   = lipgloss.NewStyle().Faint(true)
	statusGreen = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	statusRed   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
)

func runTeamStatus(cmd *cobra.Command, args []string) error {
	name := args[0]

	tm, err := loadTeam()
	if err != nil {
		return err
	}

	snap, err := tm.RunMonitorCycle(name)
	if err != nil {
		return fmt.Errorf("running monitor cycle for team %q: %w", name, err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, statusBold.Render(fmt.Sprintf("team %s", name)))
	fmt.Fprintln(out, renderTaskCounts(snap.TaskCounts))
	fmt.Fprintln(out, renderWorkerTable(snap.Workers))

	if len(snap.DeadWorkers) > 0 {
		fmt.Fprintln(out, statusRed.Render("dead: "+strings.Join(snap.DeadWorkers, ", ")))
	}
	if len(snap.NonReportingWorkers) > 0 {
		fmt.Fprintln(out, statusRed.Render("non-reporting: "+strings.Join(snap.NonReportingWorkers, ", ")))
	}
	for _, rec := range snap.Recommendations {
		fmt.Fprintln(out, statusDim.Render("- "+rec))
	}
	if snap.AllTasksTerminal {
		fmt.Fprintln(out, statusGreen.Render("all tasks terminal"))
	}
	return nil
}

func renderTaskCounts(counts map[core.TaskStatus]int) string {
	if len(counts) == 0 {
		return statusDim.Render("no tasks")
	}
	parts := make([]string, 0, len(counts))
	for status, n := range counts {
		parts = append(parts, fmt.Sprintf("%s=%d", status, n))
	}
	return strings.Join(parts, "  ")
}

// renderWorkerTable formats one row per worker, truncating each row
// to the terminal width the way the teacher's style.Table pads
// and truncates columns, but scoped to just the fields team status
// needs rather than a general-purpose table type.
func renderWorkerTable(rows []core.WorkerRow) string {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		width = 100
	}

	var b strings.Builder
	header := fmt.Sprintf("%-16s %-6s %-10s %-10s %s", "worker", "alive", "state", "task", "turns stalled")
	b.WriteString(statusBold.Render(header))
	b.WriteString("\n")
	for _, w := range rows {
		alive := "no"
		if w.Alive {
			alive = "yes"
		}
		line := fmt.Sprintf("%-16s %-6s %-10s %-10s %s",
			w.Name, alive, w.State, w.CurrentTaskID, strconv.Itoa(w.TurnsWithoutProgress))
		if len(line) > width {
			line = line[:width]
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
