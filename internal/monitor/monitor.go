// Package monitor implements one monitor cycle (spec.md §4.8):
// snapshot-diff event derivation, non-reporting-worker detection, and
// mailbox delivery retry. Grounded on the teacher's
// internal/convoy/observer.go diff-current-vs-prior pattern (decide
// whether to act by comparing against the last observed state, not by
// re-deriving everything from scratch) and internal/nudge/queue.go's
// retry-horizon-by-timestamp re-notification rule.
package monitor

import (
	"fmt"
	"time"

	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/multiplex"
	"github.com/omx/teamctl/internal/store"
)

// DefaultNotifyRetryHorizon is how stale a notified_at stamp must be
// before monitor re-sends a mailbox trigger (spec.md §4.8 step 6).
const DefaultNotifyRetryHorizon = 15 * time.Second

// NonReportingTurnThreshold is the turnsWithoutProgress value a working,
// alive worker must exceed to be flagged non-reporting (spec.md §4.8
// step 8).
const NonReportingTurnThreshold = 5

// Monitor runs monitor cycles against a Store and a multiplex Adapter
// (used only for pane liveness and mailbox-retry triggers).
type Monitor struct {
	Store              *store.Store
	Adapter            multiplex.Adapter
	NotifyRetryHorizon time.Duration
}

// New constructs a Monitor with the default retry horizon.
func New(s *store.Store, a multiplex.Adapter) *Monitor {
	return &Monitor{Store: s, Adapter: a, NotifyRetryHorizon: DefaultNotifyRetryHorizon}
}

// Run performs one monitor cycle for team, per spec.md §4.8's eight steps.
func (m *Monitor) Run(team string) (*core.SummarySnapshot, error) {
	cfg, ok, err := m.Store.ReadConfig(team)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	prev, err := m.Store.ReadMonitorSnapshot(team)
	if err != nil {
		return nil, err
	}

	tasks, err := m.Store.ListTasks(team)
	if err != nil {
		return nil, err
	}

	next := &core.MonitorSnapshot{
		TaskStatusByID:             map[string]core.TaskStatus{},
		WorkerAliveByName:          map[string]bool{},
		WorkerStateByName:          map[string]core.WorkerState{},
		WorkerTurnCountByName:      map[string]int{},
		WorkerTaskIDByName:         map[string]string{},
		MailboxNotifiedByMessageID: map[string]time.Time{},
	}

	taskCounts := map[core.TaskStatus]int{}
	for _, t := range tasks {
		taskCounts[t.Status]++
		next.TaskStatusByID[t.ID] = t.Status
		if prevStatus, existed := prev.TaskStatusByID[t.ID]; existed && prevStatus != core.TaskCompleted && t.Status == core.TaskCompleted {
			if _, err := m.Store.AppendTeamEvent(team, store.EventPartial{Type: core.EventTaskCompleted, Worker: t.Owner, TaskID: t.ID}); err != nil {
				return nil, err
			}
		}
	}

	var rows []core.WorkerRow
	var deadWorkers, nonReporting []string
	var recommendations []string

	for _, w := range cfg.Workers {
		status, err := m.Store.ReadWorkerStatus(team, w.Name)
		if err != nil {
			return nil, err
		}
		hb, hbOK, err := m.Store.ReadWorkerHeartbeat(team, w.Name)
		if err != nil {
			return nil, err
		}
		if hb == nil {
			hb = &core.WorkerHeartbeat{}
		}
		identity, _, err := m.Store.ReadWorkerIdentity(team, w.Name)
		if err != nil {
			return nil, err
		}

		alive := false
		if w.PaneID != "" && m.Adapter != nil {
			alive, _ = m.Adapter.IsPaneAlive(w.PaneID)
		} else if hbOK {
			alive = hb.Alive
		}

		turnCount := 0
		if hbOK {
			turnCount = hb.TurnCount
		}

		turnsWithoutProgress := 0
		if prevTurns, existed := prev.WorkerTurnCountByName[w.Name]; existed &&
			prev.WorkerStateByName[w.Name] == core.WorkerWorking &&
			prev.WorkerTaskIDByName[w.Name] == status.CurrentTaskID {
			turnsWithoutProgress = turnCount - prevTurns
			if turnsWithoutProgress < 0 {
				turnsWithoutProgress = 0
			}
		}

		next.WorkerAliveByName[w.Name] = alive
		next.WorkerStateByName[w.Name] = status.State
		next.WorkerTurnCountByName[w.Name] = turnCount
		next.WorkerTaskIDByName[w.Name] = status.CurrentTaskID

		if prevAlive, existed := prev.WorkerAliveByName[w.Name]; existed && prevAlive && !alive {
			if _, err := m.Store.AppendTeamEvent(team, store.EventPartial{Type: core.EventWorkerStopped, Worker: w.Name, Reason: status.Reason}); err != nil {
				return nil, err
			}
		}
		if prevState, existed := prev.WorkerStateByName[w.Name]; existed && prevState != core.WorkerIdle && status.State == core.WorkerIdle {
			if _, err := m.Store.AppendTeamEvent(team, store.EventPartial{Type: core.EventWorkerIdle, Worker: w.Name}); err != nil {
				return nil, err
			}
		}

		var assigned []string
		if identity != nil {
			assigned = identity.AssignedTasks
		}
		rows = append(rows, core.WorkerRow{
			Name: w.Name, Alive: alive, State: status.State, CurrentTaskID: status.CurrentTaskID,
			LastTurnAt: hb.LastTurnAt, AssignedTasks: assigned, TurnsWithoutProgress: turnsWithoutProgress,
		})

		if !alive {
			deadWorkers = append(deadWorkers, w.Name)
			for _, taskID := range assigned {
				if t, tok, _ := m.Store.ReadTask(team, taskID); tok && t.Status == core.TaskInProgress {
					recommendations = append(recommendations, fmt.Sprintf("Reassign task-%s from dead %s", taskID, w.Name))
				}
			}
		}
		if alive && status.State == core.WorkerWorking && turnsWithoutProgress > NonReportingTurnThreshold {
			nonReporting = append(nonReporting, w.Name)
			recommendations = append(recommendations, fmt.Sprintf("Worker %s has made no progress in %d turns; consider intervening", w.Name, turnsWithoutProgress))
		}

		if alive {
			if err := m.retryMailbox(team, w.Name, next); err != nil {
				return nil, err
			}
		}
	}

	if err := m.Store.WriteMonitorSnapshot(team, next); err != nil {
		return nil, err
	}

	allTerminal := true
	for status := range taskCounts {
		if !core.TerminalTaskStatuses[status] && taskCounts[status] > 0 {
			allTerminal = false
			break
		}
	}

	summary := &core.SummarySnapshot{
		TaskCounts: taskCounts, Workers: rows, AllTasksTerminal: allTerminal,
		DeadWorkers: deadWorkers, NonReportingWorkers: nonReporting, Recommendations: recommendations,
	}
	if err := m.Store.WriteSummarySnapshot(team, summary); err != nil {
		return nil, err
	}
	return summary, nil
}

// retryMailbox implements spec.md §4.8 step 6: for a live worker with
// undelivered mail, re-trigger if nothing has been notified yet or the
// oldest notification has crossed the retry horizon, then carries the
// pruned (still-pending only) notified timestamps forward into next.
func (m *Monitor) retryMailbox(team, worker string, next *core.MonitorSnapshot) error {
	mb, err := m.Store.ReadMailbox(team, worker)
	if err != nil {
		return err
	}
	var pending []core.MailboxMessage
	for _, msg := range mb.Messages {
		if msg.DeliveredAt == nil {
			pending = append(pending, msg)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	horizon := m.NotifyRetryHorizon
	if horizon <= 0 {
		horizon = DefaultNotifyRetryHorizon
	}
	now := time.Now().UTC()
	var oldest *time.Time
	for _, msg := range pending {
		if msg.NotifiedAt != nil && (oldest == nil || msg.NotifiedAt.Before(*oldest)) {
			oldest = msg.NotifiedAt
		}
	}
	needsRetrigger := oldest == nil || now.Sub(*oldest) > horizon

	identity, ok, err := m.Store.ReadWorkerIdentity(team, worker)
	if err != nil {
		return err
	}
	if needsRetrigger && ok && identity.PaneID != "" && m.Adapter != nil {
		trigger := fmt.Sprintf("You have %d pending mailbox message(s).", len(pending))
		if err := multiplex.SendTrigger(m.Adapter, identity.PaneID, trigger); err == nil {
			stamped := now
			for i := range mb.Messages {
				if mb.Messages[i].DeliveredAt == nil {
					mb.Messages[i].NotifiedAt = &stamped
				}
			}
			if err := m.Store.WriteMailboxUnderLock(team, mb); err != nil {
				return err
			}
		}
	}

	for _, msg := range mb.Messages {
		if msg.DeliveredAt == nil && msg.NotifiedAt != nil {
			next.MailboxNotifiedByMessageID[msg.MessageID] = *msg.NotifiedAt
		}
	}
	return nil
}
