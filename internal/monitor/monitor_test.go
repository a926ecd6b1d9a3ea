package monitor

import (
	"testing"
	"time"

	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/multiplex"
	"github.com/omx/teamctl/internal/store"
)

func seedTeam(t *testing.T, s *store.Store, workers ...core.WorkerInfo) {
	t.Helper()
	if err := s.EnsureTeamTree("alpha"); err != nil {
		t.Fatalf("EnsureTeamTree: %v", err)
	}
	if err := s.WriteConfig("alpha", &core.Config{
		Name: "alpha", MaxWorkers: 5, WorkerCount: len(workers), Workers: workers,
		NextTaskID: 1, CreatedAt: time.Now().UTC(),
	}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
}

func TestRunReturnsNilForUnknownTeam(t *testing.T) {
	s := store.New(t.TempDir())
	mon := New(s, nil)
	summary, err := mon.Run("ghost")
	if err != nil {
		t.Fatalf("expected no error for unknown team, got %v", err)
	}
	if summary != nil {
		t.Fatalf("expected nil summary for unknown team, got %+v", summary)
	}
}

func TestRunDerivesTaskCompletedEventOnStatusFlip(t *testing.T) {
	s := store.New(t.TempDir())
	seedTeam(t, s, core.WorkerInfo{Name: "w1", Index: 1, PaneID: "%1"})
	task, err := s.CreateTask("alpha", store.TaskPartial{Subject: "s"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	fake := multiplex.NewFakeAdapter("%leader")
	fake.SeedPane("%1")
	mon := New(s, fake)

	if _, err := mon.Run("alpha"); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	if _, err := s.UpdateTask("alpha", task.ID, store.TaskPatch{Status: ptr(core.TaskCompleted)}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	if _, err := mon.Run("alpha"); err != nil {
		t.Fatalf("second Run: %v", err)
	}

	events, err := s.ReadEvents("alpha")
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	found := false
	for _, e := range events {
		if e.Type == core.EventTaskCompleted && e.TaskID == task.ID {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a task_completed event for %s, got %v", task.ID, events)
	}
}

func TestRunDetectsWorkerStoppedAndDeadWorkerRecommendation(t *testing.T) {
	s := store.New(t.TempDir())
	seedTeam(t, s, core.WorkerInfo{Name: "w1", Index: 1, PaneID: "%1"})
	task, err := s.CreateTask("alpha", store.TaskPartial{Subject: "s"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.WriteWorkerIdentity("alpha", &core.WorkerIdentity{Name: "w1", PaneID: "%1", AssignedTasks: []string{task.ID}}); err != nil {
		t.Fatalf("WriteWorkerIdentity: %v", err)
	}
	if err := s.WriteWorkerStatus("alpha", "w1", &core.WorkerStatus{State: core.WorkerWorking, CurrentTaskID: task.ID, UpdatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("WriteWorkerStatus: %v", err)
	}
	if _, err := s.UpdateTask("alpha", task.ID, store.TaskPatch{Status: ptr(core.TaskInProgress)}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	fake := multiplex.NewFakeAdapter("%leader")
	fake.SeedPane("%1")
	mon := New(s, fake)
	if _, err := mon.Run("alpha"); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	if err := fake.KillPane("%1"); err != nil {
		t.Fatalf("KillPane: %v", err)
	}

	summary, err := mon.Run("alpha")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(summary.DeadWorkers) != 1 || summary.DeadWorkers[0] != "w1" {
		t.Fatalf("expected w1 listed dead, got %v", summary.DeadWorkers)
	}
	if len(summary.Recommendations) == 0 {
		t.Fatal("expected a reassignment recommendation for the dead worker's task")
	}

	events, err := s.ReadEvents("alpha")
	if err != nil {
		t.Fatalf("ReadEvents: %v", err)
	}
	foundStopped := false
	for _, e := range events {
		if e.Type == core.EventWorkerStopped && e.Worker == "w1" {
			foundStopped = true
		}
	}
	if !foundStopped {
		t.Fatalf("expected a worker_stopped event, got %v", events)
	}
}

func TestRunFlagsNonReportingWorkerAfterThreshold(t *testing.T) {
	s := store.New(t.TempDir())
	seedTeam(t, s, core.WorkerInfo{Name: "w1", Index: 1, PaneID: "%1"})
	task, err := s.CreateTask("alpha", store.TaskPartial{Subject: "s"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}
	if err := s.WriteWorkerStatus("alpha", "w1", &core.WorkerStatus{State: core.WorkerWorking, CurrentTaskID: task.ID, UpdatedAt: time.Now().UTC()}); err != nil {
		t.Fatalf("WriteWorkerStatus: %v", err)
	}
	if err := s.WriteWorkerHeartbeat("alpha", "w1", &core.WorkerHeartbeat{TurnCount: 10, Alive: true}); err != nil {
		t.Fatalf("WriteWorkerHeartbeat: %v", err)
	}

	fake := multiplex.NewFakeAdapter("%leader")
	fake.SeedPane("%1")
	mon := New(s, fake)
	if _, err := mon.Run("alpha"); err != nil {
		t.Fatalf("first Run: %v", err)
	}

	if err := s.WriteWorkerHeartbeat("alpha", "w1", &core.WorkerHeartbeat{TurnCount: 20, Alive: true}); err != nil {
		t.Fatalf("WriteWorkerHeartbeat: %v", err)
	}

	summary, err := mon.Run("alpha")
	if err != nil {
		t.Fatalf("second Run: %v", err)
	}
	if len(summary.NonReportingWorkers) != 1 || summary.NonReportingWorkers[0] != "w1" {
		t.Fatalf("expected w1 flagged non-reporting (delta 10 > threshold %d), got %v", NonReportingTurnThreshold, summary.NonReportingWorkers)
	}
}

func TestRunRetriggersStalePendingMailbox(t *testing.T) {
	s := store.New(t.TempDir())
	seedTeam(t, s, core.WorkerInfo{Name: "w1", Index: 1, PaneID: "%1"})
	if err := s.WriteWorkerIdentity("alpha", &core.WorkerIdentity{Name: "w1", PaneID: "%1"}); err != nil {
		t.Fatalf("WriteWorkerIdentity: %v", err)
	}
	old := time.Now().UTC().Add(-time.Minute)
	mb := &core.Mailbox{Worker: "w1", Messages: []core.MailboxMessage{
		{MessageID: "m1", FromWorker: "w2", ToWorker: "w1", Body: "hi", CreatedAt: old, NotifiedAt: &old},
	}}
	if err := s.WriteMailboxUnderLock("alpha", mb); err != nil {
		t.Fatalf("WriteMailboxUnderLock: %v", err)
	}

	fake := multiplex.NewFakeAdapter("%leader")
	fake.SeedPane("%1")
	mon := New(s, fake)
	mon.NotifyRetryHorizon = time.Second

	if _, err := mon.Run("alpha"); err != nil {
		t.Fatalf("Run: %v", err)
	}

	state, _ := fake.PaneState("%1")
	if state.Submits == 0 {
		t.Fatal("expected a mailbox retrigger to have been sent to the worker's pane")
	}

	got, err := s.ReadMailbox("alpha", "w1")
	if err != nil {
		t.Fatalf("ReadMailbox: %v", err)
	}
	if got.Messages[0].NotifiedAt == nil || !got.Messages[0].NotifiedAt.After(old) {
		t.Fatalf("expected notified_at refreshed, got %+v", got.Messages[0])
	}
}

func ptr(s core.TaskStatus) *core.TaskStatus { return &s }
