package team

import (
	"strings"
	"testing"
	"time"

	"github.com/omx/teamctl/internal/config"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/multiplex"
	"github.com/omx/teamctl/internal/store"
)

func quickEnv() config.RuntimeEnv {
	env := config.Defaults()
	env.ReadyTimeout = 200 * time.Millisecond
	return env
}

func TestStartTeamPersistsConfigAndDispatchesToEveryWorkerPane(t *testing.T) {
	fake := multiplex.NewFakeAdapter("%leader")
	p1 := fake.SeedPane("%1")
	p1.Buffer = "›"
	p2 := fake.SeedPane("%2")
	p2.Buffer = "›"

	tm := New(t.TempDir(), fake, quickEnv())
	cfg := &core.Config{
		Name:       "alpha",
		MaxWorkers: 5,
		NextTaskID: 1,
		CreatedAt:  time.Now().UTC(),
		Workers: []core.WorkerInfo{
			{Name: "w1", Index: 0, PaneID: "%1"},
			{Name: "w2", Index: 1, PaneID: "%2"},
		},
	}

	if err := tm.StartTeam(cfg); err != nil {
		t.Fatalf("StartTeam: %v", err)
	}

	stored, _, err := tm.Store.ReadConfig("alpha")
	if err != nil {
		t.Fatalf("ReadConfig: %v", err)
	}
	if stored.Name != "alpha" {
		t.Fatalf("expected persisted config, got %+v", stored)
	}

	for _, id := range []string{"%1", "%2"} {
		inbox, ok, err := tm.Store.ReadWorkerInbox("alpha", workerNameForPane(cfg, id))
		if err != nil || !ok {
			t.Fatalf("expected inbox written for pane %s, ok=%v err=%v", id, ok, err)
		}
		if !strings.Contains(inbox, "Welcome") {
			t.Fatalf("unexpected inbox contents: %q", inbox)
		}
	}
}

func TestStartTeamSkipsWorkersWithoutAPane(t *testing.T) {
	fake := multiplex.NewFakeAdapter("%leader")
	tm := New(t.TempDir(), fake, quickEnv())
	cfg := &core.Config{
		Name:       "alpha",
		MaxWorkers: 5,
		NextTaskID: 1,
		CreatedAt:  time.Now().UTC(),
		Workers:    []core.WorkerInfo{{Name: "w1", Index: 0}},
	}
	if err := tm.StartTeam(cfg); err != nil {
		t.Fatalf("expected no error when no worker has a pane yet: %v", err)
	}
}

func TestAssignTaskRollsBackClaimWhenDispatchFails(t *testing.T) {
	fake := multiplex.NewFakeAdapter("%leader")
	fake.SeedPane("%1") // never becomes ready: buffer stays empty

	tm := New(t.TempDir(), fake, quickEnv())
	cfg := &core.Config{Name: "alpha", MaxWorkers: 5, NextTaskID: 1, CreatedAt: time.Now().UTC()}
	if err := tm.Store.EnsureTeamTree("alpha"); err != nil {
		t.Fatalf("EnsureTeamTree: %v", err)
	}
	if err := tm.Store.WriteConfig("alpha", cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	created, err := tm.Store.CreateTask("alpha", store.TaskPartial{Subject: "do the thing"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	_, err = tm.AssignTask("alpha", created.ID, "w1", "%1")
	if err == nil {
		t.Fatal("expected dispatch failure to surface as an error")
	}

	reverted, _, err := tm.Store.ReadTask("alpha", created.ID)
	if err != nil {
		t.Fatalf("ReadTask: %v", err)
	}
	if reverted.Status != core.TaskPending || reverted.Claim != nil {
		t.Fatalf("expected claim rolled back to pending, got %+v", reverted)
	}
}

func TestAssignTaskRejectsDelegationOnlyToReservedWorker(t *testing.T) {
	fake := multiplex.NewFakeAdapter("%leader")
	tm := New(t.TempDir(), fake, quickEnv())
	cfg := &core.Config{Name: "alpha", MaxWorkers: 5, NextTaskID: 1, CreatedAt: time.Now().UTC()}
	if err := tm.Store.EnsureTeamTree("alpha"); err != nil {
		t.Fatalf("EnsureTeamTree: %v", err)
	}
	if err := tm.Store.WriteConfig("alpha", cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := tm.Store.WriteManifest("alpha", &core.Manifest{Config: *cfg, Policy: core.Policy{DelegationOnly: true}}); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	created, err := tm.Store.CreateTask("alpha", store.TaskPartial{Subject: "do the thing"})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	_, err = tm.AssignTask("alpha", created.ID, core.ReservedLeaderWorker, "%1")
	if !core.Is(err, core.CategoryDelegationOnly) {
		t.Fatalf("expected delegation_only_violation, got %v", err)
	}

	reread, _, err := tm.Store.ReadTask("alpha", created.ID)
	if err != nil {
		t.Fatalf("ReadTask: %v", err)
	}
	if reread.Status != core.TaskPending || reread.Claim != nil {
		t.Fatalf("expected task to remain unclaimed after a rejected assignment, got %+v", reread)
	}
}

func TestAssignTaskRejectsUnapprovedPlanWhenRequired(t *testing.T) {
	fake := multiplex.NewFakeAdapter("%leader")
	tm := New(t.TempDir(), fake, quickEnv())
	cfg := &core.Config{Name: "alpha", MaxWorkers: 5, NextTaskID: 1, CreatedAt: time.Now().UTC()}
	if err := tm.Store.EnsureTeamTree("alpha"); err != nil {
		t.Fatalf("EnsureTeamTree: %v", err)
	}
	if err := tm.Store.WriteConfig("alpha", cfg); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	if err := tm.Store.WriteManifest("alpha", &core.Manifest{Config: *cfg, Policy: core.Policy{PlanApprovalRequired: true}}); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}
	created, err := tm.Store.CreateTask("alpha", store.TaskPartial{Subject: "ship it", RequiresCodeChange: true})
	if err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	_, err = tm.AssignTask("alpha", created.ID, "w1", "%1")
	if !core.Is(err, core.CategoryPlanApprovalRequired) {
		t.Fatalf("expected plan_approval_required, got %v", err)
	}
}

func workerNameForPane(cfg *core.Config, paneID string) string {
	for _, w := range cfg.Workers {
		if w.PaneID == paneID {
			return w.Name
		}
	}
	return ""
}
