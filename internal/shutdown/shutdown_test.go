package shutdown

import (
	"testing"
	"time"

	"github.com/omx/teamctl/internal/bootstrap"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/multiplex"
	"github.com/omx/teamctl/internal/store"
)

func seedTeam(t *testing.T, s *store.Store, fake *multiplex.FakeAdapter, workers ...core.WorkerInfo) {
	t.Helper()
	if err := s.EnsureTeamTree("alpha"); err != nil {
		t.Fatalf("EnsureTeamTree: %v", err)
	}
	if err := s.WriteConfig("alpha", &core.Config{
		Name: "alpha", MaxWorkers: 5, WorkerCount: len(workers), Workers: workers,
		NextTaskID: 1, CreatedAt: time.Now().UTC(), LeaderPaneID: "%leader",
	}); err != nil {
		t.Fatalf("WriteConfig: %v", err)
	}
	for _, w := range workers {
		pane := fake.SeedPane(w.PaneID)
		pane.Buffer = "›"
	}
}

func quickOpts() Options {
	return Options{Deadline: 500 * time.Millisecond, PollInterval: 10 * time.Millisecond}
}

func TestShutdownTeamUnknownTeamIsNoOp(t *testing.T) {
	s := store.New(t.TempDir())
	c := New(s, nil, nil)
	if err := c.ShutdownTeam("ghost", quickOpts()); err != nil {
		t.Fatalf("expected no error for unknown team, got %v", err)
	}
}

func TestShutdownTeamAcceptedAckCleansUpTeamTree(t *testing.T) {
	s := store.New(t.TempDir())
	fake := multiplex.NewFakeAdapter("%leader")
	seedTeam(t, s, fake, core.WorkerInfo{Name: "w1", PaneID: "%1"})

	dispatcher := bootstrap.New(s, fake)
	c := New(s, fake, dispatcher)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.WriteShutdownAck("alpha", "w1", &core.ShutdownAck{Status: core.ShutdownAckAccept, UpdatedAt: time.Now().UTC()})
	}()

	if err := c.ShutdownTeam("alpha", quickOpts()); err != nil {
		t.Fatalf("ShutdownTeam: %v", err)
	}

	if _, ok, _ := s.ReadConfig("alpha"); ok {
		t.Fatal("expected the team tree to be removed after clean shutdown")
	}
}

func TestShutdownTeamRejectWithoutForceReturnsShutdownRejected(t *testing.T) {
	s := store.New(t.TempDir())
	fake := multiplex.NewFakeAdapter("%leader")
	seedTeam(t, s, fake, core.WorkerInfo{Name: "w1", PaneID: "%1"})
	dispatcher := bootstrap.New(s, fake)
	c := New(s, fake, dispatcher)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.WriteShutdownAck("alpha", "w1", &core.ShutdownAck{Status: core.ShutdownAckReject, Reason: "mid-edit", UpdatedAt: time.Now().UTC()})
	}()

	err := c.ShutdownTeam("alpha", quickOpts())
	if !core.Is(err, core.CategoryShutdownRejected) {
		t.Fatalf("expected shutdown_rejected, got %v", err)
	}
	// A rejection must not delete team state; the caller may retry.
	if _, ok, _ := s.ReadConfig("alpha"); !ok {
		t.Fatal("expected team config to survive a rejected (non-forced) shutdown")
	}
}

func TestShutdownTeamForceBypassesRejection(t *testing.T) {
	s := store.New(t.TempDir())
	fake := multiplex.NewFakeAdapter("%leader")
	seedTeam(t, s, fake, core.WorkerInfo{Name: "w1", PaneID: "%1"})
	dispatcher := bootstrap.New(s, fake)
	c := New(s, fake, dispatcher)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.WriteShutdownAck("alpha", "w1", &core.ShutdownAck{Status: core.ShutdownAckReject, Reason: "mid-edit", UpdatedAt: time.Now().UTC()})
	}()

	opts := quickOpts()
	opts.Force = true
	if err := c.ShutdownTeam("alpha", opts); err != nil {
		t.Fatalf("expected force=true to bypass the rejection, got %v", err)
	}
	if _, ok, _ := s.ReadConfig("alpha"); ok {
		t.Fatal("expected team tree removed once force bypasses the rejection")
	}
}

func TestShutdownTeamForceKillsUnresponsiveWorkerExcludingLeaderPane(t *testing.T) {
	s := store.New(t.TempDir())
	fake := multiplex.NewFakeAdapter("%leader")
	seedTeam(t, s, fake, core.WorkerInfo{Name: "w1", PaneID: "%1"})
	fake.SeedPane("%leader")
	dispatcher := bootstrap.New(s, fake)
	c := New(s, fake, dispatcher)

	// No ack ever arrives: the deadline passes and the worker pane must
	// be force-killed, never the leader's own pane.
	if err := c.ShutdownTeam("alpha", quickOpts()); err != nil {
		t.Fatalf("ShutdownTeam: %v", err)
	}

	alive, _ := fake.IsPaneAlive("%1")
	if alive {
		t.Fatal("expected the unresponsive worker pane to be force-killed")
	}
	leaderAlive, err := fake.IsPaneAlive("%leader")
	if err != nil {
		t.Fatalf("IsPaneAlive leader: %v", err)
	}
	if !leaderAlive {
		t.Fatal("expected the leader pane to survive the shutdown")
	}
}

func TestShutdownTeamMultiWorkerMixedAckOnlyNamesRejector(t *testing.T) {
	s := store.New(t.TempDir())
	fake := multiplex.NewFakeAdapter("%leader")
	seedTeam(t, s, fake, core.WorkerInfo{Name: "w1", PaneID: "%1"}, core.WorkerInfo{Name: "w2", PaneID: "%2"})
	dispatcher := bootstrap.New(s, fake)
	c := New(s, fake, dispatcher)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = s.WriteShutdownAck("alpha", "w1", &core.ShutdownAck{Status: core.ShutdownAckAccept, UpdatedAt: time.Now().UTC()})
		_ = s.WriteShutdownAck("alpha", "w2", &core.ShutdownAck{Status: core.ShutdownAckReject, Reason: "busy", UpdatedAt: time.Now().UTC()})
	}()

	err := c.ShutdownTeam("alpha", quickOpts())
	ce, ok := err.(*core.Error)
	if !ok || ce.Category != core.CategoryShutdownRejected {
		t.Fatalf("expected shutdown_rejected, got %v", err)
	}
	if ce.Detail != "w2:busy" {
		t.Fatalf("expected detail to name only the rejecting worker, got %q", ce.Detail)
	}
}
