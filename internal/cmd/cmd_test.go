package cmd

import (
	"strings"
	"testing"

	"github.com/omx/teamctl/internal/core"
)

func TestSplitNonEmptyTrimsAndDropsBlanks(t *testing.T) {
	got := splitNonEmpty(" w1, w2 ,,w3")
	want := []string{"w1", "w2", "w3"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestSplitNonEmptyEmptyStringYieldsNoWorkers(t *testing.T) {
	if got := splitNonEmpty(""); len(got) != 0 {
		t.Fatalf("expected no workers, got %v", got)
	}
}

func TestRenderTaskCountsEmptyIsNoTasks(t *testing.T) {
	if got := renderTaskCounts(nil); !strings.Contains(got, "no tasks") {
		t.Fatalf("expected no-tasks message, got %q", got)
	}
}

func TestRenderTaskCountsFormatsEachStatus(t *testing.T) {
	counts := map[core.TaskStatus]int{core.TaskPending: 2}
	got := renderTaskCounts(counts)
	if !strings.Contains(got, "pending=2") {
		t.Fatalf("expected pending=2 in %q", got)
	}
}

func TestRenderWorkerTableIncludesEveryWorkerName(t *testing.T) {
	rows := []core.WorkerRow{
		{Name: "w1", Alive: true, State: "working"},
		{Name: "w2", Alive: false, State: "idle"},
	}
	got := renderWorkerTable(rows)
	for _, name := range []string{"w1", "w2"} {
		if !strings.Contains(got, name) {
			t.Fatalf("expected %q in table, got %q", name, got)
		}
	}
}

func TestRequestedByCLINeverEmpty(t *testing.T) {
	if requestedByCLI() == "" {
		t.Fatal("expected a non-empty requester identity")
	}
}
