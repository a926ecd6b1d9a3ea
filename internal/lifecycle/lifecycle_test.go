package lifecycle

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/overlay"
	"github.com/omx/teamctl/internal/store"
)

func newHooks(t *testing.T) (*Hooks, string) {
	t.Helper()
	dir := t.TempDir()
	s := store.New(dir)
	instructions := dir + "/CLAUDE.md"
	if err := os.WriteFile(instructions, []byte("# Project notes\n"), 0o644); err != nil {
		t.Fatalf("seed instructions file: %v", err)
	}
	return New(s, overlay.New(dir), instructions), instructions
}

func sampleCtx() overlay.Context {
	return overlay.Context{Project: "proj", StartedAt: time.Now(), ActiveModes: []string{"autopilot"}}
}

func TestPreLaunchWritesSessionAndInstructions(t *testing.T) {
	h, instructions := newHooks(t)

	sess, res := h.PreLaunch(sampleCtx())
	if err := res.Err(); err != nil {
		t.Fatalf("PreLaunch: %v", err)
	}
	if sess.SessionID == "" {
		t.Fatal("expected a generated session id")
	}

	got, ok, err := h.Store.ReadSession()
	if err != nil || !ok {
		t.Fatalf("expected session.json written, ok=%v err=%v", ok, err)
	}
	if got.SessionID != sess.SessionID {
		t.Fatalf("session mismatch: %+v vs %+v", got, sess)
	}

	data, err := os.ReadFile(instructions)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !strings.Contains(string(data), overlay.RuntimeStartMarker) {
		t.Fatal("expected runtime overlay block spliced into instructions file")
	}
}

func TestPreLaunchCleansUpStaleSessionFromDeadPid(t *testing.T) {
	h, _ := newHooks(t)
	stale := &core.Session{SessionID: "old", StartedAt: time.Now().Add(-time.Hour).UTC(), Project: h.Store.Project, PID: 999999}
	if err := h.Store.WriteSession(stale); err != nil {
		t.Fatalf("seed stale session: %v", err)
	}

	sess, res := h.PreLaunch(sampleCtx())
	if err := res.Err(); err != nil {
		t.Fatalf("PreLaunch: %v", err)
	}
	if sess.SessionID == "old" {
		t.Fatal("expected a fresh session id, not the stale one")
	}
}

func TestPostLaunchStripsArchivesAndCancelsModes(t *testing.T) {
	h, instructions := newHooks(t)
	sess, res := h.PreLaunch(sampleCtx())
	if err := res.Err(); err != nil {
		t.Fatalf("PreLaunch: %v", err)
	}

	if err := h.Store.WriteModeState("autopilot", sess.SessionID, &core.ModeState{Active: true}); err != nil {
		t.Fatalf("WriteModeState: %v", err)
	}

	postRes := h.PostLaunch(sess)
	if err := postRes.Err(); err != nil {
		t.Fatalf("PostLaunch: %v", err)
	}

	data, err := os.ReadFile(instructions)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), overlay.RuntimeStartMarker) {
		t.Fatal("expected runtime overlay block stripped")
	}

	if _, ok, _ := h.Store.ReadSession(); ok {
		t.Fatal("expected session.json removed after archiving")
	}

	ms, ok, err := h.Store.ReadModeState("autopilot", sess.SessionID)
	if err != nil || !ok {
		t.Fatalf("expected mode state to still exist (cancelled, not deleted): ok=%v err=%v", ok, err)
	}
	if ms.Active || ms.CompletedAt == nil {
		t.Fatalf("expected mode cancelled with completed_at set, got %+v", ms)
	}
}
