// Package lifecycle implements the session pre-launch/post-launch hooks
// (spec.md §4.12). Grounded on teacher internal/mayor/manager.go's
// Start/Stop: a short sequence of steps, most of them best-effort
// (`_ = err`-ignored failures that don't block the rest of the sequence),
// generalized from mayor-session bring-up/teardown to this spec's
// session.json + runtime-overlay + mode-state bookkeeping.
package lifecycle

import (
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/omx/teamctl/internal/atomicio"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/overlay"
	"github.com/omx/teamctl/internal/store"
)

func currentPID() int { return os.Getpid() }

// Hooks runs the pre/post-launch sequences against one project's Store
// and runtime overlay.
type Hooks struct {
	Store            *store.Store
	Overlay          *overlay.Overlay
	InstructionsPath string // file the runtime overlay is spliced into
}

// New constructs Hooks for a project root.
func New(s *store.Store, ov *overlay.Overlay, instructionsPath string) *Hooks {
	return &Hooks{Store: s, Overlay: ov, InstructionsPath: instructionsPath}
}

// StepError names which step of a hook sequence failed.
type StepError struct {
	Step string
	Err  error
}

func (e StepError) Error() string { return fmt.Sprintf("%s: %v", e.Step, e.Err) }

// Result collects every step's error without any one step blocking the
// rest (spec.md §4.12: "Each step is fault-isolated: a failure in one
// does not block the others").
type Result struct {
	Errors []StepError
}

// Err returns nil if every step succeeded, or a combined error naming
// every failed step otherwise.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	msg := fmt.Sprintf("%d lifecycle step(s) failed:", len(r.Errors))
	for _, e := range r.Errors {
		msg += " " + e.Error() + ";"
	}
	return fmt.Errorf("%s", msg)
}

func (r *Result) record(step string, err error) {
	if err != nil {
		r.Errors = append(r.Errors, StepError{Step: step, Err: err})
	}
}

// PreLaunch runs the bring-up sequence: detect and clean up a stale
// predecessor session, write a fresh session.json, and generate the
// instructions file via the runtime overlay. Returns the new session even
// if a later step failed, so the caller can still proceed with a
// best-effort launch.
func (h *Hooks) PreLaunch(ctx overlay.Context) (*core.Session, *Result) {
	res := &Result{}

	if stale, prev := h.detectStaleSession(); stale {
		res.record("cleanup_stale_session", h.cleanupStaleSession(prev))
	}

	sess := &core.Session{
		SessionID: uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Project:   h.Store.Project,
		PID:       currentPID(),
	}
	res.record("write_session", h.Store.WriteSession(sess))

	ctx.SessionID = sess.SessionID
	body := overlay.GenerateOverlay(ctx)
	res.record("generate_instructions", h.Overlay.Apply(h.InstructionsPath, body))

	return sess, res
}

// PostLaunch runs the teardown sequence: strip the runtime overlay from
// the instructions file, archive the session (history entry + delete
// session.json), and cancel every mode left active when the session ended.
func (h *Hooks) PostLaunch(sess *core.Session) *Result {
	res := &Result{}

	res.record("strip_instructions", h.Overlay.Strip(h.InstructionsPath))
	res.record("archive_session", h.archiveSession(sess))
	res.record("cancel_active_modes", h.cancelActiveModes(sess.SessionID))

	return res
}

// detectStaleSession reports whether session.json refers to a session
// that predates the current process and whose pid is no longer alive
// (spec.md §4.12).
func (h *Hooks) detectStaleSession() (bool, *core.Session) {
	prev, ok, err := h.Store.ReadSession()
	if err != nil || !ok {
		return false, nil
	}
	if prev.PID == currentPID() {
		return false, prev
	}
	if atomicio.IsPidAlive(prev.PID) {
		return false, prev
	}
	return true, prev
}

// cleanupStaleSession removes the stale session's overlay block and its
// session.json before a fresh one is written.
func (h *Hooks) cleanupStaleSession(prev *core.Session) error {
	stripErr := h.Overlay.Strip(h.InstructionsPath)
	removeErr := h.Store.RemoveSession()
	if stripErr != nil {
		return stripErr
	}
	return removeErr
}

// archiveSession appends a history record, then deletes session.json.
func (h *Hooks) archiveSession(sess *core.Session) error {
	if err := h.Store.AppendSessionHistory(sess); err != nil {
		return err
	}
	return h.Store.RemoveSession()
}

// cancelActiveModes flips every still-active mode to inactive with a
// completed_at stamp (spec.md §4.12: "cancel active modes").
func (h *Hooks) cancelActiveModes(sessionID string) error {
	active, err := h.Store.ListActiveModes(sessionID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	var firstErr error
	for _, mode := range active {
		ms, ok, err := h.Store.ReadModeState(mode, sessionID)
		if err != nil || !ok {
			if firstErr == nil && err != nil {
				firstErr = err
			}
			continue
		}
		ms.Active = false
		ms.CompletedAt = &now
		if err := h.Store.WriteModeState(mode, sessionID, ms); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
