package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/omx/teamctl/internal/atomicio"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/namepolicy"
)

// ensureParentDir creates path's parent directory, since
// atomicio.AppendLine assumes it already exists (atomicio.WriteFile and
// WriteJSON create it themselves).
func ensureParentDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// sessionHistoryEntry is one line of session-history.jsonl.
type sessionHistoryEntry struct {
	SessionID  string    `json:"session_id"`
	Project    string    `json:"project"`
	StartedAt  time.Time `json:"started_at"`
	ArchivedAt time.Time `json:"archived_at"`
}

// AppendSessionHistory appends one archived-session record, mirroring
// AppendTeamEvent's O_APPEND-is-atomic-for-small-writes discipline.
func (s *Store) AppendSessionHistory(sess *core.Session) error {
	entry := sessionHistoryEntry{
		SessionID:  sess.SessionID,
		Project:    sess.Project,
		StartedAt:  sess.StartedAt,
		ArchivedAt: time.Now().UTC(),
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	path := namepolicy.SessionHistoryPath(s.Project)
	if err := ensureParentDir(path); err != nil {
		return err
	}
	return atomicio.AppendLine(path, line)
}

// ReadSession reads session.json. A missing or malformed file reports absent.
func (s *Store) ReadSession() (*core.Session, bool, error) {
	var sess core.Session
	ok, err := readJSON(namepolicy.SessionPath(s.Project), &sess)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &sess, true, nil
}

// WriteSession atomically writes session.json.
func (s *Store) WriteSession(sess *core.Session) error {
	path := namepolicy.SessionPath(s.Project)
	if err := ensureParentDir(path); err != nil {
		return err
	}
	return atomicio.WriteJSON(path, sess, 0o644)
}

// RemoveSession deletes session.json, used by the post-launch hook's
// session-archive step (spec.md §4.12).
func (s *Store) RemoveSession() error {
	err := os.Remove(namepolicy.SessionPath(s.Project))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// modeStatePath resolves the global or session-scoped mode-state path
// depending on whether sessionID is set (spec.md §4.11: state tools take
// an optional, validated session_id).
func (s *Store) modeStatePath(mode, sessionID string) string {
	if sessionID == "" {
		return namepolicy.ModeStatePath(s.Project, mode)
	}
	return namepolicy.SessionModeStatePath(s.Project, sessionID, mode)
}

// ReadModeState reads a <mode>-state.json file, global or session-scoped.
func (s *Store) ReadModeState(mode, sessionID string) (*core.ModeState, bool, error) {
	var ms core.ModeState
	ok, err := readJSON(s.modeStatePath(mode, sessionID), &ms)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &ms, true, nil
}

// WriteModeState atomically writes a <mode>-state.json file.
func (s *Store) WriteModeState(mode, sessionID string, ms *core.ModeState) error {
	path := s.modeStatePath(mode, sessionID)
	if err := ensureParentDir(path); err != nil {
		return err
	}
	return atomicio.WriteJSON(path, ms, 0o644)
}

// ClearModeState removes a <mode>-state.json file. Absence is not an error
// (spec.md §4.11's state_clear is idempotent).
func (s *Store) ClearModeState(mode, sessionID string) error {
	err := os.Remove(s.modeStatePath(mode, sessionID))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// ListActiveModes reports every valid mode whose state file (global or
// session-scoped) currently reads active=true, sorted by name.
func (s *Store) ListActiveModes(sessionID string) ([]string, error) {
	var active []string
	for mode := range core.ValidModes {
		ms, ok, err := s.ReadModeState(mode, sessionID)
		if err != nil {
			return nil, err
		}
		if ok && ms.Active {
			active = append(active, mode)
		}
	}
	sort.Strings(active)
	return active, nil
}
