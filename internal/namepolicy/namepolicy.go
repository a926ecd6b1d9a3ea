// Package namepolicy sanitizes team and worker names and derives the
// canonical on-disk paths for a team's state tree (spec.md §4.1). No
// other package in this module is allowed to concatenate an unvalidated
// name into a path; they go through here instead, mirroring the teacher's
// discipline of only ever building tmux session names through fixed,
// validated helpers (internal/tmux's session-name constructors).
package namepolicy

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// ErrInvalidTeamName is the sentinel underlying the invalid_team_name
// error category of spec.md §7.
var ErrInvalidTeamName = fmt.Errorf("invalid_team_name")

var teamNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,29}$`)

// ValidateTeamName rejects any name not matching ^[a-z0-9][a-z0-9-]{0,29}$.
func ValidateTeamName(name string) error {
	if !teamNamePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidTeamName, name)
	}
	return nil
}

var nonAlnumRun = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizeExternalName applies the external-name sanitization rules for
// inbound names that may carry mixed case or punctuation: lowercase,
// collapse non-alphanumeric runs to a single hyphen, trim leading/trailing
// hyphens, truncate to 30 chars. An empty result is an error.
func SanitizeExternalName(raw string) (string, error) {
	s := strings.ToLower(raw)
	s = nonAlnumRun.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 30 {
		s = s[:30]
		s = strings.TrimRight(s, "-")
	}
	if s == "" {
		return "", fmt.Errorf("%w: sanitization of %q produced empty name", ErrInvalidTeamName, raw)
	}
	return s, nil
}

// StateRoot is <project>/.omx/state.
func StateRoot(project string) string {
	return filepath.Join(project, ".omx", "state")
}

// TeamDir is <state-root>/team/<sanitized-team>. name must already be
// validated by ValidateTeamName; TeamDir does not re-validate so that
// callers control exactly where validation errors surface.
func TeamDir(project, team string) string {
	return filepath.Join(StateRoot(project), "team", team)
}

// ConfigPath, ManifestPath, and the remaining path helpers below are the
// sole authors of the filesystem layout in spec.md §6; every other package
// calls through here rather than joining path segments itself.
func ConfigPath(project, team string) string {
	return filepath.Join(TeamDir(project, team), "config.json")
}

func ManifestPath(project, team string) string {
	return filepath.Join(TeamDir(project, team), "manifest.v2.json")
}

func MonitorSnapshotPath(project, team string) string {
	return filepath.Join(TeamDir(project, team), "monitor-snapshot.json")
}

func SummarySnapshotPath(project, team string) string {
	return filepath.Join(TeamDir(project, team), "summary-snapshot.json")
}

func CreateTaskLockPath(project, team string) string {
	return filepath.Join(TeamDir(project, team), ".lock.create-task")
}

func WorkerDir(project, team, worker string) string {
	return filepath.Join(TeamDir(project, team), "workers", worker)
}

func WorkerIdentityPath(project, team, worker string) string {
	return filepath.Join(WorkerDir(project, team, worker), "identity.json")
}

func WorkerHeartbeatPath(project, team, worker string) string {
	return filepath.Join(WorkerDir(project, team, worker), "heartbeat.json")
}

func WorkerStatusPath(project, team, worker string) string {
	return filepath.Join(WorkerDir(project, team, worker), "status.json")
}

func WorkerInboxPath(project, team, worker string) string {
	return filepath.Join(WorkerDir(project, team, worker), "inbox.md")
}

func WorkerShutdownRequestPath(project, team, worker string) string {
	return filepath.Join(WorkerDir(project, team, worker), "shutdown-request.json")
}

func WorkerShutdownAckPath(project, team, worker string) string {
	return filepath.Join(WorkerDir(project, team, worker), "shutdown-ack.json")
}

func TasksDir(project, team string) string {
	return filepath.Join(TeamDir(project, team), "tasks")
}

func TaskPath(project, team, id string) string {
	return filepath.Join(TasksDir(project, team), "task-"+id+".json")
}

func ClaimsDir(project, team string) string {
	return filepath.Join(TeamDir(project, team), "claims")
}

func TaskClaimLockPath(project, team, id string) string {
	return filepath.Join(ClaimsDir(project, team), "task-"+id+".lock")
}

func MailboxDir(project, team string) string {
	return filepath.Join(TeamDir(project, team), "mailbox")
}

func MailboxPath(project, team, worker string) string {
	return filepath.Join(MailboxDir(project, team), worker+".json")
}

func MailboxLockPath(project, team, worker string) string {
	return filepath.Join(MailboxDir(project, team), ".lock-"+worker)
}

func EventsDir(project, team string) string {
	return filepath.Join(TeamDir(project, team), "events")
}

func EventsLogPath(project, team string) string {
	return filepath.Join(EventsDir(project, team), "events.ndjson")
}

func ApprovalsDir(project, team string) string {
	return filepath.Join(TeamDir(project, team), "approvals")
}

func ApprovalPath(project, team, id string) string {
	return filepath.Join(ApprovalsDir(project, team), "task-"+id+".json")
}

func OverlayLockPath(project string) string {
	return filepath.Join(StateRoot(project), "agents-md.lock")
}

func SessionPath(project string) string {
	return filepath.Join(StateRoot(project), "session.json")
}

// ModeStatePath returns the global-scope mode-state file path.
func ModeStatePath(project, mode string) string {
	return filepath.Join(StateRoot(project), mode+"-state.json")
}

// SessionModeStatePath returns the session-scoped mode-state file path.
func SessionModeStatePath(project, sessionID, mode string) string {
	return filepath.Join(StateRoot(project), "sessions", sessionID, mode+"-state.json")
}

// SessionHistoryPath returns the append-only log post-launch archives
// completed sessions into (spec.md §4.12's "archive session").
func SessionHistoryPath(project string) string {
	return filepath.Join(StateRoot(project), "session-history.jsonl")
}
