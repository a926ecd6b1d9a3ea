// Package store implements the State Store (spec.md §4.3): typed
// readers/writers over the filesystem layout of spec.md §6, with
// schema-mismatch-as-absent semantics and atomic/lock-guarded writes.
// Grounded on the teacher's internal/quota/state.go Load/Save/WithLock
// shape, generalized from one flock-protected blob file to the spec's
// per-entity file tree.
package store

import (
	"encoding/json"
	"os"
	"time"

	"github.com/omx/teamctl/internal/atomicio"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/namepolicy"
)

// Store is the state store for one project root.
type Store struct {
	Project string
}

// New constructs a Store rooted at project.
func New(project string) *Store {
	return &Store{Project: project}
}

// readJSON loads path into v, treating a missing file or malformed JSON as
// absent: returns (false, nil) rather than an error, per spec.md §4.3
// ("a schema-mismatched or unparseable file is reported as absent").
func readJSON(path string, v interface{}) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, nil
	}
	return true, nil
}

// EnsureTeamTree creates the directory skeleton for a team (spec.md §6),
// used by startTeam before any file is written.
func (s *Store) EnsureTeamTree(team string) error {
	dirs := []string{
		namepolicy.TeamDir(s.Project, team),
		namepolicy.WorkerDir(s.Project, team, ""),
		namepolicy.TasksDir(s.Project, team),
		namepolicy.ClaimsDir(s.Project, team),
		namepolicy.MailboxDir(s.Project, team),
		namepolicy.EventsDir(s.Project, team),
		namepolicy.ApprovalsDir(s.Project, team),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ReadConfig reads config.json. A missing or malformed file reports absent.
func (s *Store) ReadConfig(team string) (*core.Config, bool, error) {
	var c core.Config
	ok, err := readJSON(namepolicy.ConfigPath(s.Project, team), &c)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &c, true, nil
}

// WriteConfig atomically writes config.json, then writes manifest.v2.json
// with the new config fields: an existing manifest keeps its other fields,
// and when none exists yet the one ReadManifest synthesizes from config is
// persisted (spec.md §3: "Writing config keeps the manifest in sync on
// fields it owns").
func (s *Store) WriteConfig(team string, c *core.Config) error {
	if err := atomicio.WriteJSON(namepolicy.ConfigPath(s.Project, team), c, 0o644); err != nil {
		return err
	}
	if m, ok, err := s.ReadManifest(team); err == nil && ok {
		m.Config = *c
		return atomicio.WriteJSON(namepolicy.ManifestPath(s.Project, team), m, 0o644)
	}
	return nil
}

// ReadManifest reads manifest.v2.json. Absence of the manifest triggers a
// one-shot, idempotent migration from config.json (spec.md §6): this read
// path synthesizes a default manifest from config when no manifest file
// exists yet, without persisting it (the next WriteConfig call persists
// it, e.g. during startTeam).
func (s *Store) ReadManifest(team string) (*core.Manifest, bool, error) {
	var m core.Manifest
	ok, err := readJSON(namepolicy.ManifestPath(s.Project, team), &m)
	if err != nil {
		return nil, false, err
	}
	if ok {
		return &m, true, nil
	}
	cfg, cfgOK, err := s.ReadConfig(team)
	if err != nil || !cfgOK {
		return nil, false, err
	}
	return &core.Manifest{
		Config:        *cfg,
		SchemaVersion: 2,
		Policy:        core.Policy{DisplayMode: "auto"},
		PermissionsSnapshot: core.PermissionsSnapshot{
			ApprovalMode: "unknown", SandboxMode: "unknown", NetworkAccess: true,
		},
	}, true, nil
}

// WriteManifest atomically writes manifest.v2.json.
func (s *Store) WriteManifest(team string, m *core.Manifest) error {
	return atomicio.WriteJSON(namepolicy.ManifestPath(s.Project, team), m, 0o644)
}

// ReadWorkerIdentity reads workers/<name>/identity.json.
func (s *Store) ReadWorkerIdentity(team, worker string) (*core.WorkerIdentity, bool, error) {
	var wi core.WorkerIdentity
	ok, err := readJSON(namepolicy.WorkerIdentityPath(s.Project, team, worker), &wi)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &wi, true, nil
}

// WriteWorkerIdentity atomically writes workers/<name>/identity.json.
func (s *Store) WriteWorkerIdentity(team string, wi *core.WorkerIdentity) error {
	return atomicio.WriteJSON(namepolicy.WorkerIdentityPath(s.Project, team, wi.Name), wi, 0o644)
}

// ReadWorkerHeartbeat reads workers/<name>/heartbeat.json.
func (s *Store) ReadWorkerHeartbeat(team, worker string) (*core.WorkerHeartbeat, bool, error) {
	var hb core.WorkerHeartbeat
	ok, err := readJSON(namepolicy.WorkerHeartbeatPath(s.Project, team, worker), &hb)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &hb, true, nil
}

// WriteWorkerHeartbeat atomically writes workers/<name>/heartbeat.json.
func (s *Store) WriteWorkerHeartbeat(team, worker string, hb *core.WorkerHeartbeat) error {
	return atomicio.WriteJSON(namepolicy.WorkerHeartbeatPath(s.Project, team, worker), hb, 0o644)
}

// ReadWorkerStatus reads workers/<name>/status.json. A missing file maps
// to {state: unknown, updated_at: now} per spec.md §3.
func (s *Store) ReadWorkerStatus(team, worker string) (*core.WorkerStatus, error) {
	var st core.WorkerStatus
	ok, err := readJSON(namepolicy.WorkerStatusPath(s.Project, team, worker), &st)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &core.WorkerStatus{State: core.WorkerUnknown, UpdatedAt: time.Now().UTC()}, nil
	}
	return &st, nil
}

// WriteWorkerStatus atomically writes workers/<name>/status.json.
func (s *Store) WriteWorkerStatus(team, worker string, st *core.WorkerStatus) error {
	return atomicio.WriteJSON(namepolicy.WorkerStatusPath(s.Project, team, worker), st, 0o644)
}

// WriteWorkerInbox atomically writes the markdown inbox (spec.md §4.5 step 1).
func (s *Store) WriteWorkerInbox(team, worker, markdown string) error {
	return atomicio.WriteFile(namepolicy.WorkerInboxPath(s.Project, team, worker), []byte(markdown), 0o644)
}

// ReadWorkerInbox reads the raw markdown inbox.
func (s *Store) ReadWorkerInbox(team, worker string) (string, bool, error) {
	data, err := os.ReadFile(namepolicy.WorkerInboxPath(s.Project, team, worker))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, err
	}
	return string(data), true, nil
}

// RemoveWorkerInbox deletes the markdown inbox file, used by the shutdown
// controller's cleanup step (spec.md §4.9 step 6: "remove the worker
// instructions file"). A missing file is not an error.
func (s *Store) RemoveWorkerInbox(team, worker string) error {
	err := os.Remove(namepolicy.WorkerInboxPath(s.Project, team, worker))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RemoveTeamTree recursively removes a team's entire state directory
// (spec.md §4.9 step 6).
func (s *Store) RemoveTeamTree(team string) error {
	return os.RemoveAll(namepolicy.TeamDir(s.Project, team))
}

// WriteShutdownRequest atomically writes shutdown-request.json.
func (s *Store) WriteShutdownRequest(team, worker string, req *core.ShutdownRequest) error {
	return atomicio.WriteJSON(namepolicy.WorkerShutdownRequestPath(s.Project, team, worker), req, 0o644)
}

// ReadShutdownRequest reads shutdown-request.json.
func (s *Store) ReadShutdownRequest(team, worker string) (*core.ShutdownRequest, bool, error) {
	var req core.ShutdownRequest
	ok, err := readJSON(namepolicy.WorkerShutdownRequestPath(s.Project, team, worker), &req)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &req, true, nil
}

// ReadShutdownAck reads shutdown-ack.json.
func (s *Store) ReadShutdownAck(team, worker string) (*core.ShutdownAck, bool, error) {
	var ack core.ShutdownAck
	ok, err := readJSON(namepolicy.WorkerShutdownAckPath(s.Project, team, worker), &ack)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &ack, true, nil
}

// WriteShutdownAck atomically writes shutdown-ack.json (called by a
// worker process via the tool surface, not by the leader).
func (s *Store) WriteShutdownAck(team, worker string, ack *core.ShutdownAck) error {
	return atomicio.WriteJSON(namepolicy.WorkerShutdownAckPath(s.Project, team, worker), ack, 0o644)
}

// ReadApproval reads approvals/task-<id>.json.
func (s *Store) ReadApproval(team, taskID string) (*core.Approval, bool, error) {
	var a core.Approval
	ok, err := readJSON(namepolicy.ApprovalPath(s.Project, team, taskID), &a)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &a, true, nil
}

// WriteApproval atomically writes approvals/task-<id>.json.
func (s *Store) WriteApproval(team string, a *core.Approval) error {
	return atomicio.WriteJSON(namepolicy.ApprovalPath(s.Project, team, a.TaskID), a, 0o644)
}

// ReadMonitorSnapshot reads monitor-snapshot.json. Absence reports a zero
// snapshot with initialized maps, not an error.
func (s *Store) ReadMonitorSnapshot(team string) (*core.MonitorSnapshot, error) {
	var snap core.MonitorSnapshot
	ok, err := readJSON(namepolicy.MonitorSnapshotPath(s.Project, team), &snap)
	if err != nil {
		return nil, err
	}
	if !ok {
		snap = core.MonitorSnapshot{
			TaskStatusByID:             map[string]core.TaskStatus{},
			WorkerAliveByName:          map[string]bool{},
			WorkerStateByName:          map[string]core.WorkerState{},
			WorkerTurnCountByName:      map[string]int{},
			WorkerTaskIDByName:         map[string]string{},
			MailboxNotifiedByMessageID: map[string]time.Time{},
		}
	}
	return &snap, nil
}

// WriteMonitorSnapshot atomically writes monitor-snapshot.json.
func (s *Store) WriteMonitorSnapshot(team string, snap *core.MonitorSnapshot) error {
	return atomicio.WriteJSON(namepolicy.MonitorSnapshotPath(s.Project, team), snap, 0o644)
}

// ReadSummarySnapshot reads summary-snapshot.json.
func (s *Store) ReadSummarySnapshot(team string) (*core.SummarySnapshot, bool, error) {
	var snap core.SummarySnapshot
	ok, err := readJSON(namepolicy.SummarySnapshotPath(s.Project, team), &snap)
	if !ok || err != nil {
		return nil, ok, err
	}
	return &snap, true, nil
}

// WriteSummarySnapshot atomically writes summary-snapshot.json.
func (s *Store) WriteSummarySnapshot(team string, snap *core.SummarySnapshot) error {
	return atomicio.WriteJSON(namepolicy.SummarySnapshotPath(s.Project, team), snap, 0o644)
}

// ValidateConfig is the supplemented "team doctor"-style sanity pass
// (SPEC_FULL.md "SUPPLEMENTED FEATURES" #2), grounded on the teacher's
// internal/doctor check-registry pattern but scoped to the invariants this
// store actually owns.
func ValidateConfig(c *core.Config) (ok bool, detail string) {
	if c.WorkerCount != len(c.Workers) {
		return false, "worker_count does not match len(workers)"
	}
	if c.MaxWorkers > core.MaxWorkersCeiling {
		return false, "max_workers exceeds the absolute ceiling"
	}
	if c.WorkerCount > c.MaxWorkers {
		return false, "worker_count exceeds max_workers"
	}
	return true, ""
}
