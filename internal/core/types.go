package core

import "time"

// MaxWorkersCeiling is the absolute ceiling on config.max_workers
// (spec.md §3, Open Question decision recorded in SPEC_FULL.md: no
// provision is made for raising it later).
const MaxWorkersCeiling = 20

// DefaultClaimLease is the default duration a task claim remains valid.
const DefaultClaimLease = 15 * time.Minute

// WorkerInfo is one entry of config.json's workers array.
type WorkerInfo struct {
	Name   string `json:"name"`
	Index  int    `json:"index"`
	Role   string `json:"role,omitempty"`
	PaneID string `json:"pane_id,omitempty"`
}

// Config is team Config (spec.md §3 "Team Config").
type Config struct {
	Name          string       `json:"name"`
	Task          string       `json:"task"`
	AgentType     string       `json:"agent_type"`
	WorkerCount   int          `json:"worker_count"`
	MaxWorkers    int          `json:"max_workers"`
	Workers       []WorkerInfo `json:"workers"`
	CreatedAt     time.Time    `json:"created_at"`
	TmuxSession   string       `json:"tmux_session"`
	NextTaskID    int          `json:"next_task_id"`
	LeaderPaneID  string       `json:"leader_pane_id,omitempty"`
	HUDPaneID     string       `json:"hud_pane_id,omitempty"`
}

// LeaderInfo is manifest.v2.json's leader block.
type LeaderInfo struct {
	SessionID string `json:"session_id"`
	WorkerID  string `json:"worker_id,omitempty"`
	Role      string `json:"role"`
}

// Policy is manifest.v2.json's policy block.
type Policy struct {
	DisplayMode                    string `json:"display_mode"`
	DelegationOnly                 bool   `json:"delegation_only"`
	PlanApprovalRequired           bool   `json:"plan_approval_required"`
	NestedTeamsAllowed             bool   `json:"nested_teams_allowed"`
	OneTeamPerLeaderSession        bool   `json:"one_team_per_leader_session"`
	CleanupRequiresAllWorkersInactive bool `json:"cleanup_requires_all_workers_inactive"`
}

// PermissionsSnapshot is manifest.v2.json's permissions_snapshot block.
type PermissionsSnapshot struct {
	ApprovalMode  string `json:"approval_mode"`
	SandboxMode   string `json:"sandbox_mode"`
	NetworkAccess bool   `json:"network_access"`
}

// Manifest is Manifest v2 (spec.md §3): a superset of Config. It is the
// authoritative descriptor once present; writing Config keeps the fields
// Manifest owns in sync.
type Manifest struct {
	Config
	SchemaVersion       int                 `json:"schema_version"`
	Leader              LeaderInfo          `json:"leader"`
	Policy              Policy              `json:"policy"`
	PermissionsSnapshot PermissionsSnapshot `json:"permissions_snapshot"`
}

// ReservedLeaderWorker is the reserved worker name delegation_only forbids
// assigning tasks to (spec.md §4.6).
const ReservedLeaderWorker = "leader-fixed"

// WorkerState is a worker's status.json `state` enum value.
type WorkerState string

const (
	WorkerIdle    WorkerState = "idle"
	WorkerWorking WorkerState = "working"
	WorkerBlocked WorkerState = "blocked"
	WorkerDone    WorkerState = "done"
	WorkerFailed  WorkerState = "failed"
	WorkerUnknown WorkerState = "unknown"
)

// WorkerIdentity is workers/<name>/identity.json.
type WorkerIdentity struct {
	Name          string `json:"name"`
	Index         int    `json:"index"`
	Role          string `json:"role,omitempty"`
	AssignedTasks []string `json:"assigned_tasks"`
	Pid           int    `json:"pid,omitempty"`
	PaneID        string `json:"pane_id,omitempty"`
}

// WorkerHeartbeat is workers/<name>/heartbeat.json.
type WorkerHeartbeat struct {
	Pid        int       `json:"pid"`
	LastTurnAt time.Time `json:"last_turn_at"`
	TurnCount  int       `json:"turn_count"`
	Alive      bool      `json:"alive"`
}

// WorkerStatus is workers/<name>/status.json. A missing file maps to
// {state: unknown, updated_at: now} per spec.md §3.
type WorkerStatus struct {
	State         WorkerState `json:"state"`
	CurrentTaskID string      `json:"current_task_id,omitempty"`
	Reason        string      `json:"reason,omitempty"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// ShutdownRequest is workers/<name>/shutdown-request.json.
type ShutdownRequest struct {
	RequestedAt time.Time `json:"requested_at"`
	RequestedBy string    `json:"requested_by"`
}

// ShutdownAckStatus is the status field of shutdown-ack.json.
type ShutdownAckStatus string

const (
	ShutdownAckAccept ShutdownAckStatus = "accept"
	ShutdownAckReject ShutdownAckStatus = "reject"
)

// ShutdownAck is workers/<name>/shutdown-ack.json.
type ShutdownAck struct {
	Status    ShutdownAckStatus `json:"status"`
	Reason    string            `json:"reason,omitempty"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// TaskStatus is a task's status enum (spec.md §3, §4.6).
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskBlocked    TaskStatus = "blocked"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// TerminalTaskStatuses is the set spec.md §4.8 calls "terminal".
var TerminalTaskStatuses = map[TaskStatus]bool{
	TaskCompleted: true,
	TaskFailed:    true,
}

// Claim is a task's optimistic-lock claim record.
type Claim struct {
	Owner       string    `json:"owner"`
	Token       string    `json:"token"`
	LeasedUntil time.Time `json:"leased_until"`
}

// Task is tasks/task-<id>.json (spec.md §3).
type Task struct {
	ID                string     `json:"id"`
	Subject           string     `json:"subject"`
	Description       string     `json:"description"`
	Status            TaskStatus `json:"status"`
	RequiresCodeChange bool      `json:"requires_code_change,omitempty"`
	Owner             string     `json:"owner,omitempty"`
	Result            string     `json:"result,omitempty"`
	Error             string     `json:"error,omitempty"`
	DependsOn         []string   `json:"depends_on,omitempty"`
	Version           int        `json:"version"`
	Claim             *Claim     `json:"claim,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
	LastReleasedBy    string     `json:"last_released_by,omitempty"`
	LastReleasedToken string     `json:"last_released_token,omitempty"`
}

// MailboxMessage is one entry of mailbox/<worker>.json's messages array.
type MailboxMessage struct {
	MessageID  string     `json:"message_id"`
	FromWorker string     `json:"from_worker"`
	ToWorker   string     `json:"to_worker"`
	Body       string     `json:"body"`
	CreatedAt  time.Time  `json:"created_at"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}

// Mailbox is mailbox/<worker>.json.
type Mailbox struct {
	Worker   string           `json:"worker"`
	Messages []MailboxMessage `json:"messages"`
}

// EventType enumerates events/events.ndjson's `type` field.
type EventType string

const (
	EventTaskCompleted   EventType = "task_completed"
	EventWorkerIdle      EventType = "worker_idle"
	EventWorkerStopped   EventType = "worker_stopped"
	EventMessageReceived EventType = "message_received"
	EventShutdownAck     EventType = "shutdown_ack"
	EventApprovalDecision EventType = "approval_decision"
	EventTeamLeaderNudge EventType = "team_leader_nudge"
)

// Event is one line of events/events.ndjson.
type Event struct {
	EventID   string    `json:"event_id"`
	Team      string    `json:"team"`
	Type      EventType `json:"type"`
	Worker    string    `json:"worker,omitempty"`
	TaskID    string    `json:"task_id,omitempty"`
	MessageID string    `json:"message_id,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ApprovalStatus is an approval record's status enum.
type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

// Approval is approvals/task-<id>.json.
type Approval struct {
	TaskID         string         `json:"task_id"`
	Required       bool           `json:"required"`
	Status         ApprovalStatus `json:"status"`
	Reviewer       string         `json:"reviewer,omitempty"`
	DecisionReason string         `json:"decision_reason,omitempty"`
	DecidedAt      *time.Time     `json:"decided_at,omitempty"`
}

// MonitorSnapshot is monitor-snapshot.json, the diff basis for one monitor
// cycle (spec.md §4.8).
type MonitorSnapshot struct {
	TaskStatusByID             map[string]TaskStatus  `json:"task_status_by_id"`
	WorkerAliveByName          map[string]bool        `json:"worker_alive_by_name"`
	WorkerStateByName          map[string]WorkerState  `json:"worker_state_by_name"`
	WorkerTurnCountByName      map[string]int          `json:"worker_turn_count_by_name"`
	WorkerTaskIDByName         map[string]string       `json:"worker_task_id_by_name"`
	MailboxNotifiedByMessageID map[string]time.Time    `json:"mailbox_notified_by_message_id"`
}

// WorkerRow is one row of a SummarySnapshot's worker table.
type WorkerRow struct {
	Name               string      `json:"name"`
	Alive              bool        `json:"alive"`
	State              WorkerState `json:"state"`
	CurrentTaskID      string      `json:"current_task_id,omitempty"`
	LastTurnAt         time.Time   `json:"last_turn_at"`
	AssignedTasks      []string    `json:"assigned_tasks"`
	TurnsWithoutProgress int       `json:"turns_without_progress"`
}

// SummarySnapshot is summary-snapshot.json, the result structure returned
// by one monitor cycle (spec.md §4.8 step 8).
type SummarySnapshot struct {
	TaskCounts        map[TaskStatus]int `json:"task_counts"`
	Workers           []WorkerRow        `json:"workers"`
	AllTasksTerminal  bool               `json:"all_tasks_terminal"`
	DeadWorkers       []string           `json:"dead_workers"`
	NonReportingWorkers []string         `json:"non_reporting_workers"`
	Recommendations   []string           `json:"recommendations"`
}

// Session is .omx/state/session.json.
type Session struct {
	SessionID string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Project   string    `json:"project"`
	PID       int       `json:"pid"`
}

// ModeState is a <mode>-state.json file. Extra holds mode-specific fields
// not part of the fixed shape (spec.md §9's "dynamic JSON patches -> typed
// patch types" design note: rather than an open map of arbitrary top-level
// fields, only the known required keys are typed and everything else lives
// under Extra, deep-merged on write).
type ModeState struct {
	Active        bool                   `json:"active"`
	CurrentPhase  string                 `json:"current_phase,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	RuntimeContext map[string]interface{} `json:"runtime_context,omitempty"`
	Extra         map[string]interface{} `json:"-"`
}

// ValidModes is the closed enumerated set of mode names (spec.md §6).
var ValidModes = map[string]bool{
	"autopilot": true, "ultrapilot": true, "team": true, "pipeline": true,
	"ralph": true, "ultrawork": true, "ultraqa": true, "ecomode": true, "ralplan": true,
}
