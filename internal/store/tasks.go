package store

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/omx/teamctl/internal/atomicio"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/namepolicy"
)

// rawTask mirrors core.Task but accepts the legacy blocked_by alias for
// depends_on on read (spec.md §3: "depends_on? ... canonical; blocked_by is
// accepted as alias on read").
type rawTask struct {
	core.Task
	BlockedBy []string `json:"blocked_by,omitempty"`
}

// ReadTask reads tasks/task-<id>.json. Missing or malformed ⇒ (nil, false, nil).
func (s *Store) ReadTask(team, id string) (*core.Task, bool, error) {
	var rt rawTask
	ok, err := readJSON(namepolicy.TaskPath(s.Project, team, id), &rt)
	if !ok || err != nil {
		return nil, ok, err
	}
	t := rt.Task
	if len(t.DependsOn) == 0 && len(rt.BlockedBy) > 0 {
		t.DependsOn = canonicalizeDependsOn(rt.BlockedBy)
	} else {
		t.DependsOn = canonicalizeDependsOn(t.DependsOn)
	}
	return &t, true, nil
}

func canonicalizeDependsOn(ids []string) []string {
	if ids == nil {
		return nil
	}
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

// WriteTaskUnderLock persists a task file. The caller must already hold
// the per-task claim lock (internal/task's FSM operations acquire it
// themselves so they can read-check-write atomically across the readiness
// check and the claim write).
func (s *Store) WriteTaskUnderLock(team string, t *core.Task) error {
	return atomicio.WriteJSON(namepolicy.TaskPath(s.Project, team, t.ID), t, 0o644)
}

// ListTasks enumerates task-<n>.json, sorted by numeric id ascending
// (spec.md §4.3).
func (s *Store) ListTasks(team string) ([]*core.Task, error) {
	dir := namepolicy.TasksDir(s.Project, team)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var ids []int
	for _, e := range entries {
		name := e.Name()
		if !strings.HasPrefix(name, "task-") || !strings.HasSuffix(name, ".json") || strings.Contains(name, ".tmp.") {
			continue
		}
		idStr := strings.TrimSuffix(strings.TrimPrefix(name, "task-"), ".json")
		if n, err := strconv.Atoi(idStr); err == nil {
			ids = append(ids, n)
		}
	}
	sort.Ints(ids)
	tasks := make([]*core.Task, 0, len(ids))
	for _, n := range ids {
		t, ok, err := s.ReadTask(team, strconv.Itoa(n))
		if err != nil {
			return nil, err
		}
		if ok {
			tasks = append(tasks, t)
		}
	}
	return tasks, nil
}

// maxTaskIDOnDisk scans tasks/*.json for the highest numeric id present.
func (s *Store) maxTaskIDOnDisk(team string) (int, error) {
	tasks, err := s.ListTasks(team)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, t := range tasks {
		if n, err := strconv.Atoi(t.ID); err == nil && n > max {
			max = n
		}
	}
	return max, nil
}

// TaskPartial is the caller-supplied subset of Task fields createTask accepts.
type TaskPartial struct {
	Subject            string
	Description        string
	Status             core.TaskStatus
	RequiresCodeChange bool
	DependsOn          []string
}

// CreateTask assigns id = max(config.next_task_id, max-on-disk+1), persists
// the task, then advances next_task_id only after the task file is
// durably written (spec.md §4.3). Runs under the team task-creation lock
// and tolerates a missing/legacy counter by recomputing it from disk.
func (s *Store) CreateTask(team string, partial TaskPartial) (*core.Task, error) {
	var created *core.Task
	lockPath := namepolicy.CreateTaskLockPath(s.Project, team)
	err := atomicio.WithLock(lockPath, atomicio.DefaultDomainLockStaleHorizon, func() error {
		cfg, ok, err := s.ReadConfig(team)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("team %q has no config", team)
		}
		maxOnDisk, err := s.maxTaskIDOnDisk(team)
		if err != nil {
			return err
		}
		next := cfg.NextTaskID
		if next < 1 {
			next = maxOnDisk + 1
		}
		if next < maxOnDisk+1 {
			next = maxOnDisk + 1
		}

		status := partial.Status
		if status == "" {
			status = core.TaskPending
		}
		t := &core.Task{
			ID:                 strconv.Itoa(next),
			Subject:            partial.Subject,
			Description:        partial.Description,
			Status:             status,
			RequiresCodeChange: partial.RequiresCodeChange,
			DependsOn:          canonicalizeDependsOn(partial.DependsOn),
			Version:            1,
			CreatedAt:          time.Now().UTC(),
		}
		if err := s.WriteTaskUnderLock(team, t); err != nil {
			return err
		}
		cfg.NextTaskID = next + 1
		if err := s.WriteConfig(team, cfg); err != nil {
			return err
		}
		created = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// TaskPatch is the set of fields UpdateTask may change. Nil fields are
// left untouched; Claim is a pointer to a pointer so a non-nil Claim can
// also clear the claim, mirroring spec.md §9's typed-patch design note.
type TaskPatch struct {
	Status             *core.TaskStatus
	Owner              *string
	Result             *string
	Error              *string
	DependsOn          []string
	RequiresCodeChange *bool
	Claim              **core.Claim // non-nil to set (possibly to nil to clear)
	CompletedAt        *time.Time
}

// UpdateTask acquires the per-task claim lock, rejects an invalid status,
// increments version by 1, preserves id/created_at, and canonicalizes
// depends_on (spec.md §4.3).
func (s *Store) UpdateTask(team, id string, patch TaskPatch) (*core.Task, error) {
	lockPath := namepolicy.TaskClaimLockPath(s.Project, team, id)
	var updated *core.Task
	err := atomicio.WithLock(lockPath, atomicio.DefaultDomainLockStaleHorizon, func() error {
		t, ok, err := s.ReadTask(team, id)
		if err != nil {
			return err
		}
		if !ok {
			return core.NewError(core.CategoryTaskNotFound, "task %s", id)
		}
		if patch.Status != nil {
			if !validTaskStatus(*patch.Status) {
				return core.NewError(core.CategoryInvalidStatus, "%s", *patch.Status)
			}
			t.Status = *patch.Status
		}
		if patch.Owner != nil {
			t.Owner = *patch.Owner
		}
		if patch.Result != nil {
			t.Result = *patch.Result
		}
		if patch.Error != nil {
			t.Error = *patch.Error
		}
		if patch.DependsOn != nil {
			t.DependsOn = canonicalizeDependsOn(patch.DependsOn)
		}
		if patch.RequiresCodeChange != nil {
			t.RequiresCodeChange = *patch.RequiresCodeChange
		}
		if patch.Claim != nil {
			t.Claim = *patch.Claim
		}
		if patch.CompletedAt != nil {
			t.CompletedAt = patch.CompletedAt
		}
		t.Version++
		if err := s.WriteTaskUnderLock(team, t); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func validTaskStatus(st core.TaskStatus) bool {
	switch st {
	case core.TaskPending, core.TaskBlocked, core.TaskInProgress, core.TaskCompleted, core.TaskFailed:
		return true
	default:
		return false
	}
}

// TaskClaimLockDir exposes the per-task lock path for packages (internal/task)
// that need to hold it across a read-then-write sequence broader than a
// single UpdateTask call (claimTask's readiness check + claim write).
func (s *Store) TaskClaimLockDir(team, id string) string {
	return namepolicy.TaskClaimLockPath(s.Project, team, id)
}
