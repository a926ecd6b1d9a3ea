// Package task implements the Task Lifecycle FSM (spec.md §4.6):
// dependency readiness, optimistic-version claim/release, and the status
// state machine, built directly on internal/store's per-task claim lock so
// the readiness check, version check, and claim write happen as one
// atomic sequence. Grounded on the teacher's internal/quota account-state
// transitions (MarkLimited/MarkAvailable: lock-guarded load-mutate-save)
// generalized from a single account blob to per-task claim records.
package task

import (
	"time"

	"github.com/google/uuid"
	"github.com/omx/teamctl/internal/atomicio"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/store"
)

// FSM wraps a Store with the task lifecycle operations.
type FSM struct {
	Store *store.Store
	Lease time.Duration
}

// New constructs an FSM with the default claim lease.
func New(s *store.Store) *FSM {
	return &FSM{Store: s, Lease: core.DefaultClaimLease}
}

// ComputeReadiness reads a task's depends_on and reports the subset of
// dependencies that are missing or not completed (spec.md §4.6).
func (f *FSM) ComputeReadiness(team, id string) (ready bool, unready []string, err error) {
	t, ok, err := f.Store.ReadTask(team, id)
	if err != nil {
		return false, nil, err
	}
	if !ok {
		return false, nil, core.NewError(core.CategoryTaskNotFound, "task %s", id)
	}
	for _, depID := range t.DependsOn {
		dep, depOK, derr := f.Store.ReadTask(team, depID)
		if derr != nil {
			return false, nil, derr
		}
		if !depOK || dep.Status != core.TaskCompleted {
			unready = append(unready, depID)
		}
	}
	return len(unready) == 0, unready, nil
}

// ClaimResult is the return value of ClaimTask.
type ClaimResult struct {
	Task       *core.Task
	ClaimToken string
}

// ClaimTask implements spec.md §4.6's claimTask: compute readiness, acquire
// the per-task claim lock, re-read under lock, version-check, then write
// the claim.
func (f *FSM) ClaimTask(team, id, worker string, expectedVersion *int) (*ClaimResult, error) {
	ready, unready, err := f.ComputeReadiness(team, id)
	if err != nil {
		return nil, err
	}
	if !ready {
		return nil, &core.Error{Category: core.CategoryBlockedDependency, Detail: joinIDs(unready)}
	}

	lockPath := f.Store.TaskClaimLockDir(team, id)
	lock := atomicio.NewDirLock(lockPath, atomicio.DefaultDomainLockStaleHorizon)
	release, err := lock.Acquire()
	if err != nil {
		return nil, core.WrapError(core.CategoryLockTimeout, err)
	}
	defer release()

	t, ok, err := f.Store.ReadTask(team, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NewError(core.CategoryTaskNotFound, "task %s", id)
	}
	if expectedVersion != nil && t.Version != *expectedVersion {
		return nil, core.NewError(core.CategoryClaimConflict, "version mismatch: expected %d, have %d", *expectedVersion, t.Version)
	}

	lease := f.Lease
	if lease <= 0 {
		lease = core.DefaultClaimLease
	}
	token := uuid.NewString()
	t.Status = core.TaskInProgress
	t.Owner = worker
	t.Claim = &core.Claim{Owner: worker, Token: token, LeasedUntil: time.Now().UTC().Add(lease)}
	t.Version++
	if err := f.Store.WriteTaskUnderLock(team, t); err != nil {
		return nil, err
	}
	return &ClaimResult{Task: t, ClaimToken: token}, nil
}

// validTransitions is the FSM's allowed edge set (spec.md §4.6).
var validTransitions = map[core.TaskStatus]map[core.TaskStatus]bool{
	core.TaskPending:    {core.TaskInProgress: true, core.TaskBlocked: true},
	core.TaskBlocked:    {core.TaskPending: true},
	core.TaskInProgress: {core.TaskCompleted: true, core.TaskFailed: true, core.TaskPending: true},
}

// TransitionTaskStatus implements spec.md §4.6's transitionTaskStatus.
func (f *FSM) TransitionTaskStatus(team, id string, from, to core.TaskStatus, claimToken string) (*core.Task, error) {
	lockPath := f.Store.TaskClaimLockDir(team, id)
	lock := atomicio.NewDirLock(lockPath, atomicio.DefaultDomainLockStaleHorizon)
	release, err := lock.Acquire()
	if err != nil {
		return nil, core.WrapError(core.CategoryLockTimeout, err)
	}
	defer release()

	t, ok, err := f.Store.ReadTask(team, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NewError(core.CategoryTaskNotFound, "task %s", id)
	}
	if t.Status != from {
		return nil, core.NewError(core.CategoryInvalidTransition, "current status %s != from %s", t.Status, from)
	}
	if t.Claim == nil || t.Claim.Token != claimToken {
		return nil, core.NewError(core.CategoryClaimConflict, "claim token mismatch")
	}
	if !validTransitions[from][to] {
		return nil, core.NewError(core.CategoryInvalidTransition, "%s -> %s not allowed", from, to)
	}

	t.Status = to
	if to == core.TaskCompleted || to == core.TaskFailed {
		now := time.Now().UTC()
		t.CompletedAt = &now
	}
	t.Version++
	if err := f.Store.WriteTaskUnderLock(team, t); err != nil {
		return nil, err
	}

	switch to {
	case core.TaskCompleted:
		if _, err := f.Store.AppendTeamEvent(team, store.EventPartial{Type: core.EventTaskCompleted, Worker: t.Owner, TaskID: id}); err != nil {
			return nil, err
		}
	case core.TaskFailed:
		if _, err := f.Store.AppendTeamEvent(team, store.EventPartial{Type: core.EventWorkerStopped, Worker: t.Owner, TaskID: id, Reason: t.Error}); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReleaseTaskClaim implements spec.md §4.6's releaseTaskClaim, including
// its idempotent no-op case.
func (f *FSM) ReleaseTaskClaim(team, id, claimToken, worker string) (*core.Task, error) {
	lockPath := f.Store.TaskClaimLockDir(team, id)
	lock := atomicio.NewDirLock(lockPath, atomicio.DefaultDomainLockStaleHorizon)
	release, err := lock.Acquire()
	if err != nil {
		return nil, core.WrapError(core.CategoryLockTimeout, err)
	}
	defer release()

	t, ok, err := f.Store.ReadTask(team, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NewError(core.CategoryTaskNotFound, "task %s", id)
	}

	if t.Status == core.TaskPending && t.Claim == nil && t.Owner == worker {
		return t, nil
	}
	// A retried release: the first call already cleared Owner/Claim, so
	// Owner no longer matches worker. last_released_by/_token remember who
	// last released under which token so the retry still recognizes its
	// own prior release instead of reporting a claim conflict.
	if t.Status == core.TaskPending && t.Claim == nil &&
		t.LastReleasedBy == worker && t.LastReleasedToken == claimToken {
		return t, nil
	}

	tokenMatches := t.Claim != nil && t.Claim.Token == claimToken
	ownerMatches := t.Status == core.TaskInProgress && t.Owner == worker
	if !tokenMatches && !ownerMatches {
		return nil, core.NewError(core.CategoryClaimConflict, "no matching claim for worker %s", worker)
	}

	t.Status = core.TaskPending
	t.Owner = ""
	t.Claim = nil
	t.LastReleasedBy = worker
	t.LastReleasedToken = claimToken
	t.Version++
	if err := f.Store.WriteTaskUnderLock(team, t); err != nil {
		return nil, err
	}
	return t, nil
}

func joinIDs(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}
