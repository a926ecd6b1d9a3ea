package task

import "github.com/omx/teamctl/internal/core"

// CheckDelegationOnly enforces spec.md §4.6's delegation_only gate: the
// manifest policy forbids assigning any task to the reserved
// "leader-fixed" worker.
func CheckDelegationOnly(policy core.Policy, worker string) error {
	if policy.DelegationOnly && worker == core.ReservedLeaderWorker {
		return core.NewError(core.CategoryDelegationOnly, "cannot assign to %s", core.ReservedLeaderWorker)
	}
	return nil
}

// CheckPlanApproval enforces spec.md §4.6's plan_approval_required gate:
// when the manifest requires it and the task needs a code change,
// dispatch is forbidden until an approval record with status=approved
// exists.
func CheckPlanApproval(policy core.Policy, t *core.Task, approval *core.Approval) error {
	if !policy.PlanApprovalRequired || !t.RequiresCodeChange {
		return nil
	}
	if approval == nil || approval.Status != core.ApprovalApproved {
		return core.NewError(core.CategoryPlanApprovalRequired, "task %s requires an approved plan", t.ID)
	}
	return nil
}
