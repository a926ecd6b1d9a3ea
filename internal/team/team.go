// Package team wires the component packages (store, task, mailbox,
// bootstrap, monitor, shutdown, overlay) into the single handle
// internal/tools and internal/cmd drive a team through. It cannot live in
// internal/core itself — every component package already imports core for
// the shared domain types, and core importing them back would cycle — so
// this is the orchestration layer spec.md §9 describes, grounded on
// teacher internal/mayor/manager.go's Manager (one struct bundling a
// root path and the session/tmux/config collaborators, exposing
// Start/Stop as the whole lifecycle's entry points).
package team

import (
	"fmt"
	"time"

	"github.com/omx/teamctl/internal/bootstrap"
	"github.com/omx/teamctl/internal/config"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/mailbox"
	"github.com/omx/teamctl/internal/monitor"
	"github.com/omx/teamctl/internal/multiplex"
	"github.com/omx/teamctl/internal/shutdown"
	"github.com/omx/teamctl/internal/store"
	"github.com/omx/teamctl/internal/task"
)

// Team bundles every component package against one project root and
// multiplexer adapter.
type Team struct {
	Project string
	Env     config.RuntimeEnv
	Store   *store.Store
	Adapter multiplex.Adapter
	FSM     *task.FSM
	Mailbox *mailbox.Mailbox
	Dispatch *bootstrap.Dispatcher
	Monitor  *monitor.Monitor
	Shutdown *shutdown.Controller
}

// New constructs a Team handle rooted at project, wiring env's tunables
// into the components that accept them.
func New(project string, adapter multiplex.Adapter, env config.RuntimeEnv) *Team {
	s := store.New(project)
	dispatcher := bootstrap.New(s, adapter)
	mon := monitor.New(s, adapter)
	if env.MailboxRetryHorizon > 0 {
		mon.NotifyRetryHorizon = env.MailboxRetryHorizon
	}
	return &Team{
		Project:  project,
		Env:      env,
		Store:    s,
		Adapter:  adapter,
		FSM:      task.New(s),
		Mailbox:  mailbox.New(s),
		Dispatch: dispatcher,
		Monitor:  mon,
		Shutdown: shutdown.New(s, adapter, dispatcher),
	}
}

// dispatchOptions builds bootstrap.Options from the team's RuntimeEnv.
func (t *Team) dispatchOptions() bootstrap.Options {
	return bootstrap.Options{
		ReadyTimeout:  t.Env.ReadyTimeout,
		SkipReadyWait: t.Env.SkipReadyWait,
		Strategy:      bootstrap.SendStrategy(t.Env.SendStrategy),
		TrustKeys:     t.Env.AutoTrustKeys,
	}
}

// StartTeam implements the bring-up half of spec.md §4.12: persist the
// team's config/manifest, then dispatch an initial bootstrap to every
// worker with a known pane. Each worker dispatch is attempted even if an
// earlier one fails; the first error encountered is returned after every
// worker has been tried, so one bad pane can't block the rest of the team
// from starting (same fault-isolation spirit as §4.12's hook steps).
func (t *Team) StartTeam(cfg *core.Config) error {
	if ok, detail := store.ValidateConfig(cfg); !ok {
		return core.NewError(core.CategoryInvalidTeamName, "%s", detail)
	}
	if err := t.Store.EnsureTeamTree(cfg.Name); err != nil {
		return err
	}
	if err := t.Store.WriteConfig(cfg.Name, cfg); err != nil {
		return err
	}

	var firstErr error
	for _, w := range cfg.Workers {
		if w.PaneID == "" {
			continue
		}
		markdown := fmt.Sprintf("# Welcome, %s\n\nYou are worker %q on team %q.\n", w.Name, w.Name, cfg.Name)
		path := bootstrap.ComposeInstructionPath(cfg.Name, w.Name)
		if err := t.Dispatch.Dispatch(cfg.Name, w.Name, w.PaneID, path, markdown, true, t.dispatchOptions()); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// AssignTask enforces spec.md §4.6's leader-side policy gates, then claims
// taskID for worker and dispatches it as a follow-up message, rolling the
// claim back if dispatch fails (spec.md §4.5: "On any post-state-mutation
// failure in assignTask... release the claim atomically and write a
// cancelled inbox").
func (t *Team) AssignTask(teamName, taskID, worker, paneID string) (*core.Task, error) {
	var policy core.Policy
	if manifest, ok, err := t.Store.ReadManifest(teamName); err != nil {
		return nil, err
	} else if ok {
		policy = manifest.Policy
	}
	if err := task.CheckDelegationOnly(policy, worker); err != nil {
		return nil, err
	}

	toAssign, ok, err := t.Store.ReadTask(teamName, taskID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, core.NewError(core.CategoryTaskNotFound, "task %s not found", taskID)
	}
	approval, _, err := t.Store.ReadApproval(teamName, taskID)
	if err != nil {
		return nil, err
	}
	if err := task.CheckPlanApproval(policy, toAssign, approval); err != nil {
		return nil, err
	}

	claimed, err := t.FSM.ClaimTask(teamName, taskID, worker, nil)
	if err != nil {
		return nil, err
	}

	markdown := fmt.Sprintf("# Task %s\n\n%s\n\n%s\n", claimed.Task.ID, claimed.Task.Subject, claimed.Task.Description)
	path := bootstrap.ComposeInstructionPath(teamName, worker)
	if err := t.Dispatch.Dispatch(teamName, worker, paneID, path, markdown, false, t.dispatchOptions()); err != nil {
		if rbErr := bootstrap.Rollback(t.FSM, t.Store, teamName, taskID, claimed.ClaimToken, worker, err); rbErr != nil {
			return nil, rbErr
		}
		return nil, err
	}
	return claimed.Task, nil
}

// ShutdownTeam shuts a team down through the shutdown controller, using
// the controller's default deadline and poll interval.
func (t *Team) ShutdownTeam(teamName string, force bool, requestedBy string) error {
	opts := shutdown.Options{Force: force, RequestedBy: requestedBy}
	return t.Shutdown.ShutdownTeam(teamName, opts)
}

// RunMonitorCycle runs one monitor cycle for teamName.
func (t *Team) RunMonitorCycle(teamName string) (*core.SummarySnapshot, error) {
	return t.Monitor.Run(teamName)
}

// WaitFor polls fn until it returns true or deadline elapses, for
// callers that want a blocking
// check against repeated monitor cycles without duplicating the backoff
// logic monitor/bootstrap already implement.
func WaitFor(deadline time.Duration, interval time.Duration, fn func() (bool, error)) error {
	end := time.Now().Add(deadline)
	for {
		ok, err := fn()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(end) {
			return fmt.Errorf("condition not met within %s", deadline)
		}
		time.Sleep(interval)
	}
}
