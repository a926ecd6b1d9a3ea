// Package shutdown implements the shutdown controller (spec.md §4.9):
// request, bounded ack wait, rejection handling, force-terminate, and
// cleanup. Grounded almost verbatim on teacher
// internal/session/town.go's StopTownSession: try a graceful signal
// first, poll WaitForSessionExit-style for the process to leave on its
// own, then fall through to a forceful kill, logging a pre-death event
// before the kill either way.
package shutdown

import (
	"fmt"
	"strings"
	"time"

	"github.com/omx/teamctl/internal/bootstrap"
	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/multiplex"
	"github.com/omx/teamctl/internal/store"
)

// DefaultDeadline is the global per-team shutdown deadline (spec.md §5).
const DefaultDeadline = 15 * time.Second

// DefaultPollInterval is how often acks are polled during the deadline.
const DefaultPollInterval = 250 * time.Millisecond

// Options configures one ShutdownTeam call.
type Options struct {
	Force          bool
	RequestedBy    string
	Deadline       time.Duration // default DefaultDeadline
	PollInterval   time.Duration // default DefaultPollInterval
	// RestoreInstructionsEnv is called best-effort during cleanup to
	// restore the leader's instructions-file environment variable
	// (spec.md §4.9 step 6); process-wide env mutation is a lifecycle
	// (C12) concern this controller only triggers.
	RestoreInstructionsEnv func() error
}

func (o Options) withDefaults() Options {
	if o.Deadline <= 0 {
		o.Deadline = DefaultDeadline
	}
	if o.PollInterval <= 0 {
		o.PollInterval = DefaultPollInterval
	}
	return o
}

// Controller drives team shutdown against a Store, a multiplex Adapter,
// and the bootstrap Dispatcher that delivers the shutdown inbox.
type Controller struct {
	Store      *store.Store
	Adapter    multiplex.Adapter
	Dispatcher *bootstrap.Dispatcher
}

// New constructs a Controller.
func New(s *store.Store, a multiplex.Adapter, d *bootstrap.Dispatcher) *Controller {
	return &Controller{Store: s, Adapter: a, Dispatcher: d}
}

const shutdownInboxMarkdown = "# Shutdown requested\n\nWrite shutdown-ack.json with `{status: \"accept\"}` (or `{status: \"reject\", reason: ...}` if you cannot stop safely right now) and exit.\n"

// ShutdownTeam implements spec.md §4.9's shutdownTeam(team, {force}).
func (c *Controller) ShutdownTeam(team string, opts Options) error {
	opts = opts.withDefaults()

	cfg, ok, err := c.Store.ReadConfig(team)
	if err != nil {
		return err
	}
	if !ok {
		return c.cleanup(team, nil, opts)
	}

	requestedAt := make(map[string]time.Time, len(cfg.Workers))
	for _, w := range cfg.Workers {
		now := time.Now().UTC()
		requestedAt[w.Name] = now
		if err := c.Store.WriteShutdownRequest(team, w.Name, &core.ShutdownRequest{
			RequestedAt: now, RequestedBy: opts.RequestedBy,
		}); err != nil {
			return err
		}
		if c.Dispatcher != nil && w.PaneID != "" {
			path := bootstrap.ComposeInstructionPath(team, w.Name)
			if err := c.Dispatcher.Dispatch(team, w.Name, w.PaneID, path, shutdownInboxMarkdown, false, bootstrap.Options{}); err != nil {
				// Best-effort: delivery failure doesn't block the rest of
				// shutdown, the deadline/force-kill path will cover it.
				_ = err
			}
		}
	}

	acked := map[string]bool{}
	var rejects []string
	deadline := time.Now().Add(opts.Deadline)
	for time.Now().Before(deadline) {
		pending := false
		for _, w := range cfg.Workers {
			if acked[w.Name] {
				continue
			}
			ack, ackOK, err := c.Store.ReadShutdownAck(team, w.Name)
			if err != nil {
				return err
			}
			if !ackOK || ack.UpdatedAt.Before(requestedAt[w.Name]) {
				pending = true
				continue
			}
			acked[w.Name] = true
			reason := "accept"
			if ack.Status == core.ShutdownAckReject {
				reason = "reject:" + ack.Reason
				rejects = append(rejects, fmt.Sprintf("%s:%s", w.Name, ack.Reason))
			}
			if _, err := c.Store.AppendTeamEvent(team, store.EventPartial{
				Type: core.EventShutdownAck, Worker: w.Name, Reason: reason,
			}); err != nil {
				return err
			}
		}
		if !pending {
			break
		}
		time.Sleep(opts.PollInterval)
	}

	if len(rejects) > 0 && !opts.Force {
		return core.NewError(core.CategoryShutdownRejected, "%s", strings.Join(rejects, ","))
	}

	var stillAlive []core.WorkerInfo
	for _, w := range cfg.Workers {
		if acked[w.Name] {
			continue
		}
		alive := false
		if c.Adapter != nil && w.PaneID != "" {
			alive, _ = c.Adapter.IsPaneAlive(w.PaneID)
		}
		if alive {
			stillAlive = append(stillAlive, w)
		}
	}
	for _, w := range stillAlive {
		if c.Adapter == nil {
			continue
		}
		_ = multiplex.GuardedKill(c.Adapter, w.PaneID, cfg.LeaderPaneID, cfg.HUDPaneID)
	}

	return c.cleanup(team, cfg.Workers, opts)
}

// cleanup implements spec.md §4.9 step 6: remove worker instructions,
// restore the instructions-file env var, and recursively remove the team
// directory. Each sub-step is best-effort; the first real error is
// returned after the rest are still attempted.
func (c *Controller) cleanup(team string, workers []core.WorkerInfo, opts Options) error {
	var firstErr error
	for _, w := range workers {
		if err := c.Store.RemoveWorkerInbox(team, w.Name); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if opts.RestoreInstructionsEnv != nil {
		if err := opts.RestoreInstructionsEnv(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := c.Store.RemoveTeamTree(team); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
