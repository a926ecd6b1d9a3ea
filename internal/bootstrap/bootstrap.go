// Package bootstrap implements the worker dispatch protocol (spec.md
// §4.5): compose inbox, wait for pane readiness, send a trigger, verify
// delivery, and roll back on failure. Grounded on the teacher's
// internal/tmux.go WaitForRuntimeReady/WaitForCommand polling shape and
// NudgeSession's literal-then-submit send, generalized from a fixed
// "Claude Code" prompt regex to a configurable readiness matcher and a
// configurable submit strategy (queue/interrupt/auto) per spec.md §6.
package bootstrap

import (
	"fmt"
	"strings"
	"time"

	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/multiplex"
	"github.com/omx/teamctl/internal/store"
	"github.com/omx/teamctl/internal/task"
)

// SendStrategy is the configurable trigger-submission strategy
// (OMX_TEAM_SEND_STRATEGY, spec.md §6).
type SendStrategy string

const (
	StrategyAuto      SendStrategy = "auto"
	StrategyQueue     SendStrategy = "queue"
	StrategyInterrupt SendStrategy = "interrupt"
)

// ReadyPromptMarkers are the tail-of-capture substrings that indicate an
// idle shell or interactive-agent prompt (spec.md §4.5).
var ReadyPromptMarkers = []string{"›", ">"}

// ActivityMarkers are substrings of a known interactive-agent status line
// that also count as "ready" (spec.md §4.5's "model line", "NN% left").
var ActivityMarkers = []string{"% left"}

// TrustPromptMarkers identify a trust-confirmation dialog that bootstrap
// may auto-dismiss by sending Options.TrustKeys.
var TrustPromptMarkers = []string{"Do you trust", "trust this"}

// Options configures one Dispatch call.
type Options struct {
	InitialBackoff  time.Duration // default 300ms
	MaxBackoff      time.Duration // default 8s
	ReadyTimeout    time.Duration // default 45s
	SkipReadyWait   bool          // initial bootstrap only; spec.md §6 OMX_TEAM_SKIP_READY_WAIT
	MaxVerifyRounds int           // default 6
	Strategy        SendStrategy
	// TrustKeys names the key sequence sent to dismiss one trust prompt
	// (config.RuntimeEnv.AutoTrustKeys, spec.md §6 OMX_TEAM_AUTO_TRUST;
	// default ["Down","Enter"]). Unrecognized names are skipped.
	TrustKeys []string
}

func (o Options) withDefaults() Options {
	if o.InitialBackoff <= 0 {
		o.InitialBackoff = 300 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 8 * time.Second
	}
	if o.ReadyTimeout <= 0 {
		o.ReadyTimeout = 45 * time.Second
	}
	if o.MaxVerifyRounds <= 0 {
		o.MaxVerifyRounds = 6
	}
	if o.Strategy == "" {
		o.Strategy = StrategyAuto
	}
	if len(o.TrustKeys) == 0 {
		o.TrustKeys = []string{"Down", "Enter"}
	}
	return o
}

// trustControlKey maps a configured key name to a multiplex.ControlKey.
// Unrecognized names resolve to "", which the caller skips.
func trustControlKey(name string) multiplex.ControlKey {
	switch strings.ToLower(name) {
	case "down":
		return multiplex.KeyDown
	case "enter", "submit":
		return multiplex.KeySubmit
	case "tab":
		return multiplex.KeyTab
	default:
		return ""
	}
}

// Dispatcher composes and delivers worker instructions via a multiplex
// Adapter (spec.md §4.5).
type Dispatcher struct {
	Store   *store.Store
	Adapter multiplex.Adapter
}

// New constructs a Dispatcher.
func New(s *store.Store, a multiplex.Adapter) *Dispatcher {
	return &Dispatcher{Store: s, Adapter: a}
}

// Dispatch composes the inbox markdown, optionally waits for the pane to
// be ready (initial bootstrap only), and sends+verifies the trigger
// message. Returns worker_notify_failed on verification failure; the
// inbox write itself is not rolled back here — callers performing a task
// assignment (as opposed to initial bootstrap) use Rollback on failure.
func (d *Dispatcher) Dispatch(team, worker, paneID, instructionPath, markdown string, initial bool, opts Options) error {
	opts = opts.withDefaults()

	if err := d.Store.WriteWorkerInbox(team, worker, markdown); err != nil {
		return err
	}

	if initial && !opts.SkipReadyWait {
		if err := d.waitReady(paneID, opts); err != nil {
			return core.WrapError(core.CategoryWorkerNotifyFailed, err)
		}
	}

	trigger := fmt.Sprintf("Read and follow the instructions in %s", instructionPath)
	if err := multiplex.ValidateTrigger(trigger); err != nil {
		return core.WrapError(core.CategoryWorkerNotifyFailed, err)
	}

	if err := d.verifiedSend(paneID, trigger, opts); err != nil {
		return core.WrapError(core.CategoryWorkerNotifyFailed, err)
	}
	return nil
}

// waitReady polls capturePane with exponential backoff until the tail
// shows a shell/agent-ready marker, optionally auto-dismissing one trust
// prompt along the way (spec.md §4.5 step 2).
func (d *Dispatcher) waitReady(paneID string, opts Options) error {
	deadline := time.Now().Add(opts.ReadyTimeout)
	dismissedTrust := false
	for attempt := 0; ; attempt++ {
		tail, err := d.Adapter.CapturePane(paneID, 10)
		if err == nil {
			if isReady(tail) {
				return nil
			}
			if !dismissedTrust && hasAny(tail, TrustPromptMarkers) {
				for _, name := range opts.TrustKeys {
					if key := trustControlKey(name); key != "" {
						_ = d.Adapter.SendControlKey(paneID, key)
					}
				}
				dismissedTrust = true
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for pane %s to become ready", paneID)
		}
		delay := multiplex.Backoff(opts.InitialBackoff, opts.MaxBackoff, attempt)
		remaining := time.Until(deadline)
		if delay > remaining {
			delay = remaining
		}
		time.Sleep(delay)
	}
}

func isReady(tail string) bool {
	return hasAny(tail, ReadyPromptMarkers) || hasAny(tail, ActivityMarkers)
}

func hasAny(haystack string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(haystack, m) {
			return true
		}
	}
	return false
}

// verifiedSend sends the trigger and recaptures the pane to confirm it
// landed, retrying with mixed submit strategies up to MaxVerifyRounds
// (spec.md §4.5 step 4).
func (d *Dispatcher) verifiedSend(paneID, trigger string, opts Options) error {
	for round := 0; round < opts.MaxVerifyRounds; round++ {
		if err := d.sendOnce(paneID, trigger, opts.Strategy, round); err != nil {
			return err
		}
		tail, err := d.Adapter.CapturePane(paneID, 20)
		if err == nil && strings.Contains(tail, trigger) {
			return nil
		}
	}
	return fmt.Errorf("trigger not observed in pane %s after %d rounds", paneID, opts.MaxVerifyRounds)
}

// sendOnce issues one submission attempt per the configured strategy,
// mixing submit and tab+submit across verification rounds (spec.md §4.5
// step 4: "mixed submit/tab+submit strategies").
func (d *Dispatcher) sendOnce(paneID, trigger string, strategy SendStrategy, round int) error {
	if err := d.Adapter.SendKeysLiteral(paneID, trigger); err != nil {
		return err
	}
	switch strategy {
	case StrategyInterrupt:
		if err := d.Adapter.SendControlKey(paneID, multiplex.KeyInterrupt); err != nil {
			return err
		}
		return d.Adapter.SendControlKey(paneID, multiplex.KeySubmit)
	case StrategyQueue:
		if round%2 == 1 {
			if err := d.Adapter.SendControlKey(paneID, multiplex.KeyTab); err != nil {
				return err
			}
		}
		return d.Adapter.SendControlKey(paneID, multiplex.KeySubmit)
	default: // StrategyAuto
		if round%2 == 1 {
			if err := d.Adapter.SendControlKey(paneID, multiplex.KeyTab); err != nil {
				return err
			}
		}
		return d.Adapter.SendControlKey(paneID, multiplex.KeySubmit)
	}
}

// Rollback releases a task claim and writes a "cancelled" inbox so the
// worker does not act on stale instructions, per spec.md §4.5's "On any
// post-state-mutation failure in assignTask... release the claim
// atomically and write a cancelled inbox". If release fails, the release
// error and the original cause are both reported.
func Rollback(fsm *task.FSM, s *store.Store, team, taskID, claimToken, worker string, cause error) error {
	_, relErr := fsm.ReleaseTaskClaim(team, taskID, claimToken, worker)
	writeErr := s.WriteWorkerInbox(team, worker, "# Cancelled\n\nThis assignment was cancelled before delivery completed; disregard any partial instructions.\n")
	if relErr != nil {
		return fmt.Errorf("rollback failed to release claim (%v) after dispatch error: %w", relErr, cause)
	}
	if writeErr != nil {
		return fmt.Errorf("rollback failed to write cancelled inbox (%v) after dispatch error: %w", writeErr, cause)
	}
	return cause
}

// ComposeInstructionPath returns the project-relative path a trigger
// message should reference, matching the layout
// internal/namepolicy.WorkerInboxPath derives.
func ComposeInstructionPath(team, worker string) string {
	return fmt.Sprintf(".omx/state/team/%s/workers/%s/inbox.md", team, worker)
}
