// Package tools implements the MCP-style tool surface (spec.md §4.11): a
// real MCP server exposing the state-tool family (state_read/write/
// clear/list_active/get_status) and the team-tool family (send/broadcast,
// mailbox, task, config/manifest, worker, event, snapshot, approval,
// cleanup operations wrapping C3-C5 1:1). Grounded on enrichment repo
// jaakkos-stringwork/internal/tools/collab's mcp.NewTool/server.AddTool
// registration shape — one registerXxx(s, ...) function per tool, grouped
// by concern with a numbered comment per group — and on teacher
// internal/protocol/handlers.go's HandlerRegistry idea of a small
// type->handler dispatch table for the state-tool family.
package tools

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mark3labs/mcp-go/server"

	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/mailbox"
	"github.com/omx/teamctl/internal/namepolicy"
	"github.com/omx/teamctl/internal/store"
	"github.com/omx/teamctl/internal/task"
)

// Toolset resolves working directories to project roots and builds
// per-call Store/FSM/Mailbox handles against the resolved root.
type Toolset struct {
	// DefaultProject is used when a tool call supplies no working
	// directory, or when resolution finds no matching ancestor.
	DefaultProject string
}

// New constructs a Toolset whose fallback root is defaultProject.
func New(defaultProject string) *Toolset {
	return &Toolset{DefaultProject: defaultProject}
}

// Register wires every state and team tool onto s.
func Register(s *server.MCPServer, ts *Toolset) {
	// State tools (5)
	registerStateRead(s, ts)
	registerStateWrite(s, ts)
	registerStateClear(s, ts)
	registerStateListActive(s, ts)
	registerStateGetStatus(s, ts)

	// Mailbox tools (4)
	registerSendMessage(s, ts)
	registerBroadcastMessage(s, ts)
	registerListMailbox(s, ts)
	registerMarkMailboxDelivered(s, ts)

	// Task tools (6)
	registerCreateTask(s, ts)
	registerReadTask(s, ts)
	registerListTasks(s, ts)
	registerUpdateTask(s, ts)
	registerClaimTask(s, ts)
	registerReleaseTask(s, ts)

	// Config/manifest tools (2)
	registerReadConfig(s, ts)
	registerReadManifest(s, ts)

	// Worker tools (5)
	registerWorkerStatus(s, ts)
	registerWorkerHeartbeat(s, ts)
	registerUpdateWorkerHeartbeat(s, ts)
	registerWriteWorkerInbox(s, ts)
	registerWriteWorkerIdentity(s, ts)

	// Event/snapshot/approval tools (7)
	registerAppendEvent(s, ts)
	registerGetSummary(s, ts)
	registerWriteShutdownRequest(s, ts)
	registerReadShutdownAck(s, ts)
	registerReadMonitorSnapshot(s, ts)
	registerWriteMonitorSnapshot(s, ts)
	registerTaskApproval(s, ts)

	// Team lifecycle tools (1)
	registerCleanup(s, ts)
}

// resolveRoot implements spec.md §4.11's working-directory resolution: if
// workingDirectory doesn't itself contain the team, walk up its ancestors
// (and the process's cwd) looking for <ancestor>/.omx/state/team/<team>/.
// First match wins; falls back to workingDirectory (or DefaultProject if
// workingDirectory is empty).
func (ts *Toolset) resolveRoot(workingDirectory, team string) string {
	if workingDirectory == "" {
		workingDirectory = ts.DefaultProject
	}
	if root, ok := climbFor(workingDirectory, team); ok {
		return root
	}
	if cwd, err := os.Getwd(); err == nil && cwd != workingDirectory {
		if root, ok := climbFor(cwd, team); ok {
			return root
		}
	}
	return workingDirectory
}

func climbFor(start, team string) (string, bool) {
	if start == "" {
		return "", false
	}
	dir := start
	for {
		if info, err := os.Stat(namepolicy.TeamDir(dir, team)); err == nil && info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

func (ts *Toolset) store(workingDirectory, team string) *store.Store {
	return store.New(ts.resolveRoot(workingDirectory, team))
}

func (ts *Toolset) fsm(workingDirectory, team string) *task.FSM {
	return task.New(ts.store(workingDirectory, team))
}

func (ts *Toolset) mailbox(workingDirectory, team string) *mailbox.Mailbox {
	return mailbox.New(ts.store(workingDirectory, team))
}

// argString/argBool/argNumber pull typed arguments out of the
// map[string]interface{} mcp.CallToolRequest.GetArguments() returns,
// matching jaakkos-stringwork's args["x"].(T) extraction idiom.
func argString(args map[string]interface{}, key string) string {
	v, _ := args[key].(string)
	return v
}

func argBool(args map[string]interface{}, key string, def bool) bool {
	if v, ok := args[key].(bool); ok {
		return v
	}
	return def
}

func argStringSlice(args map[string]interface{}, key string) []string {
	raw, ok := args[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func requireArgs(args map[string]interface{}, keys ...string) error {
	for _, k := range keys {
		if argString(args, k) == "" {
			return fmt.Errorf("%s is required", k)
		}
	}
	return nil
}

// categoryError formats a *core.Error the way the spec's JSON error
// envelope expects (spec.md §7: category + detail), falling back to a
// plain message for errors that aren't categorized.
func categoryError(err error) error {
	if ce, ok := err.(*core.Error); ok {
		return fmt.Errorf("%s: %s", ce.Category, ce.Detail)
	}
	return err
}
