package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/omx/teamctl/internal/core"
	"github.com/omx/teamctl/internal/monitor"
	"github.com/omx/teamctl/internal/store"
)

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return mcp.NewToolResultText(string(data)), nil
}

// --- Mailbox tools (4) ---

func registerSendMessage(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("send_message",
			mcp.WithDescription("Send a direct mailbox message from one worker to another."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("from", mcp.Required(), mcp.Description("Sending worker")),
			mcp.WithString("to", mcp.Required(), mcp.Description("Receiving worker")),
			mcp.WithString("body", mcp.Required(), mcp.Description("Message body")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "from", "to", "body"); err != nil {
				return nil, err
			}
			mb := ts.mailbox(argString(args, "working_directory"), team)
			msg, err := mb.SendDirect(team, argString(args, "from"), argString(args, "to"), argString(args, "body"))
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(msg)
		},
	)
}

func registerBroadcastMessage(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("broadcast_message",
			mcp.WithDescription("Send one mailbox message to every listed worker."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("from", mcp.Required(), mcp.Description("Sending worker")),
			mcp.WithString("body", mcp.Required(), mcp.Description("Message body")),
			mcp.WithArray("workers", mcp.Description("Recipient worker names")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "from", "body"); err != nil {
				return nil, err
			}
			mb := ts.mailbox(argString(args, "working_directory"), team)
			msgs, err := mb.Broadcast(team, argString(args, "from"), argString(args, "body"), argStringSlice(args, "workers"))
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(msgs)
		},
	)
}

func registerListMailbox(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("list_mailbox",
			mcp.WithDescription("List a worker's mailbox messages."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Worker whose mailbox to list")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "worker"); err != nil {
				return nil, err
			}
			mb := ts.mailbox(argString(args, "working_directory"), team)
			msgs, err := mb.ListMessages(team, argString(args, "worker"))
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(msgs)
		},
	)
}

func registerMarkMailboxDelivered(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("mark_mailbox_delivered",
			mcp.WithDescription("Mark one mailbox message delivered (or, with notified=true, notified)."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Mailbox owner")),
			mcp.WithString("message_id", mcp.Required(), mcp.Description("Message id to stamp")),
			mcp.WithBoolean("notified", mcp.Description("Stamp notified_at instead of delivered_at")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "worker", "message_id"); err != nil {
				return nil, err
			}
			mb := ts.mailbox(argString(args, "working_directory"), team)
			var found bool
			var err error
			if argBool(args, "notified", false) {
				found, err = mb.MarkNotified(team, argString(args, "worker"), argString(args, "message_id"))
			} else {
				found, err = mb.MarkDelivered(team, argString(args, "worker"), argString(args, "message_id"))
			}
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(map[string]bool{"found": found})
		},
	)
}

// --- Task tools (6) ---

func registerCreateTask(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("create_task",
			mcp.WithDescription("Create a new task for a team."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("subject", mcp.Required(), mcp.Description("Short task subject")),
			mcp.WithString("description", mcp.Description("Task description")),
			mcp.WithBoolean("requires_code_change", mcp.Description("Whether completing this task requires a code change")),
			mcp.WithArray("depends_on", mcp.Description("Task ids this task depends on")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "subject"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			t, err := st.CreateTask(team, store.TaskPartial{
				Subject:            argString(args, "subject"),
				Description:        argString(args, "description"),
				RequiresCodeChange: argBool(args, "requires_code_change", false),
				DependsOn:          argStringSlice(args, "depends_on"),
			})
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(t)
		},
	)
}

func registerReadTask(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("read_task",
			mcp.WithDescription("Read one task by id."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "task_id"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			t, ok, err := st.ReadTask(team, argString(args, "task_id"))
			if err != nil {
				return nil, categoryError(err)
			}
			if !ok {
				return nil, core.NewError(core.CategoryTaskNotFound, "task %q", argString(args, "task_id"))
			}
			return jsonResult(t)
		},
	)
}

func registerListTasks(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("list_tasks",
			mcp.WithDescription("List every task for a team."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			tasks, err := st.ListTasks(team)
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(tasks)
		},
	)
}

func registerUpdateTask(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("update_task",
			mcp.WithDescription("Patch a task's status/owner/result/error fields."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("status", mcp.Description("New status")),
			mcp.WithString("owner", mcp.Description("New owner")),
			mcp.WithString("result", mcp.Description("Result text")),
			mcp.WithString("error", mcp.Description("Error text")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "task_id"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			patch := store.TaskPatch{}
			if v := argString(args, "status"); v != "" {
				status := core.TaskStatus(v)
				patch.Status = &status
			}
			if v := argString(args, "owner"); v != "" {
				patch.Owner = &v
			}
			if v := argString(args, "result"); v != "" {
				patch.Result = &v
			}
			if v := argString(args, "error"); v != "" {
				patch.Error = &v
			}
			t, err := st.UpdateTask(team, argString(args, "task_id"), patch)
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(t)
		},
	)
}

func registerClaimTask(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("claim_task",
			mcp.WithDescription("Claim a task whose dependencies are all completed for a worker. An existing claim on the task is replaced."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Claiming worker")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "task_id", "worker"); err != nil {
				return nil, err
			}
			fsm := ts.fsm(argString(args, "working_directory"), team)
			claimed, err := fsm.ClaimTask(team, argString(args, "task_id"), argString(args, "worker"), nil)
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(claimed)
		},
	)
}

func registerReleaseTask(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("release_task",
			mcp.WithDescription("Release a worker's claim on a task back to pending."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("claim_token", mcp.Required(), mcp.Description("Claim token from claim_task")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Releasing worker")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "task_id", "claim_token", "worker"); err != nil {
				return nil, err
			}
			fsm := ts.fsm(argString(args, "working_directory"), team)
			t, err := fsm.ReleaseTaskClaim(team, argString(args, "task_id"), argString(args, "claim_token"), argString(args, "worker"))
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(t)
		},
	)
}

// --- Config/manifest tools (2) ---

func registerReadConfig(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("read_config", mcp.WithDescription("Read a team's config.json."), mcp.WithString("team", mcp.Required(), mcp.Description("Team name")), mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed"))),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			cfg, ok, err := st.ReadConfig(team)
			if err != nil {
				return nil, categoryError(err)
			}
			if !ok {
				return nil, core.NewError(core.CategoryTeamNotFound, "team %q", team)
			}
			return jsonResult(cfg)
		},
	)
}

func registerReadManifest(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("read_manifest", mcp.WithDescription("Read a team's manifest.v2.json."), mcp.WithString("team", mcp.Required(), mcp.Description("Team name")), mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed"))),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			m, ok, err := st.ReadManifest(team)
			if err != nil {
				return nil, categoryError(err)
			}
			if !ok {
				return nil, core.NewError(core.CategoryTeamNotFound, "team %q", team)
			}
			return jsonResult(m)
		},
	)
}

// --- Worker tools (5) ---

func registerWorkerStatus(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("worker_status",
			mcp.WithDescription("Read one worker's status.json."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Worker name")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "worker"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			status, err := st.ReadWorkerStatus(team, argString(args, "worker"))
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(status)
		},
	)
}

func registerWorkerHeartbeat(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("worker_heartbeat",
			mcp.WithDescription("Read one worker's heartbeat.json."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Worker name")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "worker"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			hb, ok, err := st.ReadWorkerHeartbeat(team, argString(args, "worker"))
			if err != nil {
				return nil, categoryError(err)
			}
			if !ok {
				return jsonResult(core.WorkerHeartbeat{})
			}
			return jsonResult(hb)
		},
	)
}

func registerUpdateWorkerHeartbeat(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("update_worker_heartbeat",
			mcp.WithDescription("Workers call this periodically to signal liveness and turn progress."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Worker name")),
			mcp.WithNumber("turn_count", mcp.Description("Current turn count")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "worker"); err != nil {
				return nil, err
			}
			turnCount := 0
			if v, ok := args["turn_count"].(float64); ok {
				turnCount = int(v)
			}
			st := ts.store(argString(args, "working_directory"), team)
			hb := &core.WorkerHeartbeat{LastTurnAt: time.Now().UTC(), TurnCount: turnCount, Alive: true}
			if err := st.WriteWorkerHeartbeat(team, argString(args, "worker"), hb); err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(hb)
		},
	)
}

func registerWriteWorkerInbox(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("write_worker_inbox",
			mcp.WithDescription("Overwrite a worker's inbox.md with new instructions."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Worker name")),
			mcp.WithString("markdown", mcp.Required(), mcp.Description("Inbox markdown body")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "worker", "markdown"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			if err := st.WriteWorkerInbox(team, argString(args, "worker"), argString(args, "markdown")); err != nil {
				return nil, categoryError(err)
			}
			return mcp.NewToolResultText("written"), nil
		},
	)
}

func registerWriteWorkerIdentity(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("write_worker_identity",
			mcp.WithDescription("Write or update a worker's identity.json."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Worker name")),
			mcp.WithNumber("index", mcp.Description("Worker index")),
			mcp.WithString("role", mcp.Description("Worker role")),
			mcp.WithString("pane_id", mcp.Description("tmux pane id")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "worker"); err != nil {
				return nil, err
			}
			index := 0
			if v, ok := args["index"].(float64); ok {
				index = int(v)
			}
			wi := &core.WorkerIdentity{
				Name:   argString(args, "worker"),
				Index:  index,
				Role:   argString(args, "role"),
				PaneID: argString(args, "pane_id"),
			}
			st := ts.store(argString(args, "working_directory"), team)
			if err := st.WriteWorkerIdentity(team, wi); err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(wi)
		},
	)
}

// --- Event/snapshot/approval tools (7), plus cleanup ---

func registerAppendEvent(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("append_event",
			mcp.WithDescription("Append one event to a team's event log."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("type", mcp.Required(), mcp.Description("Event type")),
			mcp.WithString("worker", mcp.Description("Worker the event concerns")),
			mcp.WithString("task_id", mcp.Description("Task the event concerns")),
			mcp.WithString("reason", mcp.Description("Free-text reason")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "type"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			ev, err := st.AppendTeamEvent(team, store.EventPartial{
				Type:   core.EventType(argString(args, "type")),
				Worker: argString(args, "worker"),
				TaskID: argString(args, "task_id"),
				Reason: argString(args, "reason"),
			})
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(ev)
		},
	)
}

func registerGetSummary(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("get_summary",
			mcp.WithDescription("Run one monitor cycle and return the resulting summary snapshot."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			mon := monitor.New(st, nil)
			snap, err := mon.Run(team)
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(snap)
		},
	)
}

func registerWriteShutdownRequest(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("write_shutdown_request",
			mcp.WithDescription("Request a worker shut down."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Worker to shut down")),
			mcp.WithString("requested_by", mcp.Required(), mcp.Description("Who is requesting shutdown")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "worker", "requested_by"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			req2 := &core.ShutdownRequest{RequestedAt: time.Now().UTC(), RequestedBy: argString(args, "requested_by")}
			if err := st.WriteShutdownRequest(team, argString(args, "worker"), req2); err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(req2)
		},
	)
}

func registerReadShutdownAck(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("read_shutdown_ack",
			mcp.WithDescription("Read a worker's shutdown acknowledgement, if any."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("worker", mcp.Required(), mcp.Description("Worker name")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "worker"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			ack, ok, err := st.ReadShutdownAck(team, argString(args, "worker"))
			if err != nil {
				return nil, categoryError(err)
			}
			if !ok {
				return mcp.NewToolResultText(`{"status":"pending"}`), nil
			}
			return jsonResult(ack)
		},
	)
}

func registerReadMonitorSnapshot(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("read_monitor_snapshot",
			mcp.WithDescription("Read the last-written monitor snapshot for a team."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			snap, err := st.ReadMonitorSnapshot(team)
			if err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(snap)
		},
	)
}

func registerWriteMonitorSnapshot(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("write_monitor_snapshot",
			mcp.WithDescription("Overwrite a team's monitor snapshot."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("snapshot", mcp.Required(), mcp.Description("JSON-encoded core.MonitorSnapshot")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "snapshot"); err != nil {
				return nil, err
			}
			var snap core.MonitorSnapshot
			if err := json.Unmarshal([]byte(argString(args, "snapshot")), &snap); err != nil {
				return nil, fmt.Errorf("snapshot is not valid JSON: %w", err)
			}
			st := ts.store(argString(args, "working_directory"), team)
			if err := st.WriteMonitorSnapshot(team, &snap); err != nil {
				return nil, categoryError(err)
			}
			return mcp.NewToolResultText("written"), nil
		},
	)
}

func registerCleanup(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("cleanup",
			mcp.WithDescription("Remove a team's entire state tree."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			if err := st.RemoveTeamTree(team); err != nil {
				return nil, categoryError(err)
			}
			return mcp.NewToolResultText("removed"), nil
		},
	)
}

func registerTaskApproval(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("task_approval",
			mcp.WithDescription("Read or record a task's plan-approval decision. Supplying a status writes a decision; omitting it reads the current one."),
			mcp.WithString("team", mcp.Required(), mcp.Description("Team name")),
			mcp.WithString("task_id", mcp.Required(), mcp.Description("Task id")),
			mcp.WithString("status", mcp.Description("approved|rejected — omit to just read")),
			mcp.WithString("reviewer", mcp.Description("Who decided")),
			mcp.WithString("decision_reason", mcp.Description("Why")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			team := argString(args, "team")
			if err := requireArgs(args, "team", "task_id"); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), team)
			status := argString(args, "status")
			if status == "" {
				a, ok, err := st.ReadApproval(team, argString(args, "task_id"))
				if err != nil {
					return nil, categoryError(err)
				}
				if !ok {
					return jsonResult(core.Approval{TaskID: argString(args, "task_id"), Required: false})
				}
				return jsonResult(a)
			}
			now := time.Now().UTC()
			a := &core.Approval{
				TaskID:         argString(args, "task_id"),
				Required:       true,
				Status:         core.ApprovalStatus(status),
				Reviewer:       argString(args, "reviewer"),
				DecisionReason: argString(args, "decision_reason"),
				DecidedAt:      &now,
			}
			if err := st.WriteApproval(team, a); err != nil {
				return nil, categoryError(err)
			}
			return jsonResult(a)
		},
	)
}
