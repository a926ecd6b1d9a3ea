package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/omx/teamctl/internal/core"
)

func validateMode(mode string) error {
	if !core.ValidModes[mode] {
		return fmt.Errorf("unknown mode %q", mode)
	}
	return nil
}

func registerStateRead(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("state_read",
			mcp.WithDescription("Read a mode's state file (global or session-scoped)."),
			mcp.WithString("mode", mcp.Required(), mcp.Description("Mode name (one of the enumerated modes, e.g. 'autopilot')")),
			mcp.WithString("session_id", mcp.Description("Optional session id; omit for the global-scope state file")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			mode := argString(args, "mode")
			if err := validateMode(mode); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), "")
			state, ok, err := st.ReadModeState(mode, argString(args, "session_id"))
			if err != nil {
				return nil, categoryError(err)
			}
			if !ok {
				return mcp.NewToolResultText(`{"active":false}`), nil
			}
			data, err := json.Marshal(state)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(string(data)), nil
		},
	)
}

func registerStateWrite(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("state_write",
			mcp.WithDescription("Deep-merge a JSON patch over a mode's existing state. A 'runtime_context' key in the existing state is preserved unless the patch explicitly overwrites it."),
			mcp.WithString("patch", mcp.Required(), mcp.Description("JSON object to merge over the existing state")),
			mcp.WithString("mode", mcp.Required(), mcp.Description("Mode name (one of the enumerated modes, e.g. 'autopilot')")),
			mcp.WithString("session_id", mcp.Description("Optional session id; omit for the global-scope state file")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			mode := argString(args, "mode")
			if err := validateMode(mode); err != nil {
				return nil, err
			}
			var patch map[string]interface{}
			if err := json.Unmarshal([]byte(argString(args, "patch")), &patch); err != nil {
				return nil, fmt.Errorf("patch is not valid JSON: %w", err)
			}

			st := ts.store(argString(args, "working_directory"), "")
			sessionID := argString(args, "session_id")
			existing, ok, err := st.ReadModeState(mode, sessionID)
			if err != nil {
				return nil, categoryError(err)
			}
			var base map[string]interface{}
			if ok {
				data, _ := json.Marshal(existing)
				_ = json.Unmarshal(data, &base)
			}
			merged := core.DeepMergePatch(base, patch)

			var next core.ModeState
			data, err := json.Marshal(merged)
			if err != nil {
				return nil, err
			}
			if err := json.Unmarshal(data, &next); err != nil {
				return nil, err
			}
			if err := st.WriteModeState(mode, sessionID, &next); err != nil {
				return nil, categoryError(err)
			}
			out, _ := json.Marshal(next)
			return mcp.NewToolResultText(string(out)), nil
		},
	)
}

func registerStateClear(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("state_clear",
			mcp.WithDescription("Delete a mode's state file. Idempotent."),
			mcp.WithString("mode", mcp.Required(), mcp.Description("Mode name (one of the enumerated modes, e.g. 'autopilot')")),
			mcp.WithString("session_id", mcp.Description("Optional session id; omit for the global-scope state file")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			mode := argString(args, "mode")
			if err := validateMode(mode); err != nil {
				return nil, err
			}
			st := ts.store(argString(args, "working_directory"), "")
			if err := st.ClearModeState(mode, argString(args, "session_id")); err != nil {
				return nil, categoryError(err)
			}
			return mcp.NewToolResultText("cleared"), nil
		},
	)
}

func registerStateListActive(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("state_list_active",
			mcp.WithDescription("List every mode currently active, global or session-scoped."),
			mcp.WithString("session_id", mcp.Description("Optional session id; omit for the global scope")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			st := ts.store(argString(args, "working_directory"), "")
			active, err := st.ListActiveModes(argString(args, "session_id"))
			if err != nil {
				return nil, categoryError(err)
			}
			data, _ := json.Marshal(active)
			return mcp.NewToolResultText(string(data)), nil
		},
	)
}

// statusView is get_status's combined-state response shape.
type statusView struct {
	ActiveModes []string  `json:"active_modes"`
	Modes       map[string]any `json:"modes"`
	AsOf        time.Time `json:"as_of"`
}

func registerStateGetStatus(s *server.MCPServer, ts *Toolset) {
	s.AddTool(
		mcp.NewTool("state_get_status",
			mcp.WithDescription("Return every active mode's full state in one call."),
			mcp.WithString("session_id", mcp.Description("Optional session id; omit for the global scope")),
			mcp.WithString("working_directory", mcp.Description("Project directory to resolve; ancestors are searched if needed")),
		),
		func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			args := req.GetArguments()
			st := ts.store(argString(args, "working_directory"), "")
			sessionID := argString(args, "session_id")
			active, err := st.ListActiveModes(sessionID)
			if err != nil {
				return nil, categoryError(err)
			}
			view := statusView{ActiveModes: active, Modes: map[string]any{}, AsOf: time.Now().UTC()}
			for _, mode := range active {
				ms, ok, err := st.ReadModeState(mode, sessionID)
				if err != nil {
					return nil, categoryError(err)
				}
				if ok {
					view.Modes[mode] = ms
				}
			}
			data, err := json.Marshal(view)
			if err != nil {
				return nil, err
			}
			return mcp.NewToolResultText(string(data)), nil
		},
	)
}
