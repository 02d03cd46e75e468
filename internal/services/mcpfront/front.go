// Package mcpfront exposes a thin MCP tool-server front door over the core
// dispatcher: it adapts MCP tool calls into local IPC CoreRequests rather
// than opening any network MCP surface of its own (stdio transport, single
// local process).
package mcpfront

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/kagan-sh/kagan-sub004/internal/ipc"
	mcpsdk "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// frontSessionID is the fixed IPC session every MCP tool call is dispatched
// under. It binds once, at origin "kagan" (one of the two client origins
// the session registry recognizes), with the pair_worker profile, which is
// the ceiling that origin carries — an MCP client is never granted
// operator- or maintainer-only operations through this front door.
const frontSessionID = "mcp:front"

// Front wires a single generic tool, kagan_call, onto an mcp-go server and
// forwards every invocation to dispatcher as a CoreRequest.
type Front struct {
	mcpServer  *server.MCPServer
	dispatcher *ipc.CoreDispatcher
}

// New builds a Front bound to dispatcher and registers its tool.
func New(dispatcher *ipc.CoreDispatcher) *Front {
	mcpServer := server.NewMCPServer(
		"Kagan MCP Front",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	f := &Front{mcpServer: mcpServer, dispatcher: dispatcher}
	f.setupTools()
	return f
}

func (f *Front) setupTools() {
	callTool := mcpsdk.NewTool("kagan_call",
		mcpsdk.WithDescription("Invoke one Kagan core capability.method call, e.g. tasks.get or plan.propose"),
		mcpsdk.WithString("capability", mcpsdk.Required(), mcpsdk.Description("Capability name, e.g. 'tasks'")),
		mcpsdk.WithString("method", mcpsdk.Required(), mcpsdk.Description("Method name, e.g. 'create'")),
		mcpsdk.WithString("params_json", mcpsdk.Description("JSON-encoded object of call parameters")),
	)
	f.mcpServer.AddTool(callTool, f.handleCall)
}

func (f *Front) handleCall(ctx context.Context, request mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	capability, err := request.RequireString("capability")
	if err != nil {
		return mcpsdk.NewToolResultError(fmt.Sprintf("missing 'capability' parameter: %v", err)), nil
	}
	method, err := request.RequireString("method")
	if err != nil {
		return mcpsdk.NewToolResultError(fmt.Sprintf("missing 'method' parameter: %v", err)), nil
	}

	params := map[string]interface{}{}
	if raw := request.GetString("params_json", ""); raw != "" {
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return mcpsdk.NewToolResultError(fmt.Sprintf("invalid params_json: %v", err)), nil
		}
	}

	resp, err := f.dispatcher.Dispatch(ctx, &ipc.Request{
		ID:         "mcp-" + uuid.NewString(),
		SessionID:  frontSessionID,
		Profile:    "pair_worker",
		Origin:     "kagan",
		Capability: capability,
		Method:     method,
		Params:     params,
	})
	if err != nil {
		return mcpsdk.NewToolResultError(err.Error()), nil
	}
	if !resp.OK {
		return mcpsdk.NewToolResultError(fmt.Sprintf("%s: %s", resp.Error.Code, resp.Error.Message)), nil
	}
	return mcpsdk.NewToolResultText(string(resp.Result)), nil
}

// ServeStdio blocks serving MCP tool calls over stdio.
func (f *Front) ServeStdio() error {
	return server.ServeStdio(f.mcpServer)
}
