// Package mcpapi exposes the remote call operation as a Model Context
// Protocol tool so agents can drive the gateway directly.
package mcpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/alexisbeaulieu97/jumpgate/internal/domain/remotecall"
	"github.com/alexisbeaulieu97/jumpgate/internal/httpapi"
	"github.com/alexisbeaulieu97/jumpgate/internal/infrastructure/logging"
	"github.com/alexisbeaulieu97/jumpgate/internal/ports"
)

const (
	// ToolName is the name agents call the gateway by.
	ToolName = "remote_call"
	// EndpointPath is where the streamable HTTP transport is mounted.
	EndpointPath = "/mcp"
)

// Options configures a Server.
type Options struct {
	Executor  httpapi.Executor
	Validator *validator.Validate
	Logger    ports.Logger
	Version   string
}

// Server owns the MCP server and its single tool.
type Server struct {
	exec     httpapi.Executor
	validate *validator.Validate
	logger   ports.Logger
	mcp      *server.MCPServer
}

// New builds a Server with the remote_call tool registered.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNoOpLogger()
	}
	validate := opts.Validator
	if validate == nil {
		validate = validator.New()
	}
	version := opts.Version
	if version == "" {
		version = "dev"
	}

	s := &Server{
		exec:     opts.Executor,
		validate: validate,
		logger:   logger.With("component", "mcp"),
	}
	s.mcp = server.NewMCPServer("jumpgate", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.mcp.AddTool(remoteCallTool(), s.handleRemoteCall)
	return s
}

func remoteCallTool() mcp.Tool {
	return mcp.NewTool(ToolName,
		mcp.WithDescription("Run a command or a script file on a remote host through ansible-runner and return the response envelope as JSON."),
		mcp.WithString("os_type", mcp.Required(), mcp.Description("Target operating system: linux or windows")),
		mcp.WithString("ip", mcp.Required(), mcp.Description("Target host IP address")),
		mcp.WithString("username", mcp.Required(), mcp.Description("Remote login user")),
		mcp.WithString("password", mcp.Description("Remote password; key auth through the bastion when omitted")),
		mcp.WithNumber("port", mcp.Description("Remote port; defaults to 22 for linux and to WinRM 5985 or 5986 for windows")),
		mcp.WithString("command", mcp.Description("Command to run")),
		mcp.WithString("file_path", mcp.Description("Local script to transfer and run")),
		mcp.WithBoolean("use_bastion", mcp.Description("Route through the bastion; defaults to true")),
	)
}

func (s *Server) handleRemoteCall(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ctx = ports.WithCorrelationID(ctx, ports.GenerateCorrelationID())

	args := req.GetArguments()
	if args == nil {
		args = map[string]any{}
	}
	body, err := json.Marshal(args)
	if err != nil {
		return envelopeResult(remotecall.Failure(remotecall.NewValidationError("arguments", err.Error())))
	}

	in, derr := httpapi.DecodeRemoteCall(body, s.validate)
	if derr != nil {
		s.logger.Warn(ctx, "rejected tool call", "tool", ToolName, "error", derr)
		return envelopeResult(remotecall.Failure(derr))
	}

	env := s.exec.Execute(ctx, in)
	s.logger.Info(ctx, "tool call finished", "tool", ToolName, "status", env.Status)
	return envelopeResult(env)
}

// envelopeResult returns the envelope as text; error envelopes set IsError so
// clients surface them as tool failures.
func envelopeResult(env remotecall.Envelope) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	result := mcp.NewToolResultText(string(data))
	result.IsError = env.Error != nil
	return result, nil
}

// HandleMessage answers one JSON-RPC message without a transport.
func (s *Server) HandleMessage(ctx context.Context, raw json.RawMessage) mcp.JSONRPCMessage {
	return s.mcp.HandleMessage(ctx, raw)
}

// ServeStdio speaks the protocol over in and out until ctx ends or in closes.
func (s *Server) ServeStdio(ctx context.Context, in io.Reader, out io.Writer) error {
	return server.NewStdioServer(s.mcp).Listen(ctx, in, out)
}

// Handler serves the streamable HTTP transport at EndpointPath.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle(EndpointPath, server.NewStreamableHTTPServer(s.mcp))
	return mux
}
