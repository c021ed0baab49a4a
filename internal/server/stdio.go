package server

import (
	"context"
	"encoding/json"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/amanrag/internal/auth"
	"github.com/Aman-CERP/amanrag/internal/errors"
	"github.com/Aman-CERP/amanrag/internal/tools"
	"github.com/Aman-CERP/amanrag/pkg/version"
)

// Stdio bridges the dispatcher onto the MCP stdio transport for local
// agents. The process owner is the credential: every call runs as the
// synthetic admin principal, matching local single-user operation.
type Stdio struct {
	registry *tools.Registry
	mcp      *mcp.Server
}

// NewStdio builds the stdio transport, registering every tool the
// dispatcher knows under its published name and description.
func NewStdio(registry *tools.Registry) (*Stdio, error) {
	if registry == nil {
		return nil, errors.New(errors.KindInternal, "stdio transport requires a tool registry")
	}

	s := &Stdio{
		registry: registry,
		mcp: mcp.NewServer(&mcp.Implementation{
			Name:    "amanrag",
			Version: version.Version,
		}, nil),
	}

	for _, info := range registry.List(auth.DevAdmin()) {
		mcp.AddTool(s.mcp, &mcp.Tool{
			Name:        info.Name,
			Description: info.Description,
		}, s.handlerFor(info.Name))
	}
	return s, nil
}

// handlerFor adapts one dispatcher tool to the SDK handler shape. The
// envelope is returned as the structured output on success and failure
// alike, so stdio clients parse the same contract as HTTP clients.
func (s *Stdio) handlerFor(name string) func(context.Context, *mcp.CallToolRequest, map[string]any) (*mcp.CallToolResult, tools.Envelope, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, args map[string]any) (*mcp.CallToolResult, tools.Envelope, error) {
		raw, err := json.Marshal(args)
		if err != nil {
			return nil, tools.Envelope{}, err
		}
		ctx = auth.WithPrincipal(ctx, auth.DevAdmin())
		return nil, s.registry.Dispatch(ctx, name, raw), nil
	}
}

// Run serves stdio until the context is cancelled or stdin closes.
func (s *Stdio) Run(ctx context.Context) error {
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		return errors.Wrap(errors.KindInternal, "stdio transport", err)
	}
	return nil
}
