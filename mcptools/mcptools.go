// Package mcptools serves the research tools over the Model Context Protocol,
// so other agents can validate links and run the validated search.
package mcptools

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"ppt_generator/tools"
)

const (
	serverName    = "ppt-generator-tools"
	serverVersion = "1.0.0"
	inputArg      = "input"
)

// NewServer registers every tool under its own name. Each takes one string
// argument, "input", the same text the agents pass.
func NewServer(tt ...tools.Tool) *server.MCPServer {
	s := server.NewMCPServer(serverName, serverVersion, server.WithToolCapabilities(false))
	for _, t := range tt {
		s.AddTool(mcp.NewTool(t.Name(),
			mcp.WithDescription(t.Description()),
			mcp.WithString(inputArg,
				mcp.Required(),
				mcp.Description(inputHelp(t.Name())),
			),
		), handler(t))
	}
	return s
}

func inputHelp(name string) string {
	switch name {
	case "link_validator":
		return "A URL, or several separated by whitespace"
	case "web_search":
		return "The search query"
	default:
		return "Tool input"
	}
}

// handler reports tool failures as error results, not protocol errors.
func handler(t tools.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		input, err := req.RequireString(inputArg)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		out, err := t.Execute(ctx, input)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		return mcp.NewToolResultText(out), nil
	}
}

// ServeStdio blocks serving s on stdin/stdout.
func ServeStdio(s *server.MCPServer) error {
	return server.ServeStdio(s)
}
