package mcp

import (
	"errors"
	"fmt"

	"github.com/bobmcallan/elida-portal/internal/client"
	"github.com/bobmcallan/elida-portal/internal/interfaces"
	"github.com/bobmcallan/elida-portal/internal/scan"
	"github.com/mark3labs/mcp-go/mcp"
)

// errorResult creates an MCP error result.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}

// textResult creates a successful text result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

// failure turns a service error into a tool error the model can act on.
func failure(op string, err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return errorResult(fmt.Sprintf("%s: not found", op))
	case errors.Is(err, scan.ErrScanInFlight):
		return errorResult(fmt.Sprintf("%s: a scan is already running, check scan_status", op))
	case errors.Is(err, client.ErrUnauthenticated):
		return errorResult(fmt.Sprintf("%s: not signed in, run `elida login` first", op))
	}
	return errorResult(fmt.Sprintf("%s error: %v", op, err))
}
