package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// versionInfo holds version fields for the portal.
type versionInfo struct {
	Version string `json:"version"`
	Build   string `json:"build"`
	Commit  string `json:"commit"`
}

// backendInfo reports whether the ELIDA backend answered its health check.
type backendInfo struct {
	URL    string `json:"url"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// VersionTool returns the mcp.Tool definition for get_version.
func VersionTool() mcp.Tool {
	return mcp.NewTool("get_version",
		mcp.WithDescription("Get ELIDA portal version and backend status. Use this to verify connectivity."),
	)
}

// VersionToolHandler returns a handler that combines portal version info
// with a backend health probe.
func VersionToolHandler(backend Research) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		result := map[string]interface{}{
			"elida_portal": versionInfo{
				Version: common.GetVersion(),
				Build:   common.GetBuild(),
				Commit:  common.GetGitCommit(),
			},
		}

		if backend != nil {
			hctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			defer cancel()
			info := backendInfo{URL: backend.BaseURL(), Status: "ok"}
			if err := backend.Health(hctx); err != nil {
				info.Status = "down"
				info.Error = err.Error()
			}
			result["elida_backend"] = info
		}

		out, err := json.Marshal(result)
		if err != nil {
			return errorResult("failed to marshal version info"), nil
		}
		return textResult(string(out)), nil
	}
}
