// Package mcp exposes the portfolio, scan and research operations as MCP
// tools.
package mcp

import (
	"context"
	"net/http"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/market"
	"github.com/bobmcallan/elida-portal/internal/models"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
	"github.com/bobmcallan/elida-portal/internal/scan"
	mcpserver "github.com/mark3labs/mcp-go/server"
)

// Research is the part of the ELIDA client behind the one-shot tools.
type Research interface {
	Analyze(ctx context.Context, symbol string) (*models.Analysis, error)
	Compare(ctx context.Context, tickerA, tickerB string) (*models.Comparison, error)
	Chat(ctx context.Context, message string, history []models.ChatMessage) (*models.ChatReply, error)
	Health(ctx context.Context) error
	BaseURL() string
}

// Deps are the services the tools call.
type Deps struct {
	Portfolio *portfolio.Service
	Scans     *scan.Runner
	Market    *market.Service
	Research  Research
}

// NewServer creates an MCP server with every tool registered.
func NewServer(deps Deps, logger *common.Logger) *mcpserver.MCPServer {
	srv := mcpserver.NewMCPServer(
		"elida-portal",
		common.GetVersion(),
		mcpserver.WithToolCapabilities(true),
	)
	n := registerTools(srv, deps, logger.OrSilent())
	logger.OrSilent().Debug().Int("tools", n).Msg("MCP tools registered")
	return srv
}

// Handler is the HTTP handler for the MCP endpoint.
// It wraps mcp-go's StreamableHTTPServer and delegates to it.
type Handler struct {
	server     *mcpserver.MCPServer
	streamable *mcpserver.StreamableHTTPServer
	logger     *common.Logger
}

// NewHandler creates the /mcp handler.
func NewHandler(deps Deps, logger *common.Logger) *Handler {
	srv := NewServer(deps, logger)
	streamable := mcpserver.NewStreamableHTTPServer(srv,
		mcpserver.WithStateLess(true),
	)

	logger.OrSilent().Info().Msg("MCP handler initialized")

	return &Handler{
		server:     srv,
		streamable: streamable,
		logger:     logger.OrSilent(),
	}
}

// Server returns the underlying MCP server, for stdio transport.
func (h *Handler) Server() *mcpserver.MCPServer {
	return h.server
}

// ServeHTTP delegates to the mcp-go StreamableHTTPServer.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.streamable.ServeHTTP(w, r)
}

// ServeStdio serves the tools over stdin/stdout until the input closes.
func ServeStdio(srv *mcpserver.MCPServer) error {
	return mcpserver.ServeStdio(srv)
}
