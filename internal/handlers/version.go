package handlers

import (
	"net/http"
	"runtime"

	"github.com/bobmcallan/elida-portal/internal/common"
)

// VersionHandler reports the daemon build and which backend it talks to.
type VersionHandler struct {
	logger     *common.Logger
	backendURL string
}

// NewVersionHandler creates a new version handler.
func NewVersionHandler(logger *common.Logger, backendURL string) *VersionHandler {
	return &VersionHandler{logger: logger.OrSilent(), backendURL: backendURL}
}

// ServeHTTP handles GET /api/version.
func (h *VersionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	body := map[string]string{
		"version":    common.GetVersion(),
		"build":      common.GetBuild(),
		"git_commit": common.GetGitCommit(),
		"go":         runtime.Version(),
	}
	if h.backendURL != "" {
		body["backend"] = h.backendURL
	}
	WriteJSON(w, http.StatusOK, body)
}
