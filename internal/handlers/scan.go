package handlers

import (
	"bytes"
	"io"
	"net/http"

	"github.com/bobmcallan/elida-portal/internal/common"
	"github.com/bobmcallan/elida-portal/internal/portfolio"
	"github.com/bobmcallan/elida-portal/internal/scan"
)

// ScanHandler starts, reports and cancels portfolio scans.
type ScanHandler struct {
	logger    *common.Logger
	runner    *scan.Runner
	portfolio *portfolio.Service
	sessions  authFailureHandler
}

// NewScanHandler creates a new scan handler. sessions may be nil.
func NewScanHandler(logger *common.Logger, runner *scan.Runner, svc *portfolio.Service, sessions authFailureHandler) *ScanHandler {
	return &ScanHandler{logger: logger.OrSilent(), runner: runner, portfolio: svc, sessions: sessions}
}

type startScanRequest struct {
	Tickers []string `json:"tickers"`
}

// HandleStart handles POST /api/scan. An empty body or ticker list scans
// every portfolio ticker.
func (h *ScanHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	var req startScanRequest
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	if len(bytes.TrimSpace(body)) > 0 && !decodeBytes(w, body, &req) {
		return
	}

	tickers := req.Tickers
	if len(tickers) == 0 {
		if tickers, err = h.portfolio.Tickers(r.Context()); err != nil {
			writeServiceError(w, r, h.logger, nil, "start scan", err)
			return
		}
	}

	if _, err := h.runner.Start(r.Context(), tickers); err != nil {
		writeServiceError(w, r, h.logger, h.sessions, "start scan", err)
		return
	}
	h.writeSnapshot(w, r, http.StatusAccepted)
}

// HandleStatus handles GET /api/scan.
func (h *ScanHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	h.writeSnapshot(w, r, http.StatusOK)
}

// HandleCancel handles DELETE /api/scan. Polling stops and the request stays
// stored for a later resume unless ?discard=true is given.
func (h *ScanHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if t := h.runner.Current(); t != nil {
		t.Cancel()
		<-t.Done()
	}
	if r.URL.Query().Get("discard") == "true" {
		if err := h.runner.Discard(r.Context()); err != nil {
			writeServiceError(w, r, h.logger, nil, "discard scan", err)
			return
		}
	}
	h.writeSnapshot(w, r, http.StatusOK)
}

// HandleResume handles POST /api/scan/resume.
func (h *ScanHandler) HandleResume(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	task, _, err := h.runner.Resume(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "resume scan", err)
		return
	}
	if task == nil {
		WriteError(w, http.StatusNotFound, "no scan to resume")
		return
	}
	h.writeSnapshot(w, r, http.StatusAccepted)
}

func (h *ScanHandler) writeSnapshot(w http.ResponseWriter, r *http.Request, status int) {
	snap, err := h.runner.Snapshot(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, nil, "scan status", err)
		return
	}
	WriteJSON(w, status, snap)
}
