package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/bobmcallan/elida-portal/internal/models"
)

// StartScan starts an asynchronous batch scan and returns its request id.
// POST /api/portfolio/scan {tickers} -> {request_id}
func (c *Client) StartScan(ctx context.Context, tickers []string) (string, error) {
	tickers = models.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		return "", &Error{Kind: KindValidation, Op: "start scan", Message: "at least one ticker is required"}
	}

	obj, _, err := c.doGeneric(ctx, request{
		op:     "start scan",
		method: http.MethodPost,
		path:   "/api/portfolio/scan",
		body:   map[string]any{"tickers": tickers},
		auth:   authRequired,
	})
	if err != nil {
		return "", err
	}

	id := lookupString(obj, requestIDPaths)
	if id == "" {
		return "", &Error{Kind: KindValidation, Op: "start scan", Message: "response has no request id"}
	}
	return id, nil
}

// ScanStatus fetches the progress and, once terminal, the results of a scan.
// GET /api/portfolio/status/{requestId}
func (c *Client) ScanStatus(ctx context.Context, requestID string) (models.ScanState, error) {
	if requestID == "" {
		return models.ScanState{}, &Error{Kind: KindValidation, Op: "scan status", Message: "request id is required"}
	}

	obj, _, err := c.doGeneric(ctx, request{
		op:     "scan status",
		method: http.MethodGet,
		path:   "/api/portfolio/status/" + url.PathEscape(requestID),
		auth:   authRequired,
	})
	if err != nil {
		return models.ScanState{}, err
	}
	return NormalizeScanState(requestID, obj), nil
}
