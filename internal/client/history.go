package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/bobmcallan/elida-portal/internal/models"
)

// ListHistory returns the user's saved analyses, newest first as sent.
// GET /api/v1/history
func (c *Client) ListHistory(ctx context.Context) ([]models.HistoryEntry, error) {
	obj, _, err := c.doGeneric(ctx, request{op: "list history", method: http.MethodGet, path: "/api/v1/history", auth: authRequired})
	if err != nil {
		return nil, err
	}

	items, ok := obj.([]any)
	if !ok {
		v, found := lookup(obj, []string{"$.history", "$.items", "$.data"})
		if !found {
			return []models.HistoryEntry{}, nil
		}
		if items, ok = v.([]any); !ok {
			return nil, malformed("list history", nil)
		}
	}

	entries := make([]models.HistoryEntry, 0, len(items))
	for _, item := range items {
		entries = append(entries, normalizeHistoryEntry(item))
	}
	return entries, nil
}

// GetHistory fetches one saved analysis.
// GET /api/v1/history/{id}
func (c *Client) GetHistory(ctx context.Context, id string) (*models.HistoryEntry, error) {
	if id == "" {
		return nil, &Error{Kind: KindValidation, Op: "get history", Message: "id is required"}
	}
	obj, _, err := c.doGeneric(ctx, request{op: "get history", method: http.MethodGet, path: "/api/v1/history/" + url.PathEscape(id), auth: authRequired})
	if err != nil {
		return nil, err
	}
	entry := normalizeHistoryEntry(obj)
	return &entry, nil
}

// SaveHistory stores an analysis in the user's history.
// POST /api/v1/history {symbol, score, recommendation, payload}
func (c *Client) SaveHistory(ctx context.Context, a *models.Analysis) (*models.HistoryEntry, error) {
	if a == nil || a.Symbol == "" {
		return nil, &Error{Kind: KindValidation, Op: "save history", Message: "analysis with a symbol is required"}
	}
	body := map[string]any{
		"symbol":         a.Symbol,
		"recommendation": a.Recommendation,
	}
	if a.Score != nil {
		body["score"] = *a.Score
	}
	if len(a.Raw) > 0 {
		body["payload"] = a.Raw
	}
	obj, _, err := c.doGeneric(ctx, request{op: "save history", method: http.MethodPost, path: "/api/v1/history", body: body, auth: authRequired})
	if err != nil {
		return nil, err
	}
	entry := normalizeHistoryEntry(obj)
	if entry.Symbol == "" {
		entry.Symbol = a.Symbol
	}
	return &entry, nil
}

// DeleteHistory removes a saved analysis.
// DELETE /api/v1/history/{id}
func (c *Client) DeleteHistory(ctx context.Context, id string) error {
	if id == "" {
		return &Error{Kind: KindValidation, Op: "delete history", Message: "id is required"}
	}
	_, err := c.do(ctx, request{op: "delete history", method: http.MethodDelete, path: "/api/v1/history/" + url.PathEscape(id), auth: authRequired})
	return err
}

// GetProfile fetches the investor profile.
// GET /api/v1/profile
func (c *Client) GetProfile(ctx context.Context) (*models.InvestorProfile, error) {
	var resp struct {
		models.InvestorProfile
		Profile *models.InvestorProfile `json:"profile"`
	}
	if err := c.doJSON(ctx, request{op: "get profile", method: http.MethodGet, path: "/api/v1/profile", auth: authRequired}, &resp); err != nil {
		return nil, err
	}
	if resp.Profile != nil {
		return resp.Profile, nil
	}
	return &resp.InvestorProfile, nil
}

// SaveProfile replaces the investor profile.
// POST /api/v1/profile
func (c *Client) SaveProfile(ctx context.Context, p *models.InvestorProfile) error {
	if p == nil {
		return &Error{Kind: KindValidation, Op: "save profile", Message: "profile is required"}
	}
	_, err := c.do(ctx, request{op: "save profile", method: http.MethodPost, path: "/api/v1/profile", body: p, auth: authRequired})
	return err
}

func normalizeHistoryEntry(obj any) models.HistoryEntry {
	e := models.HistoryEntry{
		ID:             lookupString(obj, []string{"$.id", "$._id", "$.history_id"}),
		Symbol:         models.NormalizeTicker(lookupString(obj, []string{"$.symbol", "$.ticker"})),
		Score:          lookupFloatPtr(obj, scorePaths),
		Recommendation: lookupString(obj, recommendationPaths),
	}
	if t := lookupTime(obj, []string{"$.created_at", "$.timestamp", "$.date"}); t != nil {
		e.CreatedAt = *t
	}
	if v, ok := lookup(obj, []string{"$.payload", "$.result"}); ok {
		if raw, err := json.Marshal(v); err == nil {
			e.Payload = raw
		}
	}
	return e
}
