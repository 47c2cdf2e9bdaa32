package client

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/bobmcallan/elida-portal/internal/models"
)

// The backend has answered with several casings for the same fields over
// time. Each list is the set of accepted locations, canonical first.
var (
	statusPaths         = []string{"$.status", "$.state"}
	progressPaths       = []string{"$.progress", "$.percent", "$.progress_pct"}
	resultsPaths        = []string{"$.results", "$.agents", "$.data.results"}
	tickerPaths         = []string{"$.ticker", "$.symbol", "$.asset_id"}
	scorePaths          = []string{"$.match_score", "$.score", "$.output.score", "$.output.match_score", "$.final_score"}
	recommendationPaths = []string{"$.recommendation", "$.output.recommendation", "$.final_recommendation", "$.verdict"}
	riskPaths           = []string{"$.risk", "$.risk_level", "$.output.risk", "$.output.risk_level"}
	summaryPaths        = []string{"$.summary", "$.output.summary", "$.analysis", "$.reasoning"}
	timestampPaths      = []string{"$.analyzed_at", "$.completed_at", "$.timestamp"}
	requestIDPaths      = []string{"$.request_id", "$.requestId", "$.id"}
	errorPaths          = []string{"$.error", "$.message"}
	pricePaths          = []string{"$.price", "$.current_price", "$.regularMarketPrice", "$.data.price"}
	changePaths         = []string{"$.change", "$.regularMarketChange", "$.data.change"}
	changePctPaths      = []string{"$.change_percent", "$.changePercent", "$.regularMarketChangePercent", "$.data.change_percent"}
	namePaths           = []string{"$.name", "$.company_name", "$.shortName", "$.longName"}
	currencyPaths       = []string{"$.currency", "$.data.currency"}
)

// lookup returns the first non-null value found at any of paths.
func lookup(obj any, paths []string) (any, bool) {
	for _, p := range paths {
		v, err := jsonpath.Get(p, obj)
		if err != nil || v == nil {
			continue
		}
		return v, true
	}
	return nil, false
}

func lookupString(obj any, paths []string) string {
	v, ok := lookup(obj, paths)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return ""
	}
}

func lookupFloat(obj any, paths []string) (float64, bool) {
	v, ok := lookup(obj, paths)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(n), "%"), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

func lookupFloatPtr(obj any, paths []string) *float64 {
	if f, ok := lookupFloat(obj, paths); ok {
		return &f
	}
	return nil
}

func lookupTime(obj any, paths []string) *time.Time {
	s := lookupString(obj, paths)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// normalizeScanStatus maps the backend's status vocabulary onto ScanStatus.
func normalizeScanStatus(s string) models.ScanStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "complete", "done", "success", "succeeded", "finished":
		return models.ScanStatusCompleted
	case "failed", "failure", "error", "errored", "cancelled", "canceled":
		return models.ScanStatusFailed
	case "running", "processing", "in_progress", "analyzing", "started":
		return models.ScanStatusRunning
	default:
		return models.ScanStatusPending
	}
}

// normalizeRisk title-cases known risk levels.
func normalizeRisk(s string) models.Risk {
	switch strings.ToLower(s) {
	case "":
		return ""
	case "low":
		return models.RiskLow
	case "medium", "moderate":
		return models.RiskMedium
	case "high":
		return models.RiskHigh
	default:
		return models.Risk(s)
	}
}

// resultItems returns result objects from a list, or from a map keyed by
// ticker (in key order) with the key injected as "ticker".
func resultItems(v any) []any {
	switch items := v.(type) {
	case []any:
		return items
	case map[string]any:
		keys := make([]string, 0, len(items))
		for k := range items {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, 0, len(keys))
		for _, k := range keys {
			obj, ok := items[k].(map[string]any)
			if !ok {
				continue
			}
			if _, has := obj["ticker"]; !has {
				withKey := make(map[string]any, len(obj)+1)
				for kk, vv := range obj {
					withKey[kk] = vv
				}
				withKey["ticker"] = k
				obj = withKey
			}
			out = append(out, obj)
		}
		return out
	}
	return nil
}

// NormalizeScanResult converts one loosely shaped result object.
func NormalizeScanResult(obj any) (models.ScanResult, bool) {
	ticker := models.NormalizeTicker(lookupString(obj, tickerPaths))
	if ticker == "" {
		return models.ScanResult{}, false
	}
	return models.ScanResult{
		Ticker:         ticker,
		Score:          lookupFloatPtr(obj, scorePaths),
		Recommendation: lookupString(obj, recommendationPaths),
		Risk:           normalizeRisk(lookupString(obj, riskPaths)),
		AnalyzedAt:     lookupTime(obj, timestampPaths),
	}, true
}

// NormalizeScanState converts a status payload into a ScanState.
func NormalizeScanState(requestID string, obj any) models.ScanState {
	state := models.ScanState{
		RequestID: requestID,
		Status:    normalizeScanStatus(lookupString(obj, statusPaths)),
		Error:     lookupString(obj, errorPaths),
	}
	if p, ok := lookupFloat(obj, progressPaths); ok {
		state.Progress = models.ClampProgress(p)
	}
	if state.Status == models.ScanStatusCompleted {
		state.Progress = 100
	}
	if v, ok := lookup(obj, resultsPaths); ok {
		for _, item := range resultItems(v) {
			if r, ok := NormalizeScanResult(item); ok {
				state.Results = append(state.Results, r)
			}
		}
	}
	return state
}

// NormalizeAnalysis converts an /analyze payload.
func NormalizeAnalysis(symbol string, obj any, raw []byte) models.Analysis {
	a := models.Analysis{
		Symbol:         models.NormalizeTicker(symbol),
		Score:          lookupFloatPtr(obj, scorePaths),
		Recommendation: lookupString(obj, recommendationPaths),
		Risk:           normalizeRisk(lookupString(obj, riskPaths)),
		Summary:        lookupString(obj, summaryPaths),
		Raw:            json.RawMessage(raw),
	}
	if s := models.NormalizeTicker(lookupString(obj, tickerPaths)); s != "" {
		a.Symbol = s
	}
	if v, ok := lookup(obj, []string{"$.agents", "$.results", "$.agent_outputs"}); ok {
		switch agents := v.(type) {
		case []any:
			for i, item := range agents {
				name := lookupString(item, []string{"$.name", "$.agent"})
				if name == "" {
					name = fmt.Sprintf("agent-%d", i+1)
				}
				a.Agents = append(a.Agents, agentOutput(name, item))
			}
		case map[string]any:
			names := make([]string, 0, len(agents))
			for name := range agents {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				a.Agents = append(a.Agents, agentOutput(name, agents[name]))
			}
		}
	}
	return a
}

func agentOutput(name string, obj any) models.AgentOutput {
	return models.AgentOutput{
		Name:    name,
		Score:   lookupFloatPtr(obj, scorePaths),
		Summary: lookupString(obj, summaryPaths),
	}
}

// NormalizeMarketData converts a /market-data payload.
func NormalizeMarketData(ticker string, obj any, now time.Time) models.MarketData {
	md := models.MarketData{
		Ticker:    models.NormalizeTicker(ticker),
		Name:      lookupString(obj, namePaths),
		Currency:  lookupString(obj, currencyPaths),
		FetchedAt: now,
	}
	md.Price, _ = lookupFloat(obj, pricePaths)
	md.Change, _ = lookupFloat(obj, changePaths)
	md.ChangePercent, _ = lookupFloat(obj, changePctPaths)
	return md
}
