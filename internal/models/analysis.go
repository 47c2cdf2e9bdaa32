package models

import (
	"encoding/json"
	"time"
)

// AgentOutput is one agent's contribution to a full analysis.
type AgentOutput struct {
	Name    string   `json:"name"`
	Score   *float64 `json:"score,omitempty"`
	Summary string   `json:"summary,omitempty"`
}

// Analysis is the normalized result of GET /analyze/{symbol}.
type Analysis struct {
	Symbol         string          `json:"symbol"`
	Score          *float64        `json:"score,omitempty"`
	Recommendation string          `json:"recommendation,omitempty"`
	Risk           Risk            `json:"risk,omitempty"`
	Summary        string          `json:"summary,omitempty"`
	Agents         []AgentOutput   `json:"agents,omitempty"`
	Raw            json.RawMessage `json:"raw,omitempty"`
}

// MarketData is a quote snapshot for one ticker.
type MarketData struct {
	Ticker        string    `json:"ticker"`
	Name          string    `json:"name,omitempty"`
	Price         float64   `json:"price"`
	Change        float64   `json:"change"`
	ChangePercent float64   `json:"change_percent"`
	Currency      string    `json:"currency,omitempty"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// HistoryEntry is a saved analysis in the backend history.
type HistoryEntry struct {
	ID             string          `json:"id"`
	Symbol         string          `json:"symbol"`
	Score          *float64        `json:"score,omitempty"`
	Recommendation string          `json:"recommendation,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Payload        json.RawMessage `json:"payload,omitempty"`
}

// InvestorProfile is the backend-held preference profile ("investor DNA").
type InvestorProfile struct {
	RiskTolerance     string   `json:"risk_tolerance"`
	InvestmentHorizon string   `json:"investment_horizon,omitempty"`
	Goals             []string `json:"goals,omitempty"`
	ExcludedSectors   []string `json:"excluded_sectors,omitempty"`
	EthicalExclusions []string `json:"ethical_exclusions,omitempty"`
}

// ChatMessage is one turn in a chat exchange.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatReply is the chatbot answer.
type ChatReply struct {
	Reply   string   `json:"reply"`
	Sources []string `json:"sources,omitempty"`
}

// Comparison is the AI narrative comparing two stocks.
type Comparison struct {
	TickerA   string `json:"ticker_a"`
	TickerB   string `json:"ticker_b"`
	Narrative string `json:"narrative"`
	Winner    string `json:"winner,omitempty"`
}
