package models

import "time"

// ScanStatus is the backend status of a batch scan.
type ScanStatus string

const (
	ScanStatusPending   ScanStatus = "pending"
	ScanStatusRunning   ScanStatus = "running"
	ScanStatusCompleted ScanStatus = "completed"
	ScanStatusFailed    ScanStatus = "failed"
)

// Terminal reports whether no further polling is meaningful.
func (s ScanStatus) Terminal() bool {
	return s == ScanStatusCompleted || s == ScanStatusFailed
}

// ScanResult is one ticker's outcome in a scan, normalized at the client
// boundary.
type ScanResult struct {
	Ticker         string     `json:"ticker"`
	Score          *float64   `json:"match_score,omitempty"`
	Recommendation string     `json:"recommendation,omitempty"`
	Risk           Risk       `json:"risk,omitempty"`
	AnalyzedAt     *time.Time `json:"analyzed_at,omitempty"`
}

// ScanState is a snapshot of one scan request as seen by a poll.
type ScanState struct {
	RequestID string       `json:"request_id"`
	Status    ScanStatus   `json:"status"`
	Progress  int          `json:"progress"`
	Results   []ScanResult `json:"results,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// ClampProgress bounds a progress value to 0..100.
func ClampProgress(p float64) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return int(p)
	}
}

// ScanRequest is the outstanding scan persisted between polls so a restarted
// process can resume it.
type ScanRequest struct {
	RequestID string    `json:"request_id"`
	Tickers   []string  `json:"tickers"`
	StartedAt time.Time `json:"started_at"`
}
