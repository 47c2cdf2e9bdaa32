package models

import "time"

// StoreTopic names the kind of state a store change touched.
type StoreTopic string

const (
	TopicSession   StoreTopic = "session"
	TopicPortfolio StoreTopic = "portfolio"
	TopicWatchlist StoreTopic = "watchlist"
	TopicScan      StoreTopic = "scan"
	TopicSettings  StoreTopic = "settings"
	TopicKV        StoreTopic = "kv"
)

// StoreEvent is published to subscribers after a write commits.
type StoreEvent struct {
	Topic StoreTopic `json:"topic"`
	Key   string     `json:"key,omitempty"`
	At    time.Time  `json:"at"`
}
