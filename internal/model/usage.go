// Package model defines the data structures shared across layers.
package model

import "time"

// TimestampLayout is the journal's timestamp format (UTC, whole seconds).
const TimestampLayout = "2006-01-02T15:04:05Z"

// UsageEntry is one line of the usage journal: a summary of one execution
// that passed admission. The JSON shape is the on-disk journal format.
type UsageEntry struct {
	ID         string    `json:"id,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	ClientIP   string    `json:"client_ip"`
	InputSize  int       `json:"input_size"`
	ElapsedSec float64   `json:"elapsed_sec"`
	MemoryUsed *string   `json:"memory_used"`
	Success    bool      `json:"success"`
	Warnings   []string  `json:"warnings"`
}

// UsageSummary aggregates a set of journal entries.
type UsageSummary struct {
	TotalRequests int     `json:"total_requests"`
	UniqueIPs     int     `json:"unique_ips"`
	AvgElapsedSec float64 `json:"avg_elapsed_sec"`
	Successes     int     `json:"successes"`
	Failures      int     `json:"failures"`
}

// UsageStats is the GET /stats document.
type UsageStats struct {
	AllTime UsageSummary `json:"all_time"`
	Last24h UsageSummary `json:"last_24h"`
}
