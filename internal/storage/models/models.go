// Package models holds the persisted record types.
package models

import "time"

// CachedPayload is an upstream response body stored under a cache key.
type CachedPayload struct {
	Key       string
	Payload   []byte
	FetchedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the payload is stale at now.
func (p *CachedPayload) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// SimulationRecord is a persisted simulation run.
type SimulationRecord struct {
	ID           string
	User         string // Empty for custom runs without a player
	Mode         string
	Preference   string
	TargetRating float64
	FinalPhase   string
	FinalOverall float64
	Iterations   int
	DurationMs   int64
	InputJSON    []byte // Nullable
	OutputJSON   []byte
	CreatedAt    time.Time
	ExpiresAt    time.Time
}

// SimulationSummary is the list view of a run, without the payloads.
type SimulationSummary struct {
	ID           string    `json:"id"`
	User         string    `json:"user"`
	Mode         string    `json:"mode"`
	Preference   string    `json:"preference"`
	TargetRating float64   `json:"targetRating"`
	FinalPhase   string    `json:"finalPhase"`
	FinalOverall float64   `json:"finalOverall"`
	Iterations   int       `json:"iterations"`
	CreatedAt    time.Time `json:"createdAt"`
}
