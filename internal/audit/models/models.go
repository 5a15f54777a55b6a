package models

import (
	"time"

	audit "custody/pkg/platform/audit"
)

// Summary windows accepted by the aggregator.
const (
	Window1h  = "1h"
	Window24h = "24h"
	Window7d  = "7d"
	Window30d = "30d"

	DefaultWindow = Window24h
)

// WindowDurations maps each accepted window token to its look-back duration.
var WindowDurations = map[string]time.Duration{
	Window1h:  time.Hour,
	Window24h: 24 * time.Hour,
	Window7d:  7 * 24 * time.Hour,
	Window30d: 30 * 24 * time.Hour,
}

const (
	// EvidenceTrailLimit approximates "complete" history for one evidence item.
	EvidenceTrailLimit = 500
	// DefaultActivityLimit is used when UserActivity is called without a limit.
	DefaultActivityLimit = 50
)

// QueryResult is one page of events plus the number of events matching the
// filter across all pages.
type QueryResult struct {
	Events     []audit.Event
	TotalCount int
}

// Summary holds event counts over a recent window. Every action type and every
// status is present, zero when nothing matched.
type Summary struct {
	TimeRange    string                   `json:"timeRange"`
	TotalActions int                      `json:"totalActions"`
	ByActionType map[audit.ActionType]int `json:"byActionType"`
	ByStatus     map[audit.Status]int     `json:"byStatus"`
}

// NewSummary creates a zero-filled summary for window.
func NewSummary(window string) *Summary {
	s := &Summary{
		TimeRange:    window,
		ByActionType: make(map[audit.ActionType]int, len(audit.ActionTypes)),
		ByStatus:     make(map[audit.Status]int, len(audit.Statuses)),
	}
	for _, a := range audit.ActionTypes {
		s.ByActionType[a] = 0
	}
	for _, st := range audit.Statuses {
		s.ByStatus[st] = 0
	}
	return s
}

// Trail is the custody history of one evidence item, newest first.
type Trail struct {
	EvidenceID string
	Events     []audit.Event
}

// Activity is the recent history of one actor, newest first.
type Activity struct {
	UserID string
	Events []audit.Event
}
