package handler

import (
	"custody/internal/audit/models"
	audit "custody/pkg/platform/audit"
)

// Pagination echoes the effective page window.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// LogsResponse is returned by GET /audit-logs. Count is the number of events
// matching the filter across all pages.
type LogsResponse struct {
	Success    bool          `json:"success"`
	Logs       []audit.Event `json:"logs"`
	Count      int           `json:"count"`
	Pagination Pagination    `json:"pagination"`
}

type SummaryResponse struct {
	Success bool            `json:"success"`
	Summary *models.Summary `json:"summary"`
}

type TrailResponse struct {
	Success    bool          `json:"success"`
	EvidenceID string        `json:"evidenceId"`
	Trail      []audit.Event `json:"trail"`
	Count      int           `json:"count"`
}

type ActivityResponse struct {
	Success  bool          `json:"success"`
	UserID   string        `json:"userId"`
	Activity []audit.Event `json:"activity"`
	Count    int           `json:"count"`
}

func toLogsResponse(result *models.QueryResult, filter audit.Filter) *LogsResponse {
	return &LogsResponse{
		Success:    true,
		Logs:       nonNil(result.Events),
		Count:      result.TotalCount,
		Pagination: Pagination{Limit: filter.Limit, Offset: filter.Offset},
	}
}

func toTrailResponse(trail *models.Trail) *TrailResponse {
	events := nonNil(trail.Events)
	return &TrailResponse{
		Success:    true,
		EvidenceID: trail.EvidenceID,
		Trail:      events,
		Count:      len(events),
	}
}

func toActivityResponse(activity *models.Activity) *ActivityResponse {
	events := nonNil(activity.Events)
	return &ActivityResponse{
		Success:  true,
		UserID:   activity.UserID,
		Activity: events,
		Count:    len(events),
	}
}

func nonNil(events []audit.Event) []audit.Event {
	if events == nil {
		return []audit.Event{}
	}
	return events
}
