package handler

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	dErrors "custody/pkg/domain-errors"
	audit "custody/pkg/platform/audit"
)

const dateOnly = "2006-01-02"

// ParseLogsQuery builds a filter from the GET /audit-logs query string.
// Unset parameters leave the corresponding filter field empty.
func ParseLogsQuery(r *http.Request) (audit.Filter, error) {
	return ParseFilter(r.URL.Query())
}

// ParseFilter validates the filter parameters in q.
func ParseFilter(q url.Values) (audit.Filter, error) {
	filter := audit.Filter{
		EvidenceID: strings.TrimSpace(q.Get("evidenceId")),
		UserID:     strings.TrimSpace(q.Get("userId")),
		CaseID:     strings.TrimSpace(q.Get("caseId")),
	}

	if raw := strings.TrimSpace(q.Get("actionType")); raw != "" {
		action := audit.ActionType(strings.ToUpper(raw))
		if !action.IsValid() {
			return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "actionType is not a recognized action type")
		}
		filter.ActionType = action
	}
	if raw := strings.TrimSpace(q.Get("status")); raw != "" {
		status := audit.Status(strings.ToUpper(raw))
		if !status.IsValid() {
			return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "status is not a recognized status")
		}
		filter.Status = status
	}

	var err error
	if filter.StartDate, err = parseDate(q, "startDate", false); err != nil {
		return audit.Filter{}, err
	}
	if filter.EndDate, err = parseDate(q, "endDate", true); err != nil {
		return audit.Filter{}, err
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return audit.Filter{}, dErrors.New(dErrors.CodeValidation, "endDate must not be before startDate")
	}

	if filter.Limit, err = parseCount(q, "limit", true); err != nil {
		return audit.Filter{}, err
	}
	if filter.Offset, err = parseCount(q, "offset", false); err != nil {
		return audit.Filter{}, err
	}
	return filter.Normalized(), nil
}

// ParseActivityLimit reads the optional limit of GET /audit-logs/user/{userId}.
// Zero means "use the default".
func ParseActivityLimit(r *http.Request) (int, error) {
	limit, err := parseCount(r.URL.Query(), "limit", true)
	if err != nil {
		return 0, err
	}
	return min(limit, audit.MaxLimit), nil
}

// parseDate accepts RFC 3339 timestamps and bare dates. A bare end date covers
// the whole day.
func parseDate(q url.Values, name string, endOfDay bool) (*time.Time, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		return nil, dErrors.New(dErrors.CodeValidation, name+" must be an RFC 3339 timestamp or YYYY-MM-DD date")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func parseCount(q url.Values, name string, positive bool) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 || (positive && n == 0) {
		if positive {
			return 0, dErrors.New(dErrors.CodeValidation, name+" must be a positive integer")
		}
		return 0, dErrors.New(dErrors.CodeValidation, name+" must be a non-negative integer")
	}
	return n, nil
}
