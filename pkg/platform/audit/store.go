package audit

import (
	"context"
	"time"
)

const (
	// DefaultLimit is the page size used when a filter leaves Limit unset.
	DefaultLimit = 100
	// MaxLimit caps any single page.
	MaxLimit = 1000
)

// Filter selects events. Every field is optional; set fields combine with AND.
// StartDate and EndDate are inclusive bounds on Timestamp.
type Filter struct {
	EvidenceID string
	UserID     string
	ActionType ActionType
	Status     Status
	CaseID     string
	StartDate  *time.Time
	EndDate    *time.Time
	Limit      int
	Offset     int
}

// Normalized returns a copy with pagination defaults applied.
func (f Filter) Normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches evaluates the filter against a single event. Stores that cannot push
// predicates down use it directly; the SQL store mirrors it in its WHERE clause.
func (f Filter) Matches(e Event) bool {
	if f.EvidenceID != "" && Deref(e.EvidenceID) != f.EvidenceID {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.ActionType != "" && e.ActionType != f.ActionType {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.CaseID != "" && Deref(e.CaseID) != f.CaseID {
		return false
	}
	if f.StartDate != nil && e.Timestamp.Before(*f.StartDate) {
		return false
	}
	if f.EndDate != nil && e.Timestamp.After(*f.EndDate) {
		return false
	}
	return true
}

// Tally holds raw counts grouped by action type and by status.
type Tally struct {
	Total        int
	ByActionType map[ActionType]int
	ByStatus     map[Status]int
}

// Store is the append-only persistence boundary for audit events. There is
// deliberately no update or delete operation.
type Store interface {
	// Append assigns an ID to event and persists it.
	Append(ctx context.Context, event *Event) error
	// List returns one page of matching events ordered by timestamp descending,
	// plus the count of all matching events.
	List(ctx context.Context, filter Filter) ([]Event, int, error)
	// TallySince counts events with timestamp >= since.
	TallySince(ctx context.Context, since time.Time) (Tally, error)
}
