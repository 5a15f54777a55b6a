package audit

import (
	"errors"
	"strings"
)

// Rejection reasons returned by Validate. They are stable strings so the
// writer's diagnostics and tests can match on them.
var (
	ErrInvalidActionType = errors.New("invalid action type")
	ErrMissingUserID     = errors.New("missing user id")
	ErrInvalidStatus     = errors.New("invalid status")
)

// Validate checks a candidate against the schema and returns the normalized
// event that a store may persist. ID and Timestamp are left for the writer and
// store to assign. Checks run in a fixed order so the first failing rule wins.
//
// The role is defaulted but deliberately not checked against Roles.
func Validate(c Candidate) (Event, error) {
	if !c.ActionType.IsValid() {
		return Event{}, ErrInvalidActionType
	}
	userID := strings.TrimSpace(c.UserID)
	if userID == "" {
		return Event{}, ErrMissingUserID
	}
	if !c.Status.IsValid() {
		return Event{}, ErrInvalidStatus
	}

	role := strings.TrimSpace(c.UserRole)
	if role == "" {
		role = string(RoleUnknown)
	}
	ip := strings.TrimSpace(c.IPAddress)
	if ip == "" {
		ip = UnknownIP
	}

	return Event{
		ActionType: c.ActionType,
		EvidenceID: nonEmpty(c.EvidenceID),
		CaseID:     nonEmpty(c.CaseID),
		UserID:     userID,
		UserRole:   role,
		Status:     c.Status,
		Details:    normalizeDetails(c.Details),
		IPAddress:  ip,
	}, nil
}

// normalizeDetails coerces arbitrary details into a map. Nil becomes an empty
// map; scalars and slices are wrapped under "message".
func normalizeDetails(details any) map[string]any {
	switch d := details.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		if d == nil {
			return map[string]any{}
		}
		return d
	case map[string]string:
		out := make(map[string]any, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	default:
		return map[string]any{"message": d}
	}
}

func nonEmpty(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}
