package audit

import (
	"time"
)

// ActionType classifies what was done to an evidence record. The set is closed:
// events carrying any other value are rejected before they reach a store.
type ActionType string

const (
	ActionCreate         ActionType = "CREATE"
	ActionVerify         ActionType = "VERIFY"
	ActionAccess         ActionType = "ACCESS"
	ActionDownload       ActionType = "DOWNLOAD"
	ActionDelete         ActionType = "DELETE"
	ActionModify         ActionType = "MODIFY"
	ActionTransfer       ActionType = "TRANSFER"
	ActionChainOfCustody ActionType = "CHAIN_OF_CUSTODY"
)

// ActionTypes lists every action type in declaration order.
var ActionTypes = []ActionType{
	ActionCreate,
	ActionVerify,
	ActionAccess,
	ActionDownload,
	ActionDelete,
	ActionModify,
	ActionTransfer,
	ActionChainOfCustody,
}

// IsValid reports whether a belongs to the closed action set.
func (a ActionType) IsValid() bool {
	for _, known := range ActionTypes {
		if a == known {
			return true
		}
	}
	return false
}

// Status is the observed outcome of an action.
type Status string

const (
	StatusSuccess Status = "SUCCESS"
	StatusFailure Status = "FAILURE"
	StatusPending Status = "PENDING"
)

// Statuses lists every status in declaration order.
var Statuses = []Status{StatusSuccess, StatusFailure, StatusPending}

// IsValid reports whether s belongs to the closed status set.
func (s Status) IsValid() bool {
	return s == StatusSuccess || s == StatusFailure || s == StatusPending
}

// Role identifies the actor's function in the custody workflow. Roles are
// resolved by the auth layer; the writer stores whatever it is handed.
type Role string

const (
	RoleAdmin           Role = "admin"
	RoleInvestigator    Role = "investigator"
	RoleForensicAnalyst Role = "forensic_analyst"
	RoleLegal           Role = "legal"
	RoleCourt           Role = "court"
	RoleAuditor         Role = "auditor"
	RoleUnknown         Role = "unknown"
)

// Roles lists every known role.
var Roles = []Role{RoleAdmin, RoleInvestigator, RoleForensicAnalyst, RoleLegal, RoleCourt, RoleAuditor, RoleUnknown}

// IsValid reports whether r belongs to the known role set.
func (r Role) IsValid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// UnknownIP is recorded when no source address can be resolved.
const UnknownIP = "unknown"

// Event is one persisted audit record. It is immutable once a store has
// accepted it; JSON keys match the storage column names.
type Event struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	ActionType ActionType     `json:"action_type"`
	EvidenceID *string        `json:"evidence_id"`
	CaseID     *string        `json:"case_id"`
	UserID     string         `json:"user_id"`
	UserRole   string         `json:"user_role"`
	Status     Status         `json:"status"`
	Details    map[string]any `json:"details"`
	IPAddress  string         `json:"ip_address"`
}

// Candidate is an unvalidated event as handed to the writer by the
// interceptor or by domain code. Details may be any value; non-map values
// are wrapped during normalization.
type Candidate struct {
	ActionType ActionType
	EvidenceID *string
	CaseID     *string
	UserID     string
	UserRole   string
	Status     Status
	Details    any
	IPAddress  string
}

// StringPtr returns nil for an empty string, otherwise a pointer to s.
func StringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
