package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	audit "custody/pkg/platform/audit"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/sync/errgroup"
)

//go:embed schema.sql
var schemaSQL string

const eventColumns = `id::text, timestamp, action_type, evidence_id, case_id,
		user_id, user_role, status, details, ip_address`

// Store implements audit.Store on the audit_logs table. Rows are only ever
// inserted; the table trigger rejects UPDATE and DELETE.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store over an already opened pool.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate creates the audit_logs table, its indexes and the immutability trigger.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply audit schema: %w", err)
	}
	return nil
}

// Append inserts one event. The store assigns the ID.
func (s *Store) Append(ctx context.Context, event *audit.Event) error {
	details := event.Details
	if details == nil {
		details = map[string]any{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}

	eventID := uuid.New()
	query := `
		INSERT INTO audit_logs (
			id, timestamp, action_type, evidence_id, case_id,
			user_id, user_role, status, details, ip_address
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = s.db.ExecContext(ctx, query,
		eventID,
		event.Timestamp.UTC(),
		string(event.ActionType),
		event.EvidenceID,
		event.CaseID,
		event.UserID,
		event.UserRole,
		string(event.Status),
		detailsJSON,
		event.IPAddress,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	event.ID = eventID.String()
	return nil
}

// List runs the page query and the count query concurrently; both share the
// same WHERE clause so the count always describes the paged result set.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Event, int, error) {
	filter = filter.Normalized()
	where, args := buildWhere(filter)

	var (
		events []audit.Event
		total  int
	)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		pageArgs := append(append([]any{}, args...), filter.Limit, filter.Offset)
		query := fmt.Sprintf(`
			SELECT %s
			FROM audit_logs
			%s
			ORDER BY timestamp DESC, seq DESC
			LIMIT $%d OFFSET $%d
		`, eventColumns, where, len(args)+1, len(args)+2)

		rows, err := s.db.QueryContext(gctx, query, pageArgs...)
		if err != nil {
			return fmt.Errorf("query audit events: %w", err)
		}
		defer rows.Close()

		events, err = scanEvents(rows)
		return err
	})

	g.Go(func() error {
		query := "SELECT COUNT(*) FROM audit_logs " + where
		if err := s.db.QueryRowContext(gctx, query, args...).Scan(&total); err != nil {
			return fmt.Errorf("count audit events: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	return events, total, nil
}

// TallySince groups events newer than since by action type and status.
func (s *Store) TallySince(ctx context.Context, since time.Time) (audit.Tally, error) {
	known := make([]string, 0, len(audit.ActionTypes))
	for _, a := range audit.ActionTypes {
		known = append(known, string(a))
	}

	query := `
		SELECT action_type, status, COUNT(*)
		FROM audit_logs
		WHERE timestamp >= $1 AND action_type = ANY($2::text[])
		GROUP BY action_type, status
	`
	rows, err := s.db.QueryContext(ctx, query, since.UTC(), pq.Array(known))
	if err != nil {
		return audit.Tally{}, fmt.Errorf("tally audit events: %w", err)
	}
	defer rows.Close()

	tally := audit.Tally{
		ByActionType: make(map[audit.ActionType]int),
		ByStatus:     make(map[audit.Status]int),
	}
	for rows.Next() {
		var (
			action, status string
			count          int
		)
		if err := rows.Scan(&action, &status, &count); err != nil {
			return audit.Tally{}, fmt.Errorf("scan audit tally: %w", err)
		}
		tally.Total += count
		tally.ByActionType[audit.ActionType(action)] += count
		tally.ByStatus[audit.Status(status)] += count
	}
	if err := rows.Err(); err != nil {
		return audit.Tally{}, fmt.Errorf("iterate audit tally: %w", err)
	}
	return tally, nil
}

// buildWhere composes the optional equality and range predicates of a filter
// into one WHERE clause with positional parameters.
func buildWhere(f audit.Filter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(expr string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(expr, len(args)))
	}

	if f.EvidenceID != "" {
		add("evidence_id = $%d", f.EvidenceID)
	}
	if f.UserID != "" {
		add("user_id = $%d", f.UserID)
	}
	if f.ActionType != "" {
		add("action_type = $%d", string(f.ActionType))
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.CaseID != "" {
		add("case_id = $%d", f.CaseID)
	}
	if f.StartDate != nil {
		add("timestamp >= $%d", f.StartDate.UTC())
	}
	if f.EndDate != nil {
		add("timestamp <= $%d", f.EndDate.UTC())
	}

	if len(clauses) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(clauses, " AND "), args
}

// scanEvents scans multiple rows into an audit.Event slice.
func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	events := []audit.Event{}

	for rows.Next() {
		var (
			event       audit.Event
			action      string
			status      string
			detailsJSON []byte
			ip          sql.NullString
		)

		err := rows.Scan(
			&event.ID,
			&event.Timestamp,
			&action,
			&event.EvidenceID,
			&event.CaseID,
			&event.UserID,
			&event.UserRole,
			&status,
			&detailsJSON,
			&ip,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Timestamp = event.Timestamp.UTC()
		event.ActionType = audit.ActionType(action)
		event.Status = audit.Status(status)
		event.IPAddress = ip.String
		event.Details = map[string]any{}
		if len(detailsJSON) > 0 {
			if err := json.Unmarshal(detailsJSON, &event.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
