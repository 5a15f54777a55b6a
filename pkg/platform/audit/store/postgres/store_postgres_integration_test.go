//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	audit "custody/pkg/platform/audit"
	"custody/pkg/platform/audit/store/postgres"
	"custody/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = postgres.New(s.postgres.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_logs")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) appendEvent(ts time.Time, action audit.ActionType, evidenceID, userID string) *audit.Event {
	e := &audit.Event{
		Timestamp:  ts,
		ActionType: action,
		EvidenceID: audit.StringPtr(evidenceID),
		UserID:     userID,
		UserRole:   "investigator",
		Status:     audit.StatusSuccess,
		Details:    map[string]any{"path": "/evidence/" + evidenceID},
		IPAddress:  "203.0.113.9",
	}
	s.Require().NoError(s.store.Append(context.Background(), e))
	return e
}

func (s *PostgresStoreSuite) TestAppendAndListRoundTrip() {
	ts := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)
	e := s.appendEvent(ts, audit.ActionVerify, "EV-1", "0xabc")
	s.NotEmpty(e.ID)

	events, total, err := s.store.List(context.Background(), audit.Filter{EvidenceID: "EV-1"})
	s.Require().NoError(err)
	s.Equal(1, total)
	s.Require().Len(events, 1)
	got := events[0]
	s.Equal(e.ID, got.ID)
	s.True(ts.Equal(got.Timestamp))
	s.Equal(audit.ActionVerify, got.ActionType)
	s.Equal("EV-1", audit.Deref(got.EvidenceID))
	s.Nil(got.CaseID)
	s.Equal("/evidence/EV-1", got.Details["path"])
	s.Equal("203.0.113.9", got.IPAddress)
}

func (s *PostgresStoreSuite) TestOrderingFiltersAndCount() {
	base := time.Date(2025, 5, 5, 12, 0, 0, 0, time.UTC)
	first := s.appendEvent(base, audit.ActionCreate, "EV-1", "0xabc")
	second := s.appendEvent(base, audit.ActionAccess, "EV-1", "0xabc")
	s.appendEvent(base.Add(time.Hour), audit.ActionDownload, "EV-2", "0xdef")
	newest := s.appendEvent(base.Add(2*time.Hour), audit.ActionAccess, "EV-1", "0xabc")

	events, total, err := s.store.List(context.Background(), audit.Filter{UserID: "0xabc", Limit: 2})
	s.Require().NoError(err)
	s.Equal(3, total, "count ignores pagination")
	s.Require().Len(events, 2)
	s.Equal(newest.ID, events[0].ID)
	s.Equal(second.ID, events[1].ID, "equal timestamps resolve to later insertion first")

	events, _, err = s.store.List(context.Background(), audit.Filter{UserID: "0xabc", Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Require().Len(events, 1)
	s.Equal(first.ID, events[0].ID)

	end := base
	events, total, err = s.store.List(context.Background(), audit.Filter{StartDate: &base, EndDate: &end})
	s.Require().NoError(err)
	s.Equal(2, total, "date bounds are inclusive")
	s.Len(events, 2)

	events, total, err = s.store.List(context.Background(), audit.Filter{ActionType: audit.ActionAccess, EvidenceID: "EV-1"})
	s.Require().NoError(err)
	s.Equal(2, total)
	s.Len(events, 2)

	events, total, err = s.store.List(context.Background(), audit.Filter{CaseID: "CASE-404"})
	s.Require().NoError(err)
	s.Equal(0, total)
	s.NotNil(events)
	s.Empty(events)
}

func (s *PostgresStoreSuite) TestTallySince() {
	now := time.Now().UTC()
	s.appendEvent(now.Add(-48*time.Hour), audit.ActionCreate, "EV-1", "0xabc")
	s.appendEvent(now.Add(-time.Hour), audit.ActionDownload, "EV-1", "0xabc")
	s.appendEvent(now, audit.ActionDownload, "EV-2", "0xabc")

	tally, err := s.store.TallySince(context.Background(), now.Add(-24*time.Hour))
	s.Require().NoError(err)
	s.Equal(2, tally.Total)
	s.Equal(2, tally.ByActionType[audit.ActionDownload])
	s.Equal(2, tally.ByStatus[audit.StatusSuccess])
}

func (s *PostgresStoreSuite) TestRowsAreImmutable() {
	e := s.appendEvent(time.Now(), audit.ActionTransfer, "EV-9", "0xabc")

	_, err := s.postgres.DB.ExecContext(context.Background(),
		"UPDATE audit_logs SET status = 'FAILURE' WHERE id = $1", e.ID)
	s.Require().Error(err)
	s.Contains(err.Error(), "append-only")

	_, err = s.postgres.DB.ExecContext(context.Background(),
		"DELETE FROM audit_logs WHERE id = $1", e.ID)
	s.Require().Error(err)

	_, total, err := s.store.List(context.Background(), audit.Filter{EvidenceID: "EV-9"})
	s.Require().NoError(err)
	s.Equal(1, total)
}

func (s *PostgresStoreSuite) TestSchemaRejectsOutOfSetValues() {
	e := &audit.Event{
		Timestamp:  time.Now(),
		ActionType: "SHRED",
		UserID:     "0xabc",
		UserRole:   "unknown",
		Status:     audit.StatusSuccess,
	}
	s.Error(s.store.Append(context.Background(), e))
}

func (s *PostgresStoreSuite) TestConcurrentAppends() {
	const goroutines = 30
	var wg sync.WaitGroup
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e := &audit.Event{
				Timestamp:  time.Now(),
				ActionType: audit.ActionAccess,
				UserID:     "0xload",
				UserRole:   "auditor",
				Status:     audit.StatusSuccess,
			}
			s.NoError(s.store.Append(context.Background(), e))
		}()
	}
	wg.Wait()

	_, total, err := s.store.List(context.Background(), audit.Filter{UserID: "0xload"})
	s.Require().NoError(err)
	s.Equal(goroutines, total)
}

func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	s.NoError(s.store.Migrate(context.Background()))
}
