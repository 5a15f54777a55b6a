package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custody/internal/audit/handler"
	audit "custody/pkg/platform/audit"
	"custody/pkg/platform/audit/store/memory"
)

type fakeOpener struct {
	store    *memory.InMemoryStore
	settings Settings
	opened   int
	released int
	err      error
}

func (f *fakeOpener) open(_ context.Context, s Settings) (audit.Store, func() error, error) {
	f.settings = s
	if f.err != nil {
		return nil, nil, f.err
	}
	f.opened++
	return f.store, func() error { f.released++; return nil }, nil
}

func seededOpener(t *testing.T) *fakeOpener {
	t.Helper()
	store := memory.NewInMemoryStore()
	now := time.Now().UTC()
	seed := []struct {
		age      time.Duration
		action   audit.ActionType
		status   audit.Status
		evidence string
		user     string
	}{
		{time.Minute, audit.ActionVerify, audit.StatusFailure, "EV-1", "0xabc"},
		{2 * time.Minute, audit.ActionAccess, audit.StatusSuccess, "EV-1", "0xdef"},
		{48 * time.Hour, audit.ActionCreate, audit.StatusSuccess, "EV-1", "0xabc"},
		{72 * time.Hour, audit.ActionCreate, audit.StatusSuccess, "EV-2", "0xabc"},
	}
	for _, s := range seed {
		require.NoError(t, store.Append(context.Background(), &audit.Event{
			Timestamp:  now.Add(-s.age),
			ActionType: s.action,
			EvidenceID: audit.StringPtr(s.evidence),
			UserID:     s.user,
			UserRole:   "investigator",
			Status:     s.status,
			Details:    map[string]any{},
		}))
	}
	return &fakeOpener{store: store}
}

func execute(t *testing.T, opener *fakeOpener, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd(opener.open)
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestLogsCommand(t *testing.T) {
	opener := seededOpener(t)

	out, err := execute(t, opener, "logs", "--evidence", "EV-1", "--limit", "2")
	require.NoError(t, err)

	var resp handler.LogsResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 3, resp.Count)
	assert.Len(t, resp.Logs, 2)
	assert.Equal(t, handler.Pagination{Limit: 2, Offset: 0}, resp.Pagination)
	assert.Equal(t, audit.ActionVerify, resp.Logs[0].ActionType)
	assert.Equal(t, 1, opener.released)
}

func TestLogsCommandValidatesBeforeOpeningStore(t *testing.T) {
	opener := seededOpener(t)

	_, err := execute(t, opener, "logs", "--action", "SHRED")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "actionType")
	assert.Zero(t, opener.opened)

	_, err = execute(t, opener, "logs", "--start", "2025-02-01", "--end", "2025-01-01")
	require.Error(t, err)
	assert.Zero(t, opener.opened)
}

func TestSummaryCommand(t *testing.T) {
	opener := seededOpener(t)

	out, err := execute(t, opener, "summary", "7d")
	require.NoError(t, err)
	var resp handler.SummaryResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "7d", resp.Summary.TimeRange)
	assert.Equal(t, 4, resp.Summary.TotalActions)
	assert.Equal(t, 1, resp.Summary.ByStatus[audit.StatusFailure])

	out, err = execute(t, opener, "summary", "--window", "1h")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "1h", resp.Summary.TimeRange)
	assert.Equal(t, 2, resp.Summary.TotalActions)
	assert.Equal(t, 0, resp.Summary.ByActionType[audit.ActionDownload])
}

func TestTrailCommand(t *testing.T) {
	opener := seededOpener(t)

	out, err := execute(t, opener, "trail", "EV-2")
	require.NoError(t, err)
	var resp handler.TrailResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "EV-2", resp.EvidenceID)
	assert.Equal(t, 1, resp.Count)

	_, err = execute(t, opener, "trail")
	require.Error(t, err)

	_, err = execute(t, opener, "trail", " ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Evidence ID is required")
}

func TestActivityCommand(t *testing.T) {
	opener := seededOpener(t)

	out, err := execute(t, opener, "activity", "0xabc", "--limit", "2")
	require.NoError(t, err)
	var resp handler.ActivityResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "0xabc", resp.UserID)
	assert.Equal(t, 2, resp.Count)
	for _, e := range resp.Activity {
		assert.Equal(t, "0xabc", e.UserID)
	}

	_, err = execute(t, opener, "activity", "0xabc", "--limit", "-1")
	require.Error(t, err)
}

func TestMigrateRequiresMigratableStore(t *testing.T) {
	opener := seededOpener(t)

	_, err := execute(t, opener, "migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not support migrations")
	assert.Equal(t, 1, opener.released)
}

func TestStoreOpenFailure(t *testing.T) {
	opener := &fakeOpener{err: errors.New("connection refused")}

	_, err := execute(t, opener, "summary")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestSettingsPrecedence(t *testing.T) {
	t.Run("environment fills unset flags", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/custody")
		t.Setenv("LOG_LEVEL", "debug")
		opener := seededOpener(t)

		_, err := execute(t, opener, "summary")
		require.NoError(t, err)
		assert.Equal(t, "postgres://env/custody", opener.settings.DatabaseURL)
		assert.Equal(t, "debug", opener.settings.LogLevel)
		assert.Equal(t, 30*time.Second, opener.settings.Timeout)
	})

	t.Run("flags win over environment", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://env/custody")
		opener := seededOpener(t)

		_, err := execute(t, opener, "summary", "--database-url", "postgres://flag/custody", "--timeout", "5s")
		require.NoError(t, err)
		assert.Equal(t, "postgres://flag/custody", opener.settings.DatabaseURL)
		assert.Equal(t, 5*time.Second, opener.settings.Timeout)
	})

	t.Run("config file supplies values", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		path := filepath.Join(t.TempDir(), "auditctl.yaml")
		require.NoError(t, os.WriteFile(path, []byte("database_url: postgres://file/custody\npretty: true\n"), 0o600))
		opener := seededOpener(t)

		out, err := execute(t, opener, "summary", "--config", path)
		require.NoError(t, err)
		assert.Equal(t, "postgres://file/custody", opener.settings.DatabaseURL)
		assert.True(t, opener.settings.Pretty)
		assert.Contains(t, out, "\n  \"summary\"")
	})
}

func TestOpenPostgresRequiresURL(t *testing.T) {
	_, _, err := OpenPostgres(context.Background(), Settings{})
	require.ErrorIs(t, err, errNoDatabase)
}
