package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "custody/pkg/platform/audit"
)

func TestParseLogsQuery(t *testing.T) {
	ts := func(s string) *time.Time {
		v, err := time.Parse(time.RFC3339Nano, s)
		require.NoError(t, err)
		return &v
	}

	cases := []struct {
		name  string
		query string
		want  audit.Filter
	}{
		{
			name:  "empty query",
			query: "",
			want:  audit.Filter{Limit: audit.DefaultLimit},
		},
		{
			name:  "lowercase enums are accepted",
			query: "actionType=chain_of_custody&status=pending",
			want:  audit.Filter{ActionType: audit.ActionChainOfCustody, Status: audit.StatusPending, Limit: audit.DefaultLimit},
		},
		{
			name:  "rfc3339 bounds are converted to UTC",
			query: "startDate=2025-03-01T10:00:00%2B02:00&endDate=2025-03-02T00:00:00Z",
			want: audit.Filter{
				StartDate: ts("2025-03-01T08:00:00Z"),
				EndDate:   ts("2025-03-02T00:00:00Z"),
				Limit:     audit.DefaultLimit,
			},
		},
		{
			name:  "bare end date covers the whole day",
			query: "startDate=2025-03-01&endDate=2025-03-01",
			want: audit.Filter{
				StartDate: ts("2025-03-01T00:00:00Z"),
				EndDate:   ts("2025-03-01T23:59:59.999999999Z"),
				Limit:     audit.DefaultLimit,
			},
		},
		{
			name:  "limit above the cap is clamped",
			query: "limit=5000",
			want:  audit.Filter{Limit: audit.MaxLimit},
		},
		{
			name:  "identifiers are trimmed",
			query: "evidenceId=%20EV-1%20&userId=0xabc&caseId=C-1",
			want:  audit.Filter{EvidenceID: "EV-1", UserID: "0xabc", CaseID: "C-1", Limit: audit.DefaultLimit},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/audit-logs?"+tc.query, nil)
			got, err := ParseLogsQuery(req)
			require.NoError(t, err)
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("filter mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseActivityLimit(t *testing.T) {
	limit, err := ParseActivityLimit(httptest.NewRequest(http.MethodGet, "/audit-logs/user/x", nil))
	require.NoError(t, err)
	assert.Zero(t, limit)

	limit, err = ParseActivityLimit(httptest.NewRequest(http.MethodGet, "/audit-logs/user/x?limit=20", nil))
	require.NoError(t, err)
	assert.Equal(t, 20, limit)

	limit, err = ParseActivityLimit(httptest.NewRequest(http.MethodGet, "/audit-logs/user/x?limit=99999", nil))
	require.NoError(t, err)
	assert.Equal(t, audit.MaxLimit, limit)

	_, err = ParseActivityLimit(httptest.NewRequest(http.MethodGet, "/audit-logs/user/x?limit=0", nil))
	require.Error(t, err)
}
