package httptransport

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"custody/internal/audit/handler"
	"custody/internal/audit/interceptor"
	"custody/internal/audit/service"
	jwttoken "custody/internal/jwt_token"
	"custody/internal/platform/metrics"
	audit "custody/pkg/platform/audit"
	"custody/pkg/platform/audit/store/memory"
	"custody/pkg/platform/audit/worker"
	"custody/pkg/platform/audit/writer"
	"custody/pkg/platform/middleware/admin"
	"custody/pkg/testutil"
)

const adminToken = "ops-token"

type RouterSuite struct {
	suite.Suite
	store   *memory.InMemoryStore
	writer  *writer.Writer
	jwt     *jwttoken.JWTService
	healthy error
	router  http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	logger, _ := testutil.NewRecordingLogger()
	s.store = memory.NewInMemoryStore()
	buffer := writer.NewRingBuffer(16)
	s.writer = writer.New(s.store, logger, writer.WithRecoveryBuffer(buffer))
	s.jwt = jwttoken.NewJWTService("test-key", "custody", "custody-api")
	s.healthy = nil

	reg := prometheus.NewRegistry()
	s.router = NewRouter(Dependencies{
		Logger:         logger,
		Audit:          handler.New(service.New(s.store, logger), logger),
		Recovery:       handler.NewRecoveryHandler(buffer, worker.NewWorker(s.writer, buffer, logger), s.writer, logger),
		Interceptor:    interceptor.New(s.writer, logger, interceptor.Config{}),
		Validator:      jwttoken.NewJWTServiceAdapter(s.jwt),
		ReportingRoles: []string{"admin", "auditor"},
		AdminToken:     adminToken,
		Metrics:        metrics.New(reg),
		Gatherer:       reg,
		HealthChecks: map[string]HealthCheck{
			"store": func(context.Context) error { return s.healthy },
		},
	})
}

func (s *RouterSuite) bearer(userID, role string) string {
	token, err := s.jwt.GenerateAccessToken(userID, role, time.Hour)
	s.Require().NoError(err)
	return "Bearer " + token
}

func (s *RouterSuite) auditedEvents() []audit.Event {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.writer.Close(ctx))

	events, _, err := s.store.List(context.Background(), audit.Filter{Limit: 100})
	s.Require().NoError(err)
	return events
}

func (s *RouterSuite) TestHealth() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
	testutil.AssertStatusOK(s.T(), rr)
	s.NotEmpty(rr.Header().Get("X-Request-ID"))

	s.healthy = errors.New("connection refused")
	rr = testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
	testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)

	s.Empty(s.auditedEvents(), "health checks are not audited")
}

func (s *RouterSuite) TestReportingRequiresAuditRole() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/audit-logs"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	req := testutil.NewRequest(s.T(), http.MethodGet, "/audit-logs")
	req.Header.Set("Authorization", s.bearer("0xinv", "investigator"))
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusForbidden, "forbidden")

	req = testutil.NewRequest(s.T(), http.MethodGet, "/audit-logs")
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	req = testutil.NewRequest(s.T(), http.MethodGet, "/audit-logs?limit=5")
	req.Header.Set("Authorization", s.bearer("0xaud", "auditor"))
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *RouterSuite) TestReportingAccessIsItselfAudited() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/audit-logs/evidence/EV-9")
	req.Header.Set("Authorization", s.bearer("0xaud", "auditor"))
	req.Header.Set("X-Forwarded-For", "203.0.113.7")
	testutil.DoRequest(s.router, req)

	anon := testutil.NewRequest(s.T(), http.MethodGet, "/audit-logs/user/0xaud")
	anon.Header.Set("X-Wallet-Address", "0xcurious")
	testutil.DoRequest(s.router, anon)

	events := s.auditedEvents()
	s.Require().Len(events, 2)

	byUser := map[string]audit.Event{}
	for _, e := range events {
		byUser[e.UserID] = e
	}

	granted := byUser["0xaud"]
	s.Equal(audit.ActionAccess, granted.ActionType)
	s.Equal("auditor", granted.UserRole)
	s.Equal(audit.StatusSuccess, granted.Status)
	s.Equal("EV-9", audit.Deref(granted.EvidenceID))
	s.Equal("203.0.113.7", granted.IPAddress)

	denied := byUser["0xcurious"]
	s.Equal(string(audit.RoleUnknown), denied.UserRole)
	s.Equal(audit.StatusFailure, denied.Status)
}

func (s *RouterSuite) TestRejectedTokenIsAudited() {
	req := testutil.NewRequest(s.T(), http.MethodGet, "/audit-logs/evidence/EV-1")
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	req.Header.Set("X-Wallet-Address", "0xintruder")
	rr := testutil.DoRequest(s.router, req)
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")

	events := s.auditedEvents()
	s.Require().Len(events, 1)
	s.Equal(audit.StatusFailure, events[0].Status)
	s.Equal(audit.ActionAccess, events[0].ActionType)
	s.Equal("0xintruder", events[0].UserID)
	s.Equal(string(audit.RoleUnknown), events[0].UserRole)
	s.Equal(http.StatusUnauthorized, events[0].Details["statusCode"])
}

func (s *RouterSuite) TestAdminRecoveryRoutes() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit/recovery"))
	testutil.AssertStatus(s.T(), rr, http.StatusUnauthorized)

	req := testutil.NewRequest(s.T(), http.MethodGet, "/admin/audit/recovery")
	req.Header.Set(admin.HeaderAdminToken, adminToken)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)

	req = testutil.NewRequest(s.T(), http.MethodPost, "/admin/audit/recovery/breaker/reset")
	req.Header.Set(admin.HeaderAdminToken, adminToken)
	rr = testutil.DoRequest(s.router, req)
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *RouterSuite) TestMetricsEndpoint() {
	testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))

	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(s.T(), rr)
	s.True(strings.Contains(rr.Body.String(), "custody_http_requests_total"))
}

func TestRouterWithoutOptionalDependencies(t *testing.T) {
	logger, _ := testutil.NewRecordingLogger()
	store := memory.NewInMemoryStore()
	router := NewRouter(Dependencies{
		Logger:         logger,
		Audit:          handler.New(service.New(store, logger), logger),
		Validator:      jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService("k", "custody", "custody-api")),
		ReportingRoles: []string{"admin"},
		TracingEnabled: true,
	})

	rr := testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/health"))
	require.Equal(t, http.StatusOK, rr.Code)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/metrics"))
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = testutil.DoRequest(router, testutil.NewRequest(t, http.MethodGet, "/admin/audit/recovery"))
	require.Equal(t, http.StatusNotFound, rr.Code)
}
