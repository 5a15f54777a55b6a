package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	EvidenceID() string
	GetLastStatusCode() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (any, error)
}

// Events are written in the background, so trail assertions poll.
const (
	pollTimeout  = 5 * time.Second
	pollInterval = 100 * time.Millisecond
)

var actionTypes = []string{"CREATE", "VERIFY", "ACCESS", "DOWNLOAD", "DELETE", "MODIFY", "TRANSFER", "CHAIN_OF_CUSTODY"}

// RegisterSteps registers audit trail step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &auditSteps{tc: tc}

	ctx.Step(`^I view the custody trail of my evidence$`, steps.viewTrail)
	ctx.Step(`^I GET "([^"]*)" as wallet "([^"]*)"$`, steps.getAsWallet)
	ctx.Step(`^the evidence trail should eventually contain at least (\d+) "([^"]*)" events? by "([^"]*)"$`, steps.trailEventuallyContains)
	ctx.Step(`^the latest trail event should have status "([^"]*)" and role "([^"]*)"$`, steps.latestTrailEvent)
	ctx.Step(`^the summary should list every action type$`, steps.summaryListsEveryActionType)
}

type auditSteps struct {
	tc TestContext
}

func (s *auditSteps) viewTrail(ctx context.Context) error {
	return s.tc.GET("/audit-logs/evidence/"+s.tc.EvidenceID(), nil)
}

func (s *auditSteps) getAsWallet(ctx context.Context, path, wallet string) error {
	return s.tc.GET(path, map[string]string{"X-Wallet-Address": wallet})
}

func (s *auditSteps) trailEventuallyContains(ctx context.Context, expected int, action, userID string) error {
	deadline := time.Now().Add(pollTimeout)
	for {
		if err := s.tc.GET("/audit-logs?evidenceId="+s.tc.EvidenceID()+"&actionType="+action+"&userId="+userID, nil); err != nil {
			return err
		}
		if s.tc.GetLastStatusCode() != 200 {
			return fmt.Errorf("audit log query failed with %d: %s", s.tc.GetLastStatusCode(), s.tc.GetLastResponseBody())
		}
		count, err := s.tc.GetResponseField("count")
		if err != nil {
			return err
		}
		// The polling query names the evidence too, so it adds ACCESS events
		// of its own.
		if n, ok := count.(float64); ok && int(n) >= expected {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("expected %d %s events by %s within %s, got %v", expected, action, userID, pollTimeout, count)
		}
		time.Sleep(pollInterval)
	}
}

func (s *auditSteps) latestTrailEvent(ctx context.Context, status, role string) error {
	if err := s.tc.GET("/audit-logs/evidence/"+s.tc.EvidenceID(), nil); err != nil {
		return err
	}
	trail, err := s.tc.GetResponseField("trail")
	if err != nil {
		return err
	}
	events, ok := trail.([]any)
	if !ok || len(events) == 0 {
		return fmt.Errorf("expected a non-empty trail, got %s", s.tc.GetLastResponseBody())
	}
	latest, ok := events[0].(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected trail entry %T", events[0])
	}
	if latest["status"] != status || latest["user_role"] != role {
		return fmt.Errorf("expected latest event %s/%s, got %v/%v", status, role, latest["status"], latest["user_role"])
	}
	return nil
}

func (s *auditSteps) summaryListsEveryActionType(ctx context.Context) error {
	byAction, err := s.tc.GetResponseField("summary.byActionType")
	if err != nil {
		return err
	}
	counts, ok := byAction.(map[string]any)
	if !ok {
		return fmt.Errorf("byActionType is not an object: %T", byAction)
	}
	for _, action := range actionTypes {
		if _, ok := counts[action]; !ok {
			return fmt.Errorf("summary is missing action type %s", action)
		}
	}
	return nil
}
