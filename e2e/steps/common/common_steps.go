package common

import (
	"context"
	"fmt"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	SignIn(userID, role string) error
	SignOut()
	GetLastStatusCode() int
	GetLastResponseBody() []byte
	GetResponseField(field string) (any, error)
	Expand(value string) string
}

// RegisterSteps registers generic request and assertion steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &commonSteps{tc: tc}

	ctx.Step(`^I am signed in as "([^"]*)" with role "([^"]*)"$`, steps.signIn)
	ctx.Step(`^I am not signed in$`, steps.signOut)
	ctx.Step(`^I GET "([^"]*)"$`, steps.get)
	ctx.Step(`^the response status should be (\d+)$`, steps.statusShouldBe)
	ctx.Step(`^the response field "([^"]*)" should be "([^"]*)"$`, steps.fieldShouldBe)
	ctx.Step(`^the response field "([^"]*)" should equal (\d+)$`, steps.fieldShouldEqualNumber)
	ctx.Step(`^the response field "([^"]*)" should be (true|false)$`, steps.fieldShouldBeBool)
}

type commonSteps struct {
	tc TestContext
}

func (s *commonSteps) signIn(ctx context.Context, userID, role string) error {
	return s.tc.SignIn(userID, role)
}

func (s *commonSteps) signOut(ctx context.Context) error {
	s.tc.SignOut()
	return nil
}

func (s *commonSteps) get(ctx context.Context, path string) error {
	return s.tc.GET(path, nil)
}

func (s *commonSteps) statusShouldBe(ctx context.Context, expected int) error {
	if got := s.tc.GetLastStatusCode(); got != expected {
		return fmt.Errorf("expected status %d, got %d: %s", expected, got, s.tc.GetLastResponseBody())
	}
	return nil
}

func (s *commonSteps) fieldShouldBe(ctx context.Context, field, expected string) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	expected = s.tc.Expand(expected)
	if fmt.Sprint(value) != expected {
		return fmt.Errorf("expected %s to be %q, got %v", field, expected, value)
	}
	return nil
}

func (s *commonSteps) fieldShouldEqualNumber(ctx context.Context, field string, expected int) error {
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	n, ok := value.(float64)
	if !ok {
		return fmt.Errorf("expected %s to be a number, got %T", field, value)
	}
	if int(n) != expected {
		return fmt.Errorf("expected %s to equal %d, got %v", field, expected, n)
	}
	return nil
}

func (s *commonSteps) fieldShouldBeBool(ctx context.Context, field, expected string) error {
	want, _ := strconv.ParseBool(expected)
	value, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	if got, ok := value.(bool); !ok || got != want {
		return fmt.Errorf("expected %s to be %s, got %v", field, expected, value)
	}
	return nil
}
