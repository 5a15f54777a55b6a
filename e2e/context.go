package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TestContext holds per-scenario state: the last response and the bearer
// token attached to subsequent requests.
type TestContext struct {
	BaseURL    string
	SigningKey string
	Issuer     string
	Audience   string

	client       *http.Client
	token        string
	lastStatus   int
	lastBody     []byte
	lastResponse map[string]any
	evidenceID   string
}

// NewTestContext reads the target server from the environment.
func NewTestContext() *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(envOr("E2E_BASE_URL", "http://localhost:8080"), "/"),
		SigningKey: envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		Issuer:     envOr("JWT_ISSUER", "custody"),
		Audience:   envOr("JWT_AUDIENCE", "custody-api"),
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Reset clears scenario state. The evidence ID is unique per scenario so
// assertions never see events written by earlier runs.
func (tc *TestContext) Reset() {
	tc.token = ""
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.lastResponse = nil
	tc.evidenceID = "EV-E2E-" + uuid.NewString()[:8]
}

// SignIn mints a bearer token for userID with role.
func (tc *TestContext) SignIn(userID, role string) error {
	now := time.Now()
	claims := jwt.MapClaims{
		"user_id": userID,
		"role":    role,
		"sub":     userID,
		"iss":     tc.Issuer,
		"aud":     tc.Audience,
		"iat":     now.Unix(),
		"exp":     now.Add(15 * time.Minute).Unix(),
		"jti":     uuid.NewString(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(tc.SigningKey))
	if err != nil {
		return fmt.Errorf("sign token: %w", err)
	}
	tc.token = signed
	return nil
}

func (tc *TestContext) SignOut() { tc.token = "" }

func (tc *TestContext) EvidenceID() string { return tc.evidenceID }

// Expand replaces the {evidence} placeholder with the scenario's evidence ID.
func (tc *TestContext) Expand(value string) string {
	return strings.ReplaceAll(value, "{evidence}", tc.evidenceID)
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tc.BaseURL+tc.Expand(path), nil)
	if err != nil {
		return err
	}
	if tc.token != "" {
		req.Header.Set("Authorization", "Bearer "+tc.token)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	tc.lastResponse = nil
	if len(tc.lastBody) > 0 {
		var decoded map[string]any
		if json.Unmarshal(tc.lastBody, &decoded) == nil {
			tc.lastResponse = decoded
		}
	}
	return nil
}

func (tc *TestContext) GetLastStatusCode() int { return tc.lastStatus }

func (tc *TestContext) GetLastResponseBody() []byte { return tc.lastBody }

// GetResponseField resolves a dotted path such as "summary.byActionType.ACCESS".
func (tc *TestContext) GetResponseField(field string) (any, error) {
	if tc.lastResponse == nil {
		return nil, fmt.Errorf("last response is not a JSON object: %s", tc.lastBody)
	}
	var current any = tc.lastResponse
	for _, part := range strings.Split(field, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q: %q is not an object", field, part)
		}
		current, ok = obj[part]
		if !ok {
			return nil, fmt.Errorf("field %q not found in response", field)
		}
	}
	return current, nil
}
