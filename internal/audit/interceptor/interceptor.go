// Package interceptor derives audit events from HTTP traffic. It observes each
// request/response pair and hands it to a Dispatcher, which turns it into a
// candidate event off the request goroutine.
package interceptor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	audit "custody/pkg/platform/audit"
	"custody/pkg/platform/middleware/metadata"
	"custody/pkg/requestcontext"
)

// Mode selects when requests are logged.
type Mode string

const (
	// ModeBefore logs a PENDING event before the handler runs.
	ModeBefore Mode = "before"
	// ModeAfter logs the outcome once the response is produced.
	ModeAfter Mode = "after"
	// ModeBoth logs both.
	ModeBoth Mode = "both"
)

// ParseMode accepts "before", "after" or "both"; empty means after.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return ModeAfter, nil
	case ModeBefore, ModeAfter, ModeBoth:
		return m, nil
	default:
		return "", fmt.Errorf("unknown audit interceptor mode %q", s)
	}
}

const (
	// AnonymousActor is recorded when neither an identity nor a wallet header is present.
	AnonymousActor = "anonymous"
	// WalletHeader carries the caller's wallet address for unauthenticated requests.
	WalletHeader = "X-Wallet-Address"

	defaultMaxBodyBytes = 64 << 10
)

// DefaultExcludedPaths are never audited.
var DefaultExcludedPaths = []string{"/health", "/metrics"}

// Config controls which requests are audited and how much of them is read.
type Config struct {
	// ExcludedPaths are path prefixes that bypass auditing.
	ExcludedPaths []string
	Mode          Mode
	// MaxBodyBytes bounds how much of the request and response bodies are
	// inspected. Larger request bodies are still passed on intact.
	MaxBodyBytes int
}

// Dispatcher accepts candidate events without blocking the caller. build
// runs later on the dispatcher's goroutine; a false ok drops the event.
type Dispatcher interface {
	DispatchFunc(ctx context.Context, build func() (audit.Candidate, bool))
}

// Interceptor is the audit middleware.
type Interceptor struct {
	dispatcher Dispatcher
	logger     *slog.Logger
	cfg        Config
}

// New creates an Interceptor. Zero config values take their defaults.
func New(dispatcher Dispatcher, logger *slog.Logger, cfg Config) *Interceptor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeAfter
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxBodyBytes
	}
	if cfg.ExcludedPaths == nil {
		cfg.ExcludedPaths = DefaultExcludedPaths
	}
	return &Interceptor{dispatcher: dispatcher, logger: logger, cfg: cfg}
}

// Middleware audits every request that is not excluded. Mount it ahead of
// authentication: rejected credentials are audited too, and the identity
// resolved downstream is picked up once the handler returns.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if i.excluded(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		ctx, identity := requestcontext.WithIdentitySlot(r.Context())
		r = r.WithContext(ctx)
		body := i.peekBody(r)

		if i.cfg.Mode == ModeBefore || i.cfg.Mode == ModeBoth {
			i.emit(ctx, snapshot(r, body, identity))
		}

		after := i.cfg.Mode == ModeAfter || i.cfg.Mode == ModeBoth
		capture := newResponseCapture(i.cfg.MaxBodyBytes)
		defer func() {
			// A panicking handler is recorded as a failure before the
			// panic continues to the recovery middleware.
			if rec := recover(); rec != nil {
				if after {
					capture.markHeader(http.StatusInternalServerError)
					i.emit(ctx, snapshot(r, body, identity).completed(capture, start))
				}
				panic(rec)
			}
		}()

		next.ServeHTTP(capture.wrap(w), r)

		if after {
			i.emit(ctx, snapshot(r, body, identity).completed(capture, start))
		}
	})
}

func (i *Interceptor) excluded(path string) bool {
	for _, prefix := range i.cfg.ExcludedPaths {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// peekBody reads up to MaxBodyBytes of the request body and puts the bytes
// back in front of the remainder so the handler sees the original stream.
// It returns nil when the body is absent or oversized.
func (i *Interceptor) peekBody(r *http.Request) []byte {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	buf, err := io.ReadAll(io.LimitReader(r.Body, int64(i.cfg.MaxBodyBytes)+1))
	r.Body = struct {
		io.Reader
		io.Closer
	}{io.MultiReader(bytes.NewReader(buf), r.Body), r.Body}

	if err != nil {
		i.logger.DebugContext(r.Context(), "audit body peek failed", "error", err)
		return nil
	}
	if len(buf) > i.cfg.MaxBodyBytes {
		return nil
	}
	return buf
}

// exchange is what the interceptor keeps of one request. It is taken on the
// request goroutine and holds no reference to the request, whose route
// context is recycled once the router returns.
type exchange struct {
	method    string
	path      string
	rawQuery  string
	params    map[string]string
	body      []byte
	userID    string
	role      string
	wallet    string
	ip        string
	userAgent string
	requestID string

	done     bool
	status   int
	payload  []byte
	duration time.Duration
}

func snapshot(r *http.Request, body []byte, identity *requestcontext.IdentitySlot) exchange {
	ctx := r.Context()
	userID, role := identity.Identity()
	if userID == "" {
		userID, role = requestcontext.UserID(ctx), requestcontext.UserRole(ctx)
	}
	ua := requestcontext.UserAgent(ctx)
	if ua == "" {
		ua = r.Header.Get("User-Agent")
	}
	return exchange{
		method:   r.Method,
		path:     r.URL.Path,
		rawQuery: r.URL.RawQuery,
		params: map[string]string{
			evidenceField.param: chi.URLParam(r, evidenceField.param),
			caseField.param:     chi.URLParam(r, caseField.param),
		},
		body:      body,
		userID:    userID,
		role:      role,
		wallet:    strings.TrimSpace(r.Header.Get(WalletHeader)),
		ip:        clientIP(r),
		userAgent: ua,
		requestID: requestcontext.RequestID(ctx),
	}
}

// completed adds the handler's outcome.
func (x exchange) completed(capture *responseCapture, start time.Time) exchange {
	x.done = true
	x.status = capture.StatusCode()
	x.payload = bytes.Clone(capture.Payload())
	x.duration = time.Since(start)
	return x
}

// emit hands the exchange to the dispatcher. Nothing here may fail the request.
func (i *Interceptor) emit(ctx context.Context, x exchange) {
	defer func() {
		if rec := recover(); rec != nil {
			i.interceptionFailed(ctx, x, rec)
		}
	}()
	i.dispatcher.DispatchFunc(ctx, func() (audit.Candidate, bool) {
		return i.candidate(ctx, x)
	})
}

// candidate derives the audit candidate from an exchange.
func (i *Interceptor) candidate(ctx context.Context, x exchange) (c audit.Candidate, ok bool) {
	defer func() {
		if rec := recover(); rec != nil {
			i.interceptionFailed(ctx, x, rec)
			ok = false
		}
	}()

	query, _ := url.ParseQuery(x.rawQuery)
	body := decodeObject(x.body)

	userID, role := x.actor()
	c = audit.Candidate{
		ActionType: ActionTypeFor(x.method, x.path),
		UserID:     userID,
		UserRole:   role,
		Status:     audit.StatusPending,
		IPAddress:  x.ip,
	}

	evidenceID := evidenceField.resolve(x.params[evidenceField.param], body, query)
	details := x.details(query, body)

	if x.done {
		c.Status = StatusFor(x.status)
		if id := evidenceField.fromResponse(decodeObject(x.payload)); id != "" {
			evidenceID = id
		}
		details["statusCode"] = x.status
		details["durationMs"] = x.duration.Milliseconds()
	}

	c.EvidenceID = audit.StringPtr(evidenceID)
	c.CaseID = audit.StringPtr(caseField.resolve(x.params[caseField.param], body, query))
	c.Details = details
	return c, true
}

func (i *Interceptor) interceptionFailed(ctx context.Context, x exchange, rec any) {
	i.logger.ErrorContext(ctx, "audit interception failed",
		"panic", fmt.Sprint(rec),
		"path", x.path,
		"request_id", x.requestID,
	)
}

func (x exchange) details(query url.Values, body map[string]any) map[string]any {
	details := map[string]any{
		"method": x.method,
		"path":   x.path,
	}
	if x.requestID != "" {
		details["requestId"] = x.requestID
	}
	if len(query) > 0 {
		logged := make(map[string]any, len(query))
		for k, vs := range query {
			if len(vs) == 1 {
				logged[k] = vs[0]
			} else {
				logged[k] = vs
			}
		}
		details["query"] = Sanitize(logged)
	}
	if body != nil {
		details["body"] = Sanitize(body)
	}

	if x.userAgent != "" {
		details["userAgent"] = Sanitize(x.userAgent)
		parsed := useragent.New(x.userAgent)
		browser, version := parsed.Browser()
		details["client"] = map[string]any{
			"browser":        browser,
			"browserVersion": version,
			"os":             parsed.OS(),
			"mobile":         parsed.Mobile(),
			"bot":            parsed.Bot(),
		}
	}
	return details
}

// actor prefers the authenticated identity, then the wallet header, then
// the anonymous actor. Only an authenticated identity carries a role.
func (x exchange) actor() (string, string) {
	if x.userID != "" {
		role := x.role
		if role == "" {
			role = string(audit.RoleUnknown)
		}
		return x.userID, role
	}
	if x.wallet != "" {
		return x.wallet, string(audit.RoleUnknown)
	}
	return AnonymousActor, string(audit.RoleUnknown)
}

func clientIP(r *http.Request) string {
	if ip := requestcontext.ClientIP(r.Context()); ip != "" {
		return ip
	}
	return metadata.ClientIPFromRequest(r)
}
