package testutil

import (
	"net/http"

	"custody/pkg/requestcontext"
)

// WithIdentity adds an authenticated actor and role to the request context.
// This simulates what the auth middleware would do for a valid bearer token.
func WithIdentity(req *http.Request, userID, role string) *http.Request {
	return req.WithContext(requestcontext.WithIdentity(req.Context(), userID, role))
}

// WithClientMetadata adds the client IP and User-Agent the metadata middleware
// would normally resolve.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}
