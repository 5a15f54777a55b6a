package interceptor

import (
	"net/http"
	"strings"

	audit "custody/pkg/platform/audit"
)

// pathActions are checked in order; the first fragment found in the path wins.
var pathActions = []struct {
	fragment string
	action   audit.ActionType
}{
	{"/verify", audit.ActionVerify},
	{"/download", audit.ActionDownload},
	{"/transfer", audit.ActionTransfer},
	{"/custody", audit.ActionChainOfCustody},
}

// ActionTypeFor classifies a request. Custody-specific path fragments take
// precedence over the HTTP method.
func ActionTypeFor(method, path string) audit.ActionType {
	lower := strings.ToLower(path)
	for _, pa := range pathActions {
		if strings.Contains(lower, pa.fragment) {
			return pa.action
		}
	}

	switch strings.ToUpper(method) {
	case http.MethodPost:
		return audit.ActionCreate
	case http.MethodPut, http.MethodPatch:
		return audit.ActionModify
	case http.MethodDelete:
		return audit.ActionDelete
	default:
		return audit.ActionAccess
	}
}

// StatusFor maps a response status code to an outcome.
func StatusFor(code int) audit.Status {
	if code >= 200 && code < 400 {
		return audit.StatusSuccess
	}
	return audit.StatusFailure
}
