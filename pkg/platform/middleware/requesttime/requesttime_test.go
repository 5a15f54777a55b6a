package requesttime

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"custody/pkg/requestcontext"
	"custody/pkg/testutil"
)

func TestMiddlewarePinsRequestTime(t *testing.T) {
	fixed := time.Date(2025, 7, 10, 12, 0, 0, 0, time.UTC)
	var first, second time.Time
	h := MiddlewareWithClock(func() time.Time { return fixed })(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		first = requestcontext.Now(r.Context())
		time.Sleep(time.Millisecond)
		second = requestcontext.Now(r.Context())
	}))

	testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/audit-logs/summary"))

	assert.Equal(t, fixed, first)
	assert.Equal(t, first, second)
}
