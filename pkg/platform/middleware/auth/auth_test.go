package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"custody/pkg/platform/middleware/auth"
	"custody/pkg/platform/middleware/auth/mocks"
	"custody/pkg/requestcontext"
	"custody/pkg/testutil"
)

func identityEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-User", requestcontext.UserID(r.Context()))
		w.Header().Set("X-Role", requestcontext.UserRole(r.Context()))
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticate(t *testing.T) {
	logger, _ := testutil.NewRecordingLogger()

	testutil.Given(t, "a valid bearer token", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		validator := mocks.NewMockJWTValidator(ctrl)
		validator.EXPECT().ValidateToken("good").Return(&auth.JWTClaims{UserID: "0xabc", Role: "auditor"}, nil)

		req := testutil.NewRequest(t, http.MethodGet, "/audit-logs")
		req.Header.Set("Authorization", "Bearer good")
		rr := testutil.DoRequest(auth.Authenticate(validator, logger)(identityEcho()), req)

		testutil.Then(t, "the identity is attached to the context", func(t *testing.T) {
			testutil.AssertStatusOK(t, rr)
			assert.Equal(t, "0xabc", rr.Header().Get("X-User"))
			assert.Equal(t, "auditor", rr.Header().Get("X-Role"))
		})
	})

	testutil.Given(t, "an outer middleware waiting on the identity", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		validator := mocks.NewMockJWTValidator(ctrl)
		validator.EXPECT().ValidateToken("good").Return(&auth.JWTClaims{UserID: "0xabc", Role: "court"}, nil)

		ctx, slot := requestcontext.WithIdentitySlot(context.Background())
		req := testutil.NewRequest(t, http.MethodGet, "/evidence").WithContext(ctx)
		req.Header.Set("Authorization", "Bearer good")
		testutil.DoRequest(auth.Authenticate(validator, logger)(identityEcho()), req)

		testutil.Then(t, "the slot carries the authenticated identity", func(t *testing.T) {
			userID, role := slot.Identity()
			assert.Equal(t, "0xabc", userID)
			assert.Equal(t, "court", role)
		})
	})

	testutil.Given(t, "no authorization header", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		validator := mocks.NewMockJWTValidator(ctrl)

		rr := testutil.DoRequest(auth.Authenticate(validator, logger)(identityEcho()),
			testutil.NewRequest(t, http.MethodGet, "/evidence"))

		testutil.Then(t, "the request passes through anonymously", func(t *testing.T) {
			testutil.AssertStatusOK(t, rr)
			assert.Empty(t, rr.Header().Get("X-User"))
		})
	})

	testutil.Given(t, "an invalid token", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		validator := mocks.NewMockJWTValidator(ctrl)
		validator.EXPECT().ValidateToken("bad").Return(nil, errors.New("signature is invalid"))

		req := testutil.NewRequest(t, http.MethodGet, "/audit-logs")
		req.Header.Set("Authorization", "Bearer bad")
		rr := testutil.DoRequest(auth.Authenticate(validator, logger)(identityEcho()), req)

		testutil.Then(t, "the request is rejected", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
		})
	})

	testutil.Given(t, "a non-bearer scheme", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		validator := mocks.NewMockJWTValidator(ctrl)

		req := testutil.NewRequest(t, http.MethodGet, "/audit-logs")
		req.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
		rr := testutil.DoRequest(auth.Authenticate(validator, logger)(identityEcho()), req)

		testutil.Then(t, "the request is rejected without validating", func(t *testing.T) {
			testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
		})
	})
}

func TestRequireRole(t *testing.T) {
	logger, logs := testutil.NewRecordingLogger()
	h := auth.RequireRole(logger, "admin", "auditor")(identityEcho())

	testutil.Given(t, "a reporting route restricted to admin and auditor", func(t *testing.T) {
		testutil.When(t, "the request is anonymous", func(t *testing.T) {
			rr := testutil.DoRequest(h, testutil.NewRequest(t, http.MethodGet, "/audit-logs"))

			testutil.Then(t, "it is unauthorized", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusUnauthorized, "unauthorized")
			})
		})

		testutil.When(t, "the actor holds another role", func(t *testing.T) {
			req := testutil.WithIdentity(testutil.NewRequest(t, http.MethodGet, "/audit-logs"), "0xabc", "investigator")
			rr := testutil.DoRequest(h, req)

			testutil.Then(t, "it is forbidden and logged", func(t *testing.T) {
				testutil.AssertStatusAndError(t, rr, http.StatusForbidden, "forbidden")
				assert.Len(t, logs.Find(t, "forbidden - role not permitted"), 1)
			})
		})

		testutil.When(t, "the actor is an auditor", func(t *testing.T) {
			req := testutil.WithIdentity(testutil.NewRequest(t, http.MethodGet, "/audit-logs"), "0xabc", "auditor")
			rr := testutil.DoRequest(h, req)

			testutil.Then(t, "the request proceeds", func(t *testing.T) {
				testutil.AssertStatusOK(t, rr)
			})
		})
	})
}
