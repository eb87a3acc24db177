package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"taskmarket-ledger/pkg/errutil"
)

const secret = "test-secret"

func init() {
	gin.SetMode(gin.TestMode)
}

func router(roles ...Role) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Next()
		if last := c.Errors.Last(); last != nil {
			c.JSON(errutil.StatusOf(last.Err).HTTPStatus(), last.Err)
		}
	})
	r.GET("/me", Authenticate(secret, "ledger-test"), RequireRole(roles...), func(c *gin.Context) {
		a, ok := FromContext(c.Request.Context())
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, a)
	})
	return r
}

func do(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sign(t *testing.T, a Actor, issuer string, exp time.Duration) string {
	t.Helper()
	tok, err := SignToken(a, secret, jwt.RegisteredClaims{
		Issuer:    issuer,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(exp)),
	})
	require.NoError(t, err)
	return tok
}

func TestAuthenticateResolvesActor(t *testing.T) {
	tok := sign(t, Actor{ID: "u1", Role: RoleAdvertiser, AdvertiserApprovalStatus: "approved", KYCVerified: true}, "ledger-test", time.Hour)

	w := do(router(), tok)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"id":"u1"`)
	require.Contains(t, w.Body.String(), `"kyc_verified":true`)
}

func TestAuthenticateRejects(t *testing.T) {
	r := router()

	require.Equal(t, http.StatusUnauthorized, do(r, "").Code)
	require.Equal(t, http.StatusUnauthorized, do(r, "garbage").Code)
	require.Equal(t, http.StatusUnauthorized, do(r, sign(t, Actor{ID: "u1"}, "ledger-test", -time.Minute)).Code)
	require.Equal(t, http.StatusUnauthorized, do(r, sign(t, Actor{ID: "u1"}, "someone-else", time.Hour)).Code)
}

func TestRequireRole(t *testing.T) {
	tok := sign(t, Actor{ID: "u1", Role: RoleTasker}, "ledger-test", time.Hour)
	require.Equal(t, http.StatusForbidden, do(router(RoleAdmin), tok).Code)
}

func TestRequireApprovedAdvertiser(t *testing.T) {
	require.True(t, errutil.Is(RequireApprovedAdvertiser(nil), errutil.StatusUnauthorized))
	require.True(t, errutil.Is(RequireApprovedAdvertiser(&Actor{ID: "a", Role: RoleAdvertiser, AdvertiserApprovalStatus: "pending"}), errutil.StatusForbidden))
	require.NoError(t, RequireApprovedAdvertiser(&Actor{ID: "a", Role: RoleAdvertiser, AdvertiserApprovalStatus: AdvertiserApproved}))
}
