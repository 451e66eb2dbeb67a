package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cerbo-api/models"
	"cerbo-api/store"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, claims Claims, secret string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthRouter(t *testing.T) (*gin.Engine, models.User) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", testSecret)

	s, err := store.NewMemoryStore()
	require.NoError(t, err)
	u := &models.User{FirstName: "Rose", LastName: "Deux", Email: "rose@univ.example.org", Role: models.RoleReviewer}
	require.NoError(t, s.CreateUser(context.Background(), u))

	r := gin.New()
	r.GET("/me", AuthMiddleware(s), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetUint(ContextUserID),
			"email":   c.GetString(ContextEmail),
			"roles":   c.GetStringSlice(ContextRoles),
		})
	})
	r.GET("/admin", AuthMiddleware(s), RequireRole(models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r, *u
}

func do(r http.Handler, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareResolvesUser(t *testing.T) {
	r, u := newAuthRouter(t)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	token := signed(t, Claims{UserID: u.UserID, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, testSecret)

	w := do(r, "/me", "Bearer "+token)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":1,"email":"rose@univ.example.org","roles":["EVALUATEUR"]}`, w.Body.String())

	w = do(r, "/admin", "Bearer "+token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := signed(t, Claims{UserID: u.UserID, Roles: []string{models.RoleAdmin}, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, testSecret)
	w = do(r, "/admin", "Bearer "+admin)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuthMiddlewareRejects(t *testing.T) {
	r, u := newAuthRouter(t)
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	expired := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	cases := map[string]string{
		"missing header":   "",
		"not bearer":       "Token abc",
		"garbage":          "Bearer abc",
		"wrong secret":     "Bearer " + signed(t, Claims{UserID: u.UserID, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, "other"),
		"expired":          "Bearer " + signed(t, Claims{UserID: u.UserID, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: expired}}, testSecret),
		"unknown user":     "Bearer " + signed(t, Claims{UserID: 42, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, testSecret),
		"no user in token": "Bearer " + signed(t, Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp}}, testSecret),
	}
	for name, auth := range cases {
		t.Run(name, func(t *testing.T) {
			w := do(r, "/me", auth)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}

func TestIssueTokenRoundTrip(t *testing.T) {
	r, u := newAuthRouter(t)

	token, err := IssueToken(testSecret, u.UserID, "", []string{models.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	w := do(r, "/admin", "Bearer "+token)
	assert.Equal(t, http.StatusNoContent, w.Code)

	_, err = IssueToken("", u.UserID, "", nil, time.Hour)
	assert.Error(t, err)
	_, err = IssueToken(testSecret, 0, "", nil, time.Hour)
	assert.Error(t, err)
}
