package routes

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"cerbo-api/middleware"
	"cerbo-api/models"
	"cerbo-api/store"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRoutesGates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	t.Setenv("JWT_SECRET", "routes-secret")

	s, err := store.NewMemoryStore()
	require.NoError(t, err)
	pi := &models.User{FirstName: "Paul", LastName: "Ivan", Email: "pi@univ.example.org", Role: models.RoleInvestigator}
	require.NoError(t, s.CreateUser(context.Background(), pi))

	router := gin.New()
	SetupRoutes(router, s)

	token, err := middleware.IssueToken("routes-secret", pi.UserID, pi.Email, nil, time.Hour)
	require.NoError(t, err)

	cases := []struct {
		name   string
		method string
		path   string
		auth   bool
		want   int
	}{
		{"health is public", http.MethodGet, "/api/v1/health", false, http.StatusOK},
		{"metrics are public", http.MethodGet, "/metrics", false, http.StatusOK},
		{"projects need a token", http.MethodGet, "/api/v1/projects", false, http.StatusUnauthorized},
		{"admin group needs the admin role", http.MethodPost, "/api/v1/admin/deadline-sweep", true, http.StatusForbidden},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, tc.path, nil)
			if tc.auth {
				req.Header.Set("Authorization", "Bearer "+token)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}
