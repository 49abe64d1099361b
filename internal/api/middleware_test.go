package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/wemix/nhm/pkg/logger"
)

func newTestRouter(auth *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", auth.Authenticate(), auth.RequireRole("operator"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return r
}

func TestAuthenticateRejectsMissingCredentials(t *testing.T) {
	auth := NewAuthMiddleware("secret", logger.NewTestLogger())
	r := newTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestAuthenticateAcceptsValidJWTWithRole(t *testing.T) {
	auth := NewAuthMiddleware("secret", logger.NewTestLogger())
	r := newTestRouter(auth)

	token, err := auth.GenerateJWT("alice", []string{"operator"})
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", rec.Code, rec.Body.String())
	}
}

func TestAuthenticateRejectsRoleMismatch(t *testing.T) {
	auth := NewAuthMiddleware("secret", logger.NewTestLogger())
	r := newTestRouter(auth)

	token, err := auth.GenerateJWT("bob", []string{"viewer"})
	if err != nil {
		t.Fatalf("GenerateJWT() error = %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestAuthenticateAcceptsAPIKeyWithAdminRole(t *testing.T) {
	auth := NewAuthMiddleware("secret", logger.NewTestLogger())
	auth.AddAPIKey("k-1", "ci-bot", []string{"admin"})
	r := newTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-API-Key", "k-1")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestAuthenticateRejectsUnknownAPIKey(t *testing.T) {
	auth := NewAuthMiddleware("secret", logger.NewTestLogger())
	r := newTestRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("X-API-Key", "does-not-exist")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestBasicAuthAcceptsMatchingCredentials(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/basic", BasicAuth("admin", "hunter2"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/basic", nil)
	req.SetBasicAuth("admin", "hunter2")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestBasicAuthRejectsWrongPassword(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/basic", BasicAuth("admin", "hunter2"), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/basic", nil)
	req.SetBasicAuth("admin", "wrong")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}
