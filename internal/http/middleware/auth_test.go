package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/progression-engine/internal/platform/ctxutil"
)

const testSecret = "test-secret"

func authRouter(cfg AuthConfig) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewAuthMiddleware(nil, cfg).RequireAuth())
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, ctxutil.LearnerID(c.Request.Context()).String())
	})
	return r
}

func call(r http.Handler, mutate func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if mutate != nil {
		mutate(req)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAuthAcceptsBearerToken(t *testing.T) {
	id := uuid.New()
	token, err := IssueToken(testSecret, id, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	rec := call(authRouter(AuthConfig{JWTSecret: testSecret}), func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+token)
	})
	if rec.Code != http.StatusOK || rec.Body.String() != id.String() {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
}

func TestAuthRejectsBadTokens(t *testing.T) {
	r := authRouter(AuthConfig{JWTSecret: testSecret})
	other, _ := IssueToken("other-secret", uuid.New(), time.Hour)
	expired, _ := IssueToken(testSecret, uuid.New(), -time.Minute)
	for name, token := range map[string]string{"wrong secret": other, "expired": expired, "garbage": "abc.def.ghi"} {
		rec := call(r, func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+token) })
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: status %d", name, rec.Code)
		}
	}
	if rec := call(r, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("missing token: status %d", rec.Code)
	}
}

func TestAuthLearnerHeaderOnlyWhenAllowed(t *testing.T) {
	id := uuid.New()
	setHeader := func(r *http.Request) { r.Header.Set(headerLearnerID, id.String()) }

	if rec := call(authRouter(AuthConfig{JWTSecret: testSecret}), setHeader); rec.Code != http.StatusUnauthorized {
		t.Fatalf("header accepted while disabled: %d", rec.Code)
	}
	rec := call(authRouter(AuthConfig{AllowLearnerHeader: true}), setHeader)
	if rec.Code != http.StatusOK || rec.Body.String() != id.String() {
		t.Fatalf("got %d %q", rec.Code, rec.Body.String())
	}
	bad := call(authRouter(AuthConfig{AllowLearnerHeader: true}), func(r *http.Request) { r.Header.Set(headerLearnerID, "nope") })
	if bad.Code != http.StatusUnauthorized {
		t.Fatalf("malformed header accepted: %d", bad.Code)
	}
}
