package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/avikram/attendance-bot/internal/auth"
)

func gateRouter(authority *auth.SessionAuthority) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(SessionGate(authority))
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, SubjectFrom(c))
	})
	return r
}

func TestSessionGate_MissingAndMalformedHeader(t *testing.T) {
	authority := auth.NewSessionAuthority("gate-secret", time.Hour, false)
	r := gateRouter(authority)

	for _, header := range []string{"", "Bearer", "Basic dXNlcg==", "nonsense"} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		r.ServeHTTP(w, req)
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("header %q -> %d; want 401", header, w.Code)
		}
		if got := w.Header().Get("WWW-Authenticate"); got != "Bearer" {
			t.Fatalf("expected WWW-Authenticate: Bearer, got %q", got)
		}
	}
}

func TestSessionGate_ValidToken_SetsSubject(t *testing.T) {
	authority := auth.NewSessionAuthority("gate-secret", time.Hour, false)
	r := gateRouter(authority)

	token, err := authority.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "bearer "+token) // keyword is case-insensitive
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", w.Code, w.Body.String())
	}
	if w.Body.String() != "admin" {
		t.Fatalf("subject = %q; want admin", w.Body.String())
	}
}

func TestSessionGate_SupersededToken_Rejected(t *testing.T) {
	authority := auth.NewSessionAuthority("gate-secret", time.Hour, true)
	r := gateRouter(authority)

	oldToken, err := authority.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	// A second login invalidates the first token.
	if _, err := authority.Issue("admin"); err != nil {
		t.Fatalf("issue: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+oldToken)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("superseded token -> %d; want 401", w.Code)
	}
	if !strings.Contains(w.Body.String(), "superseded") {
		t.Fatalf("expected superseded message, got %s", w.Body.String())
	}
}

func TestSessionGate_WrongKeyToken_Rejected(t *testing.T) {
	authority := auth.NewSessionAuthority("gate-secret", time.Hour, false)
	other := auth.NewSessionAuthority("other-secret", time.Hour, false)
	r := gateRouter(authority)

	token, err := other.Issue("admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("foreign-key token -> %d; want 401", w.Code)
	}
}
