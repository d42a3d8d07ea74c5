// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements SessionGate, the bearer-token gate in front of the
// admin API. Every protected request must present a token minted by the
// session authority; in single-session deployments a newer login silently
// invalidates all earlier tokens, and the gate surfaces that as a plain 401
// so clients simply re-authenticate.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avikram/attendance-bot/internal/auth"
)

// subjectKey is the Gin context key under which the verified session subject
// is stored. Downstream middleware (rate limiting, logging) reads it.
const subjectKey = "subject"

// SubjectFrom returns the verified session subject, or "" when the request
// did not pass through SessionGate.
func SubjectFrom(c *gin.Context) string {
	if v, ok := c.Get(subjectKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// SessionGate returns a Gin middleware that requires a valid bearer token.
//
// Behavior:
//   - Extracts the token from "Authorization: Bearer <token>".
//   - Verifies it against the authority; both invalid and superseded tokens
//     abort with 401 and a stable code so clients can branch on it.
//   - On success, stores the token subject in the context under "subject".
func SessionGate(authority *auth.SessionAuthority) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			unauthorized(c, "missing bearer token")
			return
		}

		subject, err := authority.Verify(token)
		switch {
		case errors.Is(err, auth.ErrSessionSuperseded):
			unauthorized(c, "session superseded by a newer login")
			return
		case err != nil:
			unauthorized(c, "invalid or expired token")
			return
		}

		c.Set(subjectKey, subject)
		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header value.
// The "Bearer" keyword is matched case-insensitively.
func bearerToken(header string) string {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func unauthorized(c *gin.Context, msg string) {
	c.Header("WWW-Authenticate", "Bearer")
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"request_id": c.Writer.Header().Get("X-Request-ID"),
		"code":       "unauthorized",
		"message":    msg,
	})
}
