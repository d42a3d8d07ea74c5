// Admin authentication endpoint.
//
// POST /login exchanges the configured admin credentials for a bearer token.
// The handler is deliberately order-sensitive: the per-IP sliding window is
// consumed BEFORE credentials are examined, so an attacker cannot probe
// passwords faster than the window allows, and failed attempts still count.
package handlers

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/avikram/attendance-bot/internal/auth"
	"github.com/avikram/attendance-bot/internal/http/middleware"
	"github.com/avikram/attendance-bot/internal/ratelimit"
)

// AuthHandler implements the login endpoint.
type AuthHandler struct {
	Authority *auth.SessionAuthority
	Limiter   *ratelimit.Limiter

	Username string
	Password string
}

// LoginRequest is the JSON payload for the login endpoint.
type LoginRequest struct {
	Username string `json:"username" binding:"required" example:"admin"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse carries the freshly minted session token.
type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type" example:"bearer"`
}

// Login handles POST /login.
//
// Responses:
//   - 200 with a bearer token on success
//   - 400 on malformed payload
//   - 401 on bad credentials (constant-time comparison)
//   - 429 when the per-IP window is exhausted (counted before credentials)
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	// Attempt is consumed before the credentials are looked at.
	if !h.Limiter.Hit("ip:" + c.ClientIP()) {
		middleware.LoggerFrom(c).Warn().
			Str("log", "security").
			Str("remote_ip", c.ClientIP()).
			Msg("login rate limited")
		c.Header("Retry-After", "60")
		fail(c, http.StatusTooManyRequests, ErrCodeRateLimited, "too many login attempts")
		return
	}

	userOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(req.Username)), []byte(h.Username))
	passOK := subtle.ConstantTimeCompare([]byte(req.Password), []byte(h.Password))
	if userOK&passOK != 1 {
		middleware.LoggerFrom(c).Warn().
			Str("log", "security").
			Str("remote_ip", c.ClientIP()).
			Msg("login failed")
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid credentials")
		return
	}

	token, err := h.Authority.Issue(h.Username)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "could not issue token")
		return
	}
	ok(c, http.StatusOK, LoginResponse{AccessToken: token, TokenType: "bearer"})
}
