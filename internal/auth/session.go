// Package auth implements the admin session authority: versioned,
// HMAC-signed bearer tokens with optional single-active-session semantics.
//
// In single-session mode every Issue call bumps a process-wide active
// version; a token verifies only while its embedded version equals the
// current one, so a new login silently invalidates every earlier token,
// including the caller's own previous session. That "last login wins"
// behavior is deliberate.
package auth

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken covers malformed, badly signed, or expired tokens.
var ErrInvalidToken = errors.New("invalid token")

// ErrSessionSuperseded is returned when a structurally valid token carries
// a stale session version (a newer login has occurred).
var ErrSessionSuperseded = errors.New("session superseded by a newer login")

// Claims are the JWT claims embedded in a session token.
type Claims struct {
	Version int64 `json:"ver"`
	jwt.RegisteredClaims
}

// SessionAuthority issues and verifies admin session tokens. It is an
// injectable state container: each instance carries its own active-version
// counter, so independent instances (and tests) do not interfere.
type SessionAuthority struct {
	signingKey    []byte
	ttl           time.Duration
	singleSession bool

	// activeVersion is read and bumped atomically; increment-then-read
	// must not interleave with another increment-then-read.
	activeVersion atomic.Int64
}

// NewSessionAuthority constructs a SessionAuthority. When singleSession is
// false the version is pinned at 1 and tokens are limited by expiry alone.
func NewSessionAuthority(signingKey string, ttl time.Duration, singleSession bool) *SessionAuthority {
	a := &SessionAuthority{
		signingKey:    []byte(signingKey),
		ttl:           ttl,
		singleSession: singleSession,
	}
	a.activeVersion.Store(1)
	return a
}

// Issue mints a signed token for subject. In single-session mode the active
// version is atomically incremented first, which invalidates all previously
// issued tokens for any subject.
func (a *SessionAuthority) Issue(subject string) (string, error) {
	var ver int64
	if a.singleSession {
		ver = a.activeVersion.Add(1)
	} else {
		ver = a.activeVersion.Load()
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Version: ver,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
		},
	})
	return token.SignedString(a.signingKey)
}

// Verify parses and validates a token and returns its subject. It fails
// with ErrInvalidToken for structural/signature/expiry problems and with
// ErrSessionSuperseded when single-session mode is on and the token's
// version is not the current active version.
func (a *SessionAuthority) Verify(tokenString string) (string, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return a.signingKey, nil
	})
	if err != nil || !parsed.Valid {
		return "", ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return "", ErrInvalidToken
	}
	if a.singleSession && claims.Version != a.activeVersion.Load() {
		return "", ErrSessionSuperseded
	}
	return claims.Subject, nil
}
