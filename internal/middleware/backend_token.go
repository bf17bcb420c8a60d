package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/stemsi/exstem-exam-engine/internal/apiclient"
	"github.com/stemsi/exstem-exam-engine/internal/response"
)

// ForwardBackendToken resolves the caller's backend token and puts it on the
// request context together with the request id, so every backend call made
// while serving the request carries both.
//
// The token comes from the Authorization header, then the ?token query param
// (WebSocket upgrades), then fallback. Signatures are not checked here; the
// backend owns that. A JWT whose exp has passed is rejected early so a dead
// session never reaches the backend. The caller identity used for session
// ownership is attached as well.
func ForwardBackendToken(fallback string) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearer(c.GetHeader("Authorization"))
		if token == "" {
			token = c.Query("token")
		}
		if token == "" {
			token = fallback
		}
		if token == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}
		if expired(token, time.Now()) {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenExpired)
			return
		}

		ctx := apiclient.WithToken(c.Request.Context(), token)
		ctx = apiclient.WithCaller(ctx, CallerID(token))
		if reqID := c.GetString(response.ContextKeyRequestID); reqID != "" {
			ctx = apiclient.WithRequestID(ctx, reqID)
		}
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func bearer(header string) string {
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}

// subjectClaims name the student in a backend JWT, in lookup order.
var subjectClaims = []string{"sub", "id", "_id", "userId", "studentId"}

// CallerID names the student behind token. A JWT keeps the same identity
// across refreshes through its subject; any other token is its own identity.
func CallerID(token string) string {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err == nil {
		for _, name := range subjectClaims {
			if v, ok := claims[name].(string); ok && v != "" {
				return "u-" + v
			}
		}
	}
	sum := sha256.Sum256([]byte(token))
	return "t-" + hex.EncodeToString(sum[:8])
}

// expired reports whether token is a JWT with an exp claim before now.
// Opaque tokens are never considered expired.
func expired(token string, now time.Time) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(now)
}
