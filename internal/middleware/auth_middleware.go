package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/quickvisa/intake-backend/internal/utils"
	"github.com/quickvisa/intake-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
)

// SessionContextKey is the key used to store the applicant identity in Gin context
const SessionContextKey = "session"

// SessionContext represents the verified applicant behind a session token
type SessionContext struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

// AuthMiddleware creates a middleware that validates session tokens
func AuthMiddleware(jwtService *jwt.Service, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		fields := logrus.Fields{
			"path": c.Request.URL.Path,
			"ip":   utils.GetRealIP(c),
		}

		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			logger.WithFields(fields).Warn("Auth failed: missing authorization header")
			abortUnauthorized(c, "unauthorized", "Authorization header is required", "MISSING_AUTH_HEADER")
			return
		}

		// Check Bearer token format
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			logger.WithFields(fields).Warn("Auth failed: invalid authorization format")
			abortUnauthorized(c, "unauthorized", "Invalid authorization header format. Expected: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimSpace(parts[1])
		if tokenString == "" {
			logger.WithFields(fields).Warn("Auth failed: empty token")
			abortUnauthorized(c, "unauthorized", "Token cannot be empty", "INVALID_AUTH_FORMAT")
			return
		}

		claims, err := jwtService.ValidateSessionToken(tokenString)
		if err != nil {
			if jwtService.IsTokenExpired(tokenString) {
				logger.WithFields(fields).WithError(err).Warn("Auth failed: token expired")
				abortUnauthorized(c, "token_expired", "Session has expired. Please verify your phone number again.", "TOKEN_EXPIRED")
			} else {
				logger.WithFields(fields).WithError(err).Warn("Auth failed: invalid token")
				abortUnauthorized(c, "invalid_token", "Invalid session token", "INVALID_TOKEN")
			}
			return
		}

		c.Set(SessionContextKey, SessionContext{
			PhoneNumber: claims.PhoneNumber,
			Name:        claims.Name,
		})
		// Picked up by the request logger
		c.Set("phone", claims.PhoneNumber)

		c.Next()
	}
}

func abortUnauthorized(c *gin.Context, errorCode, message, code string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"error":   errorCode,
		"message": message,
		"code":    code,
	})
}

// GetSessionContext retrieves the applicant identity from Gin context
func GetSessionContext(c *gin.Context) (SessionContext, bool) {
	value, exists := c.Get(SessionContextKey)
	if !exists {
		return SessionContext{}, false
	}

	session, ok := value.(SessionContext)
	if !ok {
		return SessionContext{}, false
	}

	return session, true
}

// MustGetSessionContext retrieves the session context or panics (use only after AuthMiddleware)
func MustGetSessionContext(c *gin.Context) SessionContext {
	session, exists := GetSessionContext(c)
	if !exists {
		panic("session context not found - ensure AuthMiddleware is applied")
	}
	return session
}
