package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quickvisa/intake-backend/pkg/jwt"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestJWTService() *jwt.Service {
	return jwt.NewService("test-session-secret-key-123456789", time.Hour)
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupTestRouter(jwtService *jwt.Service) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/protected", AuthMiddleware(jwtService, testLogger()), func(c *gin.Context) {
		session, exists := GetSessionContext(c)
		if !exists {
			c.JSON(http.StatusInternalServerError, gin.H{"message": "no session"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"message": "success",
			"phone":   session.PhoneNumber,
			"name":    session.Name,
		})
	})
	return router
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["code"]
}

func TestAuthMiddleware_Success(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter(jwtService)

	token, err := jwtService.GenerateSessionToken("+919876543210", "Asha Rao")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "+919876543210")
	assert.Contains(t, w.Body.String(), "Asha Rao")
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	jwtService := setupTestJWTService()
	router := setupTestRouter(jwtService)

	expired, err := jwt.NewService("test-session-secret-key-123456789", -time.Minute).
		GenerateSessionToken("+919876543210", "Asha Rao")
	require.NoError(t, err)

	foreign, err := jwt.NewService("another-secret", time.Hour).GenerateSessionToken("+919876543210", "Asha Rao")
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		code   string
	}{
		{"missing header", "", "MISSING_AUTH_HEADER"},
		{"basic auth", "Basic dXNlcjpwYXNz", "INVALID_AUTH_FORMAT"},
		{"lowercase bearer", "bearer abc", "INVALID_AUTH_FORMAT"},
		{"empty token", "Bearer    ", "INVALID_AUTH_FORMAT"},
		{"garbage token", "Bearer not.a.token", "INVALID_TOKEN"},
		{"wrong secret", "Bearer " + foreign, "INVALID_TOKEN"},
		{"expired", "Bearer " + expired, "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestGetSessionContext_Missing(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, exists := GetSessionContext(c)
	assert.False(t, exists)

	c.Set(SessionContextKey, "not a session")
	_, exists = GetSessionContext(c)
	assert.False(t, exists)

	assert.Panics(t, func() { MustGetSessionContext(c) })
}

func TestRequestLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	router := gin.New()
	router.Use(RequestLogger(logger))
	router.GET("/ok", func(c *gin.Context) {
		c.Set("phone", "+14155550100")
		c.Status(http.StatusOK)
	})
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/ok", nil))
	assert.Contains(t, buf.String(), `"phone":"+14155550100"`)
	assert.Contains(t, buf.String(), `"level":"info"`)

	buf.Reset()
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/missing", nil))
	assert.Contains(t, buf.String(), `"level":"warning"`)
	assert.Contains(t, buf.String(), `"status":404`)
}
