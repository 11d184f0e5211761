package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quickvisa/intake-backend/internal/metrics"
	"github.com/quickvisa/intake-backend/internal/services"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/quickvisa/intake-backend/pkg/jwt"
	"github.com/quickvisa/intake-backend/pkg/sms"
	"github.com/quickvisa/intake-backend/pkg/validator"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSessionSecret = "test-session-secret-key-123456789"

type fakePasscodes struct {
	issued    map[string]string
	verifyErr error
	genErr    error
}

func (f *fakePasscodes) Generate(phone, ipAddress string) (string, time.Time, error) {
	if f.genErr != nil {
		return "", time.Time{}, f.genErr
	}
	if f.issued == nil {
		f.issued = map[string]string{}
	}
	f.issued[phone] = "482913"
	return "482913", time.Now().Add(5 * time.Minute), nil
}

func (f *fakePasscodes) Verify(phone, code string) error {
	if f.verifyErr != nil {
		return f.verifyErr
	}
	if f.issued[phone] != code {
		return services.ErrPasscodeInvalid
	}
	return nil
}

type fakeRateLimiter struct {
	checkErr error
	recorded []string
}

func (f *fakeRateLimiter) CheckPasscodeRateLimit(phone, ip string) error {
	return f.checkErr
}

func (f *fakeRateLimiter) RecordPasscodeRequest(phone, ip string) error {
	f.recorded = append(f.recorded, phone)
	return nil
}

func newHandlerTestLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func setupIdentityTestHandler(passcodes *fakePasscodes, limiter *fakeRateLimiter) (*IdentityHandler, *jwt.Service) {
	gin.SetMode(gin.TestMode)
	logger := newHandlerTestLogger()
	jwtService := jwt.NewService(testSessionSecret, time.Hour)

	handler := NewIdentityHandler(
		jwtService,
		passcodes,
		limiter,
		validator.NewPhoneValidator(),
		sms.NewLogGateway(logger),
		services.NewAuditService(nil, false),
		metrics.New(),
		logger,
	)
	return handler, jwtService
}

func postJSON(handler gin.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	c.Request.Header.Set("Content-Type", "application/json")
	handler(c)
	return w
}

func TestSendCode_Success(t *testing.T) {
	limiter := &fakeRateLimiter{}
	handler, _ := setupIdentityTestHandler(&fakePasscodes{}, limiter)

	w := postJSON(handler.SendCode, "/api/v1/identity/send-code", intake.SendCodeRequest{
		PhoneNumber: "09876543210",
		CountryCode: "+91",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp intake.SendCodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "482913", resp.Code, "log gateway exposes the code")
	assert.False(t, resp.ExpiresAt.IsZero())
	assert.Equal(t, []string{"+919876543210"}, limiter.recorded)
}

func TestSendCode_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		body       interface{}
		limiter    *fakeRateLimiter
		passcodes  *fakePasscodes
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing country code",
			body:       map[string]string{"phoneNumber": "9876543210"},
			limiter:    &fakeRateLimiter{},
			passcodes:  &fakePasscodes{},
			wantStatus: http.StatusBadRequest,
			wantError:  "validation_error",
		},
		{
			name:       "invalid phone",
			body:       intake.SendCodeRequest{PhoneNumber: "123", CountryCode: "+91"},
			limiter:    &fakeRateLimiter{},
			passcodes:  &fakePasscodes{},
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid_phone",
		},
		{
			name: "rate limited",
			body: intake.SendCodeRequest{PhoneNumber: "9876543210", CountryCode: "+91"},
			limiter: &fakeRateLimiter{checkErr: &services.RateLimitError{
				Message:    "Too many requests",
				RetryAfter: time.Now().Add(time.Hour),
				Type:       "phone",
			}},
			passcodes:  &fakePasscodes{},
			wantStatus: http.StatusTooManyRequests,
			wantError:  "rate_limit_exceeded",
		},
		{
			name:       "rate limit store failure",
			body:       intake.SendCodeRequest{PhoneNumber: "9876543210", CountryCode: "+91"},
			limiter:    &fakeRateLimiter{checkErr: errors.New("db down")},
			passcodes:  &fakePasscodes{},
			wantStatus: http.StatusInternalServerError,
			wantError:  "rate_limit_check_failed",
		},
		{
			name:       "generation failure",
			body:       intake.SendCodeRequest{PhoneNumber: "9876543210", CountryCode: "+91"},
			limiter:    &fakeRateLimiter{},
			passcodes:  &fakePasscodes{genErr: errors.New("db down")},
			wantStatus: http.StatusInternalServerError,
			wantError:  "passcode_generation_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := setupIdentityTestHandler(tt.passcodes, tt.limiter)

			w := postJSON(handler.SendCode, "/api/v1/identity/send-code", tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantError, resp["error"])
			assert.Empty(t, tt.limiter.recorded)
		})
	}
}

func TestVerifyCode_IssuesToken(t *testing.T) {
	passcodes := &fakePasscodes{issued: map[string]string{"+919876543210": "482913"}}
	handler, jwtService := setupIdentityTestHandler(passcodes, &fakeRateLimiter{})

	w := postJSON(handler.VerifyCode, "/api/v1/identity/verify-code", intake.VerifyCodeRequest{
		PhoneNumber: "9876543210",
		CountryCode: "91",
		Code:        "482913",
		DisplayName: "  Asha Rao ",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp intake.VerifyCodeResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.User)
	assert.Equal(t, "Asha Rao", resp.User.Name)
	assert.Equal(t, "+919876543210", resp.User.PhoneNumber)

	claims, err := jwtService.ValidateSessionToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "+919876543210", claims.PhoneNumber)
	assert.Equal(t, "Asha Rao", claims.Name)
}

func TestVerifyCode_Rejections(t *testing.T) {
	tests := []struct {
		name       string
		passcodes  *fakePasscodes
		req        intake.VerifyCodeRequest
		wantStatus int
		wantCode   string
	}{
		{
			name:       "wrong code",
			passcodes:  &fakePasscodes{issued: map[string]string{"+919876543210": "482913"}},
			req:        intake.VerifyCodeRequest{PhoneNumber: "9876543210", CountryCode: "91", Code: "000000", DisplayName: "Asha"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PASSCODE",
		},
		{
			name:       "no code issued",
			passcodes:  &fakePasscodes{verifyErr: services.ErrNoPasscode},
			req:        intake.VerifyCodeRequest{PhoneNumber: "9876543210", CountryCode: "91", Code: "482913", DisplayName: "Asha"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_PASSCODE",
		},
		{
			name:       "expired",
			passcodes:  &fakePasscodes{verifyErr: services.ErrPasscodeExpired},
			req:        intake.VerifyCodeRequest{PhoneNumber: "9876543210", CountryCode: "91", Code: "482913", DisplayName: "Asha"},
			wantStatus: http.StatusBadRequest,
			wantCode:   "PASSCODE_EXPIRED",
		},
		{
			name:       "blank display name",
			passcodes:  &fakePasscodes{issued: map[string]string{"+919876543210": "482913"}},
			req:        intake.VerifyCodeRequest{PhoneNumber: "9876543210", CountryCode: "91", Code: "482913", DisplayName: "   "},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store failure",
			passcodes:  &fakePasscodes{verifyErr: errors.New("db down")},
			req:        intake.VerifyCodeRequest{PhoneNumber: "9876543210", CountryCode: "91", Code: "482913", DisplayName: "Asha"},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler, _ := setupIdentityTestHandler(tt.passcodes, &fakeRateLimiter{})

			w := postJSON(handler.VerifyCode, "/api/v1/identity/verify-code", tt.req)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, tt.wantCode, resp.Code)
			assert.NotContains(t, w.Body.String(), "token")
		})
	}
}

func TestVerifySession(t *testing.T) {
	handler, jwtService := setupIdentityTestHandler(&fakePasscodes{}, &fakeRateLimiter{})

	token, err := jwtService.GenerateSessionToken("+919876543210", "Asha Rao")
	require.NoError(t, err)

	t.Run("valid token", func(t *testing.T) {
		w := postJSON(handler.VerifySession, "/api/v1/identity/verify-session", intake.VerifySessionRequest{Token: token})

		require.Equal(t, http.StatusOK, w.Code)
		var resp intake.VerifySessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.True(t, resp.Success)
		assert.Equal(t, &intake.User{Name: "Asha Rao", PhoneNumber: "+919876543210"}, resp.User)
	})

	t.Run("tampered token", func(t *testing.T) {
		w := postJSON(handler.VerifySession, "/api/v1/identity/verify-session", intake.VerifySessionRequest{Token: token + "x"})

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		var resp intake.VerifySessionResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.False(t, resp.Success)
		assert.Equal(t, "Invalid or expired session", resp.Error)
	})

	t.Run("missing token", func(t *testing.T) {
		w := postJSON(handler.VerifySession, "/api/v1/identity/verify-session", map[string]string{})

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
