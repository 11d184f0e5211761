package handlers

import (
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quickvisa/intake-backend/internal/cache"
	"github.com/quickvisa/intake-backend/internal/middleware"
	"github.com/quickvisa/intake-backend/internal/models"
	"github.com/quickvisa/intake-backend/internal/services"
	"github.com/quickvisa/intake-backend/pkg/intake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupIntakeSessionRouter(phone string, sessions *services.IntakeSessionService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := NewIntakeSessionHandler(sessions, newHandlerTestLogger())

	router := gin.New()
	group := router.Group("/api/v1/intake/sessions")
	group.Use(func(c *gin.Context) {
		c.Set(middleware.SessionContextKey, middleware.SessionContext{PhoneNumber: phone, Name: "Asha Rao"})
		c.Next()
	})
	group.POST("", handler.Create)
	group.GET("/:id", handler.Get)
	return router
}

func TestIntakeSessionHandler_CreateAndGet(t *testing.T) {
	sessions := services.NewIntakeSessionService(cache.NewMemoryStore(), time.Hour)
	router := setupIntakeSessionRouter(testPhone, sessions)

	w := doRequest(router, http.MethodPost, "/api/v1/intake/sessions",
		[]byte(`{"destination":"United Arab Emirates","nationality":"India","visaType":"30 Days Tourist"}`))

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created models.IntakeSession
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, testPhone, created.PhoneNumber)
	assert.Equal(t, "Asha Rao", created.DisplayName)
	assert.Equal(t, []intake.Slot{intake.SlotPassportFront, intake.SlotPassportLastPage, intake.SlotPhoto}, created.RequiredSteps)

	w = doRequest(router, http.MethodGet, "/api/v1/intake/sessions/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	other := setupIntakeSessionRouter("+15555550100", sessions)
	w = doRequest(other, http.MethodGet, "/api/v1/intake/sessions/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestIntakeSessionHandler_CreateRejections(t *testing.T) {
	sessions := services.NewIntakeSessionService(cache.NewMemoryStore(), time.Hour)
	router := setupIntakeSessionRouter(testPhone, sessions)

	tests := []struct {
		name string
		body string
	}{
		{"missing visa type", `{"destination":"Oman","nationality":"India"}`},
		{"blank destination", `{"destination":"  ","nationality":"India","visaType":"Work"}`},
		{"bad email", `{"destination":"Oman","nationality":"India","visaType":"Work","email":"nope"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(router, http.MethodPost, "/api/v1/intake/sessions", []byte(tt.body))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
