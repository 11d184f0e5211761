package intake

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_IdentityFlow(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/v1/identity/send-code":
			var req SendCodeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "+91", req.CountryCode)
			assert.Equal(t, "9876543210", req.PhoneNumber)
			json.NewEncoder(w).Encode(SendCodeResponse{Success: true, Code: "123456"})
		case "/api/v1/identity/verify-code":
			var req VerifyCodeRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "123456", req.Code)
			assert.Equal(t, "John", req.DisplayName)
			json.NewEncoder(w).Encode(VerifyCodeResponse{
				Success: true,
				Token:   "token-1",
				User:    &User{Name: "John", PhoneNumber: "+919876543210"},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", 5*time.Second)

	sent, err := client.SendCode(context.Background(), "+91", "9876543210")
	require.NoError(t, err)
	assert.True(t, sent.Success)
	assert.Equal(t, "123456", sent.Code)

	verified, err := client.VerifyCode(context.Background(), "+91", "9876543210", "123456", "John")
	require.NoError(t, err)
	assert.Equal(t, "token-1", verified.Token)
	assert.Equal(t, "+919876543210", verified.User.PhoneNumber)
}

func TestClient_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_code","message":"Invalid passcode"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	_, err := client.VerifyCode(context.Background(), "+91", "9876543210", "000000", "John")

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Contains(t, err.Error(), "Invalid passcode")
}

func TestClient_UploadSendsMultipartForm(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/documents", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))

		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "passportFront", r.FormValue(FormFieldName))
		assert.Equal(t, "John", r.FormValue(FormFirstName))
		assert.Equal(t, "+919876543210", r.FormValue(FormPhone))
		assert.Equal(t, "India", r.FormValue(FormNationality))
		assert.Equal(t, "United Arab Emirates", r.FormValue(FormDestination))

		file, header, err := r.FormFile(FormFile)
		require.NoError(t, err)
		defer file.Close()
		content, _ := io.ReadAll(file)
		assert.Equal(t, "front.jpg", header.Filename)
		assert.Equal(t, "image/jpeg", header.Header.Get("Content-Type"))
		assert.Equal(t, []byte("jpeg-bytes"), content)

		json.NewEncoder(w).Encode(UploadResponse{
			Success:    true,
			Data:       &UploadData{ID: "app-1"},
			Extraction: &ExtractionReport{Attempted: true, Succeeded: true},
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, 5*time.Second)
	resp, err := client.Upload(context.Background(), "token-1", indianApplicant(), SlotPassportFront, Document{
		Filename:    "front.jpg",
		ContentType: "image/jpeg",
		Content:     []byte("jpeg-bytes"),
	})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, "app-1", resp.Data.ID)
}

type fakeSender struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{}
	started chan struct{}
	resp    *UploadResponse
	err     error
}

func (f *fakeSender) Upload(ctx context.Context, token string, identity Identity, slot Slot, doc Document) (*UploadResponse, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if call == 1 && f.block != nil {
		close(f.started)
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return f.resp, f.err
}

func TestUploader_Success(t *testing.T) {
	sender := &fakeSender{resp: &UploadResponse{
		Success:    true,
		Data:       &UploadData{ID: "app-1"},
		Extraction: &ExtractionReport{Attempted: true, Succeeded: false, Error: "unreadable"},
	}}
	session := NewSession(Identity{Nationality: "Kenya"})
	uploader := NewUploader(sender, "token", time.Second)

	_, err := uploader.Upload(context.Background(), session, SlotPassport, Document{})
	require.NoError(t, err)

	views := session.Snapshot()
	assert.Equal(t, StatusSuccess, views[0].Status)
	require.NotNil(t, views[0].Result)
	assert.Equal(t, "app-1", views[0].Result.ApplicationID)
	assert.False(t, views[0].Result.ExtractionSucceeded)
	assert.True(t, views[1].Enabled)
}

func TestUploader_FailureMarksError(t *testing.T) {
	sender := &fakeSender{resp: &UploadResponse{Success: false, Error: "Failed to save application"}}
	session := NewSession(Identity{Nationality: "Kenya"})
	uploader := NewUploader(sender, "token", time.Second)

	_, err := uploader.Upload(context.Background(), session, SlotPassport, Document{})
	assert.ErrorIs(t, err, ErrRequestFailed)
	assert.Equal(t, StatusError, session.Status(SlotPassport))
}

func TestUploader_TimeoutMarksError(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{}), started: make(chan struct{})}
	session := NewSession(Identity{Nationality: "Kenya"})
	uploader := NewUploader(sender, "token", 20*time.Millisecond)

	_, err := uploader.Upload(context.Background(), session, SlotPassport, Document{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, StatusError, session.Status(SlotPassport))
}

func TestUploader_ReplacementSupersedesInFlightUpload(t *testing.T) {
	sender := &fakeSender{
		block:   make(chan struct{}),
		started: make(chan struct{}),
		resp:    &UploadResponse{Success: true, Data: &UploadData{ID: "app-1"}},
	}
	session := NewSession(Identity{Nationality: "Kenya"})
	uploader := NewUploader(sender, "token", 5*time.Second)

	firstErr := make(chan error, 1)
	go func() {
		_, err := uploader.Upload(context.Background(), session, SlotPassport, Document{Filename: "old.jpg"})
		firstErr <- err
	}()
	<-sender.started

	_, err := uploader.Upload(context.Background(), session, SlotPassport, Document{Filename: "new.jpg"})
	require.NoError(t, err)

	assert.ErrorIs(t, <-firstErr, ErrSuperseded)
	assert.Equal(t, StatusSuccess, session.Status(SlotPassport))
}
