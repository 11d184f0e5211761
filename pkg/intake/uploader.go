package intake

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// DocumentSender is the part of Client the Uploader needs.
type DocumentSender interface {
	Upload(ctx context.Context, token string, identity Identity, slot Slot, doc Document) (*UploadResponse, error)
}

// Uploader submits documents for a session, keeping the session's slot
// statuses in step with the requests.
type Uploader struct {
	sender  DocumentSender
	token   string
	timeout time.Duration
}

// NewUploader creates an uploader. Each upload is bounded by timeout; a
// request that runs past it leaves the slot in the error state.
func NewUploader(sender DocumentSender, token string, timeout time.Duration) *Uploader {
	return &Uploader{sender: sender, token: token, timeout: timeout}
}

// Upload submits doc for slot. If another upload for the same slot starts
// before this one finishes, this one returns ErrSuperseded and leaves the
// slot's status to the newer attempt.
func (u *Uploader) Upload(ctx context.Context, session *Session, slot Slot, doc Document) (*UploadResponse, error) {
	attempt, err := session.Begin(ctx, slot)
	if err != nil {
		return nil, err
	}

	reqCtx, cancel := context.WithTimeout(attempt.Context(), u.timeout)
	defer cancel()

	if err := attempt.Processing(); err != nil {
		return nil, err
	}

	resp, err := u.sender.Upload(reqCtx, u.token, session.Identity(), slot, doc)
	if err == nil && !resp.Success {
		err = fmt.Errorf("%w: %s", ErrRequestFailed, resp.Error)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("upload timed out after %s: %w", u.timeout, err)
		}
		if failErr := attempt.Fail(err); failErr != nil {
			return nil, failErr
		}
		return nil, err
	}

	result := Result{}
	if resp.Data != nil {
		result.ApplicationID = resp.Data.ID
	}
	if resp.Extraction != nil {
		result.ExtractionAttempted = resp.Extraction.Attempted
		result.ExtractionSucceeded = resp.Extraction.Succeeded
	}
	if err := attempt.Succeed(result); err != nil {
		return nil, err
	}
	return resp, nil
}
